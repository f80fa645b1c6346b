// Package presence turns local keystrokes into rate limited typing signals
// and inbound typing signals into a per-conversation "peer is typing" flag.
package presence

import (
	"sync"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/client/protocol"
)

const (
	DefaultWindow        = 1200 * time.Millisecond
	DefaultRemoteTimeout = 3 * time.Second
)

// Emitter sends an outbound presence event; transport.Transport.Send fits.
type Emitter func(protocol.Event) error

type Config struct {
	ChatID string
	UserID string
	PeerID string

	// Window is how long after the last keystroke stop_typing is sent.
	Window time.Duration
	// RemoteTimeout clears the peer flag when no typing signal refreshes it,
	// covering stop_typing frames that never arrive.
	RemoteTimeout time.Duration
}

// Signaler is safe for concurrent use. Timers fire on their own goroutines.
type Signaler struct {
	cfg  Config
	emit Emitter

	mu       sync.Mutex
	stopped  bool
	typing   bool
	localGen int
	local    *time.Timer

	peerTyping bool
	remoteGen  int
	remote     *time.Timer
	onChange   func(bool)
}

func New(cfg Config, emit Emitter) *Signaler {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultRemoteTimeout
	}
	return &Signaler{cfg: cfg, emit: emit}
}

// OnChange registers fn to be called whenever the peer flag flips.
func (s *Signaler) OnChange(fn func(typing bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// NotifyTyping is called on every local keystroke. The first call of a burst
// sends typing; every call restarts the countdown to stop_typing.
func (s *Signaler) NotifyTyping() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	start := !s.typing
	s.typing = true
	s.localGen++
	gen := s.localGen
	if s.local != nil {
		s.local.Stop()
	}
	s.local = time.AfterFunc(s.cfg.Window, func() { s.expire(gen) })
	s.mu.Unlock()

	if !start {
		return nil
	}
	if err := s.emit(protocol.Typing(s.cfg.ChatID, s.cfg.UserID)); err != nil {
		// Nothing went out, so let the next keystroke try again.
		s.mu.Lock()
		if s.localGen == gen {
			s.typing = false
			s.local.Stop()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Flush ends a typing burst immediately, as when the message is sent.
func (s *Signaler) Flush() error {
	s.mu.Lock()
	if !s.typing {
		s.mu.Unlock()
		return nil
	}
	s.endLocked()
	s.mu.Unlock()
	return s.emit(protocol.StopTyping(s.cfg.ChatID, s.cfg.UserID))
}

func (s *Signaler) expire(gen int) {
	s.mu.Lock()
	if s.stopped || !s.typing || gen != s.localGen {
		s.mu.Unlock()
		return
	}
	s.typing = false
	s.mu.Unlock()

	_ = s.emit(protocol.StopTyping(s.cfg.ChatID, s.cfg.UserID))
}

func (s *Signaler) endLocked() {
	s.typing = false
	s.localGen++
	if s.local != nil {
		s.local.Stop()
	}
}

func (s *Signaler) PeerTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerTyping
}

// OnRemoteTyping sets the peer flag. Signals from anyone but the selected
// peer are ignored.
func (s *Signaler) OnRemoteTyping(senderID string) {
	if senderID != s.cfg.PeerID {
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.remoteGen++
	gen := s.remoteGen
	if s.remote != nil {
		s.remote.Stop()
	}
	s.remote = time.AfterFunc(s.cfg.RemoteTimeout, func() { s.clearRemote(gen) })
	s.setPeerLocked(true)
}

// OnRemoteStopTyping clears the peer flag. The latest signal wins; there is
// no timestamp comparison.
func (s *Signaler) OnRemoteStopTyping(senderID string) {
	if senderID != s.cfg.PeerID {
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.remoteGen++
	if s.remote != nil {
		s.remote.Stop()
	}
	s.setPeerLocked(false)
}

// OnRemoteMessage clears the flag when the peer's message arrives.
func (s *Signaler) OnRemoteMessage(senderID string) {
	s.OnRemoteStopTyping(senderID)
}

func (s *Signaler) clearRemote(gen int) {
	s.mu.Lock()
	if s.stopped || gen != s.remoteGen {
		s.mu.Unlock()
		return
	}
	s.setPeerLocked(false)
}

// setPeerLocked updates the flag and unlocks s.mu before notifying.
func (s *Signaler) setPeerLocked(typing bool) {
	changed := s.peerTyping != typing
	s.peerTyping = typing
	fn := s.onChange
	s.mu.Unlock()

	if changed && fn != nil {
		fn(typing)
	}
}

// Stop cancels all timers. A burst still in progress is ended with
// stop_typing so the peer's indicator does not linger.
func (s *Signaler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	wasTyping := s.typing
	s.endLocked()
	s.remoteGen++
	if s.remote != nil {
		s.remote.Stop()
	}
	s.mu.Unlock()

	if wasTyping {
		_ = s.emit(protocol.StopTyping(s.cfg.ChatID, s.cfg.UserID))
	}
}

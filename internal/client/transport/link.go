package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// link is one physical connection with its outbound queue.
type link struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newLink(ws *websocket.Conn, buffer int) *link {
	return &link{
		ws:   ws,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// enqueue never blocks. A full queue means the peer stopped reading; the
// link is dropped so the read side notices and the reconnect policy applies.
func (l *link) enqueue(data []byte) error {
	select {
	case <-l.done:
		return ErrNotReady
	default:
	}
	select {
	case l.send <- data:
		return nil
	default:
		l.close(websocket.CloseGoingAway, "send buffer full")
		return ErrNotReady
	}
}

func (l *link) close(code int, reason string) {
	l.once.Do(func() {
		close(l.done)
		deadline := time.Now().Add(time.Second)
		_ = l.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = l.ws.Close()
	})
}

package ws

import (
	"context"
	"log/slog"

	"github.com/cloudzz-dev/cldzchat/internal/server/storage"
)

type delivery struct {
	userIDs []string
	client  *Client
	data    []byte
}

// Hub tracks authenticated connections by user and routes frames to them.
// A user may hold several connections; each receives every frame.
type Hub struct {
	Store *storage.Store

	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	done       chan struct{}
	log        *slog.Logger
}

func NewHub(store *storage.Store, log *slog.Logger) *Hub {
	return &Hub{
		Store:      store,
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			conns := h.clients[client.UserID]
			if conns == nil {
				conns = make(map[*Client]bool)
				h.clients[client.UserID] = conns
				h.Store.SetStatus(client.UserID, "online")
			}
			conns[client] = true
			h.log.Debug("client registered", "user", client.UserID, "connections", len(conns))

		case client := <-h.unregister:
			h.remove(client)

		case d := <-h.deliver:
			if d.client != nil {
				if h.clients[d.client.UserID][d.client] {
					h.push(d.client, d.data)
				}
				continue
			}
			for _, id := range d.userIDs {
				for client := range h.clients[id] {
					h.push(client, d.data)
				}
			}

		case <-ctx.Done():
			for _, conns := range h.clients {
				for client := range conns {
					close(client.send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			return
		}
	}
}

func (h *Hub) push(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.log.Warn("dropping slow client", "user", client.UserID)
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	conns, ok := h.clients[client.UserID]
	if !ok || !conns[client] {
		return
	}
	delete(conns, client)
	close(client.send)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
		h.Store.SetStatus(client.UserID, "offline")
	}
}

// Send queues data for every connection of the given users.
func (h *Hub) Send(data []byte, userIDs ...string) {
	h.enqueue(delivery{userIDs: userIDs, data: data})
}

func (h *Hub) sendTo(c *Client, data []byte) {
	h.enqueue(delivery{client: c, data: data})
}

func (h *Hub) enqueue(d delivery) {
	select {
	case h.deliver <- d:
	case <-h.done:
	}
}

func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

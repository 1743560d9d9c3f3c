// Package relay is the WebSocket signaling relay: it tracks rooms and
// forwards call signaling between participants without interpreting it.
package relay

import (
	"context"
	"log/slog"
	"sort"

	"github.com/BioHazard786/Warpcall/internal/metrics"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// Reasons a message is not delivered.
const (
	dropNoTarget  = "no_target"
	dropUnknown   = "unknown_type"
	dropQueueFull = "queue_full"
)

// inbound is one message read from a client.
type inbound struct {
	client *Client
	msg    *signaling.Message
}

// Hub is the central brain of the relay. The goroutine running Run owns
// every room and client; pumps talk to it through channels.
type Hub struct {
	rooms   map[string]*Room
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan inbound
	queries    chan func()
	done       chan struct{}

	metrics *metrics.Relay
}

// NewHub creates a Hub. m may be nil.
func NewHub(m *metrics.Relay) *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan inbound),
		queries:    make(chan func()),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

// Run processes registrations and messages until ctx is cancelled, then
// closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for _, c := range h.clients {
			h.closeClient(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.onRegister(c)

		case c := <-h.unregister:
			h.onUnregister(c)

		case in := <-h.broadcast:
			h.onMessage(in.client, in.msg)

		case q := <-h.queries:
			q()
		}
	}
}

func (h *Hub) onRegister(c *Client) {
	if old, ok := h.clients[c.userID]; ok {
		slog.Info("replacing connection", "user", c.userID, "old", old.conn.RemoteAddr())
		h.closeClient(old)
	}
	h.clients[c.userID] = c
	h.metrics.SetConnections(len(h.clients))
	slog.Info("client registered", "user", c.userID, "addr", c.conn.RemoteAddr())
}

func (h *Hub) onUnregister(c *Client) {
	defer h.closeClient(c)
	if h.clients[c.userID] != c {
		// Already replaced by a newer connection.
		return
	}
	delete(h.clients, c.userID)
	h.metrics.SetConnections(len(h.clients))
	slog.Info("client unregistered", "user", c.userID)

	for _, room := range h.rooms {
		if !room.remove(c.userID) {
			continue
		}
		for member := range room.Members {
			h.deliver(member, &signaling.Message{Type: signaling.TypeUserLeft, UserID: c.userID})
		}
		if room.empty() {
			delete(h.rooms, room.ID)
			slog.Info("room deleted", "room", room.ID)
		}
	}
	h.metrics.SetRooms(len(h.rooms))
}

func (h *Hub) onMessage(c *Client, msg *signaling.Message) {
	if h.clients[c.userID] != c {
		return
	}

	switch {
	case msg.Type == signaling.TypeJoinRoom:
		h.join(c.userID, msg.RoomID)

	case signaling.Relayed(msg.Type):
		fwd := *msg
		fwd.FromUserID = c.userID
		if h.deliver(msg.TargetUserID, &fwd) {
			h.metrics.Relayed(msg.Type)
			slog.Debug("relayed", "type", msg.Type, "from", c.userID, "to", msg.TargetUserID)
		}

	default:
		slog.Warn("unknown message type", "type", msg.Type, "user", c.userID)
		h.metrics.Dropped(dropUnknown)
	}
}

func (h *Hub) join(userID, roomID string) {
	if roomID == "" {
		slog.Warn("join without room id", "user", userID)
		return
	}
	room, ok := h.rooms[roomID]
	if !ok {
		room = newRoom(roomID)
		h.rooms[roomID] = room
		h.metrics.SetRooms(len(h.rooms))
	}
	if !room.add(userID) {
		return
	}
	slog.Info("joined room", "user", userID, "room", roomID, "members", len(room.Members))

	for member := range room.Members {
		if member == userID {
			continue
		}
		h.deliver(member, &signaling.Message{Type: signaling.TypeUserJoined, UserID: userID})
	}
}

// deliver queues msg for userID without blocking the hub.
func (h *Hub) deliver(userID string, msg *signaling.Message) bool {
	c, ok := h.clients[userID]
	if !ok {
		slog.Debug("dropping message for absent user", "type", msg.Type, "to", userID)
		h.metrics.Dropped(dropNoTarget)
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		slog.Warn("client send queue full", "user", userID, "type", msg.Type)
		h.metrics.Dropped(dropQueueFull)
		return false
	}
}

// closeClient stops c's write pump exactly once.
func (h *Hub) closeClient(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Members returns the sorted members of roomID.
func (h *Hub) Members(roomID string) []string {
	var out []string
	h.query(func() {
		if room, ok := h.rooms[roomID]; ok {
			for id := range room.Members {
				out = append(out, id)
			}
		}
	})
	sort.Strings(out)
	return out
}

// Connected reports whether userID has a live connection.
func (h *Hub) Connected(userID string) bool {
	var ok bool
	h.query(func() { _, ok = h.clients[userID] })
	return ok
}

func (h *Hub) query(fn func()) {
	reply := make(chan struct{})
	select {
	case h.queries <- func() { fn(); close(reply) }:
		<-reply
	case <-h.done:
	}
}

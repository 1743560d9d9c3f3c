package signaling

import (
	"context"
	"log/slog"
	"sync"
)

// HandlerFunc consumes one inbound message.
type HandlerFunc func(*Message)

// Router dispatches inbound messages by type to exactly one handler.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for messages of type t, replacing any previous handler.
func (r *Router) Handle(t string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = fn
}

// Dispatch invokes the handler registered for msg.Type.
// Unknown types are ignored; the return value reports whether a handler ran.
func (r *Router) Dispatch(msg *Message) bool {
	if msg == nil {
		return false
	}

	r.mu.RLock()
	fn, ok := r.handlers[msg.Type]
	r.mu.RUnlock()

	if !ok {
		slog.Debug("ignoring unknown message type", "type", msg.Type)
		return false
	}

	fn(msg)
	return true
}

// Run drains in through Dispatch, in arrival order, until in is closed or
// ctx is cancelled. It returns ErrClosed when the channel ends first.
func (r *Router) Run(ctx context.Context, in <-chan *Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return ErrClosed
			}
			r.Dispatch(msg)
		}
	}
}

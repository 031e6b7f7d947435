// Package dispatch routes a framed request to the handler registered for its
// message type.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/user/skyd/internal/protocol"
	"github.com/user/skyd/internal/status"
)

// Handler processes one request of a single message type. body yields exactly
// h.Length bytes.
type Handler interface {
	Type() protocol.MessageType
	Handle(ctx context.Context, h protocol.Header, body io.Reader) error
}

// HandlerFunc adapts a function to a Handler for the given type.
type HandlerFunc struct {
	MessageType protocol.MessageType
	Fn          func(ctx context.Context, h protocol.Header, body io.Reader) error
}

func (f HandlerFunc) Type() protocol.MessageType { return f.MessageType }

func (f HandlerFunc) Handle(ctx context.Context, h protocol.Header, body io.Reader) error {
	return f.Fn(ctx, h, body)
}

// Registry maps message types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[protocol.MessageType]Handler
}

// NewRegistry creates a registry holding the given handlers.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[protocol.MessageType]Handler)}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds h. Registering a second handler for a type is an error.
func (r *Registry) Register(h Handler) error {
	typ := h.Type()
	if typ.IsResponse() {
		return fmt.Errorf("cannot register handler for response type %s", typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[typ]; exists {
		return fmt.Errorf("handler already registered for %s", typ)
	}
	r.handlers[typ] = h
	return nil
}

// Lookup returns the handler for typ.
func (r *Registry) Lookup(typ protocol.MessageType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typ]
	return h, ok
}

// Types returns the registered message types in ascending order.
func (r *Registry) Types() []protocol.MessageType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.MessageType, 0, len(r.handlers))
	for typ := range r.handlers {
		out = append(out, typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch runs the handler for msg's type. An unregistered type yields an
// Unsupported status error and no handler runs.
func (r *Registry) Dispatch(ctx context.Context, msg *protocol.Message) error {
	h, ok := r.Lookup(msg.Header.Type)
	if !ok {
		return status.Errorf(status.Unsupported, "unsupported message type %s", msg.Header.Type)
	}
	return h.Handle(ctx, msg.Header, msg.Body())
}

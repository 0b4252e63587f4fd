package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// internal (untyped) handler signature.
type rawHandler func(ctx context.Context, s *Session, raw json.RawMessage) error

var errUnknownType = errors.New("unknown message type")

// Router keeps a map[type]handler. Each inbound frame is decoded once
// into its typed payload here; business logic never sees raw tags.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
}

func NewRouter() *Router { return &Router{handlers: make(map[string]rawHandler)} }

// Register binds a message type to a strongly-typed handler.
func Register[Req any](
	r *Router,
	msgType string,
	h func(ctx context.Context, s *Session, req Req) error,
) {
	if msgType == "" {
		panic("ws router: empty message type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[msgType] = func(ctx context.Context, s *Session, raw json.RawMessage) error {
		var req Req
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &req); err != nil {
				return err
			}
		}
		return h(ctx, s, req)
	}
}

// dispatch is called by the server's reader loop. Unknown types return
// errUnknownType; the caller drops the frame and keeps the connection.
func (r *Router) dispatch(ctx context.Context, s *Session, msgType string, raw json.RawMessage) error {
	r.mu.RLock()
	h, ok := r.handlers[msgType]
	r.mu.RUnlock()
	if !ok {
		return errUnknownType
	}
	return h(ctx, s, raw)
}

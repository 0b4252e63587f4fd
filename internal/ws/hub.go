package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

type room struct {
	members map[*Session]struct{}
}

// Hub is the process-wide room registry: room key -> live session set.
// Rooms materialize on first join and are discarded as soon as the last
// member leaves; a later join builds a brand-new room.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

func (h *Hub) Join(key string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[key]
	if !ok {
		r = &room{members: make(map[*Session]struct{})}
		h.rooms[key] = r
	}
	r.members[s] = struct{}{}
}

// Leave removes s and tears the room down if it is now empty. Unknown
// keys and already-removed sessions are no-ops, so the disconnect path
// and CloseRoom cannot double-count.
func (h *Hub) Leave(key string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[key]
	if !ok {
		return
	}
	delete(r.members, s)
	if len(r.members) == 0 {
		delete(h.rooms, key)
	}
}

func (h *Hub) Members(key string) []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[key]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(r.members))
	for s := range r.members {
		out = append(out, s)
	}
	return out
}

// Broadcast fans v out to every member of key except sender. Delivery is
// in routed order per recipient; writes happen outside the registry lock
// and a failed write evicts the dead session.
func (h *Hub) Broadcast(key string, sender *Session, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("ws.marshal", zap.Error(err))
		return
	}

	var failed []*Session
	for _, s := range h.Members(key) {
		if s == sender {
			continue
		}
		if err := s.conn.write(data); err != nil {
			failed = append(failed, s)
		}
	}
	for _, s := range failed {
		h.Leave(key, s)
		_ = s.conn.Close()
	}
}

// CloseRoom force-disconnects every member and discards the room; used
// when the underlying resource is deleted while sessions are live.
func (h *Hub) CloseRoom(key string) {
	h.mu.Lock()
	r, ok := h.rooms[key]
	if ok {
		delete(h.rooms, key)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	for s := range r.members {
		_ = s.conn.Close()
	}
}

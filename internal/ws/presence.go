package ws

// presenceNotifier announces membership changes to the rest of a room.
// Thin wrapper over the hub's fan-out with fixed message kinds; the
// acting session never receives its own event.
type presenceNotifier struct {
	hub *Hub
}

func (p *presenceNotifier) announceJoin(key string, s *Session) {
	p.hub.Broadcast(key, s, UserEvent{
		Type:     TypeUserJoined,
		UserID:   s.UserID,
		Username: s.Username,
	})
}

func (p *presenceNotifier) announceLeave(key string, s *Session) {
	p.hub.Broadcast(key, s, UserEvent{
		Type:     TypeUserLeft,
		UserID:   s.UserID,
		Username: s.Username,
	})
}

// activeUsers lists usernames currently visible in the room.
func (p *presenceNotifier) activeUsers(key string) []string {
	members := p.hub.Members(key)
	users := make([]string, 0, len(members))
	for _, m := range members {
		users = append(users, m.Username)
	}
	return users
}

package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"docshub/internal/services/resource"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu         sync.Mutex
	frames     [][]byte
	closed     bool
	failWrites bool
}

func (c *fakeConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return fmt.Errorf("broken pipe")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.frames = append(c.frames, cp)
	return nil
}

func (c *fakeConn) ping() error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

func newSession(userID string) (*Session, *fakeConn) {
	fc := &fakeConn{}
	return &Session{
		UserID:   userID,
		Username: userID,
		Ref:      resource.Ref{Kind: resource.KindDocument, ID: "d1"},
		conn:     fc,
	}, fc
}

const key = "document:d1"

func TestJoinLeaveLifecycle(t *testing.T) {
	h := NewHub()
	s, _ := newSession("alice")

	assert.Nil(t, h.Members(key), "room does not exist before first join")

	h.Join(key, s)
	require.Len(t, h.Members(key), 1)

	h.Leave(key, s)
	assert.Nil(t, h.Members(key), "room destroyed on last leave")

	// leaving twice is a no-op
	h.Leave(key, s)
	assert.Nil(t, h.Members(key))
}

func TestConcurrentJoinLeave(t *testing.T) {
	h := NewHub()
	const n = 100

	sessions := make([]*Session, n)
	for i := range sessions {
		sessions[i], _ = newSession(fmt.Sprintf("u%d", i))
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			h.Join(key, s)
		}(s)
	}
	wg.Wait()
	assert.Len(t, h.Members(key), n, "no joins lost or duplicated")

	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			h.Leave(key, s)
		}(s)
	}
	wg.Wait()
	assert.Nil(t, h.Members(key))
}

func TestBroadcastExcludesSenderAndKeepsOrder(t *testing.T) {
	h := NewHub()
	sender, senderConn := newSession("alice")
	recv, recvConn := newSession("bob")
	h.Join(key, sender)
	h.Join(key, recv)

	for i := 0; i < 3; i++ {
		h.Broadcast(key, sender, UserEvent{Type: TypeUserJoined, UserID: fmt.Sprintf("m%d", i)})
	}

	assert.Empty(t, senderConn.received(), "sender never gets its own event back")

	frames := recvConn.received()
	require.Len(t, frames, 3)
	for i, f := range frames {
		var ev UserEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		assert.Equal(t, fmt.Sprintf("m%d", i), ev.UserID, "routed order preserved per recipient")
	}
}

func TestBroadcastEvictsDeadSession(t *testing.T) {
	h := NewHub()
	sender, _ := newSession("alice")
	dead, deadConn := newSession("bob")
	deadConn.failWrites = true
	h.Join(key, sender)
	h.Join(key, dead)

	h.Broadcast(key, sender, UserEvent{Type: TypeUserLeft, UserID: "x"})

	assert.True(t, deadConn.closed)
	require.Len(t, h.Members(key), 1)
	assert.Equal(t, "alice", h.Members(key)[0].UserID)
}

func TestCloseRoom(t *testing.T) {
	h := NewHub()
	a, ac := newSession("alice")
	b, bc := newSession("bob")
	h.Join(key, a)
	h.Join(key, b)

	h.CloseRoom(key)

	assert.Nil(t, h.Members(key))
	assert.True(t, ac.closed)
	assert.True(t, bc.closed)
}

func TestRoomsAreIndependent(t *testing.T) {
	h := NewHub()
	a, _ := newSession("alice")
	b, bc := newSession("bob")
	h.Join("document:d1", a)
	h.Join("spreadsheet:s1", b)

	h.Broadcast("document:d1", nil, UserEvent{Type: TypeUserJoined, UserID: "alice"})

	assert.Empty(t, bc.received(), "no cross-room delivery")
}

func TestPresenceAnnouncements(t *testing.T) {
	h := NewHub()
	p := &presenceNotifier{hub: h}
	joiner, joinerConn := newSession("alice")
	other, otherConn := newSession("bob")
	h.Join(key, other)
	h.Join(key, joiner)

	p.announceJoin(key, joiner)

	require.Len(t, otherConn.received(), 1)
	var ev UserEvent
	require.NoError(t, json.Unmarshal(otherConn.received()[0], &ev))
	assert.Equal(t, TypeUserJoined, ev.Type)
	assert.Equal(t, "alice", ev.UserID)
	assert.Empty(t, joinerConn.received(), "joiner does not see its own join")

	assert.ElementsMatch(t, []string{"alice", "bob"}, p.activeUsers(key))
}

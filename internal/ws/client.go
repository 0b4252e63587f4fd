package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"docshub/internal/services/resource"
)

// conn is the transport-level send capability of a session. Narrow on
// purpose so tests can substitute an in-memory fake.
type conn interface {
	write(data []byte) error
	ping() error
	Close() error
}

type wsConn struct {
	rawConn *websocket.Conn
	mu      sync.Mutex
}

func (c *wsConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsConn) Close() error {
	return c.rawConn.Close()
}

// Session is one connected participant. Ephemeral: lives exactly as long
// as the connection, never reused across reconnects.
type Session struct {
	UserID   string
	Username string
	Ref      resource.Ref
	conn     conn
}

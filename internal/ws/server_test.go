package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docshub/internal/services/collab"
	"docshub/internal/services/permission"
	"docshub/internal/services/resource"
)

// ---------------------------------------------------------------------------
//  fakes
// ---------------------------------------------------------------------------

type stubResources struct {
	res *resource.ResourceDTO
}

func (f *stubResources) Get(context.Context, resource.Ref) (*resource.ResourceDTO, error) {
	if f.res == nil {
		return nil, resource.ErrNotFound
	}
	return f.res, nil
}
func (f *stubResources) Create(context.Context, resource.Ref, string, string, string) (*resource.ResourceDTO, error) {
	return nil, nil
}
func (f *stubResources) Update(context.Context, resource.Ref, resource.Fields) error { return nil }
func (f *stubResources) Delete(context.Context, resource.Ref) error                  { return nil }
func (f *stubResources) List(context.Context, resource.Kind, string, int, int) ([]resource.ResourceDTO, error) {
	return nil, nil
}

// stubPerms grants access to every user in allowed, regardless of role.
type stubPerms struct {
	allowed map[string]bool
}

func (f *stubPerms) Authorize(_ context.Context, _ *resource.ResourceDTO, userID string, _ permission.Role) (bool, error) {
	return f.allowed[userID], nil
}
func (f *stubPerms) GetRole(context.Context, resource.Ref, string) (*permission.Role, error) {
	return nil, nil
}
func (f *stubPerms) Grant(context.Context, *resource.ResourceDTO, string, string, permission.Role) error {
	return nil
}
func (f *stubPerms) Revoke(context.Context, *resource.ResourceDTO, string, string) error { return nil }
func (f *stubPerms) List(context.Context, resource.Ref) ([]permission.PermissionDTO, error) {
	return nil, nil
}

type savedEdit struct {
	userID string
	fields collab.Fields
}

type stubCollab struct {
	mu    sync.Mutex
	saves []savedEdit
	cells [][]collab.CellChange
}

func (f *stubCollab) Save(_ context.Context, _ resource.Ref, userID string, fields collab.Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, savedEdit{userID: userID, fields: fields})
	return nil
}
func (f *stubCollab) ApplyCellChanges(_ context.Context, _ resource.Ref, _ string, changes []collab.CellChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cells = append(f.cells, changes)
	return nil
}
func (f *stubCollab) Snapshot(context.Context, resource.Ref, string, string) (int, error) {
	return 0, nil
}
func (f *stubCollab) Restore(context.Context, resource.Ref, string, int) error { return nil }
func (f *stubCollab) Purge(context.Context, resource.Ref) error                { return nil }

func (f *stubCollab) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

// ---------------------------------------------------------------------------
//  harness
// ---------------------------------------------------------------------------

type harness struct {
	hub    *Hub
	collab *stubCollab
	ts     *httptest.Server
}

func newHarness(t *testing.T, res *resource.ResourceDTO, allowed ...string) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	allow := make(map[string]bool, len(allowed))
	for _, u := range allowed {
		allow[u] = true
	}

	hub := NewHub()
	cl := &stubCollab{}
	srv := NewServer(hub, &stubResources{res: res}, &stubPerms{allowed: allow}, cl)

	engine := gin.New()
	engine.GET("/ws/:kind/:id", srv.Handle)
	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)

	return &harness{hub: hub, collab: cl, ts: ts}
}

func (h *harness) dial(t *testing.T, kind, id, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") +
		"/ws/" + kind + "/" + id + "?user_id=" + userID + "&username=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readFrame(t, conn)
		if msg["type"] == msgType {
			return msg
		}
	}
	t.Fatalf("never received %q", msgType)
	return nil
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var msg map[string]any
	err := conn.ReadJSON(&msg)
	require.Error(t, err, "expected no frame, got %v", msg)
	assert.True(t, strings.Contains(err.Error(), "timeout") ||
		strings.Contains(err.Error(), "deadline"), "expected a read timeout, got %v", err)
}

func testDoc() *resource.ResourceDTO {
	return &resource.ResourceDTO{
		ID: "d1", Kind: resource.KindDocument, OwnerID: "owner",
		Title: "Notes", Content: "<p>hello</p>",
	}
}

// ---------------------------------------------------------------------------

func TestUnauthorizedConnectCreatesNoRoom(t *testing.T) {
	h := newHarness(t, testDoc(), "owner") // "mallory" not allowed
	conn := h.dial(t, "document", "d1", "mallory")

	// The gateway upgrades, then closes with no detail.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	assert.Nil(t, h.hub.Members("document:d1"), "rejected connect never joins the room")
}

func TestMissingResourceIndistinguishable(t *testing.T) {
	h := newHarness(t, nil, "owner") // resource does not exist at all
	conn := h.dial(t, "document", "ghost", "owner")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Nil(t, h.hub.Members("document:ghost"))
}

func TestJoinSnapshotAndRoster(t *testing.T) {
	h := newHarness(t, testDoc(), "owner")
	conn := h.dial(t, "document", "d1", "owner")

	msg := readFrame(t, conn)
	assert.Equal(t, TypeContentUpdate, msg["type"])
	assert.Equal(t, "<p>hello</p>", msg["content"])

	msg = readFrame(t, conn)
	assert.Equal(t, TypeTitleUpdate, msg["type"])
	assert.Equal(t, "Notes", msg["title"])

	msg = readFrame(t, conn)
	assert.Equal(t, TypeActiveUsers, msg["type"])
	assert.Equal(t, []any{"owner"}, msg["users"])
}

func TestSpreadsheetJoinSnapshot(t *testing.T) {
	sheet := &resource.ResourceDTO{
		ID: "s1", Kind: resource.KindSpreadsheet, OwnerID: "owner",
		Title: "Budget", Content: `{"sheets":[{"name":"Sheet1","data":[["a"]]}]}`,
	}
	h := newHarness(t, sheet, "owner")
	conn := h.dial(t, "spreadsheet", "s1", "owner")

	msg := readFrame(t, conn)
	assert.Equal(t, TypeDataUpdate, msg["type"])
	data, ok := msg["data"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, "sheets")
}

func TestContentUpdateFanOutNotEchoed(t *testing.T) {
	h := newHarness(t, testDoc(), "owner", "editor")
	ownerConn := h.dial(t, "document", "d1", "owner")
	editorConn := h.dial(t, "document", "d1", "editor")

	// owner sees the editor join before any edit
	readUntil(t, ownerConn, TypeUserJoined)
	// drain the editor's own join snapshot
	readUntil(t, editorConn, TypeActiveUsers)

	require.NoError(t, editorConn.WriteJSON(map[string]any{
		"type": "content_update", "content": "X",
	}))

	msg := readUntil(t, ownerConn, TypeContentUpdate)
	assert.Equal(t, "X", msg["content"])
	assert.Equal(t, "editor", msg["user_id"])

	assertSilent(t, editorConn)

	// the edit reached the persistence coordinator
	require.Eventually(t, func() bool { return h.collab.savedCount() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestMalformedFrameDroppedConnectionStaysOpen(t *testing.T) {
	h := newHarness(t, testDoc(), "owner", "editor")
	ownerConn := h.dial(t, "document", "d1", "owner")
	editorConn := h.dial(t, "document", "d1", "editor")
	readUntil(t, ownerConn, TypeUserJoined)

	require.NoError(t, editorConn.WriteMessage(websocket.TextMessage, []byte("not json at all")))
	require.NoError(t, editorConn.WriteJSON(map[string]any{"type": "nonsense_kind"}))

	// still alive: a valid frame after the garbage goes through
	require.NoError(t, editorConn.WriteJSON(map[string]any{
		"type": "cursor_update", "position": map[string]any{"offset": 5},
	}))

	msg := readUntil(t, ownerConn, TypeCursorUpdate)
	assert.Equal(t, "editor", msg["user_id"])
	assert.Equal(t, 0, h.collab.savedCount(), "malformed frames never reach persistence")
}

func TestCellUpdateBroadcastAsCellChange(t *testing.T) {
	sheet := &resource.ResourceDTO{
		ID: "s1", Kind: resource.KindSpreadsheet, OwnerID: "owner", Title: "Budget",
	}
	h := newHarness(t, sheet, "owner", "editor")
	ownerConn := h.dial(t, "spreadsheet", "s1", "owner")
	editorConn := h.dial(t, "spreadsheet", "s1", "editor")
	readUntil(t, ownerConn, TypeUserJoined)

	require.NoError(t, editorConn.WriteJSON(map[string]any{
		"type":    "cell_update",
		"changes": []map[string]any{{"sheet": "Sheet1", "row": 0, "col": 0, "value": "42"}},
	}))

	msg := readUntil(t, ownerConn, TypeCellChange)
	changes, ok := msg["changes"].([]any)
	require.True(t, ok)
	require.Len(t, changes, 1)
}

func TestDisconnectAnnouncedOnce(t *testing.T) {
	h := newHarness(t, testDoc(), "owner", "editor")
	ownerConn := h.dial(t, "document", "d1", "owner")
	editorConn := h.dial(t, "document", "d1", "editor")
	readUntil(t, ownerConn, TypeUserJoined)

	require.NoError(t, editorConn.Close())

	msg := readUntil(t, ownerConn, TypeUserLeft)
	assert.Equal(t, "editor", msg["user_id"])
	assertSilent(t, ownerConn)

	require.Eventually(t, func() bool {
		return len(h.hub.Members("document:d1")) == 1
	}, time.Second, 10*time.Millisecond)
}

package ws

import "docshub/internal/services/collab"

// Wire protocol: every frame is a flat tagged object {"type": ..., ...}.
// The tag is decoded once at the boundary; unknown tags are dropped.
const (
	// client-sent
	TypeContentUpdate   = "content_update"
	TypeTitleUpdate     = "title_update"
	TypeCursorUpdate    = "cursor_update"
	TypeSelectionUpdate = "selection_update"
	TypeCellUpdate      = "cell_update"

	// server-generated only
	TypeSelectionChange = "selection_change"
	TypeCellChange      = "cell_change"
	TypeDataUpdate      = "data_update"
	TypeUserJoined      = "user_joined"
	TypeUserLeft        = "user_left"
	TypeActiveUsers     = "active_users"
)

type ContentUpdate struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

type TitleUpdate struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// CursorUpdate carries an opaque position descriptor; the engine relays
// it without interpreting the shape.
type CursorUpdate struct {
	Type     string `json:"type"`
	Position any    `json:"position"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

type SelectionUpdate struct {
	Type      string `json:"type"`
	Selection any    `json:"selection"`
	UserID    string `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
}

type CellUpdate struct {
	Type     string              `json:"type"`
	Changes  []collab.CellChange `json:"changes"`
	UserID   string              `json:"user_id,omitempty"`
	Username string              `json:"username,omitempty"`
}

type DataUpdate struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type UserEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type ActiveUsers struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

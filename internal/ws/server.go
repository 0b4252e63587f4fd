package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"docshub/internal/services/collab"
	"docshub/internal/services/permission"
	"docshub/internal/services/resource"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 20 * time.Second // must be < pongWait
	maxFrameSize = 1 << 20          // full document payloads pass through
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true }, // dev-only
}

// Server is the connection gateway: it authorizes each connect, owns the
// per-connection receive loop, and wires inbound frames to the router.
type Server struct {
	hub       *Hub
	router    *Router
	presence  *presenceNotifier
	resSvc    resource.IResourceService
	permSvc   permission.IPermissionService
	collabSvc collab.ICollabService
}

func NewServer(h *Hub, resSvc resource.IResourceService,
	permSvc permission.IPermissionService, collabSvc collab.ICollabService) *Server {

	srv := &Server{
		hub:       h,
		router:    NewRouter(),
		presence:  &presenceNotifier{hub: h},
		resSvc:    resSvc,
		permSvc:   permSvc,
		collabSvc: collabSvc,
	}
	srv.registerHandlers()
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

func (s *Server) Handle(ginCtx *gin.Context) {
	kind, err := resource.ParseKind(ginCtx.Param("kind"))
	if err != nil {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "unknown resource kind"})
		return
	}
	ref := resource.Ref{Kind: kind, ID: ginCtx.Param("id")}

	// Identity comes from the transport layer; the gateway only does
	// authorization, never authentication.
	userID := ginCtx.Query("user_id")
	username := ginCtx.DefaultQuery("username", userID)
	if ref.ID == "" || userID == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "resource id and user_id are required"})
		return
	}

	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxFrameSize)

	// Missing resource and denied access take the same exit: close with
	// no detail, so callers cannot probe which one it was.
	res, err := s.resSvc.Get(ginCtx.Request.Context(), ref)
	if err != nil {
		if !errors.Is(err, resource.ErrNotFound) {
			zap.L().Warn("ws.connect_lookup", zap.Error(err))
		}
		_ = rawConn.Close()
		return
	}
	ok, err := s.permSvc.Authorize(ginCtx.Request.Context(), res, userID, permission.RoleViewer)
	if err != nil || !ok {
		_ = rawConn.Close()
		return
	}

	// ------------------- client joined -------------------
	sess := &Session{
		UserID:   userID,
		Username: username,
		Ref:      ref,
		conn:     &wsConn{rawConn: rawConn},
	}
	s.hub.Join(ref.Key(), sess)

	if err := s.pushInitialState(sess, res); err != nil {
		zap.L().Warn("ws.initial_state", zap.Error(err))
	}
	s.presence.announceJoin(ref.Key(), sess)

	go s.reader(sess, rawConn)
	go s.pinger(sess, rawConn)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *Server) registerHandlers() {
	Register(s.router, TypeContentUpdate,
		func(ctx context.Context, sess *Session, req ContentUpdate) error {
			s.hub.Broadcast(sess.Ref.Key(), sess, ContentUpdate{
				Type:     TypeContentUpdate,
				Content:  req.Content,
				UserID:   sess.UserID,
				Username: sess.Username,
			})
			s.stage(ctx, sess, collab.Fields{Content: &req.Content})
			return nil
		},
	)

	Register(s.router, TypeTitleUpdate,
		func(ctx context.Context, sess *Session, req TitleUpdate) error {
			s.hub.Broadcast(sess.Ref.Key(), sess, TitleUpdate{
				Type:     TypeTitleUpdate,
				Title:    req.Title,
				UserID:   sess.UserID,
				Username: sess.Username,
			})
			s.stage(ctx, sess, collab.Fields{Title: &req.Title})
			return nil
		},
	)

	Register(s.router, TypeCursorUpdate,
		func(_ context.Context, sess *Session, req CursorUpdate) error {
			s.hub.Broadcast(sess.Ref.Key(), sess, CursorUpdate{
				Type:     TypeCursorUpdate,
				Position: req.Position,
				UserID:   sess.UserID,
				Username: sess.Username,
			})
			return nil
		},
	)

	Register(s.router, TypeSelectionUpdate,
		func(_ context.Context, sess *Session, req SelectionUpdate) error {
			s.hub.Broadcast(sess.Ref.Key(), sess, SelectionUpdate{
				Type:      TypeSelectionChange,
				Selection: req.Selection,
				UserID:    sess.UserID,
				Username:  sess.Username,
			})
			return nil
		},
	)

	Register(s.router, TypeCellUpdate,
		func(ctx context.Context, sess *Session, req CellUpdate) error {
			s.hub.Broadcast(sess.Ref.Key(), sess, CellUpdate{
				Type:     TypeCellChange,
				Changes:  req.Changes,
				UserID:   sess.UserID,
				Username: sess.Username,
			})
			if err := s.collabSvc.ApplyCellChanges(ctx, sess.Ref, sess.UserID, req.Changes); err != nil {
				// Best-effort: peers already saw the change live.
				zap.L().Debug("ws.stage_cells", zap.String("user", sess.UserID), zap.Error(err))
			}
			return nil
		},
	)
}

// stage hands a content-bearing edit to the persistence coordinator.
// Denied or failed saves are logged only; the broadcast already went out
// and the sender is never told (documented eventual-consistency gap).
func (s *Server) stage(ctx context.Context, sess *Session, fields collab.Fields) {
	if err := s.collabSvc.Save(ctx, sess.Ref, sess.UserID, fields); err != nil {
		zap.L().Debug("ws.stage", zap.String("user", sess.UserID), zap.Error(err))
	}
}

// pushInitialState sends the joiner the current resource state plus the
// presence roster.
func (s *Server) pushInitialState(sess *Session, res *resource.ResourceDTO) error {
	switch sess.Ref.Kind {
	case resource.KindSpreadsheet:
		data := res.Content
		if data == "" {
			data = `{"sheets":[{"name":"Sheet1","data":[[]]}]}`
		}
		if err := s.send(sess, DataUpdate{Type: TypeDataUpdate, Data: json.RawMessage(data)}); err != nil {
			return err
		}
	default:
		content := res.Content
		if content == "" {
			content = "<p></p>"
		}
		if err := s.send(sess, ContentUpdate{Type: TypeContentUpdate, Content: content}); err != nil {
			return err
		}
	}
	if err := s.send(sess, TitleUpdate{Type: TypeTitleUpdate, Title: res.Title}); err != nil {
		return err
	}
	return s.send(sess, ActiveUsers{Type: TypeActiveUsers, Users: s.presence.activeUsers(sess.Ref.Key())})
}

func (s *Server) send(sess *Session, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sess.conn.write(data)
}

func (s *Server) reader(sess *Session, rawConn *websocket.Conn) {
	defer func() {
		s.hub.Leave(sess.Ref.Key(), sess)
		s.presence.announceLeave(sess.Ref.Key(), sess)
		_ = rawConn.Close()
	}()

	_ = rawConn.SetReadDeadline(time.Now().Add(pongWait))
	rawConn.SetPongHandler(func(string) error {
		return rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := rawConn.ReadMessage()
		if err != nil {
			return // client closed or errored
		}

		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
			// Malformed frame: drop, keep the connection.
			zap.L().Debug("ws.bad_frame", zap.String("user", sess.UserID))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1900*time.Millisecond)
		err = s.router.dispatch(ctx, sess, env.Type, raw)
		cancel()
		if err != nil {
			// Unknown type or undecodable payload: same treatment.
			zap.L().Debug("ws.dropped_frame",
				zap.String("type", env.Type), zap.String("user", sess.UserID), zap.Error(err))
		}
	}
}

func (s *Server) pinger(sess *Session, rawConn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := sess.conn.ping(); err != nil {
			_ = rawConn.Close()
			return
		}
	}
}

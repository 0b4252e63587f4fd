package resource

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kind discriminates the two resource variants sharing one store.
type Kind string

const (
	KindDocument    Kind = "document"
	KindSpreadsheet Kind = "spreadsheet"
)

var ErrUnknownKind = errors.New("unknown resource kind")

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindDocument, KindSpreadsheet:
		return Kind(s), nil
	}
	return "", ErrUnknownKind
}

// Ref identifies one resource; also the room key for live sessions.
type Ref struct {
	Kind Kind
	ID   string
}

func (r Ref) Key() string { return string(r.Kind) + ":" + r.ID }

type ResourceDTO struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"` // HTML blob (document) or JSON grid (spreadsheet)
	LastEditedBy string    `json:"last_edited_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fields is a partial update; nil members are left untouched.
type Fields struct {
	Title        *string
	Content      *string
	LastEditedBy *string
}

var ErrNotFound = errors.New("resource not found")
var ErrAlreadyExists = errors.New("resource already exists")

const (
	redisResourceKeyPrefix = "res:"
	redisDirtySet          = "res:dirty"
)

type IResourceService interface {
	Get(ctx context.Context, ref Ref) (*ResourceDTO, error)
	Create(ctx context.Context, ref Ref, ownerID, title, content string) (*ResourceDTO, error)
	Update(ctx context.Context, ref Ref, fields Fields) error
	Delete(ctx context.Context, ref Ref) error
	List(ctx context.Context, kind Kind, ownerID string, limit, offset int) ([]ResourceDTO, error)
}

type resourceService struct {
	rdc *redis.Client
	db  *sql.DB
}

func NewResourceService(rdc *redis.Client, db *sql.DB) IResourceService {
	return &resourceService{rdc: rdc, db: db}
}

// Get reads the durable row and overlays any staged live edits from the
// Redis hash, so "current state on join" reflects what peers saw last.
func (svc *resourceService) Get(ctx context.Context, ref Ref) (*ResourceDTO, error) {
	const q = `SELECT id, kind, owner_id, title, content,
	                  coalesce(last_edited_by,''), created_at, updated_at
	             FROM resources WHERE kind = $1 AND id = $2`
	row := svc.db.QueryRowContext(ctx, q, ref.Kind, ref.ID)
	dto := &ResourceDTO{}
	if err := row.Scan(&dto.ID, &dto.Kind, &dto.OwnerID,
		&dto.Title, &dto.Content, &dto.LastEditedBy,
		&dto.CreatedAt, &dto.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// Fast-path overlay: staged edits not yet flushed to Postgres.
	staged, _ := svc.rdc.HGetAll(ctx, redisResourceKeyPrefix+ref.Key()).Result()
	if len(staged) != 0 {
		if v, ok := staged["title"]; ok {
			dto.Title = v
		}
		if v, ok := staged["content"]; ok {
			dto.Content = v
		}
		if v, ok := staged["leb"]; ok {
			dto.LastEditedBy = v
		}
	}
	return dto, nil
}

func (svc *resourceService) Create(ctx context.Context, ref Ref, ownerID, title, content string) (*ResourceDTO, error) {
	const q = `INSERT INTO resources (kind, id, owner_id, title, content)
	                VALUES ($1, $2, $3, $4, $5)
	           ON CONFLICT (kind, id) DO NOTHING
	           RETURNING created_at, updated_at`
	dto := &ResourceDTO{
		ID: ref.ID, Kind: ref.Kind,
		OwnerID: ownerID, Title: title, Content: content,
	}
	err := svc.db.QueryRowContext(ctx, q, ref.Kind, ref.ID, ownerID, title, content).
		Scan(&dto.CreatedAt, &dto.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// Update writes straight through to Postgres and invalidates any staged
// hash; the direct write is newer than whatever the flusher was holding.
func (svc *resourceService) Update(ctx context.Context, ref Ref, fields Fields) error {
	const q = `UPDATE resources
	              SET title          = coalesce($3, title),
	                  content        = coalesce($4, content),
	                  last_edited_by = coalesce($5, last_edited_by),
	                  updated_at     = now()
	            WHERE kind = $1 AND id = $2`
	res, err := svc.db.ExecContext(ctx, q, ref.Kind, ref.ID,
		fields.Title, fields.Content, fields.LastEditedBy)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	pipe := svc.rdc.TxPipeline()
	pipe.Del(ctx, redisResourceKeyPrefix+ref.Key())
	pipe.SRem(ctx, redisDirtySet, ref.Key())
	_, _ = pipe.Exec(ctx)
	return nil
}

func (svc *resourceService) Delete(ctx context.Context, ref Ref) error {
	res, err := svc.db.ExecContext(ctx,
		`DELETE FROM resources WHERE kind = $1 AND id = $2`, ref.Kind, ref.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	pipe := svc.rdc.TxPipeline()
	pipe.Del(ctx, redisResourceKeyPrefix+ref.Key())
	pipe.SRem(ctx, redisDirtySet, ref.Key())
	_, _ = pipe.Exec(ctx)
	return nil
}

func (svc *resourceService) List(ctx context.Context, kind Kind, ownerID string,
	limit, offset int) ([]ResourceDTO, error) {

	if limit == 0 {
		limit = 10
	}
	const q = `SELECT id, kind, owner_id, title, content,
	                  coalesce(last_edited_by,''), created_at, updated_at
	             FROM resources
	            WHERE kind = $1 AND owner_id = $2
	            ORDER BY updated_at DESC LIMIT $3 OFFSET $4`
	rows, err := svc.db.QueryContext(ctx, q, kind, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]ResourceDTO, 0, limit)
	for rows.Next() {
		var r ResourceDTO
		if err := rows.Scan(&r.ID, &r.Kind, &r.OwnerID,
			&r.Title, &r.Content, &r.LastEditedBy,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

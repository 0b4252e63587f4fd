package version

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"docshub/internal/services/resource"

	"github.com/jackc/pgx/v5/pgconn"
)

type VersionDTO struct {
	ResourceID  string    `json:"resource_id"`
	Number      int       `json:"version_number"`
	Content     string    `json:"content"`
	AuthorID    string    `json:"author_id"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

var ErrVersionNotFound = errors.New("version not found")

type IVersionService interface {
	Latest(ctx context.Context, ref resource.Ref) (int, error)
	// Create appends an immutable snapshot numbered max+1 and returns
	// the new number. Numbers per resource are gap-free and never reused.
	Create(ctx context.Context, ref resource.Ref, content, authorID, description string) (int, error)
	Get(ctx context.Context, ref resource.Ref, number int) (*VersionDTO, error)
	List(ctx context.Context, ref resource.Ref, limit int) ([]VersionDTO, error)
}

type versionService struct {
	db *sql.DB
}

func NewVersionService(db *sql.DB) IVersionService {
	return &versionService{db: db}
}

func (svc *versionService) Latest(ctx context.Context, ref resource.Ref) (int, error) {
	const q = `SELECT coalesce(max(version_number), 0) FROM versions
	            WHERE resource_kind = $1 AND resource_id = $2`
	var n int
	if err := svc.db.QueryRowContext(ctx, q, ref.Kind, ref.ID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (svc *versionService) Create(ctx context.Context, ref resource.Ref,
	content, authorID, description string) (int, error) {

	// Single statement computes max+1 and inserts; the unique index on
	// (resource_kind, resource_id, version_number) catches a concurrent
	// snapshot taking the same number, in which case we recompute.
	const q = `INSERT INTO versions (resource_kind, resource_id, version_number,
	                                 content, author_id, description)
	           SELECT $1, $2, coalesce(max(version_number), 0) + 1, $3, $4, $5
	             FROM versions WHERE resource_kind = $1 AND resource_id = $2
	           RETURNING version_number`

	var n int
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		err = svc.db.QueryRowContext(ctx, q, ref.Kind, ref.ID,
			content, authorID, description).Scan(&n)
		if err == nil {
			return n, nil
		}
		if !uniqueViolation(err) {
			return 0, err
		}
	}
	return 0, err
}

func (svc *versionService) Get(ctx context.Context, ref resource.Ref, number int) (*VersionDTO, error) {
	const q = `SELECT resource_id, version_number, content, author_id,
	                  coalesce(description,''), created_at
	             FROM versions
	            WHERE resource_kind = $1 AND resource_id = $2 AND version_number = $3`
	v := &VersionDTO{}
	err := svc.db.QueryRowContext(ctx, q, ref.Kind, ref.ID, number).
		Scan(&v.ResourceID, &v.Number, &v.Content, &v.AuthorID, &v.Description, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (svc *versionService) List(ctx context.Context, ref resource.Ref, limit int) ([]VersionDTO, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `SELECT resource_id, version_number, author_id,
	                  coalesce(description,''), created_at
	             FROM versions
	            WHERE resource_kind = $1 AND resource_id = $2
	            ORDER BY version_number DESC LIMIT $3`
	rows, err := svc.db.QueryContext(ctx, q, ref.Kind, ref.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []VersionDTO
	for rows.Next() {
		var v VersionDTO
		if err := rows.Scan(&v.ResourceID, &v.Number, &v.AuthorID,
			&v.Description, &v.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

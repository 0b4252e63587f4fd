package permission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docshub/internal/notify"
	"docshub/internal/services/resource"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Role is one level of the access hierarchy.
type Role string

const (
	RoleViewer    Role = "viewer"
	RoleCommenter Role = "commenter"
	RoleEditor    Role = "editor"
	RoleOwner     Role = "owner"
)

var roleRank = map[Role]int{
	RoleViewer:    1,
	RoleCommenter: 2,
	RoleEditor:    3,
	RoleOwner:     4,
}

var ErrUnknownRole = errors.New("unknown role")

func ParseRole(s string) (Role, error) {
	if _, ok := roleRank[Role(s)]; !ok {
		return "", ErrUnknownRole
	}
	return Role(s), nil
}

// Allows reports whether r grants at least min. Unknown roles rank zero.
func (r Role) Allows(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// EffectiveRole resolves a user's role on a resource: the owner holds
// owner implicitly without a stored row; otherwise the stored role, if
// any. The second return distinguishes "no access" from a real role.
func EffectiveRole(ownerID, userID string, stored *Role) (Role, bool) {
	if ownerID == userID {
		return RoleOwner, true
	}
	if stored != nil {
		return *stored, true
	}
	return "", false
}

var (
	ErrForbidden    = errors.New("permission denied")
	ErrServiceBusy  = errors.New("service busy, try again")
	ErrSelfShare    = errors.New("cannot share with yourself")
	ErrNotPermitted = errors.New("only owner can share")
)

type PermissionDTO struct {
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type IPermissionService interface {
	// Authorize is the gate evaluated on every connect and on every
	// content-bearing message. Read-only; safe for concurrent use.
	Authorize(ctx context.Context, res *resource.ResourceDTO, userID string, min Role) (bool, error)
	GetRole(ctx context.Context, ref resource.Ref, userID string) (*Role, error)
	Grant(ctx context.Context, res *resource.ResourceDTO, granterID, granteeID string, role Role) error
	Revoke(ctx context.Context, res *resource.ResourceDTO, granterID, granteeID string) error
	List(ctx context.Context, ref resource.Ref) ([]PermissionDTO, error)
}

type permissionService struct {
	db      *sql.DB
	sink    notify.Sink
	retries int
}

func NewPermissionService(db *sql.DB, sink notify.Sink, retries int) IPermissionService {
	if retries < 1 {
		retries = 1
	}
	return &permissionService{db: db, sink: sink, retries: retries}
}

func (svc *permissionService) GetRole(ctx context.Context, ref resource.Ref, userID string) (*Role, error) {
	const q = `SELECT role FROM permissions
	            WHERE resource_kind = $1 AND resource_id = $2 AND user_id = $3`
	var r Role
	err := svc.db.QueryRowContext(ctx, q, ref.Kind, ref.ID, userID).Scan(&r)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (svc *permissionService) Authorize(ctx context.Context, res *resource.ResourceDTO,
	userID string, min Role) (bool, error) {

	if res == nil || userID == "" {
		return false, nil
	}
	var stored *Role
	if res.OwnerID != userID {
		var err error
		stored, err = svc.GetRole(ctx, resource.Ref{Kind: res.Kind, ID: res.ID}, userID)
		if err != nil {
			return false, err
		}
	}
	eff, ok := EffectiveRole(res.OwnerID, userID, stored)
	return ok && eff.Allows(min), nil
}

// Grant upserts a permission row. Concurrent grants on the same resource
// can conflict; those are retried a bounded number of times with growing
// backoff before ErrServiceBusy is surfaced to the caller.
func (svc *permissionService) Grant(ctx context.Context, res *resource.ResourceDTO,
	granterID, granteeID string, role Role) error {

	if res.OwnerID != granterID {
		return ErrNotPermitted
	}
	if granteeID == granterID || granteeID == res.OwnerID {
		return ErrSelfShare
	}
	if _, ok := roleRank[role]; !ok {
		return ErrUnknownRole
	}

	const q = `INSERT INTO permissions (resource_kind, resource_id, user_id, role)
	                VALUES ($1, $2, $3, $4)
	           ON CONFLICT (resource_kind, resource_id, user_id)
	                DO UPDATE SET role = EXCLUDED.role`

	var err error
	for attempt := 1; attempt <= svc.retries; attempt++ {
		err = svc.execTx(ctx, q, res.Kind, res.ID, granteeID, role)
		if err == nil {
			svc.sink.Notify(ctx, granteeID, "share",
				fmt.Sprintf("%s shared %q with you as %s", granterID, res.Title, role))
			return nil
		}
		if !retryable(err) {
			return err
		}
		zap.L().Warn("permission.grant_conflict",
			zap.String("resource", res.ID), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return ErrServiceBusy
}

func (svc *permissionService) Revoke(ctx context.Context, res *resource.ResourceDTO,
	granterID, granteeID string) error {

	if res.OwnerID != granterID {
		return ErrNotPermitted
	}
	const q = `DELETE FROM permissions
	            WHERE resource_kind = $1 AND resource_id = $2 AND user_id = $3`
	_, err := svc.db.ExecContext(ctx, q, res.Kind, res.ID, granteeID)
	return err
}

func (svc *permissionService) List(ctx context.Context, ref resource.Ref) ([]PermissionDTO, error) {
	const q = `SELECT user_id, role, created_at FROM permissions
	            WHERE resource_kind = $1 AND resource_id = $2
	            ORDER BY created_at`
	rows, err := svc.db.QueryContext(ctx, q, ref.Kind, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []PermissionDTO
	for rows.Next() {
		var p PermissionDTO
		if err := rows.Scan(&p.UserID, &p.Role, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (svc *permissionService) execTx(ctx context.Context, q string, args ...any) error {
	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// retryable reports whether the write failed on a transient conflict:
// serialization failure, deadlock, or a unique-key race on the upsert.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}

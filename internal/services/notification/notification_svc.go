package notification

import (
	"context"
	"database/sql"
	"time"
)

type NotificationDTO struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type INotificationService interface {
	List(ctx context.Context, recipientID string, limit int) ([]NotificationDTO, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, recipientID string, id int64) error
}

type notificationService struct {
	db *sql.DB
}

func NewNotificationService(db *sql.DB) INotificationService {
	return &notificationService{db: db}
}

func (svc *notificationService) List(ctx context.Context, recipientID string,
	limit int) ([]NotificationDTO, error) {

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	const q = `SELECT id, kind, message, read, created_at
	             FROM notifications
	            WHERE recipient_id = $1
	            ORDER BY created_at DESC LIMIT $2`
	rows, err := svc.db.QueryContext(ctx, q, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]NotificationDTO, 0, limit)
	for rows.Next() {
		var n NotificationDTO
		if err := rows.Scan(&n.ID, &n.Kind, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func (svc *notificationService) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	const q = `SELECT count(*) FROM notifications WHERE recipient_id = $1 AND read = false`
	var n int
	err := svc.db.QueryRowContext(ctx, q, recipientID).Scan(&n)
	return n, err
}

func (svc *notificationService) MarkRead(ctx context.Context, recipientID string, id int64) error {
	const q = `UPDATE notifications SET read = true WHERE recipient_id = $1 AND id = $2`
	_, err := svc.db.ExecContext(ctx, q, recipientID, id)
	return err
}

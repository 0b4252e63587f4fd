package notification

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSvc(t *testing.T) (INotificationService, sqlmock.Sqlmock) {
	t.Helper()
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewNotificationService(db), dbMock
}

func TestListNewestFirst(t *testing.T) {
	svc, dbMock := newSvc(t)

	now := time.Now()
	dbMock.ExpectQuery(regexp.QuoteMeta("SELECT id, kind, message, read, created_at")).
		WithArgs("bob", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "message", "read", "created_at"}).
			AddRow(2, "share", "alice shared Notes with you", false, now).
			AddRow(1, "share", "alice shared Budget with you", true, now.Add(-time.Hour)))

	list, err := svc.List(context.Background(), "bob", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ID)
	assert.False(t, list[0].Read)
}

func TestListClampsLimit(t *testing.T) {
	svc, dbMock := newSvc(t)

	dbMock.ExpectQuery(regexp.QuoteMeta("SELECT id, kind, message, read, created_at")).
		WithArgs("bob", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "message", "read", "created_at"}))

	_, err := svc.List(context.Background(), "bob", 10_000)
	require.NoError(t, err)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestUnreadCount(t *testing.T) {
	svc, dbMock := newSvc(t)

	dbMock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM notifications")).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := svc.UnreadCount(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	svc, dbMock := newSvc(t)

	dbMock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read = true")).
		WithArgs("bob", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.MarkRead(context.Background(), "bob", 7))
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

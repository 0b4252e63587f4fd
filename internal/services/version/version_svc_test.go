package version

import (
	"context"
	"testing"
	"time"

	"docshub/internal/services/resource"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = resource.Ref{Kind: resource.KindDocument, ID: "d1"}

func newSvc(t *testing.T) (IVersionService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewVersionService(db), mock
}

func TestLatestEmptyIsZero(t *testing.T) {
	svc, mock := newSvc(t)

	mock.ExpectQuery("SELECT coalesce").
		WithArgs("document", "d1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))

	n, err := svc.Latest(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCreateSequence(t *testing.T) {
	svc, mock := newSvc(t)

	for want := 1; want <= 3; want++ {
		mock.ExpectQuery("INSERT INTO versions").
			WithArgs("document", "d1", "body", "alice", "save").
			WillReturnRows(sqlmock.NewRows([]string{"version_number"}).AddRow(want))

		n, err := svc.Create(context.Background(), ref, "body", "alice", "save")
		require.NoError(t, err)
		assert.Equal(t, want, n, "numbers are 1,2,3,... with no gaps")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	svc, mock := newSvc(t)
	dup := &pgconn.PgError{Code: "23505"}

	mock.ExpectQuery("INSERT INTO versions").WillReturnError(dup)
	mock.ExpectQuery("INSERT INTO versions").
		WithArgs("document", "d1", "body", "alice", "").
		WillReturnRows(sqlmock.NewRows([]string{"version_number"}).AddRow(2))

	n, err := svc.Create(context.Background(), ref, "body", "alice", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	svc, mock := newSvc(t)

	mock.ExpectQuery("SELECT resource_id, version_number, content").
		WithArgs("document", "d1", 9).
		WillReturnRows(sqlmock.NewRows([]string{"resource_id"}))

	_, err := svc.Get(context.Background(), ref, 9)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestGetReturnsImmutableCopy(t *testing.T) {
	svc, mock := newSvc(t)

	rows := sqlmock.NewRows([]string{
		"resource_id", "version_number", "content", "author_id", "description", "created_at",
	}).AddRow("d1", 1, "<p>v1</p>", "alice", "first", time.Now())

	mock.ExpectQuery("SELECT resource_id, version_number, content").
		WithArgs("document", "d1", 1).
		WillReturnRows(rows)

	v, err := svc.Get(context.Background(), ref, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Number)
	assert.Equal(t, "<p>v1</p>", v.Content)
	assert.Equal(t, "alice", v.AuthorID)
}

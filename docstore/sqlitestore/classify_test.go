package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/amonks/daybook/docstore"
)

type sqliteError struct{ code int }

func (e sqliteError) Error() string { return fmt.Sprintf("sqlite error %d", e.code) }
func (e sqliteError) Code() int     { return e.code }

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "sqlite"), Options{PollInterval: -1}), mock
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind docstore.Kind
	}{
		{name: "no rows", err: sql.ErrNoRows, kind: docstore.KindNotFound},
		{name: "disk full", err: sqliteError{13}, kind: docstore.KindQuotaExceeded},
		{name: "read only", err: sqliteError{8}, kind: docstore.KindPermissionDenied},
		{name: "permission", err: sqliteError{3}, kind: docstore.KindPermissionDenied},
		{name: "corrupt", err: sqliteError{11}, kind: docstore.KindCorruption},
		{name: "not a database", err: sqliteError{26}, kind: docstore.KindCorruption},
		{name: "busy", err: sqliteError{5}, kind: docstore.KindNetwork},
		{name: "busy snapshot", err: sqliteError{517}, kind: docstore.KindNetwork},
		{name: "io error write", err: sqliteError{778}, kind: docstore.KindNetwork},
		{name: "constraint", err: sqliteError{19}, kind: docstore.KindUnknown},
		{name: "bad connection", err: sql.ErrConnDone, kind: docstore.KindNetwork},
		{name: "wrapped", err: fmt.Errorf("exec: %w", sqliteError{13}), kind: docstore.KindQuotaExceeded},
		{name: "plain", err: errors.New("boom"), kind: docstore.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("get", "a", tc.err)
			require.Equal(t, tc.kind, docstore.KindOf(err))
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestClassifyPassesThrough(t *testing.T) {
	require.NoError(t, classify("get", "a", nil))

	conflict := docstore.NewError(docstore.KindConflict, "put", "a", nil)
	require.Same(t, conflict, classify("put", "a", conflict))

	err := classify("get", "a", context.Canceled)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, docstore.KindUnknown, docstore.KindOf(err))
}

func TestGetClassifiesDriverErrors(t *testing.T) {
	store, mock := newMockStore(t)
	query := regexp.QuoteMeta("SELECT id, rev, body FROM documents WHERE id = ?")

	mock.ExpectQuery(query).WithArgs("a").WillReturnError(sqliteError{11})
	_, err := store.Get(context.Background(), "a")
	require.ErrorIs(t, err, docstore.ErrCorruption)

	mock.ExpectQuery(query).WithArgs("b").WillReturnRows(sqlmock.NewRows([]string{"id", "rev", "body"}))
	_, err = store.Get(context.Background(), "b")
	require.ErrorIs(t, err, docstore.ErrNotFound)

	mock.ExpectQuery(query).WithArgs("c").
		WillReturnRows(sqlmock.NewRows([]string{"id", "rev", "body"}).AddRow("c", "1-x", `{"title":"c"}`))
	doc, err := store.Get(context.Background(), "c")
	require.NoError(t, err)
	require.Equal(t, "1-x", doc.Rev)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, rev, body FROM documents WHERE id = ?")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "rev", "body"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents (id,rev,body) VALUES (?,?,?)")).
		WillReturnError(sqliteError{13})
	mock.ExpectRollback()

	_, err := store.Put(context.Background(), docstore.Document{ID: "a", Body: []byte(`{"title":"a"}`)})
	require.ErrorIs(t, err, docstore.ErrQuotaExceeded)
	require.False(t, docstore.IsRetryable(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

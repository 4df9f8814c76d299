package sqlitestore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	sqlite3 "modernc.org/sqlite/lib"

	"github.com/amonks/daybook/docstore"
)

// coded is implemented by driver errors that carry an SQLite result code.
type coded interface {
	Code() int
}

// classify maps a database error onto the store error taxonomy.
func classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *docstore.Error
	if errors.As(err, &storeErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.NewError(docstore.KindNotFound, op, id, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return docstore.NewError(docstore.KindNetwork, op, id, err)
	}
	var withCode coded
	if errors.As(err, &withCode) {
		return docstore.NewError(kindForCode(withCode.Code()), op, id, err)
	}
	return docstore.NewError(docstore.KindUnknown, op, id, err)
}

// kindForCode classifies by primary result code; extended codes keep the
// primary code in their low byte.
func kindForCode(code int) docstore.Kind {
	switch code & 0xff {
	case sqlite3.SQLITE_FULL:
		return docstore.KindQuotaExceeded
	case sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY, sqlite3.SQLITE_AUTH:
		return docstore.KindPermissionDenied
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return docstore.KindCorruption
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
		return docstore.KindNetwork
	default:
		return docstore.KindUnknown
	}
}

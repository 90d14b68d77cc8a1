// Package dummy provides an in-memory storage backend for tests and local
// hacking. Transactions are serialized on a single mutex; Rollback restores a
// snapshot taken at BeginTx.
package dummy

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/campushq/backend/core"
	"github.com/campushq/backend/core/library"
	"github.com/campushq/backend/core/notification"
	"github.com/campushq/backend/core/user"
)

var errRawSQL = errors.New("dummy backend does not speak SQL")

type DB struct {
	txMu sync.Mutex // one transaction at a time

	dataMu        sync.RWMutex
	users         map[string]user.User
	books         map[string]library.Book
	issues        map[string]library.Issue
	notifications map[string]notification.Notification
}

var _ core.DB = (*DB)(nil) // interface compliance check

func NewDB() *DB {
	return &DB{
		users:         make(map[string]user.User),
		books:         make(map[string]library.Book),
		issues:        make(map[string]library.Issue),
		notifications: make(map[string]notification.Notification),
	}
}

// core.DBExecutor; repositories never issue raw SQL against the dummy backend.

func (db *DB) Exec(string, ...interface{}) (sql.Result, error) { return nil, errRawSQL }
func (db *DB) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errRawSQL
}
func (db *DB) Query(string, ...interface{}) (*sql.Rows, error) { return nil, errRawSQL }
func (db *DB) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errRawSQL
}
func (db *DB) QueryRow(string, ...interface{}) *sql.Row { return nil }
func (db *DB) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.DBTransactor, error) {
	db.txMu.Lock()
	return &dummyTx{db: db, snapshot: db.snapshot()}, nil
}

func (db *DB) snapshot() *state {
	db.dataMu.RLock()
	defer db.dataMu.RUnlock()
	s := &state{
		users:         make(map[string]user.User, len(db.users)),
		books:         make(map[string]library.Book, len(db.books)),
		issues:        make(map[string]library.Issue, len(db.issues)),
		notifications: make(map[string]notification.Notification, len(db.notifications)),
	}
	for k, v := range db.users {
		s.users[k] = v
	}
	for k, v := range db.books {
		s.books[k] = v
	}
	for k, v := range db.issues {
		s.issues[k] = v
	}
	for k, v := range db.notifications {
		s.notifications[k] = v
	}
	return s
}

func (db *DB) restore(s *state) {
	db.dataMu.Lock()
	defer db.dataMu.Unlock()
	db.users = s.users
	db.books = s.books
	db.issues = s.issues
	db.notifications = s.notifications
}

type state struct {
	users         map[string]user.User
	books         map[string]library.Book
	issues        map[string]library.Issue
	notifications map[string]notification.Notification
}

type dummyTx struct {
	db       *DB
	snapshot *state
	done     bool
}

var _ core.DBTransactor = (*dummyTx)(nil)

func (tx *dummyTx) Exec(string, ...interface{}) (sql.Result, error) { return nil, errRawSQL }
func (tx *dummyTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errRawSQL
}
func (tx *dummyTx) Query(string, ...interface{}) (*sql.Rows, error) { return nil, errRawSQL }
func (tx *dummyTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errRawSQL
}
func (tx *dummyTx) QueryRow(string, ...interface{}) *sql.Row { return nil }
func (tx *dummyTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

func (tx *dummyTx) Commit() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.db.txMu.Unlock()
	return nil
}

func (tx *dummyTx) Rollback() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.db.restore(tx.snapshot)
	tx.db.txMu.Unlock()
	return nil
}

package inmemdb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/board"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
)

var errNoSQL = errors.New("inmemdb: SQL is not supported")

type (
	// DB is an in-process store. One lock guards every table, so a transaction
	// sees and writes all of them atomically.
	DB struct {
		mu sync.RWMutex
		tables
	}

	tables struct {
		users       map[string]user.User
		courses     map[string]course.Course
		enrollments map[string]course.Enrollment
		posts       map[string]board.Post
		comments    map[string]board.Comment
		attachments map[string]board.Attachment
	}

	// Tx is handed to functions run by InTx. Repositories that receive it
	// work on the tables directly, under the lock InTx holds.
	Tx struct {
		db *DB
	}
)

var (
	_ core.Transactor = (*DB)(nil) // interface compliance check
	_ core.DBExecutor = (*Tx)(nil) // interface compliance check
)

func Open() *DB {
	return &DB{tables: newTables()}
}

func newTables() tables {
	return tables{
		users:       make(map[string]user.User),
		courses:     make(map[string]course.Course),
		enrollments: make(map[string]course.Enrollment),
		posts:       make(map[string]board.Post),
		comments:    make(map[string]board.Comment),
		attachments: make(map[string]board.Attachment),
	}
}

func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.courses {
		c.courses[k] = v
	}
	for k, v := range t.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range t.posts {
		c.posts[k] = v
	}
	for k, v := range t.comments {
		c.comments[k] = v
	}
	for k, v := range t.attachments {
		c.attachments[k] = v
	}
	return c
}

// InTx runs fn holding the store lock. The tables are restored if fn fails or panics.
func (db *DB) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.tables.clone()
	defer func() {
		if p := recover(); p != nil {
			db.tables = snapshot
			panic(p)
		}
	}()

	if err := fn(&Tx{db: db}); err != nil {
		db.tables = snapshot
		return err
	}
	return nil
}

// Truncate empties every table.
func (db *DB) Truncate() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables = newTables()
}

// read locks db for reading unless exec is a Tx of db, and returns the matching unlock func.
func (db *DB) read(exec []core.DBExecutor) func() {
	if db.inTx(exec) {
		return func() {}
	}
	db.mu.RLock()
	return db.mu.RUnlock
}

func (db *DB) write(exec []core.DBExecutor) func() {
	if db.inTx(exec) {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

func (db *DB) inTx(exec []core.DBExecutor) bool {
	if len(exec) == 0 {
		return false
	}
	tx, ok := exec[0].(*Tx)
	return ok && tx.db == db
}

func (*Tx) Exec(string, ...interface{}) (sql.Result, error) { return nil, errNoSQL }

func (*Tx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNoSQL
}

func (*Tx) Query(string, ...interface{}) (*sql.Rows, error) { return nil, errNoSQL }

func (*Tx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (*Tx) QueryRow(string, ...interface{}) *sql.Row { return nil }

func (*Tx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }

// Dashdb is the durable time-series store for PV and heating samples plus
// the derived yield history. Writes are serialised inside the process;
// SQLite runs in WAL mode so readers never wait on the writer.
package dashdb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/NotCoffee418/dbmigrator"
	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/logging"
	"github.com/NotCoffee418/homedash/pkg/pathing"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const busyTimeoutMs = 5000

// Store is one handle onto the database file.
type Store struct {
	db    *sqlx.DB
	path  string
	clock timebase.Clock
	log   *logrus.Entry

	writeMu sync.Mutex

	closeMu sync.Mutex
	closed  bool
}

var (
	sharedMu sync.Mutex
	shared   *Store
)

// Open creates or opens the database at path and brings the schema up to
// date. A nil clock means the system clock.
func Open(path string, clock timebase.Clock) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, faults.New(faults.StoreWrite, "database path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, faults.Wrapf(faults.StoreWrite, err, "resolve database path")
	}
	if clock == nil {
		clock = timebase.SystemClock{}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)"+
		"&_pragma=journal_mode(WAL)"+
		"&_pragma=cache_size(-32000)"+
		"&_pragma=mmap_size(67108864)"+
		"&_pragma=temp_store(MEMORY)",
		abs, busyTimeoutMs)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, faults.Wrapf(faults.StoreWrite, err, "open sqlite")
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, faults.Wrapf(faults.StoreWrite, err, "ping sqlite")
	}

	s := &Store{
		db:    db,
		path:  abs,
		clock: clock,
		log:   logging.For("dashdb"),
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return faults.Wrapf(faults.StoreWrite, err, "begin schema")
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return faults.Wrapf(faults.StoreWrite, err, fmt.Sprintf("schema statement %d", i+1))
		}
	}
	for _, col := range additiveColumns {
		if err := ensureColumn(ctx, tx, col.table, col.column, col.decl); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return faults.Wrapf(faults.StoreWrite, err, "commit schema")
	}

	// Indexes and later additive changes
	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		s.db.DB,
		migrationFS,
		"migrations",
	)
	return nil
}

func ensureColumn(ctx context.Context, tx *sqlx.Tx, table, column, decl string) error {
	var names []string
	err := tx.SelectContext(ctx, &names,
		"SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return faults.Wrapf(faults.StoreWrite, err, "inspect "+table)
	}
	for _, name := range names {
		if name == column {
			return nil
		}
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return faults.Wrapf(faults.StoreWrite, err, "add column "+column)
	}
	return nil
}

// Path is the absolute path of the database file.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying handle for callers that need raw queries.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close releases the handle. Calling it again is a no-op.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

// write runs fn under the write mutex, retrying while SQLite reports the
// file as busy.
func (s *Store) write(fn func() error) error {
	if s.isClosed() {
		return faults.New(faults.StoreWrite, "store closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 3)
	err := backoff.Retry(func() error {
		err := fn()
		if err != nil && !isBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	return faults.Wrap(faults.StoreWrite, err)
}

// writeTx is write with fn running inside one transaction.
func (s *Store) writeTx(fn func(tx *sqlx.Tx) error) error {
	return s.write(func() error {
		tx, err := s.db.Beginx()
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (s *Store) readErr(err error) error {
	if err == nil || err == sql.ErrNoRows {
		return nil
	}
	return faults.Wrap(faults.StoreRead, err)
}

// Shared returns the process-wide store, opening the default database
// on first use.
func Shared() (*Store, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return shared, nil
	}
	s, err := Open(pathing.GetDbPath(), nil)
	if err != nil {
		return nil, err
	}
	shared = s
	return shared, nil
}

// SetShared installs s as the process-wide store. The previous one, if
// any, is not closed.
func SetShared(s *Store) {
	sharedMu.Lock()
	shared = s
	sharedMu.Unlock()
}

// CloseShared closes and forgets the process-wide store.
func CloseShared() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		return nil
	}
	err := shared.Close()
	shared = nil
	return err
}

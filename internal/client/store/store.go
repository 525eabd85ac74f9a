// Package store owns the local SQLite database of the client. It is opened
// once per process and shared by the CLI, the record services and the sync
// orchestrator through reference counting.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/tripkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/records"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/users"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/filex"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Repositories gives access to the collections of the local store.
type Repositories interface {
	Records() records.Repository
	Users() users.Repository
	Metadata() metadata.Repository
}

// Handle is a shared store that a unit of work holds while it runs.
type Handle interface {
	Repositories
	Acquire() error
	Release() error
}

// Store is the local store service. The zero value is not usable; call Open.
type Store struct {
	mu      sync.Mutex
	db      *sql.DB
	refs    int
	closing bool
	closed  bool
	// drained is closed once the database is closed after a deferred Close.
	drained  chan struct{}
	closeErr error

	records  *records.SQLiteRepository
	users    *users.SQLiteRepository
	metadata *metadata.SQLiteRepository
}

// Open opens (creating if needed) the database at dsn and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := filex.EnsureParentDir(dsn); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrLocalStore, err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", common.ErrLocalStore, dsn, err)
	}
	// One connection serializes writers and keeps :memory: databases whole.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", common.ErrLocalStore, err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %w", common.ErrLocalStore, err)
	}

	s := &Store{
		db:       db,
		records:  records.NewSQLiteRepository(db),
		users:    users.NewSQLiteRepository(db),
		metadata: metadata.NewSQLiteRepository(db),
	}
	if _, err := s.DeviceID(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for maintenance statements.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Records() records.Repository   { return s.records }
func (s *Store) Users() users.Repository       { return s.users }
func (s *Store) Metadata() metadata.Repository { return s.metadata }

// Acquire registers a user of the store. Every successful Acquire must be
// paired with Release.
func (s *Store) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing || s.closed {
		return fmt.Errorf("%w: store is closed", common.ErrLocalStore)
	}
	s.refs++
	return nil
}

// Release drops a reference taken with Acquire. When Close is waiting, the
// last Release closes the database and wakes it.
func (s *Store) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return fmt.Errorf("%w: release without acquire", common.ErrLocalStore)
	}
	s.refs--
	if s.refs == 0 && s.closing && !s.closed {
		s.closeErr = s.closeLocked()
		close(s.drained)
	}
	return nil
}

// Close stops new Acquire calls, waits until every reference is released
// and closes the database. It must not be called while holding a reference.
// Later calls wait the same way and return nil.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closing {
		drained := s.drained
		s.mu.Unlock()
		<-drained
		return nil
	}
	s.closing = true
	s.drained = make(chan struct{})
	if s.refs == 0 {
		s.closeErr = s.closeLocked()
		close(s.drained)
		s.mu.Unlock()
		return s.closeErr
	}
	drained := s.drained
	s.mu.Unlock()

	<-drained
	return s.closeErr
}

// Refs returns the number of outstanding references.
func (s *Store) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Closed reports whether the database has been closed.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) closeLocked() error {
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", common.ErrLocalStore, err)
	}
	return nil
}

// DeviceID returns the id of this installation, generating it on first use.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	v, err := s.metadata.Get(ctx, metadata.KeyDeviceID)
	if err != nil {
		return "", err
	}
	if v != nil {
		return string(v), nil
	}
	id := uuid.NewString()
	if err := s.metadata.Set(ctx, metadata.KeyDeviceID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

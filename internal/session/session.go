// Package session pairs the opening of a table with its teardown for the
// lifetime of a single request.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/user/skyd/internal/types"
)

var ErrClosed = errors.New("session already closed")

// Session holds an open table and the database handle it was created from.
type Session struct {
	Database types.Database
	Table    types.Table

	mu     sync.Mutex
	closed bool
}

// Open opens the database directory rootPath/database through engine and
// opens table within it. On failure every handle created so far is released
// and no session is returned.
func Open(ctx context.Context, engine types.Engine, rootPath, database, table string) (*Session, error) {
	db, err := engine.OpenDatabase(filepath.Join(rootPath, database))
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", database, err)
	}

	tbl, err := db.Table(table)
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("create table %s: %w", table, err),
			releaseDatabase(db),
		)
	}

	if err := tbl.Open(ctx); err != nil {
		return nil, errors.Join(
			fmt.Errorf("open table %s: %w", table, err),
			closeTable(tbl),
			releaseTable(tbl),
			releaseDatabase(db),
		)
	}

	return &Session{Database: db, Table: tbl}, nil
}

// Close closes the table, releases the table handle and releases the
// database handle, in that order. Every step is attempted even if an earlier
// one fails.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	return errors.Join(
		closeTable(s.Table),
		releaseTable(s.Table),
		releaseDatabase(s.Database),
	)
}

// With opens a session, runs fn and closes the session on every exit path.
// A close failure is joined with fn's error.
func With(ctx context.Context, engine types.Engine, rootPath, database, table string, fn func(*Session) error) (err error) {
	s, err := Open(ctx, engine, rootPath, database, table)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close session: %w", cerr))
		}
	}()
	return fn(s)
}

func closeTable(t types.Table) error {
	if err := t.Close(); err != nil {
		return fmt.Errorf("close table %s: %w", t.Name(), err)
	}
	return nil
}

func releaseTable(t types.Table) error {
	if err := t.Release(); err != nil {
		return fmt.Errorf("release table %s: %w", t.Name(), err)
	}
	return nil
}

func releaseDatabase(db types.Database) error {
	if err := db.Release(); err != nil {
		return fmt.Errorf("release database %s: %w", db.Path(), err)
	}
	return nil
}

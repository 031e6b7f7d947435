package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/user/skyd/internal/types"
)

var (
	ErrReleased       = errors.New("handle already released")
	ErrTablesAttached = errors.New("database has attached tables")
	ErrTableOpen      = errors.New("table is still open")
	ErrNotOpen        = errors.New("table is not open")
)

// Engine creates database handles. It holds no state; every handle it returns
// is independent.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// OpenDatabase returns a handle for the database directory at path. The
// directory is created lazily by the first table opened in it.
func (e *Engine) OpenDatabase(path string) (types.Database, error) {
	db, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Database is a handle on one database directory.
type Database struct {
	path string

	mu       sync.Mutex
	attached int
	released bool
}

func NewDatabase(path string) (*Database, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	return &Database{path: filepath.Clean(path)}, nil
}

func (d *Database) Path() string {
	return d.path
}

// Table returns a new, unopened table handle attached to d.
func (d *Database) Table(name string) (types.Table, error) {
	if !validTableName(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, fmt.Errorf("database %s: %w", d.path, ErrReleased)
	}
	d.attached++

	return &Table{
		db:   d,
		name: name,
		dir:  filepath.Join(d.path, name),
	}, nil
}

// Attached returns the number of table handles not yet released.
func (d *Database) Attached() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}

// Release invalidates the handle. It fails while any table created from it
// has not been released.
func (d *Database) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return fmt.Errorf("database %s: %w", d.path, ErrReleased)
	}
	if d.attached > 0 {
		return fmt.Errorf("database %s: %w (%d)", d.path, ErrTablesAttached, d.attached)
	}
	d.released = true
	return nil
}

func (d *Database) detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached > 0 {
		d.attached--
	}
}

func validTableName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

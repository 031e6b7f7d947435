// internal/types/interfaces.go
package types

import (
	"context"
)

type ActionResolver interface {
	// ActionByName returns ErrNotFound when no action has the given name.
	ActionByName(ctx context.Context, name string) (*Action, error)
}

type PropertyResolver interface {
	FindOrCreateProperty(ctx context.Context, name string, dataType DataType) (*Property, error)
}

type EventAppender interface {
	AppendEvent(ctx context.Context, event *Event) error
}

type TableInspector interface {
	Actions(ctx context.Context) ([]*Action, error)
	CreateAction(ctx context.Context, name string) (*Action, error)
	Properties(ctx context.Context) ([]*Property, error)
	Events(ctx context.Context, limit int) ([]*Event, error)
	Stats(ctx context.Context) (*TableStats, error)
}

// Table is a storage-engine table handle. Open must succeed before any
// data operation; Close flushes and closes; Release detaches the handle from
// its database.
type Table interface {
	ActionResolver
	PropertyResolver
	EventAppender
	TableInspector

	Name() string
	Open(ctx context.Context) error
	Close() error
	Release() error
}

// Database is a storage-engine database handle scoped to one directory.
// Release fails while tables created from it are still attached.
type Database interface {
	Path() string
	Table(name string) (Table, error)
	Release() error
}

type Engine interface {
	OpenDatabase(path string) (Database, error)
}

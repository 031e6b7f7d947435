// Package typestest provides an in-memory storage engine that records every
// call made on it, for asserting handle lifecycles in tests.
package typestest

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/skyd/internal/types"
)

// Engine is a fake types.Engine. The error fields inject failures into the
// matching operation. Tables opened from it share one schema and event log.
type Engine struct {
	OpenDatabaseErr error
	TableErr        error
	OpenErr         error
	CloseErr        error
	ReleaseErr      error
	AppendErr       error

	mu         sync.Mutex
	calls      []string
	actions    map[string]int64
	properties map[string]*types.Property
	events     []*types.Event
}

func NewEngine() *Engine {
	return &Engine{
		actions:    make(map[string]int64),
		properties: make(map[string]*types.Property),
	}
}

func (e *Engine) record(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, fmt.Sprintf(format, args...))
}

// Calls returns the operations performed so far, in order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Events returns every appended event.
func (e *Engine) Events() []*types.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*types.Event(nil), e.events...)
}

// AddAction registers an action for ActionByName.
func (e *Engine) AddAction(name string, id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions[name] = id
}

// AddProperty registers an existing property.
func (e *Engine) AddProperty(p *types.Property) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.properties[p.Name] = p
}

func (e *Engine) OpenDatabase(path string) (types.Database, error) {
	e.record("db.open %s", path)
	if e.OpenDatabaseErr != nil {
		return nil, e.OpenDatabaseErr
	}
	return &Database{engine: e, path: path}, nil
}

type Database struct {
	engine *Engine
	path   string
}

func (d *Database) Path() string { return d.path }

func (d *Database) Table(name string) (types.Table, error) {
	d.engine.record("table.create %s", name)
	if d.engine.TableErr != nil {
		return nil, d.engine.TableErr
	}
	return &Table{engine: d.engine, name: name}, nil
}

func (d *Database) Release() error {
	d.engine.record("db.release")
	return nil
}

type Table struct {
	engine *Engine
	name   string
}

func (t *Table) Name() string { return t.name }

func (t *Table) Open(context.Context) error {
	t.engine.record("table.open")
	return t.engine.OpenErr
}

func (t *Table) Close() error {
	t.engine.record("table.close")
	return t.engine.CloseErr
}

func (t *Table) Release() error {
	t.engine.record("table.release")
	return t.engine.ReleaseErr
}

func (t *Table) ActionByName(_ context.Context, name string) (*types.Action, error) {
	t.engine.record("action %s", name)
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	id, ok := t.engine.actions[name]
	if !ok {
		return nil, fmt.Errorf("action %q: %w", name, types.ErrNotFound)
	}
	return &types.Action{ID: id, Name: name}, nil
}

func (t *Table) CreateAction(_ context.Context, name string) (*types.Action, error) {
	t.engine.record("action.create %s", name)
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	if _, ok := t.engine.actions[name]; ok {
		return nil, types.ErrExists
	}
	id := int64(len(t.engine.actions) + 1)
	t.engine.actions[name] = id
	return &types.Action{ID: id, Name: name}, nil
}

func (t *Table) Actions(context.Context) ([]*types.Action, error) {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	var out []*types.Action
	for name, id := range t.engine.actions {
		out = append(out, &types.Action{ID: id, Name: name})
	}
	return out, nil
}

func (t *Table) FindOrCreateProperty(_ context.Context, name string, dataType types.DataType) (*types.Property, error) {
	t.engine.record("property %s", name)
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	if p, ok := t.engine.properties[name]; ok {
		return p, nil
	}
	p := &types.Property{ID: int64(len(t.engine.properties) + 1), Name: name, DataType: dataType}
	t.engine.properties[name] = p
	return p, nil
}

func (t *Table) Properties(context.Context) ([]*types.Property, error) {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	var out []*types.Property
	for _, p := range t.engine.properties {
		out = append(out, p)
	}
	return out, nil
}

func (t *Table) AppendEvent(_ context.Context, event *types.Event) error {
	t.engine.record("append")
	if t.engine.AppendErr != nil {
		return t.engine.AppendErr
	}
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	t.engine.events = append(t.engine.events, event)
	return nil
}

func (t *Table) Events(_ context.Context, limit int) ([]*types.Event, error) {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	events := t.engine.events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]*types.Event(nil), events...), nil
}

func (t *Table) Stats(context.Context) (*types.TableStats, error) {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	return &types.TableStats{
		Events:     int64(len(t.engine.events)),
		Actions:    len(t.engine.actions),
		Properties: len(t.engine.properties),
	}, nil
}

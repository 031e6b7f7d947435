package storage

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/skyd/internal/types"
)

const (
	schemaFile = "schema.db"
	eventsFile = "events.jsonl"

	maxEventLine = 16 << 20
)

// Table is a handle on one table directory. Data operations require Open.
type Table struct {
	db   *Database
	name string
	dir  string

	mu       sync.Mutex
	schema   *sql.DB
	events   *os.File
	released bool
}

func (t *Table) Name() string {
	return t.name
}

// Open creates the table directory if needed, opens the schema database and
// applies pending migrations, then opens the event log for appending.
func (t *Table) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return fmt.Errorf("table %s: %w", t.name, ErrReleased)
	}
	if t.schema != nil {
		return fmt.Errorf("table %s is already open", t.name)
	}

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("create table dir: %w", err)
	}

	schema, err := openSchema(ctx, filepath.Join(t.dir, schemaFile))
	if err != nil {
		return err
	}

	events, err := os.OpenFile(filepath.Join(t.dir, eventsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		schema.Close()
		return fmt.Errorf("open events file: %w", err)
	}

	t.schema = schema
	t.events = events
	return nil
}

func openSchema(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open schema db: %w", err)
	}
	// One connection so the pragmas below apply to every statement.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema db: %w", err)
	}
	return db, nil
}

// Close syncs the event log and closes both files. Closing a table that is
// not open is a no-op.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.events != nil {
		if err := t.events.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync events file: %w", err))
		}
		if err := t.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close events file: %w", err))
		}
		t.events = nil
	}
	if t.schema != nil {
		if err := t.schema.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close schema db: %w", err))
		}
		t.schema = nil
	}
	return errors.Join(errs...)
}

// Release detaches the handle from its database. The table must be closed.
func (t *Table) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return fmt.Errorf("table %s: %w", t.name, ErrReleased)
	}
	if t.schema != nil || t.events != nil {
		return fmt.Errorf("table %s: %w", t.name, ErrTableOpen)
	}
	t.released = true
	t.db.detach()
	return nil
}

func (t *Table) openSchemaDB() (*sql.DB, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.schema == nil {
		return nil, fmt.Errorf("table %s: %w", t.name, ErrNotOpen)
	}
	return t.schema, nil
}

func (t *Table) ActionByName(ctx context.Context, name string) (*types.Action, error) {
	db, err := t.openSchemaDB()
	if err != nil {
		return nil, err
	}

	var a types.Action
	err = db.QueryRowContext(ctx, `SELECT id, name FROM actions WHERE name = ?`, name).Scan(&a.ID, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %q: %w", name, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query action: %w", err)
	}
	return &a, nil
}

func (t *Table) CreateAction(ctx context.Context, name string) (*types.Action, error) {
	if name == "" {
		return nil, fmt.Errorf("action name is empty")
	}
	db, err := t.openSchemaDB()
	if err != nil {
		return nil, err
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO actions (name, created_at) VALUES (?, ?)`,
		name, time.Now().UTC().UnixMilli(),
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("action %q: %w", name, types.ErrExists)
	}
	if err != nil {
		return nil, fmt.Errorf("insert action: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("action id: %w", err)
	}
	return &types.Action{ID: id, Name: name}, nil
}

func (t *Table) Actions(ctx context.Context) ([]*types.Action, error) {
	db, err := t.openSchemaDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, name FROM actions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var actions []*types.Action
	for rows.Next() {
		var a types.Action
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}

// FindOrCreateProperty returns the property called name, creating it with
// dataType if it does not exist. An existing property keeps its own type;
// callers compare DataType to detect mismatches.
func (t *Table) FindOrCreateProperty(ctx context.Context, name string, dataType types.DataType) (*types.Property, error) {
	if name == "" {
		return nil, fmt.Errorf("property name is empty")
	}
	if !dataType.Valid() {
		return nil, fmt.Errorf("property %q: invalid data type %q", name, dataType)
	}
	db, err := t.openSchemaDB()
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO properties (name, data_type, created_at) VALUES (?, ?, ?)`,
		name, string(dataType), time.Now().UTC().UnixMilli(),
	); err != nil {
		return nil, fmt.Errorf("insert property: %w", err)
	}

	var (
		p  types.Property
		dt string
	)
	err = db.QueryRowContext(ctx, `SELECT id, name, data_type FROM properties WHERE name = ?`, name).Scan(&p.ID, &p.Name, &dt)
	if err != nil {
		return nil, fmt.Errorf("query property: %w", err)
	}
	p.DataType = types.DataType(dt)
	return &p, nil
}

func (t *Table) Properties(ctx context.Context) ([]*types.Property, error) {
	db, err := t.openSchemaDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, name, data_type FROM properties ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	defer rows.Close()

	var props []*types.Property
	for rows.Next() {
		var (
			p  types.Property
			dt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &dt); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		p.DataType = types.DataType(dt)
		props = append(props, &p)
	}
	return props, rows.Err()
}

// AppendEvent writes event as one JSON line with a single write call.
func (t *Table) AppendEvent(_ context.Context, event *types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.events == nil {
		return fmt.Errorf("table %s: %w", t.name, ErrNotOpen)
	}
	if _, err := t.events.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Events returns the last limit events in append order. A limit <= 0 returns
// every event.
func (t *Table) Events(_ context.Context, limit int) ([]*types.Event, error) {
	if _, err := t.openSchemaDB(); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(t.dir, eventsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	var events []*types.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)
	for scanner.Scan() {
		event, err := decodeEvent(scanner.Bytes())
		if err != nil {
			return nil, err
		}
		events = append(events, event)
		if limit > 0 && len(events) > limit {
			events = events[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan events file: %w", err)
	}
	return events, nil
}

// decodeEvent keeps integers as int64 rather than float64.
func decodeEvent(line []byte) (*types.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var event types.Event
	if err := dec.Decode(&event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	for k, v := range event.Data {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			event.Data[k] = i
		} else if f, err := n.Float64(); err == nil {
			event.Data[k] = f
		}
	}
	return &event, nil
}

func (t *Table) Stats(ctx context.Context) (*types.TableStats, error) {
	db, err := t.openSchemaDB()
	if err != nil {
		return nil, err
	}

	var stats types.TableStats
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM actions`).Scan(&stats.Actions); err != nil {
		return nil, fmt.Errorf("count actions: %w", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM properties`).Scan(&stats.Properties); err != nil {
		return nil, fmt.Errorf("count properties: %w", err)
	}

	path := filepath.Join(t.dir, eventsFile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &stats, nil
		}
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat events file: %w", err)
	}
	stats.Bytes = info.Size()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)
	for scanner.Scan() {
		stats.Events++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan events file: %w", err)
	}
	return &stats, nil
}

// Package storage is the bundled filesystem storage engine. A database is a
// directory under the server root; each table is a subdirectory holding a
// SQLite schema database (actions, properties) and an append-only JSONL event
// log.
package storage

import "github.com/user/skyd/internal/types"

// Compile-time interface compliance checks.
var _ types.Engine = (*Engine)(nil)
var _ types.Database = (*Database)(nil)
var _ types.Table = (*Table)(nil)

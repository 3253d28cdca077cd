// Package db owns the server's SQLite state: the world weather-point cache
// and its refresh cursor, the per-feed fetch log, and proxy parity samples.
// The schema is managed by the embedded migrations; OpenDB only opens and
// tunes the connection, it never creates tables.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// OpenDB opens (creating on first use) the state database at path and
// applies the connection pragmas every caller relies on. The pure-Go driver
// allows one writer at a time, so access is serialized through a single
// connection with a busy grace period instead of surfacing SQLITE_BUSY.
func OpenDB(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}
	sqldb.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := sqldb.Exec(p); err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return &DB{sqldb}, nil
}

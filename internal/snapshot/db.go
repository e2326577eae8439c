// Package snapshot implements the ledger_snapshot denormalised summary
// store (spec §4.D): a sqlite table of actor/unread/obligation counts
// rebuilt from the ledger on demand, kept entirely separate from
// ledger.jsonl itself — the ledger stays a flat append-only log with
// no external index (spec's explicit "find_event is a linear scan").
package snapshot

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const defaultBusyTimeoutMillis = int(5 * time.Second / time.Millisecond)

// OpenSQLite opens (creating if absent) the snapshot database at path,
// configured for a single writer the way the teacher's internal/db
// package configures its SQLite writer pool (WAL journal, a busy
// timeout instead of failing fast on lock contention, one connection
// since the daemon is the only writer).
func OpenSQLite(path string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare snapshot db dir: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=rwc&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		path, defaultBusyTimeoutMillis,
	)
	rawDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	rawDB.SetMaxOpenConns(1)
	rawDB.SetMaxIdleConns(1)

	db := sqlx.NewDb(rawDB, "sqlite3")
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping snapshot db: %w", err)
	}
	return db, nil
}

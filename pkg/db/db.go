package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/japaniel/lexercise/pkg/exercise"
)

// DriverName is the sqlite3 driver with the seed_key function registered.
const DriverName = "sqlite3_lexercise"

//go:embed schema.sql
var migrationsSQL string

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("seed_key", exercise.SeedKey, true)
		},
	})
}

// Open opens the database at path and runs migrations. ":memory:" opens a
// private in-memory database.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	conn, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps the in-memory database shared and serializes
	// writers.
	conn.SetMaxOpenConns(1)
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// InitDB runs migrations on the given DB connection using the embedded SQL,
// then creates the per-type unique indexes of exercises.
func InitDB(db *sql.DB) error {
	stmts := strings.Split(migrationsSQL, ";")
	stmts = append(stmts, uniqueIndexes()...)
	ctx := context.Background()
	for _, s := range stmts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// uniqueIndexes returns one partial unique index per exercise type, built from
// the catalog's uniqueness key. Unset references compare as 0.
func uniqueIndexes() []string {
	var out []string
	for _, t := range exercise.Types() {
		d, _ := exercise.Describe(t)
		cols := []string{"language"}
		for _, r := range d.Unique {
			cols = append(cols, fmt.Sprintf("IFNULL(%s_id, 0)", r))
		}
		out = append(out, fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_exercises_unique_%s ON exercises(%s) WHERE type = '%s'",
			t, strings.Join(cols, ", "), t,
		))
	}
	return out
}

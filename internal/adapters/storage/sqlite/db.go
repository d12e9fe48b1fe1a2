package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"certivax/internal/adapters/storage/sqlstore"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Open abre (o crea) la base en path. SQLite admite un solo escritor, así que
// el pool queda en una conexión y las transacciones toman el lock al empezar.
func Open(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: path is required")
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewStore(db *sql.DB) *sqlstore.Store {
	return sqlstore.New(db, Dialect())
}

func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:              "sqlite",
		EncodeTime:        func(t time.Time) any { return t.UTC().UnixMicro() },
		IsUniqueViolation: isUniqueViolation,
		Schema:            schema,
	}
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return strings.Contains(se.Error(), "UNIQUE constraint failed")
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS registry_meta (
		id            INTEGER PRIMARY KEY CHECK (id = 1),
		owner         TEXT NOT NULL,
		contract_hash TEXT NOT NULL,
		created_at    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS registry_counters (
		name  TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	)`,
	`INSERT INTO registry_counters (name, value) VALUES ('record_id', 0)
		ON CONFLICT (name) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS roles (
		principal TEXT PRIMARY KEY,
		role      INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS animals (
		id            TEXT PRIMARY KEY,
		quality_score INTEGER NOT NULL CHECK (quality_score BETWEEN 0 AND 100),
		last_updated  INTEGER NOT NULL,
		current_state INTEGER NOT NULL,
		is_active     INTEGER NOT NULL,
		total_records INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS records (
		id                INTEGER PRIMARY KEY,
		animal_id         TEXT NOT NULL REFERENCES animals(id),
		event_type        INTEGER NOT NULL,
		cert_hash         TEXT NOT NULL,
		meta_json         TEXT NOT NULL,
		actor             TEXT NOT NULL,
		verif_state       INTEGER NOT NULL,
		dte_state         INTEGER NOT NULL,
		revocation_reason TEXT NOT NULL DEFAULT '',
		created_at        INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS records_animal_id_idx ON records (animal_id, id)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT NOT NULL UNIQUE,
		kind        TEXT NOT NULL,
		payload     TEXT NOT NULL,
		occurred_at INTEGER NOT NULL
	)`,
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"certivax/internal/adapters/storage/sqlstore"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

// Open abre una conexión pool a Postgres usando pgx (database/sql).
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	// defaults razonables para MVP (ajustable luego)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// NewStore construye el store del registro sobre db. Llamar Migrate antes de usarlo.
func NewStore(db *sql.DB) *sqlstore.Store {
	return sqlstore.New(db, Dialect())
}

func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:              "postgres",
		NumberedParams:    true,
		ForUpdate:         " FOR UPDATE",
		ReadOnlyTx:        true,
		EncodeTime:        func(t time.Time) any { return t.UTC() },
		IsUniqueViolation: isUniqueViolation,
		Schema:            schema,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS registry_meta (
		id            SMALLINT PRIMARY KEY CHECK (id = 1),
		owner         TEXT NOT NULL,
		contract_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS registry_counters (
		name  TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
	`INSERT INTO registry_counters (name, value) VALUES ('record_id', 0)
		ON CONFLICT (name) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS roles (
		principal TEXT PRIMARY KEY,
		role      SMALLINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS animals (
		id            TEXT PRIMARY KEY,
		quality_score INTEGER NOT NULL CHECK (quality_score BETWEEN 0 AND 100),
		last_updated  TIMESTAMPTZ NOT NULL,
		current_state SMALLINT NOT NULL,
		is_active     BOOLEAN NOT NULL,
		total_records INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS records (
		id                BIGINT PRIMARY KEY,
		animal_id         TEXT NOT NULL REFERENCES animals(id),
		event_type        SMALLINT NOT NULL,
		cert_hash         TEXT NOT NULL,
		meta_json         TEXT NOT NULL,
		actor             TEXT NOT NULL,
		verif_state       SMALLINT NOT NULL,
		dte_state         SMALLINT NOT NULL,
		revocation_reason TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS records_animal_id_idx ON records (animal_id, id)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		seq         BIGSERIAL PRIMARY KEY,
		id          TEXT NOT NULL UNIQUE,
		kind        TEXT NOT NULL,
		payload     TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
}

// Package sqlstore implementa registry.Store sobre database/sql. Los drivers
// concretos (postgres, sqlite) aportan un Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"certivax/internal/domain/registry"
)

var ErrReadOnly = errors.New("sqlstore: write in read-only transaction")

// Dialect aísla lo que cambia entre motores. Las queries se escriben con '?'.
type Dialect struct {
	Name string

	// NumberedParams reescribe '?' como $1..$n (postgres).
	NumberedParams bool

	// ForUpdate se agrega a las lecturas de filas que se van a modificar.
	ForUpdate string

	// ReadOnlyTx abre las transacciones de View con sql.TxOptions{ReadOnly: true}.
	ReadOnlyTx bool

	// EncodeTime convierte un timestamp al valor que guarda la columna.
	EncodeTime func(time.Time) any

	IsUniqueViolation func(error) bool

	Schema []string
}

type Store struct {
	db *sql.DB
	d  Dialect
}

var _ registry.Store = (*Store)(nil)

func New(db *sql.DB, d Dialect) *Store {
	if d.EncodeTime == nil {
		d.EncodeTime = func(t time.Time) any { return t.UTC() }
	}
	if d.IsUniqueViolation == nil {
		d.IsUniqueViolation = func(error) bool { return false }
	}
	return &Store{db: db, d: d}
}

func (s *Store) DB() *sql.DB { return s.db }

// Migrate aplica el schema. Cada sentencia es idempotente.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range s.d.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s migrate step %d: %w", s.d.Name, i, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx registry.Tx) error) error {
	return s.run(ctx, false, fn)
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx registry.Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx registry.Tx) error) error {
	var opts *sql.TxOptions
	if readOnly && s.d.ReadOnlyTx {
		opts = &sql.TxOptions{ReadOnly: true}
	}

	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{tx: sqlTx, d: &s.d, readOnly: readOnly}); err != nil {
		return err
	}
	if readOnly {
		return nil
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// rebind reescribe los '?' de q según el dialecto.
func rebind(d *Dialect, q string) string {
	if !d.NumberedParams {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// dbTime escanea timestamps guardados como TIMESTAMPTZ o como microsegundos Unix.
type dbTime struct{ t *time.Time }

func (d dbTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		*d.t = time.Time{}
	case time.Time:
		*d.t = x.UTC()
	case int64:
		*d.t = time.UnixMicro(x).UTC()
	case []byte:
		return d.parse(string(x))
	case string:
		return d.parse(x)
	default:
		return fmt.Errorf("unsupported time value %T", v)
	}
	return nil
}

func (d dbTime) parse(s string) error {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d.t = time.UnixMicro(n).UTC()
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	*d.t = t.UTC()
	return nil
}

// dbHash escanea un hash guardado como texto hex.
type dbHash struct{ h *registry.Hash }

func (d dbHash) Scan(v any) error {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return fmt.Errorf("unsupported hash value %T", v)
	}
	h, err := registry.ParseHash(s)
	if err != nil {
		return err
	}
	*d.h = h
	return nil
}

package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"certivax/internal/domain/registry"
)

const recordCounter = "record_id"

type tx struct {
	tx       *sql.Tx
	d        *Dialect
	readOnly bool
}

func (t *tx) q(query string) string { return rebind(t.d, query) }

func (t *tx) lock() string {
	if t.readOnly {
		return ""
	}
	return t.d.ForUpdate
}

func (t *tx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	return t.tx.ExecContext(ctx, t.q(query), args...)
}

func mustAffect(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, registry.ErrNotFound)
	}
	return nil
}

func (t *tx) Meta(ctx context.Context) (registry.Meta, error) {
	var (
		m     registry.Meta
		owner string
	)
	err := t.tx.QueryRowContext(ctx, t.q(`
		SELECT owner, contract_hash, created_at
		FROM registry_meta
		WHERE id = 1
	`)).Scan(&owner, dbHash{&m.ContractHash}, dbTime{&m.CreatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Meta{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Meta{}, err
	}
	m.Owner = registry.Principal(owner)
	return m, nil
}

func (t *tx) PutMeta(ctx context.Context, m registry.Meta) error {
	_, err := t.exec(ctx, `
		INSERT INTO registry_meta (id, owner, contract_hash, created_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner = excluded.owner,
			contract_hash = excluded.contract_hash,
			created_at = excluded.created_at
	`, string(m.Owner), m.ContractHash.Hex(), t.d.EncodeTime(m.CreatedAt))
	return err
}

func (t *tx) Role(ctx context.Context, p registry.Principal) (registry.Role, error) {
	var r int64
	err := t.tx.QueryRowContext(ctx, t.q(`SELECT role FROM roles WHERE principal = ?`), string(p)).Scan(&r)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.RoleNone, nil
	}
	if err != nil {
		return registry.RoleNone, err
	}
	return registry.Role(r), nil
}

func (t *tx) PutRole(ctx context.Context, p registry.Principal, r registry.Role) error {
	_, err := t.exec(ctx, `
		INSERT INTO roles (principal, role) VALUES (?, ?)
		ON CONFLICT (principal) DO UPDATE SET role = excluded.role
	`, string(p), int64(r))
	return err
}

func (t *tx) Animal(ctx context.Context, id string) (registry.Animal, error) {
	var (
		a            registry.Animal
		state, total int64
	)
	err := t.tx.QueryRowContext(ctx, t.q(`
		SELECT id, quality_score, last_updated, current_state, is_active, total_records
		FROM animals
		WHERE id = ?`+t.lock()), id).Scan(
		&a.ID,
		&a.QualityScore,
		dbTime{&a.LastUpdated},
		&state,
		&a.IsActive,
		&total,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Animal{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Animal{}, err
	}
	a.CurrentState = registry.DTEState(state)

	ids, err := t.recordIDs(ctx, id)
	if err != nil {
		return registry.Animal{}, err
	}
	a.RecordIDs = ids
	a.TotalRecords = len(ids)
	return a, nil
}

func (t *tx) recordIDs(ctx context.Context, animalID string) ([]uint64, error) {
	rows, err := t.tx.QueryContext(ctx, t.q(`SELECT id FROM records WHERE animal_id = ? ORDER BY id`), animalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uint64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}

func (t *tx) InsertAnimal(ctx context.Context, a registry.Animal) error {
	_, err := t.exec(ctx, `
		INSERT INTO animals (id, quality_score, last_updated, current_state, is_active, total_records)
		VALUES (?, ?, ?, ?, ?, 0)
	`, a.ID, a.QualityScore, t.d.EncodeTime(a.LastUpdated), int64(a.CurrentState), a.IsActive)
	if err != nil && t.d.IsUniqueViolation(err) {
		return fmt.Errorf("animal %q: %w", a.ID, registry.ErrAlreadyExists)
	}
	return err
}

func (t *tx) UpdateAnimal(ctx context.Context, a registry.Animal) error {
	res, err := t.exec(ctx, `
		UPDATE animals SET
			quality_score = ?,
			last_updated = ?,
			current_state = ?,
			is_active = ?
		WHERE id = ?
	`, a.QualityScore, t.d.EncodeTime(a.LastUpdated), int64(a.CurrentState), a.IsActive, a.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "animal "+a.ID)
}

func (t *tx) AnimalRecordIDs(ctx context.Context, animalID string) ([]uint64, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, t.q(`SELECT 1 FROM animals WHERE id = ?`), animalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t.recordIDs(ctx, animalID)
}

func (t *tx) NextRecordID(ctx context.Context) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	var v int64
	err := t.tx.QueryRowContext(ctx, t.q(`
		UPDATE registry_counters SET value = value + 1
		WHERE name = ?
		RETURNING value
	`), recordCounter).Scan(&v)
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (t *tx) RecordCounter(ctx context.Context) (uint64, error) {
	var v int64
	err := t.tx.QueryRowContext(ctx, t.q(`SELECT value FROM registry_counters WHERE name = ?`), recordCounter).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (t *tx) Record(ctx context.Context, id uint64) (registry.Record, error) {
	var (
		r                    registry.Record
		rid                  int64
		actor                string
		evt, verif, dteState int64
	)
	err := t.tx.QueryRowContext(ctx, t.q(`
		SELECT id, animal_id, event_type, cert_hash, meta_json, actor,
			verif_state, dte_state, revocation_reason, created_at
		FROM records
		WHERE id = ?`+t.lock()), int64(id)).Scan(
		&rid,
		&r.AnimalID,
		&evt,
		dbHash{&r.CertHash},
		&r.MetaJSON,
		&actor,
		&verif,
		&dteState,
		&r.RevocationReason,
		dbTime{&r.CreatedAt},
	)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Record{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Record{}, err
	}
	r.ID = uint64(rid)
	r.Actor = registry.Principal(actor)
	r.EventType = registry.EventType(evt)
	r.VerifState = registry.VerifState(verif)
	r.DTEState = registry.DTEState(dteState)
	return r, nil
}

func (t *tx) InsertRecord(ctx context.Context, r registry.Record) error {
	_, err := t.exec(ctx, `
		INSERT INTO records (
			id, animal_id, event_type, cert_hash, meta_json, actor,
			verif_state, dte_state, revocation_reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		int64(r.ID),
		r.AnimalID,
		int64(r.EventType),
		r.CertHash.Hex(),
		r.MetaJSON,
		string(r.Actor),
		int64(r.VerifState),
		int64(r.DTEState),
		r.RevocationReason,
		t.d.EncodeTime(r.CreatedAt),
	)
	if err != nil {
		if t.d.IsUniqueViolation(err) {
			return fmt.Errorf("record %d: %w", r.ID, registry.ErrAlreadyExists)
		}
		return err
	}

	res, err := t.exec(ctx, `UPDATE animals SET total_records = total_records + 1 WHERE id = ?`, r.AnimalID)
	if err != nil {
		return err
	}
	return mustAffect(res, "animal "+r.AnimalID)
}

func (t *tx) UpdateRecord(ctx context.Context, r registry.Record) error {
	res, err := t.exec(ctx, `
		UPDATE records SET
			verif_state = ?,
			dte_state = ?,
			revocation_reason = ?
		WHERE id = ?
	`, int64(r.VerifState), int64(r.DTEState), r.RevocationReason, int64(r.ID))
	if err != nil {
		return err
	}
	return mustAffect(res, fmt.Sprintf("record %d", r.ID))
}

func (t *tx) AppendNotification(ctx context.Context, n registry.Notification) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n.Seq = 0
	payload, err := json.Marshal(n)
	if err != nil {
		return 0, fmt.Errorf("encode notification: %w", err)
	}

	var seq int64
	err = t.tx.QueryRowContext(ctx, t.q(`
		INSERT INTO notifications (id, kind, payload, occurred_at)
		VALUES (?, ?, ?, ?)
		RETURNING seq
	`), n.ID, string(n.Kind), string(payload), t.d.EncodeTime(n.OccurredAt)).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return uint64(seq), nil
}

func (t *tx) Notifications(ctx context.Context, afterSeq uint64, limit int) ([]registry.Notification, error) {
	query := `
		SELECT seq, payload
		FROM notifications
		WHERE seq > ?
		ORDER BY seq`
	args := []any{int64(afterSeq)}
	if limit > 0 {
		query += `
		LIMIT ?`
		args = append(args, limit)
	}

	rows, err := t.tx.QueryContext(ctx, t.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []registry.Notification{}
	for rows.Next() {
		var (
			seq     int64
			payload string
		)
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, err
		}
		var n registry.Notification
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			return nil, fmt.Errorf("decode notification %d: %w", seq, err)
		}
		n.Seq = uint64(seq)
		out = append(out, n)
	}
	return out, rows.Err()
}

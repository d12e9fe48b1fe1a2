package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"certivax/internal/domain/registry"
)

var (
	ErrReadOnly = errors.New("memory store: write in read-only transaction")
)

// Store guarda el registro en memoria. Update serializa escritores y aplica
// los cambios recién cuando fn termina sin error; View usa el último commit.
type Store struct {
	mu sync.RWMutex

	meta    *registry.Meta
	roles   map[registry.Principal]registry.Role
	animals map[string]registry.Animal
	records map[uint64]registry.Record
	counter uint64
	notes   []registry.Notification
}

var _ registry.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		roles:   make(map[registry.Principal]registry.Role),
		animals: make(map[string]registry.Animal),
		records: make(map[uint64]registry.Record),
	}
}

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx registry.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := newTx(s, false)
	if err := fn(ctx, t); err != nil {
		return err
	}
	t.commit()
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx registry.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(ctx, newTx(s, true))
}

// tx es un overlay sobre el Store: las lecturas ven primero lo escrito en la
// transacción y después el estado commiteado.
type tx struct {
	base     *Store
	readOnly bool

	meta    *registry.Meta
	roles   map[registry.Principal]registry.Role
	animals map[string]registry.Animal
	records map[uint64]registry.Record
	counter uint64
	notes   []registry.Notification
}

func newTx(s *Store, readOnly bool) *tx {
	return &tx{
		base:     s,
		readOnly: readOnly,
		roles:    map[registry.Principal]registry.Role{},
		animals:  map[string]registry.Animal{},
		records:  map[uint64]registry.Record{},
		counter:  s.counter,
	}
}

func (t *tx) commit() {
	s := t.base
	if t.meta != nil {
		m := *t.meta
		s.meta = &m
	}
	for k, v := range t.roles {
		s.roles[k] = v
	}
	for k, v := range t.animals {
		s.animals[k] = v
	}
	for k, v := range t.records {
		s.records[k] = v
	}
	s.counter = t.counter
	s.notes = append(s.notes, t.notes...)
}

func (t *tx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *tx) Meta(_ context.Context) (registry.Meta, error) {
	if t.meta != nil {
		return *t.meta, nil
	}
	if t.base.meta != nil {
		return *t.base.meta, nil
	}
	return registry.Meta{}, registry.ErrNotFound
}

func (t *tx) PutMeta(_ context.Context, m registry.Meta) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.meta = &m
	return nil
}

func (t *tx) Role(_ context.Context, p registry.Principal) (registry.Role, error) {
	if r, ok := t.roles[p]; ok {
		return r, nil
	}
	return t.base.roles[p], nil
}

func (t *tx) PutRole(_ context.Context, p registry.Principal, r registry.Role) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.roles[p] = r
	return nil
}

func (t *tx) animal(id string) (registry.Animal, bool) {
	if a, ok := t.animals[id]; ok {
		return a, true
	}
	a, ok := t.base.animals[id]
	return a, ok
}

func (t *tx) Animal(_ context.Context, id string) (registry.Animal, error) {
	a, ok := t.animal(id)
	if !ok {
		return registry.Animal{}, registry.ErrNotFound
	}
	// El slice del estado commiteado no se comparte con el caller.
	a.RecordIDs = slices.Clone(a.RecordIDs)
	if a.RecordIDs == nil {
		a.RecordIDs = []uint64{}
	}
	return a, nil
}

func (t *tx) InsertAnimal(_ context.Context, a registry.Animal) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.animal(a.ID); ok {
		return fmt.Errorf("animal %q: %w", a.ID, registry.ErrAlreadyExists)
	}
	a.RecordIDs = slices.Clone(a.RecordIDs)
	a.TotalRecords = len(a.RecordIDs)
	t.animals[a.ID] = a
	return nil
}

func (t *tx) UpdateAnimal(_ context.Context, a registry.Animal) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.animal(a.ID)
	if !ok {
		return fmt.Errorf("animal %q: %w", a.ID, registry.ErrNotFound)
	}
	// RecordIDs solo crece vía InsertRecord.
	a.RecordIDs = cur.RecordIDs
	a.TotalRecords = len(cur.RecordIDs)
	t.animals[a.ID] = a
	return nil
}

func (t *tx) AnimalRecordIDs(_ context.Context, animalID string) ([]uint64, error) {
	a, ok := t.animal(animalID)
	if !ok {
		return nil, registry.ErrNotFound
	}
	return slices.Clone(a.RecordIDs), nil
}

func (t *tx) NextRecordID(_ context.Context) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	t.counter++
	return t.counter, nil
}

func (t *tx) RecordCounter(_ context.Context) (uint64, error) {
	return t.counter, nil
}

func (t *tx) record(id uint64) (registry.Record, bool) {
	if r, ok := t.records[id]; ok {
		return r, true
	}
	r, ok := t.base.records[id]
	return r, ok
}

func (t *tx) Record(_ context.Context, id uint64) (registry.Record, error) {
	r, ok := t.record(id)
	if !ok {
		return registry.Record{}, registry.ErrNotFound
	}
	return r, nil
}

func (t *tx) InsertRecord(_ context.Context, r registry.Record) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.record(r.ID); ok {
		return fmt.Errorf("record %d: %w", r.ID, registry.ErrAlreadyExists)
	}
	a, ok := t.animal(r.AnimalID)
	if !ok {
		return fmt.Errorf("animal %q: %w", r.AnimalID, registry.ErrNotFound)
	}

	t.records[r.ID] = r

	ids := make([]uint64, 0, len(a.RecordIDs)+1)
	ids = append(ids, a.RecordIDs...)
	a.RecordIDs = append(ids, r.ID)
	a.TotalRecords = len(a.RecordIDs)
	t.animals[a.ID] = a
	return nil
}

func (t *tx) UpdateRecord(_ context.Context, r registry.Record) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.record(r.ID); !ok {
		return fmt.Errorf("record %d: %w", r.ID, registry.ErrNotFound)
	}
	t.records[r.ID] = r
	return nil
}

func (t *tx) AppendNotification(_ context.Context, n registry.Notification) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n.Seq = uint64(len(t.base.notes) + len(t.notes) + 1)
	t.notes = append(t.notes, n)
	return n.Seq, nil
}

func (t *tx) Notifications(_ context.Context, afterSeq uint64, limit int) ([]registry.Notification, error) {
	all := t.base.notes
	if len(t.notes) > 0 {
		all = append(slices.Clone(all), t.notes...)
	}

	out := []registry.Notification{}
	for _, n := range all {
		if n.Seq <= afterSeq {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, n)
	}
	return out, nil
}

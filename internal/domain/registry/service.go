package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"certivax/internal/platform/logger"
)

// Metrics recibe las observaciones del servicio; result es KindOf(err).
type Metrics interface {
	ObserveOperation(op string, start time.Time, result string)
	ObserveQualityScore(score int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, time.Time, string) {}
func (nopMetrics) ObserveQualityScore(int)                   {}

type Options struct {
	// Now es la fuente de tiempo; default time.Now.
	Now func() time.Time

	// Publisher y Archive son opcionales (nil = deshabilitado).
	Publisher Publisher
	Archive   MetadataArchive

	Logger  logger.Logger
	Metrics Metrics
}

type Service struct {
	store Store
	now   func() time.Time

	clockMu sync.Mutex
	last    time.Time

	publisher Publisher
	archive   MetadataArchive
	log       logger.Logger
	metrics   Metrics
}

func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:     store,
		now:       opts.Now,
		publisher: opts.Publisher,
		archive:   opts.Archive,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	s.log = s.log.With(logger.Fields{"component": "registry"})
	return s
}

// tick devuelve el timestamp de la operación: UTC, truncado a microsegundos
// y nunca anterior al último entregado por este proceso.
func (s *Service) tick() time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)

	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}

// emitFunc agrega una notificación al log dentro de la transacción en curso.
type emitFunc func(n Notification) error

// mutate corre fn dentro de una transacción de escritura. Las notificaciones
// emitidas solo salen hacia los publishers si la transacción commitea.
func (s *Service) mutate(ctx context.Context, op string, fn func(ctx context.Context, tx Tx, emit emitFunc) error) ([]Notification, error) {
	start := time.Now()

	var notes []Notification
	err := s.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		notes = notes[:0]
		emit := func(n Notification) error {
			seq, err := tx.AppendNotification(ctx, n)
			if err != nil {
				return fmt.Errorf("append notification: %w", err)
			}
			n.Seq = seq
			notes = append(notes, n)
			return nil
		}
		return fn(ctx, tx, emit)
	})

	s.metrics.ObserveOperation(op, start, KindOf(err))
	if err != nil {
		if KindOf(err) == "internal" {
			s.log.Error("registry operation failed", logger.Fields{"op": op, "error": err})
		}
		return nil, err
	}

	s.publish(ctx, notes)
	return notes, nil
}

func (s *Service) view(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	start := time.Now()
	err := s.store.View(ctx, fn)
	s.metrics.ObserveOperation(op, start, KindOf(err))
	return err
}

func (s *Service) publish(ctx context.Context, notes []Notification) {
	if s.publisher == nil || len(notes) == 0 {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), notes); err != nil {
		s.log.Warn("publish notifications failed", logger.Fields{
			"error": err,
			"count": len(notes),
			"seq":   notes[0].Seq,
		})
	}
}

func (s *Service) archiveMetadata(ctx context.Context, r Record) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Put(context.WithoutCancel(ctx), r.CertHash, []byte(r.MetaJSON)); err != nil {
		s.log.Warn("archive metadata failed", logger.Fields{
			"error":     err,
			"record_id": r.ID,
			"cert_hash": r.CertHash.Hex(),
		})
	}
}

// requireRole falla con ErrUnauthorized si caller no tiene ninguno de roles.
func requireRole(ctx context.Context, tx Tx, caller Principal, roles ...Role) error {
	if strings.TrimSpace(string(caller)) == "" {
		return newError(ErrUnauthorized, "missing caller")
	}
	got, err := tx.Role(ctx, caller)
	if err != nil {
		return fmt.Errorf("load role: %w", err)
	}
	if !roleIn(got, roles) {
		return newError(ErrUnauthorized, "%s requires role %s", caller, joinRoles(roles))
	}
	return nil
}

func roleIn(r Role, roles []Role) bool {
	if r == RoleNone {
		return false
	}
	for _, want := range roles {
		if r == want {
			return true
		}
	}
	return false
}

func joinRoles(roles []Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return strings.Join(names, "|")
}

// loadAnimal traduce la ausencia a un error del registro con el id en el motivo.
func loadAnimal(ctx context.Context, tx Tx, id string) (Animal, error) {
	a, err := tx.Animal(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Animal{}, newError(ErrNotFound, "animal %q not found", id)
	}
	if err != nil {
		return Animal{}, fmt.Errorf("load animal: %w", err)
	}
	return a, nil
}

func loadRecord(ctx context.Context, tx Tx, id uint64) (Record, error) {
	r, err := tx.Record(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Record{}, newError(ErrNotFound, "record %d not found", id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("load record: %w", err)
	}
	return r, nil
}

const (
	DefaultNotificationLimit = 100
	MaxNotificationLimit     = 1000
)

// ListNotifications permite a los consumidores reproducir el log desde afterSeq (exclusivo).
func (s *Service) ListNotifications(ctx context.Context, afterSeq uint64, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	if limit > MaxNotificationLimit {
		limit = MaxNotificationLimit
	}

	var out []Notification
	err := s.view(ctx, "list_notifications", func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Notifications(ctx, afterSeq, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

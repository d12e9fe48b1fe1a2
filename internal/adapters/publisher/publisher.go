// Package publisher reparte las notificaciones commiteadas hacia sinks externos.
package publisher

import (
	"context"
	"errors"
	"fmt"

	"certivax/internal/domain/registry"
	"certivax/internal/platform/logger"
)

// Observer recibe el resultado de cada publicación por sink (métricas).
type Observer interface {
	IncPublished(sink string, n int, err error)
}

type Sink struct {
	Name      string
	Publisher registry.Publisher
}

// Multi publica en todos los sinks; un sink que falla no corta a los demás.
type Multi struct {
	sinks    []Sink
	observer Observer
}

var _ registry.Publisher = (*Multi)(nil)

func NewMulti(observer Observer, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, observer: observer}
}

func (m *Multi) Publish(ctx context.Context, notes []registry.Notification) error {
	var errs []error
	for _, s := range m.sinks {
		err := s.Publisher.Publish(ctx, notes)
		if m.observer != nil {
			m.observer.IncPublished(s.Name, len(notes), err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Log escribe una línea por notificación.
type Log struct {
	log logger.Logger
}

var _ registry.Publisher = (*Log)(nil)

func NewLog(l logger.Logger) *Log {
	if l == nil {
		l = logger.Nop()
	}
	return &Log{log: l.With(logger.Fields{"component": "notifications"})}
}

func (p *Log) Publish(_ context.Context, notes []registry.Notification) error {
	for _, n := range notes {
		p.log.Info("notification", Fields(n))
	}
	return nil
}

// Fields aplana una notificación a campos de log, omitiendo los vacíos.
func Fields(n registry.Notification) logger.Fields {
	f := logger.Fields{
		"seq":         n.Seq,
		"id":          n.ID,
		"kind":        string(n.Kind),
		"caller":      string(n.Caller),
		"occurred_at": n.OccurredAt,
	}
	if n.AnimalID != "" {
		f["animal_id"] = n.AnimalID
	}
	if n.RecordID != 0 {
		f["record_id"] = n.RecordID
	}
	if n.Subject != "" {
		f["subject"] = string(n.Subject)
	}
	if n.Role != nil {
		f["role"] = n.Role.String()
	}
	if n.State != nil {
		f["state"] = n.State.String()
	}
	if n.EventType != nil {
		f["event_type"] = n.EventType.String()
	}
	if n.CertHash != nil {
		f["cert_hash"] = n.CertHash.Hex()
	}
	if n.QualityScore != nil {
		f["quality_score"] = *n.QualityScore
	}
	if n.Reason != "" {
		f["reason"] = n.Reason
	}
	return f
}

// PartitionKey agrupa las notificaciones de un mismo animal (o principal, para roles).
func PartitionKey(n registry.Notification) string {
	if n.AnimalID != "" {
		return n.AnimalID
	}
	return string(n.Subject)
}

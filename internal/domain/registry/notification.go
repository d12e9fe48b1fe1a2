package registry

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	KindRoleAssigned   NotificationKind = "RoleAssigned"
	KindAnimalCreated  NotificationKind = "AnimalCreated"
	KindAnimalClosed   NotificationKind = "AnimalClosed"
	KindRecordCreated  NotificationKind = "RecordCreated"
	KindRecordVerified NotificationKind = "RecordVerified"
	KindRecordRevoked  NotificationKind = "RecordRevoked"
	KindRecordUpdated  NotificationKind = "RecordUpdated"
)

// Notification es una entrada del log de eventos. Se agrega dentro de la misma
// transacción que la mutación y se publica hacia afuera solo después del commit.
// Los campos que no aplican al Kind quedan en su zero value.
type Notification struct {
	Seq        uint64           `json:"seq"`
	ID         string           `json:"id"`
	Kind       NotificationKind `json:"kind"`
	Caller     Principal        `json:"caller"`
	OccurredAt time.Time        `json:"occurred_at"`

	AnimalID     string     `json:"animal_id,omitempty"`
	RecordID     uint64     `json:"record_id,omitempty"`
	Subject      Principal  `json:"subject,omitempty"`
	Role         *Role      `json:"role,omitempty"`
	State        *DTEState  `json:"state,omitempty"`
	EventType    *EventType `json:"event_type,omitempty"`
	CertHash     *Hash      `json:"cert_hash,omitempty"`
	QualityScore *int       `json:"quality_score,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

func newNotification(kind NotificationKind, caller Principal, at time.Time) Notification {
	return Notification{
		ID:         uuid.NewString(),
		Kind:       kind,
		Caller:     caller,
		OccurredAt: at,
	}
}

func roleAssigned(caller, subject Principal, role Role, at time.Time) Notification {
	n := newNotification(KindRoleAssigned, caller, at)
	n.Subject = subject
	n.Role = &role
	return n
}

func animalCreated(caller Principal, animalID string, at time.Time) Notification {
	n := newNotification(KindAnimalCreated, caller, at)
	n.AnimalID = animalID
	return n
}

func animalClosed(caller Principal, animalID string, score int, at time.Time) Notification {
	n := newNotification(KindAnimalClosed, caller, at)
	n.AnimalID = animalID
	n.QualityScore = &score
	return n
}

func recordCreated(r Record) Notification {
	n := newNotification(KindRecordCreated, r.Actor, r.CreatedAt)
	n.AnimalID = r.AnimalID
	n.RecordID = r.ID
	et, h := r.EventType, r.CertHash
	n.EventType = &et
	n.CertHash = &h
	return n
}

func recordVerified(caller Principal, r Record, score int, at time.Time) Notification {
	n := newNotification(KindRecordVerified, caller, at)
	n.AnimalID = r.AnimalID
	n.RecordID = r.ID
	n.QualityScore = &score
	return n
}

func recordRevoked(caller Principal, r Record, score int, at time.Time) Notification {
	n := newNotification(KindRecordRevoked, caller, at)
	n.AnimalID = r.AnimalID
	n.RecordID = r.ID
	n.Reason = r.RevocationReason
	n.QualityScore = &score
	return n
}

func recordUpdated(caller Principal, r Record, at time.Time) Notification {
	n := newNotification(KindRecordUpdated, caller, at)
	n.AnimalID = r.AnimalID
	n.RecordID = r.ID
	st := r.DTEState
	n.State = &st
	return n
}

package registry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Principal es la identidad ya autenticada que entrega el entorno (middleware).
type Principal string

func (p Principal) String() string { return string(p) }

// Role define el rol asignado a un principal.
// El orden numérico coincide con el contrato original (0..6).
type Role uint8

const (
	RoleNone Role = iota
	RoleOwner
	RoleVet
	RoleFeedOp
	RoleAuditor
	RoleFarmer
	RoleBuyer
)

var roleNames = [...]string{"None", "Owner", "Vet", "FeedOp", "Auditor", "Farmer", "Buyer"}

func (r Role) Valid() bool { return int(r) < len(roleNames) }

func (r Role) String() string {
	if !r.Valid() {
		return "Role(" + strconv.Itoa(int(r)) + ")"
	}
	return roleNames[r]
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", r)
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	n, err := parseEnum(string(b), roleNames[:])
	if err != nil {
		return fmt.Errorf("role: %w", err)
	}
	*r = Role(n)
	return nil
}

// DTEState es el estado de ciclo de vida compartido por Animal y Record.
type DTEState uint8

const (
	StateCreated DTEState = iota
	StateRegistered
	StatePendingReview
	StateVerified
	StateInTracking
	StateUpdated
	StateClosed
	StateRejected
)

var dteStateNames = [...]string{
	"Created", "Registered", "PendingReview", "Verified",
	"InTracking", "Updated", "Closed", "Rejected",
}

func (s DTEState) Valid() bool { return int(s) < len(dteStateNames) }

func (s DTEState) String() string {
	if !s.Valid() {
		return "DTEState(" + strconv.Itoa(int(s)) + ")"
	}
	return dteStateNames[s]
}

func (s DTEState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid state %d", s)
	}
	return []byte(s.String()), nil
}

func (s *DTEState) UnmarshalText(b []byte) error {
	n, err := parseEnum(string(b), dteStateNames[:])
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	*s = DTEState(n)
	return nil
}

// VerifState es el estado de verificación de un registro.
// Pending -> Verified | Revoked; ambos terminales.
type VerifState uint8

const (
	VerifPending VerifState = iota
	VerifVerified
	VerifRevoked
)

var verifStateNames = [...]string{"Pending", "Verified", "Revoked"}

func (s VerifState) Valid() bool { return int(s) < len(verifStateNames) }

func (s VerifState) String() string {
	if !s.Valid() {
		return "VerifState(" + strconv.Itoa(int(s)) + ")"
	}
	return verifStateNames[s]
}

func (s VerifState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid verification state %d", s)
	}
	return []byte(s.String()), nil
}

func (s *VerifState) UnmarshalText(b []byte) error {
	n, err := parseEnum(string(b), verifStateNames[:])
	if err != nil {
		return fmt.Errorf("verification state: %w", err)
	}
	*s = VerifState(n)
	return nil
}

// EventType es el tipo de evento certificado.
type EventType uint8

const (
	EventVaccination EventType = iota
	EventHealthCheck
	EventFeeding
)

var eventTypeNames = [...]string{"Vaccination", "HealthCheck", "Feeding"}

func (e EventType) Valid() bool { return int(e) < len(eventTypeNames) }

func (e EventType) String() string {
	if !e.Valid() {
		return "EventType(" + strconv.Itoa(int(e)) + ")"
	}
	return eventTypeNames[e]
}

func (e EventType) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("invalid event type %d", e)
	}
	return []byte(e.String()), nil
}

func (e *EventType) UnmarshalText(b []byte) error {
	n, err := parseEnum(string(b), eventTypeNames[:])
	if err != nil {
		return fmt.Errorf("event type: %w", err)
	}
	*e = EventType(n)
	return nil
}

// parseEnum acepta el nombre (case-insensitive) o el ordinal numérico.
// El ordinal se acepta tal cual aunque esté fuera de rango: la validación
// de dominio la hace el servicio (InvalidInput), no el decoder.
func parseEnum(s string, names []string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return i, nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown value %q", s)
	}
	return int(n), nil
}

const (
	MaxQualityScore     = 100
	InitialQualityScore = MaxQualityScore
)

// Animal es la entidad principal del registro. Nunca se borra: CloseAnimal la deja terminal.
type Animal struct {
	ID           string
	QualityScore int
	LastUpdated  time.Time
	CurrentState DTEState
	IsActive     bool

	// RecordIDs es append-only y ordenado; TotalRecords == len(RecordIDs).
	RecordIDs    []uint64
	TotalRecords int
}

// Info devuelve la proyección de solo lectura del animal.
func (a Animal) Info() AnimalInfo {
	return AnimalInfo{
		QualityScore: a.QualityScore,
		LastUpdated:  a.LastUpdated,
		CurrentState: a.CurrentState,
		IsActive:     a.IsActive,
		TotalRecords: a.TotalRecords,
	}
}

type AnimalInfo struct {
	QualityScore int
	LastUpdated  time.Time
	CurrentState DTEState
	IsActive     bool
	TotalRecords int
}

// Record es un evento certificado contra un animal.
type Record struct {
	ID        uint64
	AnimalID  string
	EventType EventType

	CertHash Hash
	MetaJSON string // opaco, se guarda tal cual

	Actor Principal

	VerifState       VerifState
	DTEState         DTEState
	RevocationReason string

	CreatedAt time.Time
}

// Meta identifica la instancia del registro; se fija una sola vez en Bootstrap.
type Meta struct {
	Owner        Principal
	ContractHash Hash
	CreatedAt    time.Time
}

// Info es la vista pública del registro.
type Info struct {
	Owner        Principal
	ContractHash Hash
	CreatedAt    time.Time
	TotalRecords uint64
}

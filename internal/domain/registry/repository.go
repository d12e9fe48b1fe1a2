package registry

//go:generate mockgen -source=repository.go -destination=mocks/mocks.go -package=mocks -exclude_interfaces=Store,Tx

import "context"

// Store es el puerto de persistencia. Toda mutación corre dentro de Update:
// si fn devuelve error no queda ningún efecto visible (ni contador, ni entidades,
// ni notificaciones). View corre lecturas contra el último estado commiteado.
type Store interface {
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx expone las operaciones que el core necesita dentro de una transacción.
// Los métodos de lectura devuelven ErrNotFound (posiblemente envuelto) cuando
// la entidad no existe. En una transacción de View las escrituras fallan.
type Tx interface {
	Meta(ctx context.Context) (Meta, error)
	PutMeta(ctx context.Context, m Meta) error

	// Role devuelve RoleNone si el principal no tiene rol asignado.
	Role(ctx context.Context, p Principal) (Role, error)
	PutRole(ctx context.Context, p Principal, r Role) error

	// Animal devuelve el animal con sus RecordIDs; dentro de Update bloquea la fila.
	Animal(ctx context.Context, id string) (Animal, error)
	InsertAnimal(ctx context.Context, a Animal) error
	// UpdateAnimal persiste los campos escalares; RecordIDs crece vía InsertRecord.
	UpdateAnimal(ctx context.Context, a Animal) error
	AnimalRecordIDs(ctx context.Context, animalID string) ([]uint64, error)

	// NextRecordID avanza el contador global y devuelve el nuevo valor (empieza en 1).
	NextRecordID(ctx context.Context) (uint64, error)
	RecordCounter(ctx context.Context) (uint64, error)

	Record(ctx context.Context, id uint64) (Record, error)
	InsertRecord(ctx context.Context, r Record) error
	UpdateRecord(ctx context.Context, r Record) error

	// AppendNotification asigna Seq y devuelve el valor asignado.
	AppendNotification(ctx context.Context, n Notification) (uint64, error)
	// Notifications devuelve en orden de Seq las posteriores a afterSeq.
	// limit <= 0 significa sin límite.
	Notifications(ctx context.Context, afterSeq uint64, limit int) ([]Notification, error)
}

// Publisher recibe las notificaciones ya commiteadas (redis, kafka, log...).
type Publisher interface {
	Publish(ctx context.Context, notes []Notification) error
}

// MetadataArchive guarda la copia off-chain de la metadata, indexada por su compromiso.
type MetadataArchive interface {
	Put(ctx context.Context, hash Hash, payload []byte) error
	// Get devuelve ErrNotFound (envuelto) si no hay copia para hash.
	Get(ctx context.Context, hash Hash) ([]byte, error)
}

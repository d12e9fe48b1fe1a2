package registry

import (
	"context"
	"errors"
	"fmt"
)

type CreateRecordInput struct {
	AnimalID  string
	EventType EventType
	CertHash  Hash
	MetaJSON  string
}

// CreateRecord asigna el siguiente id global dentro de la misma transacción
// y deja al animal en PendingReview.
func (s *Service) CreateRecord(ctx context.Context, caller Principal, in CreateRecordInput) (Record, error) {
	var out Record
	_, err := s.mutate(ctx, "create_record", func(ctx context.Context, tx Tx, emit emitFunc) error {
		if err := requireRole(ctx, tx, caller, RoleVet, RoleFeedOp); err != nil {
			return err
		}
		a, err := loadAnimal(ctx, tx, in.AnimalID)
		if err != nil {
			return err
		}
		if !a.IsActive {
			return newError(ErrInvalidState, "animal %q is closed", in.AnimalID)
		}
		if in.CertHash.IsZero() {
			return newError(ErrInvalidInput, "cert hash must not be zero")
		}
		if !in.EventType.Valid() {
			return newError(ErrInvalidInput, "unknown event type %d", uint8(in.EventType))
		}

		id, err := tx.NextRecordID(ctx)
		if err != nil {
			return fmt.Errorf("next record id: %w", err)
		}

		now := s.tick()
		out = Record{
			ID:         id,
			AnimalID:   a.ID,
			EventType:  in.EventType,
			CertHash:   in.CertHash,
			MetaJSON:   in.MetaJSON,
			Actor:      caller,
			VerifState: VerifPending,
			DTEState:   StateRegistered,
			CreatedAt:  now,
		}
		if err := tx.InsertRecord(ctx, out); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}

		a.RecordIDs = append(a.RecordIDs, id)
		a.TotalRecords = len(a.RecordIDs)
		a.CurrentState = StatePendingReview
		a.LastUpdated = now
		if err := tx.UpdateAnimal(ctx, a); err != nil {
			return fmt.Errorf("update animal: %w", err)
		}

		return emit(recordCreated(out))
	})
	if err != nil {
		return Record{}, err
	}

	s.archiveMetadata(ctx, out)
	return out, nil
}

func (s *Service) GetRecord(ctx context.Context, id uint64) (Record, error) {
	var out Record
	err := s.view(ctx, "get_record", func(ctx context.Context, tx Tx) error {
		var err error
		out, err = loadRecord(ctx, tx, id)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

// GetTotalRecords devuelve el valor actual del contador (ids asignados, incluidos revocados).
func (s *Service) GetTotalRecords(ctx context.Context) (uint64, error) {
	var total uint64
	err := s.view(ctx, "get_total_records", func(ctx context.Context, tx Tx) error {
		var err error
		total, err = tx.RecordCounter(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// VerifyRecordHash compara el compromiso guardado con hash. No muta estado.
func (s *Service) VerifyRecordHash(ctx context.Context, id uint64, hash Hash) (bool, error) {
	r, err := s.GetRecord(ctx, id)
	if err != nil {
		return false, err
	}
	return r.CertHash == hash, nil
}

type ArchivedMetadata struct {
	RecordID uint64
	CertHash Hash
	Payload  []byte
	Computed Hash
	// Intact es true si keccak256(Payload) coincide con el CertHash del registro.
	Intact bool
}

// ArchivedMetadata recupera la copia off-chain de la metadata del registro
// y la contrasta contra su compromiso.
func (s *Service) ArchivedMetadata(ctx context.Context, id uint64) (ArchivedMetadata, error) {
	r, err := s.GetRecord(ctx, id)
	if err != nil {
		return ArchivedMetadata{}, err
	}
	if s.archive == nil {
		return ArchivedMetadata{}, newError(ErrNotFound, "metadata archive not configured")
	}

	payload, err := s.archive.Get(ctx, r.CertHash)
	if errors.Is(err, ErrNotFound) {
		return ArchivedMetadata{}, newError(ErrNotFound, "no archived metadata for record %d", id)
	}
	if err != nil {
		return ArchivedMetadata{}, fmt.Errorf("archive get: %w", err)
	}

	computed := Commitment(payload)
	return ArchivedMetadata{
		RecordID: r.ID,
		CertHash: r.CertHash,
		Payload:  payload,
		Computed: computed,
		Intact:   computed == r.CertHash,
	}, nil
}

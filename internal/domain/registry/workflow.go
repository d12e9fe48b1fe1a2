package registry

import (
	"context"
	"errors"
	"fmt"
)

const (
	verifyBonus   = 5
	revokePenalty = 10
)

func raiseScore(score int) int { return min(MaxQualityScore, score+verifyBonus) }
func lowerScore(score int) int { return max(0, score-revokePenalty) }

// VerifyRecord: Pending -> Verified. El animal pasa a InTracking y sube su score.
func (s *Service) VerifyRecord(ctx context.Context, caller Principal, id uint64) (Record, error) {
	var (
		out   Record
		score int
	)
	_, err := s.mutate(ctx, "verify_record", func(ctx context.Context, tx Tx, emit emitFunc) error {
		if err := requireRole(ctx, tx, caller, RoleAuditor); err != nil {
			return err
		}
		r, err := loadRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.VerifState != VerifPending {
			return newError(ErrInvalidState, "record already processed")
		}
		a, err := activeAnimal(ctx, tx, r.AnimalID)
		if err != nil {
			return err
		}

		now := s.tick()
		r.VerifState = VerifVerified
		r.DTEState = StateVerified
		if err := tx.UpdateRecord(ctx, r); err != nil {
			return fmt.Errorf("update record: %w", err)
		}

		a.CurrentState = StateInTracking
		a.LastUpdated = now
		a.QualityScore = raiseScore(a.QualityScore)
		if err := tx.UpdateAnimal(ctx, a); err != nil {
			return fmt.Errorf("update animal: %w", err)
		}

		out, score = r, a.QualityScore
		return emit(recordVerified(caller, r, a.QualityScore, now))
	})
	if err != nil {
		return Record{}, err
	}
	s.metrics.ObserveQualityScore(score)
	return out, nil
}

// RevokeRecord: Pending -> Revoked. El animal pasa a Rejected y baja su score.
func (s *Service) RevokeRecord(ctx context.Context, caller Principal, id uint64, reason string) (Record, error) {
	var (
		out   Record
		score int
	)
	_, err := s.mutate(ctx, "revoke_record", func(ctx context.Context, tx Tx, emit emitFunc) error {
		if err := requireRole(ctx, tx, caller, RoleAuditor); err != nil {
			return err
		}
		r, err := loadRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		switch r.VerifState {
		case VerifRevoked:
			return newError(ErrInvalidState, "record already revoked")
		case VerifVerified:
			return newError(ErrInvalidState, "record already processed")
		}
		a, err := activeAnimal(ctx, tx, r.AnimalID)
		if err != nil {
			return err
		}

		now := s.tick()
		r.VerifState = VerifRevoked
		r.DTEState = StateRejected
		r.RevocationReason = reason
		if err := tx.UpdateRecord(ctx, r); err != nil {
			return fmt.Errorf("update record: %w", err)
		}

		a.CurrentState = StateRejected
		a.LastUpdated = now
		a.QualityScore = lowerScore(a.QualityScore)
		if err := tx.UpdateAnimal(ctx, a); err != nil {
			return fmt.Errorf("update animal: %w", err)
		}

		out, score = r, a.QualityScore
		return emit(recordRevoked(caller, r, a.QualityScore, now))
	})
	if err != nil {
		return Record{}, err
	}
	s.metrics.ObserveQualityScore(score)
	return out, nil
}

// UpdateRecordState solo aplica a registros con DTEState Verified; el nuevo
// estado se copia también al animal.
func (s *Service) UpdateRecordState(ctx context.Context, caller Principal, id uint64, state DTEState) (Record, error) {
	var out Record
	_, err := s.mutate(ctx, "update_record_state", func(ctx context.Context, tx Tx, emit emitFunc) error {
		if err := requireRole(ctx, tx, caller, RoleOwner, RoleAuditor); err != nil {
			return err
		}
		r, err := loadRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.DTEState != StateVerified {
			return newError(ErrInvalidState, "only verified records may be updated")
		}
		if !state.Valid() {
			return newError(ErrInvalidInput, "unknown state %d", uint8(state))
		}
		a, err := activeAnimal(ctx, tx, r.AnimalID)
		if err != nil {
			return err
		}

		now := s.tick()
		r.DTEState = state
		if err := tx.UpdateRecord(ctx, r); err != nil {
			return fmt.Errorf("update record: %w", err)
		}

		a.CurrentState = state
		a.LastUpdated = now
		if err := tx.UpdateAnimal(ctx, a); err != nil {
			return fmt.Errorf("update animal: %w", err)
		}

		out = r
		return emit(recordUpdated(caller, r, now))
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

func activeAnimal(ctx context.Context, tx Tx, id string) (Animal, error) {
	a, err := tx.Animal(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// El registro apunta a un animal que no existe: estado corrupto.
		return Animal{}, newError(ErrInvariantViolation, "record references missing animal %q", id)
	}
	if err != nil {
		return Animal{}, fmt.Errorf("load animal: %w", err)
	}
	if !a.IsActive {
		return Animal{}, newError(ErrInvalidState, "animal %q is closed", id)
	}
	return a, nil
}

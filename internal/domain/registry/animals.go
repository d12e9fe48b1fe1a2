package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

func (s *Service) CreateAnimal(ctx context.Context, caller Principal, id string) (Animal, error) {
	var out Animal
	_, err := s.mutate(ctx, "create_animal", func(ctx context.Context, tx Tx, emit emitFunc) error {
		if err := requireRole(ctx, tx, caller, RoleOwner, RoleFarmer); err != nil {
			return err
		}
		if strings.TrimSpace(id) == "" {
			return newError(ErrInvalidInput, "animal id is required")
		}

		_, err := tx.Animal(ctx, id)
		if err == nil {
			return newError(ErrAlreadyExists, "animal %q already exists", id)
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("load animal: %w", err)
		}

		now := s.tick()
		out = Animal{
			ID:           id,
			QualityScore: InitialQualityScore,
			LastUpdated:  now,
			CurrentState: StateCreated,
			IsActive:     true,
			RecordIDs:    []uint64{},
		}
		if err := tx.InsertAnimal(ctx, out); err != nil {
			return err
		}
		return emit(animalCreated(caller, id, now))
	})
	if err != nil {
		return Animal{}, err
	}
	return out, nil
}

// CloseAnimal es terminal: un animal cerrado no acepta más mutaciones.
func (s *Service) CloseAnimal(ctx context.Context, caller Principal, id string) (Animal, error) {
	var out Animal
	_, err := s.mutate(ctx, "close_animal", func(ctx context.Context, tx Tx, emit emitFunc) error {
		if err := requireRole(ctx, tx, caller, RoleOwner); err != nil {
			return err
		}
		a, err := loadAnimal(ctx, tx, id)
		if err != nil {
			return err
		}
		if !a.IsActive {
			return newError(ErrInvalidState, "animal %q is already closed", id)
		}

		now := s.tick()
		a.IsActive = false
		a.CurrentState = StateClosed
		a.LastUpdated = now
		if err := tx.UpdateAnimal(ctx, a); err != nil {
			return fmt.Errorf("update animal: %w", err)
		}
		out = a
		return emit(animalClosed(caller, id, a.QualityScore, now))
	})
	if err != nil {
		return Animal{}, err
	}
	return out, nil
}

func (s *Service) GetAnimalInfo(ctx context.Context, id string) (AnimalInfo, error) {
	a, err := s.getAnimal(ctx, "get_animal_info", id)
	if err != nil {
		return AnimalInfo{}, err
	}
	return a.Info(), nil
}

// GetAnimal incluye RecordIDs además de la info.
func (s *Service) GetAnimal(ctx context.Context, id string) (Animal, error) {
	return s.getAnimal(ctx, "get_animal", id)
}

func (s *Service) GetAnimalRecords(ctx context.Context, id string) ([]uint64, error) {
	a, err := s.getAnimal(ctx, "get_animal_records", id)
	if err != nil {
		return nil, err
	}
	return a.RecordIDs, nil
}

func (s *Service) getAnimal(ctx context.Context, op, id string) (Animal, error) {
	var out Animal
	err := s.view(ctx, op, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = loadAnimal(ctx, tx, id)
		return err
	})
	if err != nil {
		return Animal{}, err
	}
	return out, nil
}

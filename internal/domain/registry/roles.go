package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Bootstrap fija el Owner y el identificador del registro. Es idempotente con
// los mismos valores; cualquier otro owner o hash viola el invariante de Owner único.
func (s *Service) Bootstrap(ctx context.Context, owner Principal, contractHash Hash) (Meta, error) {
	if strings.TrimSpace(string(owner)) == "" {
		return Meta{}, newError(ErrInvalidInput, "owner is required")
	}
	if contractHash.IsZero() {
		return Meta{}, newError(ErrInvalidInput, "contract hash must not be zero")
	}

	var out Meta
	_, err := s.mutate(ctx, "bootstrap", func(ctx context.Context, tx Tx, _ emitFunc) error {
		m, err := tx.Meta(ctx)
		switch {
		case err == nil:
			if m.Owner != owner {
				return newError(ErrInvariantViolation, "registry already owned by %s", m.Owner)
			}
			if m.ContractHash != contractHash {
				return newError(ErrInvariantViolation, "registry already bound to contract %s", m.ContractHash)
			}
			out = m
			return nil
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("load meta: %w", err)
		}

		out = Meta{Owner: owner, ContractHash: contractHash, CreatedAt: s.tick()}
		if err := tx.PutMeta(ctx, out); err != nil {
			return fmt.Errorf("put meta: %w", err)
		}
		if err := tx.PutRole(ctx, owner, RoleOwner); err != nil {
			return fmt.Errorf("put owner role: %w", err)
		}
		return nil
	})
	if err != nil {
		return Meta{}, err
	}
	return out, nil
}

func (s *Service) AssignRole(ctx context.Context, caller, principal Principal, role Role) error {
	_, err := s.mutate(ctx, "assign_role", func(ctx context.Context, tx Tx, emit emitFunc) error {
		if err := requireRole(ctx, tx, caller, RoleOwner); err != nil {
			return err
		}
		if strings.TrimSpace(string(principal)) == "" {
			return newError(ErrInvalidInput, "principal is required")
		}
		if !role.Valid() {
			return newError(ErrInvalidInput, "unknown role %d", uint8(role))
		}
		if role == RoleOwner {
			return newError(ErrInvalidInput, "owner role cannot be assigned")
		}
		if err := guardOwner(ctx, tx, principal); err != nil {
			return err
		}

		if err := tx.PutRole(ctx, principal, role); err != nil {
			return fmt.Errorf("put role: %w", err)
		}
		return emit(roleAssigned(caller, principal, role, s.tick()))
	})
	return err
}

// RevokeRole deja al principal en None. No emite notificación.
func (s *Service) RevokeRole(ctx context.Context, caller, principal Principal) error {
	_, err := s.mutate(ctx, "revoke_role", func(ctx context.Context, tx Tx, _ emitFunc) error {
		if err := requireRole(ctx, tx, caller, RoleOwner); err != nil {
			return err
		}
		if strings.TrimSpace(string(principal)) == "" {
			return newError(ErrInvalidInput, "principal is required")
		}
		if err := guardOwner(ctx, tx, principal); err != nil {
			return err
		}
		if err := tx.PutRole(ctx, principal, RoleNone); err != nil {
			return fmt.Errorf("put role: %w", err)
		}
		return nil
	})
	return err
}

func guardOwner(ctx context.Context, tx Tx, principal Principal) error {
	current, err := tx.Role(ctx, principal)
	if err != nil {
		return fmt.Errorf("load role: %w", err)
	}
	if current == RoleOwner {
		return newError(ErrInvariantViolation, "owner role of %s cannot be changed", principal)
	}
	return nil
}

func (s *Service) GetRole(ctx context.Context, principal Principal) (Role, error) {
	role := RoleNone
	err := s.view(ctx, "get_role", func(ctx context.Context, tx Tx) error {
		var err error
		role, err = tx.Role(ctx, principal)
		return err
	})
	if err != nil {
		return RoleNone, err
	}
	return role, nil
}

// HasAnyRole es un predicado puro sobre el estado actual. Un principal sin rol
// (None) no satisface ningún conjunto.
func (s *Service) HasAnyRole(ctx context.Context, principal Principal, roles ...Role) (bool, error) {
	role, err := s.GetRole(ctx, principal)
	if err != nil {
		return false, err
	}
	return roleIn(role, roles), nil
}

// Info devuelve la identidad del registro y el contador de registros.
func (s *Service) Info(ctx context.Context) (Info, error) {
	var out Info
	err := s.view(ctx, "info", func(ctx context.Context, tx Tx) error {
		m, err := tx.Meta(ctx)
		if errors.Is(err, ErrNotFound) {
			return newError(ErrNotFound, "registry not bootstrapped")
		}
		if err != nil {
			return err
		}
		total, err := tx.RecordCounter(ctx)
		if err != nil {
			return err
		}
		out = Info{Owner: m.Owner, ContractHash: m.ContractHash, CreatedAt: m.CreatedAt, TotalRecords: total}
		return nil
	})
	if err != nil {
		return Info{}, err
	}
	return out, nil
}

// Package storetest contiene la batería común que todo registry.Store debe pasar.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"certivax/internal/domain/registry"

	"github.com/stretchr/testify/suite"
)

var errAbort = errors.New("abort")

// Suite se embebe desde el test de cada backend, que completa NewStore.
type Suite struct {
	suite.Suite

	// NewStore devuelve un store vacío y migrado.
	NewStore func() registry.Store

	ctx   context.Context
	store registry.Store
	at    time.Time
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore must be set")
	s.ctx = context.Background()
	s.store = s.NewStore()
	s.at = time.Date(2025, 5, 10, 8, 30, 0, 123000, time.UTC)
}

func (s *Suite) update(fn func(tx registry.Tx) error) error {
	return s.store.Update(s.ctx, func(_ context.Context, tx registry.Tx) error { return fn(tx) })
}

func (s *Suite) view(fn func(tx registry.Tx) error) {
	s.Require().NoError(s.store.View(s.ctx, func(_ context.Context, tx registry.Tx) error { return fn(tx) }))
}

func (s *Suite) animal(id string) registry.Animal {
	return registry.Animal{
		ID:           id,
		QualityScore: registry.InitialQualityScore,
		LastUpdated:  s.at,
		CurrentState: registry.StateCreated,
		IsActive:     true,
		RecordIDs:    []uint64{},
	}
}

func (s *Suite) record(id uint64, animalID string) registry.Record {
	return registry.Record{
		ID:         id,
		AnimalID:   animalID,
		EventType:  registry.EventHealthCheck,
		CertHash:   registry.Commitment([]byte(animalID)),
		MetaJSON:   `{"vet":"dr. ruiz"}`,
		Actor:      "vet-1",
		VerifState: registry.VerifPending,
		DTEState:   registry.StateRegistered,
		CreatedAt:  s.at,
	}
}

func (s *Suite) TestMeta() {
	s.view(func(tx registry.Tx) error {
		_, err := tx.Meta(s.ctx)
		s.ErrorIs(err, registry.ErrNotFound)
		return nil
	})

	m := registry.Meta{Owner: "owner-1", ContractHash: registry.Commitment([]byte("c")), CreatedAt: s.at}
	s.Require().NoError(s.update(func(tx registry.Tx) error { return tx.PutMeta(s.ctx, m) }))

	s.view(func(tx registry.Tx) error {
		got, err := tx.Meta(s.ctx)
		s.Require().NoError(err)
		s.Equal(m, got)
		return nil
	})
}

func (s *Suite) TestRoles() {
	s.view(func(tx registry.Tx) error {
		r, err := tx.Role(s.ctx, "unknown")
		s.Require().NoError(err)
		s.Equal(registry.RoleNone, r)
		return nil
	})

	s.Require().NoError(s.update(func(tx registry.Tx) error {
		if err := tx.PutRole(s.ctx, "p", registry.RoleVet); err != nil {
			return err
		}
		return tx.PutRole(s.ctx, "p", registry.RoleAuditor)
	}))

	s.view(func(tx registry.Tx) error {
		r, err := tx.Role(s.ctx, "p")
		s.Require().NoError(err)
		s.Equal(registry.RoleAuditor, r)
		return nil
	})
}

func (s *Suite) TestAnimals() {
	a := s.animal("A-1")
	s.Require().NoError(s.update(func(tx registry.Tx) error { return tx.InsertAnimal(s.ctx, a) }))

	err := s.update(func(tx registry.Tx) error { return tx.InsertAnimal(s.ctx, a) })
	s.ErrorIs(err, registry.ErrAlreadyExists)

	a.QualityScore = 40
	a.CurrentState = registry.StateClosed
	a.IsActive = false
	a.LastUpdated = s.at.Add(time.Minute)
	s.Require().NoError(s.update(func(tx registry.Tx) error { return tx.UpdateAnimal(s.ctx, a) }))

	s.view(func(tx registry.Tx) error {
		got, err := tx.Animal(s.ctx, "A-1")
		s.Require().NoError(err)
		s.Equal(a, got)

		_, err = tx.Animal(s.ctx, "missing")
		s.ErrorIs(err, registry.ErrNotFound)
		_, err = tx.AnimalRecordIDs(s.ctx, "missing")
		s.ErrorIs(err, registry.ErrNotFound)
		return nil
	})

	err = s.update(func(tx registry.Tx) error { return tx.UpdateAnimal(s.ctx, s.animal("ghost")) })
	s.ErrorIs(err, registry.ErrNotFound)
}

func (s *Suite) TestRecordsAndCounter() {
	s.Require().NoError(s.update(func(tx registry.Tx) error {
		if err := tx.InsertAnimal(s.ctx, s.animal("A")); err != nil {
			return err
		}
		return tx.InsertAnimal(s.ctx, s.animal("B"))
	}))

	for _, animalID := range []string{"A", "B", "A"} {
		s.Require().NoError(s.update(func(tx registry.Tx) error {
			id, err := tx.NextRecordID(s.ctx)
			if err != nil {
				return err
			}
			return tx.InsertRecord(s.ctx, s.record(id, animalID))
		}))
	}

	s.view(func(tx registry.Tx) error {
		total, err := tx.RecordCounter(s.ctx)
		s.Require().NoError(err)
		s.Equal(uint64(3), total)

		ids, err := tx.AnimalRecordIDs(s.ctx, "A")
		s.Require().NoError(err)
		s.Equal([]uint64{1, 3}, ids)

		b, err := tx.Animal(s.ctx, "B")
		s.Require().NoError(err)
		s.Equal([]uint64{2}, b.RecordIDs)
		s.Equal(1, b.TotalRecords)

		r, err := tx.Record(s.ctx, 3)
		s.Require().NoError(err)
		s.Equal(s.record(3, "A"), r)

		_, err = tx.Record(s.ctx, 4)
		s.ErrorIs(err, registry.ErrNotFound)
		return nil
	})

	err := s.update(func(tx registry.Tx) error { return tx.InsertRecord(s.ctx, s.record(1, "A")) })
	s.ErrorIs(err, registry.ErrAlreadyExists)

	upd := s.record(2, "B")
	upd.VerifState = registry.VerifRevoked
	upd.DTEState = registry.StateRejected
	upd.RevocationReason = "certificado adulterado"
	s.Require().NoError(s.update(func(tx registry.Tx) error { return tx.UpdateRecord(s.ctx, upd) }))

	s.view(func(tx registry.Tx) error {
		r, err := tx.Record(s.ctx, 2)
		s.Require().NoError(err)
		s.Equal(upd, r)
		return nil
	})

	err = s.update(func(tx registry.Tx) error { return tx.UpdateRecord(s.ctx, s.record(99, "A")) })
	s.ErrorIs(err, registry.ErrNotFound)
}

func (s *Suite) TestRollbackOnError() {
	err := s.update(func(tx registry.Tx) error {
		if err := tx.InsertAnimal(s.ctx, s.animal("A")); err != nil {
			return err
		}
		if _, err := tx.NextRecordID(s.ctx); err != nil {
			return err
		}
		if err := tx.PutRole(s.ctx, "p", registry.RoleVet); err != nil {
			return err
		}
		if _, err := tx.AppendNotification(s.ctx, registry.Notification{ID: "n-1", Kind: registry.KindAnimalCreated, OccurredAt: s.at}); err != nil {
			return err
		}
		return errAbort
	})
	s.Require().ErrorIs(err, errAbort)

	s.view(func(tx registry.Tx) error {
		_, err := tx.Animal(s.ctx, "A")
		s.ErrorIs(err, registry.ErrNotFound)

		total, err := tx.RecordCounter(s.ctx)
		s.Require().NoError(err)
		s.Equal(uint64(0), total)

		r, err := tx.Role(s.ctx, "p")
		s.Require().NoError(err)
		s.Equal(registry.RoleNone, r)

		notes, err := tx.Notifications(s.ctx, 0, 10)
		s.Require().NoError(err)
		s.Empty(notes)
		return nil
	})
}

func (s *Suite) TestViewIsReadOnly() {
	err := s.store.View(s.ctx, func(ctx context.Context, tx registry.Tx) error {
		return tx.PutRole(ctx, "p", registry.RoleVet)
	})
	s.Error(err)

	err = s.store.View(s.ctx, func(ctx context.Context, tx registry.Tx) error {
		_, err := tx.NextRecordID(ctx)
		return err
	})
	s.Error(err)
}

func (s *Suite) TestNotifications() {
	role := registry.RoleFarmer
	score := 90
	hash := registry.Commitment([]byte("x"))

	in := []registry.Notification{
		{ID: "n-1", Kind: registry.KindRoleAssigned, Caller: "owner-1", OccurredAt: s.at, Subject: "farmer-1", Role: &role},
		{ID: "n-2", Kind: registry.KindRecordRevoked, Caller: "auditor-1", OccurredAt: s.at, AnimalID: "A", RecordID: 7, CertHash: &hash, QualityScore: &score, Reason: "mal"},
		{ID: "n-3", Kind: registry.KindAnimalClosed, Caller: "owner-1", OccurredAt: s.at, AnimalID: "A", QualityScore: &score},
	}

	var seqs []uint64
	s.Require().NoError(s.update(func(tx registry.Tx) error {
		for _, n := range in {
			seq, err := tx.AppendNotification(s.ctx, n)
			if err != nil {
				return err
			}
			seqs = append(seqs, seq)
		}
		return nil
	}))
	s.Require().Len(seqs, 3)
	s.Less(seqs[0], seqs[1])
	s.Less(seqs[1], seqs[2])

	s.view(func(tx registry.Tx) error {
		all, err := tx.Notifications(s.ctx, 0, 10)
		s.Require().NoError(err)
		s.Require().Len(all, 3)

		unbounded, err := tx.Notifications(s.ctx, 0, 0)
		s.Require().NoError(err)
		s.Equal(all, unbounded, "limit <= 0 means no limit")
		for i := range in {
			want := in[i]
			want.Seq = seqs[i]
			s.Equal(want, all[i])
		}

		page, err := tx.Notifications(s.ctx, seqs[0], 1)
		s.Require().NoError(err)
		s.Require().Len(page, 1)
		s.Equal("n-2", page[0].ID)

		rest, err := tx.Notifications(s.ctx, seqs[2], 10)
		s.Require().NoError(err)
		s.Empty(rest)
		return nil
	})
}

// TestConcurrentCreateAndProcess corre el servicio completo sobre el store con
// escrituras en paralelo: los ids no tienen huecos ni repetidos y, entre
// verify y revoke sobre el mismo registro, gana una sola llamada.
func (s *Suite) TestConcurrentCreateAndProcess() {
	const (
		owner   = registry.Principal("owner-1")
		vet     = registry.Principal("vet-1")
		auditor = registry.Principal("auditor-1")

		perAnimal = 10
		racers    = 10
	)
	animals := []string{"A-1", "A-2", "A-3", "A-4"}

	svc := registry.NewService(s.store, registry.Options{})
	_, err := svc.Bootstrap(s.ctx, owner, registry.Commitment([]byte("certivax")))
	s.Require().NoError(err)
	s.Require().NoError(svc.AssignRole(s.ctx, owner, vet, registry.RoleVet))
	s.Require().NoError(svc.AssignRole(s.ctx, owner, auditor, registry.RoleAuditor))
	for _, id := range animals {
		_, err := svc.CreateAnimal(s.ctx, owner, id)
		s.Require().NoError(err)
	}

	total := len(animals) * perAnimal
	ids := make(chan uint64, total)
	errs := make(chan error, total)
	var wg sync.WaitGroup
	for _, animalID := range animals {
		for i := 0; i < perAnimal; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := svc.CreateRecord(s.ctx, vet, registry.CreateRecordInput{
					AnimalID:  animalID,
					EventType: registry.EventHealthCheck,
					CertHash:  registry.Commitment([]byte(fmt.Sprintf("%s-%d", animalID, i))),
					MetaJSON:  "{}",
				})
				if err != nil {
					errs <- err
					return
				}
				ids <- r.ID
			}()
		}
	}
	wg.Wait()
	close(ids)
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	got := make([]uint64, 0, total)
	for id := range ids {
		got = append(got, id)
	}
	slices.Sort(got)
	want := make([]uint64, 0, total)
	for i := 1; i <= total; i++ {
		want = append(want, uint64(i))
	}
	s.Equal(want, got)

	count, err := svc.GetTotalRecords(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(total), count)
	for _, animalID := range animals {
		recs, err := svc.GetAnimalRecords(s.ctx, animalID)
		s.Require().NoError(err)
		s.Len(recs, perAnimal, animalID)
	}

	var (
		wins     atomic.Int32
		verified atomic.Int32
		losers   = make(chan error, racers)
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = svc.VerifyRecord(s.ctx, auditor, 1)
				if err == nil {
					verified.Add(1)
				}
			} else {
				_, err = svc.RevokeRecord(s.ctx, auditor, 1, "duplicado")
			}
			if err != nil {
				losers <- err
				return
			}
			wins.Add(1)
		}()
	}
	wg.Wait()
	close(losers)

	s.Equal(int32(1), wins.Load())
	for err := range losers {
		s.ErrorIs(err, registry.ErrInvalidState)
	}

	r, err := svc.GetRecord(s.ctx, 1)
	s.Require().NoError(err)
	a, err := svc.GetAnimal(s.ctx, r.AnimalID)
	s.Require().NoError(err)
	if verified.Load() == 1 {
		s.Equal(registry.VerifVerified, r.VerifState)
		s.Equal(registry.MaxQualityScore, a.QualityScore)
	} else {
		s.Equal(registry.VerifRevoked, r.VerifState)
		s.Equal(registry.InitialQualityScore-10, a.QualityScore)
	}
}

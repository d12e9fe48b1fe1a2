package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"certivax/internal/adapters/storage/memory"
	"certivax/internal/domain/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	owner   registry.Principal = "owner-1"
	vet     registry.Principal = "vet-1"
	feedOp  registry.Principal = "feed-1"
	auditor registry.Principal = "auditor-1"
	farmer  registry.Principal = "farmer-1"
	buyer   registry.Principal = "buyer-1"
	nobody  registry.Principal = "nobody"
)

var contractHash = registry.Commitment([]byte("certivax-test"))

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type ServiceSuite struct {
	suite.Suite
	ctx   context.Context
	clock *fakeClock
	svc   *registry.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.svc = registry.NewService(memory.NewStore(), registry.Options{Now: s.clock.Now})

	_, err := s.svc.Bootstrap(s.ctx, owner, contractHash)
	s.Require().NoError(err)

	for p, r := range map[registry.Principal]registry.Role{
		vet:     registry.RoleVet,
		feedOp:  registry.RoleFeedOp,
		auditor: registry.RoleAuditor,
		farmer:  registry.RoleFarmer,
		buyer:   registry.RoleBuyer,
	} {
		s.Require().NoError(s.svc.AssignRole(s.ctx, owner, p, r))
	}
}

func (s *ServiceSuite) newAnimal(id string) registry.Animal {
	a, err := s.svc.CreateAnimal(s.ctx, farmer, id)
	s.Require().NoError(err)
	return a
}

func (s *ServiceSuite) newRecord(animalID string) registry.Record {
	meta := `{"animal":"` + animalID + `","n":` + time.Now().Format("150405.000000000") + `}`
	r, err := s.svc.CreateRecord(s.ctx, vet, registry.CreateRecordInput{
		AnimalID:  animalID,
		EventType: registry.EventVaccination,
		CertHash:  registry.Commitment([]byte(meta)),
		MetaJSON:  meta,
	})
	s.Require().NoError(err)
	return r
}

func (s *ServiceSuite) notificationCount() int {
	notes, err := s.svc.ListNotifications(s.ctx, 0, registry.MaxNotificationLimit)
	s.Require().NoError(err)
	return len(notes)
}

func (s *ServiceSuite) TestBootstrap() {
	info, err := s.svc.Info(s.ctx)
	s.Require().NoError(err)
	s.Equal(owner, info.Owner)
	s.Equal(contractHash, info.ContractHash)
	s.Equal(uint64(0), info.TotalRecords)

	_, err = s.svc.Bootstrap(s.ctx, owner, contractHash)
	s.NoError(err, "same owner and hash is a no-op")

	_, err = s.svc.Bootstrap(s.ctx, "someone-else", contractHash)
	s.ErrorIs(err, registry.ErrInvariantViolation)

	_, err = s.svc.Bootstrap(s.ctx, owner, registry.Commitment([]byte("other")))
	s.ErrorIs(err, registry.ErrInvariantViolation)

	_, err = s.svc.Bootstrap(s.ctx, "", contractHash)
	s.ErrorIs(err, registry.ErrInvalidInput)
}

func (s *ServiceSuite) TestInfo_NotBootstrapped() {
	svc := registry.NewService(memory.NewStore(), registry.Options{})
	_, err := svc.Info(s.ctx)
	s.ErrorIs(err, registry.ErrNotFound)

	// Sin owner nadie tiene rol.
	_, err = svc.CreateAnimal(s.ctx, owner, "A-1")
	s.ErrorIs(err, registry.ErrUnauthorized)
}

func (s *ServiceSuite) TestAssignRole() {
	before := s.notificationCount()

	s.ErrorIs(s.svc.AssignRole(s.ctx, vet, "new-vet", registry.RoleVet), registry.ErrUnauthorized)
	s.ErrorIs(s.svc.AssignRole(s.ctx, owner, "x", registry.RoleOwner), registry.ErrInvalidInput)
	s.ErrorIs(s.svc.AssignRole(s.ctx, owner, "x", registry.Role(9)), registry.ErrInvalidInput)
	s.ErrorIs(s.svc.AssignRole(s.ctx, owner, "", registry.RoleVet), registry.ErrInvalidInput)
	s.ErrorIs(s.svc.AssignRole(s.ctx, owner, owner, registry.RoleVet), registry.ErrInvariantViolation)
	s.Equal(before, s.notificationCount(), "failed calls must not emit")

	s.Require().NoError(s.svc.AssignRole(s.ctx, owner, "new-vet", registry.RoleVet))
	role, err := s.svc.GetRole(s.ctx, "new-vet")
	s.Require().NoError(err)
	s.Equal(registry.RoleVet, role)

	// Sobrescribe el rol anterior.
	s.Require().NoError(s.svc.AssignRole(s.ctx, owner, "new-vet", registry.RoleAuditor))
	role, err = s.svc.GetRole(s.ctx, "new-vet")
	s.Require().NoError(err)
	s.Equal(registry.RoleAuditor, role)

	notes, err := s.svc.ListNotifications(s.ctx, uint64(before), 10)
	s.Require().NoError(err)
	s.Require().Len(notes, 2)
	s.Equal(registry.KindRoleAssigned, notes[1].Kind)
	s.Equal(registry.Principal("new-vet"), notes[1].Subject)
	s.Require().NotNil(notes[1].Role)
	s.Equal(registry.RoleAuditor, *notes[1].Role)
	s.Equal(owner, notes[1].Caller)
}

func (s *ServiceSuite) TestRevokeRole() {
	before := s.notificationCount()

	s.ErrorIs(s.svc.RevokeRole(s.ctx, auditor, vet), registry.ErrUnauthorized)
	s.ErrorIs(s.svc.RevokeRole(s.ctx, owner, owner), registry.ErrInvariantViolation)

	s.Require().NoError(s.svc.RevokeRole(s.ctx, owner, vet))
	ok, err := s.svc.HasAnyRole(s.ctx, vet, registry.RoleVet, registry.RoleFeedOp)
	s.Require().NoError(err)
	s.False(ok)

	s.Equal(before, s.notificationCount(), "revokeRole emits nothing")

	// Un vet revocado ya no puede crear registros.
	s.newAnimal("A-1")
	_, err = s.svc.CreateRecord(s.ctx, vet, registry.CreateRecordInput{
		AnimalID: "A-1", EventType: registry.EventVaccination, CertHash: contractHash,
	})
	s.ErrorIs(err, registry.ErrUnauthorized)

	role, err := s.svc.GetRole(s.ctx, owner)
	s.Require().NoError(err)
	s.Equal(registry.RoleOwner, role)
}

func (s *ServiceSuite) TestHasAnyRole() {
	ok, err := s.svc.HasAnyRole(s.ctx, nobody, registry.RoleVet, registry.RoleBuyer, registry.RoleOwner)
	s.Require().NoError(err)
	s.False(ok, "unassigned principal satisfies no set")

	ok, err = s.svc.HasAnyRole(s.ctx, nobody, registry.RoleNone)
	s.Require().NoError(err)
	s.False(ok, "None is never a granted role")

	ok, err = s.svc.HasAnyRole(s.ctx, auditor)
	s.Require().NoError(err)
	s.False(ok, "empty set")

	ok, err = s.svc.HasAnyRole(s.ctx, auditor, registry.RoleOwner, registry.RoleAuditor)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *ServiceSuite) TestCreateAnimal() {
	_, err := s.svc.CreateAnimal(s.ctx, vet, "A-1")
	s.ErrorIs(err, registry.ErrUnauthorized)

	_, err = s.svc.CreateAnimal(s.ctx, farmer, "  ")
	s.ErrorIs(err, registry.ErrInvalidInput)

	a, err := s.svc.CreateAnimal(s.ctx, farmer, "A-1")
	s.Require().NoError(err)
	s.Equal(100, a.QualityScore)
	s.Equal(registry.StateCreated, a.CurrentState)
	s.True(a.IsActive)
	s.Equal(0, a.TotalRecords)
	s.Empty(a.RecordIDs)
	s.Equal(s.clock.t, a.LastUpdated)

	_, err = s.svc.CreateAnimal(s.ctx, owner, "A-1")
	s.ErrorIs(err, registry.ErrAlreadyExists)

	_, err = s.svc.CreateAnimal(s.ctx, owner, "A-2")
	s.NoError(err, "owner may also create animals")

	info, err := s.svc.GetAnimalInfo(s.ctx, "A-1")
	s.Require().NoError(err)
	s.Equal(registry.AnimalInfo{
		QualityScore: 100,
		LastUpdated:  s.clock.t,
		CurrentState: registry.StateCreated,
		IsActive:     true,
	}, info)

	_, err = s.svc.GetAnimalInfo(s.ctx, "missing")
	s.ErrorIs(err, registry.ErrNotFound)
}

func (s *ServiceSuite) TestCloseAnimal() {
	s.newAnimal("A-1")

	_, err := s.svc.CloseAnimal(s.ctx, farmer, "A-1")
	s.ErrorIs(err, registry.ErrUnauthorized)

	_, err = s.svc.CloseAnimal(s.ctx, owner, "missing")
	s.ErrorIs(err, registry.ErrNotFound)

	s.clock.Advance(time.Hour)
	a, err := s.svc.CloseAnimal(s.ctx, owner, "A-1")
	s.Require().NoError(err)
	s.False(a.IsActive)
	s.Equal(registry.StateClosed, a.CurrentState)
	s.Equal(s.clock.t, a.LastUpdated)

	_, err = s.svc.CloseAnimal(s.ctx, owner, "A-1")
	s.ErrorIs(err, registry.ErrInvalidState)

	notes, err := s.svc.ListNotifications(s.ctx, 0, 100)
	s.Require().NoError(err)
	last := notes[len(notes)-1]
	s.Equal(registry.KindAnimalClosed, last.Kind)
	s.Equal("A-1", last.AnimalID)
	s.Require().NotNil(last.QualityScore)
	s.Equal(100, *last.QualityScore)
}

func (s *ServiceSuite) TestCloseThenCreateRecordFails() {
	s.newAnimal("A-1")
	s.newRecord("A-1")

	_, err := s.svc.CloseAnimal(s.ctx, owner, "A-1")
	s.Require().NoError(err)

	_, err = s.svc.CreateRecord(s.ctx, vet, registry.CreateRecordInput{
		AnimalID:  "A-1",
		EventType: registry.EventHealthCheck,
		CertHash:  contractHash,
	})
	s.ErrorIs(err, registry.ErrInvalidState)

	total, err := s.svc.GetTotalRecords(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(1), total, "ledger unchanged")

	ids, err := s.svc.GetAnimalRecords(s.ctx, "A-1")
	s.Require().NoError(err)
	s.Equal([]uint64{1}, ids)
}

func (s *ServiceSuite) TestCreateRecord_Validation() {
	s.newAnimal("A-1")
	valid := registry.CreateRecordInput{AnimalID: "A-1", EventType: registry.EventFeeding, CertHash: contractHash}

	_, err := s.svc.CreateRecord(s.ctx, buyer, valid)
	s.ErrorIs(err, registry.ErrUnauthorized)
	_, err = s.svc.CreateRecord(s.ctx, auditor, valid)
	s.ErrorIs(err, registry.ErrUnauthorized)

	missing := valid
	missing.AnimalID = "nope"
	_, err = s.svc.CreateRecord(s.ctx, vet, missing)
	s.ErrorIs(err, registry.ErrNotFound)

	zero := valid
	zero.CertHash = registry.ZeroHash
	_, err = s.svc.CreateRecord(s.ctx, vet, zero)
	s.ErrorIs(err, registry.ErrInvalidInput)

	badType := valid
	badType.EventType = registry.EventType(7)
	_, err = s.svc.CreateRecord(s.ctx, feedOp, badType)
	s.ErrorIs(err, registry.ErrInvalidInput)

	total, err := s.svc.GetTotalRecords(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(0), total, "failed creations must not consume ids")

	r, err := s.svc.CreateRecord(s.ctx, feedOp, valid)
	s.Require().NoError(err)
	s.Equal(uint64(1), r.ID)
	s.Equal(feedOp, r.Actor)
}

func (s *ServiceSuite) TestCreateRecord_UpdatesAnimal() {
	s.newAnimal("A-1")
	s.clock.Advance(time.Minute)

	r := s.newRecord("A-1")
	s.Equal(uint64(1), r.ID)
	s.Equal(registry.VerifPending, r.VerifState)
	s.Equal(registry.StateRegistered, r.DTEState)
	s.Equal(vet, r.Actor)
	s.Equal(s.clock.t, r.CreatedAt)
	s.Empty(r.RevocationReason)

	a, err := s.svc.GetAnimal(s.ctx, "A-1")
	s.Require().NoError(err)
	s.Equal(registry.StatePendingReview, a.CurrentState)
	s.Equal([]uint64{1}, a.RecordIDs)
	s.Equal(1, a.TotalRecords)
	s.Equal(s.clock.t, a.LastUpdated)

	got, err := s.svc.GetRecord(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(r, got)

	_, err = s.svc.GetRecord(s.ctx, 99)
	s.ErrorIs(err, registry.ErrNotFound)

	notes, err := s.svc.ListNotifications(s.ctx, 0, 100)
	s.Require().NoError(err)
	last := notes[len(notes)-1]
	s.Equal(registry.KindRecordCreated, last.Kind)
	s.Equal(uint64(1), last.RecordID)
	s.Equal(vet, last.Caller)
	s.Require().NotNil(last.CertHash)
	s.Equal(r.CertHash, *last.CertHash)
}

func (s *ServiceSuite) TestRecordIDsIncreaseAcrossAnimals() {
	s.newAnimal("A")
	s.newAnimal("B")

	var ids []uint64
	for _, animal := range []string{"A", "B", "A", "B", "B"} {
		ids = append(ids, s.newRecord(animal).ID)
	}
	s.Equal([]uint64{1, 2, 3, 4, 5}, ids)

	a, err := s.svc.GetAnimalRecords(s.ctx, "A")
	s.Require().NoError(err)
	s.Equal([]uint64{1, 3}, a)

	b, err := s.svc.GetAnimal(s.ctx, "B")
	s.Require().NoError(err)
	s.Equal([]uint64{2, 4, 5}, b.RecordIDs)
	s.Equal(3, b.TotalRecords)

	total, err := s.svc.GetTotalRecords(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(5), total)
}

func (s *ServiceSuite) TestVerifyRecord() {
	s.newAnimal("A-1")
	r := s.newRecord("A-1")

	_, err := s.svc.VerifyRecord(s.ctx, vet, r.ID)
	s.ErrorIs(err, registry.ErrUnauthorized)
	_, err = s.svc.VerifyRecord(s.ctx, owner, r.ID)
	s.ErrorIs(err, registry.ErrUnauthorized, "only auditors verify")

	_, err = s.svc.VerifyRecord(s.ctx, auditor, 42)
	s.ErrorIs(err, registry.ErrNotFound)

	s.clock.Advance(time.Minute)
	got, err := s.svc.VerifyRecord(s.ctx, auditor, r.ID)
	s.Require().NoError(err)
	s.Equal(registry.VerifVerified, got.VerifState)
	s.Equal(registry.StateVerified, got.DTEState)

	a, err := s.svc.GetAnimalInfo(s.ctx, "A-1")
	s.Require().NoError(err)
	s.Equal(registry.StateInTracking, a.CurrentState)
	s.Equal(100, a.QualityScore, "capped at 100")
	s.Equal(s.clock.t, a.LastUpdated)

	_, err = s.svc.VerifyRecord(s.ctx, auditor, r.ID)
	s.ErrorIs(err, registry.ErrInvalidState)
	s.Equal("record already processed", registry.ReasonOf(err))

	_, err = s.svc.RevokeRecord(s.ctx, auditor, r.ID, "late")
	s.ErrorIs(err, registry.ErrInvalidState)
	s.Equal("record already processed", registry.ReasonOf(err))
}

func (s *ServiceSuite) TestRevokeRecord() {
	s.newAnimal("A-1")
	r := s.newRecord("A-1")

	_, err := s.svc.RevokeRecord(s.ctx, farmer, r.ID, "x")
	s.ErrorIs(err, registry.ErrUnauthorized)

	_, err = s.svc.RevokeRecord(s.ctx, auditor, 77, "x")
	s.ErrorIs(err, registry.ErrNotFound)

	got, err := s.svc.RevokeRecord(s.ctx, auditor, r.ID, "lote vencido")
	s.Require().NoError(err)
	s.Equal(registry.VerifRevoked, got.VerifState)
	s.Equal(registry.StateRejected, got.DTEState)
	s.Equal("lote vencido", got.RevocationReason)

	a, err := s.svc.GetAnimalInfo(s.ctx, "A-1")
	s.Require().NoError(err)
	s.Equal(registry.StateRejected, a.CurrentState)
	s.Equal(90, a.QualityScore)

	_, err = s.svc.RevokeRecord(s.ctx, auditor, r.ID, "again")
	s.ErrorIs(err, registry.ErrInvalidState)
	s.Equal("record already revoked", registry.ReasonOf(err))

	_, err = s.svc.VerifyRecord(s.ctx, auditor, r.ID)
	s.ErrorIs(err, registry.ErrInvalidState)

	notes, err := s.svc.ListNotifications(s.ctx, 0, 100)
	s.Require().NoError(err)
	last := notes[len(notes)-1]
	s.Equal(registry.KindRecordRevoked, last.Kind)
	s.Equal("lote vencido", last.Reason)
	s.Equal(auditor, last.Caller)
}

func (s *ServiceSuite) TestQualityScoreStaysInBounds() {
	s.newAnimal("A-1")

	steps := []struct {
		verify bool
		want   int
	}{
		{false, 90},
		{true, 95},
		{true, 100},
		{true, 100},
		{false, 90},
	}
	for i, st := range steps {
		r := s.newRecord("A-1")
		var err error
		if st.verify {
			_, err = s.svc.VerifyRecord(s.ctx, auditor, r.ID)
		} else {
			_, err = s.svc.RevokeRecord(s.ctx, auditor, r.ID, "")
		}
		s.Require().NoError(err)

		a, err := s.svc.GetAnimalInfo(s.ctx, "A-1")
		s.Require().NoError(err)
		s.Equalf(st.want, a.QualityScore, "step %d", i)
	}
}

func (s *ServiceSuite) TestTwelveRevocationsFloorAtZero() {
	s.newAnimal("A-1")

	for i := 0; i < 12; i++ {
		r := s.newRecord("A-1")
		_, err := s.svc.RevokeRecord(s.ctx, auditor, r.ID, "bad")
		s.Require().NoError(err)

		a, err := s.svc.GetAnimalInfo(s.ctx, "A-1")
		s.Require().NoError(err)
		s.GreaterOrEqual(a.QualityScore, 0)
	}

	a, err := s.svc.GetAnimalInfo(s.ctx, "A-1")
	s.Require().NoError(err)
	s.Equal(0, a.QualityScore)
	s.Equal(12, a.TotalRecords)
}

func (s *ServiceSuite) TestUpdateRecordState() {
	s.newAnimal("A-1")
	r := s.newRecord("A-1")

	_, err := s.svc.UpdateRecordState(s.ctx, owner, r.ID, registry.StateUpdated)
	s.ErrorIs(err, registry.ErrInvalidState, "pending record")

	_, err = s.svc.VerifyRecord(s.ctx, auditor, r.ID)
	s.Require().NoError(err)

	_, err = s.svc.UpdateRecordState(s.ctx, farmer, r.ID, registry.StateUpdated)
	s.ErrorIs(err, registry.ErrUnauthorized)

	_, err = s.svc.UpdateRecordState(s.ctx, owner, 999, registry.StateUpdated)
	s.ErrorIs(err, registry.ErrNotFound)

	_, err = s.svc.UpdateRecordState(s.ctx, owner, r.ID, registry.DTEState(42))
	s.ErrorIs(err, registry.ErrInvalidInput)

	s.clock.Advance(time.Minute)
	got, err := s.svc.UpdateRecordState(s.ctx, owner, r.ID, registry.StateUpdated)
	s.Require().NoError(err)
	s.Equal(registry.StateUpdated, got.DTEState)
	s.Equal(registry.VerifVerified, got.VerifState, "verification state is untouched")

	a, err := s.svc.GetAnimalInfo(s.ctx, "A-1")
	s.Require().NoError(err)
	s.Equal(registry.StateUpdated, a.CurrentState)
	s.Equal(s.clock.t, a.LastUpdated)

	_, err = s.svc.UpdateRecordState(s.ctx, owner, r.ID, registry.StateInTracking)
	s.ErrorIs(err, registry.ErrInvalidState, "record is no longer Verified")

	// El auditor también puede, sobre otro registro verificado.
	r2 := s.newRecord("A-1")
	_, err = s.svc.VerifyRecord(s.ctx, auditor, r2.ID)
	s.Require().NoError(err)
	_, err = s.svc.UpdateRecordState(s.ctx, auditor, r2.ID, registry.StateUpdated)
	s.NoError(err)
}

func (s *ServiceSuite) TestWorkflowRejectsClosedAnimal() {
	s.newAnimal("A-1")
	pending := s.newRecord("A-1")
	verified := s.newRecord("A-1")
	_, err := s.svc.VerifyRecord(s.ctx, auditor, verified.ID)
	s.Require().NoError(err)

	closed, err := s.svc.CloseAnimal(s.ctx, owner, "A-1")
	s.Require().NoError(err)

	_, err = s.svc.VerifyRecord(s.ctx, auditor, pending.ID)
	s.ErrorIs(err, registry.ErrInvalidState)
	_, err = s.svc.RevokeRecord(s.ctx, auditor, pending.ID, "x")
	s.ErrorIs(err, registry.ErrInvalidState)
	_, err = s.svc.UpdateRecordState(s.ctx, owner, verified.ID, registry.StateUpdated)
	s.ErrorIs(err, registry.ErrInvalidState)

	r, err := s.svc.GetRecord(s.ctx, pending.ID)
	s.Require().NoError(err)
	s.Equal(registry.VerifPending, r.VerifState)

	a, err := s.svc.GetAnimal(s.ctx, "A-1")
	s.Require().NoError(err)
	s.Equal(closed, a)
}

func (s *ServiceSuite) TestVerifyRecordHash() {
	s.newAnimal("A-1")
	r := s.newRecord("A-1")

	ok, err := s.svc.VerifyRecordHash(s.ctx, r.ID, r.CertHash)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.svc.VerifyRecordHash(s.ctx, r.ID, contractHash)
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.svc.VerifyRecordHash(s.ctx, 1234, r.CertHash)
	s.ErrorIs(err, registry.ErrNotFound)
}

func (s *ServiceSuite) TestVACA001() {
	a, err := s.svc.CreateAnimal(s.ctx, farmer, "VACA-001")
	s.Require().NoError(err)
	s.Equal(100, a.QualityScore)
	s.Equal(registry.StateCreated, a.CurrentState)

	meta := `{"vaccine":"aftosa","lot":"L-77"}`
	r1, err := s.svc.CreateRecord(s.ctx, vet, registry.CreateRecordInput{
		AnimalID:  "VACA-001",
		EventType: registry.EventVaccination,
		CertHash:  registry.Commitment([]byte(meta)),
		MetaJSON:  meta,
	})
	s.Require().NoError(err)
	s.Equal(uint64(1), r1.ID)
	s.Equal(registry.VerifPending, r1.VerifState)
	s.Equal(registry.StateRegistered, r1.DTEState)

	info, err := s.svc.GetAnimalInfo(s.ctx, "VACA-001")
	s.Require().NoError(err)
	s.Equal(registry.StatePendingReview, info.CurrentState)

	_, err = s.svc.VerifyRecord(s.ctx, auditor, r1.ID)
	s.Require().NoError(err)
	info, err = s.svc.GetAnimalInfo(s.ctx, "VACA-001")
	s.Require().NoError(err)
	s.Equal(100, info.QualityScore)
	s.Equal(registry.StateInTracking, info.CurrentState)

	r2 := s.newRecord("VACA-001")
	_, err = s.svc.RevokeRecord(s.ctx, auditor, r2.ID, "certificado ilegible")
	s.Require().NoError(err)
	info, err = s.svc.GetAnimalInfo(s.ctx, "VACA-001")
	s.Require().NoError(err)
	s.Equal(90, info.QualityScore)
	s.Equal(registry.StateRejected, info.CurrentState)

	before := info
	_, err = s.svc.VerifyRecord(s.ctx, auditor, r1.ID)
	s.Require().ErrorIs(err, registry.ErrInvalidState)
	s.Contains(err.Error(), "already processed")

	after, err := s.svc.GetAnimalInfo(s.ctx, "VACA-001")
	s.Require().NoError(err)
	s.Equal(before, after, "no state change")

	rec, err := s.svc.GetRecord(s.ctx, r1.ID)
	s.Require().NoError(err)
	s.Equal(registry.VerifVerified, rec.VerifState)
	s.Equal(registry.StateVerified, rec.DTEState)
}

func (s *ServiceSuite) TestNotificationsReplay() {
	s.newAnimal("A-1")
	s.newRecord("A-1")

	all, err := s.svc.ListNotifications(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Require().NotEmpty(all)
	for i := 1; i < len(all); i++ {
		s.Greater(all[i].Seq, all[i-1].Seq)
	}

	page, err := s.svc.ListNotifications(s.ctx, all[len(all)-3].Seq, 1)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(all[len(all)-2], page[0])
}

func TestService_ClockNeverGoesBackwards(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := registry.NewService(memory.NewStore(), registry.Options{Now: clock.Now})

	_, err := svc.Bootstrap(ctx, owner, contractHash)
	require.NoError(t, err)

	a, err := svc.CreateAnimal(ctx, owner, "A-1")
	require.NoError(t, err)

	clock.Advance(-time.Hour)
	b, err := svc.CreateAnimal(ctx, owner, "A-2")
	require.NoError(t, err)

	assert.False(t, b.LastUpdated.Before(a.LastUpdated))
}

type failingStore struct {
	registry.Store
	err error
}

func (f failingStore) Update(ctx context.Context, fn func(ctx context.Context, tx registry.Tx) error) error {
	return f.Store.Update(ctx, func(ctx context.Context, tx registry.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return f.err
	})
}

func TestService_FailedCommitLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := registry.NewService(store, registry.Options{})
	_, err := svc.Bootstrap(ctx, owner, contractHash)
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, owner, vet, registry.RoleVet))
	_, err = svc.CreateAnimal(ctx, owner, "A-1")
	require.NoError(t, err)

	boom := errors.New("disk full")
	broken := registry.NewService(failingStore{Store: store, err: boom}, registry.Options{})
	_, err = broken.CreateRecord(ctx, vet, registry.CreateRecordInput{
		AnimalID: "A-1", EventType: registry.EventVaccination, CertHash: contractHash,
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "internal", registry.KindOf(err))

	total, err := svc.GetTotalRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), total)

	a, err := svc.GetAnimal(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, registry.StateCreated, a.CurrentState)
	assert.Empty(t, a.RecordIDs)
}

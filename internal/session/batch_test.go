package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/claude/ironvow/internal/apperr"
	"github.com/claude/ironvow/internal/models"
	"github.com/google/uuid"
)

// fakeStore is an in-memory Store with clone-on-begin, commit-on-nil
// semantics, mirroring the transactional guarantees of the real store.
type fakeStore struct {
	sess *models.Session
	plan *models.PlanSnapshot
	seal *models.SessionSeal

	failInsert bool
}

func (s *fakeStore) WithSession(_ context.Context, sessionID uuid.UUID, userID int, fn func(Tx) error) error {
	if s.sess == nil || s.sess.ID != sessionID {
		return apperr.New(apperr.KindNotFound, "session %s not found", sessionID)
	}
	if s.sess.UserID != userID {
		return apperr.New(apperr.KindForbidden, "session %s belongs to another user", sessionID)
	}
	tx := &fakeTx{store: s, work: s.sess.Clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.sess = tx.work
	if tx.seal != nil {
		s.seal = tx.seal
	}
	return nil
}

func (s *fakeStore) PlanSnapshot(_ context.Context, planID uuid.UUID) (*models.PlanSnapshot, error) {
	if s.plan == nil || s.plan.ID != planID {
		return nil, apperr.New(apperr.KindNotFound, "plan %s not found", planID)
	}
	return s.plan, nil
}

type fakeTx struct {
	store *fakeStore
	work  *models.Session
	seal  *models.SessionSeal
}

func (t *fakeTx) Session() *models.Session { return t.work }

func (t *fakeTx) InsertSet(set models.SessionSet) error {
	if t.store.failInsert {
		return apperr.New(apperr.KindStore, "insert failed")
	}
	ex := t.work.Exercise(set.SessionExerciseID)
	if ex == nil {
		return apperr.New(apperr.KindStore, "no exercise %s", set.SessionExerciseID)
	}
	ex.Sets = append(ex.Sets, set)
	return nil
}

func (t *fakeTx) UpdateSet(set models.SessionSet) error {
	for i := range t.work.Exercises {
		sets := t.work.Exercises[i].Sets
		for j := range sets {
			if sets[j].ID == set.ID {
				sets[j] = set
				return nil
			}
		}
	}
	return apperr.New(apperr.KindStore, "no set %s", set.ID)
}

func (t *fakeTx) DeleteSet(id uuid.UUID) error {
	removeSet(t.work, id)
	return nil
}

func (t *fakeTx) Finish(at time.Time, score int, grade string, pillars map[string]float64) error {
	t.work.Status = models.StatusFinished
	t.work.FinishedAt = &at
	t.work.DevotionScore = &score
	t.work.DevotionGrade = &grade
	t.work.Pillars = pillars
	return nil
}

func (t *fakeTx) UpsertSeal(seal models.SessionSeal) error {
	t.seal = &seal
	return nil
}

var (
	testSessionID  = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	testExerciseID = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	testSetID      = uuid.MustParse("33333333-3333-4333-8333-333333333333")
	testSet2ID     = uuid.MustParse("44444444-4444-4444-8444-444444444444")
)

const testUserID = 7

// activeSession builds an ACTIVE session with one exercise and two
// uncompleted NORMAL sets at orders 1 and 2.
func activeSession() *models.Session {
	exID := uuid.MustParse("55555555-5555-4555-8555-555555555555")
	return &models.Session{
		ID:        testSessionID,
		UserID:    testUserID,
		Status:    models.StatusActive,
		StartedAt: time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC),
		Exercises: []models.SessionExercise{
			{
				ID:         exID,
				SessionID:  testSessionID,
				ExerciseID: testExerciseID,
				Order:      1,
				Sets: []models.SessionSet{
					{ID: testSetID, SessionExerciseID: exID, Type: models.SetNormal, TargetLoadKg: 60, ActualLoadKg: 60, TargetReps: 8, ActualReps: 8, Order: 1},
					{ID: testSet2ID, SessionExerciseID: exID, Type: models.SetNormal, TargetLoadKg: 60, ActualLoadKg: 60, TargetReps: 8, ActualReps: 8, Order: 2},
				},
			},
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(store *fakeStore) *Processor {
	return NewProcessor(store, testLogger())
}

func ptr[T any](v T) *T { return &v }

func TestApplyBatchCreateUpdateComplete(t *testing.T) {
	store := &fakeStore{sess: activeSession()}
	p := newTestProcessor(store)
	exID := store.sess.Exercises[0].ID

	out, err := p.ApplyBatch(context.Background(), testSessionID, testUserID, []Op{
		CreateOp{SessionExerciseID: exID, Type: models.SetNormal, LoadKg: 62.5, Reps: 6, Order: 3},
		UpdateOp{SetID: testSetID, LoadKg: ptr(57.5), Reps: ptr(10)},
		CompleteOp{SetID: testSetID},
	})
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	sets := out.Exercises[0].Sets
	if len(sets) != 3 {
		t.Fatalf("got %d sets, want 3", len(sets))
	}
	if sets[0].ActualLoadKg != 57.5 || sets[0].ActualReps != 10 || !sets[0].Completed {
		t.Errorf("first set = %+v, want 57.5kg x 10 completed", sets[0])
	}
	if sets[2].Order != 3 || sets[2].ActualLoadKg != 62.5 || sets[2].Completed {
		t.Errorf("created set = %+v, want order 3, 62.5kg, not completed", sets[2])
	}

	// Committed state matches the returned state.
	committed := store.sess.Exercises[0].Sets
	if len(committed) != 3 {
		t.Errorf("committed %d sets, want 3", len(committed))
	}
}

func TestApplyBatchCreatedIDNotAddressable(t *testing.T) {
	createdID := uuid.MustParse("99999999-9999-4999-8999-999999999999")
	store := &fakeStore{sess: activeSession()}
	p := newTestProcessor(store)
	p.newID = func() uuid.UUID { return createdID }
	exID := store.sess.Exercises[0].ID

	_, err := p.ApplyBatch(context.Background(), testSessionID, testUserID, []Op{
		CreateOp{SessionExerciseID: exID, Type: models.SetNormal, Order: 3},
		CompleteOp{SetID: createdID},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if len(store.sess.Exercises[0].Sets) != 2 {
		t.Errorf("store mutated by rejected batch: %d sets", len(store.sess.Exercises[0].Sets))
	}
}

func TestApplyBatchRejections(t *testing.T) {
	unknown := uuid.MustParse("aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa")
	tests := []struct {
		name string
		ops  []Op
	}{
		{"unknown set", []Op{CompleteOp{SetID: unknown}}},
		{"unknown exercise", []Op{CreateOp{SessionExerciseID: unknown, Type: models.SetNormal, Order: 3}}},
		{"duplicate order", []Op{CreateOp{SessionExerciseID: uuid.Nil, Type: models.SetNormal, Order: 1}}},
		{"negative load", []Op{UpdateOp{SetID: testSetID, LoadKg: ptr(-1.0)}}},
		{"negative reps", []Op{UpdateOp{SetID: testSetID, Reps: ptr(-1)}}},
		{"bad create type", []Op{CreateOp{SessionExerciseID: uuid.Nil, Type: "DROPSET", Order: 3}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{sess: activeSession()}
			p := newTestProcessor(store)
			// Fix up placeholder exercise ids.
			for i := range tc.ops {
				if op, ok := tc.ops[i].(CreateOp); ok && op.SessionExerciseID == uuid.Nil {
					op.SessionExerciseID = store.sess.Exercises[0].ID
					tc.ops[i] = op
				}
			}

			_, err := p.ApplyBatch(context.Background(), testSessionID, testUserID, tc.ops)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
			if got := len(store.sess.Exercises[0].Sets); got != 2 {
				t.Errorf("store mutated by rejected batch: %d sets", got)
			}
		})
	}
}

// TestApplyBatchOrderSwap verifies that order uniqueness is checked against
// the final state, so two updates swapping orders pass.
func TestApplyBatchOrderSwap(t *testing.T) {
	store := &fakeStore{sess: activeSession()}
	p := newTestProcessor(store)

	out, err := p.ApplyBatch(context.Background(), testSessionID, testUserID, []Op{
		UpdateOp{SetID: testSetID, Order: ptr(2)},
		UpdateOp{SetID: testSet2ID, Order: ptr(1)},
	})
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	sets := out.Exercises[0].Sets
	if sets[0].ID != testSet2ID || sets[1].ID != testSetID {
		t.Errorf("sets not swapped: %s at order %d, %s at order %d",
			sets[0].ID, sets[0].Order, sets[1].ID, sets[1].Order)
	}
}

func TestApplyBatchCompleteIdempotent(t *testing.T) {
	store := &fakeStore{sess: activeSession()}
	store.sess.Exercises[0].Sets[0].Completed = true
	p := newTestProcessor(store)

	out, err := p.ApplyBatch(context.Background(), testSessionID, testUserID, []Op{
		CompleteOp{SetID: testSetID},
	})
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if !out.Exercises[0].Sets[0].Completed {
		t.Error("set no longer completed")
	}
}

func TestApplyBatchTypeImmutableOnCompletedSet(t *testing.T) {
	store := &fakeStore{sess: activeSession()}
	store.sess.Exercises[0].Sets[0].Completed = true
	p := newTestProcessor(store)

	warmup := models.SetWarmup
	_, err := p.ApplyBatch(context.Background(), testSessionID, testUserID, []Op{
		UpdateOp{SetID: testSetID, Type: &warmup},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestApplyBatchDelete(t *testing.T) {
	store := &fakeStore{sess: activeSession()}
	p := newTestProcessor(store)

	out, err := p.ApplyBatch(context.Background(), testSessionID, testUserID, []Op{
		DeleteOp{SetID: testSetID},
	})
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if len(out.Exercises[0].Sets) != 1 || out.Exercises[0].Sets[0].ID != testSet2ID {
		t.Errorf("sets after delete = %+v", out.Exercises[0].Sets)
	}
	if len(store.sess.Exercises[0].Sets) != 1 {
		t.Errorf("committed %d sets, want 1", len(store.sess.Exercises[0].Sets))
	}
}

func TestApplyBatchRequiresActiveSession(t *testing.T) {
	store := &fakeStore{sess: activeSession()}
	store.sess.Status = models.StatusFinished
	p := newTestProcessor(store)

	_, err := p.ApplyBatch(context.Background(), testSessionID, testUserID, []Op{
		CompleteOp{SetID: testSetID},
	})
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("err = %v, want invalid_state", err)
	}
}

func TestApplyBatchOwnershipAndExistence(t *testing.T) {
	store := &fakeStore{sess: activeSession()}
	p := newTestProcessor(store)

	_, err := p.ApplyBatch(context.Background(), uuid.New(), testUserID, nil)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("unknown session: err = %v, want not_found", err)
	}

	_, err = p.ApplyBatch(context.Background(), testSessionID, testUserID+1, nil)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("foreign session: err = %v, want forbidden", err)
	}
}

// TestApplyBatchStoreFailureAborts verifies a store-level write failure
// surfaces as retryable and leaves the committed state untouched.
func TestApplyBatchStoreFailureAborts(t *testing.T) {
	store := &fakeStore{sess: activeSession(), failInsert: true}
	p := newTestProcessor(store)
	exID := store.sess.Exercises[0].ID

	_, err := p.ApplyBatch(context.Background(), testSessionID, testUserID, []Op{
		DeleteOp{SetID: testSetID},
		CreateOp{SessionExerciseID: exID, Type: models.SetNormal, Order: 3},
	})
	if !apperr.Is(err, apperr.KindStore) {
		t.Fatalf("err = %v, want store", err)
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || !appErr.Retryable() {
		t.Errorf("store error not retryable: %v", err)
	}
	if got := len(store.sess.Exercises[0].Sets); got != 2 {
		t.Errorf("partial batch committed: %d sets", got)
	}
}

package session

import (
	"context"
	"log/slog"
	"sort"

	"github.com/claude/ironvow/internal/apperr"
	"github.com/claude/ironvow/internal/models"
	"github.com/google/uuid"
)

// Processor applies client-submitted set-edit batches to one session as a
// single transaction.
type Processor struct {
	store Store
	log   *slog.Logger
	newID func() uuid.UUID
}

// NewProcessor creates a batch processor backed by the given store.
func NewProcessor(store Store, log *slog.Logger) *Processor {
	return &Processor{store: store, log: log, newID: uuid.New}
}

// ApplyBatch validates and applies an ordered list of operations against the
// session. The whole batch commits or none of it does: the session must
// exist, belong to userID and be ACTIVE, and every operation must validate
// against the virtually-applied state before any store write happens.
// On success the returned session reflects the committed post-batch state.
func (p *Processor) ApplyBatch(ctx context.Context, sessionID uuid.UUID, userID int, ops []Op) (*models.Session, error) {
	var out *models.Session
	err := p.store.WithSession(ctx, sessionID, userID, func(tx Tx) error {
		sess := tx.Session()
		if sess.Status != models.StatusActive {
			return apperr.New(apperr.KindInvalidState, "session %s is %s, set mutations require ACTIVE", sess.ID, sess.Status)
		}

		applied, muts, err := applyOps(sess, ops, p.newID)
		if err != nil {
			return err
		}
		for _, id := range muts.deleted {
			if err := tx.DeleteSet(id); err != nil {
				return err
			}
		}
		for _, set := range muts.updated {
			if err := tx.UpdateSet(set); err != nil {
				return err
			}
		}
		for _, set := range muts.created {
			if err := tx.InsertSet(set); err != nil {
				return err
			}
		}
		out = applied
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortSession(out)
	p.log.Debug("batch applied", "session", sessionID, "ops", len(ops))
	return out, nil
}

// mutations is the net effect of a validated batch, replayed onto the store
// transaction in delete/update/insert order.
type mutations struct {
	deleted []uuid.UUID
	updated []models.SessionSet
	created []models.SessionSet
}

// applyOps virtually applies the batch to a clone of the session. Later
// operations see the effects of earlier ones, except that ids allocated by
// create in this batch are not addressable. Any violation rejects the whole
// batch and leaves the input session untouched.
func applyOps(sess *models.Session, ops []Op, newID func() uuid.UUID) (*models.Session, *mutations, error) {
	work := sess.Clone()
	createdIDs := make(map[uuid.UUID]bool)
	dirty := make(map[uuid.UUID]bool)
	var muts mutations

	// lookup resolves a set id for update/complete/delete. Ids created
	// within the batch are rejected: each operation addresses only
	// pre-existing sets.
	lookup := func(id uuid.UUID) (*models.SessionSet, error) {
		if createdIDs[id] {
			return nil, apperr.New(apperr.KindValidation, "set %s was created in this batch and cannot be addressed by it", id)
		}
		_, set := work.Set(id)
		if set == nil {
			return nil, apperr.New(apperr.KindValidation, "unknown set %s", id)
		}
		return set, nil
	}

	for _, op := range ops {
		switch o := op.(type) {
		case CreateOp:
			if err := validateValues(o.Type, o.LoadKg, o.Reps); err != nil {
				return nil, nil, err
			}
			ex := work.Exercise(o.SessionExerciseID)
			if ex == nil {
				return nil, nil, apperr.New(apperr.KindValidation, "unknown session exercise %s", o.SessionExerciseID)
			}
			set := models.SessionSet{
				ID:                newID(),
				SessionExerciseID: ex.ID,
				Type:              o.Type,
				TargetLoadKg:      o.LoadKg,
				ActualLoadKg:      o.LoadKg,
				TargetReps:        o.Reps,
				ActualReps:        o.Reps,
				Order:             o.Order,
				Notes:             o.Notes,
			}
			ex.Sets = append(ex.Sets, set)
			createdIDs[set.ID] = true

		case UpdateOp:
			set, err := lookup(o.SetID)
			if err != nil {
				return nil, nil, err
			}
			if o.Type != nil {
				// Changing a completed set's type would silently move it in
				// or out of the scoring pillars.
				if set.Completed {
					return nil, nil, apperr.New(apperr.KindValidation, "set %s is completed, type is immutable", o.SetID)
				}
				if _, err := models.ParseSetType(string(*o.Type)); err != nil {
					return nil, nil, apperr.Wrap(apperr.KindValidation, err, "set %s", o.SetID)
				}
				set.Type = *o.Type
			}
			if o.LoadKg != nil {
				if *o.LoadKg < 0 {
					return nil, nil, apperr.New(apperr.KindValidation, "set %s: load must be >= 0", o.SetID)
				}
				set.ActualLoadKg = *o.LoadKg
			}
			if o.Reps != nil {
				if *o.Reps < 0 {
					return nil, nil, apperr.New(apperr.KindValidation, "set %s: reps must be >= 0", o.SetID)
				}
				set.ActualReps = *o.Reps
			}
			if o.Order != nil {
				set.Order = *o.Order
			}
			if o.Notes != nil {
				set.Notes = *o.Notes
			}
			dirty[o.SetID] = true

		case CompleteOp:
			set, err := lookup(o.SetID)
			if err != nil {
				return nil, nil, err
			}
			set.Completed = true
			dirty[o.SetID] = true

		case DeleteOp:
			set, err := lookup(o.SetID)
			if err != nil {
				return nil, nil, err
			}
			removeSet(work, set.ID)
			delete(dirty, set.ID)
			muts.deleted = append(muts.deleted, set.ID)

		default:
			return nil, nil, apperr.New(apperr.KindValidation, "unsupported operation %T", op)
		}
	}

	if err := checkOrderUniqueness(work); err != nil {
		return nil, nil, err
	}

	for i := range work.Exercises {
		for _, set := range work.Exercises[i].Sets {
			switch {
			case createdIDs[set.ID]:
				muts.created = append(muts.created, set)
			case dirty[set.ID]:
				muts.updated = append(muts.updated, set)
			}
		}
	}
	return work, &muts, nil
}

func validateValues(t models.SetType, loadKg float64, reps int) error {
	if _, err := models.ParseSetType(string(t)); err != nil {
		return apperr.Wrap(apperr.KindValidation, err, "bad set type")
	}
	if loadKg < 0 {
		return apperr.New(apperr.KindValidation, "load must be >= 0, got %v", loadKg)
	}
	if reps < 0 {
		return apperr.New(apperr.KindValidation, "reps must be >= 0, got %d", reps)
	}
	return nil
}

// checkOrderUniqueness enforces the invariant that no two sets under one
// session exercise share an order value, evaluated after the whole batch has
// been virtually applied.
func checkOrderUniqueness(sess *models.Session) error {
	for i := range sess.Exercises {
		seen := make(map[int]bool, len(sess.Exercises[i].Sets))
		for _, set := range sess.Exercises[i].Sets {
			if seen[set.Order] {
				return apperr.New(apperr.KindValidation, "duplicate set order %d in exercise %s", set.Order, sess.Exercises[i].ID)
			}
			seen[set.Order] = true
		}
	}
	return nil
}

func removeSet(sess *models.Session, id uuid.UUID) {
	for i := range sess.Exercises {
		sets := sess.Exercises[i].Sets
		for j := range sets {
			if sets[j].ID == id {
				sess.Exercises[i].Sets = append(sets[:j:j], sets[j+1:]...)
				return
			}
		}
	}
}

func sortSession(sess *models.Session) {
	if sess == nil {
		return
	}
	sort.SliceStable(sess.Exercises, func(i, j int) bool {
		return sess.Exercises[i].Order < sess.Exercises[j].Order
	})
	for i := range sess.Exercises {
		sets := sess.Exercises[i].Sets
		sort.SliceStable(sets, func(a, b int) bool { return sets[a].Order < sets[b].Order })
	}
}

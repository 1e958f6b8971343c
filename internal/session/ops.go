package session

import (
	"encoding/json"
	"fmt"

	"github.com/claude/ironvow/internal/apperr"
	"github.com/claude/ironvow/internal/models"
	"github.com/google/uuid"
)

// Op is one set-level edit in a batch. The four variants form a closed set;
// unknown operation kinds are rejected when the batch is parsed, before any
// mutation logic runs.
type Op interface {
	isOp()
}

// CreateOp adds a new set to an existing session exercise. The new set's id
// is allocated by the processor, so later operations in the same batch cannot
// address it.
type CreateOp struct {
	SessionExerciseID uuid.UUID
	Type              models.SetType
	LoadKg            float64
	Reps              int
	Order             int
	Notes             string
}

// UpdateOp partially updates an existing set. Nil fields stay unchanged.
type UpdateOp struct {
	SetID  uuid.UUID
	Type   *models.SetType
	LoadKg *float64
	Reps   *int
	Order  *int
	Notes  *string
}

// CompleteOp marks a set completed. Completing a completed set is a no-op.
type CompleteOp struct {
	SetID uuid.UUID
}

// DeleteOp removes a set.
type DeleteOp struct {
	SetID uuid.UUID
}

func (CreateOp) isOp()   {}
func (UpdateOp) isOp()   {}
func (CompleteOp) isOp() {}
func (DeleteOp) isOp()   {}

// rawOp is the wire shape of one operation before variant dispatch.
type rawOp struct {
	Operation         string          `json:"operation"`
	SetID             *uuid.UUID      `json:"set_id"`
	SessionExerciseID *uuid.UUID      `json:"session_exercise_id"`
	Data              json.RawMessage `json:"data"`
}

type setPayload struct {
	Type   *string  `json:"type"`
	LoadKg *float64 `json:"load_kg"`
	Reps   *int     `json:"reps"`
	Order  *int     `json:"order"`
	Notes  *string  `json:"notes"`
}

// ParseOps decodes a JSON array of operations into the closed variant type.
// Any malformed operation rejects the whole batch with a validation error.
func ParseOps(data []byte) ([]Op, error) {
	var raws []rawOp
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "malformed batch")
	}

	ops := make([]Op, 0, len(raws))
	for i, r := range raws {
		op, err := r.toOp()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, err, "operation %d", i)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (r rawOp) toOp() (Op, error) {
	switch r.Operation {
	case "create":
		if r.SessionExerciseID == nil {
			return nil, fmt.Errorf("create requires session_exercise_id")
		}
		var p setPayload
		if len(r.Data) == 0 {
			return nil, fmt.Errorf("create requires data")
		}
		if err := json.Unmarshal(r.Data, &p); err != nil {
			return nil, fmt.Errorf("bad data payload: %w", err)
		}
		if p.Order == nil {
			return nil, fmt.Errorf("create requires data.order")
		}
		op := CreateOp{SessionExerciseID: *r.SessionExerciseID, Type: models.SetNormal, Order: *p.Order}
		if p.Type != nil {
			t, err := models.ParseSetType(*p.Type)
			if err != nil {
				return nil, err
			}
			op.Type = t
		}
		if p.LoadKg != nil {
			op.LoadKg = *p.LoadKg
		}
		if p.Reps != nil {
			op.Reps = *p.Reps
		}
		if p.Notes != nil {
			op.Notes = *p.Notes
		}
		return op, nil

	case "update":
		if r.SetID == nil {
			return nil, fmt.Errorf("update requires set_id")
		}
		var p setPayload
		if len(r.Data) == 0 {
			return nil, fmt.Errorf("update requires data")
		}
		if err := json.Unmarshal(r.Data, &p); err != nil {
			return nil, fmt.Errorf("bad data payload: %w", err)
		}
		op := UpdateOp{SetID: *r.SetID, LoadKg: p.LoadKg, Reps: p.Reps, Order: p.Order, Notes: p.Notes}
		if p.Type != nil {
			t, err := models.ParseSetType(*p.Type)
			if err != nil {
				return nil, err
			}
			op.Type = &t
		}
		return op, nil

	case "complete":
		if r.SetID == nil {
			return nil, fmt.Errorf("complete requires set_id")
		}
		return CompleteOp{SetID: *r.SetID}, nil

	case "delete":
		if r.SetID == nil {
			return nil, fmt.Errorf("delete requires set_id")
		}
		return DeleteOp{SetID: *r.SetID}, nil
	}
	return nil, fmt.Errorf("unknown operation %q", r.Operation)
}

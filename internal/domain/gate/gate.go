// Package gate decides whether a level may be attempted and how a completion
// advances a progress record. It holds no state and performs no I/O.
package gate

import (
	"github.com/okian/codequest/internal/domain/model"
)

// Outcome of a level request.
type Outcome int

const (
	// Allowed means the requested level is unlocked.
	Allowed Outcome = iota
	// LockedBelowUnlocked means an earlier level must be completed first.
	LockedBelowUnlocked
)

func (o Outcome) String() string {
	if o == Allowed {
		return "allowed"
	}
	return "locked"
}

// Decision is the result of Decide.
type Decision struct {
	Outcome      Outcome
	Requested    int
	MustComplete int // set only when locked
}

// Allowed reports whether the level may be attempted.
func (d Decision) Allowed() bool { return d.Outcome == Allowed }

// Err returns a *model.LockedError for a locked decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed() {
		return nil
	}
	return &model.LockedError{Requested: d.Requested, MustComplete: d.MustComplete}
}

// Decide applies the unlock rule: anything up to the unlocked level is allowed.
// The level must already have passed model.ValidateLevel.
func Decide(record model.ProgressRecord, requested int) Decision {
	if requested <= record.UnlockedLevel {
		return Decision{Outcome: Allowed, Requested: requested}
	}
	return Decision{
		Outcome:      LockedBelowUnlocked,
		Requested:    requested,
		MustComplete: requested - 1,
	}
}

// Complete returns the record after completing level. Re-completing a level is
// accepted and leaves the record as it was. Completing a level above the
// unlocked one fails with a *model.LockedError. The input record is not modified.
func Complete(record model.ProgressRecord, level int) (model.ProgressRecord, error) {
	if err := model.ValidateLevel(level); err != nil {
		return record, err
	}
	if d := Decide(record, level); !d.Allowed() {
		return record, d.Err()
	}
	next := record.Clone()
	if next.UnlockedLevel < level+1 {
		next.UnlockedLevel = level + 1
	}
	next.CompletedLevels[level] = true
	return next, nil
}

package issues

import (
	"errors"
	"fmt"
	"time"
)

// RepairStatus tracks an issue through the repair stage.
type RepairStatus string

const (
	StatusPending  RepairStatus = "pending"
	StatusInGrid   RepairStatus = "in_grid"
	StatusRepaired RepairStatus = "repaired"
	StatusVerified RepairStatus = "verified"
	StatusFailed   RepairStatus = "failed"
)

// ErrInvalidTransition is returned when a status change skips or reverses a step.
var ErrInvalidTransition = errors.New("invalid repair status transition")

var nextStatus = map[RepairStatus]RepairStatus{
	StatusPending:  StatusInGrid,
	StatusInGrid:   StatusRepaired,
	StatusRepaired: StatusVerified,
}

// Terminal reports whether no further transition is allowed.
func (s RepairStatus) Terminal() bool {
	return s == StatusVerified || s == StatusFailed
}

// CanTransition reports whether from -> to is allowed: one step forward along
// pending, in_grid, repaired, verified, or to failed from any non-terminal state.
func CanTransition(from, to RepairStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return nextStatus[from] == to
}

// Transition moves the issue to the requested status.
func (u *UnifiedIssue) Transition(to RepairStatus) error {
	from := u.RepairStatus
	if from == "" {
		from = StatusPending
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	u.RepairStatus = to
	return nil
}

// RecordAttempt appends to the repair log. Earlier entries are never edited.
func (u *UnifiedIssue) RecordAttempt(at time.Time, note string) RepairAttempt {
	attempt := RepairAttempt{
		Attempt: len(u.RepairAttempts) + 1,
		At:      at.UTC(),
		Status:  u.RepairStatus,
		Note:    note,
	}
	u.RepairAttempts = append(u.RepairAttempts, attempt)
	return attempt
}

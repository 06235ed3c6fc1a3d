package lifecycle

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a requested status change is
// not an edge in the transition graph. Callers must reject the
// operation before any write.
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions is the static adjacency table of legal status moves.
// Order within each successor list is significant because callers present
// it as an ordered action list. REJECTED and COMPLETED are terminal:
// they have no entry, so every transition check from them is false.
var transitions = map[Status][]Status{
	StatusDraft:             {StatusIntakeInProgress},
	StatusIntakeInProgress:  {StatusPendingAssessment},
	StatusPendingAssessment: {StatusUnderReview},
	StatusUnderReview:       {StatusApproved, StatusRejected, StatusDeferred, StatusNeedsInfo},
	StatusNeedsInfo:         {StatusIntakeInProgress, StatusUnderReview},
	StatusApproved:          {StatusInBacklog},
	StatusDeferred:          {StatusUnderReview},
	StatusInBacklog:         {StatusInProgress},
	StatusInProgress:        {StatusCompleted, StatusInBacklog},
}

// CanTransition reports whether to is a declared successor of from.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidTransitions returns the declared successor set of from, in
// declaration order. Terminal statuses return an empty slice. The
// result is a copy; callers may not mutate the table.
func ValidTransitions(from Status) []Status {
	next := transitions[from]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// IsTerminal reports whether the status has no successors.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0 && validStatuses[s]
}

// EnsureTransition validates a from→to move, returning an
// ErrInvalidTransition-wrapped error naming both statuses when the
// move is not legal.
func EnsureTransition(from, to Status) error {
	if err := ValidateStatus(from); err != nil {
		return err
	}
	if err := ValidateStatus(to); err != nil {
		return err
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

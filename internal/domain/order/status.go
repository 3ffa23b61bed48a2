package order

import (
	"slices"
	"strconv"
	"strings"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled}

// transitions is the authoritative lifecycle table. Terminal states map to
// nothing. Nothing leads into COMPLETED.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
	StatusCompleted: nil,
	StatusCancelled: nil,
}

// ParseStatus parses a case-insensitive status name.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", invalid("status", "unknown status "+strconv.Quote(s))
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	return slices.Clone(transitions[s])
}

// CanTransitionTo reports whether the lifecycle permits s -> target.
func (s Status) CanTransitionTo(target Status) bool {
	return slices.Contains(transitions[s], target)
}

func (s Status) String() string { return string(s) }

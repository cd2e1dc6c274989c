package transaction

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of an upload transaction.
type Status string

const (
	StatusSlotIssued       Status = "SLOT_ISSUED"
	StatusReceived         Status = "RECEIVED"
	StatusProcessed        Status = "PROCESSED"
	StatusFailedValidation Status = "FAILED_VALIDATION"
)

// validTransitions maps each status to the statuses it may move to.
// Terminal statuses have no outgoing edges.
var validTransitions = map[Status]map[Status]bool{
	StatusSlotIssued:       {StatusReceived: true},
	StatusReceived:         {StatusProcessed: true, StatusFailedValidation: true},
	StatusProcessed:        {},
	StatusFailedValidation: {},
}

// ParseStatus converts s into a Status, rejecting anything outside the enumeration.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("unknown transaction status %q", s)
	}
	return st, nil
}

// Valid reports whether s is a member of the enumeration.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool {
	next, ok := validTransitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	return validTransitions[s][next]
}

// CheckTransition returns ErrInvalidTransition unless s may move to next.
func (s Status) CheckTransition(next Status) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

// Rank orders statuses along the lifecycle; both terminal statuses share the top rank.
func (s Status) Rank() int {
	switch s {
	case StatusSlotIssued:
		return 1
	case StatusReceived:
		return 2
	case StatusProcessed, StatusFailedValidation:
		return 3
	default:
		return 0
	}
}

func (s Status) String() string { return string(s) }

// UnmarshalJSON rejects unknown statuses.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

package models

import (
	"encoding/json"
	"fmt"

	"github.com/labmate/labmate/internal/types"
)

// Field names shared by the executable records
const (
	// StatusField is the field name for the status column
	StatusField = "status"
	// AttemptField is the field name for the attempt counter
	AttemptField = "attempt"
	// CreatedAtField is the field name for the creation timestamp
	CreatedAtField = "created_at"
	// UpdatedAtField is the field name for the update timestamp
	UpdatedAtField = "updated_at"
)

// Status represents the lifecycle state of a Job, AIJob or AITask
type Status string

// Status constants
const (
	// StatusPending indicates the record is waiting to be processed
	StatusPending Status = "pending"
	// StatusRunning indicates exactly one execution attempt is in flight
	StatusRunning Status = "running"
	// StatusCompleted indicates the execution finished and produced evidence
	StatusCompleted Status = "completed"
	// StatusFailed indicates the execution could not produce evidence
	StatusFailed Status = "failed"
)

// transitions lists the only allowed status changes. Terminal states have no
// outgoing edges; a re-run is a new record.
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition can leave s
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is allowed
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns a wrapped types.ErrInvalidTransition when from -> to is not allowed
func ValidateTransition(from, to Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, from, to)
	}
	return nil
}

// ParseStatus converts a string to a Status type
func ParseStatus(str string) (Status, error) {
	switch Status(str) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return Status(str), nil
	default:
		return "", fmt.Errorf("invalid status: %s", str)
	}
}

// UnmarshalJSON implements json.Unmarshaler for Status
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status, err := ParseStatus(str)
	if err != nil {
		return err
	}

	*s = status
	return nil
}

// MarshalJSON implements json.Marshaler for Status
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

package model

import (
	"encoding/json"
	"strings"
)

type Status string

const (
	StatusTodo    Status = "todo"
	StatusPending Status = "pending"
	StatusDone    Status = "done"
)

// DefaultStatus is the bucket for tasks with no (or an unknown) status.
const DefaultStatus = StatusTodo

// Statuses returns the board column order.
func Statuses() []Status {
	return []Status{StatusTodo, StatusPending, StatusDone}
}

// ParseStatus maps s onto the closed status set. Empty and unknown values
// fall back to DefaultStatus; ok reports whether s was recognized.
func ParseStatus(s string) (st Status, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "todo", "to do", "to-do", "new":
		return StatusTodo, true
	case "pending", "in progress", "doing":
		return StatusPending, true
	case "done", "completed", "closed":
		return StatusDone, true
	default:
		return DefaultStatus, false
	}
}

// Normalize returns s if it is in the closed set, DefaultStatus otherwise.
func (s Status) Normalize() Status {
	st, _ := ParseStatus(string(s))
	return st
}

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusPending, StatusDone:
		return true
	}
	return false
}

func (s Status) Label() string {
	switch s.Normalize() {
	case StatusPending:
		return "Pending"
	case StatusDone:
		return "Done"
	default:
		return "To do"
	}
}

func (s Status) IsEndState() bool { return s == StatusDone }

// UnmarshalJSON normalizes stored statuses so a decoded Task always holds a
// status in the closed set.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw *string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = DefaultStatus
		return nil
	}
	*s, _ = ParseStatus(*raw)
	return nil
}

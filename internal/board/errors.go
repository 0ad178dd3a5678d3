package board

import "fmt"

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// MutationError reports an optimistic mutation that was rolled back because
// the record store rejected it or could not be reached.
type MutationError struct {
	Action  string
	TaskID  string
	Message string
	Err     error
}

func (e *MutationError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %s: %v", e.Action, e.TaskID, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s %s: %s", e.Action, e.TaskID, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Action, e.TaskID, e.Err)
	default:
		return fmt.Sprintf("%s %s: rejected", e.Action, e.TaskID)
	}
}

func (e *MutationError) Unwrap() error { return e.Err }

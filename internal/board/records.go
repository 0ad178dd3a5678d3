package board

import (
	"context"

	"caseboard/internal/model"
	"caseboard/internal/notes"
)

// Page selects one slice of a status column.
type Page struct {
	Status model.Status `json:"status"`
	Offset int          `json:"offset"`
	Limit  int          `json:"limit"`
	Query  string       `json:"query,omitempty"`
}

// Result is the record store's answer to a mutating call. A call may fail
// either by returning an error or by returning Success=false.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func OK() Result { return Result{Success: true} }

func Failed(msg string) Result { return Result{Success: false, Message: msg} }

// RecordStore is the persistent task store the board synchronizes with.
type RecordStore interface {
	ListTasksByStatus(ctx context.Context, p Page) ([]model.Task, error)
	CountByStatus(ctx context.Context, query string) (map[model.Status]int, error)
	GetTask(ctx context.Context, id string) (model.Task, error)
	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) (Result, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) (Result, error)
	Delete(ctx context.Context, id string) (Result, error)
	ReplaceNotes(ctx context.Context, id string, log notes.Log) (Result, error)
	SetAttachments(ctx context.Context, id string, atts []model.Attachment) (Result, error)
}

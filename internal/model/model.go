package model

import (
	"time"

	"caseboard/internal/notes"
)

type Task struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	// Classification.
	RequestType   string `json:"requestType,omitempty"`
	TargetName    string `json:"targetName,omitempty"`
	Requester     string `json:"requester,omitempty"`
	Deadline      string `json:"deadline,omitempty"` // YYYY-MM-DD
	ExecutionUnit string `json:"executionUnit,omitempty"`
	Description   string `json:"description,omitempty"`

	ContactName  string `json:"contactName,omitempty"`
	ContactPhone string `json:"contactPhone,omitempty"`
	ContactEmail string `json:"contactEmail,omitempty"`

	Notes       notes.Log    `json:"notes"`
	Attachments []Attachment `json:"attachments,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy that shares no slices with t.
func (t Task) Clone() Task {
	out := t
	out.Notes = t.Notes.Clone()
	if t.Attachments != nil {
		out.Attachments = make([]Attachment, len(t.Attachments))
		copy(out.Attachments, t.Attachments)
	}
	return out
}

// Title is the short label used by cards and CLI listings.
func (t Task) Title() string {
	switch {
	case t.TargetName != "" && t.RequestType != "":
		return t.RequestType + ": " + t.TargetName
	case t.TargetName != "":
		return t.TargetName
	case t.RequestType != "":
		return t.RequestType
	default:
		return "(untitled)"
	}
}

type Attachment struct {
	FileID     string    `json:"fileId"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	MimeType   string    `json:"mimeType,omitempty"`
	SizeBytes  int64     `json:"sizeBytes,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Column is a derived view of the tasks in one status. Total is the
// authoritative remote count and may exceed len(Tasks).
type Column struct {
	Key   Status `json:"key"`
	Label string `json:"label"`
	Tasks []Task `json:"tasks"`
	Total int    `json:"total"`
}

// Package notes reads and writes a task's annotation log.
//
// The log mixes two record shapes: modern records carry a stable id,
// legacy records only a display timestamp and content. The shape is decided
// once, when a record is decoded, and carried as Record.Shape from then on.
package notes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LegacyTimeLayout is the timestamp format written by the old note editor.
const LegacyTimeLayout = "15:04 02/01/2006"

const (
	legacyIDPrefix = "legacy_"
	noteIDPrefix   = "note_"
)

type Shape int

const (
	ShapeModern Shape = iota + 1
	ShapeLegacy
)

func (s Shape) String() string {
	switch s {
	case ShapeModern:
		return "modern"
	case ShapeLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// Record is one stored annotation. For ShapeLegacy, ID is empty and CreatedAt
// holds the raw legacy timestamp string.
type Record struct {
	Shape     Shape
	ID        string
	Content   string
	CreatedAt string
	CreatedBy string

	// legacyCreatedAt marks a legacy row that stored its time under
	// createdAt; it is written back under the same key.
	legacyCreatedAt bool
}

type modernWire struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	CreatedBy string `json:"createdBy,omitempty"`
}

type legacyWire struct {
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

type legacyCreatedAtWire struct {
	CreatedAt string `json:"createdAt"`
	Content   string `json:"content"`
}

type anyWire struct {
	ID        *string `json:"id"`
	Content   *string `json:"content"`
	CreatedAt *string `json:"createdAt"`
	CreatedBy *string `json:"createdBy"`
	Timestamp *string `json:"timestamp"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	switch r.Shape {
	case ShapeLegacy:
		if r.legacyCreatedAt {
			return json.Marshal(legacyCreatedAtWire{CreatedAt: r.CreatedAt, Content: r.Content})
		}
		return json.Marshal(legacyWire{Timestamp: r.CreatedAt, Content: r.Content})
	case ShapeModern:
		return json.Marshal(modernWire{ID: r.ID, Content: r.Content, CreatedAt: r.CreatedAt, CreatedBy: r.CreatedBy})
	default:
		return nil, fmt.Errorf("notes: record has no shape")
	}
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var w anyWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Content == nil {
		return errors.New("notes: record missing content")
	}
	if w.ID != nil && strings.TrimSpace(*w.ID) != "" {
		*r = Record{Shape: ShapeModern, ID: strings.TrimSpace(*w.ID), Content: *w.Content}
		if w.CreatedAt != nil {
			r.CreatedAt = *w.CreatedAt
		}
		if w.CreatedBy != nil {
			r.CreatedBy = *w.CreatedBy
		}
		return nil
	}
	// No stable id: legacy. Some old rows stored the time under createdAt.
	*r = Record{Shape: ShapeLegacy, Content: *w.Content}
	switch {
	case w.Timestamp != nil:
		r.CreatedAt = *w.Timestamp
	case w.CreatedAt != nil:
		r.CreatedAt = *w.CreatedAt
		r.legacyCreatedAt = true
	}
	return nil
}

// fingerprint identifies a legacy record by what the user saw.
func (r Record) fingerprint() string {
	return r.CreatedAt + "\x00" + r.Content
}

var ErrEmptyContent = errors.New("note content is empty")

// NewRecord builds a modern record with an id assigned now, at write time.
func NewRecord(author, content string, now time.Time) (Record, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Record{}, ErrEmptyContent
	}
	return Record{
		Shape:     ShapeModern,
		ID:        noteIDPrefix + uuid.NewString(),
		Content:   content,
		CreatedAt: now.UTC().Format(time.RFC3339),
		CreatedBy: strings.TrimSpace(author),
	}, nil
}

// Log is the annotation log in storage order (oldest first).
type Log []Record

// MalformedError reports input that could not be (fully) decoded. The log
// returned alongside it holds whatever was recoverable.
type MalformedError struct {
	Skipped int
	Err     error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed notes log: %v", e.Err)
	}
	return fmt.Sprintf("malformed notes log: %d record(s) skipped", e.Skipped)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Parse decodes a stored log: a JSON array of records, a JSON string holding
// such an array, or empty/null. It never fails hard; on malformed input it
// returns what it could recover together with a *MalformedError.
func Parse(raw []byte) (Log, error) {
	return parse(raw, 0)
}

func parse(raw []byte, depth int) (Log, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Log{}, nil
	}
	switch raw[0] {
	case '"':
		if depth > 0 {
			return Log{}, &MalformedError{Err: errors.New("nested string encoding")}
		}
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return Log{}, &MalformedError{Err: err}
		}
		return parse([]byte(inner), depth+1)
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return Log{}, &MalformedError{Err: err}
		}
		out := make(Log, 0, len(elems))
		skipped := 0
		for _, e := range elems {
			var r Record
			if err := json.Unmarshal(e, &r); err != nil {
				skipped++
				continue
			}
			out = append(out, r)
		}
		if skipped > 0 {
			return out, &MalformedError{Skipped: skipped}
		}
		return out, nil
	default:
		return Log{}, &MalformedError{Err: fmt.Errorf("unexpected %q", raw[0])}
	}
}

// Encode writes the log in storage order.
func (l Log) Encode() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Record(l))
}

func (l Log) MarshalJSON() ([]byte, error) { return l.Encode() }

// UnmarshalJSON is lenient: malformed logs decode as empty so a bad row never
// makes a whole task unreadable.
func (l *Log) UnmarshalJSON(b []byte) error {
	parsed, _ := Parse(b)
	*l = parsed
	return nil
}

func (l Log) Clone() Log {
	if l == nil {
		return nil
	}
	out := make(Log, len(l))
	copy(out, l)
	return out
}

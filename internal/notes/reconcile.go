package notes

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("note not found")
	// ErrStaleRef means a legacy position no longer holds the record the
	// caller was shown (the log changed underneath it).
	ErrStaleRef = errors.New("note reference is stale")
)

// Entry is the normalized display form of a record.
type Entry struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	CreatedBy string `json:"createdBy,omitempty"`
	IsLegacy  bool   `json:"isLegacy"`
	// Position is the storage index the entry was read from.
	Position int `json:"-"`

	fingerprint string
}

// Ref addresses an entry for edit/delete.
type Ref struct {
	ID string `json:"id"`
	// Fingerprint pins a legacy positional id to the record the user saw.
	// Empty disables the check.
	Fingerprint string `json:"fingerprint,omitempty"`
}

func (e Entry) Ref() Ref {
	return Ref{ID: e.ID, Fingerprint: e.fingerprint}
}

// Time parses CreatedAt in either shape; zero if it cannot.
func (e Entry) Time() time.Time {
	s := strings.TrimSpace(e.CreatedAt)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.ParseInLocation(LegacyTimeLayout, s, time.Local); err == nil {
		return t
	}
	return time.Time{}
}

// LegacyID is the display id of the legacy record at storage index i.
func LegacyID(i int) string {
	return legacyIDPrefix + strconv.Itoa(i)
}

func legacyIndex(id string) (int, bool) {
	if !strings.HasPrefix(id, legacyIDPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, legacyIDPrefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (l Log) entry(i int) Entry {
	r := l[i]
	e := Entry{
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		CreatedBy: r.CreatedBy,
		Position:  i,
	}
	if r.Shape == ShapeLegacy {
		e.ID = LegacyID(i)
		e.IsLegacy = true
		e.fingerprint = r.fingerprint()
	} else {
		e.ID = r.ID
	}
	return e
}

// Entries returns display entries in storage order.
func (l Log) Entries() []Entry {
	out := make([]Entry, 0, len(l))
	for i := range l {
		out = append(out, l.entry(i))
	}
	return out
}

// View returns display entries newest first. The log is append-only, so
// newest first is reverse storage order.
func (l Log) View() []Entry {
	out := make([]Entry, 0, len(l))
	for i := len(l) - 1; i >= 0; i-- {
		out = append(out, l.entry(i))
	}
	return out
}

// Resolve maps ref onto a storage index of the current log.
func (l Log) Resolve(ref Ref) (int, error) {
	id := strings.TrimSpace(ref.ID)
	if id == "" {
		return 0, ErrNotFound
	}
	for i, r := range l {
		if r.Shape == ShapeModern && r.ID == id {
			return i, nil
		}
	}
	n, ok := legacyIndex(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if n >= len(l) || l[n].Shape != ShapeLegacy {
		return 0, fmt.Errorf("%w: %s", ErrStaleRef, id)
	}
	if ref.Fingerprint != "" && l[n].fingerprint() != ref.Fingerprint {
		return 0, fmt.Errorf("%w: %s", ErrStaleRef, id)
	}
	return n, nil
}

// Append returns a new log with r at the end.
func (l Log) Append(r Record) Log {
	out := make(Log, 0, len(l)+1)
	out = append(out, l...)
	return append(out, r)
}

// Replace returns a new log with the content of record i replaced. The
// record keeps its shape and identity.
func (l Log) Replace(i int, content string) (Log, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if i < 0 || i >= len(l) {
		return nil, ErrNotFound
	}
	out := l.Clone()
	out[i].Content = content
	return out, nil
}

// Remove returns a new log without record i.
func (l Log) Remove(i int) (Log, error) {
	if i < 0 || i >= len(l) {
		return nil, ErrNotFound
	}
	out := make(Log, 0, len(l)-1)
	out = append(out, l[:i]...)
	return append(out, l[i+1:]...), nil
}

// Last returns the most recent record.
func (l Log) Last() (Record, bool) {
	if len(l) == 0 {
		return Record{}, false
	}
	return l[len(l)-1], true
}

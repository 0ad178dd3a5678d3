package board

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"caseboard/internal/model"
	"caseboard/internal/notes"
)

// fakeRecords is an in-memory RecordStore. Mutating calls are recorded as
// short strings and answered by result (default OK).
type fakeRecords struct {
	mu     sync.Mutex
	rows   []model.Task
	counts map[model.Status]int
	calls  []string
	pages  []Page

	list   func(Page) ([]model.Task, error)
	result func(call string) (Result, error)
	// hold blocks mutating calls on a task id until the channel is closed.
	hold map[string]chan struct{}

	notes map[string]notes.Log
	atts  map[string][]model.Attachment
}

func newFakeRecords(rows ...model.Task) *fakeRecords {
	return &fakeRecords{
		rows:  rows,
		notes: map[string]notes.Log{},
		atts:  map[string][]model.Attachment{},
	}
}

func (f *fakeRecords) mutate(id, call string) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	hold := f.hold[id]
	fn := f.result
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}
	if fn != nil {
		return fn(call)
	}
	return OK(), nil
}

func (f *fakeRecords) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRecords) Pages() []Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Page(nil), f.pages...)
}

func (f *fakeRecords) ListTasksByStatus(_ context.Context, p Page) ([]model.Task, error) {
	f.mu.Lock()
	f.pages = append(f.pages, p)
	fn := f.list
	rows := f.rows
	f.mu.Unlock()
	if fn != nil {
		return fn(p)
	}
	var match []model.Task
	for _, t := range rows {
		if t.Status.Normalize() == p.Status && (p.Query == "" || strings.Contains(t.TargetName, p.Query)) {
			match = append(match, t)
		}
	}
	if p.Offset >= len(match) {
		return nil, nil
	}
	end := p.Offset + p.Limit
	if end > len(match) {
		end = len(match)
	}
	return match[p.Offset:end], nil
}

func (f *fakeRecords) CountByStatus(_ context.Context, query string) (map[model.Status]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts != nil {
		return f.counts, nil
	}
	out := map[model.Status]int{}
	for _, t := range f.rows {
		if query == "" || strings.Contains(t.TargetName, query) {
			out[t.Status.Normalize()]++
		}
	}
	return out, nil
}

func (f *fakeRecords) GetTask(_ context.Context, id string) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.ID == id {
			return t, nil
		}
	}
	return model.Task{}, NotFoundError{Kind: "task", ID: id}
}

func (f *fakeRecords) CreateTask(_ context.Context, t model.Task) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		t.ID = fmt.Sprintf("task-new%d", len(f.rows))
	}
	f.rows = append(f.rows, t)
	f.calls = append(f.calls, "create "+t.ID)
	return t, nil
}

func (f *fakeRecords) UpdateTask(_ context.Context, t model.Task) (Result, error) {
	return f.mutate(t.ID, "edit "+t.ID)
}

func (f *fakeRecords) UpdateStatus(_ context.Context, id string, st model.Status) (Result, error) {
	return f.mutate(id, "status "+id+" "+string(st))
}

func (f *fakeRecords) Delete(_ context.Context, id string) (Result, error) {
	return f.mutate(id, "delete "+id)
}

func (f *fakeRecords) ReplaceNotes(_ context.Context, id string, log notes.Log) (Result, error) {
	res, err := f.mutate(id, fmt.Sprintf("notes %s %d", id, len(log)))
	if err == nil && res.Success {
		f.mu.Lock()
		f.notes[id] = log.Clone()
		f.mu.Unlock()
	}
	return res, err
}

func (f *fakeRecords) SetAttachments(_ context.Context, id string, atts []model.Attachment) (Result, error) {
	res, err := f.mutate(id, fmt.Sprintf("attach %s %d", id, len(atts)))
	if err == nil && res.Success {
		f.mu.Lock()
		f.atts[id] = append([]model.Attachment(nil), atts...)
		f.mu.Unlock()
	}
	return res, err
}

func failCalls(prefix string) func(string) (Result, error) {
	return func(call string) (Result, error) {
		if strings.HasPrefix(call, prefix) {
			return Failed("rejected by test"), nil
		}
		return OK(), nil
	}
}

func makeTasks(prefix string, st model.Status, n int) []model.Task {
	out := make([]model.Task, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.Task{ID: fmt.Sprintf("%s-%02d", prefix, i), Status: st, TargetName: prefix})
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

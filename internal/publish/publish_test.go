package publish

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"caseboard/internal/model"
	"caseboard/internal/notes"
)

func sampleTask(t *testing.T) model.Task {
	t.Helper()
	now := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)
	first, err := notes.NewRecord("Ana", "first look", now)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	second, err := notes.NewRecord("Ben", "follow-up", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return model.Task{
		ID:            "task-test",
		Status:        model.StatusPending,
		RequestType:   "Inspection",
		TargetName:    "Pier 4",
		ExecutionUnit: "north",
		Description:   "Some **markdown**.",
		ContactName:   "Lee",
		ContactEmail:  "lee@example.com",
		Notes:         notes.Log{first, second},
		Attachments:   []model.Attachment{{FileID: "f1", Name: "photo.jpg", URL: "/files/f1/photo.jpg"}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestRenderTaskMarkdown(t *testing.T) {
	t.Parallel()

	md := RenderTaskMarkdown(sampleTask(t))
	for _, want := range []string{
		"# Inspection: Pier 4",
		"- Status: Pending",
		"- Execution unit: north",
		"- Contact: Lee, lee@example.com",
		"## Description\n\nSome **markdown**.",
		"- [photo.jpg](/files/f1/photo.jpg)",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("expected %q in:\n%s", want, md)
		}
	}
	if strings.Contains(md, "Requester") {
		t.Fatalf("empty fields should be omitted:\n%s", md)
	}
	if strings.Index(md, "follow-up") > strings.Index(md, "first look") {
		t.Fatalf("expected newest note first:\n%s", md)
	}
}

func TestWriteBoard_RefusesOverwriteByDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	task := sampleTask(t)
	cols := []model.Column{
		{Key: model.StatusTodo, Label: model.StatusTodo.Label()},
		{Key: model.StatusPending, Label: model.StatusPending.Label(), Tasks: []model.Task{task}, Total: 1},
	}

	res, err := WriteBoard(cols, dir, WriteOptions{Title: "North unit"})
	if err != nil {
		t.Fatalf("WriteBoard: %v", err)
	}
	if len(res.Written) != 2 {
		t.Fatalf("expected index + 1 task page, got %v", res.Written)
	}
	index, err := os.ReadFile(filepath.Join(dir, "index.md"))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	for _, want := range []string{"# North unit", "_Empty._", "(tasks/task-test.md)"} {
		if !strings.Contains(string(index), want) {
			t.Fatalf("expected %q in index:\n%s", want, index)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "tasks", "task-test.md")); err != nil {
		t.Fatalf("task page: %v", err)
	}

	if _, err := WriteBoard(cols, dir, WriteOptions{}); err == nil || !strings.Contains(err.Error(), "--overwrite") {
		t.Fatalf("expected overwrite error, got %v", err)
	}
	if _, err := WriteBoard(cols, dir, WriteOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestWriteTask_MissingDestination(t *testing.T) {
	t.Parallel()

	if _, err := WriteTask(sampleTask(t), "  ", WriteOptions{}); err == nil {
		t.Fatalf("expected missing --to error")
	}
}

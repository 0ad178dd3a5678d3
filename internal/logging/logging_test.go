package logging

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNew_Levels(t *testing.T) {
	t.Setenv("DEBUG", "")

	tests := []struct {
		level string
		want  log.Level
	}{
		{level: "", want: log.InfoLevel},
		{level: "warn", want: log.WarnLevel},
		{level: " DEBUG ", want: log.DebugLevel},
	}
	for _, tt := range tests {
		logger, err := New(tt.level, &bytes.Buffer{})
		if err != nil {
			t.Fatalf("New(%q): %v", tt.level, err)
		}
		if got := logger.GetLevel(); got != tt.want {
			t.Fatalf("New(%q) level = %v, want %v", tt.level, got, tt.want)
		}
	}
	if _, err := New("loud", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNew_DebugEnvWins(t *testing.T) {
	t.Setenv("DEBUG", "1")

	logger, err := New("error", &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %v", logger.GetLevel())
	}
}

func TestNew_WritesTextFields(t *testing.T) {
	t.Setenv("DEBUG", "")

	var buf bytes.Buffer
	logger, err := New("info", &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.WithFields(log.Fields{"task_id": "task-1", "action": "status"}).Warn("mutation rolled back")
	out := buf.String()
	for _, want := range []string{"level=warning", "task_id=task-1", "action=status", `msg="mutation rolled back"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestOpenFile_CreatesDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "caseboard.log")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteString("x\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSpanLogger_ExportsFinishedSpans(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(NewSpanLogger(logger)))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "board.status")
	span.SetAttributes(attribute.String("task.id", "task-1"))
	span.SetStatus(codes.Error, "remote said no")
	span.End()

	entries := hook.AllEntries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Message != "span" || e.Level != log.DebugLevel {
		t.Fatalf("unexpected entry: %v %q", e.Level, e.Message)
	}
	if e.Data["span"] != "board.status" || e.Data["task.id"] != "task-1" {
		t.Fatalf("missing span fields: %v", e.Data)
	}
	if e.Data["status"] != "Error" || e.Data["error"] != "remote said no" {
		t.Fatalf("missing status fields: %v", e.Data)
	}
}

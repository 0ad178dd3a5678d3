package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"caseboard/internal/board"
	"caseboard/internal/model"
	"caseboard/internal/notes"
	"caseboard/internal/perm"
	"caseboard/internal/store"
	"caseboard/internal/web"
)

var testSecret = []byte("remote-test-secret")

func newServer(t *testing.T) (*httptest.Server, *store.SQLite) {
	t.Helper()
	records, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "caseboard.sqlite"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = records.Close() })
	logger, _ := test.NewNullLogger()
	srv := web.NewServer(web.ServerConfig{}, records, perm.NewSecretVerifier(testSecret), logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, records
}

func newClient(t *testing.T, ts *httptest.Server, id perm.Identity) *Client {
	t.Helper()
	tok := ""
	if id.Subject != "" {
		var err error
		tok, err = perm.IssueToken(testSecret, id, time.Hour)
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
	}
	logger, _ := test.NewNullLogger()
	c, err := New(ts.URL+"/", tok, WithHTTPClient(ts.Client()), WithLogger(logger))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

var (
	admin  = perm.Identity{Subject: "u-admin", Role: perm.RoleAdmin}
	member = perm.Identity{Subject: "u-mai", Name: "Mai", Groups: []string{"Team A"}, Permissions: []string{"task.status"}}
)

func TestNew_RejectsBadURLs(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "ftp://x", "://nope"} {
		if _, err := New(raw, ""); err == nil {
			t.Fatalf("New(%q): expected error", raw)
		}
	}
}

func TestClient_RecordStoreContract(t *testing.T) {
	t.Parallel()

	ts, _ := newServer(t)
	c := newClient(t, ts, admin)
	ctx := context.Background()

	created, err := c.CreateTask(ctx, model.Task{TargetName: "Alpha", ExecutionUnit: "Team A"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := c.CreateTask(ctx, model.Task{TargetName: "Beta", Status: model.StatusDone}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	rows, err := c.ListTasksByStatus(ctx, board.Page{Status: model.StatusTodo, Limit: 20})
	if err != nil || len(rows) != 1 || rows[0].ID != created.ID {
		t.Fatalf("ListTasksByStatus: %+v err=%v", rows, err)
	}
	rows, err = c.ListTasksByStatus(ctx, board.Page{Status: model.StatusDone, Limit: 20, Query: "zzz"})
	if err != nil || len(rows) != 0 {
		t.Fatalf("query filter: %+v err=%v", rows, err)
	}
	counts, err := c.CountByStatus(ctx, "")
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[model.StatusTodo] != 1 || counts[model.StatusDone] != 1 || counts[model.StatusPending] != 0 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	var nf board.NotFoundError
	if _, err := c.GetTask(ctx, "task-missing"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	res, err := c.UpdateStatus(ctx, created.ID, model.StatusPending)
	if err != nil || !res.Success {
		t.Fatalf("UpdateStatus: %+v err=%v", res, err)
	}
	res, err = c.UpdateStatus(ctx, "task-missing", model.StatusPending)
	if err != nil || res.Success {
		t.Fatalf("missing task must be a rejected result: %+v err=%v", res, err)
	}

	log := notes.Log{{Shape: notes.ShapeLegacy, Content: "legacy", CreatedAt: "08:00 02/01/2024"}}
	if res, err := c.ReplaceNotes(ctx, created.ID, log); err != nil || !res.Success {
		t.Fatalf("ReplaceNotes: %+v err=%v", res, err)
	}
	if res, err := c.SetAttachments(ctx, created.ID, []model.Attachment{{FileID: "f1", Name: "a.pdf", URL: "https://x/a"}}); err != nil || !res.Success {
		t.Fatalf("SetAttachments: %+v err=%v", res, err)
	}
	got, err := c.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != model.StatusPending || len(got.Notes) != 1 || got.Notes[0].Shape != notes.ShapeLegacy || len(got.Attachments) != 1 {
		t.Fatalf("unexpected task: %+v", got)
	}
	if e := got.Notes.Entries(); e[0].ID != "legacy_0" {
		t.Fatalf("legacy shape lost over the wire: %+v", e)
	}

	got.TargetName = "Renamed"
	if res, err := c.UpdateTask(ctx, got); err != nil || !res.Success {
		t.Fatalf("UpdateTask: %+v err=%v", res, err)
	}
	if res, err := c.Delete(ctx, created.ID); err != nil || !res.Success {
		t.Fatalf("Delete: %+v err=%v", res, err)
	}
}

func TestClient_ForbiddenIsARejectedResult(t *testing.T) {
	t.Parallel()

	ts, records := newServer(t)
	ctx := context.Background()
	if _, err := records.CreateTask(ctx, model.Task{ID: "task-b", ExecutionUnit: "Team B"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	c := newClient(t, ts, member)

	res, err := c.UpdateStatus(ctx, "task-b", model.StatusDone)
	if err != nil {
		t.Fatalf("forbidden must not be a transport error: %v", err)
	}
	if res.Success || res.Message == "" {
		t.Fatalf("expected rejected result with message, got %+v", res)
	}

	var he *HTTPError
	if _, err := c.CreateTask(ctx, model.Task{TargetName: "x"}); !errors.As(err, &he) || he.Status != http.StatusForbidden {
		t.Fatalf("expected forbidden create, got %v", err)
	}
}

func TestClient_Unauthorized(t *testing.T) {
	t.Parallel()

	ts, _ := newServer(t)
	c := newClient(t, ts, perm.Identity{})

	_, err := c.CountByStatus(context.Background(), "")
	if !IsUnauthorized(err) {
		t.Fatalf("expected 401, got %v", err)
	}
	if err := c.Watch(context.Background(), func(Event) {}); !IsUnauthorized(err) {
		t.Fatalf("Watch must stop on 401, got %v", err)
	}
}

// The engine rolls back a drag that the server refuses.
func TestClient_BoardRollsBackServerRejection(t *testing.T) {
	t.Parallel()

	ts, records := newServer(t)
	ctx := context.Background()
	for _, task := range []model.Task{
		{ID: "task-a", TargetName: "Mine", ExecutionUnit: "Team A"},
		{ID: "task-b", TargetName: "Theirs", ExecutionUnit: "Team B"},
	} {
		if _, err := records.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}

	logger, _ := test.NewNullLogger()
	// AllowAll leaves the decision to the server.
	b := board.New(newClient(t, ts, member), perm.AllowAll{}, board.DefaultConfig(), board.WithLogger(logger))
	if err := b.Reload(ctx, ""); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if err := b.OnStatusChange(ctx, "task-a", model.StatusDone); err != nil {
		t.Fatalf("allowed change: %v", err)
	}
	err := b.OnStatusChange(ctx, "task-b", model.StatusDone)
	var me *board.MutationError
	if !errors.As(err, &me) {
		t.Fatalf("expected MutationError, got %v", err)
	}
	held, _ := b.Store().Task("task-b")
	if held.Status != model.StatusTodo {
		t.Fatalf("rejected change must roll back, held %q", held.Status)
	}
	if got := b.Store().Total(model.StatusDone); got != 1 {
		t.Fatalf("done total = %d, want 1", got)
	}
}

func TestClient_SubscribeReceivesChanges(t *testing.T) {
	t.Parallel()

	ts, records := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := records.CreateTask(ctx, model.Task{ID: "task-a", ExecutionUnit: "Team A"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	c := newClient(t, ts, member)

	got := make(chan Event, 4)
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, func(ev Event) { got <- ev }) }()

	// Retry the write until the stream is attached and reports it.
	deadline := time.After(5 * time.Second)
	next := model.StatusPending
	for {
		if res, err := c.UpdateStatus(ctx, "task-a", next); err != nil || !res.Success {
			t.Fatalf("UpdateStatus: %+v err=%v", res, err)
		}
		select {
		case ev := <-got:
			if ev.Type != web.EventChanged || ev.TaskID != "task-a" || ev.Action != "status" {
				t.Fatalf("unexpected event: %+v", ev)
			}
			cancel()
			if err := <-done; !errors.Is(err, context.Canceled) {
				t.Fatalf("Watch returned %v after cancel", err)
			}
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatalf("no event received")
		}
		if next == model.StatusPending {
			next = model.StatusTodo
		} else {
			next = model.StatusPending
		}
	}
}

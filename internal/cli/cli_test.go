package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"caseboard/internal/notes"
	"caseboard/internal/perm"
)

func runCLI(t *testing.T, args []string) (stdout []byte, stderr []byte, err error) {
	t.Helper()

	cmd := NewRootCmd()
	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)

	e := cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), e
}

// workspace writes a config.yaml rooted in a temp dir and returns the
// --config flag pair for it.
func workspace(t *testing.T, extra string) (dir string, flags []string) {
	t.Helper()
	dir = t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "data_dir: " + dir + "\nlog_level: error\n" + extra
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir, []string{"--config", path}
}

func mustRun(t *testing.T, flags []string, args ...string) map[string]any {
	t.Helper()
	all := append(append([]string{}, flags...), args...)
	stdout, stderr, err := runCLI(t, all)
	if err != nil {
		t.Fatalf("command failed: caseboard %v\nerr: %v\nstderr:\n%s\nstdout:\n%s", all, err, stderr, stdout)
	}
	var env map[string]any
	if err := json.Unmarshal(stdout, &env); err != nil {
		t.Fatalf("unmarshal stdout: %v\nstdout:\n%s", err, stdout)
	}
	if _, ok := env["data"]; !ok {
		t.Fatalf("expected data key in envelope: %s", stdout)
	}
	return env
}

func dataMap(t *testing.T, env map[string]any) map[string]any {
	t.Helper()
	m, ok := env["data"].(map[string]any)
	if !ok {
		t.Fatalf("data is %T, want object", env["data"])
	}
	return m
}

func dataList(t *testing.T, env map[string]any) []any {
	t.Helper()
	xs, ok := env["data"].([]any)
	if !ok {
		t.Fatalf("data is %T, want array", env["data"])
	}
	return xs
}

func TestTasks_Lifecycle(t *testing.T) {
	t.Parallel()
	_, flags := workspace(t, "")

	created := dataMap(t, mustRun(t, flags, "tasks", "create", "--type", "Inspection", "--target", "Pier 4", "--unit", "north"))
	id, _ := created["id"].(string)
	if !strings.HasPrefix(id, "task-") {
		t.Fatalf("unexpected id %q", id)
	}
	if created["status"] != "todo" {
		t.Fatalf("status = %v, want todo", created["status"])
	}

	moved := dataMap(t, mustRun(t, flags, "tasks", "status", id, "done"))
	if moved["status"] != "done" {
		t.Fatalf("status after move = %v", moved["status"])
	}

	edited := dataMap(t, mustRun(t, flags, "tasks", "edit", id, "--deadline", "2025-03-01"))
	if edited["deadline"] != "2025-03-01" || edited["targetName"] != "Pier 4" || edited["status"] != "done" {
		t.Fatalf("edit lost fields: %v", edited)
	}

	shown := dataMap(t, mustRun(t, flags, "tasks", "show", id))
	if shown["deadline"] != "2025-03-01" || shown["status"] != "done" {
		t.Fatalf("show did not persist: %v", shown)
	}

	done := mustRun(t, flags, "tasks", "list", "--status", "done")
	if len(dataList(t, done)) != 1 {
		t.Fatalf("expected one done task: %v", done["data"])
	}

	mustRun(t, flags, "tasks", "delete", id)
	_, _, err := runCLI(t, append(flags, "tasks", "show", id))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestTasks_CreateNeedsTitleFields(t *testing.T) {
	t.Parallel()
	_, flags := workspace(t, "")

	_, stderr, err := runCLI(t, append(flags, "tasks", "create", "--unit", "north"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(string(stderr), "--target or --type") {
		t.Fatalf("stderr = %q", stderr)
	}
	if _, _, err := runCLI(t, append(flags, "tasks", "create", "--target", "x", "--status", "later")); err == nil {
		t.Fatalf("expected invalid status error")
	}
}

func TestTasks_ImportAndPaging(t *testing.T) {
	t.Parallel()
	dir, flags := workspace(t, "")

	src := filepath.Join(dir, "tasks.json")
	payload := `[
 {"id":"task-a","status":"todo","targetName":"A","createdAt":"2024-01-05T00:00:00Z"},
 {"id":"task-b","status":"todo","targetName":"B","createdAt":"2024-01-04T00:00:00Z"},
 {"id":"task-c","status":"todo","targetName":"C","createdAt":"2024-01-03T00:00:00Z"},
 {"id":"task-d","status":"Pending","targetName":"D","createdAt":"2024-01-02T00:00:00Z"},
 {"status":"done","targetName":"E","notes":"[{\"createdAt\":\"09:30 01/02/2024\",\"content\":\"legacy\"}]"}
]`
	if err := os.WriteFile(src, []byte(payload), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	imported := dataMap(t, mustRun(t, flags, "tasks", "import", src))
	if imported["imported"] != float64(5) {
		t.Fatalf("imported = %v", imported["imported"])
	}

	page := mustRun(t, flags, "tasks", "list", "--status", "todo", "--limit", "2")
	rows := dataList(t, page)
	if len(rows) != 2 || rows[0].(map[string]any)["id"] != "task-a" || rows[1].(map[string]any)["id"] != "task-b" {
		t.Fatalf("unexpected first page: %v", rows)
	}
	meta := page["meta"].(map[string]any)
	if meta["total"] != float64(3) || meta["returned"] != float64(2) {
		t.Fatalf("unexpected meta: %v", meta)
	}
	hints := page["_hints"].([]any)
	if len(hints) != 1 || !strings.Contains(hints[0].(string), "--offset 2") {
		t.Fatalf("expected next-page hint, got %v", hints)
	}

	last := mustRun(t, flags, "tasks", "list", "--status", "todo", "--limit", "2", "--offset", "2")
	if len(dataList(t, last)) != 1 || len(last["_hints"].([]any)) != 0 {
		t.Fatalf("unexpected last page: %v", last)
	}

	board := mustRun(t, flags, "tasks", "list", "-q", "d")
	cols := dataList(t, board)
	if len(cols) != 3 {
		t.Fatalf("expected three columns, got %d", len(cols))
	}
	pending := cols[1].(map[string]any)
	if pending["key"] != "pending" || pending["total"] != float64(1) {
		t.Fatalf("unexpected pending column: %v", pending)
	}
}

func TestNotes_AddEditDelete(t *testing.T) {
	t.Parallel()
	_, flags := workspace(t, "identity:\n  subject: u1\n  name: Dana\n  role: admin\n")

	id := dataMap(t, mustRun(t, flags, "tasks", "create", "--target", "Depot"))["id"].(string)

	first := dataMap(t, mustRun(t, flags, "notes", "add", id, "--body", "first"))
	if first["createdBy"] != "Dana" || first["content"] != "first" {
		t.Fatalf("unexpected note: %v", first)
	}
	mustRun(t, flags, "notes", "add", id, "--body", "second")

	view := dataList(t, mustRun(t, flags, "notes", "list", id))
	if len(view) != 2 || view[0].(map[string]any)["content"] != "second" {
		t.Fatalf("expected newest first: %v", view)
	}

	noteID := first["id"].(string)
	edited := dataList(t, mustRun(t, flags, "notes", "edit", id, noteID, "--body", "first, revised"))
	if edited[1].(map[string]any)["content"] != "first, revised" {
		t.Fatalf("edit not applied: %v", edited)
	}

	mustRun(t, flags, "notes", "delete", id, noteID)
	view = dataList(t, mustRun(t, flags, "notes", "list", id))
	if len(view) != 1 || view[0].(map[string]any)["content"] != "second" {
		t.Fatalf("unexpected notes after delete: %v", view)
	}

	if _, _, err := runCLI(t, append(flags, "notes", "delete", id, "note_missing")); err == nil {
		t.Fatalf("expected error for unknown note")
	}
	if _, _, err := runCLI(t, append(flags, "notes", "add", id, "--body", "   ")); err == nil {
		t.Fatalf("expected error for empty body")
	}
}

func TestNotes_ExpectGuardsShiftedLegacyIDs(t *testing.T) {
	t.Parallel()
	dir, flags := workspace(t, "identity:\n  subject: u1\n  name: Dana\n  role: admin\n")

	src := filepath.Join(dir, "tasks.json")
	payload := `[{"id":"task-x","status":"todo","targetName":"X","notes":"[{\"timestamp\":\"10:00 01/01/2024\",\"content\":\"A\"},{\"timestamp\":\"11:00 01/01/2024\",\"content\":\"B\"}]"}]`
	if err := os.WriteFile(src, []byte(payload), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	mustRun(t, flags, "tasks", "import", src)

	mustRun(t, flags, "notes", "delete", "task-x", "legacy_0", "--expect", "A")

	// legacy_0 now names B; an id copied before the delete must not hit it.
	_, _, err := runCLI(t, append(flags, "notes", "delete", "task-x", "legacy_0", "--expect", "A"))
	if !errors.Is(err, notes.ErrStaleRef) {
		t.Fatalf("expected stale ref, got %v", err)
	}
	_, _, err = runCLI(t, append(flags, "notes", "edit", "task-x", "legacy_0", "--body", "C", "--expect", "A"))
	if !errors.Is(err, notes.ErrStaleRef) {
		t.Fatalf("expected stale ref on edit, got %v", err)
	}

	view := dataList(t, mustRun(t, flags, "notes", "list", "task-x"))
	if len(view) != 1 || view[0].(map[string]any)["content"] != "B" {
		t.Fatalf("unexpected notes: %v", view)
	}
}

func TestAttach_PartialFailureKeepsUploaded(t *testing.T) {
	t.Parallel()
	dir, flags := workspace(t, "")

	id := dataMap(t, mustRun(t, flags, "tasks", "create", "--target", "Warehouse"))["id"].(string)
	good := filepath.Join(dir, "photo.txt")
	if err := os.WriteFile(good, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	stdout, _, err := runCLI(t, append(flags, "attach", id, good, filepath.Join(dir, "missing.txt")))
	if err == nil {
		t.Fatalf("expected partial failure to exit non-zero")
	}
	var env map[string]any
	if jerr := json.Unmarshal(stdout, &env); jerr != nil {
		t.Fatalf("unmarshal: %v\n%s", jerr, stdout)
	}
	atts := dataList(t, env)
	if len(atts) != 1 || atts[0].(map[string]any)["name"] != "photo.txt" {
		t.Fatalf("unexpected attachments: %v", atts)
	}
	if errs, _ := env["errors"].([]any); len(errs) != 1 {
		t.Fatalf("expected one item error, got %v", env["errors"])
	}

	shown := dataMap(t, mustRun(t, flags, "tasks", "show", id))
	if xs, _ := shown["attachments"].([]any); len(xs) != 1 {
		t.Fatalf("attachment not persisted: %v", shown["attachments"])
	}
	if _, err := os.Stat(filepath.Join(dir, "files")); err != nil {
		t.Fatalf("expected files dir under data_dir: %v", err)
	}
}

func TestPermissions_MemberOutsideGroupIsRefused(t *testing.T) {
	t.Parallel()
	dir, admin := workspace(t, "")

	id := dataMap(t, mustRun(t, admin, "tasks", "create", "--target", "Dock", "--unit", "south"))["id"].(string)

	member := filepath.Join(dir, "member.yaml")
	body := "data_dir: " + dir + "\nlog_level: error\nidentity:\n  subject: m1\n  role: member\n  groups: [north]\n  permissions: [task.status]\n"
	if err := os.WriteFile(member, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, stderr, err := runCLI(t, []string{"--config", member, "tasks", "status", id, "done"})
	var forbidden *perm.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if !strings.Contains(string(stderr), "permission denied") {
		t.Fatalf("stderr = %q", stderr)
	}

	shown := dataMap(t, mustRun(t, admin, "tasks", "show", id))
	if shown["status"] != "todo" {
		t.Fatalf("refused move changed status: %v", shown["status"])
	}
}

func TestToken_IssueVerifies(t *testing.T) {
	t.Parallel()
	_, flags := workspace(t, "auth:\n  secret: s3cret\n")

	data := dataMap(t, mustRun(t, flags, "token", "issue", "--subject", "u7", "--name", "Ola", "--role", "manager", "--group", "north", "--ttl", "1h"))
	tok, _ := data["token"].(string)
	id, err := perm.NewSecretVerifier([]byte("s3cret")).IdentityFromToken(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.Subject != "u7" || id.Role != perm.RoleManager || len(id.Groups) != 1 || id.Groups[0] != "north" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	if _, _, err := runCLI(t, append(flags, "token", "issue", "--subject", "u7", "--role", "owner")); err == nil {
		t.Fatalf("expected invalid role error")
	}
	_, noSecret := workspace(t, "")
	if _, _, err := runCLI(t, append(noSecret, "token", "issue", "--subject", "u7")); err == nil {
		t.Fatalf("expected missing secret error")
	}
}

func TestFormat_EDN(t *testing.T) {
	t.Parallel()
	_, flags := workspace(t, "")

	mustRun(t, flags, "tasks", "create", "--target", "Gate", "--unit", "east")
	stdout, _, err := runCLI(t, append(flags, "--format", "edn", "tasks", "list", "--status", "todo"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	out := string(stdout)
	for _, want := range []string{":_hints", ":execution-unit \"east\"", ":target-name \"Gate\"", ":returned 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %s", want, out)
		}
	}
}

func TestInit_WritesStarterConfigOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	first := dataMap(t, mustRun(t, []string{"--config", path}, "init"))
	if first["created"] != true {
		t.Fatalf("expected created: %v", first)
	}
	second := dataMap(t, mustRun(t, []string{"--config", path}, "init"))
	if second["created"] != false {
		t.Fatalf("expected existing file kept: %v", second)
	}
}

func TestPublish_BoardWritesIndexAndPages(t *testing.T) {
	t.Parallel()
	dir, flags := workspace(t, "page_size: 2\n")

	for _, target := range []string{"Alpha", "Bravo", "Charlie"} {
		mustRun(t, flags, "tasks", "create", "--target", target)
	}
	out := filepath.Join(dir, "site")
	env := mustRun(t, flags, "publish", "board", "--to", out, "--title", "Weekly")
	written := dataMap(t, env)["written"].([]any)
	if len(written) != 4 {
		t.Fatalf("expected index + 3 pages across two pages of results, got %v", written)
	}
	index, err := os.ReadFile(filepath.Join(out, "index.md"))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if !strings.Contains(string(index), "## To do (3)") {
		t.Fatalf("unexpected index:\n%s", index)
	}
	if _, _, err := runCLI(t, append(flags, "publish", "board", "--to", out)); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
}

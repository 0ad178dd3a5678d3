// Package store holds the record store implementations the board syncs
// with: a local SQLite database and a Redis read-through cache in front of
// any record store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"caseboard/internal/board"
	"caseboard/internal/model"
	"caseboard/internal/notes"
)

// statusExpr maps whatever is stored in tasks.status onto the closed set,
// so rows written by older clients (empty or free-form statuses) land in a
// column.
const statusExpr = `CASE lower(trim(status))
	WHEN 'pending' THEN 'pending'
	WHEN 'in progress' THEN 'pending'
	WHEN 'doing' THEN 'pending'
	WHEN 'done' THEN 'done'
	WHEN 'completed' THEN 'done'
	WHEN 'closed' THEN 'done'
	ELSE 'todo' END`

const taskColumns = `id, status, request_type, target_name, requester, deadline, execution_unit,
	description, contact_name, contact_phone, contact_email,
	notes_json, attachments_json, created_at_unixms, updated_at_unixms`

// SQLite is a board.RecordStore backed by one SQLite file.
type SQLite struct {
	db  *sql.DB
	log log.FieldLogger
	now func() time.Time
}

var _ board.RecordStore = (*SQLite)(nil)

func OpenSQLite(ctx context.Context, path string, logger log.FieldLogger) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("missing sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps the pragmas below in force for every statement.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	s := &SQLite{db: db, log: logger, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT '',
			request_type TEXT NOT NULL DEFAULT '',
			target_name TEXT NOT NULL DEFAULT '',
			requester TEXT NOT NULL DEFAULT '',
			deadline TEXT NOT NULL DEFAULT '',
			execution_unit TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			contact_name TEXT NOT NULL DEFAULT '',
			contact_phone TEXT NOT NULL DEFAULT '',
			contact_email TEXT NOT NULL DEFAULT '',
			notes_json TEXT NOT NULL DEFAULT '[]',
			attachments_json TEXT NOT NULL DEFAULT '[]',
			created_at_unixms INTEGER NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at_unixms);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLite) scanTask(row scanner) (model.Task, error) {
	var (
		t                   model.Task
		status              string
		notesRaw, attsRaw   string
		createdMs, updateMs int64
	)
	if err := row.Scan(
		&t.ID, &status, &t.RequestType, &t.TargetName, &t.Requester, &t.Deadline, &t.ExecutionUnit,
		&t.Description, &t.ContactName, &t.ContactPhone, &t.ContactEmail,
		&notesRaw, &attsRaw, &createdMs, &updateMs,
	); err != nil {
		return model.Task{}, err
	}
	t.Status = model.Status(status).Normalize()
	t.CreatedAt = time.UnixMilli(createdMs).UTC()
	t.UpdatedAt = time.UnixMilli(updateMs).UTC()

	parsed, err := notes.Parse([]byte(notesRaw))
	if err != nil {
		s.log.WithFields(logFields(t.ID)).WithError(err).Warn("malformed notes log")
	}
	t.Notes = parsed
	if strings.TrimSpace(attsRaw) != "" {
		if err := json.Unmarshal([]byte(attsRaw), &t.Attachments); err != nil {
			s.log.WithFields(logFields(t.ID)).WithError(err).Warn("malformed attachments")
			t.Attachments = nil
		}
	}
	return t, nil
}

func logFields(taskID string) log.Fields {
	return log.Fields{"task_id": taskID}
}

// likePattern escapes q for a LIKE ... ESCAPE '\' match anywhere.
func likePattern(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

const queryFilter = `(? = '' OR lower(target_name) LIKE ? ESCAPE '\'
	OR lower(requester) LIKE ? ESCAPE '\'
	OR lower(request_type) LIKE ? ESCAPE '\'
	OR lower(description) LIKE ? ESCAPE '\')`

func queryArgs(q string) []any {
	q = strings.TrimSpace(q)
	p := likePattern(q)
	return []any{q, p, p, p, p}
}

func (s *SQLite) ListTasksByStatus(ctx context.Context, p board.Page) ([]model.Task, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = board.DefaultPageSize
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	args := []any{string(p.Status.Normalize())}
	args = append(args, queryArgs(p.Query)...)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE `+statusExpr+` = ? AND `+queryFilter+`
		ORDER BY created_at_unixms DESC, id
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) CountByStatus(ctx context.Context, query string) (map[model.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+statusExpr+` AS st, COUNT(*) FROM tasks
		WHERE `+queryFilter+`
		GROUP BY st`, queryArgs(query)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.Status]int, 3)
	for _, st := range model.Statuses() {
		out[st] = 0
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[model.Status(st).Normalize()] += n
	}
	return out, rows.Err()
}

func (s *SQLite) GetTask(ctx context.Context, id string) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, strings.TrimSpace(id))
	t, err := s.scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, board.NotFoundError{Kind: "task", ID: id}
	}
	return t, err
}

func encodeAttachments(atts []model.Attachment) (string, error) {
	if atts == nil {
		atts = []model.Attachment{}
	}
	b, err := json.Marshal(atts)
	return string(b), err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLite) upsert(ctx context.Context, db execer, t model.Task) error {
	notesRaw, err := t.Notes.Encode()
	if err != nil {
		return err
	}
	attsRaw, err := encodeAttachments(t.Attachments)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO tasks(`+taskColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Status.Normalize()), t.RequestType, t.TargetName, t.Requester, t.Deadline, t.ExecutionUnit,
		t.Description, t.ContactName, t.ContactPhone, t.ContactEmail,
		string(notesRaw), attsRaw, t.CreatedAt.UTC().UnixMilli(), t.UpdatedAt.UTC().UnixMilli(),
	)
	return err
}

func (s *SQLite) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if strings.TrimSpace(t.ID) == "" {
		id, err := NewID("task")
		if err != nil {
			return model.Task{}, err
		}
		t.ID = id
	}
	now := s.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Status = t.Status.Normalize()
	if t.Notes == nil {
		t.Notes = notes.Log{}
	}
	if _, err := s.GetTask(ctx, t.ID); err == nil {
		return model.Task{}, fmt.Errorf("task %s already exists", t.ID)
	}
	if err := s.upsert(ctx, s.db, t); err != nil {
		return model.Task{}, err
	}
	// Round-trip through the same encoding readers see.
	return s.GetTask(ctx, t.ID)
}

// touched turns an UPDATE result into a board.Result.
func touched(id string, res sql.Result, err error) (board.Result, error) {
	if err != nil {
		return board.Result{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return board.Result{}, err
	}
	if n == 0 {
		return board.Failed("task " + id + " not found"), nil
	}
	return board.OK(), nil
}

func (s *SQLite) UpdateTask(ctx context.Context, t model.Task) (board.Result, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET
		status = ?, request_type = ?, target_name = ?, requester = ?, deadline = ?, execution_unit = ?,
		description = ?, contact_name = ?, contact_phone = ?, contact_email = ?, updated_at_unixms = ?
		WHERE id = ?`,
		string(t.Status.Normalize()), t.RequestType, t.TargetName, t.Requester, t.Deadline, t.ExecutionUnit,
		t.Description, t.ContactName, t.ContactPhone, t.ContactEmail, s.now().UTC().UnixMilli(),
		t.ID,
	)
	return touched(t.ID, res, err)
}

func (s *SQLite) UpdateStatus(ctx context.Context, id string, st model.Status) (board.Result, error) {
	if !st.Valid() {
		return board.Failed(fmt.Sprintf("invalid status %q", st)), nil
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at_unixms = ? WHERE id = ?`,
		string(st), s.now().UTC().UnixMilli(), id)
	return touched(id, res, err)
}

func (s *SQLite) Delete(ctx context.Context, id string) (board.Result, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return touched(id, res, err)
}

func (s *SQLite) ReplaceNotes(ctx context.Context, id string, l notes.Log) (board.Result, error) {
	raw, err := l.Encode()
	if err != nil {
		return board.Result{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET notes_json = ?, updated_at_unixms = ? WHERE id = ?`,
		string(raw), s.now().UTC().UnixMilli(), id)
	return touched(id, res, err)
}

func (s *SQLite) SetAttachments(ctx context.Context, id string, atts []model.Attachment) (board.Result, error) {
	raw, err := encodeAttachments(atts)
	if err != nil {
		return board.Result{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET attachments_json = ?, updated_at_unixms = ? WHERE id = ?`,
		raw, s.now().UTC().UnixMilli(), id)
	return touched(id, res, err)
}

// ImportJSON upserts a JSON array of tasks and reports how many were written.
// Tasks without an id get one; notes may be in either stored shape.
func (s *SQLite) ImportJSON(ctx context.Context, r io.Reader) (int, error) {
	var tasks []model.Task
	if err := json.NewDecoder(r).Decode(&tasks); err != nil {
		return 0, fmt.Errorf("decode tasks: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	for i := range tasks {
		t := tasks[i]
		if strings.TrimSpace(t.ID) == "" {
			id, err := NewID("task")
			if err != nil {
				return 0, err
			}
			t.ID = id
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
		if err := s.upsert(ctx, tx, t); err != nil {
			return 0, fmt.Errorf("import %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.log.WithField("tasks", len(tasks)).Info("imported tasks")
	return len(tasks), nil
}

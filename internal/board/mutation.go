package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"caseboard/internal/files"
	"caseboard/internal/model"
	"caseboard/internal/notes"
	"caseboard/internal/perm"
)

const tracerName = "caseboard/board"

// LocalAuthor is the author shown on a note until the record store confirms it.
const LocalAuthor = "you"

// Failure is one rolled-back (or partially failed) mutation, for the
// presentation layer to surface.
type Failure struct {
	Action string
	TaskID string
	Err    error
	At     time.Time
}

type Option func(*Engine)

func WithLogger(l log.FieldLogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithFiles sets the file host that owns task attachments.
func WithFiles(h files.Host) Option {
	return func(e *Engine) { e.files = h }
}

// WithAuthor sets the name written into persisted notes.
func WithAuthor(name string) Option {
	return func(e *Engine) { e.author = strings.TrimSpace(name) }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine applies mutations to the Store first, then confirms them with the
// record store, restoring the task when the record store says no.
type Engine struct {
	store   *Store
	records RecordStore
	gate    perm.Gate
	files   files.Host
	lanes   *lanes

	log    log.FieldLogger
	tracer trace.Tracer
	author string
	now    func() time.Time

	failures chan Failure
}

func NewEngine(store *Store, records RecordStore, gate perm.Gate, opts ...Option) *Engine {
	if gate == nil {
		gate = perm.AllowAll{}
	}
	discard := log.New()
	discard.SetOutput(io.Discard)
	e := &Engine{
		store:    store,
		records:  records,
		gate:     gate,
		lanes:    newLanes(),
		log:      discard,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		failures: make(chan Failure, 16),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Store() *Store { return e.store }

func (e *Engine) Records() RecordStore { return e.records }

// Failures delivers rollback notices. Notices are dropped when nobody keeps up.
func (e *Engine) Failures() <-chan Failure { return e.failures }

func (e *Engine) signal(f Failure) {
	select {
	case e.failures <- f:
	default:
	}
}

// Authorize checks a on the task currently held for id.
func (e *Engine) Authorize(ctx context.Context, a perm.Action, id string) error {
	t, ok := e.store.Task(id)
	if !ok {
		return NotFoundError{Kind: "task", ID: id}
	}
	return e.gate.Authorize(ctx, a, t)
}

// mutation is one optimistic change to a single task.
type mutation struct {
	action string
	perm   perm.Action
	taskID string
	// base, when set, is the rollback target instead of a fresh snapshot.
	base *Snapshot
	// prepare builds the optimistic task from the current one. Errors
	// abort before any local change.
	prepare func(cur model.Task) (model.Task, error)
	remove  bool
	call    func(ctx context.Context, next model.Task) (Result, error)
	settle  func(next model.Task)
}

func (e *Engine) run(ctx context.Context, m mutation) error {
	release, err := e.lanes.acquire(ctx, m.taskID)
	if err != nil {
		return err
	}
	defer release()

	restoreBase := func() {
		if m.base != nil {
			e.store.Restore(*m.base)
		}
	}

	cur, ok := e.store.Task(m.taskID)
	if !ok {
		restoreBase()
		return NotFoundError{Kind: "task", ID: m.taskID}
	}
	authTask := cur
	if m.base != nil && m.base.Present {
		authTask = m.base.Task
	}
	if err := e.gate.Authorize(ctx, m.perm, authTask); err != nil {
		restoreBase()
		e.log.WithFields(log.Fields{"task_id": m.taskID, "action": m.action}).WithError(err).Info("mutation forbidden")
		return err
	}

	next := cur
	if m.prepare != nil {
		next, err = m.prepare(cur.Clone())
		if err != nil {
			restoreBase()
			return err
		}
	}

	snap := e.store.Snapshot(m.taskID)
	if m.base != nil {
		snap = *m.base
	}
	if m.remove {
		e.store.Remove(m.taskID)
	} else {
		next.UpdatedAt = e.now().UTC()
		e.store.Put(next)
	}

	res, callErr := e.traced(ctx, m.action, m.taskID, func(ctx context.Context) (Result, error) {
		return m.call(ctx, next)
	})
	if callErr != nil || !res.Success {
		e.store.Restore(snap)
		merr := &MutationError{Action: m.action, TaskID: m.taskID, Message: res.Message, Err: callErr}
		e.log.WithFields(log.Fields{
			"task_id": m.taskID,
			"action":  m.action,
			"error":   merr.Error(),
		}).Warn("mutation rolled back")
		e.signal(Failure{Action: m.action, TaskID: m.taskID, Err: merr, At: e.now()})
		return merr
	}
	if m.settle != nil {
		m.settle(next)
	}
	e.log.WithFields(log.Fields{"task_id": m.taskID, "action": m.action}).Debug("mutation confirmed")
	return nil
}

func (e *Engine) traced(ctx context.Context, action, taskID string, fn func(context.Context) (Result, error)) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "board."+action, trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.String("board.action", action),
	))
	defer span.End()

	res, err := fn(ctx)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !res.Success:
		span.SetStatus(codes.Error, res.Message)
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Bool("board.success", err == nil && res.Success))
	return res, err
}

func checkStatus(st model.Status) error {
	if !st.Valid() {
		return fmt.Errorf("invalid status %q", st)
	}
	return nil
}

// SetStatus moves a task to another column. Moving to the current column is
// a no-op.
func (e *Engine) SetStatus(ctx context.Context, id string, st model.Status) error {
	if err := checkStatus(st); err != nil {
		return err
	}
	if cur, ok := e.store.Task(id); ok && cur.Status == st {
		return nil
	}
	return e.run(ctx, mutation{
		action: "status",
		perm:   perm.ActionStatus,
		taskID: id,
		prepare: func(cur model.Task) (model.Task, error) {
			cur.Status = st
			return cur, nil
		},
		call: func(ctx context.Context, next model.Task) (Result, error) {
			return e.records.UpdateStatus(ctx, id, st)
		},
	})
}

// CommitStatus persists a status the task may already show locally (from a
// drag preview). On failure the task returns to base.
func (e *Engine) CommitStatus(ctx context.Context, id string, st model.Status, base Snapshot) error {
	if err := checkStatus(st); err != nil {
		e.Revert(base)
		return err
	}
	if base.Present && base.Task.Status == st {
		e.Revert(base)
		return nil
	}
	return e.run(ctx, mutation{
		action: "status",
		perm:   perm.ActionStatus,
		taskID: id,
		base:   &base,
		prepare: func(cur model.Task) (model.Task, error) {
			cur.Status = st
			return cur, nil
		},
		call: func(ctx context.Context, next model.Task) (Result, error) {
			return e.records.UpdateStatus(ctx, id, st)
		},
	})
}

// Preview shows id in another column without telling the record store.
func (e *Engine) Preview(id string, st model.Status) error {
	if err := checkStatus(st); err != nil {
		return err
	}
	cur, ok := e.store.Task(id)
	if !ok {
		return NotFoundError{Kind: "task", ID: id}
	}
	if cur.Status == st {
		return nil
	}
	if err := e.gate.Authorize(context.Background(), perm.ActionStatus, cur); err != nil {
		return err
	}
	cur.Status = st
	e.store.Put(cur)
	return nil
}

// Revert undoes any local preview of base's task.
func (e *Engine) Revert(base Snapshot) {
	cur, ok := e.store.Task(base.TaskID)
	if ok == base.Present && (!ok || cur.Status == base.Task.Status) {
		return
	}
	e.store.Restore(base)
}

// Create stores a new task. The record store assigns its id, so there is
// nothing to show before it answers.
func (e *Engine) Create(ctx context.Context, t model.Task) (model.Task, error) {
	t.Status = t.Status.Normalize()
	if err := e.gate.Authorize(ctx, perm.ActionCreate, t); err != nil {
		return model.Task{}, err
	}
	var created model.Task
	res, err := e.traced(ctx, "create", t.ID, func(ctx context.Context) (Result, error) {
		var err error
		created, err = e.records.CreateTask(ctx, t)
		if err != nil {
			return Result{}, err
		}
		return OK(), nil
	})
	if err != nil || !res.Success {
		return model.Task{}, &MutationError{Action: "create", TaskID: t.ID, Message: res.Message, Err: err}
	}
	e.store.Put(created)
	return created, nil
}

// UpdateTask saves edited fields. Notes and attachments are owned by their
// own operations and are left as held.
func (e *Engine) UpdateTask(ctx context.Context, t model.Task) error {
	if t.Status != "" {
		if err := checkStatus(t.Status); err != nil {
			return err
		}
	}
	return e.run(ctx, mutation{
		action: "edit",
		perm:   perm.ActionEdit,
		taskID: t.ID,
		prepare: func(cur model.Task) (model.Task, error) {
			next := t.Clone()
			if next.Status == "" {
				next.Status = cur.Status
			}
			next.Notes = cur.Notes
			next.Attachments = cur.Attachments
			next.CreatedAt = cur.CreatedAt
			return next, nil
		},
		call: func(ctx context.Context, next model.Task) (Result, error) {
			return e.records.UpdateTask(ctx, next)
		},
	})
}

// Delete removes a task, then its hosted attachments. Attachment cleanup
// failures are reported but do not bring the task back.
func (e *Engine) Delete(ctx context.Context, id string) error {
	var atts []model.Attachment
	err := e.run(ctx, mutation{
		action: "delete",
		perm:   perm.ActionDelete,
		taskID: id,
		remove: true,
		prepare: func(cur model.Task) (model.Task, error) {
			atts = cur.Attachments
			return cur, nil
		},
		call: func(ctx context.Context, _ model.Task) (Result, error) {
			return e.records.Delete(ctx, id)
		},
	})
	if err != nil || e.files == nil || len(atts) == 0 {
		return err
	}

	ids := make([]string, 0, len(atts))
	for _, a := range atts {
		if a.FileID != "" {
			ids = append(ids, a.FileID)
		}
	}
	if err := files.RemoveAll(ctx, e.files, ids); err != nil {
		e.log.WithFields(log.Fields{"task_id": id, "action": "delete"}).WithError(err).Warn("attachment cleanup failed")
		e.signal(Failure{Action: "delete.attachments", TaskID: id, Err: err, At: e.now()})
	}
	return nil
}

// AddNote appends a note. Locally it shows as written by LocalAuthor until
// the record store accepts it under the engine's author.
func (e *Engine) AddNote(ctx context.Context, id, content string) (notes.Record, error) {
	local, err := notes.NewRecord(LocalAuthor, content, e.now())
	if err != nil {
		return notes.Record{}, err
	}
	persisted := local
	if e.author != "" {
		persisted.CreatedBy = e.author
	}

	err = e.run(ctx, mutation{
		action: "note.add",
		perm:   perm.ActionNotes,
		taskID: id,
		prepare: func(cur model.Task) (model.Task, error) {
			cur.Notes = cur.Notes.Append(local)
			return cur, nil
		},
		call: func(ctx context.Context, next model.Task) (Result, error) {
			out := next.Notes.Clone()
			out[len(out)-1] = persisted
			return e.records.ReplaceNotes(ctx, id, out)
		},
		settle: func(model.Task) {
			cur, ok := e.store.Task(id)
			if !ok {
				return
			}
			for i := range cur.Notes {
				if cur.Notes[i].ID == persisted.ID {
					cur.Notes[i] = persisted
				}
			}
			e.store.Put(cur)
		},
	})
	if err != nil {
		return notes.Record{}, err
	}
	return persisted, nil
}

// EditNote replaces the content of the note ref points at, as found in the
// latest log.
func (e *Engine) EditNote(ctx context.Context, id string, ref notes.Ref, content string) error {
	if strings.TrimSpace(content) == "" {
		return notes.ErrEmptyContent
	}
	return e.run(ctx, mutation{
		action: "note.edit",
		perm:   perm.ActionNotes,
		taskID: id,
		prepare: func(cur model.Task) (model.Task, error) {
			i, err := cur.Notes.Resolve(ref)
			if err != nil {
				return cur, err
			}
			cur.Notes, err = cur.Notes.Replace(i, content)
			return cur, err
		},
		call: func(ctx context.Context, next model.Task) (Result, error) {
			return e.records.ReplaceNotes(ctx, id, next.Notes)
		},
	})
}

func (e *Engine) DeleteNote(ctx context.Context, id string, ref notes.Ref) error {
	return e.run(ctx, mutation{
		action: "note.delete",
		perm:   perm.ActionNotes,
		taskID: id,
		prepare: func(cur model.Task) (model.Task, error) {
			i, err := cur.Notes.Resolve(ref)
			if err != nil {
				return cur, err
			}
			cur.Notes, err = cur.Notes.Remove(i)
			return cur, err
		},
		call: func(ctx context.Context, next model.Task) (Result, error) {
			return e.records.ReplaceNotes(ctx, id, next.Notes)
		},
	})
}

// AddAttachments appends already-uploaded files to a task.
func (e *Engine) AddAttachments(ctx context.Context, id string, atts []model.Attachment) error {
	if len(atts) == 0 {
		return errors.New("no attachments to add")
	}
	return e.run(ctx, mutation{
		action: "attach",
		perm:   perm.ActionAttach,
		taskID: id,
		prepare: func(cur model.Task) (model.Task, error) {
			merged := make([]model.Attachment, 0, len(cur.Attachments)+len(atts))
			merged = append(merged, cur.Attachments...)
			merged = append(merged, atts...)
			cur.Attachments = merged
			return cur, nil
		},
		call: func(ctx context.Context, next model.Task) (Result, error) {
			return e.records.SetAttachments(ctx, id, next.Attachments)
		},
	})
}

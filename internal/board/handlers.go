package board

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"caseboard/internal/files"
	"caseboard/internal/model"
	"caseboard/internal/notes"
	"caseboard/internal/perm"
)

type Config struct {
	PageSize           int
	InitialWindow      int
	WindowStep         int
	ProximityRows      int
	ActivationDistance int
}

func DefaultConfig() Config {
	return Config{
		PageSize:           DefaultPageSize,
		InitialWindow:      DefaultInitialWindow,
		WindowStep:         DefaultWindowStep,
		ProximityRows:      DefaultProximityRows,
		ActivationDistance: DefaultActivationDistance,
	}
}

// Board is what a presentation layer talks to: one Store, the Engine that
// mutates it, a Drag controller and one Window per column.
type Board struct {
	cfg     Config
	store   *Store
	engine  *Engine
	drag    *Drag
	windows map[model.Status]*Window
}

func New(records RecordStore, gate perm.Gate, cfg Config, opts ...Option) *Board {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.InitialWindow <= 0 {
		cfg.InitialWindow = def.InitialWindow
	}
	if cfg.WindowStep <= 0 {
		cfg.WindowStep = def.WindowStep
	}
	if cfg.ProximityRows <= 0 {
		cfg.ProximityRows = def.ProximityRows
	}
	if cfg.ActivationDistance <= 0 {
		cfg.ActivationDistance = def.ActivationDistance
	}

	store := NewStore()
	engine := NewEngine(store, records, gate, opts...)
	b := &Board{
		cfg:     cfg,
		store:   store,
		engine:  engine,
		drag:    NewDrag(engine, cfg.ActivationDistance),
		windows: map[model.Status]*Window{},
	}
	wc := WindowConfig{
		Initial:   cfg.InitialWindow,
		Step:      cfg.WindowStep,
		PageSize:  cfg.PageSize,
		Proximity: cfg.ProximityRows,
	}
	for _, st := range model.Statuses() {
		b.windows[st] = NewWindow(st, store, records, wc, engine.log)
	}
	return b
}

func (b *Board) Config() Config { return b.cfg }

func (b *Board) Store() *Store { return b.store }

func (b *Board) Engine() *Engine { return b.engine }

func (b *Board) Drag() *Drag { return b.drag }

func (b *Board) Failures() <-chan Failure { return b.engine.Failures() }

func (b *Board) Window(st model.Status) *Window {
	return b.windows[st.Normalize()]
}

// Columns is the full held board.
func (b *Board) Columns() []model.Column {
	return b.store.Columns()
}

// VisibleColumns is Columns cut down to each column's window.
func (b *Board) VisibleColumns() []model.Column {
	cols := b.store.Columns()
	out := make([]model.Column, len(cols))
	for i, c := range cols {
		out[i] = c
		if w := b.windows[c.Key]; w != nil {
			out[i].Tasks = w.Rows()
		}
	}
	return out
}

// Reload fetches the first page of every column and the totals, then
// replaces the board. Columns that fail to load are reported and left empty;
// if nothing loads the board is left as it was.
func (b *Board) Reload(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	records := b.engine.records
	var errs []error

	totals, err := records.CountByStatus(ctx, query)
	if err != nil {
		errs = append(errs, fmt.Errorf("count tasks: %w", err))
		totals = nil
	}

	var all []model.Task
	loaded := 0
	for _, st := range model.Statuses() {
		rows, err := records.ListTasksByStatus(ctx, Page{Status: st, Offset: 0, Limit: b.cfg.PageSize, Query: query})
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s: %w", st, err))
			continue
		}
		loaded++
		all = append(all, rows...)
	}
	if loaded == 0 && totals == nil {
		return errors.Join(errs...)
	}

	b.store.Load(all, totals, query)
	if len(errs) > 0 {
		err := errors.Join(errs...)
		b.engine.log.WithFields(log.Fields{"query": query}).WithError(err).Warn("board reload incomplete")
		return err
	}
	b.engine.log.WithFields(log.Fields{"query": query, "tasks": len(all)}).Debug("board reloaded")
	return nil
}

// OnView returns the task for a detail view, asking the record store for
// tasks not held on the board.
func (b *Board) OnView(ctx context.Context, id string) (model.Task, error) {
	if t, ok := b.store.Task(id); ok {
		return t, nil
	}
	t, err := b.engine.records.GetTask(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	t.Status = t.Status.Normalize()
	return t, nil
}

func (b *Board) OnEdit(ctx context.Context, t model.Task) error {
	return b.engine.UpdateTask(ctx, t)
}

func (b *Board) OnStatusChange(ctx context.Context, id string, st model.Status) error {
	return b.engine.SetStatus(ctx, id, st)
}

func (b *Board) OnDelete(ctx context.Context, id string) error {
	return b.engine.Delete(ctx, id)
}

func (b *Board) OnAddNote(ctx context.Context, id, content string) (notes.Record, error) {
	return b.engine.AddNote(ctx, id, content)
}

func (b *Board) OnEditNote(ctx context.Context, id string, ref notes.Ref, content string) error {
	return b.engine.EditNote(ctx, id, ref, content)
}

func (b *Board) OnDeleteNote(ctx context.Context, id string, ref notes.Ref) error {
	return b.engine.DeleteNote(ctx, id, ref)
}

// OnUpload uploads fs and attaches whatever uploaded to the task in one
// mutation. Per-file failures come back as a *files.BatchError.
func (b *Board) OnUpload(ctx context.Context, id string, fs []files.File) ([]model.Attachment, error) {
	host := b.engine.files
	if host == nil {
		return nil, errors.New("no file host configured")
	}
	if len(fs) == 0 {
		return nil, errors.New("no files to upload")
	}
	if err := b.engine.Authorize(ctx, perm.ActionAttach, id); err != nil {
		return nil, err
	}

	ups, batchErr := files.UploadAll(ctx, host, fs)
	if len(ups) == 0 {
		return nil, batchErr
	}
	now := b.engine.now().UTC()
	atts := make([]model.Attachment, 0, len(ups))
	for _, u := range ups {
		atts = append(atts, model.Attachment{
			FileID:     u.FileID,
			Name:       u.Name,
			URL:        u.URL,
			MimeType:   u.MimeType,
			SizeBytes:  u.SizeBytes,
			UploadedAt: now,
		})
	}

	if err := b.engine.AddAttachments(ctx, id, atts); err != nil {
		ids := make([]string, 0, len(ups))
		for _, u := range ups {
			ids = append(ids, u.FileID)
		}
		if cleanupErr := files.RemoveAll(ctx, host, ids); cleanupErr != nil {
			b.engine.log.WithFields(log.Fields{"task_id": id, "action": "attach"}).WithError(cleanupErr).Warn("orphaned uploads")
		}
		if batchErr != nil {
			return nil, errors.Join(err, batchErr)
		}
		return nil, err
	}
	return atts, batchErr
}

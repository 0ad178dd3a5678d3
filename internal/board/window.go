package board

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"caseboard/internal/model"
)

const (
	DefaultPageSize      = 20
	DefaultInitialWindow = 20
	DefaultWindowStep    = 20
	DefaultProximityRows = 20
)

type WindowConfig struct {
	Initial   int
	Step      int
	PageSize  int
	Proximity int
}

func (c WindowConfig) withDefaults() WindowConfig {
	if c.Initial <= 0 {
		c.Initial = DefaultInitialWindow
	}
	if c.Step <= 0 {
		c.Step = DefaultWindowStep
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Proximity < 0 {
		c.Proximity = 0
	} else if c.Proximity == 0 {
		c.Proximity = DefaultProximityRows
	}
	return c
}

// GrowResult says what one Grow call did.
type GrowResult struct {
	Revealed  int
	Fetched   int
	Added     int
	Exhausted bool
	// Busy is set when another fetch for the column was still outstanding.
	Busy bool
	// Stale is set when the column was reloaded while the fetch ran; its
	// rows were dropped.
	Stale bool
}

// Window bounds how many of a column's held tasks are shown and fetches the
// next page once everything held is shown.
type Window struct {
	status  model.Status
	store   *Store
	records RecordStore
	cfg     WindowConfig
	log     log.FieldLogger

	mu        sync.Mutex
	visible   int
	exhausted bool
	loading   bool
	epoch     int
}

func NewWindow(status model.Status, store *Store, records RecordStore, cfg WindowConfig, logger log.FieldLogger) *Window {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Window{
		status:  status.Normalize(),
		store:   store,
		records: records,
		cfg:     cfg,
		log:     logger,
		visible: cfg.Initial,
		epoch:   store.Epoch(status),
	}
}

func (w *Window) Status() model.Status { return w.status }

// syncLocked resets the window when the column was replaced since the last
// look. Callers hold mu.
func (w *Window) syncLocked() {
	if e := w.store.Epoch(w.status); e != w.epoch {
		w.epoch = e
		w.visible = w.cfg.Initial
		w.exhausted = false
	}
}

// Visible is the number of rows to mount.
func (w *Window) Visible() int {
	w.mu.Lock()
	w.syncLocked()
	v := w.visible
	w.mu.Unlock()
	if held := w.store.Held(w.status); v > held {
		return held
	}
	return v
}

// Rows returns the mounted slice of the column.
func (w *Window) Rows() []model.Task {
	n := w.Visible()
	tasks := w.store.Column(w.status).Tasks
	if n > len(tasks) {
		n = len(tasks)
	}
	return tasks[:n]
}

// HasMore reports whether Grow could still show more rows.
func (w *Window) HasMore() bool {
	w.mu.Lock()
	w.syncLocked()
	visible, exhausted := w.visible, w.exhausted
	w.mu.Unlock()
	held := w.store.Held(w.status)
	return visible < held || (held < w.store.Total(w.status) && !exhausted)
}

// Near reports whether a viewport with remaining unseen mounted rows below it
// is close enough to the end to grow.
func (w *Window) Near(remaining int) bool {
	return remaining <= w.cfg.Proximity && w.HasMore()
}

func (w *Window) Loading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loading
}

func (w *Window) Exhausted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.syncLocked()
	return w.exhausted
}

// Reset returns the window to its initial size.
func (w *Window) Reset() {
	w.mu.Lock()
	w.visible = w.cfg.Initial
	w.exhausted = false
	w.epoch = w.store.Epoch(w.status)
	w.mu.Unlock()
}

func (w *Window) revealLocked() int {
	held := w.store.Held(w.status)
	if w.visible >= held {
		return 0
	}
	n := held - w.visible
	if n > w.cfg.Step {
		n = w.cfg.Step
	}
	w.visible += n
	return n
}

// Grow shows more rows: first ones already held, then a fetched page.
func (w *Window) Grow(ctx context.Context) (GrowResult, error) {
	w.mu.Lock()
	if w.loading {
		w.mu.Unlock()
		return GrowResult{Busy: true}, nil
	}
	w.syncLocked()
	if n := w.revealLocked(); n > 0 {
		w.mu.Unlock()
		return GrowResult{Revealed: n}, nil
	}
	held := w.store.Held(w.status)
	if w.exhausted || held >= w.store.Total(w.status) {
		ex := w.exhausted
		w.mu.Unlock()
		return GrowResult{Exhausted: ex}, nil
	}
	// Never reveal past what is held; a window that ran ahead of a shrinking
	// column starts counting from the held rows again.
	w.visible = held
	w.loading = true
	epoch := w.epoch
	page := Page{Status: w.status, Offset: held, Limit: w.cfg.PageSize, Query: w.store.Query()}
	w.mu.Unlock()

	rows, err := w.records.ListTasksByStatus(ctx, page)

	w.mu.Lock()
	w.loading = false
	if err != nil {
		w.mu.Unlock()
		w.log.WithFields(log.Fields{"status": string(w.status), "offset": page.Offset}).WithError(err).Warn("load more failed")
		return GrowResult{}, err
	}
	if w.store.Epoch(w.status) != epoch {
		w.mu.Unlock()
		return GrowResult{Fetched: len(rows), Stale: true}, nil
	}
	w.mu.Unlock()

	added := w.store.Merge(w.status, rows)

	w.mu.Lock()
	defer w.mu.Unlock()
	if added == 0 {
		w.exhausted = true
		w.log.WithFields(log.Fields{"status": string(w.status), "offset": page.Offset, "rows": len(rows)}).Debug("column exhausted")
	}
	return GrowResult{
		Revealed:  w.revealLocked(),
		Fetched:   len(rows),
		Added:     added,
		Exhausted: w.exhausted,
	}, nil
}

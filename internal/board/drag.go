package board

import (
	"context"
	"sync"

	"caseboard/internal/model"
)

const DefaultActivationDistance = 3

type DragState int

const (
	DragIdle DragState = iota
	DragPending
	DragDragging
)

func (s DragState) String() string {
	switch s {
	case DragPending:
		return "pending"
	case DragDragging:
		return "dragging"
	default:
		return "idle"
	}
}

// Target is what the pointer is over: a column, or a task row inside one.
// Zero means nothing droppable.
type Target struct {
	Column model.Status
	TaskID string
}

// DragSession exists between drag-start and drag-end. Overlay is a copy of
// the task taken at drag-start for rendering under the pointer only.
type DragSession struct {
	TaskID  string
	Overlay model.Task
	From    model.Status
	Over    model.Status
	X, Y    int
}

// Commit is a drop that changed the task's column. Run persists it.
type Commit struct {
	TaskID string
	From   model.Status
	To     model.Status

	base   Snapshot
	engine *Engine
}

func (c *Commit) Run(ctx context.Context) error {
	return c.engine.CommitStatus(ctx, c.TaskID, c.To, c.base)
}

// Drop is the outcome of releasing the pointer. At most one field is set.
type Drop struct {
	// Click is the task id when the gesture never became a drag.
	Click  string
	Commit *Commit
}

// Drag turns press/move/release pointer events into drag sessions.
type Drag struct {
	engine     *Engine
	activation int

	mu      sync.Mutex
	state   DragState
	pressID string
	ox, oy  int
	session *DragSession
	base    Snapshot
}

func NewDrag(engine *Engine, activation int) *Drag {
	if activation <= 0 {
		activation = DefaultActivationDistance
	}
	return &Drag{engine: engine, activation: activation}
}

func (d *Drag) State() DragState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Session returns a copy of the active session, or nil.
func (d *Drag) Session() *DragSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	s := *d.session
	s.Overlay = s.Overlay.Clone()
	return &s
}

// Press starts watching a possible drag of taskID from (x, y).
func (d *Drag) Press(taskID string, x, y int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DragDragging {
		return
	}
	if taskID == "" {
		d.resetLocked()
		return
	}
	d.state = DragPending
	d.pressID = taskID
	d.ox, d.oy = x, y
}

func chebyshev(ax, ay, bx, by int) int {
	dx, dy := ax-bx, ay-by
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// Move reports pointer motion. It may start a drag and may preview the task
// in the column under the pointer. The error is the preview's, if any.
func (d *Drag) Move(x, y int, hit Target) error {
	d.mu.Lock()
	switch d.state {
	case DragIdle:
		d.mu.Unlock()
		return nil
	case DragPending:
		if chebyshev(x, y, d.ox, d.oy) <= d.activation {
			d.mu.Unlock()
			return nil
		}
		t, ok := d.engine.store.Task(d.pressID)
		if !ok {
			d.resetLocked()
			d.mu.Unlock()
			return NotFoundError{Kind: "task", ID: d.pressID}
		}
		d.state = DragDragging
		d.base = d.engine.store.Snapshot(t.ID)
		d.session = &DragSession{TaskID: t.ID, Overlay: t.Clone(), From: t.Status, Over: t.Status}
	}
	d.session.X, d.session.Y = x, y
	id := d.session.TaskID
	d.mu.Unlock()

	col, ok := d.resolve(hit)
	if !ok {
		return nil
	}
	cur, held := d.engine.store.Task(id)
	if !held || cur.Status == col {
		return nil
	}
	if err := d.engine.Preview(id, col); err != nil {
		return err
	}
	d.mu.Lock()
	if d.session != nil && d.session.TaskID == id {
		d.session.Over = col
	}
	d.mu.Unlock()
	return nil
}

// resolve maps a target to a column. A row resolves to the column its task
// is in right now.
func (d *Drag) resolve(hit Target) (model.Status, bool) {
	if hit.TaskID != "" {
		if t, ok := d.engine.store.Task(hit.TaskID); ok {
			return t.Status, true
		}
	}
	if hit.Column.Valid() {
		return hit.Column, true
	}
	return "", false
}

// Release ends the gesture.
func (d *Drag) Release(hit Target) Drop {
	d.mu.Lock()
	switch d.state {
	case DragIdle:
		d.mu.Unlock()
		return Drop{}
	case DragPending:
		id := d.pressID
		d.resetLocked()
		d.mu.Unlock()
		return Drop{Click: id}
	}
	sess := *d.session
	base := d.base
	d.resetLocked()
	d.mu.Unlock()

	// The dragged row itself resolves to wherever the preview put it.
	if hit.TaskID == sess.TaskID {
		hit = Target{Column: sess.Over}
	}
	to, ok := d.resolve(hit)
	if !ok || to == sess.From {
		d.engine.Revert(base)
		return Drop{}
	}
	if cur, held := d.engine.store.Task(sess.TaskID); held && cur.Status != to {
		_ = d.engine.Preview(sess.TaskID, to)
	}
	return Drop{Commit: &Commit{TaskID: sess.TaskID, From: sess.From, To: to, base: base, engine: d.engine}}
}

// Cancel abandons any drag, undoing its preview.
func (d *Drag) Cancel() {
	d.mu.Lock()
	dragging := d.state == DragDragging
	base := d.base
	d.resetLocked()
	d.mu.Unlock()
	if dragging {
		d.engine.Revert(base)
	}
}

func (d *Drag) resetLocked() {
	d.state = DragIdle
	d.pressID = ""
	d.session = nil
	d.base = Snapshot{}
}

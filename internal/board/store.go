package board

import (
	"strings"
	"sync"

	"caseboard/internal/model"
)

type ChangeReason int

const (
	ChangeLoad ChangeReason = iota + 1
	ChangeMerge
	ChangeMutation
	ChangeRollback
)

func (r ChangeReason) String() string {
	switch r {
	case ChangeLoad:
		return "load"
	case ChangeMerge:
		return "merge"
	case ChangeMutation:
		return "mutation"
	case ChangeRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// Change describes one store update. TaskID is empty for whole-board changes.
type Change struct {
	Reason ChangeReason
	TaskID string
	Status model.Status
}

// Snapshot is the slice of store state needed to undo a change to one task.
type Snapshot struct {
	TaskID  string
	Task    model.Task
	Present bool
	Index   int
}

// Store owns the authoritative task list and per-column totals. All writes
// go through its methods; readers get copies.
type Store struct {
	mu      sync.RWMutex
	tasks   []model.Task
	index   map[string]int
	totals  map[model.Status]int
	epochs  map[model.Status]int
	query   string
	columns []model.Column

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

func NewStore() *Store {
	s := &Store{
		index:  map[string]int{},
		totals: map[model.Status]int{},
		epochs: map[model.Status]int{},
		subs:   map[int]func(Change){},
	}
	for _, st := range model.Statuses() {
		s.totals[st] = 0
	}
	s.columns = Columns(nil, s.totals)
	return s
}

// Subscribe registers fn for every change. Listeners run on the goroutine
// that made the change, after the store lock is released.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// rebuildLocked recomputes the index and the column view. Callers hold mu.
func (s *Store) rebuildLocked() {
	s.index = make(map[string]int, len(s.tasks))
	for i, t := range s.tasks {
		s.index[t.ID] = i
	}
	s.columns = Columns(s.tasks, s.totals)
}

// Load replaces the whole board. It is the entry point for initial loads,
// full reloads and filter changes, and starts a new epoch for every column.
func (s *Store) Load(tasks []model.Task, totals map[model.Status]int, query string) {
	s.mu.Lock()
	s.tasks = make([]model.Task, 0, len(tasks))
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		t = t.Clone()
		t.Status = t.Status.Normalize()
		s.tasks = append(s.tasks, t)
	}
	s.totals = make(map[model.Status]int, len(totals))
	for _, st := range model.Statuses() {
		s.totals[st] = 0
	}
	for st, n := range totals {
		s.totals[st.Normalize()] += n
	}
	for _, st := range model.Statuses() {
		s.epochs[st]++
	}
	s.query = strings.TrimSpace(query)
	s.liftTotalsLocked()
	s.rebuildLocked()
	s.mu.Unlock()

	s.emit(Change{Reason: ChangeLoad})
}

// Merge appends tasks not already on the board and reports how many were added.
func (s *Store) Merge(status model.Status, tasks []model.Task) int {
	s.mu.Lock()
	added := 0
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		if _, ok := s.index[t.ID]; ok {
			continue
		}
		t = t.Clone()
		t.Status = t.Status.Normalize()
		s.index[t.ID] = len(s.tasks)
		s.tasks = append(s.tasks, t)
		added++
	}
	if added > 0 {
		s.liftTotalsLocked()
		s.columns = Columns(s.tasks, s.totals)
	}
	s.mu.Unlock()

	if added > 0 {
		s.emit(Change{Reason: ChangeMerge, Status: status.Normalize()})
	}
	return added
}

// liftTotalsLocked raises each stored total to at least the held count, so
// every later move between columns can be undone exactly.
func (s *Store) liftTotalsLocked() {
	held := make(map[model.Status]int, len(s.totals))
	for _, t := range s.tasks {
		held[t.Status]++
	}
	for st, n := range held {
		if s.totals[st] < n {
			s.totals[st] = n
		}
	}
}

// moveTotalsLocked shifts one task's worth of total between columns. Totals
// never fall below the held count, so from is always positive here.
func (s *Store) moveTotalsLocked(from, to model.Status) {
	if from == to {
		return
	}
	s.totals[from]--
	s.totals[to]++
}

// Put updates a task in place (keeping its position) or appends it.
func (s *Store) Put(t model.Task) {
	s.put(t, ChangeMutation)
}

func (s *Store) put(t model.Task, reason ChangeReason) {
	t = t.Clone()
	t.Status = t.Status.Normalize()

	s.mu.Lock()
	if i, ok := s.index[t.ID]; ok {
		s.moveTotalsLocked(s.tasks[i].Status, t.Status)
		s.tasks[i] = t
	} else {
		s.tasks = append(s.tasks, t)
		s.totals[t.Status]++
	}
	s.rebuildLocked()
	s.mu.Unlock()

	s.emit(Change{Reason: reason, TaskID: t.ID, Status: t.Status})
}

// Remove drops a task and reports whether it was present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	st := s.tasks[i].Status
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	if s.totals[st] > 0 {
		s.totals[st]--
	}
	s.rebuildLocked()
	s.mu.Unlock()

	s.emit(Change{Reason: ChangeMutation, TaskID: id, Status: st})
	return true
}

// Snapshot captures what Restore needs to undo changes to one task.
func (s *Store) Snapshot(id string) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Snapshot{TaskID: id}
	}
	return Snapshot{TaskID: id, Task: s.tasks[i].Clone(), Present: true, Index: i}
}

// Restore puts one task back the way snap found it, adjusting totals by the
// difference only, so concurrent changes to other tasks survive.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	i, present := s.index[snap.TaskID]
	switch {
	case snap.Present && present:
		s.moveTotalsLocked(s.tasks[i].Status, snap.Task.Status)
		s.tasks[i] = snap.Task.Clone()
	case snap.Present && !present:
		at := snap.Index
		if at < 0 || at > len(s.tasks) {
			at = len(s.tasks)
		}
		s.tasks = append(s.tasks, model.Task{})
		copy(s.tasks[at+1:], s.tasks[at:])
		s.tasks[at] = snap.Task.Clone()
		s.totals[snap.Task.Status]++
	case !snap.Present && present:
		st := s.tasks[i].Status
		s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
		if s.totals[st] > 0 {
			s.totals[st]--
		}
	default:
		s.mu.Unlock()
		return
	}
	s.rebuildLocked()
	s.mu.Unlock()

	s.emit(Change{Reason: ChangeRollback, TaskID: snap.TaskID, Status: snap.Task.Status})
}

func (s *Store) Task(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return model.Task{}, false
	}
	return s.tasks[i].Clone(), true
}

func (s *Store) Tasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// Columns returns the current column view. The slice is rebuilt on every
// change and must be treated as read-only.
func (s *Store) Columns() []model.Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.columns
}

func (s *Store) Column(st model.Status) model.Column {
	st = st.Normalize()
	for _, c := range s.Columns() {
		if c.Key == st {
			return c
		}
	}
	return model.Column{Key: st, Label: st.Label()}
}

func (s *Store) Totals() map[model.Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.Status]int, len(s.totals))
	for k, v := range s.totals {
		out[k] = v
	}
	return out
}

// Held is the number of tasks loaded locally for a column.
func (s *Store) Held(st model.Status) int {
	return len(s.Column(st).Tasks)
}

// Total is the remote total for a column (never less than Held).
func (s *Store) Total(st model.Status) int {
	return s.Column(st).Total
}

// Epoch changes whenever a column's contents are replaced externally.
func (s *Store) Epoch(st model.Status) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epochs[st.Normalize()]
}

// Query is the filter the board was last loaded with.
func (s *Store) Query() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query
}

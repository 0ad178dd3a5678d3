package board

import (
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"caseboard/internal/model"
)

func TestPartition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		tasks []model.Task
		want  map[model.Status]int
	}{
		{
			name: "todo todo done",
			tasks: []model.Task{
				{ID: "a", Status: model.StatusTodo},
				{ID: "b", Status: model.StatusTodo},
				{ID: "c", Status: model.StatusDone},
			},
			want: map[model.Status]int{model.StatusTodo: 2, model.StatusPending: 0, model.StatusDone: 1},
		},
		{
			name:  "empty input keeps every key",
			tasks: nil,
			want:  map[model.Status]int{model.StatusTodo: 0, model.StatusPending: 0, model.StatusDone: 0},
		},
		{
			name: "unset and unknown go to todo",
			tasks: []model.Task{
				{ID: "a"},
				{ID: "b", Status: "archived"},
				{ID: "c", Status: model.StatusPending},
			},
			want: map[model.Status]int{model.StatusTodo: 2, model.StatusPending: 1, model.StatusDone: 0},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Partition(tt.tasks)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d buckets, want %d", len(got), len(tt.want))
			}
			for st, n := range tt.want {
				if len(got[st]) != n {
					t.Fatalf("%s: got %d want %d", st, len(got[st]), n)
				}
			}
		})
	}
}

func TestPartition_GeneratedKeepsEveryTaskOnce(t *testing.T) {
	t.Parallel()

	statuses := []model.Status{"", model.StatusTodo, model.StatusPending, model.StatusDone, "archived"}
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		n := rng.Intn(40)
		tasks := make([]model.Task, n)
		want := make([]string, n)
		for i := range tasks {
			tasks[i] = model.Task{ID: fmt.Sprintf("r%d-%d", round, i), Status: statuses[rng.Intn(len(statuses))]}
			want[i] = tasks[i].ID
		}

		var got []string
		for st, bucket := range Partition(tasks) {
			for _, task := range bucket {
				if task.Status.Normalize() != st {
					t.Fatalf("round %d: %s with status %q landed in %s", round, task.ID, task.Status, st)
				}
				got = append(got, task.ID)
			}
		}
		sort.Strings(got)
		sort.Strings(want)
		if len(got) != len(want) || (n > 0 && !reflect.DeepEqual(got, want)) {
			t.Fatalf("round %d: ids got %v want %v", round, got, want)
		}
	}
}

func TestPartition_PreservesOrder(t *testing.T) {
	t.Parallel()

	got := Partition([]model.Task{{ID: "3"}, {ID: "1", Status: model.StatusDone}, {ID: "2"}})
	todo := got[model.StatusTodo]
	if len(todo) != 2 || todo[0].ID != "3" || todo[1].ID != "2" {
		t.Fatalf("unexpected order: %+v", todo)
	}
}

func TestColumns_TotalNeverBelowHeld(t *testing.T) {
	t.Parallel()

	cols := Columns(makeTasks("t", model.StatusTodo, 3), map[model.Status]int{model.StatusTodo: 1, model.StatusDone: 9})
	if len(cols) != 3 || cols[0].Key != model.StatusTodo || cols[2].Key != model.StatusDone {
		t.Fatalf("unexpected columns: %+v", cols)
	}
	if cols[0].Total != 3 {
		t.Fatalf("todo total: got %d want 3", cols[0].Total)
	}
	if cols[2].Total != 9 || len(cols[2].Tasks) != 0 {
		t.Fatalf("done: got total=%d held=%d", cols[2].Total, len(cols[2].Tasks))
	}
	if cols[1].Label != "Pending" {
		t.Fatalf("label: got %q", cols[1].Label)
	}
}

func TestStore_LoadDedupesAndBumpsEpochs(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var changes []Change
	cancel := s.Subscribe(func(c Change) { changes = append(changes, c) })
	defer cancel()

	before := s.Epoch(model.StatusDone)
	s.Load([]model.Task{{ID: "a"}, {ID: "a", Status: model.StatusDone}, {ID: "b", Status: "weird"}}, map[model.Status]int{model.StatusTodo: 10}, " q ")

	if got := len(s.Tasks()); got != 2 {
		t.Fatalf("tasks: got %d want 2", got)
	}
	if s.Held(model.StatusTodo) != 2 || s.Total(model.StatusTodo) != 10 {
		t.Fatalf("todo held=%d total=%d", s.Held(model.StatusTodo), s.Total(model.StatusTodo))
	}
	if s.Epoch(model.StatusDone) != before+1 {
		t.Fatalf("expected done epoch bumped")
	}
	if s.Query() != "q" {
		t.Fatalf("query: got %q", s.Query())
	}
	if len(changes) != 1 || changes[0].Reason != ChangeLoad {
		t.Fatalf("unexpected changes: %+v", changes)
	}
}

func TestStore_RestoreRoundTripsWithUnknownTotals(t *testing.T) {
	t.Parallel()

	// A reload that could not count still holds tasks; moving one out and
	// back must leave the totals as they were.
	s := NewStore()
	s.Load([]model.Task{{ID: "a", Status: model.StatusTodo}, {ID: "b", Status: model.StatusTodo}}, nil, "")
	beforeTotals := s.Totals()
	if beforeTotals[model.StatusTodo] != 2 {
		t.Fatalf("todo total: got %d want 2", beforeTotals[model.StatusTodo])
	}

	snap := s.Snapshot("a")
	moved, _ := s.Task("a")
	moved.Status = model.StatusDone
	s.Put(moved)
	if got := s.Totals(); got[model.StatusTodo] != 1 || got[model.StatusDone] != 1 {
		t.Fatalf("totals after move: %+v", got)
	}
	s.Restore(snap)
	if got := s.Totals(); !reflect.DeepEqual(got, beforeTotals) {
		t.Fatalf("totals: got %+v want %+v", got, beforeTotals)
	}
}

func TestStore_MergeLiftsTotalToHeld(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Load(nil, map[model.Status]int{model.StatusTodo: 1}, "")
	s.Merge(model.StatusTodo, makeTasks("t", model.StatusTodo, 3))
	if got := s.Totals()[model.StatusTodo]; got != 3 {
		t.Fatalf("todo total: got %d want 3", got)
	}
}

func TestStore_MergeSkipsHeld(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Load(makeTasks("t", model.StatusTodo, 2), nil, "")
	added := s.Merge(model.StatusTodo, append(makeTasks("t", model.StatusTodo, 3), model.Task{}))
	if added != 1 {
		t.Fatalf("added: got %d want 1", added)
	}
	if s.Held(model.StatusTodo) != 3 {
		t.Fatalf("held: got %d", s.Held(model.StatusTodo))
	}
}

func TestStore_RestoreUndoesPutAndRemove(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Load(makeTasks("t", model.StatusTodo, 3), map[model.Status]int{model.StatusTodo: 7, model.StatusDone: 2}, "")
	beforeTasks := s.Tasks()
	beforeTotals := s.Totals()

	snap := s.Snapshot("t-01")
	moved, _ := s.Task("t-01")
	moved.Status = model.StatusDone
	s.Put(moved)
	if s.Total(model.StatusDone) != 3 || s.Total(model.StatusTodo) != 6 {
		t.Fatalf("totals after move: %+v", s.Totals())
	}
	s.Restore(snap)
	if !reflect.DeepEqual(s.Tasks(), beforeTasks) || !reflect.DeepEqual(s.Totals(), beforeTotals) {
		t.Fatalf("restore after put did not round trip")
	}

	snap = s.Snapshot("t-01")
	if !s.Remove("t-01") {
		t.Fatalf("expected remove")
	}
	if _, ok := s.Task("t-01"); ok {
		t.Fatalf("expected task gone")
	}
	s.Restore(snap)
	if !reflect.DeepEqual(s.Tasks(), beforeTasks) || !reflect.DeepEqual(s.Totals(), beforeTotals) {
		t.Fatalf("restore after remove did not round trip: %+v", s.Tasks())
	}
}

func TestStore_RestoreAbsentSnapshotRemoves(t *testing.T) {
	t.Parallel()

	s := NewStore()
	snap := s.Snapshot("new")
	s.Put(model.Task{ID: "new"})
	if s.Held(model.StatusTodo) != 1 {
		t.Fatalf("expected put to add")
	}
	s.Restore(snap)
	if s.Held(model.StatusTodo) != 0 || s.Total(model.StatusTodo) != 0 {
		t.Fatalf("expected task removed, totals=%+v", s.Totals())
	}
}

package board

import "caseboard/internal/model"

// Partition buckets tasks by status, preserving input order within each
// bucket. Every status has an entry; tasks with an empty or unknown status go
// to model.DefaultStatus.
func Partition(tasks []model.Task) map[model.Status][]model.Task {
	out := make(map[model.Status][]model.Task, 3)
	for _, st := range model.Statuses() {
		out[st] = []model.Task{}
	}
	for _, t := range tasks {
		st := t.Status.Normalize()
		out[st] = append(out[st], t)
	}
	return out
}

// Columns builds the ordered column view. A column's Total is the remote
// total, but never less than what is held locally.
func Columns(tasks []model.Task, totals map[model.Status]int) []model.Column {
	buckets := Partition(tasks)
	cols := make([]model.Column, 0, len(buckets))
	for _, st := range model.Statuses() {
		held := buckets[st]
		total := totals[st]
		if total < len(held) {
			total = len(held)
		}
		cols = append(cols, model.Column{
			Key:   st,
			Label: st.Label(),
			Tasks: held,
			Total: total,
		})
	}
	return cols
}

package tui

import (
	"time"

	"caseboard/internal/board"
	"caseboard/internal/model"
)

const flashTTL = 4 * time.Second

type mode int

const (
	modeBoard mode = iota
	modeDetail
)

type prompt int

const (
	promptNone prompt = iota
	promptSearch
	promptAddNote
	promptEditNote
	promptConfirmDelete
	promptConfirmDeleteNote
)

// boardChangedMsg means the store changed; the view is rebuilt from it.
type boardChangedMsg struct{}

// remoteChangedMsg means another client changed a task on the server.
type remoteChangedMsg struct{}

type failureMsg board.Failure

type flashClearMsg struct{ seq int }

type reloadedMsg struct {
	query string
	err   error
}

type grownMsg struct {
	status model.Status
	res    board.GrowResult
	err    error
}

type mutationDoneMsg struct {
	action string
	taskID string
	ok     string
	err    error
}

type detailLoadedMsg struct {
	task model.Task
	err  error
}

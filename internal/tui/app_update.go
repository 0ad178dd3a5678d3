package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"caseboard/internal/board"
	"caseboard/internal/model"
	"caseboard/internal/perm"
)

func (m *appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = modalBodyWidth(m.width) - 2
		m.syncSelection()
		return m, m.growCmds()

	case boardChangedMsg:
		m.syncSelection()
		if m.mode == modeDetail {
			if t, ok := m.board.Store().Task(m.detail.ID); ok {
				m.detail = t
				m.clampNote()
			}
		}
		return m, tea.Batch(m.waitChange(), m.growCmds())

	case remoteChangedMsg:
		// Reloading under a drag would yank the card out from under the pointer.
		if m.board.Drag().State() != board.DragIdle || m.reloading {
			m.remoteChanged = true
			return m, nil
		}
		m.reloading = true
		return m, m.reloadCmd(m.query)

	case reloadedMsg:
		m.reloading = false
		for _, st := range m.statuses {
			m.growing[st] = false
		}
		if msg.query != m.query {
			return m, nil
		}
		m.syncSelection()
		cmds := []tea.Cmd{m.growCmds()}
		if msg.err != nil {
			cmds = append(cmds, m.setFlash("reload: "+oneLine(msg.err.Error()), true))
		}
		if m.remoteChanged {
			m.remoteChanged = false
			m.reloading = true
			cmds = append(cmds, m.reloadCmd(m.query))
		}
		return m, tea.Batch(cmds...)

	case grownMsg:
		m.growing[msg.status] = false
		if msg.err != nil {
			return m, m.setFlash(fmt.Sprintf("load more %s: %s", msg.status.Label(), oneLine(msg.err.Error())), true)
		}
		m.syncSelection()
		if msg.res.Revealed > 0 || msg.res.Added > 0 || msg.res.Stale {
			return m, m.growCmds()
		}
		return m, nil

	case mutationDoneMsg:
		if msg.err != nil {
			var me *board.MutationError
			if errors.As(msg.err, &me) {
				// Already reported on the failure channel.
				return m, nil
			}
			return m, m.setFlash(oneLine(msg.err.Error()), true)
		}
		if msg.ok != "" {
			return m, m.setFlash(msg.ok, false)
		}
		return m, nil

	case failureMsg:
		return m, tea.Batch(m.waitFailure(), m.setFlash(describeFailure(board.Failure(msg)), true))

	case detailLoadedMsg:
		if msg.err != nil {
			return m, m.setFlash(oneLine(msg.err.Error()), true)
		}
		m.mode = modeDetail
		m.detail = msg.task
		m.detailNote = 0
		return m, nil

	case flashClearMsg:
		if msg.seq == m.flashSeq {
			m.flash = ""
			m.flashErr = false
		}
		return m, nil

	case tea.MouseMsg:
		if m.prompt != promptNone || m.mode != modeBoard {
			return m, nil
		}
		return m, m.updateMouse(msg)

	case tea.KeyMsg:
		if m.prompt != promptNone {
			return m, m.updatePrompt(msg)
		}
		if m.mode == modeDetail {
			return m, m.updateDetailKey(msg)
		}
		return m, m.updateBoardKey(msg)
	}
	return m, nil
}

func (m *appModel) updateMouse(msg tea.MouseMsg) tea.Cmd {
	drag := m.board.Drag()
	hit := m.hit(msg.X, msg.Y)

	switch msg.Button {
	case tea.MouseButtonWheelUp, tea.MouseButtonWheelDown:
		if msg.Action != tea.MouseActionPress {
			return nil
		}
		col, ok := m.geo().column(msg.X)
		if !ok {
			return nil
		}
		delta := 1
		if msg.Button == tea.MouseButtonWheelUp {
			delta = -1
		}
		m.scrollBy(col, delta)
		return m.growCmds()
	}

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return nil
		}
		if hit.TaskID != "" {
			m.selID = hit.TaskID
			m.syncSelection()
		}
		drag.Press(hit.TaskID, msg.X, msg.Y)
		return nil

	case tea.MouseActionMotion:
		if err := drag.Move(msg.X, msg.Y, hit); err != nil {
			return m.setFlash(dragError(err), true)
		}
		return nil

	case tea.MouseActionRelease:
		drop := drag.Release(hit)
		var cmds []tea.Cmd
		switch {
		case drop.Click != "":
			m.selID = drop.Click
			m.syncSelection()
			cmds = append(cmds, m.loadDetail(drop.Click))
		case drop.Commit != nil:
			c := drop.Commit
			cmds = append(cmds, m.mutate("status", c.TaskID, "Moved to "+c.To.Label(), c.Run))
		}
		if m.remoteChanged && !m.reloading {
			m.remoteChanged = false
			m.reloading = true
			cmds = append(cmds, m.reloadCmd(m.query))
		}
		return tea.Batch(cmds...)
	}
	return nil
}

func dragError(err error) string {
	var fe *perm.ForbiddenError
	if errors.As(err, &fe) {
		return "Not allowed to move this task"
	}
	return oneLine(err.Error())
}

func (m *appModel) updateBoardKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q":
		m.board.Drag().Cancel()
		return tea.Quit
	case "esc":
		if m.board.Drag().State() != board.DragIdle {
			m.board.Drag().Cancel()
			return nil
		}
		if m.query != "" {
			m.query = ""
			m.reloading = true
			return m.reloadCmd("")
		}
		return nil
	case "left", "h":
		m.selectRow(m.col-1, m.row)
	case "right", "l":
		m.selectRow(m.col+1, m.row)
	case "up", "k":
		m.selectRow(m.col, m.row-1)
	case "down", "j":
		m.selectRow(m.col, m.row+1)
	case "g", "home":
		m.selectRow(m.col, 0)
	case "G", "end":
		m.selectRow(m.col, len(m.rows(m.col))-1)
	case "pgdown", "ctrl+d":
		m.selectRow(m.col, m.row+m.geo().perColumn())
	case "pgup", "ctrl+u":
		m.selectRow(m.col, m.row-m.geo().perColumn())
	case "H", "shift+left":
		return m.moveSelected(-1)
	case "L", "shift+right":
		return m.moveSelected(1)
	case "1", "2", "3":
		i := int(msg.String()[0] - '1')
		return m.setStatus(m.selID, m.statuses[i])
	case "enter":
		if m.selID == "" {
			return nil
		}
		return m.loadDetail(m.selID)
	case "d", "delete":
		if m.selID != "" {
			m.prompt = promptConfirmDelete
		}
		return nil
	case "a":
		if m.selID != "" {
			return m.openInput(promptAddNote, "")
		}
		return nil
	case "/":
		return m.openInput(promptSearch, m.query)
	case "r":
		m.reloading = true
		return m.reloadCmd(m.query)
	case "y":
		return m.copyID(m.selID)
	default:
		return nil
	}
	return m.growCmds()
}

func (m *appModel) moveSelected(delta int) tea.Cmd {
	if _, ok := m.selected(); !ok {
		return nil
	}
	i := m.col + delta
	if i < 0 || i >= len(m.statuses) {
		return nil
	}
	return m.setStatus(m.selID, m.statuses[i])
}

func (m *appModel) setStatus(id string, st model.Status) tea.Cmd {
	if id == "" {
		return nil
	}
	if t, ok := m.board.Store().Task(id); ok && t.Status == st {
		return nil
	}
	b := m.board
	return m.mutate("status", id, "Moved to "+st.Label(), func(ctx context.Context) error {
		return b.OnStatusChange(ctx, id, st)
	})
}

func (m *appModel) copyID(id string) tea.Cmd {
	if id == "" {
		return nil
	}
	if err := copyToClipboard(id); err != nil {
		m.log.WithError(err).Debug("clipboard unavailable")
		return m.setFlash("Clipboard unavailable: "+oneLine(err.Error()), true)
	}
	return m.setFlash("Copied "+id, false)
}

func (m *appModel) openInput(p prompt, value string) tea.Cmd {
	m.prompt = p
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Width = modalBodyWidth(m.width) - 2
	return m.input.Focus()
}

func (m *appModel) closePrompt() {
	m.prompt = promptNone
	m.input.Blur()
	m.input.SetValue("")
}

func (m *appModel) updatePrompt(msg tea.KeyMsg) tea.Cmd {
	switch m.prompt {
	case promptConfirmDelete, promptConfirmDeleteNote:
		switch msg.String() {
		case "y", "Y", "enter":
			p := m.prompt
			m.closePrompt()
			if p == promptConfirmDelete {
				return m.deleteTask()
			}
			return m.deleteNote()
		case "n", "N", "esc", "ctrl+g", "q":
			m.closePrompt()
		}
		return nil
	}

	switch msg.String() {
	case "esc", "ctrl+g":
		m.closePrompt()
		return nil
	case "enter":
		p, value := m.prompt, m.input.Value()
		m.closePrompt()
		return m.submitInput(p, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *appModel) submitInput(p prompt, value string) tea.Cmd {
	b := m.board
	switch p {
	case promptSearch:
		m.query = strings.TrimSpace(value)
		for _, st := range m.statuses {
			m.scroll[st] = 0
		}
		m.reloading = true
		return m.reloadCmd(m.query)
	case promptAddNote:
		id := m.selID
		if m.mode == modeDetail {
			id = m.detail.ID
			m.detailNote = 0
		}
		if strings.TrimSpace(value) == "" || id == "" {
			return nil
		}
		return m.mutate("notes", id, "Note added", func(ctx context.Context) error {
			_, err := b.OnAddNote(ctx, id, value)
			return err
		})
	case promptEditNote:
		entry, ok := m.currentNote()
		if !ok || strings.TrimSpace(value) == "" {
			return nil
		}
		id, ref := m.detail.ID, entry.Ref()
		return m.mutate("notes", id, "Note updated", func(ctx context.Context) error {
			return b.OnEditNote(ctx, id, ref, value)
		})
	}
	return nil
}

func (m *appModel) deleteTask() tea.Cmd {
	id := m.selID
	if m.mode == modeDetail {
		id = m.detail.ID
		m.mode = modeBoard
	}
	if id == "" {
		return nil
	}
	b := m.board
	m.log.WithFields(log.Fields{"task_id": id}).Debug("delete requested")
	return m.mutate("delete", id, "Deleted "+id, func(ctx context.Context) error {
		return b.OnDelete(ctx, id)
	})
}

func (m *appModel) deleteNote() tea.Cmd {
	entry, ok := m.currentNote()
	if !ok {
		return nil
	}
	b := m.board
	id, ref := m.detail.ID, entry.Ref()
	return m.mutate("notes", id, "Note deleted", func(ctx context.Context) error {
		return b.OnDeleteNote(ctx, id, ref)
	})
}

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"caseboard/internal/board"
	"caseboard/internal/model"
)

type appModel struct {
	ctx      context.Context
	board    *board.Board
	log      log.FieldLogger
	statuses []model.Status

	changes     chan struct{}
	unsubscribe func()

	width, height int

	// Selection is tracked by task id; col and row follow it around.
	col    int
	row    int
	selID  string
	scroll map[model.Status]int
	// growing marks columns with a Grow call in flight from this view.
	growing map[model.Status]bool

	mode       mode
	detail     model.Task
	detailNote int

	prompt prompt
	input  textinput.Model
	query  string

	flash    string
	flashErr bool
	flashSeq int

	reloading     bool
	remoteChanged bool
}

func newAppModel(ctx context.Context, b *board.Board, logger log.FieldLogger) *appModel {
	if logger == nil {
		logger = log.StandardLogger()
	}
	in := textinput.New()
	in.Prompt = ""
	in.CharLimit = 4000

	m := &appModel{
		ctx:      ctx,
		board:    b,
		log:      logger,
		statuses: model.Statuses(),
		changes:  make(chan struct{}, 1),
		scroll:   map[model.Status]int{},
		growing:  map[model.Status]bool{},
		input:    in,
		width:    80,
		height:   24,
	}
	m.unsubscribe = b.Store().Subscribe(func(board.Change) {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	})
	return m
}

func (m *appModel) Init() tea.Cmd {
	m.reloading = true
	return tea.Batch(m.reloadCmd(m.query), m.waitChange(), m.waitFailure())
}

func (m *appModel) close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m *appModel) geo() geometry {
	return layout(m.width, m.height, len(m.statuses))
}

func (m *appModel) waitChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return boardChangedMsg{}
	}
}

func (m *appModel) waitFailure() tea.Cmd {
	ch := m.board.Failures()
	return func() tea.Msg {
		f, ok := <-ch
		if !ok {
			return nil
		}
		return failureMsg(f)
	}
}

func (m *appModel) reloadCmd(query string) tea.Cmd {
	ctx, b := m.ctx, m.board
	return func() tea.Msg {
		return reloadedMsg{query: query, err: b.Reload(ctx, query)}
	}
}

func (m *appModel) growCmd(st model.Status) tea.Cmd {
	m.growing[st] = true
	ctx, w := m.ctx, m.board.Window(st)
	return func() tea.Msg {
		res, err := w.Grow(ctx)
		return grownMsg{status: st, res: res, err: err}
	}
}

// growCmds asks every column that scrolled near the end of its window for
// more rows.
func (m *appModel) growCmds() tea.Cmd {
	per := m.geo().perColumn()
	var cmds []tea.Cmd
	for _, st := range m.statuses {
		if m.growing[st] {
			continue
		}
		w := m.board.Window(st)
		if w.Loading() {
			continue
		}
		remaining := len(w.Rows()) - (m.scroll[st] + per)
		if remaining < 0 {
			remaining = 0
		}
		if w.Near(remaining) {
			cmds = append(cmds, m.growCmd(st))
		}
	}
	return tea.Batch(cmds...)
}

// mutate runs fn off the update loop. The store change it makes redraws the
// board on its own; the message only carries the outcome.
func (m *appModel) mutate(action, id, ok string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return mutationDoneMsg{action: action, taskID: id, ok: ok, err: fn(ctx)}
	}
}

func (m *appModel) loadDetail(id string) tea.Cmd {
	ctx, b := m.ctx, m.board
	return func() tea.Msg {
		t, err := b.OnView(ctx, id)
		return detailLoadedMsg{task: t, err: err}
	}
}

func (m *appModel) setFlash(text string, isErr bool) tea.Cmd {
	m.flashSeq++
	m.flash = text
	m.flashErr = isErr
	seq := m.flashSeq
	return tea.Tick(flashTTL, func(time.Time) tea.Msg { return flashClearMsg{seq: seq} })
}

func (m *appModel) rows(col int) []model.Task {
	if col < 0 || col >= len(m.statuses) {
		return nil
	}
	return m.board.Window(m.statuses[col]).Rows()
}

func (m *appModel) selected() (model.Task, bool) {
	if m.selID == "" {
		return model.Task{}, false
	}
	return m.board.Store().Task(m.selID)
}

// syncSelection re-finds the selected task after the board changed. A task
// that moved columns keeps the selection; one that vanished hands it to its
// neighbour.
func (m *appModel) syncSelection() {
	if m.selID != "" {
		for i := range m.statuses {
			for j, t := range m.rows(i) {
				if t.ID == m.selID {
					m.col, m.row = i, j
					m.keepVisible()
					return
				}
			}
		}
	}
	m.selectRow(m.col, m.row)
}

func (m *appModel) selectRow(col, row int) {
	if col < 0 {
		col = 0
	}
	if col >= len(m.statuses) {
		col = len(m.statuses) - 1
	}
	rows := m.rows(col)
	if row >= len(rows) {
		row = len(rows) - 1
	}
	if row < 0 {
		row = 0
	}
	m.col, m.row = col, row
	m.selID = ""
	if row < len(rows) {
		m.selID = rows[row].ID
	}
	m.keepVisible()
}

func (m *appModel) keepVisible() {
	st := m.statuses[m.col]
	per := m.geo().perColumn()
	off := m.scroll[st]
	if m.row < off {
		off = m.row
	}
	if m.row >= off+per {
		off = m.row - per + 1
	}
	m.scroll[st] = off
	m.clampScroll(st)
}

func (m *appModel) clampScroll(st model.Status) {
	per := m.geo().perColumn()
	n := len(m.board.Window(st).Rows())
	limit := n - per
	if limit < 0 {
		limit = 0
	}
	if m.scroll[st] > limit {
		m.scroll[st] = limit
	}
	if m.scroll[st] < 0 {
		m.scroll[st] = 0
	}
}

func (m *appModel) scrollBy(col, delta int) {
	if col < 0 || col >= len(m.statuses) {
		return
	}
	st := m.statuses[col]
	m.scroll[st] += delta
	m.clampScroll(st)
}

// hit maps a screen cell to what is drawn there.
func (m *appModel) hit(x, y int) board.Target {
	g := m.geo()
	col, ok := g.column(x)
	if !ok {
		return board.Target{}
	}
	slot, ok := g.row(y)
	if !ok {
		return board.Target{}
	}
	st := m.statuses[col]
	if slot < 0 {
		return board.Target{Column: st}
	}
	rows := m.rows(col)
	if i := m.scroll[st] + slot; i < len(rows) && (y-g.bodyTop)%cardRows < cardRows-1 {
		return board.Target{Column: st, TaskID: rows[i].ID}
	}
	return board.Target{Column: st}
}

func describeFailure(f board.Failure) string {
	var me *board.MutationError
	if errors.As(f.Err, &me) && me.Message != "" {
		return fmt.Sprintf("%s failed: %s", f.Action, me.Message)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s failed: %v", f.Action, f.Err)
	}
	return f.Action + " failed"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"caseboard/internal/board"
	"caseboard/internal/model"
)

func (m *appModel) View() string {
	var out string
	if m.mode == modeDetail {
		out = m.renderDetail()
	} else {
		out = m.renderBoard()
	}
	if modal := m.renderPrompt(); modal != "" {
		out = centerOver(out, modal, m.width, m.height)
	}
	return out
}

func (m *appModel) renderPrompt() string {
	subject := ""
	if m.mode == modeDetail {
		subject = detailTitle(m.detail)
	} else if t, ok := m.selected(); ok {
		subject = detailTitle(t)
	}
	switch m.prompt {
	case promptSearch:
		return renderInputModal(m.width, "Search", m.input.View(), "enter: search   empty clears   esc: cancel")
	case promptAddNote:
		return renderInputModal(m.width, "Add note: "+subject, m.input.View(), "enter: save   esc: cancel")
	case promptEditNote:
		return renderInputModal(m.width, "Edit note: "+subject, m.input.View(), "enter: save   esc: cancel")
	case promptConfirmDelete:
		return renderConfirmModal(m.width, "Delete task", "Delete "+subject+"? Its attachments are removed too.", "Delete", "Cancel")
	case promptConfirmDeleteNote:
		return renderConfirmModal(m.width, "Delete note", "Delete the selected note?", "Delete", "Cancel")
	}
	return ""
}

func (m *appModel) renderBoard() string {
	g := m.geo()
	sess := m.board.Drag().Session()

	title := lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Render("caseboard")
	if m.query != "" {
		title += styleMuted().Render("  search: ") + m.query
	}
	if m.reloading {
		title += styleMuted().Render("  loading" + glyphMore())
	}

	headers := make([]string, len(m.statuses))
	bodies := make([][]string, len(m.statuses))
	for i, st := range m.statuses {
		headers[i] = m.renderHeader(i, st, g.colW)
		bodies[i] = m.renderColumn(i, st, g, sess)
	}

	lines := []string{fitWidth(title, g.width), joinColumns(headers)}
	for r := 0; r < g.bodyH; r++ {
		row := make([]string, len(bodies))
		for i := range bodies {
			row[i] = bodies[i][r]
		}
		lines = append(lines, joinColumns(row))
	}
	out := strings.Join(lines, "\n") + "\n" + m.renderFooter("h/l/j/k: move  enter: open  1-3/H/L: status  a: note  d: delete  /: search  r: reload  q: quit")

	if sess != nil {
		out = overlayAt(out, renderDragCard(sess.Overlay, g.colW), sess.X+1, sess.Y)
	}
	return out
}

func joinColumns(cells []string) string {
	return strings.Join(cells, strings.Repeat(" ", colGap))
}

// columnHeader is "Label (shown/total)", or "Label (n)" when everything is shown.
func columnHeader(st model.Status, shown, total int) string {
	if shown >= total {
		return fmt.Sprintf("%s (%d)", st.Label(), total)
	}
	return fmt.Sprintf("%s (%d/%d)", st.Label(), shown, total)
}

func (m *appModel) renderHeader(i int, st model.Status, colW int) string {
	shown := len(m.rows(i))
	text := columnHeader(st, shown, m.board.Store().Total(st))
	style := lipgloss.NewStyle().Bold(true).Width(colW).Padding(0, 1).
		Foreground(colorAccentFg).Background(statusColor(st))
	if sess := m.board.Drag().Session(); sess != nil && sess.Over == st {
		style = style.Underline(true)
	}
	return fitWidth(style.Render(text), colW)
}

func (m *appModel) renderColumn(i int, st model.Status, g geometry, sess *board.DragSession) []string {
	rows := m.rows(i)
	w := m.board.Window(st)
	off := m.scroll[st]
	per := g.perColumn()

	var lines []string
	end := off
	for j := off; j < len(rows) && j < off+per; j++ {
		end = j + 1
		t := rows[j]
		selected := m.mode == modeBoard && t.ID == m.selID
		dragged := sess != nil && sess.TaskID == t.ID
		lines = append(lines, renderCard(t, g.colW, selected, dragged)...)
	}
	switch {
	case len(rows) == 0 && !w.Loading():
		lines = append(lines, styleMuted().Render(" (empty)"))
	case w.Loading():
		lines = append(lines, styleMuted().Render(" loading"+glyphMore()))
	case end < len(rows) || w.HasMore():
		if more := m.board.Store().Total(st) - end; more > 0 {
			lines = append(lines, styleMuted().Render(fmt.Sprintf(" %s %d more", glyphMore(), more)))
		}
	}
	return strings.Split(normalizePane(strings.Join(lines, "\n"), g.colW, g.bodyH), "\n")
}

func cardMeta(t model.Task) string {
	var parts []string
	if t.ExecutionUnit != "" {
		parts = append(parts, t.ExecutionUnit)
	}
	if t.Deadline != "" {
		parts = append(parts, glyphArrow()+" "+t.Deadline)
	}
	switch n := len(t.Notes); n {
	case 0:
	case 1:
		parts = append(parts, "1 note")
	default:
		parts = append(parts, fmt.Sprintf("%d notes", n))
	}
	if n := len(t.Attachments); n > 0 {
		parts = append(parts, fmt.Sprintf("%s%d", glyphClip(), n))
	}
	if len(parts) == 0 {
		return t.ID
	}
	return strings.Join(parts, " "+glyphBullet()+" ")
}

// renderCard returns exactly cardRows lines: title, meta and a spacer.
func renderCard(t model.Task, colW int, selected, dragged bool) []string {
	base := lipgloss.NewStyle().Width(colW).Padding(0, 1)
	titleStyle := base.Bold(true).Foreground(colorSurfaceFg)
	metaStyle := base.Foreground(colorCardMetaFg)
	switch {
	case dragged:
		titleStyle = titleStyle.Background(colorDragBg).Faint(true)
		metaStyle = metaStyle.Background(colorDragBg).Faint(true)
	case selected:
		titleStyle = titleStyle.Foreground(colorSelectedFg).Background(colorSelectedBg)
		metaStyle = metaStyle.Background(colorSelectedBg)
	}
	inner := colW - 2
	return []string{
		fitWidth(titleStyle.Render(fitWidth(t.Title(), inner)), colW),
		fitWidth(metaStyle.Render(fitWidth(cardMeta(t), inner)), colW),
		strings.Repeat(" ", colW),
	}
}

// renderDragCard is the detached copy drawn under the pointer.
func renderDragCard(t model.Task, colW int) string {
	inner := colW - 2
	if inner < 8 {
		inner = 8
	}
	st := lipgloss.NewStyle().Padding(0, 1).Foreground(colorSelectedFg).Background(colorSelectedBg).Bold(true)
	return st.Render(fitWidth(t.Title(), inner)) + "\n" +
		st.Bold(false).Render(fitWidth(cardMeta(t), inner))
}

func (m *appModel) renderFooter(help string) string {
	if m.flash != "" {
		bg := colorFlashOK
		if m.flashErr {
			bg = colorFlashError
		}
		return fitWidth(lipgloss.NewStyle().Width(m.width).Padding(0, 1).
			Foreground(colorAccentFg).Background(bg).Render(m.flash), m.width)
	}
	return fitWidth(styleMuted().Render(" "+help), m.width)
}

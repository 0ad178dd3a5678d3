package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"caseboard/internal/model"
	"caseboard/internal/notes"
)

func (m *appModel) updateDetailKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q":
		return tea.Quit
	case "esc", "backspace":
		m.mode = modeBoard
		m.syncSelection()
		return nil
	case "down", "j":
		m.detailNote++
		m.clampNote()
	case "up", "k":
		m.detailNote--
		m.clampNote()
	case "1", "2", "3":
		i := int(msg.String()[0] - '1')
		return m.setStatus(m.detail.ID, m.statuses[i])
	case "a":
		return m.openInput(promptAddNote, "")
	case "e":
		if entry, ok := m.currentNote(); ok {
			return m.openInput(promptEditNote, entry.Content)
		}
	case "x":
		if _, ok := m.currentNote(); ok {
			m.prompt = promptConfirmDeleteNote
		}
	case "d":
		m.prompt = promptConfirmDelete
	case "y":
		return m.copyID(m.detail.ID)
	}
	return nil
}

func (m *appModel) clampNote() {
	n := len(m.detail.Notes)
	if m.detailNote >= n {
		m.detailNote = n - 1
	}
	if m.detailNote < 0 {
		m.detailNote = 0
	}
}

// currentNote is the selected entry in display order (newest first).
func (m *appModel) currentNote() (notes.Entry, bool) {
	view := m.detail.Notes.View()
	if m.detailNote < 0 || m.detailNote >= len(view) {
		return notes.Entry{}, false
	}
	return view[m.detailNote], true
}

func noteTime(e notes.Entry) string {
	t := e.Time()
	if t.IsZero() {
		return e.CreatedAt
	}
	return t.Local().Format("2006-01-02 15:04")
}

func (m *appModel) renderDetail() string {
	t := m.detail
	w := m.width
	bodyW := w - 4
	if bodyW < 20 {
		bodyW = 20
	}
	label := lipgloss.NewStyle().Foreground(colorMuted).Width(16)
	heading := lipgloss.NewStyle().Bold(true).Foreground(colorSurfaceFg)
	rule := styleMuted().Render(strings.Repeat(glyphHRule(), bodyW))

	var lines []string
	add := func(s ...string) { lines = append(lines, s...) }

	badge := lipgloss.NewStyle().Bold(true).Padding(0, 1).
		Foreground(colorAccentFg).Background(statusColor(t.Status)).Render(t.Status.Label())
	add(heading.Render(t.Title())+"  "+badge+"  "+styleMuted().Render(t.ID), rule)

	field := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		add(label.Render(name) + value)
	}
	field("Request type", t.RequestType)
	field("Target", t.TargetName)
	field("Requester", t.Requester)
	field("Deadline", t.Deadline)
	field("Execution unit", t.ExecutionUnit)
	field("Contact", strings.Join(nonEmpty(t.ContactName, t.ContactPhone, t.ContactEmail), "  "))
	if !t.CreatedAt.IsZero() {
		field("Created", t.CreatedAt.Local().Format(time.DateTime))
	}
	if !t.UpdatedAt.IsZero() {
		field("Updated", t.UpdatedAt.Local().Format(time.DateTime))
	}

	if d := renderMarkdown(t.Description, bodyW); d != "" {
		add("", heading.Render("Description"), d)
	}

	if len(t.Attachments) > 0 {
		add("", heading.Render(fmt.Sprintf("Attachments (%d)", len(t.Attachments))))
		for _, a := range t.Attachments {
			add(glyphClip() + " " + a.Name + "  " + styleMuted().Render(a.URL))
		}
	}

	view := t.Notes.View()
	add("", heading.Render(fmt.Sprintf("Notes (%d)", len(view))))
	if len(view) == 0 {
		add(styleMuted().Render("No notes yet. Press a to add one."))
	}
	selLine := -1
	marker := lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	for i, e := range view {
		meta := noteTime(e)
		if e.CreatedBy != "" {
			meta = e.CreatedBy + " " + glyphBullet() + " " + meta
		}
		prefix := "  "
		if i == m.detailNote {
			prefix = marker.Render("> ")
			selLine = len(lines)
		}
		add(prefix + styleMuted().Render(meta))
		for _, ln := range strings.Split(renderMarkdown(e.Content, bodyW-2), "\n") {
			add("  " + ln)
		}
	}

	bodyH := m.height - footerRows
	if bodyH < 1 {
		bodyH = 1
	}
	start := 0
	if selLine >= bodyH {
		start = selLine - bodyH/2
	}
	if start > len(lines) {
		start = len(lines)
	}
	body := normalizePane(strings.Join(lines[start:], "\n"), w, bodyH)
	help := "esc: back  j/k: note  a: add  e: edit  x: delete note  1-3: status  d: delete task  y: copy id"
	return body + "\n" + m.renderFooter(help)
}

func nonEmpty(vals ...string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// detailTitle is used by prompts opened from the detail view.
func detailTitle(t model.Task) string {
	return t.Title() + " (" + t.ID + ")"
}

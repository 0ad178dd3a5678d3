package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

const maxModalW = 72

func modalWidth(screenW int) int {
	w := screenW - 8
	if w > maxModalW {
		w = maxModalW
	}
	if w < 24 {
		w = 24
	}
	return w
}

// modalBodyWidth is the usable text width inside a modal of the given
// screen width (padding removed).
func modalBodyWidth(screenW int) int {
	return modalWidth(screenW) - 4
}

// renderModalBox draws a titled box. No border: nested borders inside a
// background color leave artifacts on some terminals.
func renderModalBox(screenW int, title, body string) string {
	w := modalWidth(screenW)
	header := lipgloss.NewStyle().
		Width(w).
		Padding(0, 2).
		Bold(true).
		Foreground(colorAccentFg).
		Background(colorAccent).
		Render(title)
	box := lipgloss.NewStyle().
		Width(w).
		Padding(1, 2).
		Foreground(colorSurfaceFg).
		Background(colorControlBg).
		Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, header, box)
}

func renderInputLine(bodyW int, inputView string) string {
	if bodyW < 10 {
		bodyW = 10
	}
	// A wrapped input looks like newline insertion while typing.
	inputView = strings.ReplaceAll(inputView, "\n", " ")
	inputView = strings.ReplaceAll(inputView, "\r", " ")

	line := lipgloss.PlaceHorizontal(
		bodyW,
		lipgloss.Left,
		" "+inputView+" ",
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceBackground(colorInputBg),
	)
	if xansi.StringWidth(line) > bodyW {
		line = xansi.Cut(line, 0, bodyW) + "\x1b[0m"
	}
	return line
}

func renderConfirmModal(screenW int, title, body, confirmLabel, cancelLabel string) string {
	btn := lipgloss.NewStyle().Padding(0, 1).Foreground(colorSurfaceFg).Background(colorControlBg)
	active := btn.Foreground(colorSelectedFg).Background(colorSelectedBg).Bold(true)
	controls := lipgloss.JoinHorizontal(lipgloss.Top, active.Render(confirmLabel), " ", btn.Render(cancelLabel))

	bodyW := modalBodyWidth(screenW)
	help := styleMuted().Width(bodyW).Render("y/enter: confirm   n/esc: cancel")
	return renderModalBox(screenW, title, strings.Join([]string{
		lipgloss.NewStyle().Width(bodyW).Render(body),
		"",
		controls,
		"",
		help,
	}, "\n"))
}

func renderInputModal(screenW int, title, inputView, help string) string {
	bodyW := modalBodyWidth(screenW)
	return renderModalBox(screenW, title, strings.Join([]string{
		renderInputLine(bodyW, inputView),
		"",
		styleMuted().Width(bodyW).Render(help),
	}, "\n"))
}

// centerOver places a modal in the middle of the screen over base.
func centerOver(base, modal string, width, height int) string {
	mw := lipgloss.Width(modal)
	mh := lipgloss.Height(modal)
	x := (width - mw) / 2
	y := (height - mh) / 3
	if y < 0 {
		y = 0
	}
	return overlayAt(base, modal, x, y)
}

package tui

import (
	"strings"

	xansi "github.com/charmbracelet/x/ansi"
)

const (
	colGap = 2
	// Title line, then column headers.
	headerRows = 2
	// Each card is two text lines and a spacer.
	cardRows   = 3
	footerRows = 1
	minColW    = 12
)

// geometry is where things are on screen for a given terminal size. Hit
// testing and rendering both read it, so a click lands on what was drawn.
type geometry struct {
	width, height int
	cols          int
	colW          int
	bodyTop       int
	bodyH         int
}

func layout(width, height, cols int) geometry {
	if cols <= 0 {
		cols = 1
	}
	g := geometry{width: width, height: height, cols: cols, bodyTop: headerRows}
	avail := width - colGap*(cols-1)
	g.colW = avail / cols
	if g.colW < minColW {
		g.colW = minColW
	}
	g.bodyH = height - headerRows - footerRows
	if g.bodyH < 0 {
		g.bodyH = 0
	}
	return g
}

// perColumn is how many cards fit in a column.
func (g geometry) perColumn() int {
	n := g.bodyH / cardRows
	if n < 1 {
		return 1
	}
	return n
}

func (g geometry) colX(i int) int {
	return i * (g.colW + colGap)
}

// column returns the column index under x. Gaps belong to no column.
func (g geometry) column(x int) (int, bool) {
	if x < 0 {
		return 0, false
	}
	i := x / (g.colW + colGap)
	if i >= g.cols {
		return 0, false
	}
	if x-g.colX(i) >= g.colW {
		return 0, false
	}
	return i, true
}

// row returns the on-screen card slot under y, or -1 for the header line.
// ok is false outside the board.
func (g geometry) row(y int) (slot int, ok bool) {
	switch {
	case y == headerRows-1:
		return -1, true
	case y < g.bodyTop || y >= g.bodyTop+g.bodyH:
		return 0, false
	}
	return (y - g.bodyTop) / cardRows, true
}

// normalizePane forces s to exactly width columns (ANSI-aware) and height
// lines so joined panes stay aligned.
func normalizePane(s string, width, height int) string {
	if width < 0 {
		width = 0
	}
	lines := strings.Split(s, "\n")
	if height > 0 {
		if len(lines) > height {
			lines = lines[:height]
		}
		for len(lines) < height {
			lines = append(lines, "")
		}
	}
	for i, ln := range lines {
		lines[i] = fitWidth(ln, width)
	}
	return strings.Join(lines, "\n")
}

func fitWidth(ln string, width int) string {
	w := xansi.StringWidth(ln)
	if w > width {
		switch {
		case width <= 0:
			return ""
		case width == 1:
			ln = xansi.Cut(ln, 0, 1)
		default:
			ln = xansi.Cut(ln, 0, width-1) + "…"
		}
		w = xansi.StringWidth(ln)
	}
	if w < width {
		ln += strings.Repeat(" ", width-w)
	}
	return ln
}

// overlayAt draws top over base with its top-left corner at (x, y). Lines of
// top that fall outside base are dropped.
func overlayAt(base, top string, x, y int) string {
	lines := strings.Split(base, "\n")
	if x < 0 {
		x = 0
	}
	for i, ov := range strings.Split(top, "\n") {
		at := y + i
		if at < 0 || at >= len(lines) {
			continue
		}
		ln := lines[at]
		lw := xansi.StringWidth(ln)
		if lw < x {
			ln += strings.Repeat(" ", x-lw)
			lw = x
		}
		ow := xansi.StringWidth(ov)
		right := ""
		if x+ow < lw {
			right = xansi.Cut(ln, x+ow, lw)
		}
		lines[at] = xansi.Cut(ln, 0, x) + "\x1b[0m" + ov + "\x1b[0m" + right
	}
	return strings.Join(lines, "\n")
}

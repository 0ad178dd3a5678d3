package tui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"caseboard/internal/model"
)

// The board must stay readable on light and dark terminals. Colors are
// adaptive and faint styling only applies on dark backgrounds.

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

func faintIfDark(st lipgloss.Style) lipgloss.Style {
	if lipgloss.HasDarkBackground() {
		return st.Faint(true)
	}
	return st
}

var (
	colorMuted      = ac("240", "243")
	colorSurfaceFg  = ac("235", "252")
	colorControlBg  = ac("252", "235")
	colorInputBg    = ac("254", "234")
	colorSelectedBg = ac("#e9e9e9", "#262626")
	colorSelectedFg = ac("235", "255")
	colorAccent     = ac("27", "62")
	colorAccentFg   = ac("255", "235")
	colorCardMetaFg = ac("238", "250")
	colorFlashError = ac("196", "160")
	colorFlashOK    = ac("28", "35")
	colorDragBg     = ac("153", "24")

	// Column header accents, one per status.
	colorTodo    = ac("27", "75")
	colorPending = ac("130", "214")
	colorDone    = ac("28", "78")
)

func statusColor(st model.Status) lipgloss.AdaptiveColor {
	switch st {
	case model.StatusPending:
		return colorPending
	case model.StatusDone:
		return colorDone
	default:
		return colorTodo
	}
}

func styleMuted() lipgloss.Style {
	return faintIfDark(lipgloss.NewStyle().Foreground(colorMuted))
}

// applyColorProfilePreference sets the color profile for the board. Only
// NO_COLOR is honored; CLICOLOR is left to the non-interactive commands.
func applyColorProfilePreference() {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	profile := termenv.ColorProfile()
	term := strings.ToLower(strings.TrimSpace(os.Getenv("TERM")))
	colorterm := strings.ToLower(strings.TrimSpace(os.Getenv("COLORTERM")))
	switch {
	case strings.Contains(colorterm, "truecolor") || strings.Contains(colorterm, "24bit"):
		if profile != termenv.Ascii {
			profile = termenv.TrueColor
		}
	case strings.Contains(term, "256color"):
		if profile == termenv.Ascii || profile == termenv.ANSI {
			profile = termenv.ANSI256
		}
	}
	lipgloss.SetColorProfile(profile)
}

// applyThemePreference configures background detection.
//
// Priority:
// 1) CASEBOARD_TUI_THEME=light|dark|auto
// 2) CASEBOARD_TUI_DARKBG=true|false
// 3) COLORFGBG ("fg;bg")
func applyThemePreference() {
	if dark, ok := themeDarkPreference(); ok {
		lipgloss.SetHasDarkBackground(dark)
	}
}

func themeDarkPreference() (dark bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("CASEBOARD_TUI_THEME"))) {
	case "light":
		return false, true
	case "dark":
		return true, true
	}
	if v := strings.TrimSpace(os.Getenv("CASEBOARD_TUI_DARKBG")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b, true
		}
	}
	if v := strings.TrimSpace(os.Getenv("COLORFGBG")); v != "" {
		parts := strings.Split(v, ";")
		if bg, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1])); err == nil {
			// xterm palette: 0-6 are dark.
			return bg < 7, true
		}
	}
	return false, false
}

// Package tui is the interactive terminal board: three status columns,
// keyboard and mouse drag to move tasks, and a detail view for notes.
package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"caseboard/internal/board"
)

type Options struct {
	// Watch, when set, blocks delivering remote change notifications to
	// notify until ctx ends.
	Watch  func(ctx context.Context, notify func()) error
	Logger log.FieldLogger
}

func Run(ctx context.Context, b *board.Board, opts Options) error {
	applyColorProfilePreference()
	applyThemePreference()
	applyGlyphPreference()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newAppModel(ctx, b, opts.Logger)
	defer m.close()

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	if opts.Watch != nil {
		go func() {
			err := opts.Watch(ctx, func() { p.Send(remoteChangedMsg{}) })
			if err != nil && !errors.Is(err, context.Canceled) {
				m.log.WithError(err).Warn("remote change feed stopped")
			}
		}()
	}
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

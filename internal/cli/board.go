package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"caseboard/internal/config"
	"caseboard/internal/logging"
	"caseboard/internal/remote"
	"caseboard/internal/tui"
)

func newBoardCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Open the interactive board (default when no command is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoard(cmd, app)
		},
	}
}

func runBoard(cmd *cobra.Command, app *App) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGTERM)
	defer stop()

	cfg, err := app.loadConfig()
	if err != nil {
		return writeErr(cmd, err)
	}
	// The screen owns stdout, so logs go to a file.
	logPath, err := cfg.LogPath()
	if err != nil {
		return writeErr(cmd, err)
	}
	logFile, err := logging.OpenFile(logPath)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer logFile.Close()

	s, err := openSession(ctx, app, logFile)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer func() { _ = s.Close() }()

	opts := tui.Options{Logger: s.log}
	if s.remote != nil {
		client := s.remote
		opts.Watch = func(ctx context.Context, notify func()) error {
			return client.Watch(ctx, func(remote.Event) { notify() })
		}
	}
	if err := tui.Run(ctx, s.board, opts); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}

func newInitCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config.yaml (existing files are left alone)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.ConfigPath
			if path == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return writeErr(cmd, err)
				}
				path = p
			}
			created, err := config.WriteDefault(path)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"path": path, "created": created}})
		},
	}
}

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"caseboard/internal/config"
	"caseboard/internal/format"
)

type App struct {
	ConfigPath string
	DBPath     string
	Remote     string
	Token      string
	LogLevel   string
	PrettyJSON bool
	Format     string
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "caseboard",
		Short:        "Case task board: TUI, scriptable commands and a record server",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Open the board
  caseboard

  # Scriptable commands
  caseboard tasks list --status todo
  caseboard tasks status task-3k2q done

  # Direct task lookup (shortcut for: caseboard tasks show <task-id>)
  caseboard task-3k2q

  # Share one database with other machines
  caseboard serve --listen :8080
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive board.
			if len(args) == 0 {
				return runBoard(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr("CASEBOARD_CONFIG", ""), "Path to config.yaml (default ~/.caseboard/config.yaml)")
	cmd.PersistentFlags().StringVar(&app.DBPath, "db", "", "Path to the sqlite database (overrides config db_path)")
	cmd.PersistentFlags().StringVar(&app.Remote, "remote", "", "Record server URL (overrides config remote_url)")
	cmd.PersistentFlags().StringVar(&app.Token, "token", "", "Bearer token for --remote")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("CASEBOARD_FORMAT", "json"), "Output format (json|edn)")

	cmd.AddCommand(newBoardCmd(app))
	cmd.AddCommand(newInitCmd(app))
	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newNotesCmd(app))
	cmd.AddCommand(newAttachCmd(app))
	cmd.AddCommand(newPublishCmd(app))
	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTokenCmd(app))

	return cmd
}

// loadConfig reads the config file and applies flag overrides on top.
func (app *App) loadConfig() (config.Config, error) {
	cfg, err := config.Load(app.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if app.DBPath != "" {
		cfg.DBPath = app.DBPath
		cfg.RemoteURL = ""
	}
	if app.Remote != "" {
		cfg.RemoteURL = app.Remote
	}
	if app.Token != "" {
		cfg.Token = app.Token
	}
	if app.LogLevel != "" {
		cfg.LogLevel = app.LogLevel
	}
	return cfg, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

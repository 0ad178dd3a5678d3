package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"caseboard/internal/files"
)

func newAttachCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <task-id> <file>...",
		Short: "Upload files and attach them to a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				id := args[0]
				if _, err := s.hold(ctx, id); err != nil {
					return err
				}
				fs := make([]files.File, 0, len(args)-1)
				for _, p := range args[1:] {
					fs = append(fs, files.PathFile(p))
				}
				atts, err := s.board.OnUpload(ctx, id, fs)
				var batch *files.BatchError
				if err != nil && !(errors.As(err, &batch) && len(atts) > 0) {
					return err
				}
				out := map[string]any{
					"data": atts,
					"meta": map[string]any{"task": id, "requested": len(fs), "attached": len(atts)},
				}
				if batch != nil {
					failed := make([]map[string]string, 0, len(batch.Failures))
					for _, f := range batch.Failures {
						failed = append(failed, map[string]string{"name": f.Name, "error": f.Err.Error()})
					}
					out["errors"] = failed
				}
				if werr := writeOut(cmd, app, out); werr != nil {
					return werr
				}
				// Partial uploads still exit non-zero.
				return err
			})
		},
	}
}

package cli

import (
	"context"

	"github.com/spf13/cobra"

	"caseboard/internal/board"
	"caseboard/internal/model"
	"caseboard/internal/publish"
)

func newPublishCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Write tasks out as markdown case files",
	}
	cmd.AddCommand(newPublishTaskCmd(app))
	cmd.AddCommand(newPublishBoardCmd(app))
	return cmd
}

func newPublishTaskCmd(app *App) *cobra.Command {
	var to string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "task <task-id>",
		Short: "Write one task to <to>/tasks/<id>.md",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				t, err := s.board.OnView(ctx, args[0])
				if err != nil {
					return err
				}
				res, err := publish.WriteTask(t, to, publish.WriteOptions{Overwrite: overwrite})
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": res})
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Output directory")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newPublishBoardCmd(app *App) *cobra.Command {
	var to string
	var query string
	var title string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Write an index plus every task (optionally filtered by a search)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				cols := make([]model.Column, 0, len(model.Statuses()))
				for _, st := range model.Statuses() {
					tasks, err := allTasks(ctx, s.records, st, query, s.cfg.PageSize)
					if err != nil {
						return err
					}
					cols = append(cols, model.Column{Key: st, Label: st.Label(), Tasks: tasks, Total: len(tasks)})
				}
				res, err := publish.WriteBoard(cols, to, publish.WriteOptions{Overwrite: overwrite, Title: title})
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{
					"data": res,
					"meta": map[string]any{"files": len(res.Written)},
				})
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Output directory")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Only tasks matching this search")
	cmd.Flags().StringVar(&title, "title", "", "Index heading")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// allTasks pages through one status until a short page.
func allTasks(ctx context.Context, records board.RecordStore, st model.Status, query string, pageSize int) ([]model.Task, error) {
	if pageSize <= 0 {
		pageSize = board.DefaultConfig().PageSize
	}
	out := []model.Task{}
	for offset := 0; ; offset += pageSize {
		rows, err := records.ListTasksByStatus(ctx, board.Page{Status: st, Offset: offset, Limit: pageSize, Query: query})
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		if len(rows) < pageSize {
			return out, nil
		}
	}
}

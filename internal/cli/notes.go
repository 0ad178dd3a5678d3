package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"caseboard/internal/notes"
)

func newNotesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notes",
		Aliases: []string{"note"},
		Short:   "Task note commands",
	}
	cmd.AddCommand(newNotesListCmd(app))
	cmd.AddCommand(newNotesAddCmd(app))
	cmd.AddCommand(newNotesEditCmd(app))
	cmd.AddCommand(newNotesDeleteCmd(app))
	return cmd
}

func newNotesListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list <task-id>",
		Short: "List a task's notes, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				t, err := s.board.OnView(ctx, args[0])
				if err != nil {
					return err
				}
				view := t.Notes.View()
				if view == nil {
					view = []notes.Entry{}
				}
				return writeOut(cmd, app, map[string]any{
					"data": view,
					"meta": map[string]any{"task": t.ID, "total": len(view)},
				})
			})
		},
	}
}

func noteBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", errors.New("note body is empty")
	}
	return body, nil
}

func newNotesAddCmd(app *App) *cobra.Command {
	var body string

	cmd := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Append a note to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				content, err := noteBody(body)
				if err != nil {
					return err
				}
				if _, err := s.hold(ctx, args[0]); err != nil {
					return err
				}
				rec, err := s.board.OnAddNote(ctx, args[0], content)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": rec})
			})
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "Note text (markdown)")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

// noteRef finds the entry id names in the held task. A legacy_N id copied
// from an earlier listing may point at a different record by now; expect,
// when set, must prefix the content of the record found or the ref is stale.
func noteRef(s *session, taskID, noteID, expect string) (notes.Ref, error) {
	t, err := s.held(taskID)
	if err != nil {
		return notes.Ref{}, err
	}
	for _, e := range t.Notes.Entries() {
		if e.ID != noteID {
			continue
		}
		if expect != "" && !strings.HasPrefix(e.Content, expect) {
			return notes.Ref{}, fmt.Errorf("%s: %w", noteID, notes.ErrStaleRef)
		}
		return e.Ref(), nil
	}
	return notes.Ref{}, notes.ErrNotFound
}

func newNotesEditCmd(app *App) *cobra.Command {
	var body, expect string

	cmd := &cobra.Command{
		Use:   "edit <task-id> <note-id>",
		Short: "Replace a note's text",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				content, err := noteBody(body)
				if err != nil {
					return err
				}
				if _, err := s.hold(ctx, args[0]); err != nil {
					return err
				}
				ref, err := noteRef(s, args[0], args[1], expect)
				if err != nil {
					return err
				}
				if err := s.board.OnEditNote(ctx, args[0], ref, content); err != nil {
					return err
				}
				t, err := s.held(args[0])
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": t.Notes.View()})
			})
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "New note text (markdown)")
	cmd.Flags().StringVar(&expect, "expect", "", "Refuse unless the note's current text starts with this")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func newNotesDeleteCmd(app *App) *cobra.Command {
	var expect string

	cmd := &cobra.Command{
		Use:   "delete <task-id> <note-id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				if _, err := s.hold(ctx, args[0]); err != nil {
					return err
				}
				ref, err := noteRef(s, args[0], args[1], expect)
				if err != nil {
					return err
				}
				if err := s.board.OnDeleteNote(ctx, args[0], ref); err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": map[string]any{"task": args[0], "note": args[1], "deleted": true}})
			})
		},
	}
	cmd.Flags().StringVar(&expect, "expect", "", "Refuse unless the note's current text starts with this")
	return cmd
}

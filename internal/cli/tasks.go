package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"caseboard/internal/board"
	"caseboard/internal/model"
	"caseboard/internal/store"
)

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Task commands",
	}
	cmd.AddCommand(newTasksListCmd(app))
	cmd.AddCommand(newTasksShowCmd(app))
	cmd.AddCommand(newTasksCreateCmd(app))
	cmd.AddCommand(newTasksEditCmd(app))
	cmd.AddCommand(newTasksStatusCmd(app))
	cmd.AddCommand(newTasksDeleteCmd(app))
	cmd.AddCommand(newTasksImportCmd(app))
	return cmd
}

func parseStatus(s string) (model.Status, error) {
	st, ok := model.ParseStatus(s)
	if !ok {
		return "", fmt.Errorf("invalid status %q (expected todo|pending|done)", s)
	}
	return st, nil
}

func newTasksListCmd(app *App) *cobra.Command {
	var status string
	var query string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks (one status, paginated; or the first page of every column)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				if status == "" {
					if err := s.board.Reload(ctx, query); err != nil {
						return err
					}
					cols := s.board.Columns()
					meta := map[string]any{}
					for _, c := range cols {
						meta[string(c.Key)] = map[string]any{"total": c.Total, "returned": len(c.Tasks)}
					}
					return writeOut(cmd, app, map[string]any{
						"data":   cols,
						"meta":   meta,
						"_hints": []string{"caseboard tasks list --status todo --limit 50"},
					})
				}
				return listStatus(ctx, cmd, app, s, status, query, limit, offset)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only this status (todo|pending|done)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Case-insensitive search over target, requester, type and description")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max tasks to return with --status")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset into the status list (for pagination)")
	return cmd
}

func listStatus(ctx context.Context, cmd *cobra.Command, app *App, s *session, status, query string, limit, offset int) error {
	st, err := parseStatus(status)
	if err != nil {
		return err
	}
	if limit <= 0 {
		limit = s.cfg.PageSize
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.records.ListTasksByStatus(ctx, board.Page{Status: st, Offset: offset, Limit: limit, Query: query})
	if err != nil {
		return err
	}
	counts, err := s.records.CountByStatus(ctx, query)
	if err != nil {
		return err
	}
	total := counts[st]

	next := offset + len(rows)
	hints := []string{}
	if next < total {
		h := "caseboard tasks list --status " + string(st) + " --limit " + strconv.Itoa(limit) + " --offset " + strconv.Itoa(next)
		if query != "" {
			h += " -q " + strconv.Quote(query)
		}
		hints = append(hints, h)
	}
	if rows == nil {
		rows = []model.Task{}
	}
	return writeOut(cmd, app, map[string]any{
		"data": rows,
		"meta": map[string]any{
			"status":   st,
			"total":    total,
			"limit":    limit,
			"offset":   offset,
			"returned": len(rows),
		},
		"_hints": hints,
	})
}

func newTasksShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				t, err := s.board.OnView(ctx, args[0])
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{
					"data": t,
					"_hints": []string{
						"caseboard notes list " + t.ID,
						"caseboard tasks status " + t.ID + " <todo|pending|done>",
					},
				})
			})
		},
	}
}

// taskFields binds the editable task fields to flags.
type taskFields struct {
	requestType   string
	targetName    string
	requester     string
	deadline      string
	executionUnit string
	description   string
	contactName   string
	contactPhone  string
	contactEmail  string
}

func (f *taskFields) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.requestType, "type", "", "Request type")
	fl.StringVar(&f.targetName, "target", "", "Target name")
	fl.StringVar(&f.requester, "requester", "", "Requesting party")
	fl.StringVar(&f.deadline, "deadline", "", "Deadline (YYYY-MM-DD)")
	fl.StringVar(&f.executionUnit, "unit", "", "Execution unit")
	fl.StringVar(&f.description, "description", "", "Description (markdown)")
	fl.StringVar(&f.contactName, "contact-name", "", "Contact name")
	fl.StringVar(&f.contactPhone, "contact-phone", "", "Contact phone")
	fl.StringVar(&f.contactEmail, "contact-email", "", "Contact email")
}

// apply copies the flags the user set onto t.
func (f *taskFields) apply(cmd *cobra.Command, t *model.Task) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = strings.TrimSpace(v)
		}
	}
	set("type", &t.RequestType, f.requestType)
	set("target", &t.TargetName, f.targetName)
	set("requester", &t.Requester, f.requester)
	set("deadline", &t.Deadline, f.deadline)
	set("unit", &t.ExecutionUnit, f.executionUnit)
	set("description", &t.Description, f.description)
	set("contact-name", &t.ContactName, f.contactName)
	set("contact-phone", &t.ContactPhone, f.contactPhone)
	set("contact-email", &t.ContactEmail, f.contactEmail)
}

func newTasksCreateCmd(app *App) *cobra.Command {
	var fields taskFields
	var status string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				st, err := parseStatus(status)
				if err != nil {
					return err
				}
				t := model.Task{Status: st}
				fields.apply(cmd, &t)
				if t.TargetName == "" && t.RequestType == "" {
					return errors.New("a task needs --target or --type")
				}
				created, err := s.board.Engine().Create(ctx, t)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": created})
			})
		},
	}
	fields.bind(cmd)
	cmd.Flags().StringVar(&status, "status", string(model.StatusTodo), "Initial status (todo|pending|done)")
	return cmd
}

func newTasksEditCmd(app *App) *cobra.Command {
	var fields taskFields

	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Edit task fields (only the flags given change)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				t, err := s.hold(ctx, args[0])
				if err != nil {
					return err
				}
				fields.apply(cmd, &t)
				if err := s.board.OnEdit(ctx, t); err != nil {
					return err
				}
				out, err := s.held(t.ID)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": out})
			})
		},
	}
	fields.bind(cmd)
	return cmd
}

func newTasksStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <todo|pending|done>",
		Short: "Move a task to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				st, err := parseStatus(args[1])
				if err != nil {
					return err
				}
				if _, err := s.hold(ctx, args[0]); err != nil {
					return err
				}
				if err := s.board.OnStatusChange(ctx, args[0], st); err != nil {
					return err
				}
				t, err := s.held(args[0])
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": t})
			})
		},
	}
}

func newTasksDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and its hosted attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				if _, err := s.hold(ctx, args[0]); err != nil {
					return err
				}
				if err := s.board.OnDelete(ctx, args[0]); err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": map[string]any{"id": args[0], "deleted": true}})
			})
		},
	}
}

func newTasksImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json|->",
		Short: "Upsert a JSON array of tasks into the local database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(ctx context.Context, s *session) error {
				if s.sqlite == nil {
					return errors.New("import needs a local database (drop --remote)")
				}
				var r io.Reader = cmd.InOrStdin()
				if args[0] != "-" {
					f, err := os.Open(args[0])
					if err != nil {
						return err
					}
					defer f.Close()
					r = f
				}
				n, err := s.sqlite.ImportJSON(ctx, r)
				if err != nil {
					return err
				}
				if c, ok := s.records.(*store.Cache); ok {
					c.Invalidate(ctx)
				}
				return writeOut(cmd, app, map[string]any{"data": map[string]any{"imported": n}})
			})
		},
	}
}

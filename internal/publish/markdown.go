package publish

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"caseboard/internal/model"
)

// RenderTaskMarkdown renders one task as a standalone case page. Notes are
// listed newest first, matching the board.
func RenderTaskMarkdown(t model.Task) string {
	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	writeLn("# " + t.Title())
	writeLn("")
	writeLn("## Meta")
	writeLn("")
	writeLn("- ID: " + t.ID)
	writeLn("- Status: " + t.Status.Label())
	meta := []struct{ label, value string }{
		{"Request type", t.RequestType},
		{"Target", t.TargetName},
		{"Requester", t.Requester},
		{"Deadline", t.Deadline},
		{"Execution unit", t.ExecutionUnit},
		{"Contact", joinNonEmpty(", ", t.ContactName, t.ContactPhone, t.ContactEmail)},
	}
	for _, m := range meta {
		if v := strings.TrimSpace(m.value); v != "" {
			writeLn("- " + m.label + ": " + v)
		}
	}
	if !t.CreatedAt.IsZero() {
		writeLn("- Created: " + t.CreatedAt.UTC().Format(time.RFC3339))
	}
	if !t.UpdatedAt.IsZero() {
		writeLn("- Updated: " + t.UpdatedAt.UTC().Format(time.RFC3339))
	}

	if desc := strings.TrimSpace(t.Description); desc != "" {
		writeLn("")
		writeLn("## Description")
		writeLn("")
		writeLn(desc)
	}

	if len(t.Attachments) > 0 {
		writeLn("")
		writeLn("## Attachments")
		writeLn("")
		for _, a := range t.Attachments {
			if a.URL != "" {
				writeLn(fmt.Sprintf("- [%s](%s)", a.Name, a.URL))
			} else {
				writeLn("- " + a.Name)
			}
		}
	}

	view := t.Notes.View()
	if len(view) > 0 {
		writeLn("")
		writeLn("## Notes")
		for _, e := range view {
			writeLn("")
			head := "### " + e.CreatedAt
			if e.CreatedBy != "" {
				head += " by " + e.CreatedBy
			}
			writeLn(head)
			writeLn("")
			writeLn(strings.TrimSpace(e.Content))
		}
	}
	return buf.String()
}

// RenderBoardIndexMarkdown lists every column with links into tasks/.
func RenderBoardIndexMarkdown(title string, cols []model.Column) string {
	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	if strings.TrimSpace(title) == "" {
		title = "Case board"
	}
	writeLn("# " + title)
	for _, c := range cols {
		writeLn("")
		writeLn(fmt.Sprintf("## %s (%d)", c.Label, len(c.Tasks)))
		writeLn("")
		if len(c.Tasks) == 0 {
			writeLn("_Empty._")
			continue
		}
		for _, t := range c.Tasks {
			line := fmt.Sprintf("- [%s](tasks/%s.md)", t.Title(), t.ID)
			if t.Deadline != "" {
				line += " (due " + t.Deadline + ")"
			}
			writeLn(line)
		}
	}
	return buf.String()
}

func joinNonEmpty(sep string, vals ...string) string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}

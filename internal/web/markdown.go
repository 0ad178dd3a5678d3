package web

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"caseboard/internal/model"
	"caseboard/internal/notes"
)

// Raw HTML stays disabled, so rendered notes can be trusted in the page.
var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		emoji.Emoji,
	),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
	),
)

func renderMarkdownHTML(src string) template.HTML {
	src = strings.TrimSpace(src)
	if src == "" {
		return template.HTML("")
	}
	var b bytes.Buffer
	if err := markdownRenderer.Convert([]byte(src), &b); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(src) + "</pre>")
	}
	return template.HTML(b.String())
}

var taskPageTmpl = template.Must(template.New("task").Funcs(template.FuncMap{
	"markdown": renderMarkdownHTML,
}).Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Task.Title}}</title></head>
<body>
<h1>{{.Task.Title}}</h1>
<p><strong>{{.Task.Status.Label}}</strong>{{with .Task.Deadline}} &middot; due {{.}}{{end}}{{with .Task.ExecutionUnit}} &middot; {{.}}{{end}}</p>
<dl>
{{with .Task.Requester}}<dt>Requester</dt><dd>{{.}}</dd>{{end}}
{{with .Task.ContactName}}<dt>Contact</dt><dd>{{.}}{{with $.Task.ContactPhone}}, {{.}}{{end}}{{with $.Task.ContactEmail}}, {{.}}{{end}}</dd>{{end}}
</dl>
{{with .Task.Description}}<section>{{markdown .}}</section>{{end}}
{{if .Task.Attachments}}<h2>Attachments</h2>
<ul>{{range .Task.Attachments}}<li><a href="{{.URL}}">{{.Name}}</a></li>{{end}}</ul>{{end}}
<h2>Notes</h2>
{{range .Notes}}<article id="{{.ID}}">
<header>{{with .CreatedBy}}{{.}} &middot; {{end}}{{.CreatedAt}}</header>
{{markdown .Content}}
</article>
{{else}}<p>No notes yet.</p>{{end}}
</body>
</html>
`))

func (s *Server) taskPage(c echo.Context) error {
	t, err := s.records.GetTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.storeError(c, "page", err)
	}
	var b bytes.Buffer
	data := struct {
		Task  model.Task
		Notes []notes.Entry
	}{Task: t, Notes: t.Notes.View()}
	if err := taskPageTmpl.Execute(&b, data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.HTMLBlob(http.StatusOK, b.Bytes())
}

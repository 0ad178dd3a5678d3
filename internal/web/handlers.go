package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"caseboard/internal/board"
	"caseboard/internal/model"
	"caseboard/internal/notes"
	"caseboard/internal/perm"
)

type tasksResponse struct {
	Tasks []model.Task `json:"tasks"`
}

type countsResponse struct {
	Counts map[model.Status]int `json:"counts"`
}

// The status is kept raw so values outside the closed set are rejected
// rather than normalized.
type statusRequest struct {
	Status string `json:"status"`
}

type notesRequest struct {
	Notes notes.Log `json:"notes"`
}

type attachmentsRequest struct {
	Attachments []model.Attachment `json:"attachments"`
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func (s *Server) storeError(c echo.Context, op string, err error) error {
	var nf board.NotFoundError
	if errors.As(err, &nf) {
		return echo.NewHTTPError(http.StatusNotFound, nf.Error())
	}
	s.log.WithFields(log.Fields{"op": op, "path": c.Request().URL.Path}).WithError(err).Error("record store failed")
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (s *Server) listTasks(c echo.Context) error {
	st, ok := model.ParseStatus(c.QueryParam("status"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit", board.DefaultPageSize)
	if err != nil {
		return err
	}
	if limit == 0 {
		limit = board.DefaultPageSize
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	p := board.Page{Status: st, Offset: offset, Limit: limit, Query: strings.TrimSpace(c.QueryParam("q"))}
	tasks, err := s.records.ListTasksByStatus(c.Request().Context(), p)
	if err != nil {
		return s.storeError(c, "list", err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
}

func (s *Server) countTasks(c echo.Context) error {
	counts, err := s.records.CountByStatus(c.Request().Context(), strings.TrimSpace(c.QueryParam("q")))
	if err != nil {
		return s.storeError(c, "count", err)
	}
	return c.JSON(http.StatusOK, countsResponse{Counts: counts})
}

func (s *Server) getTask(c echo.Context) error {
	t, err := s.records.GetTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.storeError(c, "get", err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) createTask(c echo.Context) error {
	var t model.Task
	if err := decodeBody(c, &t); err != nil {
		return err
	}
	if err := perm.Authorize(identityFrom(c), perm.ActionCreate, t); err != nil {
		return c.JSON(http.StatusForbidden, board.Failed(err.Error()))
	}
	created, err := s.records.CreateTask(c.Request().Context(), t)
	if err != nil {
		return s.storeError(c, "create", err)
	}
	s.events.publish(Event{Type: EventChanged, TaskID: created.ID, Action: "create"})
	return c.JSON(http.StatusCreated, created)
}

// guard loads the task named in the path and authorizes a on it. A missing
// task is a rejected mutation rather than a transport error.
func (s *Server) guard(c echo.Context, a perm.Action) (model.Task, bool, error) {
	id := c.Param("id")
	t, err := s.records.GetTask(c.Request().Context(), id)
	if err != nil {
		var nf board.NotFoundError
		if errors.As(err, &nf) {
			return model.Task{}, false, c.JSON(http.StatusOK, board.Failed("task "+id+" not found"))
		}
		return model.Task{}, false, s.storeError(c, string(a), err)
	}
	if err := perm.Authorize(identityFrom(c), a, t); err != nil {
		s.log.WithFields(log.Fields{"task_id": id, "action": a}).WithError(err).Info("mutation forbidden")
		return model.Task{}, false, c.JSON(http.StatusForbidden, board.Failed(err.Error()))
	}
	return t, true, nil
}

func (s *Server) respond(c echo.Context, op, id string, res board.Result, err error) error {
	if err != nil {
		return s.storeError(c, op, err)
	}
	if res.Success {
		s.events.publish(Event{Type: EventChanged, TaskID: id, Action: op})
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) updateTask(c echo.Context) error {
	var t model.Task
	if err := decodeBody(c, &t); err != nil {
		return err
	}
	current, ok, err := s.guard(c, perm.ActionEdit)
	if !ok {
		return err
	}
	t.ID = current.ID
	// Moving a task to another unit needs rights on the destination too.
	if t.ExecutionUnit != current.ExecutionUnit {
		if err := perm.Authorize(identityFrom(c), perm.ActionEdit, t); err != nil {
			return c.JSON(http.StatusForbidden, board.Failed(err.Error()))
		}
	}
	res, err := s.records.UpdateTask(c.Request().Context(), t)
	return s.respond(c, "edit", t.ID, res, err)
}

func (s *Server) updateStatus(c echo.Context) error {
	var body statusRequest
	if err := decodeBody(c, &body); err != nil {
		return err
	}
	t, ok, err := s.guard(c, perm.ActionStatus)
	if !ok {
		return err
	}
	res, err := s.records.UpdateStatus(c.Request().Context(), t.ID, model.Status(strings.TrimSpace(body.Status)))
	return s.respond(c, "status", t.ID, res, err)
}

func (s *Server) deleteTask(c echo.Context) error {
	t, ok, err := s.guard(c, perm.ActionDelete)
	if !ok {
		return err
	}
	res, err := s.records.Delete(c.Request().Context(), t.ID)
	return s.respond(c, "delete", t.ID, res, err)
}

func (s *Server) replaceNotes(c echo.Context) error {
	var body notesRequest
	if err := decodeBody(c, &body); err != nil {
		return err
	}
	t, ok, err := s.guard(c, perm.ActionNotes)
	if !ok {
		return err
	}
	if body.Notes == nil {
		body.Notes = notes.Log{}
	}
	res, err := s.records.ReplaceNotes(c.Request().Context(), t.ID, body.Notes)
	return s.respond(c, "notes", t.ID, res, err)
}

func (s *Server) setAttachments(c echo.Context) error {
	var body attachmentsRequest
	if err := decodeBody(c, &body); err != nil {
		return err
	}
	t, ok, err := s.guard(c, perm.ActionAttach)
	if !ok {
		return err
	}
	res, err := s.records.SetAttachments(c.Request().Context(), t.ID, body.Attachments)
	return s.respond(c, "attach", t.ID, res, err)
}

// Package remote is a board.RecordStore backed by a caseboard record server.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"caseboard/internal/board"
	"caseboard/internal/model"
	"caseboard/internal/notes"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 16 << 20
)

// HTTPError is a response the client could not turn into a result.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("remote: %d %s", e.Status, e.Message)
}

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   log.FieldLogger
}

var _ board.RecordStore = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithLogger(l log.FieldLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:  u,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: defaultTimeout},
		log:   log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		raw, err := sonic.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func decode(resp *http.Response, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(resp.Body, maxResponseSize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("remote: decode %s: %w", resp.Request.URL.Path, err)
	}
	return nil
}

func httpError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := sonic.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(raw))
	}
	return &HTTPError{Status: resp.StatusCode, Message: body.Message}
}

// mutate performs a call answered with {success, message}. A forbidden
// response is a rejected mutation, not a transport error.
func (c *Client) mutate(ctx context.Context, method, path string, body any) (board.Result, error) {
	resp, err := c.do(ctx, method, path, nil, body)
	if err != nil {
		return board.Result{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusForbidden:
		var res board.Result
		if err := decode(resp, &res); err != nil {
			return board.Result{}, err
		}
		if resp.StatusCode == http.StatusForbidden {
			res.Success = false
		}
		return res, nil
	default:
		return board.Result{}, httpError(resp)
	}
}

func taskPath(id string) string {
	return "/api/tasks/" + url.PathEscape(id)
}

func (c *Client) ListTasksByStatus(ctx context.Context, p board.Page) ([]model.Task, error) {
	q := url.Values{}
	q.Set("status", string(p.Status.Normalize()))
	q.Set("offset", strconv.Itoa(p.Offset))
	q.Set("limit", strconv.Itoa(p.Limit))
	if p.Query != "" {
		q.Set("q", p.Query)
	}
	resp, err := c.do(ctx, http.MethodGet, "/api/tasks", q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	var out struct {
		Tasks []model.Task `json:"tasks"`
	}
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (c *Client) CountByStatus(ctx context.Context, query string) (map[model.Status]int, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	resp, err := c.do(ctx, http.MethodGet, "/api/tasks/counts", q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	var out struct {
		Counts map[string]int `json:"counts"`
	}
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	counts := make(map[model.Status]int, len(model.Statuses()))
	for _, st := range model.Statuses() {
		counts[st] = 0
	}
	for k, n := range out.Counts {
		counts[model.Status(k).Normalize()] += n
	}
	return counts, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (model.Task, error) {
	resp, err := c.do(ctx, http.MethodGet, taskPath(id), nil, nil)
	if err != nil {
		return model.Task{}, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return model.Task{}, board.NotFoundError{Kind: "task", ID: id}
	default:
		return model.Task{}, httpError(resp)
	}
	var t model.Task
	if err := decode(resp, &t); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func (c *Client) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/tasks", nil, t)
	if err != nil {
		return model.Task{}, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
	case http.StatusForbidden:
		var res board.Result
		if err := decode(resp, &res); err != nil {
			return model.Task{}, err
		}
		return model.Task{}, &HTTPError{Status: resp.StatusCode, Message: res.Message}
	default:
		return model.Task{}, httpError(resp)
	}
	var created model.Task
	if err := decode(resp, &created); err != nil {
		return model.Task{}, err
	}
	return created, nil
}

func (c *Client) UpdateTask(ctx context.Context, t model.Task) (board.Result, error) {
	return c.mutate(ctx, http.MethodPut, taskPath(t.ID), t)
}

func (c *Client) UpdateStatus(ctx context.Context, id string, st model.Status) (board.Result, error) {
	return c.mutate(ctx, http.MethodPut, taskPath(id)+"/status", map[string]string{"status": string(st)})
}

func (c *Client) Delete(ctx context.Context, id string) (board.Result, error) {
	return c.mutate(ctx, http.MethodDelete, taskPath(id), nil)
}

func (c *Client) ReplaceNotes(ctx context.Context, id string, l notes.Log) (board.Result, error) {
	if l == nil {
		l = notes.Log{}
	}
	return c.mutate(ctx, http.MethodPut, taskPath(id)+"/notes", struct {
		Notes notes.Log `json:"notes"`
	}{Notes: l})
}

func (c *Client) SetAttachments(ctx context.Context, id string, atts []model.Attachment) (board.Result, error) {
	if atts == nil {
		atts = []model.Attachment{}
	}
	return c.mutate(ctx, http.MethodPut, taskPath(id)+"/attachments", struct {
		Attachments []model.Attachment `json:"attachments"`
	}{Attachments: atts})
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusUnauthorized
}

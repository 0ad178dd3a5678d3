package remote

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	retryMin = time.Second
	retryMax = 30 * time.Second
)

// Event mirrors the server's change notification.
type Event struct {
	Type   string    `json:"type"`
	TaskID string    `json:"taskId,omitempty"`
	Action string    `json:"action,omitempty"`
	At     time.Time `json:"at"`
}

func (c *Client) eventsURL() string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/api/events"
	return u.String()
}

// Subscribe streams change events to fn until the connection drops or ctx
// ends. fn runs on the reading goroutine.
func (c *Client) Subscribe(ctx context.Context, fn func(Event)) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.eventsURL(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return httpError(resp)
		}
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		var ev Event
		if err := sonic.Unmarshal(raw, &ev); err != nil {
			c.log.WithError(err).Debug("dropping undecodable event")
			continue
		}
		fn(ev)
	}
}

// Watch keeps a subscription open, reconnecting with backoff, until ctx
// ends. Authentication failures stop it.
func (c *Client) Watch(ctx context.Context, fn func(Event)) error {
	wait := retryMin
	for {
		started := time.Now()
		err := c.Subscribe(ctx, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if IsUnauthorized(err) {
			return err
		}
		if time.Since(started) > retryMax {
			wait = retryMin
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.WithError(err).WithField("retry_in", wait.String()).Warn("event stream lost")
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		wait *= 2
		if wait > retryMax {
			wait = retryMax
		}
	}
}

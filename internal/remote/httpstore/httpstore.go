// Package httpstore is the client side of the hub: a remote.Store that talks
// REST for rows and follows changefeeds over websockets.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/roach88/ledgersync/internal/hub"
	"github.com/roach88/ledgersync/internal/remote"
)

// Store implements remote.Store against a hub.
type Store struct {
	base   *url.URL
	client *http.Client
	dialer *websocket.Dialer
	log    zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient replaces the default client (10 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// WithLogger sets the store's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates a client for the hub at baseURL (http or https).
func New(baseURL string, opts ...Option) (*Store, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse hub url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("hub url %q: scheme must be http or https", baseURL)
	}
	s := &Store{
		base:   u,
		client: &http.Client{Timeout: 10 * time.Second},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// reply mirrors hub.Response with Data left raw.
type reply struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Code       string          `json:"code"`
	Column     string          `json:"column"`
}

// HubError is a non-success reply from the hub.
type HubError struct {
	StatusCode int
	Message    string
}

func (e *HubError) Error() string {
	return fmt.Sprintf("hub returned %d: %s", e.StatusCode, e.Message)
}

func (s *Store) tableURL(table remote.Table, suffix string) string {
	u := *s.base
	u.Path = s.base.Path + "/tables/" + url.PathEscape(string(table)) + suffix
	return u.String()
}

func (s *Store) do(ctx context.Context, method, target string, body any, table remote.Table) (json.RawMessage, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var r reply
	if err := dec.Decode(&r); err != nil {
		return nil, &HubError{StatusCode: resp.StatusCode, Message: "unreadable reply: " + err.Error()}
	}
	if resp.StatusCode == http.StatusOK {
		return r.Data, nil
	}
	switch r.Code {
	case hub.CodeMissingColumn:
		return nil, &remote.MissingColumnError{Table: table, Column: r.Column}
	case hub.CodeUnknownTable:
		return nil, fmt.Errorf("%w: %q", remote.ErrUnknownTable, table)
	}
	return nil, &HubError{StatusCode: resp.StatusCode, Message: r.Error}
}

// Upsert implements remote.Store.
func (s *Store) Upsert(ctx context.Context, table remote.Table, rows []remote.Row) error {
	body := hub.UpsertRequest{Rows: make([]map[string]any, len(rows))}
	for i, r := range rows {
		body.Rows[i] = r
	}
	if _, err := s.do(ctx, http.MethodPost, s.tableURL(table, "/upsert"), body, table); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, table remote.Table, filter remote.Filter) error {
	if _, err := s.do(ctx, http.MethodPost, s.tableURL(table, "/delete"), filter, table); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// Select implements remote.Store.
func (s *Store) Select(ctx context.Context, table remote.Table, filter *remote.Filter) ([]remote.Row, error) {
	target := s.tableURL(table, "")
	if filter != nil {
		q := url.Values{"column": {filter.Column}, "value": filter.Values}
		target += "?" + q.Encode()
	}
	data, err := s.do(ctx, http.MethodGet, target, nil, table)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []remote.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return rows, nil
}

// Subscribe implements remote.Store. The hub registers the connection
// before completing the handshake, so writes made after Subscribe returns
// are delivered.
func (s *Store) Subscribe(ctx context.Context, table remote.Table) (remote.Subscription, error) {
	u := *s.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = s.base.Path + "/tables/" + url.PathEscape(string(table)) + "/changes"

	conn, resp, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("subscribe %s: %w (status %d)", table, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	feed := remote.NewFeed(func() error {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		return conn.Close()
	})
	go func() {
		defer feed.End()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Warn().Err(err).Str("table", string(table)).Msg("changefeed connection lost")
				}
				return
			}
			changes, err := decodeFrame(data)
			if err != nil {
				s.log.Warn().Err(err).Str("table", string(table)).Msg("drop malformed changefeed frame")
			}
			for _, c := range changes {
				feed.Push(c)
			}
		}
	}()
	return feed, nil
}

// decodeFrame splits a frame of newline-separated JSON changes. Changes
// decoded before a malformed one are still returned.
func decodeFrame(data []byte) ([]remote.Change, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out []remote.Change
	for {
		var c remote.Change
		err := dec.Decode(&c)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
}

// Package typistclient is a fasthttp client for the pgn-typist JSON API.
package typistclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/pgn-typist/pkg/typistdto"
)

// APIError is a non-2xx answer carrying the server's error body.
type APIError struct {
	Status int
	typistdto.DomainError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("typist api: status=%d %s", e.Status, e.DomainError.Error())
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == fasthttp.StatusNotFound
}

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDial replaces the connection dialer, e.g. with an in-memory listener.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sessionPath(id string, rest ...string) string {
	p := "/api/sessions/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (c *Client) Create(ctx context.Context, pgnText string) (*typistdto.SessionState, error) {
	var st typistdto.SessionState
	req := typistdto.CreateSessionRequest{PGN: pgnText}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/sessions", req, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Get(ctx context.Context, id string) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodGet, sessionPath(id), nil, true)
}

func (c *Client) Sessions(ctx context.Context, limit int) ([]string, error) {
	var resp typistdto.SessionListResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/sessions?limit="+strconv.Itoa(limit), nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// Submit sends one move. An illegal move is reported through Accepted, not
// as an error.
func (c *Client) Submit(ctx context.Context, id, move, lang string) (*typistdto.MoveResponse, error) {
	status, body, err := c.do(ctx, fasthttp.MethodPost, sessionPath(id, "moves"), typistdto.MoveRequest{Move: move, Lang: lang}, false)
	if err != nil {
		return nil, err
	}
	if status != fasthttp.StatusOK && status != fasthttp.StatusUnprocessableEntity {
		return nil, apiError(status, body)
	}
	var resp typistdto.MoveResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

func (c *Client) SetCursor(ctx context.Context, id string, index int) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodPut, sessionPath(id, "cursor"), typistdto.CursorRequest{Index: &index}, false)
}

func (c *Client) CursorEnd(ctx context.Context, id string) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodPut, sessionPath(id, "cursor"), typistdto.CursorRequest{End: true}, false)
}

func (c *Client) Step(ctx context.Context, id string, step int) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodPut, sessionPath(id, "cursor"), typistdto.CursorRequest{Step: &step}, false)
}

func (c *Client) TruncateFrom(ctx context.Context, id string, index int) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodDelete, sessionPath(id, "moves")+"?from="+strconv.Itoa(index), nil, false)
}

func (c *Client) DeleteLast(ctx context.Context, id string) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodDelete, sessionPath(id, "moves", "last"), nil, false)
}

func (c *Client) ClearAll(ctx context.Context, id string) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodDelete, sessionPath(id, "moves"), nil, false)
}

func (c *Client) SetComment(ctx context.Context, id string, ply int, text string) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodPut, sessionPath(id, "comments", strconv.Itoa(ply)), typistdto.CommentRequest{Text: text}, false)
}

func (c *Client) DeleteComment(ctx context.Context, id string, ply int) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodDelete, sessionPath(id, "comments", strconv.Itoa(ply)), nil, false)
}

func (c *Client) ClearComments(ctx context.Context, id string) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodDelete, sessionPath(id, "comments"), nil, false)
}

func (c *Client) Undo(ctx context.Context, id string) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodPost, sessionPath(id, "undo"), nil, false)
}

func (c *Client) Redo(ctx context.Context, id string) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodPost, sessionPath(id, "redo"), nil, false)
}

func (c *Client) SetHeader(ctx context.Context, id, key, value string) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodPut, sessionPath(id, "headers"), typistdto.HeaderRequest{Key: key, Value: value}, false)
}

func (c *Client) RemoveHeader(ctx context.Context, id, key string) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodDelete, sessionPath(id, "headers", url.PathEscape(key)), nil, false)
}

func (c *Client) ResetHeaders(ctx context.Context, id string) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodPost, sessionPath(id, "headers", "reset"), nil, false)
}

func (c *Client) UpdateSettings(ctx context.Context, id string, req typistdto.SettingsRequest) (*typistdto.SessionState, error) {
	return c.state(ctx, fasthttp.MethodPut, sessionPath(id, "settings"), req, false)
}

// Export renders the session as PGN; the server archives it.
func (c *Client) Export(ctx context.Context, id string, withComments bool) (*typistdto.ExportResponse, error) {
	path := sessionPath(id, "pgn") + "?format=json"
	if withComments {
		path += "&comments=1"
	}
	var resp typistdto.ExportResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) History(ctx context.Context, id string, limit int) ([]typistdto.ArchivedGame, error) {
	var resp typistdto.HistoryResponse
	path := sessionPath(id, "exports") + "?limit=" + strconv.Itoa(limit)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Games, nil
}

func (c *Client) ArchivedGame(ctx context.Context, gameID int64) (*typistdto.ArchivedGame, error) {
	var g typistdto.ArchivedGame
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/exports/"+strconv.FormatInt(gameID, 10), nil, &g, true); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) Languages(ctx context.Context) ([]typistdto.Language, error) {
	var langs []typistdto.Language
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/languages", nil, &langs, true); err != nil {
		return nil, err
	}
	return langs, nil
}

func (c *Client) state(ctx context.Context, method, path string, in any, retry bool) (*typistdto.SessionState, error) {
	var st typistdto.SessionState
	if err := c.doJSON(ctx, method, path, in, &st, retry); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, retry bool) error {
	status, body, err := c.do(ctx, method, path, in, retry)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return apiError(status, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// do sends one request. With retry set, transport failures and retryable
// status codes are retried with backoff; only reads pass retry=true.
func (c *Client) do(ctx context.Context, method, path string, in any, retry bool) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err == nil && (attempt == attempts || !shouldRetryStatus(resp.StatusCode())) {
			return resp.StatusCode(), append([]byte(nil), resp.Body()...), nil
		}
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else {
			lastErr = apiError(resp.StatusCode(), resp.Body())
		}
		if attempt == attempts {
			break
		}
		if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return 0, nil, lastErr
		}
	}
	return 0, nil, lastErr
}

func apiError(status int, body []byte) error {
	e := &APIError{Status: status}
	if err := json.Unmarshal(body, &e.DomainError); err != nil || e.Code == "" {
		e.Code = strconv.Itoa(status)
		e.Message = truncate(string(body), 256)
	}
	return e
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/debuglog"
)

// maxBody caps how much of a response is read.
const maxBody = 32 << 20

// Client talks to the pipeline backend over HTTP/JSON.
type Client struct {
	base      *url.URL
	client    *http.Client
	userAgent string
}

func NewClient(cfg *config.Config) (*Client, error) {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.Backend.HTTPTimeout})
}

// NewClientWithHTTP builds a client around hc, for tests and custom
// transports.
func NewClientWithHTTP(cfg *config.Config, hc *http.Client) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	if raw == "" {
		return nil, &ValidationError{Field: "backend.base_url", Message: "backend URL is empty"}
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &ValidationError{Field: "backend.base_url", Message: fmt.Sprintf("invalid backend URL %q", raw)}
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: base, client: hc, userAgent: cfg.Backend.UserAgent}, nil
}

// BaseURL returns the backend root the client was configured with.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends a request and decodes a JSON reply into out. Failures are mapped
// onto the error taxonomy.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &RequestError{Op: op, Status: resp.StatusCode, Err: err}
	}

	debuglog.With("op", op, "status", resp.StatusCode, "bytes", len(data)).Debugf("%s %s", method, path)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if msg := errorPayload(data); msg != "" {
			return &BackendError{Status: resp.StatusCode, Message: msg}
		}
		return &RequestError{Op: op, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &MalformedResponseError{Op: op, Err: err}
	}
	return nil
}

func errorPayload(data []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}

// ack decodes a {success, message|error} reply.
func (c *Client) ack(ctx context.Context, op, method, path string) (string, error) {
	var reply ackResponse
	if err := c.do(ctx, op, method, path, nil, nil, &reply); err != nil {
		return "", err
	}
	if reply.Success != nil && !*reply.Success {
		msg := reply.Error
		if msg == "" {
			msg = reply.Message
		}
		return "", &BackendError{Status: http.StatusOK, Message: msg}
	}
	return reply.Message, nil
}

// StartJob submits a pipeline run and returns its task id.
func (c *Client) StartJob(ctx context.Context, req StartRequest) (string, error) {
	var reply startResponse
	if err := c.do(ctx, "start job", http.MethodPost, "/api/start", nil, req, &reply); err != nil {
		return "", err
	}
	if reply.TaskID == "" {
		return "", &MalformedResponseError{Op: "start job", Err: errors.New("missing task_id")}
	}
	return reply.TaskID, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (*StatusSnapshot, error) {
	var snap StatusSnapshot
	path := "/api/status/" + url.PathEscape(jobID)
	if err := c.do(ctx, "poll status", http.MethodGet, path, nil, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Results lists articles, optionally restricted to one history record.
func (c *Client) Results(ctx context.Context, historyID *int64) ([]Article, error) {
	var query url.Values
	if historyID != nil {
		query = url.Values{"search_history_id": {strconv.FormatInt(*historyID, 10)}}
	}
	var reply articlesResponse
	if err := c.do(ctx, "list articles", http.MethodGet, "/api/results", query, nil, &reply); err != nil {
		return nil, err
	}
	return reply.Articles, nil
}

func (c *Client) HistoryArticles(ctx context.Context, historyID int64) ([]Article, error) {
	var reply articlesResponse
	path := fmt.Sprintf("/api/search-history/%d/articles", historyID)
	if err := c.do(ctx, "history articles", http.MethodGet, path, nil, nil, &reply); err != nil {
		return nil, err
	}
	return reply.Articles, nil
}

func (c *Client) SemanticSearch(ctx context.Context, req SearchRequest) (*SemanticResult, error) {
	var reply SemanticResult
	if err := c.do(ctx, "semantic search", http.MethodPost, "/api/semantic-search", nil, req, &reply); err != nil {
		return nil, err
	}
	if reply.Found == 0 && len(reply.Articles) > 0 {
		reply.Found = len(reply.Articles)
	}
	return &reply, nil
}

func (c *Client) History(ctx context.Context, page int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	var reply HistoryPage
	query := url.Values{"page": {strconv.Itoa(page)}}
	if err := c.do(ctx, "list history", http.MethodGet, "/api/search-history", query, nil, &reply); err != nil {
		return nil, err
	}
	if reply.Page == 0 {
		reply.Page = page
	}
	return &reply, nil
}

// DeleteHistory removes a record and its articles. The returned string is
// the backend's confirmation message.
func (c *Client) DeleteHistory(ctx context.Context, historyID int64) (string, error) {
	return c.ack(ctx, "delete history", http.MethodDelete, fmt.Sprintf("/api/search-history/%d", historyID))
}

func (c *Client) ClearAll(ctx context.Context) (string, error) {
	return c.ack(ctx, "clear database", http.MethodPost, "/api/clear-db")
}

func (c *Client) Statistics(ctx context.Context) (*Statistics, error) {
	var reply Statistics
	if err := c.do(ctx, "statistics", http.MethodGet, "/api/statistics", nil, nil, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Package airtable is a thin REST client for one Airtable table.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.airtable.com/v0"

// Record is one table row as Airtable returns it.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

type RecordList struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// APIError is a non-2xx response from Airtable.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("airtable: status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithBaseURL overrides the API root (tests point it at httptest).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithRateLimit sets requests per second; <= 0 disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func NewClient(baseID, table, token string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
	}
	root := defaultBaseURL
	for _, o := range opts {
		o(c)
	}
	if c.baseURL != "" {
		root = c.baseURL
	}
	c.baseURL = root + "/" + url.PathEscape(baseID) + "/" + url.PathEscape(table)
	return c
}

// ListRecords returns one page of rows. maxRecords <= 0 means the Airtable default.
func (c *Client) ListRecords(ctx context.Context, maxRecords int, view string) (*RecordList, error) {
	q := url.Values{}
	if maxRecords > 0 {
		q.Set("maxRecords", strconv.Itoa(maxRecords))
	}
	if view != "" {
		q.Set("view", view)
	}
	u := c.baseURL
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var out RecordList
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return &out, nil
}

// AllRecords follows offsets until the table is exhausted.
func (c *Client) AllRecords(ctx context.Context) ([]Record, error) {
	var all []Record
	offset := ""
	for {
		u := c.baseURL
		if offset != "" {
			u += "?" + url.Values{"offset": {offset}}.Encode()
		}
		var page RecordList
		if err := c.do(ctx, http.MethodGet, u, nil, &page); err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		all = append(all, page.Records...)
		if page.Offset == "" {
			return all, nil
		}
		offset = page.Offset
	}
}

func (c *Client) CreateRecord(ctx context.Context, fields map[string]any) (*Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodPost, c.baseURL, map[string]any{"fields": fields}, &out); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	return &out, nil
}

// UpdateRecord patches only the given fields.
func (c *Client) UpdateRecord(ctx context.Context, recordID string, fields map[string]any) (*Record, error) {
	if recordID == "" {
		return nil, fmt.Errorf("update record: empty record id")
	}
	var out Record
	u := c.baseURL + "/" + url.PathEscape(recordID)
	if err := c.do(ctx, http.MethodPatch, u, map[string]any{"fields": fields}, &out); err != nil {
		return nil, fmt.Errorf("update record %s: %w", recordID, err)
	}
	return &out, nil
}

func (c *Client) DeleteRecord(ctx context.Context, recordID string) (*DeleteResult, error) {
	if recordID == "" {
		return nil, fmt.Errorf("delete record: empty record id")
	}
	var out DeleteResult
	u := c.baseURL + "/" + url.PathEscape(recordID)
	if err := c.do(ctx, http.MethodDelete, u, nil, &out); err != nil {
		return nil, fmt.Errorf("delete record %s: %w", recordID, err)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, u string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

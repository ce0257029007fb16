package backend

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
	"sync"

	"go.uber.org/zap"
)

// Client talks to the hosted backend's table REST API. It carries the
// project's anon key on every request and the user's access token once a
// session exists. Domain services layer query shapes on top of it; the
// client itself holds no cross-call state beyond the session.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	logger  *zap.Logger

	mu      sync.RWMutex
	session *Session
}

// NewClient creates a backend client for the given project URL and anon key.
func NewClient(baseURL, anonKey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    &http.Client{},
		logger:  logger,
	}
}

// Filter is a single column predicate, e.g. {Column: "room_id", Op: "eq", Value: "42"}.
type Filter struct {
	Column string
	Op     string
	Value  string
}

// Eq builds an equality filter.
func Eq(column, value string) Filter {
	return Filter{Column: column, Op: "eq", Value: value}
}

// QueryOptions shape a table read.
type QueryOptions struct {
	Select  string
	Filters []Filter
	Order   string // e.g. "created_at.desc"
	Limit   int
	Offset  int
}

func (o QueryOptions) encode() url.Values {
	v := url.Values{}
	if o.Select != "" {
		v.Set("select", o.Select)
	}
	for _, f := range o.Filters {
		v.Set(f.Column, f.Op+"."+f.Value)
	}
	if o.Order != "" {
		v.Set("order", o.Order)
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		v.Set("offset", strconv.Itoa(o.Offset))
	}
	return v
}

// Query reads rows from a table. The caller decodes each row into its own
// result struct; rows with unexpected shapes surface as decode errors at the
// service boundary instead of propagating loosely-typed values upward.
func (c *Client) Query(ctx context.Context, table string, opts QueryOptions) ([]json.RawMessage, error) {
	endpoint := c.baseURL + "/rest/v1/" + table + "?" + opts.encode().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("query %s: decode rows: %w", table, err)
	}
	return rows, nil
}

// Insert writes a row and returns the stored representation.
func (c *Client) Insert(ctx context.Context, table string, row any) (json.RawMessage, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	endpoint := c.baseURL + "/rest/v1/" + table
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return firstRow(body)
}

// Update mutates rows matching the filters and returns the updated rows.
func (c *Client) Update(ctx context.Context, table string, filters []Filter, patch any) ([]json.RawMessage, error) {
	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	opts := QueryOptions{Filters: filters}
	endpoint := c.baseURL + "/rest/v1/" + table + "?" + opts.encode().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("update %s: decode rows: %w", table, err)
	}
	return rows, nil
}

// Delete removes rows matching the filters.
func (c *Client) Delete(ctx context.Context, table string, filters []Filter) error {
	opts := QueryOptions{Filters: filters}
	endpoint := c.baseURL + "/rest/v1/" + table + "?" + opts.encode().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	if _, err := c.do(req); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// do executes a request with auth headers and maps non-2xx responses to APIError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	if s := c.CurrentSession(); s != nil {
		req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		_ = json.Unmarshal(body, apiErr)
		return nil, apiErr
	}
	return body, nil
}

// firstRow unwraps the single-element array the table API returns for inserts.
func firstRow(body []byte) (json.RawMessage, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		// Some endpoints return a bare object.
		return json.RawMessage(body), nil
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty representation in response")
	}
	return rows[0], nil
}

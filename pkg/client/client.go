// Package client is a Go client for the vizlaunch HTTP API.
package client

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
	"time"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/transport"
)

// maxErrorBody bounds how much of an unparseable error body is kept.
const maxErrorBody = 4096

// Client calls a vizlaunch server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Executions may run for minutes; the server enforces the real limit.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Launch runs a snippet and returns its visualization. Server-side
// failures are returned as *api.APIError.
func (c *Client) Launch(ctx context.Context, req *api.LaunchRequest) (*api.LaunchResponse, error) {
	var resp api.LaunchResponse
	if err := c.do(ctx, http.MethodPost, "/launch-container", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Languages lists the languages the server accepts.
func (c *Client) Languages(ctx context.Context) ([]api.LanguageInfo, error) {
	var list api.LanguageList
	if err := c.do(ctx, http.MethodGet, "/v1/languages", nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// GetExecution fetches one execution record.
func (c *Client) GetExecution(ctx context.Context, id string) (*api.Execution, error) {
	var exec api.Execution
	if err := c.do(ctx, http.MethodGet, "/v1/executions/"+url.PathEscape(id), nil, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// ListExecutions fetches a page of the execution history.
func (c *Client) ListExecutions(ctx context.Context, opts transport.ListOptions) (*transport.ExecutionList, error) {
	q := url.Values{}
	if opts.After != "" {
		q.Set("after", opts.After)
	}
	if opts.Before != "" {
		q.Set("before", opts.Before)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Order != "" {
		q.Set("order", opts.Order)
	}
	path := "/v1/executions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list transport.ExecutionList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Cancel stops a running execution, or deletes the record of a finished one.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/executions/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError turns an error response into an *api.APIError. Bodies that
// are not in the error format keep their text and get a type derived from
// the status code.
func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}

	var er api.ErrorResponse
	if json.Unmarshal(data, &er) == nil && er.Error != nil && er.Error.Message != "" {
		if er.Error.Type == api.ErrorTypeServerError {
			// Bodies without a type decode as server_error; trust the status.
			er.Error.Type = typeFromStatus(resp.StatusCode)
		}
		return er.Error
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &api.APIError{
		Type:    typeFromStatus(resp.StatusCode),
		Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg),
	}
}

func typeFromStatus(code int) api.ErrorType {
	switch code {
	case http.StatusUnauthorized:
		return api.ErrorTypeAuthentication
	case http.StatusForbidden:
		return api.ErrorTypePermission
	case http.StatusNotFound:
		return api.ErrorTypeNotFound
	case http.StatusTooManyRequests:
		return api.ErrorTypeTooManyRequests
	case http.StatusServiceUnavailable:
		return api.ErrorTypeUnavailable
	case http.StatusGatewayTimeout:
		return api.ErrorTypeTimeout
	case transport.StatusClientClosedRequest:
		return api.ErrorTypeCancelled
	}
	if code >= 400 && code < 500 {
		return api.ErrorTypeInvalidRequest
	}
	return api.ErrorTypeServerError
}

// IsType reports whether err is an *api.APIError of type t.
func IsType(err error, t api.ErrorType) bool {
	var apiErr *api.APIError
	return errors.As(err, &apiErr) && apiErr.Type == t
}

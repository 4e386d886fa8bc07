package client

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

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/presence"
	"github.com/alfredjeanlab/studiodesk/internal/query"
)

// Scope headers understood by the server.
const (
	headerWorkspace  = "X-Workspace-ID"
	headerUser       = "X-User-ID"
	headerRole       = "X-Role"
	headerFreelancer = "X-Freelancer-ID"
)

// HTTPClient implements StudioClient using the studio HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ StudioClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Queries ---

// Fetch executes q on the server.
func (c *HTTPClient) Fetch(ctx context.Context, q query.Query) (*query.Page, error) {
	var page query.Page
	if err := c.doJSON(ctx, http.MethodPost, "/v1/query", nil, q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Pluck returns the distinct values of column across rows matching q.
func (c *HTTPClient) Pluck(ctx context.Context, q query.Query, column string) ([]string, error) {
	body := map[string]any{"query": q, "column": column}
	var resp struct {
		Values []string `json:"values"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/pluck", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// --- Lists ---

// List fetches one page of the named list as seen by scope.
func (c *HTTPClient) List(ctx context.Context, scope model.Scope, req *ListRequest) (*ListResponse, error) {
	q := url.Values{}
	if req.Search != "" {
		q.Set("search", req.Search)
	}
	if len(req.Filters) > 0 {
		q.Set("filter", strings.Join(req.Filters, ","))
	}
	if req.Sort != "" {
		q.Set("sort", req.Sort)
	}
	if req.Desc != nil {
		q.Set("desc", strconv.FormatBool(*req.Desc))
	}
	if req.Page > 0 {
		q.Set("page", strconv.Itoa(req.Page))
	}
	if req.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(req.PageSize))
	}

	path := "/v1/lists/" + url.PathEscape(req.Entity)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListResponse
	if err := c.doJSON(ctx, http.MethodGet, path, scopeHeaders(scope), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Lists returns the descriptors of every list the server knows.
func (c *HTTPClient) Lists(ctx context.Context) ([]ListDescriptor, error) {
	var resp struct {
		Lists []ListDescriptor `json:"lists"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/lists", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Lists, nil
}

// --- Rows ---

// Insert creates a row in table for workspaceID.
func (c *HTTPClient) Insert(ctx context.Context, table model.Table, workspaceID string, row model.Row) (model.Row, error) {
	var created model.Row
	path := "/v1/tables/" + url.PathEscape(string(table)) + "/rows"
	if err := c.doJSON(ctx, http.MethodPost, path, workspaceHeader(workspaceID), row, &created); err != nil {
		return nil, err
	}
	return created, nil
}

// Update patches the row with the given id.
func (c *HTTPClient) Update(ctx context.Context, table model.Table, workspaceID, id string, patch model.Row) (model.Row, error) {
	var updated model.Row
	if err := c.doJSON(ctx, http.MethodPatch, rowPath(table, id), workspaceHeader(workspaceID), patch, &updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the row with the given id.
func (c *HTTPClient) Delete(ctx context.Context, table model.Table, workspaceID, id string) error {
	return c.doJSON(ctx, http.MethodDelete, rowPath(table, id), workspaceHeader(workspaceID), nil, nil)
}

func rowPath(table model.Table, id string) string {
	return "/v1/tables/" + url.PathEscape(string(table)) + "/rows/" + url.PathEscape(id)
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Presence returns who is watching workspaceID's change stream.
func (c *HTTPClient) Presence(ctx context.Context, workspaceID string) ([]presence.Viewer, error) {
	var resp struct {
		Viewers []presence.Viewer `json:"viewers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/presence", workspaceHeader(workspaceID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Viewers, nil
}

// --- internal helpers ---

func workspaceHeader(workspaceID string) http.Header {
	h := http.Header{}
	h.Set(headerWorkspace, workspaceID)
	return h
}

func scopeHeaders(scope model.Scope) http.Header {
	h := workspaceHeader(scope.WorkspaceID)
	if scope.UserID != "" {
		h.Set(headerUser, scope.UserID)
	}
	if scope.Role != "" {
		h.Set(headerRole, string(scope.Role))
	}
	if scope.FreelancerID != "" {
		h.Set(headerFreelancer, scope.FreelancerID)
	}
	return h
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, header http.Header, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content — success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

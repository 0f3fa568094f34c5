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
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/bindings"
	"github.com/alfredjeanlab/seatcheck/internal/commit"
	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/presence"
)

// HTTPClient implements Client using the seatcheck HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Live session ---

func (c *HTTPClient) GetSession(ctx context.Context) (*SessionInfo, error) {
	var resp SessionInfo
	if err := c.doJSON(ctx, http.MethodGet, "/v1/session", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetStates(ctx context.Context) (*StatesResponse, error) {
	var resp StatesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/states", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Override(ctx context.Context, studentID string, cl model.Classification, actor string) (*StudentRow, error) {
	body := map[string]string{
		"classification": string(cl),
		"actor":          actor,
	}
	var row StudentRow
	if err := c.doJSON(ctx, http.MethodPost, "/v1/students/"+url.PathEscape(studentID)+"/override", body, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

func (c *HTTPClient) Submit(ctx context.Context, req commit.SubmitRequest) (*commit.Result, error) {
	var res commit.Result
	if err := c.doJSON(ctx, http.MethodPost, "/v1/submit", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) GetStats(ctx context.Context, req *StatsRequest) (*StatsResponse, error) {
	q := url.Values{}
	if req != nil {
		setIf(q, "session_id", req.SessionID)
		setIf(q, "date", req.Date)
		setIf(q, "submitted_by", req.SubmittedBy)
	}
	var resp StatsResponse
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/v1/stats", q), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Bindings ---

func (c *HTTPClient) ListBindings(ctx context.Context) ([]bindings.Binding, error) {
	var resp struct {
		Bindings []bindings.Binding `json:"bindings"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/bindings", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Bindings, nil
}

func (c *HTTPClient) Bind(ctx context.Context, sensorID, studentID string, sessionScoped bool) (*bindings.Binding, error) {
	body := map[string]any{
		"student_id":     studentID,
		"session_scoped": sessionScoped,
	}
	var b bindings.Binding
	if err := c.doJSON(ctx, http.MethodPut, "/v1/bindings/"+url.PathEscape(sensorID), body, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *HTTPClient) Unbind(ctx context.Context, sensorID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/bindings/"+url.PathEscape(sensorID), nil, nil)
}

// --- Devices ---

func (c *HTTPClient) EmitTap(ctx context.Context, req *EmitTapRequest) (string, error) {
	return c.emit(ctx, "/v1/events/tap", req)
}

func (c *HTTPClient) EmitWeight(ctx context.Context, req *EmitWeightRequest) (string, error) {
	return c.emit(ctx, "/v1/events/weight", req)
}

func (c *HTTPClient) emit(ctx context.Context, path string, body any) (string, error) {
	var resp struct {
		Topic string `json:"topic"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	return resp.Topic, nil
}

func (c *HTTPClient) ListDevices(ctx context.Context, silentOnly bool) ([]presence.Entry, error) {
	path := "/v1/devices"
	if silentOnly {
		path += "?silent=true"
	}
	var resp struct {
		Devices []presence.Entry `json:"devices"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// --- Records ---

func (c *HTTPClient) ListRecords(ctx context.Context, req *RecordsRequest) ([]*model.AttendanceRecord, error) {
	q := url.Values{}
	if req != nil {
		setIf(q, "session_id", req.SessionID)
		setIf(q, "date", req.Date)
		setIf(q, "submitted_by", req.SubmittedBy)
		if req.Since != nil {
			q.Set("since", req.Since.UTC().Format(time.RFC3339))
		}
		if req.Limit > 0 {
			q.Set("limit", strconv.Itoa(req.Limit))
		}
	}
	var resp struct {
		Records []*model.AttendanceRecord `json:"records"`
	}
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/v1/records", q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string

	// Existing is the number of records already committed, set when a
	// submit is refused as a duplicate.
	Existing int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsDuplicate reports whether the error is a refused duplicate submit.
func (e *APIError) IsDuplicate() bool {
	return e.StatusCode == http.StatusConflict && e.Existing > 0
}

func setIf(q url.Values, key, val string) {
	if val != "" {
		q.Set(key, val)
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) > 0 {
		return path + "?" + q.Encode()
	}
	return path
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error    string `json:"error"`
			Existing int    `json:"existing"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Existing: errResp.Existing}
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

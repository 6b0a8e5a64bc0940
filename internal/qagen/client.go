package qagen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BatchAPI covers the batch-job operations the runner needs. Implemented by
// *Client; fakeable in tests.
type BatchAPI interface {
	StartBatch(ctx context.Context, fileIDs []string, qaCount int) (BatchStart, error)
	StartDetailedBatch(ctx context.Context, fileIDs []string, qaCount int) (BatchStart, error)
	BatchStatus(ctx context.Context, processID string) (ProcessStatus, error)
	DetailedBatchStatus(ctx context.Context, processID string) (DetailedStatus, error)
	SaveBatchRows(ctx context.Context, processID string, rows []ResultRow) (SaveSummary, error)
	SaveBatchResults(ctx context.Context, processID string, results map[string][]ResultRow) (SaveSummary, error)
}

var _ BatchAPI = (*Client)(nil)

// Client talks to the Q&A generator backend HTTP API.
//
// One HTTP call per method, no retries, no caching. Every operation takes an
// explicit file or process identifier; there is deliberately no "first file"
// guessing here.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	log       *zap.Logger
}

const (
	defaultBaseURL   = "http://127.0.0.1:8000"
	defaultUserAgent = "grantha/0.1"
	requestTimeout   = 30 * time.Second

	// rowsPageSize is the page size FetchAllRows walks with.
	rowsPageSize = 500
)

// NewClient builds a Client for the given base URL. An empty URL falls back
// to the local backend default. A nil logger disables client logging.
func NewClient(baseURL string, log *zap.Logger) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
		log:       log,
	}, nil
}

// Health checks backend reachability via GET /health.
func (c *Client) Health(ctx context.Context) error {
	var payload StatusMessage
	return c.get(ctx, "/health", &payload)
}

// ListFiles retrieves all uploaded files.
func (c *Client) ListFiles(ctx context.Context) ([]FileInfo, error) {
	var payload []FileInfo
	if err := c.get(ctx, "/files", &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// UploadFile uploads CSV content as a new file. Only .csv filenames are
// accepted; the backend enforces the same restriction with a 400.
func (c *Client) UploadFile(ctx context.Context, filename string, content io.Reader) (FileInfo, error) {
	if !strings.EqualFold(path.Ext(filename), ".csv") {
		return FileInfo{}, fmt.Errorf("only CSV files can be uploaded, got %q", filename)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return FileInfo{}, fmt.Errorf("create multipart form: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return FileInfo{}, fmt.Errorf("read upload content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return FileInfo{}, fmt.Errorf("finalize multipart form: %w", err)
	}

	var payload FileInfo
	rel := &url.URL{Path: "/files/upload"}
	if err := c.do(ctx, http.MethodPost, rel, &body, writer.FormDataContentType(), &payload); err != nil {
		return FileInfo{}, err
	}
	return payload, nil
}

// DeleteFile removes a file and its metadata.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	if fileID == "" {
		return fmt.Errorf("file id required")
	}
	rel := &url.URL{Path: "/files/" + fileID}
	var payload StatusMessage
	return c.do(ctx, http.MethodDelete, rel, nil, "", &payload)
}

// ListRowsQuery configures ListRows pagination and server-side filtering.
type ListRowsQuery struct {
	Skip  int
	Limit int
	Query string
}

// ListRows retrieves a page of row summaries for a file.
func (c *Client) ListRows(ctx context.Context, fileID string, query ListRowsQuery) ([]RowSummary, error) {
	if fileID == "" {
		return nil, fmt.Errorf("file id required")
	}
	values := url.Values{}
	if query.Skip > 0 {
		values.Set("skip", strconv.Itoa(query.Skip))
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	if q := strings.TrimSpace(query.Query); q != "" {
		values.Set("q", q)
	}
	rel := &url.URL{Path: "/files/" + fileID + "/rows", RawQuery: values.Encode()}
	var payload []RowSummary
	if err := c.do(ctx, http.MethodGet, rel, nil, "", &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchAllRows pages through ListRows until the file is exhausted.
func (c *Client) FetchAllRows(ctx context.Context, fileID string) ([]RowSummary, error) {
	var all []RowSummary
	for skip := 0; ; skip += rowsPageSize {
		page, err := c.ListRows(ctx, fileID, ListRowsQuery{Skip: skip, Limit: rowsPageSize})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < rowsPageSize {
			return all, nil
		}
	}
}

// GetRow retrieves one full row record.
func (c *Client) GetRow(ctx context.Context, fileID string, idx int) (RowDetail, error) {
	if fileID == "" {
		return RowDetail{}, fmt.Errorf("file id required")
	}
	rel := &url.URL{Path: "/files/" + fileID + "/row/" + strconv.Itoa(idx)}
	var payload RowDetail
	if err := c.do(ctx, http.MethodGet, rel, nil, "", &payload); err != nil {
		return RowDetail{}, err
	}
	return payload, nil
}

// GenerateRow asks the backend to generate qaCount Q&A sets for a row.
func (c *Client) GenerateRow(ctx context.Context, fileID string, idx, qaCount int) (GeneratedQA, error) {
	if fileID == "" {
		return GeneratedQA{}, fmt.Errorf("file id required")
	}
	rel := &url.URL{Path: "/files/" + fileID + "/generate/" + strconv.Itoa(idx)}
	body := struct {
		QACount int `json:"qa_count"`
	}{QACount: qaCount}
	var payload GeneratedQA
	if err := c.doJSON(ctx, http.MethodPost, rel, body, &payload); err != nil {
		return GeneratedQA{}, err
	}
	return payload, nil
}

// SaveRow persists a row's source fields and selected Q&A arrays.
func (c *Client) SaveRow(ctx context.Context, fileID string, idx int, payload SaveRowPayload) error {
	if fileID == "" {
		return fmt.Errorf("file id required")
	}
	rel := &url.URL{Path: "/files/" + fileID + "/save/" + strconv.Itoa(idx)}
	var resp StatusMessage
	return c.doJSON(ctx, http.MethodPost, rel, payload, &resp)
}

// EnsureHeaders guarantees the file's storage has columns for qaCount Q&A
// sets per language.
func (c *Client) EnsureHeaders(ctx context.Context, fileID string, qaCount int) error {
	if fileID == "" {
		return fmt.Errorf("file id required")
	}
	rel := &url.URL{Path: "/files/" + fileID + "/ensure_headers/" + strconv.Itoa(qaCount)}
	var resp StatusMessage
	return c.do(ctx, http.MethodPost, rel, nil, "", &resp)
}

// DownloadFile streams the file's CSV export into w and returns the number
// of bytes written.
func (c *Client) DownloadFile(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	if fileID == "" {
		return 0, fmt.Errorf("file id required")
	}
	rel := &url.URL{Path: "/files/" + fileID + "/download"}
	req, err := c.newRequest(ctx, http.MethodGet, rel, nil, "")
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return 0, c.statusError(rel, resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download file: %w", err)
	}
	return n, nil
}

// StartBatch starts a simple batch job over the given files.
func (c *Client) StartBatch(ctx context.Context, fileIDs []string, qaCount int) (BatchStart, error) {
	return c.startBatch(ctx, "/process/batch", fileIDs, qaCount)
}

// StartDetailedBatch starts a batch job with detailed progress tracking.
func (c *Client) StartDetailedBatch(ctx context.Context, fileIDs []string, qaCount int) (BatchStart, error) {
	return c.startBatch(ctx, "/process/batch/detailed", fileIDs, qaCount)
}

func (c *Client) startBatch(ctx context.Context, endpoint string, fileIDs []string, qaCount int) (BatchStart, error) {
	body := struct {
		FileIDs []string `json:"file_ids"`
		QACount int      `json:"qa_count"`
	}{FileIDs: fileIDs, QACount: qaCount}
	rel := &url.URL{Path: endpoint}
	var payload BatchStart
	if err := c.doJSON(ctx, http.MethodPost, rel, body, &payload); err != nil {
		return BatchStart{}, err
	}
	return payload, nil
}

// BatchStatus retrieves the simple batch job status.
func (c *Client) BatchStatus(ctx context.Context, processID string) (ProcessStatus, error) {
	if processID == "" {
		return ProcessStatus{}, fmt.Errorf("process id required")
	}
	var payload ProcessStatus
	if err := c.get(ctx, "/process/status/"+processID, &payload); err != nil {
		return ProcessStatus{}, err
	}
	return payload, nil
}

// DetailedBatchStatus retrieves the detailed batch job status.
func (c *Client) DetailedBatchStatus(ctx context.Context, processID string) (DetailedStatus, error) {
	if processID == "" {
		return DetailedStatus{}, fmt.Errorf("process id required")
	}
	var payload DetailedStatus
	if err := c.get(ctx, "/process/detailed/status/"+processID, &payload); err != nil {
		return DetailedStatus{}, err
	}
	return payload, nil
}

// SaveBatchRows posts the primary save shape: a flattened row list plus the
// job identifier.
func (c *Client) SaveBatchRows(ctx context.Context, processID string, rows []ResultRow) (SaveSummary, error) {
	if processID == "" {
		return SaveSummary{}, fmt.Errorf("process id required")
	}
	body := struct {
		ProcessID string      `json:"process_id"`
		Rows      []ResultRow `json:"rows"`
	}{ProcessID: processID, Rows: rows}
	rel := &url.URL{Path: "/process/save"}
	var payload SaveSummary
	if err := c.doJSON(ctx, http.MethodPost, rel, body, &payload); err != nil {
		return SaveSummary{}, err
	}
	return payload, nil
}

// SaveBatchResults posts the legacy per-job save shape: a map of file
// identifier to result rows under /process/save/{id}.
func (c *Client) SaveBatchResults(ctx context.Context, processID string, results map[string][]ResultRow) (SaveSummary, error) {
	if processID == "" {
		return SaveSummary{}, fmt.Errorf("process id required")
	}
	rel := &url.URL{Path: "/process/save/" + processID}
	var payload SaveSummary
	if err := c.doJSON(ctx, http.MethodPost, rel, results, &payload); err != nil {
		return SaveSummary{}, err
	}
	return payload, nil
}

func (c *Client) get(ctx context.Context, p string, dest any) error {
	rel := &url.URL{Path: p}
	return c.do(ctx, http.MethodGet, rel, nil, "", dest)
}

func (c *Client) doJSON(ctx context.Context, method string, rel *url.URL, body, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return c.do(ctx, method, rel, bytes.NewReader(encoded), "application/json", dest)
}

func (c *Client) do(ctx context.Context, method string, rel *url.URL, body io.Reader, contentType string, dest any) error {
	req, err := c.newRequest(ctx, method, rel, body, contentType)
	if err != nil {
		return err
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("method", method),
			zap.String("path", rel.Path),
			zap.Error(err))
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug("request complete",
		zap.String("method", method),
		zap.String("path", rel.Path),
		zap.String("request_id", req.Header.Get("X-Request-ID")),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))

	if resp.StatusCode >= 400 {
		return c.statusError(rel, resp)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method string, rel *url.URL, body io.Reader, contentType string) (*http.Request, error) {
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// statusError builds the error for a non-2xx response, including the
// backend's {"detail": ...} message when one is present.
func (c *Client) statusError(rel *url.URL, resp *http.Response) error {
	detail := readErrorDetail(resp.Body)
	if detail != "" {
		return fmt.Errorf("api %s returned status %d: %s", rel.Path, resp.StatusCode, detail)
	}
	return fmt.Errorf("api %s returned status %d", rel.Path, resp.StatusCode)
}

func readErrorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Detail)
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", raw, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

package qagen

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.String() != defaultBaseURL {
		t.Fatalf("url = %q, want %q", u.String(), defaultBaseURL)
	}

	u, err = parseBaseURL("example.com:9000")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" || u.Host != "example.com:9000" {
		t.Fatalf("url = %q, want http scheme added", u.String())
	}

	u, err = parseBaseURL("https://example.com/base?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		t.Fatalf("url not normalized: %q", u.String())
	}
}

func TestClient_FileEndpoints(t *testing.T) {
	t.Parallel()

	var gotUpload struct {
		filename string
		content  string
	}
	var gotRowsQuery map[string]string
	var gotRequestID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/files" && r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode([]FileInfo{
				{FileID: "f1", Filename: "sample.csv", RowCount: 10, ProcessedCount: 0, Status: FileStatusPending},
			})
		case r.URL.Path == "/files/upload":
			file, header, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(file)
			gotUpload.filename = header.Filename
			gotUpload.content = string(data)
			_ = json.NewEncoder(w).Encode(FileInfo{FileID: "new", Filename: header.Filename, RowCount: 10, Status: FileStatusPending})
		case r.URL.Path == "/files/f1" && r.Method == http.MethodDelete:
			_ = json.NewEncoder(w).Encode(StatusMessage{Status: "ok"})
		case r.URL.Path == "/files/f1/rows":
			q := r.URL.Query()
			gotRowsQuery = map[string]string{"skip": q.Get("skip"), "limit": q.Get("limit"), "q": q.Get("q")}
			_ = json.NewEncoder(w).Encode([]RowSummary{{ID: 0, Sanskrit: "श्लोकः", FileID: "f1"}})
		case r.URL.Path == "/files/f1/row/3":
			_, _ = w.Write([]byte(`{"id": 3, "file_id": "f1", "sanskrit": "x", "english": "y", "q_en_1": "q", "a_en_1": "a"}`))
		case r.URL.Path == "/files/f1/ensure_headers/4":
			_ = json.NewEncoder(w).Encode(StatusMessage{Status: "ok"})
		case r.URL.Path == "/files/f1/download":
			_, _ = w.Write([]byte("sanskrit,english\nx,y\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	files, err := c.ListFiles(ctx)
	if err != nil {
		t.Fatalf("ListFiles returned error: %v", err)
	}
	if len(files) != 1 || files[0].FileID != "f1" || files[0].RowCount != 10 {
		t.Fatalf("ListFiles = %#v", files)
	}
	if gotRequestID == "" {
		t.Fatal("request missing X-Request-ID header")
	}

	info, err := c.UploadFile(ctx, "sample.csv", strings.NewReader("sanskrit,english\n"))
	if err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}
	if info.FileID != "new" || gotUpload.filename != "sample.csv" || gotUpload.content != "sanskrit,english\n" {
		t.Fatalf("upload = %#v / %#v", info, gotUpload)
	}

	if err := c.DeleteFile(ctx, "f1"); err != nil {
		t.Fatalf("DeleteFile returned error: %v", err)
	}

	rows, err := c.ListRows(ctx, "f1", ListRowsQuery{Skip: 5, Limit: 20, Query: "धर्म"})
	if err != nil {
		t.Fatalf("ListRows returned error: %v", err)
	}
	if len(rows) != 1 || rows[0].FileID != "f1" {
		t.Fatalf("ListRows = %#v", rows)
	}
	if gotRowsQuery["skip"] != "5" || gotRowsQuery["limit"] != "20" || gotRowsQuery["q"] != "धर्म" {
		t.Fatalf("rows query = %v", gotRowsQuery)
	}

	detail, err := c.GetRow(ctx, "f1", 3)
	if err != nil {
		t.Fatalf("GetRow returned error: %v", err)
	}
	if detail.ID != 3 || len(detail.QA.QEn) != 1 || detail.QA.QEn[0] != "q" {
		t.Fatalf("GetRow = %#v", detail)
	}

	if err := c.EnsureHeaders(ctx, "f1", 4); err != nil {
		t.Fatalf("EnsureHeaders returned error: %v", err)
	}

	var buf bytes.Buffer
	n, err := c.DownloadFile(ctx, "f1", &buf)
	if err != nil {
		t.Fatalf("DownloadFile returned error: %v", err)
	}
	if n == 0 || !strings.HasPrefix(buf.String(), "sanskrit,english") {
		t.Fatalf("DownloadFile wrote %d bytes: %q", n, buf.String())
	}
}

func TestClient_UploadRejectsNonCSV(t *testing.T) {
	c, err := NewClient("127.0.0.1:1", nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = c.UploadFile(context.Background(), "notes.txt", strings.NewReader("x"))
	if err == nil || !strings.Contains(err.Error(), "CSV") {
		t.Fatalf("UploadFile error = %v, want CSV rejection", err)
	}
}

func TestClient_GenerateAndSaveRow(t *testing.T) {
	t.Parallel()

	var gotGenerate map[string]any
	var gotSave map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/files/f1/generate/2":
			_ = json.NewDecoder(r.Body).Decode(&gotGenerate)
			_ = json.NewEncoder(w).Encode(GeneratedQA{
				QEn: []string{"q1", "q2", "q3", "q4"},
				AEn: []string{"a1", "a2", "a3", "a4"},
				QHi: []string{"h1", "h2", "h3", "h4"},
				AHi: []string{"i1", "i2", "i3", "i4"},
				QSa: []string{"s1", "s2", "s3", "s4"},
				ASa: []string{"t1", "t2", "t3", "t4"},
			})
		case "/files/f1/save/2":
			_ = json.NewDecoder(r.Body).Decode(&gotSave)
			_ = json.NewEncoder(w).Encode(StatusMessage{Status: "ok"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	qa, err := c.GenerateRow(context.Background(), "f1", 2, 4)
	if err != nil {
		t.Fatalf("GenerateRow returned error: %v", err)
	}
	if qa.Count() != 4 {
		t.Fatalf("generated count = %d, want 4", qa.Count())
	}
	if gotGenerate["qa_count"] != float64(4) {
		t.Fatalf("generate body = %v, want qa_count=4", gotGenerate)
	}

	payload := BuildRowSave("x", "y", []string{"tag"}, qa, []int{0, 1, 3})
	if err := c.SaveRow(context.Background(), "f1", 2, payload); err != nil {
		t.Fatalf("SaveRow returned error: %v", err)
	}
	wireQEn, ok := gotSave["q_en"].([]any)
	if !ok || len(wireQEn) != 3 {
		t.Fatalf("save body q_en = %v, want 3 entries", gotSave["q_en"])
	}
	if wireQEn[2] != "q4" {
		t.Fatalf("save body q_en = %v, want index 2 excluded", wireQEn)
	}
}

func TestClient_FetchAllRowsPages(t *testing.T) {
	t.Parallel()

	total := rowsPageSize + 7
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		var page []RowSummary
		for i := skip; i < total && i < skip+rowsPageSize; i++ {
			page = append(page, RowSummary{ID: i, FileID: "f1"})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	rows, err := c.FetchAllRows(context.Background(), "f1")
	if err != nil {
		t.Fatalf("FetchAllRows returned error: %v", err)
	}
	if len(rows) != total {
		t.Fatalf("FetchAllRows = %d rows, want %d", len(rows), total)
	}
	if rows[total-1].ID != total-1 {
		t.Fatalf("last row id = %d, want %d", rows[total-1].ID, total-1)
	}
}

func TestClient_BatchEndpoints(t *testing.T) {
	t.Parallel()

	var gotStart map[string]any
	var gotSaveRows map[string]any
	var gotSaveResults map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/process/batch/detailed":
			_ = json.NewDecoder(r.Body).Decode(&gotStart)
			_ = json.NewEncoder(w).Encode(BatchStart{ProcessID: "p1", Status: "started", FileCount: 2, TotalRows: 10})
		case "/process/detailed/status/p1":
			_ = json.NewEncoder(w).Encode(DetailedStatus{
				ProcessID:     "p1",
				Status:        JobStatusRunning,
				TotalRows:     10,
				ProcessedRows: 5,
			})
		case "/process/status/p1":
			_ = json.NewEncoder(w).Encode(ProcessStatus{ProcessID: "p1", Status: JobStatusRunning})
		case "/process/save":
			_ = json.NewDecoder(r.Body).Decode(&gotSaveRows)
			_ = json.NewEncoder(w).Encode(SaveSummary{Status: "ok", Saved: 3})
		case "/process/save/p1":
			_ = json.NewDecoder(r.Body).Decode(&gotSaveResults)
			_ = json.NewEncoder(w).Encode(SaveSummary{Status: "ok", Saved: 2})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx := context.Background()

	start, err := c.StartDetailedBatch(ctx, []string{"f1", "f2"}, 4)
	if err != nil {
		t.Fatalf("StartDetailedBatch returned error: %v", err)
	}
	if start.ProcessID != "p1" || start.TotalRows != 10 {
		t.Fatalf("StartDetailedBatch = %#v", start)
	}
	ids, ok := gotStart["file_ids"].([]any)
	if !ok || len(ids) != 2 || gotStart["qa_count"] != float64(4) {
		t.Fatalf("start body = %v", gotStart)
	}

	status, err := c.DetailedBatchStatus(ctx, "p1")
	if err != nil {
		t.Fatalf("DetailedBatchStatus returned error: %v", err)
	}
	if status.ProcessedRows != 5 || status.TotalRows != 10 {
		t.Fatalf("DetailedBatchStatus = %#v", status)
	}

	simple, err := c.BatchStatus(ctx, "p1")
	if err != nil {
		t.Fatalf("BatchStatus returned error: %v", err)
	}
	if simple.ProcessID != "p1" {
		t.Fatalf("BatchStatus = %#v", simple)
	}

	summary, err := c.SaveBatchRows(ctx, "p1", []ResultRow{{ID: 0, FileID: "f1"}})
	if err != nil {
		t.Fatalf("SaveBatchRows returned error: %v", err)
	}
	if summary.Saved != 3 {
		t.Fatalf("SaveBatchRows = %#v", summary)
	}
	if gotSaveRows["process_id"] != "p1" {
		t.Fatalf("save rows body = %v", gotSaveRows)
	}

	_, err = c.SaveBatchResults(ctx, "p1", map[string][]ResultRow{"f1": {{ID: 0}}})
	if err != nil {
		t.Fatalf("SaveBatchResults returned error: %v", err)
	}
	if _, ok := gotSaveResults["f1"]; !ok {
		t.Fatalf("save results body = %v", gotSaveResults)
	}
}

func TestClient_ErrorsIncludeBackendDetail(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/missing/row/0":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail": "File not found"}`))
		case "/files":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("{not-json"))
		default:
			http.Error(w, "nope", http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = c.GetRow(context.Background(), "missing", 0)
	if err == nil || !strings.Contains(err.Error(), "status 404") || !strings.Contains(err.Error(), "File not found") {
		t.Fatalf("GetRow error = %v, want 404 with detail", err)
	}

	_, err = c.ListFiles(context.Background())
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("ListFiles error = %v, want decode error", err)
	}

	err = c.Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("Health error = %v, want status 500", err)
	}
}

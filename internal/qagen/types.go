package qagen

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// File lifecycle statuses reported by the backend.
const (
	FileStatusPending    = "pending"
	FileStatusProcessing = "processing"
	FileStatusCompleted  = "completed"
	FileStatusError      = "error"
)

// Batch job statuses reported by the backend.
const (
	JobStatusInitializing = "initializing"
	JobStatusRunning      = "running"
	JobStatusCompleted    = "completed"
	JobStatusError        = "error"
)

// Languages lists the generated Q&A languages in column order.
var Languages = []string{"en", "hi", "sa"}

// FileInfo mirrors one entry of GET /files.
type FileInfo struct {
	FileID         string `json:"file_id"`
	Filename       string `json:"filename"`
	CreatedAt      string `json:"created_at"`
	RowCount       int    `json:"row_count"`
	ProcessedCount int    `json:"processed_count"`
	Status         string `json:"status"`
}

// ParsedCreatedAt returns the creation timestamp as time.Time when possible.
func (f FileInfo) ParsedCreatedAt() time.Time {
	return parseTime(f.CreatedAt)
}

// RowSummary mirrors one entry of GET /files/{id}/rows. Sanskrit and English
// are server-truncated previews of the source text.
type RowSummary struct {
	ID       int    `json:"id"`
	Sanskrit string `json:"sanskrit"`
	English  string `json:"english"`
	FileID   string `json:"file_id"`
	Tags     string `json:"tags"`
}

// Matches reports whether the row matches a case-insensitive substring
// filter across Sanskrit text, English text, and tags. An empty filter
// matches every row.
func (r RowSummary) Matches(filter string) bool {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Sanskrit), filter) ||
		strings.Contains(strings.ToLower(r.English), filter) ||
		strings.Contains(strings.ToLower(r.Tags), filter)
}

// GeneratedQA carries per-language question/answer arrays. Index i across
// all six arrays forms one generated Q&A set.
type GeneratedQA struct {
	QEn []string `json:"q_en"`
	AEn []string `json:"a_en"`
	QHi []string `json:"q_hi"`
	AHi []string `json:"a_hi"`
	QSa []string `json:"q_sa"`
	ASa []string `json:"a_sa"`
}

// Count returns the number of generated Q&A sets, taking the longest
// language array so a ragged response still exposes every pair.
func (g GeneratedQA) Count() int {
	n := 0
	for _, arr := range [][]string{g.QEn, g.AEn, g.QHi, g.AHi, g.QSa, g.ASa} {
		if len(arr) > n {
			n = len(arr)
		}
	}
	return n
}

// IsEmpty reports whether no Q&A content is present.
func (g GeneratedQA) IsEmpty() bool {
	return g.Count() == 0
}

// Pair returns the question/answer at index i for a language code
// ("en", "hi", "sa"). Missing entries come back empty.
func (g GeneratedQA) Pair(lang string, i int) (question, answer string) {
	qs, as := g.ByLanguage(lang)
	if i >= 0 && i < len(qs) {
		question = qs[i]
	}
	if i >= 0 && i < len(as) {
		answer = as[i]
	}
	return question, answer
}

// ByLanguage returns the question and answer arrays for a language code.
func (g GeneratedQA) ByLanguage(lang string) (questions, answers []string) {
	switch lang {
	case "en":
		return g.QEn, g.AEn
	case "hi":
		return g.QHi, g.AHi
	case "sa":
		return g.QSa, g.ASa
	}
	return nil, nil
}

// SetPair overwrites the question/answer at index i for a language code.
// Out-of-range indices are ignored.
func (g *GeneratedQA) SetPair(lang string, i int, question, answer string) {
	set := func(arr []string, v string) {
		if i >= 0 && i < len(arr) {
			arr[i] = v
		}
	}
	switch lang {
	case "en":
		set(g.QEn, question)
		set(g.AEn, answer)
	case "hi":
		set(g.QHi, question)
		set(g.AHi, answer)
	case "sa":
		set(g.QSa, question)
		set(g.ASa, answer)
	}
}

// Select returns a copy containing only the sets at the given indices, in
// the order the indices are listed. Out-of-range indices are skipped.
func (g GeneratedQA) Select(indices []int) GeneratedQA {
	pick := func(arr []string) []string {
		out := make([]string, 0, len(indices))
		for _, i := range indices {
			if i >= 0 && i < len(arr) {
				out = append(out, arr[i])
			}
		}
		return out
	}
	return GeneratedQA{
		QEn: pick(g.QEn), AEn: pick(g.AEn),
		QHi: pick(g.QHi), AHi: pick(g.AHi),
		QSa: pick(g.QSa), ASa: pick(g.ASa),
	}
}

// RowDetail is the full record returned by GET /files/{id}/row/{idx}.
// The backend stores Q&A content in flat q_{lang}_{i}/a_{lang}_{i} CSV
// columns; UnmarshalJSON gathers those into per-language arrays.
type RowDetail struct {
	ID       int
	FileID   string
	Sanskrit string
	English  string
	Tags     string
	QA       GeneratedQA
}

// UnmarshalJSON decodes the flat row record, collecting the numbered Q&A
// columns in index order.
func (d *RowDetail) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.ID = intField(raw, "id")
	d.FileID = stringField(raw, "file_id")
	d.Sanskrit = stringField(raw, "sanskrit")
	d.English = stringField(raw, "english")
	d.Tags = stringField(raw, "tags")
	d.QA = gatherQAColumns(raw)
	return nil
}

// gatherQAColumns collects q_{lang}_{i} and a_{lang}_{i} keys into arrays.
// Column indices are 1-based; gaps become empty strings so the arrays stay
// aligned across languages.
func gatherQAColumns(raw map[string]any) GeneratedQA {
	max := 0
	for key := range raw {
		if _, _, idx, ok := parseQAColumn(key); ok && idx > max {
			max = idx
		}
	}
	if max == 0 {
		return GeneratedQA{}
	}

	arrays := map[string][]string{}
	for _, lang := range Languages {
		arrays["q_"+lang] = make([]string, max)
		arrays["a_"+lang] = make([]string, max)
	}
	for key, value := range raw {
		kind, lang, idx, ok := parseQAColumn(key)
		if !ok {
			continue
		}
		arrays[kind+"_"+lang][idx-1] = toString(value)
	}
	return GeneratedQA{
		QEn: arrays["q_en"], AEn: arrays["a_en"],
		QHi: arrays["q_hi"], AHi: arrays["a_hi"],
		QSa: arrays["q_sa"], ASa: arrays["a_sa"],
	}
}

// parseQAColumn splits a column name of the form q_en_3 or a_sa_1.
func parseQAColumn(key string) (kind, lang string, idx int, ok bool) {
	parts := strings.Split(key, "_")
	if len(parts) != 3 {
		return "", "", 0, false
	}
	if parts[0] != "q" && parts[0] != "a" {
		return "", "", 0, false
	}
	known := false
	for _, l := range Languages {
		if parts[1] == l {
			known = true
			break
		}
	}
	if !known {
		return "", "", 0, false
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n < 1 {
		return "", "", 0, false
	}
	return parts[0], parts[1], n, true
}

// SplitTags splits a comma-joined tag string into trimmed, non-empty tags.
func SplitTags(s string) []string {
	var tags []string
	for _, part := range strings.Split(s, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// JoinTags joins tags back into the comma-delimited storage form.
func JoinTags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return strings.Join(out, ",")
}

// SaveRowPayload is the body of POST /files/{id}/save/{idx}: source fields,
// rejoined tags, and the selected-only Q&A arrays.
type SaveRowPayload struct {
	Sanskrit string `json:"sanskrit"`
	English  string `json:"english"`
	Tags     string `json:"tags"`
	GeneratedQA
}

// BuildRowSave merges the current source fields, the tag list, and only the
// selected generated sets into one save payload. Selection indices are
// applied in ascending order.
func BuildRowSave(sanskrit, english string, tags []string, qa GeneratedQA, selected []int) SaveRowPayload {
	indices := append([]int(nil), selected...)
	sort.Ints(indices)
	return SaveRowPayload{
		Sanskrit:    sanskrit,
		English:     english,
		Tags:        JoinTags(tags),
		GeneratedQA: qa.Select(indices),
	}
}

// ResultRow is one generated row inside a batch job's results.
type ResultRow struct {
	ID       int    `json:"id"`
	Sanskrit string `json:"sanskrit"`
	English  string `json:"english"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename,omitempty"`
	Tags     string `json:"tags,omitempty"`
	GeneratedQA
}

// BatchStart mirrors the response of POST /process/batch[/detailed].
type BatchStart struct {
	ProcessID string `json:"process_id"`
	Status    string `json:"status"`
	FileCount int    `json:"file_count"`
	TotalRows int    `json:"total_rows,omitempty"`
}

// FileBatchProgress is the per-file progress entry of the simple status.
type FileBatchProgress struct {
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Status    string `json:"status"`
}

// ProcessStatus mirrors GET /process/status/{id}.
type ProcessStatus struct {
	ProcessID       string                       `json:"process_id"`
	Status          string                       `json:"status"`
	CurrentFile     string                       `json:"current_file"`
	CurrentRow      int                          `json:"current_row"`
	TotalRows       int                          `json:"total_rows"`
	TotalFiles      int                          `json:"total_files"`
	ProcessedFiles  int                          `json:"processed_files"`
	CurrentSanskrit string                       `json:"current_sanskrit"`
	ErrorMessage    string                       `json:"error_message"`
	Results         map[string][]ResultRow       `json:"results"`
	Progress        map[string]FileBatchProgress `json:"progress"`
}

// Terminal reports whether the job has finished, successfully or not.
func (s ProcessStatus) Terminal() bool {
	return s.Status == JobStatusCompleted || s.Status == JobStatusError
}

// FileProgress is the per-file progress entry of the detailed status.
type FileProgress struct {
	FileID          string `json:"file_id"`
	Filename        string `json:"filename"`
	CurrentRow      int    `json:"current_row"`
	TotalRows       int    `json:"total_rows"`
	CurrentSanskrit string `json:"current_sanskrit"`
	Status          string `json:"status"`
	ProcessedRows   int    `json:"processed_rows"`
	ErrorMessage    string `json:"error_message"`
}

// DetailedStatus mirrors GET /process/detailed/status/{id}.
type DetailedStatus struct {
	ProcessID        string                  `json:"process_id"`
	Status           string                  `json:"status"`
	CurrentOperation string                  `json:"current_operation"`
	TotalFiles       int                     `json:"total_files"`
	ProcessedFiles   int                     `json:"processed_files"`
	TotalRows        int                     `json:"total_rows"`
	ProcessedRows    int                     `json:"processed_rows"`
	FileProgress     map[string]FileProgress `json:"file_progress"`
	Results          map[string][]ResultRow  `json:"results"`
	StartTime        string                  `json:"start_time"`
	EstimatedDone    string                  `json:"estimated_completion"`
	QACount          int                     `json:"qa_count"`
}

// Terminal reports whether the job has finished, successfully or not.
func (s DetailedStatus) Terminal() bool {
	return s.Status == JobStatusCompleted || s.Status == JobStatusError
}

// FileIDs returns the job's file identifiers in a stable sorted order.
func (s DetailedStatus) FileIDs() []string {
	ids := make([]string, 0, len(s.FileProgress))
	for id := range s.FileProgress {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FirstFileWithResults returns the first file identifier (in stable order)
// that produced at least one result row.
func (s DetailedStatus) FirstFileWithResults() (string, bool) {
	for _, id := range s.FileIDs() {
		if len(s.Results[id]) > 0 {
			return id, true
		}
	}
	return "", false
}

// ParsedStartTime returns the job start timestamp as time.Time when possible.
func (s DetailedStatus) ParsedStartTime() time.Time {
	return parseTime(s.StartTime)
}

// SaveSummary mirrors the response of the batch save endpoints.
type SaveSummary struct {
	Status  string `json:"status"`
	Saved   int    `json:"saved"`
	Errors  int    `json:"errors"`
	Message string `json:"message,omitempty"`
}

// StatusMessage mirrors the small {status, message} acknowledgements.
type StatusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func stringField(raw map[string]any, key string) string {
	return toString(raw[key])
}

func intField(raw map[string]any, key string) int {
	switch v := raw[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// Package qagen provides an HTTP client for the Sanskrit Q&A generator
// backend API.
//
// The backend owns all authoritative state: CSV files and their rows,
// header-schema migration, the generation model, and batch-job execution.
// This package only issues one HTTP call per method and decodes the JSON
// body, with no retries and no caching; refresh cadence and retry policy
// are the caller's concern.
//
// # Endpoints
//
// File surface:
//
//   - GET    /files                                → ListFiles
//   - POST   /files/upload                         → UploadFile (multipart)
//   - DELETE /files/{file_id}                      → DeleteFile
//   - GET    /files/{file_id}/rows                 → ListRows / FetchAllRows
//   - GET    /files/{file_id}/row/{idx}            → GetRow
//   - POST   /files/{file_id}/generate/{idx}       → GenerateRow
//   - POST   /files/{file_id}/save/{idx}           → SaveRow
//   - POST   /files/{file_id}/ensure_headers/{n}   → EnsureHeaders
//   - GET    /files/{file_id}/download             → DownloadFile
//
// Batch surface:
//
//   - POST /process/batch                          → StartBatch
//   - POST /process/batch/detailed                 → StartDetailedBatch
//   - GET  /process/status/{id}                    → BatchStatus
//   - GET  /process/detailed/status/{id}           → DetailedBatchStatus
//   - POST /process/save                           → SaveBatchRows (primary shape)
//   - POST /process/save/{id}                      → SaveBatchResults (legacy shape)
//
// # Wire format notes
//
// Row records store generated content in flat q_{lang}_{i}/a_{lang}_{i}
// CSV columns (languages en, hi, sa; indices 1-based). RowDetail gathers
// those columns into the per-language arrays of GeneratedQA; save payloads
// go back out as arrays and are expanded into columns server-side.
//
// Every operation takes an explicit file or process identifier. The old
// frontend's "guess the first file" compatibility layer was not ported.
//
// Errors wrap the failing step; non-2xx responses include the backend's
// detail message when present, e.g. `api /files/x returned status 404:
// File not found`.
package qagen

// Package ui implements the grantha terminal interface with Bubble Tea.
//
// # Views
//
//   - Files: every uploaded CSV with row counts, per-file progress bars,
//     and status badges. Files are marked here for batch processing, and
//     upload/delete/download live here too.
//   - Rows: the rows of one file with a debounced substring filter across
//     Sanskrit text, translation, and tags.
//   - Editor: one row's text fields plus its generated Q&A pairs. Q&A
//     generation can be triggered manually or automatically after a pause
//     in typing; individual pairs are toggled before saving.
//   - Batch: a running multi-file job with overall and per-file progress,
//     elapsed/remaining time, and, once finished, per-file result tabs
//     where rows are selected and saved.
//
// # Data flow
//
// The file list arrives through the shared state.Store, refreshed by the
// background poller; the UI only ever reads snapshots. Batch status comes
// from the batch.Runner the same way. Everything else (rows, row detail,
// generation, saves) is fetched on demand via Bubble Tea commands, and
// every asynchronous response carries enough identity (file id, row id, or
// a sequence number) for stale responses to be dropped.
//
// Theme selection persists through the prefs package; three color themes
// are built in and cycled with T.
package ui

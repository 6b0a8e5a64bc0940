// Package app is the composition root for the grantha application.
//
// Run wires everything together and blocks until the user exits or the
// context is cancelled:
//
//  1. Load configuration from ~/.config/grantha/config.toml
//  2. Load user preferences (theme, default Q&A count)
//  3. Build the logger: no-op by default, file-backed in debug mode,
//     because the TUI owns the terminal
//  4. Initialize the HTTP client for the curation backend
//  5. Create the shared state.Store and the batch.Runner
//  6. Launch the background file-list poller
//  7. Start the TUI
//
// The poller refreshes the file list every two seconds. While the backend
// is unreachable it backs off exponentially (doubling per consecutive
// failure, capped at 30 seconds) and the store keeps serving the last good
// data so the UI can mark itself offline rather than going blank.
//
// Fatal errors, returned from Run, are limited to startup: unreadable
// config, logger setup, client construction. Poll failures after startup
// are recorded in the store and logged, never fatal.
package app

// Package state provides the thread-safe file-list store shared between
// refresh commands and the UI.
//
// The Store mediates between a producer (on-demand refreshes of GET /files)
// and a consumer (the render loop). Updates are atomic, reads return
// defensive copies, and a failed refresh keeps the previous file list while
// recording the error and bumping a consecutive-failure counter the header
// uses for its offline indicator.
//
// The backend remains the single source of truth; the snapshot is a
// read-mostly cache refreshed on demand (after uploads, deletes, saves, or
// an explicit refresh key), never optimistically mutated.
package state

// Package batch drives multi-file Q&A generation jobs: starting a job on
// the server, polling its status every two seconds until it reaches a
// terminal state, tracking which result rows the user has marked for
// keeping, and saving that selection back.
//
// The Runner owns at most one job at a time. Its poll loop is cancellable
// and sequence-guarded, so late responses from slow polls never clobber
// newer state, and a stopped or finished job is never polled again.
package batch

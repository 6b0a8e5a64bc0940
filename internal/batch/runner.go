package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grantha-tools/grantha/internal/qagen"
)

// DefaultPollInterval is the status poll cadence shared with the original
// frontend.
const DefaultPollInterval = 2 * time.Second

var (
	// ErrNoFilesSelected rejects starting a batch with an empty file set.
	ErrNoFilesSelected = errors.New("no files selected for batch processing")
	// ErrNoRowsSelected rejects saving with an empty row selection. Both
	// the simple and detailed flows enforce this.
	ErrNoRowsSelected = errors.New("no rows selected for saving")
	// ErrNoJob reports an operation against a runner with no job.
	ErrNoJob = errors.New("no batch job active")
)

// Variant selects which pair of batch endpoints a job uses.
type Variant int

const (
	// Simple uses /process/batch and /process/status.
	Simple Variant = iota
	// Detailed uses /process/batch/detailed and /process/detailed/status.
	Detailed
)

// JobSnapshot is the runner's view of the current job at a point in time.
type JobSnapshot struct {
	ProcessID string
	Variant   Variant
	Detailed  qagen.DetailedStatus
	Simple    qagen.ProcessStatus
	StartedAt time.Time
	LastPoll  time.Time
	LastError error
	Active    bool   // poll loop still observing the job
	Seq       uint64 // sequence number of the applied poll
}

// Status returns the variant-appropriate aggregate job status.
func (s JobSnapshot) Status() string {
	if s.Variant == Detailed {
		return s.Detailed.Status
	}
	return s.Simple.Status
}

// Terminal reports whether the observed job status is completed or error.
func (s JobSnapshot) Terminal() bool {
	if s.Variant == Detailed {
		return s.Detailed.Terminal()
	}
	return s.Simple.Terminal()
}

// Totals returns the processed and total row counts for the job.
func (s JobSnapshot) Totals() (processed, total int) {
	if s.Variant == Detailed {
		return s.Detailed.ProcessedRows, s.Detailed.TotalRows
	}
	return s.Simple.CurrentRow, s.Simple.TotalRows
}

// OverallPercent returns the overall completion percentage.
func (s JobSnapshot) OverallPercent() int {
	processed, total := s.Totals()
	return Percent(processed, total)
}

// Results returns the per-file result rows from the latest poll.
func (s JobSnapshot) Results() map[string][]qagen.ResultRow {
	if s.Variant == Detailed {
		return s.Detailed.Results
	}
	return s.Simple.Results
}

// Runner owns one server-side batch job at a time: it starts the job,
// polls its status on a fixed cadence as a cancellable periodic task, and
// saves the curated result selection.
//
// Every poll carries a monotonically increasing sequence number; a response
// is applied only when its sequence is newer than the last applied one and
// the job has not been stopped, so a slow in-flight poll can never
// overwrite fresher state. Once a terminal status (completed/error) is
// applied the loop stops exactly once and never restarts without a new
// Start. Stopping does not signal the server; the job keeps running
// unobserved.
type Runner struct {
	api      qagen.BatchAPI
	log      *zap.Logger
	interval time.Duration

	mu  sync.Mutex
	job *job
}

type job struct {
	processID  string
	variant    Variant
	startedAt  time.Time
	cancel     context.CancelFunc
	done       chan struct{}
	nextSeq    uint64
	appliedSeq uint64
	stopped    bool
	snap       JobSnapshot
}

// NewRunner builds a Runner. A nil logger disables logging; a non-positive
// interval uses the default 2 second cadence.
func NewRunner(api qagen.BatchAPI, log *zap.Logger, interval time.Duration) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Runner{api: api, log: log, interval: interval}
}

// Start validates the selection, starts a server-side job, and launches the
// poll loop. An already running job is stopped and discarded first; the
// poll loop lives until ctx is cancelled, Stop is called, or a terminal
// status arrives.
func (r *Runner) Start(ctx context.Context, variant Variant, fileIDs []string, qaCount int) (string, error) {
	if len(fileIDs) == 0 {
		return "", ErrNoFilesSelected
	}

	r.Stop()

	var start qagen.BatchStart
	var err error
	if variant == Detailed {
		start, err = r.api.StartDetailedBatch(ctx, fileIDs, qaCount)
	} else {
		start, err = r.api.StartBatch(ctx, fileIDs, qaCount)
	}
	if err != nil {
		return "", fmt.Errorf("start batch: %w", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	j := &job{
		processID: start.ProcessID,
		variant:   variant,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	j.snap = JobSnapshot{
		ProcessID: start.ProcessID,
		Variant:   variant,
		StartedAt: j.startedAt,
		Active:    true,
	}

	r.mu.Lock()
	r.job = j
	r.mu.Unlock()

	r.log.Info("batch started",
		zap.String("process_id", start.ProcessID),
		zap.Int("files", start.FileCount),
		zap.Int("total_rows", start.TotalRows))

	go r.poll(pollCtx, j)
	return start.ProcessID, nil
}

// Stop halts the poll loop without touching the server-side job. It is
// idempotent and safe to call with no job running.
func (r *Runner) Stop() {
	r.mu.Lock()
	j := r.job
	if j != nil && !j.stopped {
		j.stopped = true
		j.snap.Active = false
	}
	r.mu.Unlock()

	if j != nil {
		j.cancel()
	}
}

// Close stops the poll loop and discards all in-memory job state. Used when
// the batch view is dismissed; there is no resume.
func (r *Runner) Close() {
	r.Stop()
	r.mu.Lock()
	r.job = nil
	r.mu.Unlock()
}

// Snapshot returns the current job view, or false when no job exists.
func (r *Runner) Snapshot() (JobSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job == nil {
		return JobSnapshot{}, false
	}
	return r.job.snap, true
}

// Done returns a channel closed when the current job's poll loop exits.
// With no job running it returns an already closed channel.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return r.job.done
}

// SaveSelected persists the marked rows of the current job's results. The
// primary flattened-rows endpoint is tried first; on failure the legacy
// per-job shape is posted with the same process id and the raw results, and
// if that also fails the original error is returned.
func (r *Runner) SaveSelected(ctx context.Context, sel *Selection) (qagen.SaveSummary, error) {
	r.mu.Lock()
	j := r.job
	var snap JobSnapshot
	if j != nil {
		snap = j.snap
	}
	r.mu.Unlock()

	if j == nil {
		return qagen.SaveSummary{}, ErrNoJob
	}

	results := snap.Results()
	rows := sel.Gather(results)
	if len(rows) == 0 {
		return qagen.SaveSummary{}, ErrNoRowsSelected
	}

	summary, err := r.api.SaveBatchRows(ctx, snap.ProcessID, rows)
	if err == nil {
		r.log.Info("batch results saved",
			zap.String("process_id", snap.ProcessID),
			zap.Int("rows", len(rows)),
			zap.Int("saved", summary.Saved))
		return summary, nil
	}

	r.log.Warn("primary batch save failed, trying legacy shape",
		zap.String("process_id", snap.ProcessID),
		zap.Error(err))

	fallback, ferr := r.api.SaveBatchResults(ctx, snap.ProcessID, results)
	if ferr != nil {
		r.log.Error("legacy batch save failed",
			zap.String("process_id", snap.ProcessID),
			zap.Error(ferr))
		return qagen.SaveSummary{}, fmt.Errorf("save batch results: %w", err)
	}
	return fallback, nil
}

func (r *Runner) poll(ctx context.Context, j *job) {
	defer close(j.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if terminal := r.pollOnce(ctx, j); terminal {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce fetches the job status and applies it. It returns true when a
// terminal status was applied or the job was stopped underneath it.
func (r *Runner) pollOnce(ctx context.Context, j *job) bool {
	seq := r.takeSeq(j)

	if j.variant == Detailed {
		status, err := r.api.DetailedBatchStatus(ctx, j.processID)
		if err != nil {
			r.log.Warn("status poll failed", zap.String("process_id", j.processID), zap.Error(err))
			return r.applyDetailed(j, seq, nil, err)
		}
		return r.applyDetailed(j, seq, &status, nil)
	}

	status, err := r.api.BatchStatus(ctx, j.processID)
	if err != nil {
		r.log.Warn("status poll failed", zap.String("process_id", j.processID), zap.Error(err))
		return r.applySimple(j, seq, nil, err)
	}
	return r.applySimple(j, seq, &status, nil)
}

func (r *Runner) takeSeq(j *job) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	j.nextSeq++
	return j.nextSeq
}

// applyDetailed records a detailed poll result. Stale sequences and polls
// landing after Stop are dropped. Returns true when the loop must end.
func (r *Runner) applyDetailed(j *job, seq uint64, status *qagen.DetailedStatus, pollErr error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j.stopped {
		return true
	}
	if seq <= j.appliedSeq {
		return false
	}
	j.appliedSeq = seq
	j.snap.Seq = seq
	j.snap.LastPoll = time.Now()

	if pollErr != nil {
		j.snap.LastError = pollErr
		return false
	}
	j.snap.LastError = nil
	j.snap.Detailed = *status

	if status.Terminal() {
		j.stopped = true
		j.snap.Active = false
		return true
	}
	return false
}

// applySimple is applyDetailed for the simple status shape.
func (r *Runner) applySimple(j *job, seq uint64, status *qagen.ProcessStatus, pollErr error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j.stopped {
		return true
	}
	if seq <= j.appliedSeq {
		return false
	}
	j.appliedSeq = seq
	j.snap.Seq = seq
	j.snap.LastPoll = time.Now()

	if pollErr != nil {
		j.snap.LastError = pollErr
		return false
	}
	j.snap.LastError = nil
	j.snap.Simple = *status

	if status.Terminal() {
		j.stopped = true
		j.snap.Active = false
		return true
	}
	return false
}

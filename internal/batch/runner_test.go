package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/grantha-tools/grantha/internal/qagen"
)

type fakeBatchAPI struct {
	mu sync.Mutex

	startCalls  int
	lastFileIDs []string
	lastQACount int

	statusCalls      int
	detailedStatuses []qagen.DetailedStatus
	simpleStatuses   []qagen.ProcessStatus
	statusErr        error

	saveRowsErr  error
	savedID      string
	savedRows    []qagen.ResultRow
	legacyErr    error
	legacyCalled bool
	legacyID     string
	legacyRows   map[string][]qagen.ResultRow
}

func (f *fakeBatchAPI) StartBatch(_ context.Context, fileIDs []string, qaCount int) (qagen.BatchStart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.lastFileIDs = fileIDs
	f.lastQACount = qaCount
	return qagen.BatchStart{ProcessID: "proc-1", Status: qagen.JobStatusInitializing, FileCount: len(fileIDs)}, nil
}

func (f *fakeBatchAPI) StartDetailedBatch(ctx context.Context, fileIDs []string, qaCount int) (qagen.BatchStart, error) {
	return f.StartBatch(ctx, fileIDs, qaCount)
}

func (f *fakeBatchAPI) BatchStatus(_ context.Context, _ string) (qagen.ProcessStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return qagen.ProcessStatus{}, f.statusErr
	}
	i := f.statusCalls - 1
	if i >= len(f.simpleStatuses) {
		i = len(f.simpleStatuses) - 1
	}
	return f.simpleStatuses[i], nil
}

func (f *fakeBatchAPI) DetailedBatchStatus(_ context.Context, _ string) (qagen.DetailedStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return qagen.DetailedStatus{}, f.statusErr
	}
	i := f.statusCalls - 1
	if i >= len(f.detailedStatuses) {
		i = len(f.detailedStatuses) - 1
	}
	return f.detailedStatuses[i], nil
}

func (f *fakeBatchAPI) SaveBatchRows(_ context.Context, processID string, rows []qagen.ResultRow) (qagen.SaveSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveRowsErr != nil {
		return qagen.SaveSummary{}, f.saveRowsErr
	}
	f.savedID = processID
	f.savedRows = rows
	return qagen.SaveSummary{Status: "success", Saved: len(rows)}, nil
}

func (f *fakeBatchAPI) SaveBatchResults(_ context.Context, processID string, results map[string][]qagen.ResultRow) (qagen.SaveSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.legacyCalled = true
	f.legacyID = processID
	f.legacyRows = results
	if f.legacyErr != nil {
		return qagen.SaveSummary{}, f.legacyErr
	}
	total := 0
	for _, rows := range results {
		total += len(rows)
	}
	return qagen.SaveSummary{Status: "success", Saved: total}, nil
}

func (f *fakeBatchAPI) counts() (starts, statuses int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls, f.statusCalls
}

func waitDone(t *testing.T, r *Runner) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not stop in time")
	}
}

func TestStartRejectsEmptySelection(t *testing.T) {
	api := &fakeBatchAPI{}
	r := NewRunner(api, nil, time.Millisecond)

	if _, err := r.Start(context.Background(), Detailed, nil, 2); !errors.Is(err, ErrNoFilesSelected) {
		t.Fatalf("Start err = %v, want ErrNoFilesSelected", err)
	}
	if starts, _ := api.counts(); starts != 0 {
		t.Fatalf("start calls = %d, want 0", starts)
	}
}

func TestPollStopsOnTerminalStatus(t *testing.T) {
	api := &fakeBatchAPI{
		detailedStatuses: []qagen.DetailedStatus{
			{ProcessID: "proc-1", Status: qagen.JobStatusRunning, ProcessedRows: 2, TotalRows: 10},
			{ProcessID: "proc-1", Status: qagen.JobStatusCompleted, ProcessedRows: 10, TotalRows: 10},
		},
	}
	r := NewRunner(api, nil, 5*time.Millisecond)

	id, err := r.Start(context.Background(), Detailed, []string{"f1"}, 2)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if id != "proc-1" {
		t.Fatalf("process id = %q", id)
	}

	waitDone(t, r)

	snap, ok := r.Snapshot()
	if !ok {
		t.Fatal("Snapshot returned no job")
	}
	if !snap.Terminal() || snap.Active {
		t.Fatalf("snapshot terminal=%v active=%v, want terminal inactive", snap.Terminal(), snap.Active)
	}
	if got := snap.OverallPercent(); got != 100 {
		t.Fatalf("overall percent = %d, want 100", got)
	}

	_, before := api.counts()
	time.Sleep(30 * time.Millisecond)
	if _, after := api.counts(); after != before {
		t.Fatalf("polling continued after terminal status: %d -> %d", before, after)
	}
}

func TestSimpleVariantPolls(t *testing.T) {
	api := &fakeBatchAPI{
		simpleStatuses: []qagen.ProcessStatus{
			{ProcessID: "proc-1", Status: qagen.JobStatusCompleted, CurrentRow: 4, TotalRows: 4},
		},
	}
	r := NewRunner(api, nil, 5*time.Millisecond)

	if _, err := r.Start(context.Background(), Simple, []string{"f1", "f2"}, 3); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, r)

	snap, _ := r.Snapshot()
	if snap.Status() != qagen.JobStatusCompleted {
		t.Fatalf("status = %q", snap.Status())
	}
	if processed, total := snap.Totals(); processed != 4 || total != 4 {
		t.Fatalf("totals = %d/%d", processed, total)
	}
	if api.lastQACount != 3 {
		t.Fatalf("qa count = %d, want 3", api.lastQACount)
	}
}

func TestStopHaltsPolling(t *testing.T) {
	api := &fakeBatchAPI{
		detailedStatuses: []qagen.DetailedStatus{
			{ProcessID: "proc-1", Status: qagen.JobStatusRunning},
		},
	}
	r := NewRunner(api, nil, 5*time.Millisecond)

	if _, err := r.Start(context.Background(), Detailed, []string{"f1"}, 2); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		if _, statuses := api.counts(); statuses >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("never observed a status poll")
		}
		time.Sleep(time.Millisecond)
	}

	r.Stop()
	r.Stop() // idempotent
	waitDone(t, r)

	snap, ok := r.Snapshot()
	if !ok || snap.Active {
		t.Fatalf("snapshot ok=%v active=%v, want inactive job", ok, snap.Active)
	}

	_, before := api.counts()
	time.Sleep(30 * time.Millisecond)
	if _, after := api.counts(); after != before {
		t.Fatalf("polling continued after Stop: %d -> %d", before, after)
	}
}

func TestStaleSequenceDropped(t *testing.T) {
	r := NewRunner(&fakeBatchAPI{}, nil, time.Millisecond)
	j := &job{
		processID: "proc-1",
		variant:   Detailed,
		cancel:    func() {},
		done:      make(chan struct{}),
		snap:      JobSnapshot{ProcessID: "proc-1", Variant: Detailed, Active: true},
	}
	r.job = j

	fresh := qagen.DetailedStatus{Status: qagen.JobStatusRunning, ProcessedRows: 7, TotalRows: 10}
	stale := qagen.DetailedStatus{Status: qagen.JobStatusRunning, ProcessedRows: 2, TotalRows: 10}

	if r.applyDetailed(j, 2, &fresh, nil) {
		t.Fatal("running status should not end the loop")
	}
	if r.applyDetailed(j, 1, &stale, nil) {
		t.Fatal("stale apply should not end the loop")
	}

	snap, _ := r.Snapshot()
	if snap.Seq != 2 || snap.Detailed.ProcessedRows != 7 {
		t.Fatalf("stale poll overwrote state: seq=%d processed=%d", snap.Seq, snap.Detailed.ProcessedRows)
	}
}

func TestTerminalAppliesExactlyOnce(t *testing.T) {
	r := NewRunner(&fakeBatchAPI{}, nil, time.Millisecond)
	j := &job{
		processID: "proc-1",
		variant:   Detailed,
		cancel:    func() {},
		done:      make(chan struct{}),
		snap:      JobSnapshot{ProcessID: "proc-1", Variant: Detailed, Active: true},
	}
	r.job = j

	done := qagen.DetailedStatus{Status: qagen.JobStatusCompleted, ProcessedRows: 10, TotalRows: 10}
	late := qagen.DetailedStatus{Status: qagen.JobStatusRunning, ProcessedRows: 9, TotalRows: 10}

	if !r.applyDetailed(j, 1, &done, nil) {
		t.Fatal("terminal status should end the loop")
	}
	if !r.applyDetailed(j, 2, &late, nil) {
		t.Fatal("apply after stop should report the loop as ended")
	}

	snap, _ := r.Snapshot()
	if snap.Status() != qagen.JobStatusCompleted || snap.Active {
		t.Fatalf("late poll disturbed terminal state: status=%q active=%v", snap.Status(), snap.Active)
	}
}

func TestPollErrorKeepsJobAlive(t *testing.T) {
	r := NewRunner(&fakeBatchAPI{}, nil, time.Millisecond)
	j := &job{
		processID: "proc-1",
		variant:   Detailed,
		cancel:    func() {},
		done:      make(chan struct{}),
		snap:      JobSnapshot{ProcessID: "proc-1", Variant: Detailed, Active: true},
	}
	r.job = j

	running := qagen.DetailedStatus{Status: qagen.JobStatusRunning, ProcessedRows: 3, TotalRows: 10}
	r.applyDetailed(j, 1, &running, nil)

	pollErr := errors.New("connection refused")
	if r.applyDetailed(j, 2, nil, pollErr) {
		t.Fatal("poll error should not end the loop")
	}

	snap, _ := r.Snapshot()
	if snap.LastError == nil {
		t.Fatal("expected LastError to be recorded")
	}
	if snap.Detailed.ProcessedRows != 3 {
		t.Fatalf("poll error wiped progress: %d", snap.Detailed.ProcessedRows)
	}
	if !snap.Active {
		t.Fatal("job should remain active through transient poll errors")
	}
}

func resultFixture() map[string][]qagen.ResultRow {
	return map[string][]qagen.ResultRow{
		"f1": {
			{ID: 0, Sanskrit: "s0", FileID: "f1"},
			{ID: 1, Sanskrit: "s1", FileID: "f1"},
		},
		"f2": {
			{ID: 0, Sanskrit: "t0", FileID: "f2"},
		},
	}
}

func runnerWithResults(api *fakeBatchAPI) *Runner {
	r := NewRunner(api, nil, time.Millisecond)
	r.job = &job{
		processID: "proc-1",
		variant:   Detailed,
		cancel:    func() {},
		done:      make(chan struct{}),
		snap: JobSnapshot{
			ProcessID: "proc-1",
			Variant:   Detailed,
			Detailed:  qagen.DetailedStatus{Status: qagen.JobStatusCompleted, Results: resultFixture()},
		},
	}
	return r
}

func TestSaveSelectedNoJob(t *testing.T) {
	r := NewRunner(&fakeBatchAPI{}, nil, time.Millisecond)
	if _, err := r.SaveSelected(context.Background(), NewSelection()); !errors.Is(err, ErrNoJob) {
		t.Fatalf("err = %v, want ErrNoJob", err)
	}
}

func TestSaveSelectedRejectsEmptySelection(t *testing.T) {
	api := &fakeBatchAPI{}
	r := runnerWithResults(api)

	if _, err := r.SaveSelected(context.Background(), NewSelection()); !errors.Is(err, ErrNoRowsSelected) {
		t.Fatalf("err = %v, want ErrNoRowsSelected", err)
	}
	if api.savedRows != nil || api.legacyCalled {
		t.Fatal("empty selection must not reach the server")
	}
}

func TestSaveSelectedPrimary(t *testing.T) {
	api := &fakeBatchAPI{}
	r := runnerWithResults(api)

	sel := NewSelection()
	sel.Toggle("f2", 0)
	sel.Toggle("f1", 1)

	summary, err := r.SaveSelected(context.Background(), sel)
	if err != nil {
		t.Fatalf("SaveSelected: %v", err)
	}
	if summary.Saved != 2 {
		t.Fatalf("saved = %d, want 2", summary.Saved)
	}
	if api.savedID != "proc-1" {
		t.Fatalf("saved process id = %q", api.savedID)
	}
	if len(api.savedRows) != 2 || api.savedRows[0].FileID != "f1" || api.savedRows[1].FileID != "f2" {
		t.Fatalf("saved rows = %+v", api.savedRows)
	}
	if api.legacyCalled {
		t.Fatal("legacy save must not run when the primary succeeds")
	}
}

func TestSaveSelectedFallsBackToLegacyShape(t *testing.T) {
	api := &fakeBatchAPI{saveRowsErr: errors.New("422 unprocessable")}
	r := runnerWithResults(api)

	sel := NewSelection()
	sel.Toggle("f1", 0)

	summary, err := r.SaveSelected(context.Background(), sel)
	if err != nil {
		t.Fatalf("SaveSelected: %v", err)
	}
	if !api.legacyCalled || api.legacyID != "proc-1" {
		t.Fatalf("legacy called=%v id=%q", api.legacyCalled, api.legacyID)
	}
	if len(api.legacyRows["f1"]) != 2 || len(api.legacyRows["f2"]) != 1 {
		t.Fatalf("legacy payload should be the raw results map, got %+v", api.legacyRows)
	}
	if summary.Saved != 3 {
		t.Fatalf("fallback saved = %d, want 3", summary.Saved)
	}
}

func TestSaveSelectedReturnsOriginalErrorWhenBothFail(t *testing.T) {
	primaryErr := errors.New("primary down")
	api := &fakeBatchAPI{saveRowsErr: primaryErr, legacyErr: errors.New("legacy down")}
	r := runnerWithResults(api)

	sel := NewSelection()
	sel.Toggle("f1", 0)

	if _, err := r.SaveSelected(context.Background(), sel); !errors.Is(err, primaryErr) {
		t.Fatalf("err = %v, want original primary error", err)
	}
}

func TestCloseDiscardsJob(t *testing.T) {
	r := runnerWithResults(&fakeBatchAPI{})
	r.Close()
	if _, ok := r.Snapshot(); ok {
		t.Fatal("Close should discard the job")
	}
	select {
	case <-r.Done():
	default:
		t.Fatal("Done with no job should be closed")
	}
}

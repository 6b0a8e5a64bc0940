package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/grantha-tools/grantha/internal/batch"
	"github.com/grantha-tools/grantha/internal/qagen"
)

// batchState holds batch job view state.
type batchState struct {
	hasJob bool
	snap   batch.JobSnapshot

	sel        *batch.Selection
	activeFile string // file tab showing results
	rowCursor  int

	saving       bool
	summary      *qagen.SaveSummary
	autoSelected bool // first results tab was picked for this job
}

func newBatchState() batchState {
	return batchState{sel: batch.NewSelection()}
}

// Messages

type batchStartedMsg struct {
	processID string
	err       error
}

type batchSavedMsg struct {
	summary qagen.SaveSummary
	err     error
}

// Commands

func (m Model) startBatchCmd(variant batch.Variant, fileIDs []string) tea.Cmd {
	runner := m.runner
	ctx := m.ctx
	qaCount := m.qaCount
	return func() tea.Msg {
		id, err := runner.Start(ctx, variant, fileIDs, qaCount)
		return batchStartedMsg{processID: id, err: err}
	}
}

func (m Model) handleBatchStarted(msg batchStartedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.modal = errorModal(msg.err)
		return m, nil
	}
	m.currentView = ViewBatch
	m.notice = ""
	m.batch = newBatchState()
	m.refreshBatchSnapshot()
	m.log.Info("watching batch", zap.String("process_id", msg.processID))
	return m, nil
}

// refreshBatchSnapshot pulls the runner's latest view of the job. Once the
// job reaches a terminal state the first file with results is focused.
func (m *Model) refreshBatchSnapshot() {
	snap, ok := m.runner.Snapshot()
	m.batch.hasJob = ok
	if !ok {
		return
	}
	m.batch.snap = snap

	if snap.Terminal() && !m.batch.autoSelected {
		m.batch.autoSelected = true
		if m.batch.activeFile == "" {
			if id, found := firstFileWithResults(snap); found {
				m.batch.activeFile = id
			}
		}
	}
}

// firstFileWithResults returns the first file id (sorted) that has rows.
func firstFileWithResults(snap batch.JobSnapshot) (string, bool) {
	if snap.Variant == batch.Detailed {
		return snap.Detailed.FirstFileWithResults()
	}
	for _, id := range resultFileIDs(snap.Results()) {
		if len(snap.Results()[id]) > 0 {
			return id, true
		}
	}
	return "", false
}

func resultFileIDs(results map[string][]qagen.ResultRow) []string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m Model) handleBatchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	b := &m.batch
	results := b.snap.Results()
	rows := results[b.activeFile]

	switch msg.String() {
	case "esc", "q":
		return m.leaveBatch()

	case "tab", "]":
		b.activeFile = cycleFile(resultFileIDs(results), b.activeFile, 1)
		b.rowCursor = 0
	case "shift+tab", "[":
		b.activeFile = cycleFile(resultFileIDs(results), b.activeFile, -1)
		b.rowCursor = 0

	case "j", "down":
		if b.rowCursor < len(rows)-1 {
			b.rowCursor++
		}
	case "k", "up":
		if b.rowCursor > 0 {
			b.rowCursor--
		}

	case " ":
		if b.rowCursor < len(rows) {
			b.sel.Toggle(b.activeFile, b.rowCursor)
		}

	case "a":
		b.sel.SelectAll(b.activeFile, len(rows))
	case "A":
		for id, fileRows := range results {
			b.sel.SelectAll(id, len(fileRows))
		}
	case "c":
		b.sel.Clear()

	case "s":
		return m.startBatchSave()
	}

	return m, nil
}

// leaveBatch returns to the file list, confirming when it would discard
// something: a still-running job or an unsaved selection.
func (m Model) leaveBatch() (tea.Model, tea.Cmd) {
	b := &m.batch

	discard := func(m Model) (tea.Model, tea.Cmd) {
		m.runner.Close()
		m.batch = newBatchState()
		m.currentView = ViewFiles
		return m, nil
	}

	if b.hasJob && b.snap.Active {
		m.modal = confirmModal(
			"Stop watching this batch?",
			"The job keeps running on the backend, but its progress and results are discarded here.",
			discard,
		)
		return m, nil
	}
	if b.sel.Count() > 0 && b.summary == nil {
		m.modal = confirmModal(
			"Discard selected rows?",
			fmt.Sprintf("%d selected row(s) have not been saved.", b.sel.Count()),
			discard,
		)
		return m, nil
	}
	return discard(m)
}

func cycleFile(ids []string, current string, dir int) string {
	if len(ids) == 0 {
		return current
	}
	for i, id := range ids {
		if id == current {
			return ids[(i+dir+len(ids))%len(ids)]
		}
	}
	return ids[0]
}

func (m Model) startBatchSave() (tea.Model, tea.Cmd) {
	b := &m.batch
	if b.saving {
		return m, nil
	}
	if b.sel.Count() == 0 {
		m.modal = infoModal("Nothing selected", "Mark result rows with Space before saving.")
		return m, nil
	}
	b.saving = true

	runner := m.runner
	ctx := m.ctx
	sel := b.sel
	return m, tea.Batch(m.spin.Tick, func() tea.Msg {
		summary, err := runner.SaveSelected(ctx, sel)
		return batchSavedMsg{summary: summary, err: err}
	})
}

func (m Model) handleBatchSaved(msg batchSavedMsg) (tea.Model, tea.Cmd) {
	m.batch.saving = false
	if msg.err != nil {
		m.modal = errorModal(msg.err)
		return m, nil
	}
	summary := msg.summary
	m.batch.summary = &summary
	// Batch saves touch rows across many files; any inline preview is stale.
	m.files.rowCache = make(map[string][]qagen.RowSummary)
	cmds := []tea.Cmd{fetchSnapshotCmd(m.store)}
	for id := range m.files.expanded {
		cmds = append(cmds, m.loadPreviewCmd(id))
	}
	return m, tea.Batch(cmds...)
}

// Rendering

func (m Model) renderBatch() string {
	styles := m.theme.Styles()
	b := m.batch

	if !b.hasJob {
		return styles.MutedText.Render("No batch job. Mark files on the file list and press b.")
	}

	snap := b.snap
	var out strings.Builder

	// Job header
	status := snap.Status()
	variant := ternary(snap.Variant == batch.Detailed, "detailed", "simple")
	out.WriteString(styles.StatusStyle(status).Render(titleCase(status)))
	out.WriteString(styles.MutedText.Render("  " + variant + " batch  "))
	out.WriteString(styles.FaintText.Render(truncateMiddle(snap.ProcessID, 18)))
	out.WriteString("\n")

	processed, total := snap.Totals()
	started := batchStartTime(snap)
	elapsed := batch.Elapsed(started, time.Now())
	line := fmt.Sprintf("%d/%d rows  elapsed %s", processed, total, formatDuration(elapsed))
	if !snap.Terminal() {
		if remaining, ok := batch.EstimateRemaining(started, time.Now(), processed, total); ok {
			line += "  eta " + formatDuration(remaining)
		} else {
			line += "  eta calculating..."
		}
	}
	out.WriteString(styles.MutedText.Render(line))
	out.WriteString("\n")

	barWidth := m.width - 8
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth < 10 {
		barWidth = 10
	}
	bar := m.bar
	bar.Width = barWidth
	ratio := float64(snap.OverallPercent()) / 100
	out.WriteString(bar.ViewAs(ratio))
	out.WriteString(styles.AccentText.Render(fmt.Sprintf(" %d%%", snap.OverallPercent())))
	out.WriteString("\n\n")

	// Per-file progress
	out.WriteString(m.renderPerFileProgress(snap, bar))

	if snap.LastError != nil {
		out.WriteString(styles.WarningText.Render("poll error: " + truncate(snap.LastError.Error(), 60)))
		out.WriteString("\n")
	}

	// Results
	results := snap.Results()
	if len(results) > 0 {
		out.WriteString("\n")
		out.WriteString(m.renderBatchResults(results))
	}

	if b.saving {
		out.WriteString("\n")
		out.WriteString(m.spin.View())
		out.WriteString(styles.InfoText.Render(" Saving selected rows..."))
	}
	if b.summary != nil {
		out.WriteString("\n")
		note := fmt.Sprintf("Saved %d row(s)", b.summary.Saved)
		if b.summary.Errors > 0 {
			note += fmt.Sprintf(", %d error(s)", b.summary.Errors)
		}
		out.WriteString(styles.SuccessText.Render(note))
	}

	return out.String()
}

// batchStartTime prefers the server-reported start timestamp over the
// moment the client began watching.
func batchStartTime(snap batch.JobSnapshot) time.Time {
	if snap.Variant == batch.Detailed {
		if t := snap.Detailed.ParsedStartTime(); !t.IsZero() {
			return t
		}
	}
	return snap.StartedAt
}

func (m Model) renderPerFileProgress(snap batch.JobSnapshot, bar progress.Model) string {
	styles := m.theme.Styles()
	var out strings.Builder

	if snap.Variant == batch.Detailed {
		for _, id := range snap.Detailed.FileIDs() {
			fp := snap.Detailed.FileProgress[id]
			ratio := 0.0
			if fp.TotalRows > 0 {
				ratio = float64(fp.ProcessedRows) / float64(fp.TotalRows)
			}
			name := fp.Filename
			if name == "" {
				name = id
			}
			out.WriteString(styles.Text.Render(padRight(truncate(name, 28), 30)))
			out.WriteString(bar.ViewAs(ratio))
			out.WriteString(styles.MutedText.Render(fmt.Sprintf(" %d/%d ", fp.ProcessedRows, fp.TotalRows)))
			out.WriteString(styles.StatusStyle(fp.Status).Render(titleCase(fp.Status)))
			if fp.CurrentSanskrit != "" && fp.Status == qagen.FileStatusProcessing {
				out.WriteString(styles.FaintText.Render("  " + truncate(fp.CurrentSanskrit, 30)))
			}
			out.WriteString("\n")
		}
		return out.String()
	}

	ids := make([]string, 0, len(snap.Simple.Progress))
	for id := range snap.Simple.Progress {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fp := snap.Simple.Progress[id]
		ratio := 0.0
		if fp.Total > 0 {
			ratio = float64(fp.Processed) / float64(fp.Total)
		}
		name := id
		if f, ok := m.snapshot.FileByID(id); ok {
			name = f.Filename
		}
		out.WriteString(styles.Text.Render(padRight(truncate(name, 28), 30)))
		out.WriteString(bar.ViewAs(ratio))
		out.WriteString(styles.MutedText.Render(fmt.Sprintf(" %d/%d ", fp.Processed, fp.Total)))
		out.WriteString(styles.StatusStyle(fp.Status).Render(titleCase(fp.Status)))
		out.WriteString("\n")
	}
	return out.String()
}

func (m Model) renderBatchResults(results map[string][]qagen.ResultRow) string {
	styles := m.theme.Styles()
	b := m.batch
	var out strings.Builder

	// File tabs
	ids := resultFileIDs(results)
	tabs := make([]string, 0, len(ids))
	for _, id := range ids {
		label := fmt.Sprintf("%s (%d)", m.tabLabel(results[id], id), len(results[id]))
		if id == b.activeFile {
			tabs = append(tabs, styles.Selected.Render(" "+label+" "))
		} else {
			tabs = append(tabs, styles.MutedText.Render(" "+label+" "))
		}
	}
	out.WriteString(strings.Join(tabs, " "))
	out.WriteString("\n")

	rows := results[b.activeFile]
	if len(rows) == 0 {
		out.WriteString(styles.MutedText.Render("No results for this file."))
		out.WriteString("\n")
		return out.String()
	}

	selCount := b.sel.CountFile(b.activeFile)
	out.WriteString(styles.FaintText.Render(fmt.Sprintf("%d row(s), %d selected  total selected: %d",
		len(rows), selCount, b.sel.Count())))
	out.WriteString("\n")

	visible := m.contentHeight() - 12
	if visible < 3 {
		visible = 3
	}
	start := 0
	if b.rowCursor >= visible {
		start = b.rowCursor - visible + 1
	}
	end := start + visible
	if end > len(rows) {
		end = len(rows)
	}

	for i := start; i < end; i++ {
		row := rows[i]
		mark := "☐"
		if b.sel.Selected(b.activeFile, i) {
			mark = "☑"
		}
		cursor := "  "
		if i == b.rowCursor {
			cursor = "> "
		}
		line := fmt.Sprintf("%s%s %s  %d Q&A", cursor, mark, truncate(row.Sanskrit, m.width-30), row.Count())
		if i == b.rowCursor {
			out.WriteString(styles.Selected.Render(line))
		} else {
			out.WriteString(styles.Text.Render(line))
		}
		out.WriteString("\n")
	}

	return out.String()
}

// tabLabel prefers the filename carried on result rows, then the file
// list's entry, then the raw id.
func (m Model) tabLabel(rows []qagen.ResultRow, fileID string) string {
	for _, row := range rows {
		if row.Filename != "" {
			return truncate(row.Filename, 20)
		}
	}
	if f, ok := m.snapshot.FileByID(fileID); ok {
		return truncate(f.Filename, 20)
	}
	return truncate(fileID, 12)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

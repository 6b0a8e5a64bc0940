package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/grantha-tools/grantha/internal/batch"
	"github.com/grantha-tools/grantha/internal/qagen"
	"github.com/grantha-tools/grantha/internal/state"
)

type promptKind int

const (
	promptNone promptKind = iota
	promptUpload
	promptDownload
)

// filesState holds file list view state.
type filesState struct {
	cursor     int
	marked     map[string]struct{} // file ids marked for batch processing
	expanded   map[string]struct{} // file ids with their rows shown inline
	rowCache   map[string][]qagen.RowSummary
	prompt     textinput.Model
	promptKind promptKind
}

func newFilesState() filesState {
	ti := textinput.New()
	ti.CharLimit = 512
	ti.Width = 60
	return filesState{
		marked:   make(map[string]struct{}),
		expanded: make(map[string]struct{}),
		rowCache: make(map[string][]qagen.RowSummary),
		prompt:   ti,
	}
}

// clamp keeps the cursor inside the file list after a refresh.
func (f *filesState) clamp(n int) {
	if n == 0 {
		f.cursor = 0
		return
	}
	if f.cursor >= n {
		f.cursor = n - 1
	}
	if f.cursor < 0 {
		f.cursor = 0
	}
}

// markedIDs returns the marked file ids in file-list order.
func (f *filesState) markedIDs(files []qagen.FileInfo) []string {
	ids := make([]string, 0, len(f.marked))
	for _, file := range files {
		if _, ok := f.marked[file.FileID]; ok {
			ids = append(ids, file.FileID)
		}
	}
	return ids
}

// fileActionMsg reports the outcome of an upload, delete, or download.
type fileActionMsg struct {
	note string
	err  error
}

// filePreviewMsg delivers rows for an inline file expansion.
type filePreviewMsg struct {
	fileID string
	rows   []qagen.RowSummary
	err    error
}

func (m Model) handleFilesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.files.promptKind != promptNone {
		return m.handlePromptKey(msg)
	}

	n := len(m.snapshot.Files)

	switch msg.String() {
	case "q", "e":
		return m, tea.Quit

	case "j", "down":
		if m.files.cursor < n-1 {
			m.files.cursor++
		}
	case "k", "up":
		if m.files.cursor > 0 {
			m.files.cursor--
		}
	case "g", "home":
		m.files.cursor = 0
	case "G", "end":
		if n > 0 {
			m.files.cursor = n - 1
		}

	case "enter":
		if file := m.selectedFile(); file != nil {
			return m.openRows(*file)
		}

	case "l", "right":
		if file := m.selectedFile(); file != nil {
			return m.toggleExpand(file.FileID)
		}

	case "h", "left":
		if file := m.selectedFile(); file != nil {
			delete(m.files.expanded, file.FileID)
		}

	case "r":
		return m, m.refreshFilesCmd()

	case "u":
		m.notice = ""
		m.files.promptKind = promptUpload
		m.files.prompt.Placeholder = "path to .csv file"
		m.files.prompt.SetValue("")
		m.files.prompt.Focus()
		return m, textinput.Blink

	case "w":
		if file := m.selectedFile(); file != nil {
			m.notice = ""
			m.files.promptKind = promptDownload
			m.files.prompt.Placeholder = "save as (default: " + file.Filename + ")"
			m.files.prompt.SetValue("")
			m.files.prompt.Focus()
			return m, textinput.Blink
		}

	case "d":
		if file := m.selectedFile(); file != nil {
			name := file.Filename
			id := file.FileID
			m.modal = confirmModal(
				fmt.Sprintf("Delete %s?", name),
				"This removes the dataset from the backend.",
				func(m Model) (tea.Model, tea.Cmd) {
					return m, m.deleteFileCmd(id)
				},
			)
		}

	case " ":
		if file := m.selectedFile(); file != nil {
			if _, ok := m.files.marked[file.FileID]; ok {
				delete(m.files.marked, file.FileID)
			} else {
				m.files.marked[file.FileID] = struct{}{}
			}
		}

	case "a":
		for _, file := range m.snapshot.Files {
			m.files.marked[file.FileID] = struct{}{}
		}

	case "c":
		m.files.marked = make(map[string]struct{})

	case "b":
		return m.startBatch(batch.Detailed)

	case "B":
		return m.startBatch(batch.Simple)
	}

	return m, nil
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.files.promptKind = promptNone
		m.files.prompt.Blur()
		return m, nil

	case "enter":
		value := strings.TrimSpace(m.files.prompt.Value())
		kind := m.files.promptKind
		m.files.promptKind = promptNone
		m.files.prompt.Blur()

		switch kind {
		case promptUpload:
			if value == "" {
				return m, nil
			}
			return m, m.uploadFileCmd(value)
		case promptDownload:
			file := m.selectedFile()
			if file == nil {
				return m, nil
			}
			if value == "" {
				value = file.Filename
			}
			return m, m.downloadFileCmd(file.FileID, value)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.files.prompt, cmd = m.files.prompt.Update(msg)
	return m, cmd
}

func (m Model) handleFileAction(msg fileActionMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.modal = errorModal(msg.err)
		return m, nil
	}
	m.notice = msg.note
	return m, fetchSnapshotCmd(m.store)
}

// toggleExpand shows or hides a file's rows inline in the list,
// fetching them on first expansion.
func (m Model) toggleExpand(fileID string) (tea.Model, tea.Cmd) {
	if _, ok := m.files.expanded[fileID]; ok {
		delete(m.files.expanded, fileID)
		return m, nil
	}
	m.files.expanded[fileID] = struct{}{}
	if _, ok := m.files.rowCache[fileID]; ok {
		return m, nil
	}
	return m, m.loadPreviewCmd(fileID)
}

func (m Model) handleFilePreview(msg filePreviewMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		delete(m.files.expanded, msg.fileID)
		m.modal = errorModal(msg.err)
		return m, nil
	}
	m.files.rowCache[msg.fileID] = msg.rows
	return m, nil
}

func (m Model) startBatch(variant batch.Variant) (tea.Model, tea.Cmd) {
	ids := m.files.markedIDs(m.snapshot.Files)
	if len(ids) == 0 {
		m.modal = infoModal("No files selected", "Mark files with Space before starting a batch.")
		return m, nil
	}
	return m, m.startBatchCmd(variant, ids)
}

// Commands

func (m Model) uploadFileCmd(path string) tea.Cmd {
	client := m.client
	store := m.store
	ctx := m.ctx
	log := m.log
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return fileActionMsg{err: fmt.Errorf("open %s: %w", path, err)}
		}
		defer f.Close()

		info, err := client.UploadFile(ctx, filepath.Base(path), f)
		if err != nil {
			return fileActionMsg{err: err}
		}
		log.Info("file uploaded", zap.String("file_id", info.FileID), zap.String("filename", info.Filename))

		refreshFiles(ctx, store, client)
		return fileActionMsg{note: fmt.Sprintf("Uploaded %s (%d rows)", info.Filename, info.RowCount)}
	}
}

func (m Model) deleteFileCmd(fileID string) tea.Cmd {
	client := m.client
	store := m.store
	ctx := m.ctx
	delete(m.files.marked, fileID)
	delete(m.files.expanded, fileID)
	delete(m.files.rowCache, fileID)
	return func() tea.Msg {
		if err := client.DeleteFile(ctx, fileID); err != nil {
			return fileActionMsg{err: err}
		}
		refreshFiles(ctx, store, client)
		return fileActionMsg{note: "File deleted"}
	}
}

func (m Model) refreshFilesCmd() tea.Cmd {
	client := m.client
	store := m.store
	ctx := m.ctx
	return func() tea.Msg {
		refreshFiles(ctx, store, client)
		return fileActionMsg{note: "File list refreshed"}
	}
}

func (m Model) loadPreviewCmd(fileID string) tea.Cmd {
	client := m.client
	ctx := m.ctx
	return func() tea.Msg {
		rows, err := client.FetchAllRows(ctx, fileID)
		return filePreviewMsg{fileID: fileID, rows: rows, err: err}
	}
}

func (m Model) downloadFileCmd(fileID, path string) tea.Cmd {
	client := m.client
	ctx := m.ctx
	return func() tea.Msg {
		out, err := os.Create(path)
		if err != nil {
			return fileActionMsg{err: fmt.Errorf("create %s: %w", path, err)}
		}
		defer out.Close()

		n, err := client.DownloadFile(ctx, fileID, out)
		if err != nil {
			return fileActionMsg{err: err}
		}
		return fileActionMsg{note: fmt.Sprintf("Saved %s (%d bytes)", path, n)}
	}
}

// formatCreated renders the upload date, or "-" when the backend sent no
// parseable timestamp.
func formatCreated(f qagen.FileInfo) string {
	t := f.ParsedCreatedAt()
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

const previewRows = 6

// renderFilePreview draws a few of a file's rows inline under its list
// entry. Press Enter on the file to browse and filter the full set.
func (m Model) renderFilePreview(fileID string, nameWidth int) string {
	styles := m.theme.Styles()

	rows, ok := m.files.rowCache[fileID]
	if !ok {
		return styles.FaintText.Render("    loading rows...") + "\n"
	}
	if len(rows) == 0 {
		return styles.FaintText.Render("    (no rows)") + "\n"
	}

	textWidth := (m.width - nameWidth) / 2
	if textWidth < 16 {
		textWidth = 16
	}

	var b strings.Builder
	for i, row := range rows {
		if i >= previewRows {
			b.WriteString(styles.FaintText.Render(fmt.Sprintf("    ... %d more (Enter to browse)", len(rows)-previewRows)))
			b.WriteString("\n")
			break
		}
		line := fmt.Sprintf("    %3d  %s  %s",
			row.ID,
			padRight(truncate(row.Sanskrit, textWidth), textWidth),
			truncate(row.English, textWidth))
		b.WriteString(styles.MutedText.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

// refreshFiles updates the store right after a mutation so the next
// snapshot already reflects it, rather than waiting for the poller.
func refreshFiles(ctx context.Context, store *state.Store, client *qagen.Client) {
	files, err := client.ListFiles(ctx)
	if err != nil {
		return // the poller will catch up
	}
	store.Update(files, nil)
}

// Rendering

func (m Model) renderFiles() string {
	styles := m.theme.Styles()
	height := m.contentHeight()

	if len(m.snapshot.Files) == 0 {
		var msg string
		if m.snapshot.IsOffline() {
			msg = styles.DangerText.Render("Backend unreachable")
		} else {
			msg = styles.MutedText.Render("No files uploaded yet. Press u to upload a CSV.")
		}
		return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, msg)
	}

	nameWidth := m.width * 35 / 100
	if nameWidth < 20 {
		nameWidth = 20
	}
	barWidth := 24
	if m.width < 100 {
		barWidth = 14
	}

	var b strings.Builder

	// Column header
	header := padRight("  Name", nameWidth+2) +
		padRight("Rows", 8) +
		padRight("Done", 8) +
		padRight("Created", 12) +
		padRight("Progress", barWidth+2) +
		"Status"
	b.WriteString(styles.FaintText.Render(header))
	b.WriteString("\n")

	bar := m.bar
	bar.Width = barWidth

	for i, file := range m.snapshot.Files {
		mark := " "
		if _, ok := m.files.marked[file.FileID]; ok {
			mark = "●"
		}

		ratio := 0.0
		if file.RowCount > 0 {
			ratio = float64(file.ProcessedCount) / float64(file.RowCount)
			if ratio > 1 {
				ratio = 1
			}
		}

		line := padRight(mark+" "+truncate(file.Filename, nameWidth), nameWidth+2) +
			padRight(fmt.Sprintf("%d", file.RowCount), 8) +
			padRight(fmt.Sprintf("%d", file.ProcessedCount), 8) +
			padRight(formatCreated(file), 12)

		if i == m.files.cursor {
			b.WriteString(styles.Selected.Render(line))
		} else {
			b.WriteString(styles.Text.Render(line))
		}
		b.WriteString(bar.ViewAs(ratio))
		b.WriteString("  ")
		b.WriteString(styles.StatusStyle(file.Status).Render(titleCase(file.Status)))
		b.WriteString("\n")

		if _, ok := m.files.expanded[file.FileID]; ok {
			b.WriteString(m.renderFilePreview(file.FileID, nameWidth))
		}
	}

	if len(m.files.marked) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.AccentText.Render(fmt.Sprintf("%d file(s) marked for batch", len(m.files.marked))))
		b.WriteString(styles.MutedText.Render("  b: detailed batch  B: simple batch"))
	}

	if m.files.promptKind != promptNone {
		label := ternary(m.files.promptKind == promptUpload, "Upload CSV: ", "Save to: ")
		b.WriteString("\n\n")
		b.WriteString(styles.AccentText.Render(label))
		b.WriteString(m.files.prompt.View())
	}

	if m.notice != "" {
		b.WriteString("\n\n")
		b.WriteString(styles.SuccessText.Render(m.notice))
	}

	return b.String()
}

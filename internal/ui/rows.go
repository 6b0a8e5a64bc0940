package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/grantha-tools/grantha/internal/qagen"
)

// filterDebounce is how long typing in the filter box must pause before
// the filter is applied.
const filterDebounce = 500 * time.Millisecond

// rowsState holds row browser state for one file.
type rowsState struct {
	fileID   string
	filename string

	all     []qagen.RowSummary // every row of the file
	visible []qagen.RowSummary // rows matching the applied filter
	cursor  int
	offset  int // top of the visible window

	filter    textinput.Model
	filterSeq int    // debounce sequence; stale ticks are dropped
	applied   string // filter text currently applied

	loading bool
	loadErr error

	height int
}

func newRowsState(theme Theme) rowsState {
	ti := textinput.New()
	ti.Placeholder = "filter rows"
	ti.CharLimit = 128
	ti.Width = 40
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Accent))
	return rowsState{filter: ti}
}

func (r *rowsState) resize(width, height int) {
	r.height = height
}

// applyFilter recomputes the visible rows from the current filter text.
func (r *rowsState) applyFilter() {
	query := r.filter.Value()
	r.applied = query
	r.visible = r.visible[:0]
	for _, row := range r.all {
		if row.Matches(query) {
			r.visible = append(r.visible, row)
		}
	}
	if r.cursor >= len(r.visible) {
		r.cursor = len(r.visible) - 1
	}
	if r.cursor < 0 {
		r.cursor = 0
	}
	r.offset = 0
}

// selectedRow returns the row under the cursor, or nil.
func (r *rowsState) selectedRow() *qagen.RowSummary {
	if r.cursor < 0 || r.cursor >= len(r.visible) {
		return nil
	}
	return &r.visible[r.cursor]
}

// Messages

type rowsLoadedMsg struct {
	fileID string
	rows   []qagen.RowSummary
	err    error
}

type filterTickMsg struct {
	fileID string
	seq    int
}

// openRows switches to the row browser for the given file.
func (m Model) openRows(file qagen.FileInfo) (tea.Model, tea.Cmd) {
	m.currentView = ViewRows
	m.notice = ""
	m.rows.fileID = file.FileID
	m.rows.filename = file.Filename
	m.rows.all = nil
	m.rows.visible = nil
	m.rows.cursor = 0
	m.rows.offset = 0
	m.rows.loading = true
	m.rows.loadErr = nil
	m.rows.filter.SetValue("")
	m.rows.filter.Blur()
	m.rows.applied = ""
	return m, m.loadRowsCmd(file.FileID)
}

func (m Model) loadRowsCmd(fileID string) tea.Cmd {
	client := m.client
	ctx := m.ctx
	return func() tea.Msg {
		rows, err := client.FetchAllRows(ctx, fileID)
		return rowsLoadedMsg{fileID: fileID, rows: rows, err: err}
	}
}

func (m Model) handleRowsLoaded(msg rowsLoadedMsg) (tea.Model, tea.Cmd) {
	// A response for a file the user already navigated away from.
	if msg.fileID != m.rows.fileID {
		return m, nil
	}
	m.rows.loading = false
	m.rows.loadErr = msg.err
	if msg.err == nil {
		m.rows.all = msg.rows
		m.rows.applyFilter()
	}
	return m, nil
}

func (m Model) handleFilterTick(msg filterTickMsg) (tea.Model, tea.Cmd) {
	// Only the newest pending debounce tick applies the filter.
	if msg.fileID != m.rows.fileID || msg.seq != m.rows.filterSeq {
		return m, nil
	}
	m.rows.applyFilter()
	return m, nil
}

func (m Model) filterTickCmd() tea.Cmd {
	fileID := m.rows.fileID
	seq := m.rows.filterSeq
	return tea.Tick(filterDebounce, func(time.Time) tea.Msg {
		return filterTickMsg{fileID: fileID, seq: seq}
	})
}

func (m Model) handleRowsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.rows.filter.Focused() {
		switch msg.String() {
		case "esc":
			m.rows.filter.Blur()
			m.rows.filter.SetValue("")
			m.rows.filterSeq++
			m.rows.applyFilter()
			return m, nil
		case "enter":
			m.rows.filter.Blur()
			m.rows.filterSeq++
			m.rows.applyFilter()
			return m, nil
		}
		var cmd tea.Cmd
		m.rows.filter, cmd = m.rows.filter.Update(msg)
		m.rows.filterSeq++
		return m, tea.Batch(cmd, m.filterTickCmd())
	}

	n := len(m.rows.visible)

	switch msg.String() {
	case "esc", "q":
		m.currentView = ViewFiles
		return m, nil

	case "/":
		m.rows.filter.Focus()
		return m, textinput.Blink

	case "j", "down":
		if m.rows.cursor < n-1 {
			m.rows.cursor++
		}
	case "k", "up":
		if m.rows.cursor > 0 {
			m.rows.cursor--
		}
	case "g", "home":
		m.rows.cursor = 0
	case "G", "end":
		if n > 0 {
			m.rows.cursor = n - 1
		}
	case "ctrl+d":
		m.rows.cursor += m.pageSize() / 2
		if m.rows.cursor > n-1 {
			m.rows.cursor = n - 1
		}
		if m.rows.cursor < 0 {
			m.rows.cursor = 0
		}
	case "ctrl+u":
		m.rows.cursor -= m.pageSize() / 2
		if m.rows.cursor < 0 {
			m.rows.cursor = 0
		}

	case "r":
		m.rows.loading = true
		return m, m.loadRowsCmd(m.rows.fileID)

	case "enter":
		if row := m.rows.selectedRow(); row != nil {
			return m.openEditor(m.rows.fileID, row.ID)
		}
	}

	return m, nil
}

// pageSize returns how many rows fit in the browser window.
func (m Model) pageSize() int {
	// header line + filter line + breadcrumb
	h := m.contentHeight() - 4
	if h < 1 {
		return 1
	}
	return h
}

// Rendering

func (m Model) renderRows() string {
	styles := m.theme.Styles()

	var b strings.Builder

	crumb := styles.AccentText.Render(m.rows.filename) +
		styles.MutedText.Render(fmt.Sprintf("  %d/%d rows", len(m.rows.visible), len(m.rows.all)))
	b.WriteString(crumb)
	b.WriteString("\n")

	b.WriteString(styles.MutedText.Render("/ "))
	b.WriteString(m.rows.filter.View())
	b.WriteString("\n")

	if m.rows.loading {
		b.WriteString(styles.MutedText.Render("Loading rows..."))
		return b.String()
	}
	if m.rows.loadErr != nil {
		b.WriteString(styles.DangerText.Render("Failed to load rows: " + m.rows.loadErr.Error()))
		return b.String()
	}
	if len(m.rows.visible) == 0 {
		empty := ternary(m.rows.applied != "", "No rows match the filter.", "File has no rows.")
		b.WriteString(styles.MutedText.Render(empty))
		return b.String()
	}

	idxWidth := 6
	sansWidth := (m.width - idxWidth - 4) / 2
	engWidth := m.width - idxWidth - sansWidth - 24
	if sansWidth < 10 {
		sansWidth = 10
	}
	if engWidth < 10 {
		engWidth = 10
	}

	header := padRight("  #", idxWidth) +
		padRight("Sanskrit", sansWidth) +
		padRight("English", engWidth) +
		"Tags"
	b.WriteString(styles.FaintText.Render(header))
	b.WriteString("\n")

	page := m.pageSize()
	if m.rows.cursor < m.rows.offset {
		m.rows.offset = m.rows.cursor
	}
	if m.rows.cursor >= m.rows.offset+page {
		m.rows.offset = m.rows.cursor - page + 1
	}
	end := m.rows.offset + page
	if end > len(m.rows.visible) {
		end = len(m.rows.visible)
	}

	for i := m.rows.offset; i < end; i++ {
		row := m.rows.visible[i]
		line := padRight(fmt.Sprintf("  %d", row.ID), idxWidth) +
			padRight(truncate(row.Sanskrit, sansWidth-2), sansWidth) +
			padRight(truncate(row.English, engWidth-2), engWidth) +
			truncate(row.Tags, 20)
		if i == m.rows.cursor {
			b.WriteString(styles.Selected.Render(padRight(line, m.width)))
		} else {
			b.WriteString(styles.Text.Render(line))
		}
		b.WriteString("\n")
	}

	return b.String()
}

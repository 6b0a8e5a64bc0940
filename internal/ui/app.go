// Package ui provides the Bubble Tea terminal interface for grantha.
package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/grantha-tools/grantha/internal/batch"
	"github.com/grantha-tools/grantha/internal/prefs"
	"github.com/grantha-tools/grantha/internal/qagen"
	"github.com/grantha-tools/grantha/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewFiles View = iota
	ViewRows
	ViewEditor
	ViewBatch
)

// Options configures the UI.
type Options struct {
	Context   context.Context
	Client    *qagen.Client
	Store     *state.Store
	Runner    *batch.Runner
	Logger    *zap.Logger
	PollTick  time.Duration
	Prefs     prefs.Prefs
	PrefsPath string
	QACount   int
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	client    *qagen.Client
	store     *state.Store
	runner    *batch.Runner
	log       *zap.Logger
	prefsPath string
	pollTick  time.Duration
	userPrefs prefs.Prefs
	qaCount   int

	// UI state
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool

	// Data state
	snapshot    state.Snapshot
	lastUpdated time.Time

	// Per-view state
	files  filesState
	rows   rowsState
	editor editorState
	batch  batchState

	// Shared widgets
	spin spinner.Model
	bar  progress.Model

	// Overlays
	modal    *modalState
	showHelp bool
	notice   string // transient footer note, cleared on next action
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = time.Second
	}

	themeName := opts.Prefs.Theme
	if themeName == "" {
		themeName = "Nightfox"
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	qaCount := opts.QACount
	if opts.Prefs.QACount > 0 {
		qaCount = opts.Prefs.QACount
	}
	if qaCount <= 0 {
		qaCount = 2
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	theme := GetTheme(themeName)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Accent))

	bar := progress.New(
		progress.WithGradient(theme.Accent, theme.Success),
		progress.WithoutPercentage(),
	)

	return Model{
		ctx:         ctx,
		client:      opts.Client,
		store:       opts.Store,
		runner:      opts.Runner,
		log:         log,
		prefsPath:   prefsPath,
		pollTick:    pollTick,
		userPrefs:   opts.Prefs,
		qaCount:     qaCount,
		theme:       theme,
		currentView: ViewFiles,
		files:       newFilesState(),
		rows:        newRowsState(theme),
		editor:      newEditorState(theme),
		batch:       newBatchState(),
		spin:        sp,
		bar:         bar,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
	}
	// Fetch snapshot immediately on start
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.rows.resize(m.contentWidth(), m.contentHeight())
		m.editor.resize(m.contentWidth(), m.contentHeight())
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.lastUpdated = time.Now()
		m.files.clamp(len(m.snapshot.Files))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.editor.phase == editorGenerating || m.batch.saving {
			return m, cmd
		}
		return m, nil

	case fileActionMsg:
		return m.handleFileAction(msg)

	case filePreviewMsg:
		return m.handleFilePreview(msg)

	case rowsLoadedMsg:
		return m.handleRowsLoaded(msg)

	case filterTickMsg:
		return m.handleFilterTick(msg)

	case rowLoadedMsg:
		return m.handleRowLoaded(msg)

	case autoGenTickMsg:
		return m.handleAutoGenTick(msg)

	case generatedMsg:
		return m.handleGenerated(msg)

	case rowSavedMsg:
		return m.handleRowSaved(msg)

	case batchStartedMsg:
		return m.handleBatchStarted(msg)

	case batchSavedMsg:
		return m.handleBatchSaved(msg)
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	if m.modal != nil {
		return m.renderModal()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	return b.String()
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewFiles:
		return m.renderFiles()
	case ViewRows:
		return m.renderRows()
	case ViewEditor:
		return m.renderEditor()
	case ViewBatch:
		return m.renderBatch()
	default:
		return ""
	}
}

// contentWidth returns the width available to the active view.
func (m Model) contentWidth() int {
	return m.width
}

// contentHeight returns the height available below header and command bar.
func (m Model) contentHeight() int {
	h := m.height - 2
	if h < 0 {
		return 0
	}
	return h
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	if m.modal != nil {
		return m.handleModalKey(msg)
	}

	// Text inputs swallow printable keys; only dispatch global shortcuts
	// when nothing is being typed.
	if !m.typing() {
		switch msg.String() {
		case "?":
			m.showHelp = true
			return m, nil

		case "T":
			m.theme = GetTheme(NextTheme(m.theme.Name))
			m.userPrefs.Theme = m.theme.Name
			_ = prefs.Save(m.prefsPath, m.userPrefs)
			return m, nil
		}
	}

	switch m.currentView {
	case ViewFiles:
		return m.handleFilesKey(msg)
	case ViewRows:
		return m.handleRowsKey(msg)
	case ViewEditor:
		return m.handleEditorKey(msg)
	case ViewBatch:
		return m.handleBatchKey(msg)
	}

	return m, nil
}

// typing reports whether a text input currently has focus.
func (m Model) typing() bool {
	switch m.currentView {
	case ViewFiles:
		return m.files.prompt.Focused()
	case ViewRows:
		return m.rows.filter.Focused()
	case ViewEditor:
		return m.editor.typing()
	}
	return false
}

// handleTick processes the polling tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}

	// The batch runner polls the backend on its own; the view just reads
	// its latest snapshot.
	if m.currentView == ViewBatch {
		m.refreshBatchSnapshot()
	}

	cmds = append(cmds, tickCmd(m.pollTick))
	return m, tea.Batch(cmds...)
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

// selectedFile returns the file under the cursor, or nil.
func (m Model) selectedFile() *qagen.FileInfo {
	if m.files.cursor < 0 || m.files.cursor >= len(m.snapshot.Files) {
		return nil
	}
	return &m.snapshot.Files[m.files.cursor]
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

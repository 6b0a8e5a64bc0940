package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/grantha-tools/grantha/internal/prefs"
	"github.com/grantha-tools/grantha/internal/qagen"
)

// autoGenDebounce is how long editing must pause before Q&A generation is
// triggered automatically (when the preference is enabled).
const autoGenDebounce = 1500 * time.Millisecond

type editorPhase int

const (
	editorLoading editorPhase = iota
	editorReady
	editorGenerating
	editorSaving
)

// Editor focus targets: the three text fields, then the Q&A list.
const (
	focusSanskrit = iota
	focusEnglish
	focusTags
	focusQAList
)

// editorState holds single-row editor state.
type editorState struct {
	fileID string
	rowID  int

	phase   editorPhase
	loadErr error

	sanskrit textinput.Model
	english  textinput.Model
	tags     textinput.Model
	focus    int

	qa       qagen.GeneratedQA
	selected map[int]struct{} // selected Q&A pair indices
	qaCursor int

	// In-place editing of one generated pair, one language at a time.
	pairEdit  bool
	pairLang  int // index into qagen.Languages
	pairFocus int // 0 = question, 1 = answer
	pairQ     textinput.Model
	pairA     textinput.Model

	dirty   bool // unsaved edits or unsaved generation
	autoSeq int  // debounce sequence for auto-generation
	genSeq  int  // sequence guard for generation responses

	width int
}

func newEditorState(theme Theme) editorState {
	mk := func(placeholder string) textinput.Model {
		ti := textinput.New()
		ti.Placeholder = placeholder
		ti.CharLimit = 2048
		ti.Width = 70
		ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Accent))
		return ti
	}
	return editorState{
		sanskrit: mk("sanskrit text"),
		english:  mk("english translation"),
		tags:     mk("tags, comma separated"),
		pairQ:    mk("question"),
		pairA:    mk("answer"),
		selected: make(map[int]struct{}),
	}
}

func (e *editorState) resize(width, height int) {
	e.width = width
	w := width - 12
	if w < 20 {
		w = 20
	}
	e.sanskrit.Width = w
	e.english.Width = w
	e.tags.Width = w
	e.pairQ.Width = w
	e.pairA.Width = w
}

func (e *editorState) typing() bool {
	return e.sanskrit.Focused() || e.english.Focused() || e.tags.Focused() ||
		e.pairQ.Focused() || e.pairA.Focused()
}

func (e *editorState) setFocus(target int) {
	e.focus = target
	e.sanskrit.Blur()
	e.english.Blur()
	e.tags.Blur()
	switch target {
	case focusSanskrit:
		e.sanskrit.Focus()
	case focusEnglish:
		e.english.Focus()
	case focusTags:
		e.tags.Focus()
	}
}

// openPairEdit starts editing the pair under the cursor, beginning with
// the first language.
func (e *editorState) openPairEdit() {
	e.pairEdit = true
	e.pairLang = 0
	e.loadPairInputs()
}

// loadPairInputs fills the question/answer inputs from the current
// language of the pair being edited.
func (e *editorState) loadPairInputs() {
	q, a := e.qa.Pair(qagen.Languages[e.pairLang], e.qaCursor)
	e.pairQ.SetValue(q)
	e.pairA.SetValue(a)
	e.pairFocus = 0
	e.pairA.Blur()
	e.pairQ.Focus()
	e.pairQ.CursorEnd()
}

// commitPairEdit writes the input values back into the generated arrays.
func (e *editorState) commitPairEdit() {
	lang := qagen.Languages[e.pairLang]
	q, a := e.qa.Pair(lang, e.qaCursor)
	nq, na := e.pairQ.Value(), e.pairA.Value()
	if nq != q || na != a {
		e.qa.SetPair(lang, e.qaCursor, nq, na)
		e.dirty = true
	}
}

func (e *editorState) closePairEdit() {
	e.pairEdit = false
	e.pairQ.Blur()
	e.pairA.Blur()
}

// selectAllPairs marks every generated pair as selected.
func (e *editorState) selectAllPairs() {
	e.selected = make(map[int]struct{})
	for i := 0; i < e.qa.Count(); i++ {
		e.selected[i] = struct{}{}
	}
}

// selectedIndices returns the selected pair indices in ascending order.
func (e *editorState) selectedIndices() []int {
	out := make([]int, 0, len(e.selected))
	for i := range e.selected {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Messages

type rowLoadedMsg struct {
	fileID string
	rowID  int
	detail qagen.RowDetail
	err    error
}

type autoGenTickMsg struct {
	seq int
}

type generatedMsg struct {
	seq int
	qa  qagen.GeneratedQA
	err error
}

type rowSavedMsg struct {
	err error
}

// openEditor switches to the editor for one row.
func (m Model) openEditor(fileID string, rowID int) (tea.Model, tea.Cmd) {
	m.currentView = ViewEditor
	m.notice = ""
	m.editor.fileID = fileID
	m.editor.rowID = rowID
	m.editor.phase = editorLoading
	m.editor.loadErr = nil
	m.editor.qa = qagen.GeneratedQA{}
	m.editor.selected = make(map[int]struct{})
	m.editor.qaCursor = 0
	m.editor.closePairEdit()
	m.editor.dirty = false
	return m, m.loadRowCmd(fileID, rowID)
}

func (m Model) loadRowCmd(fileID string, rowID int) tea.Cmd {
	client := m.client
	ctx := m.ctx
	return func() tea.Msg {
		detail, err := client.GetRow(ctx, fileID, rowID)
		return rowLoadedMsg{fileID: fileID, rowID: rowID, detail: detail, err: err}
	}
}

func (m Model) handleRowLoaded(msg rowLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.fileID != m.editor.fileID || msg.rowID != m.editor.rowID {
		return m, nil
	}
	if msg.err != nil {
		m.editor.phase = editorReady
		m.editor.loadErr = msg.err
		return m, nil
	}
	m.editor.phase = editorReady
	m.editor.sanskrit.SetValue(msg.detail.Sanskrit)
	m.editor.english.SetValue(msg.detail.English)
	m.editor.tags.SetValue(msg.detail.Tags)
	m.editor.qa = msg.detail.QA
	m.editor.selectAllPairs()
	m.editor.setFocus(focusSanskrit)
	return m, textinput.Blink
}

func (m Model) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e := &m.editor

	if e.phase == editorLoading {
		if msg.String() == "esc" {
			m.currentView = ViewRows
		}
		return m, nil
	}

	if e.pairEdit {
		return m.handlePairEditKey(msg)
	}

	switch msg.String() {
	case "esc":
		if e.typing() {
			e.setFocus(focusQAList)
			return m, nil
		}
		if e.dirty {
			m.modal = confirmModal(
				"Discard changes?",
				"The row has unsaved edits.",
				func(m Model) (tea.Model, tea.Cmd) {
					m.currentView = ViewRows
					return m, nil
				},
			)
			return m, nil
		}
		m.currentView = ViewRows
		return m, nil

	case "tab":
		e.setFocus((e.focus + 1) % 4)
		return m, ternaryCmd(e.typing(), textinput.Blink)

	case "shift+tab":
		e.setFocus((e.focus + 3) % 4)
		return m, ternaryCmd(e.typing(), textinput.Blink)

	case "ctrl+g":
		return m.startGenerate()

	case "ctrl+s":
		return m.startSaveRow()
	}

	if e.typing() {
		var cmd tea.Cmd
		switch e.focus {
		case focusSanskrit:
			e.sanskrit, cmd = e.sanskrit.Update(msg)
		case focusEnglish:
			e.english, cmd = e.english.Update(msg)
		case focusTags:
			e.tags, cmd = e.tags.Update(msg)
		}
		e.dirty = true
		cmds := []tea.Cmd{cmd}
		if m.userPrefs.AutoGenerate && e.phase == editorReady {
			e.autoSeq++
			cmds = append(cmds, m.autoGenTickCmd())
		}
		return m, tea.Batch(cmds...)
	}

	// Q&A list keys
	n := e.qa.Count()
	switch msg.String() {
	case "j", "down":
		if e.qaCursor < n-1 {
			e.qaCursor++
		}
	case "k", "up":
		if e.qaCursor > 0 {
			e.qaCursor--
		}
	case " ":
		if e.qaCursor < n {
			if _, ok := e.selected[e.qaCursor]; ok {
				delete(e.selected, e.qaCursor)
			} else {
				e.selected[e.qaCursor] = struct{}{}
			}
			e.dirty = true
		}
	case "enter":
		if e.phase == editorReady && e.qaCursor < n {
			e.openPairEdit()
			return m, textinput.Blink
		}
	case "a":
		e.selectAllPairs()
	case "A":
		m.userPrefs.AutoGenerate = !m.userPrefs.AutoGenerate
		_ = prefs.Save(m.prefsPath, m.userPrefs)
		if m.userPrefs.AutoGenerate {
			m.notice = "Auto-generate on"
		} else {
			m.notice = "Auto-generate off"
		}
	case "+", "=":
		if m.qaCount < 10 {
			m.qaCount++
			m.userPrefs.QACount = m.qaCount
			_ = prefs.Save(m.prefsPath, m.userPrefs)
		}
	case "-":
		if m.qaCount > 1 {
			m.qaCount--
			m.userPrefs.QACount = m.qaCount
			_ = prefs.Save(m.prefsPath, m.userPrefs)
		}
	case "g":
		return m.startGenerate()
	case "s":
		return m.startSaveRow()
	}

	return m, nil
}

func ternaryCmd(cond bool, cmd tea.Cmd) tea.Cmd {
	if cond {
		return cmd
	}
	return nil
}

// handlePairEditKey edits one generated pair. Tab moves between question
// and answer, enter commits the current language and advances to the
// next, esc commits and leaves the edit.
func (m Model) handlePairEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e := &m.editor

	switch msg.String() {
	case "tab", "shift+tab":
		if e.pairFocus == 0 {
			e.pairFocus = 1
			e.pairQ.Blur()
			e.pairA.Focus()
			e.pairA.CursorEnd()
		} else {
			e.pairFocus = 0
			e.pairA.Blur()
			e.pairQ.Focus()
			e.pairQ.CursorEnd()
		}
		return m, textinput.Blink

	case "enter":
		e.commitPairEdit()
		e.pairLang++
		if e.pairLang >= len(qagen.Languages) {
			e.closePairEdit()
			return m, nil
		}
		e.loadPairInputs()
		return m, textinput.Blink

	case "esc":
		e.commitPairEdit()
		e.closePairEdit()
		return m, nil
	}

	var cmd tea.Cmd
	if e.pairFocus == 0 {
		e.pairQ, cmd = e.pairQ.Update(msg)
	} else {
		e.pairA, cmd = e.pairA.Update(msg)
	}
	return m, cmd
}

func (m Model) autoGenTickCmd() tea.Cmd {
	seq := m.editor.autoSeq
	return tea.Tick(autoGenDebounce, func(time.Time) tea.Msg {
		return autoGenTickMsg{seq: seq}
	})
}

func (m Model) handleAutoGenTick(msg autoGenTickMsg) (tea.Model, tea.Cmd) {
	e := &m.editor
	// Only the newest pending tick fires, and only while idle.
	if msg.seq != e.autoSeq || e.phase != editorReady || e.pairEdit || m.currentView != ViewEditor {
		return m, nil
	}
	// Auto-generation waits until both texts are present; a half-filled
	// row would only produce throwaway pairs.
	if strings.TrimSpace(e.sanskrit.Value()) == "" || strings.TrimSpace(e.english.Value()) == "" {
		return m, nil
	}
	return m.startGenerate()
}

func (m Model) startGenerate() (tea.Model, tea.Cmd) {
	e := &m.editor
	if e.phase != editorReady {
		return m, nil
	}
	if strings.TrimSpace(e.sanskrit.Value()) == "" {
		m.modal = infoModal("Nothing to generate", "The row has no Sanskrit text.")
		return m, nil
	}
	e.phase = editorGenerating
	e.genSeq++
	return m, tea.Batch(m.spin.Tick, m.generateCmd(e.genSeq))
}

func (m Model) generateCmd(seq int) tea.Cmd {
	client := m.client
	ctx := m.ctx
	log := m.log
	fileID := m.editor.fileID
	rowID := m.editor.rowID
	qaCount := m.qaCount
	return func() tea.Msg {
		qa, err := client.GenerateRow(ctx, fileID, rowID, qaCount)
		if err != nil {
			log.Warn("generation failed",
				zap.String("file_id", fileID),
				zap.Int("row", rowID),
				zap.Error(err))
		}
		return generatedMsg{seq: seq, qa: qa, err: err}
	}
}

func (m Model) handleGenerated(msg generatedMsg) (tea.Model, tea.Cmd) {
	e := &m.editor
	// A response from a superseded generation request.
	if msg.seq != e.genSeq {
		return m, nil
	}
	e.phase = editorReady
	if msg.err != nil {
		m.modal = errorModal(msg.err)
		return m, nil
	}
	e.qa = msg.qa
	e.qaCursor = 0
	e.selectAllPairs()
	e.dirty = true
	e.setFocus(focusQAList)
	return m, nil
}

func (m Model) startSaveRow() (tea.Model, tea.Cmd) {
	e := &m.editor
	if e.phase != editorReady {
		return m, nil
	}
	e.phase = editorSaving

	payload := qagen.BuildRowSave(
		e.sanskrit.Value(),
		e.english.Value(),
		qagen.SplitTags(e.tags.Value()),
		e.qa,
		e.selectedIndices(),
	)
	return m, m.saveRowCmd(payload, len(e.selected))
}

func (m Model) saveRowCmd(payload qagen.SaveRowPayload, selCount int) tea.Cmd {
	client := m.client
	store := m.store
	ctx := m.ctx
	log := m.log
	fileID := m.editor.fileID
	rowID := m.editor.rowID
	return func() tea.Msg {
		// Make sure the CSV has enough q/a columns before writing the row.
		if selCount > 0 {
			if err := client.EnsureHeaders(ctx, fileID, selCount); err != nil {
				return rowSavedMsg{err: err}
			}
		}
		if err := client.SaveRow(ctx, fileID, rowID, payload); err != nil {
			return rowSavedMsg{err: err}
		}
		log.Info("row saved", zap.String("file_id", fileID), zap.Int("row", rowID))
		refreshFiles(ctx, store, client)
		return rowSavedMsg{}
	}
}

func (m Model) handleRowSaved(msg rowSavedMsg) (tea.Model, tea.Cmd) {
	e := &m.editor
	e.phase = editorReady
	if msg.err != nil {
		m.modal = errorModal(msg.err)
		return m, nil
	}
	e.dirty = false
	m.notice = fmt.Sprintf("Row %d saved", e.rowID)

	// The backend row changed; drop the stale copies held by the row
	// browser and the file list's inline preview.
	delete(m.files.rowCache, e.fileID)
	cmds := []tea.Cmd{fetchSnapshotCmd(m.store)}
	if m.rows.fileID == e.fileID {
		m.rows.loading = true
		cmds = append(cmds, m.loadRowsCmd(e.fileID))
	}
	if _, ok := m.files.expanded[e.fileID]; ok {
		cmds = append(cmds, m.loadPreviewCmd(e.fileID))
	}
	return m, tea.Batch(cmds...)
}

// Rendering

func (m Model) renderEditor() string {
	styles := m.theme.Styles()
	e := m.editor

	var b strings.Builder

	crumb := styles.AccentText.Render(m.rows.filename) +
		styles.MutedText.Render(fmt.Sprintf("  row %d", e.rowID))
	b.WriteString(crumb)
	b.WriteString("\n\n")

	if e.phase == editorLoading {
		b.WriteString(styles.MutedText.Render("Loading row..."))
		return b.String()
	}
	if e.loadErr != nil {
		b.WriteString(styles.DangerText.Render("Failed to load row: " + e.loadErr.Error()))
		return b.String()
	}

	field := func(label string, ti textinput.Model, focused bool) {
		labelStyle := styles.MutedText
		if focused {
			labelStyle = styles.AccentText
		}
		b.WriteString(labelStyle.Render(padRight(label, 10)))
		b.WriteString(ti.View())
		b.WriteString("\n")
	}
	field("Sanskrit", e.sanskrit, e.focus == focusSanskrit)
	field("English", e.english, e.focus == focusEnglish)
	field("Tags", e.tags, e.focus == focusTags)
	b.WriteString("\n")

	switch e.phase {
	case editorGenerating:
		b.WriteString(m.spin.View())
		b.WriteString(styles.InfoText.Render(fmt.Sprintf(" Generating %d Q&A pairs...", m.qaCount)))
		b.WriteString("\n")
	case editorSaving:
		b.WriteString(styles.InfoText.Render("Saving..."))
		b.WriteString("\n")
	default:
		count := e.qa.Count()
		header := fmt.Sprintf("Q&A pairs  %d generated, %d selected  (count: %d, auto: %s)",
			count, len(e.selected), m.qaCount, ternary(m.userPrefs.AutoGenerate, "on", "off"))
		b.WriteString(styles.FaintText.Render(header))
		b.WriteString("\n")

		if e.qa.IsEmpty() {
			b.WriteString(styles.MutedText.Render("No Q&A yet. Press ctrl+g (or g on the list) to generate."))
			b.WriteString("\n")
		}

		for i := 0; i < count; i++ {
			mark := "☐"
			if _, ok := e.selected[i]; ok {
				mark = "☑"
			}
			cursor := "  "
			if e.focus == focusQAList && i == e.qaCursor {
				cursor = "> "
			}
			b.WriteString(styles.Text.Render(fmt.Sprintf("%s%s Pair %d", cursor, mark, i+1)))
			b.WriteString("\n")
			for li, lang := range qagen.Languages {
				label := strings.ToUpper(lang)
				if e.pairEdit && i == e.qaCursor && li == e.pairLang {
					b.WriteString(styles.AccentText.Render("      " + label + " Q: "))
					b.WriteString(e.pairQ.View())
					b.WriteString("\n")
					b.WriteString(styles.AccentText.Render("      " + label + " A: "))
					b.WriteString(e.pairA.View())
					b.WriteString("\n")
					continue
				}
				q, a := e.qa.Pair(lang, i)
				if q == "" && a == "" {
					continue
				}
				b.WriteString(styles.FaintText.Render("      " + label + " Q: "))
				b.WriteString(styles.Text.Render(truncate(q, m.width-16)))
				b.WriteString("\n")
				b.WriteString(styles.FaintText.Render("      " + label + " A: "))
				b.WriteString(styles.MutedText.Render(truncate(a, m.width-16)))
				b.WriteString("\n")
			}
		}
	}

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(styles.SuccessText.Render(m.notice))
	}
	if e.dirty {
		b.WriteString("\n")
		b.WriteString(styles.WarningText.Render("unsaved changes"))
	}

	return b.String()
}

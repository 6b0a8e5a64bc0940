package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type modalKind int

const (
	modalInfo modalKind = iota
	modalError
	modalConfirm
)

// modalState is a blocking overlay: an info/error notice or a confirmation.
type modalState struct {
	kind      modalKind
	title     string
	body      string
	onConfirm func(Model) (tea.Model, tea.Cmd)
}

func infoModal(title, body string) *modalState {
	return &modalState{kind: modalInfo, title: title, body: body}
}

func errorModal(err error) *modalState {
	return &modalState{kind: modalError, title: "Error", body: err.Error()}
}

func confirmModal(title, body string, onConfirm func(Model) (tea.Model, tea.Cmd)) *modalState {
	return &modalState{kind: modalConfirm, title: title, body: body, onConfirm: onConfirm}
}

func (m Model) handleModalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	modal := m.modal

	if modal.kind == modalConfirm {
		switch msg.String() {
		case "y", "Y", "enter":
			m.modal = nil
			if modal.onConfirm != nil {
				return modal.onConfirm(m)
			}
			return m, nil
		case "n", "N", "esc":
			m.modal = nil
			return m, nil
		}
		return m, nil
	}

	// Info and error modals close on any key.
	m.modal = nil
	return m, nil
}

func (m Model) renderModal() string {
	styles := m.theme.Styles()
	modal := m.modal

	titleStyle := styles.AccentText.Bold(true)
	borderColor := m.theme.Accent
	if modal.kind == modalError {
		titleStyle = styles.DangerText
		borderColor = m.theme.Danger
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(modal.title))
	b.WriteString("\n\n")
	b.WriteString(styles.Text.Render(wrap(modal.body, 46)))
	b.WriteString("\n\n")
	switch modal.kind {
	case modalConfirm:
		b.WriteString(styles.MutedText.Render("y: confirm   n/esc: cancel"))
	default:
		b.WriteString(styles.FaintText.Render("press any key"))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(borderColor)).
		Padding(1, 2).
		Width(50).
		Render(b.String())

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		box,
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(m.theme.Background)),
	)
}

// wrap breaks text into lines no longer than width, on word boundaries.
func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}
	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > width {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderHelp renders the help overlay.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()

	sections := []helpSection{
		{
			title: "Files",
			items: []helpItem{
				{"j/k", "Move up/down"},
				{"enter", "Browse rows"},
				{"l/h", "Expand/collapse rows inline"},
				{"r", "Refresh list"},
				{"u", "Upload CSV"},
				{"d", "Delete file"},
				{"w", "Download CSV"},
				{"Space", "Mark for batch"},
				{"a/c", "Mark all / clear marks"},
				{"b/B", "Start detailed/simple batch"},
			},
		},
		{
			title: "Rows",
			items: []helpItem{
				{"/", "Filter rows"},
				{"enter", "Edit row"},
				{"r", "Reload"},
				{"ctrl+d/u", "Half page down/up"},
			},
		},
		{
			title: "Editor",
			items: []helpItem{
				{"tab", "Next field"},
				{"ctrl+g", "Generate Q&A"},
				{"ctrl+s", "Save row"},
				{"enter", "Edit Q&A text"},
				{"Space", "Toggle Q&A pair"},
				{"+/-", "Adjust Q&A count"},
				{"A", "Toggle auto-generate"},
			},
		},
		{
			title: "Batch",
			items: []helpItem{
				{"tab/[/]", "Cycle file tabs"},
				{"Space", "Toggle result row"},
				{"a/A/c", "Select file/all/none"},
				{"s", "Save selection"},
			},
		},
		{
			title: "General",
			items: []helpItem{
				{"T", "Cycle theme"},
				{"?", "Toggle help"},
				{"esc", "Back"},
				{"q/ctrl+c", "Quit"},
			},
		},
	}

	var b strings.Builder

	title := styles.Text.Bold(true).Render("Keyboard Shortcuts")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", 30)))
	b.WriteString("\n\n")

	for i, section := range sections {
		b.WriteString(styles.AccentText.Bold(true).Render(section.title))
		b.WriteString("\n")

		for _, item := range section.items {
			keyStyle := lipgloss.NewStyle().
				Foreground(lipgloss.Color(m.theme.Warning)).
				Width(12)
			b.WriteString(keyStyle.Render(item.key))
			b.WriteString(styles.Text.Render(item.desc))
			b.WriteString("\n")
		}

		if i < len(sections)-1 {
			b.WriteString("\n")
		}
	}

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Accent)).
		Padding(1, 2).
		Width(44)

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		modal.Render(b.String()),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(m.theme.Background)),
	)
}

type helpSection struct {
	title string
	items []helpItem
}

type helpItem struct {
	key  string
	desc string
}

package ui

import (
	"fmt"
	"strings"
	"time"
)

// renderHeader renders the status bar.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	sep := bg.Spaces(2)

	var parts []string
	parts = append(parts, bg.Render("grantha", styles.Logo))

	if m.snapshot.IsOffline() {
		parts = append(parts, bg.Render("● OFFLINE", styles.DangerText))
		if m.snapshot.LastError != nil {
			parts = append(parts, bg.Render(classifyConnectionError(m.snapshot.LastError), styles.DangerText))
		}
	} else {
		parts = append(parts, bg.Render("● ON", styles.SuccessText))
	}

	parts = append(parts,
		bg.Render("Files:", styles.MutedText)+bg.Space()+
			bg.Render(fmt.Sprintf("%d", len(m.snapshot.Files)), styles.Text))

	totalRows, processedRows := 0, 0
	for _, f := range m.snapshot.Files {
		totalRows += f.RowCount
		processedRows += f.ProcessedCount
	}
	if totalRows > 0 {
		parts = append(parts,
			bg.Render("Rows:", styles.MutedText)+bg.Space()+
				bg.Render(fmt.Sprintf("%d/%d", processedRows, totalRows), styles.Text))
	}

	if snap, ok := m.runner.Snapshot(); ok && snap.Active {
		parts = append(parts,
			bg.Render("Batch:", styles.MutedText)+bg.Space()+
				bg.Render(fmt.Sprintf("%d%%", snap.OverallPercent()), styles.InfoText))
	}

	if timeStr := m.formatTimestamp(); timeStr != "" {
		parts = append(parts, bg.Render(timeStr, styles.MutedText))
	}

	if m.snapshot.LastError != nil && !m.snapshot.IsOffline() {
		errText := truncate(m.snapshot.LastError.Error(), 50)
		parts = append(parts,
			bg.Render("!", styles.WarningText.Bold(true))+bg.Space()+
				bg.Render(errText, styles.WarningText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  ") + sep)
}

// formatTimestamp formats the last update time with relative indicator.
func (m Model) formatTimestamp() string {
	if m.lastUpdated.IsZero() {
		return ""
	}

	timeSince := time.Since(m.lastUpdated)
	timeStr := m.lastUpdated.Format("15:04:05")

	if timeSince < time.Minute {
		timeStr += " (now)"
	} else if timeSince < time.Hour {
		timeStr += fmt.Sprintf(" (%dm ago)", int(timeSince.Minutes()))
	}

	return timeStr
}

// classifyConnectionError returns a short description of the connection error.
func classifyConnectionError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "BACKEND DOWN"
	case strings.Contains(msg, "no such host"):
		return "HOST NOT FOUND"
	case strings.Contains(msg, "timeout"):
		return "TIMEOUT"
	default:
		return "ERROR"
	}
}

// renderCommandBar renders the command hints bar.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd

	switch m.currentView {
	case ViewRows:
		commands = []cmd{
			{"/", "Filter"},
			{"Enter", "Edit"},
			{"j/k", "Navigate"},
			{"r", "Reload"},
			{"Esc", "Files"},
			{"?", "More"},
		}
	case ViewEditor:
		commands = []cmd{
			{"Tab", "Field"},
			{"^G", "Generate"},
			{"^S", "Save"},
			{"Enter", "Edit pair"},
			{"Space", "Toggle pair"},
			{"+/-", "Count"},
			{"Esc", "Back"},
		}
	case ViewBatch:
		commands = []cmd{
			{"Tab", "File tab"},
			{"j/k", "Navigate"},
			{"Space", "Toggle"},
			{"a/A", "Select file/all"},
			{"s", "Save"},
			{"Esc", "Files"},
		}
	default: // ViewFiles
		commands = []cmd{
			{"Enter", "Rows"},
			{"l", "Expand"},
			{"u", "Upload"},
			{"d", "Delete"},
			{"w", "Download"},
			{"Space", "Mark"},
			{"b/B", "Batch"},
			{"q", "Quit"},
			{"?", "More"},
		}
	}

	colon := bg.Sep(":")
	sep := bg.Spaces(2)

	segments := make([]string, 0, len(commands)+1)
	for _, c := range commands {
		segments = append(segments,
			bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}

	segments = append(segments,
		bg.Render("T", styles.AccentText)+colon+bg.Render(m.theme.Name, styles.FaintText))

	return styles.Header.Width(m.width).Render(strings.Join(segments, sep))
}

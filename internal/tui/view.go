package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/feedupdate/internal/tui/components"
)

// View renders the current state of the model.
func (m Model) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render(fmt.Sprintf("feedupdate • %s", m.titleText())))

	if m.phase != "" {
		sections = append(sections,
			sectionStyle.Render(phaseTitle(m.phase)),
			components.NewProgress().View(m.percentage))
	}

	if entries := m.tasks.Entries(); len(entries) > 0 {
		sections = append(sections, sectionStyle.Render("Tasks"), renderTaskEntries(entries))
	}

	if summary := components.NewSummary(m.summary).View(); strings.TrimSpace(summary) != "" {
		sections = append(sections, sectionStyle.Render("Summary"), summaryStyle.Render(summary))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderTaskEntries(entries []components.TaskEntry) string {
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		line := fmt.Sprintf(" %s %s", StatusIcon(entry.Message), entry.ID)
		if strings.TrimSpace(entry.Message) != "" {
			line = fmt.Sprintf("%s: %s", line, entry.Message)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) titleText() string {
	if strings.TrimSpace(m.title) != "" {
		return m.title
	}
	return "Update"
}

func phaseTitle(phase string) string {
	if phase == "" {
		return ""
	}
	return strings.ToUpper(phase[:1]) + phase[1:]
}

// StatusIcon returns the glyph for a task progress message.
func StatusIcon(message string) string {
	switch {
	case strings.Contains(message, "failed"):
		return failureStyle.Render("✗")
	case strings.Contains(message, "requires_app_restart"):
		return deferredStyle.Render("↻")
	case strings.Contains(message, "successful"), message == "prepared":
		return successStyle.Render("✓")
	default:
		return pendingStyle.Render("…")
	}
}

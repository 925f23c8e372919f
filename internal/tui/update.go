package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/feedupdate/internal/tui/components"
)

// Update handles Bubbletea messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, nil
	case PhaseMsg:
		m.phase = msg.Phase
		m.percentage = 0
		return m, nil
	case ProgressMsg:
		p := msg.Progress
		m.tasks = m.tasks.Set(p.TaskID, p.Message)
		m.percentage = p.Percentage
		return m, nil
	case DoneMsg:
		m.finished = true
		m.summary = summaryFrom(msg)
		m.summary.Cancelled = m.cancelled
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			m.finished = true
			m.summary.Cancelled = true
			return m, tea.Quit
		}
	case tea.QuitMsg:
		m.finished = true
		return m, nil
	}

	return m, nil
}

func summaryFrom(msg DoneMsg) components.SummaryData {
	return components.SummaryData{
		Executed:    msg.Executed,
		Failed:      msg.Failed,
		ColdUpdates: msg.ColdUpdates,
		NoUpdates:   msg.NoUpdates,
		Err:         msg.Err,
		Finished:    true,
	}
}

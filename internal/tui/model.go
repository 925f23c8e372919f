// Package tui renders the progress of an update cycle with Bubbletea.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/feedupdate/internal/task"
	"github.com/alexisbeaulieu97/feedupdate/internal/tui/components"
)

// PhaseMsg announces the start of a cycle phase such as "prepare".
type PhaseMsg struct {
	Phase string
}

// ProgressMsg carries a task progress notification.
type ProgressMsg struct {
	Progress task.Progress
}

// DoneMsg reports the end of the cycle.
type DoneMsg struct {
	Executed    int
	Failed      int
	ColdUpdates int
	NoUpdates   bool
	Err         error
}

type tickMsg struct{}

// Model is the Bubbletea state of the update progress view.
type Model struct {
	title          string
	phase          string
	tasks          components.TaskList
	percentage     int
	summary        components.SummaryData
	finished       bool
	cancelled      bool
	nonInteractive bool
}

// NewModel returns a model listing taskIDs.
func NewModel(title string, taskIDs []string, nonInteractive bool) Model {
	return Model{
		title:          title,
		tasks:          components.NewTaskList(taskIDs...),
		nonInteractive: nonInteractive,
	}
}

// Init starts the Bubbletea program.
func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

// Phase returns the current phase.
func (m Model) Phase() string { return m.phase }

// Percentage returns the completion of the current phase.
func (m Model) Percentage() int { return m.percentage }

// IsFinished reports whether the cycle has ended.
func (m Model) IsFinished() bool { return m.finished }

// Cancelled reports whether the user interrupted the cycle.
func (m Model) Cancelled() bool { return m.cancelled }

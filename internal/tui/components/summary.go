package components

import (
	"fmt"
	"strings"
)

// SummaryData aggregates the outcome of an update cycle.
type SummaryData struct {
	Executed    int
	Failed      int
	ColdUpdates int
	Finished    bool
	Cancelled   bool
	NoUpdates   bool
	Err         error
}

// Summary renders a textual cycle summary.
type Summary struct {
	data SummaryData
}

// NewSummary creates a new Summary component.
func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// View renders the summary.
func (s Summary) View() string {
	d := s.data
	var lines []string

	switch {
	case d.Cancelled:
		lines = append(lines, "Update cancelled")
	case d.Err != nil:
		lines = append(lines, fmt.Sprintf("Update failed: %v", d.Err))
	case d.NoUpdates:
		lines = append(lines, "No updates available")
	case d.Finished:
		lines = append(lines, fmt.Sprintf("Tasks: %d applied, %d failed", d.Executed, d.Failed))
		if d.ColdUpdates > 0 {
			lines = append(lines, fmt.Sprintf("%d file(s) will be replaced after the application exits", d.ColdUpdates))
		} else {
			lines = append(lines, "Update finished")
		}
	}

	return strings.Join(lines, "\n")
}

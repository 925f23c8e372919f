package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// Progress renders the completion of the current phase.
type Progress struct {
	bar progress.Model
}

// NewProgress creates a progress component.
func NewProgress() Progress {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = 30
	return Progress{bar: bar}
}

// View renders the bar for a percentage between 0 and 100. Values outside
// that range are clamped for the bar but shown as given in the label.
func (p Progress) View(percentage int) string {
	ratio := float64(percentage) / 100
	ratio = min(max(ratio, 0), 1)
	label := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%3d%%", percentage))
	return lipgloss.JoinHorizontal(lipgloss.Left, label, " ", p.bar.ViewAs(ratio))
}

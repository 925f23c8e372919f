package tui

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/feedupdate/internal/task"
)

func TestViewRendersTasksAndSummary(t *testing.T) {
	m := NewModel("MyApp", []string{"lib", "exe"}, true)
	m = apply(t, m,
		PhaseMsg{Phase: "apply"},
		ProgressMsg{Progress: task.Progress{TaskID: "lib", Message: "applied: successful", Percentage: 50}},
		ProgressMsg{Progress: task.Progress{TaskID: "exe", Message: "applied: requires_app_restart", Percentage: 100}},
		DoneMsg{Executed: 2, ColdUpdates: 1},
	)

	view := m.View()
	require.Contains(t, view, "feedupdate • MyApp")
	require.Contains(t, view, "Apply")
	require.Contains(t, view, "100%")
	require.Contains(t, view, "lib: applied: successful")
	require.Contains(t, view, "exe: applied: requires_app_restart")
	require.Contains(t, view, "1 file(s) will be replaced")
}

func TestStatusIcon(t *testing.T) {
	tests := []struct {
		message string
		glyph   string
	}{
		{message: "prepared", glyph: "✓"},
		{message: "applied: successful", glyph: "✓"},
		{message: "applied: requires_app_restart", glyph: "↻"},
		{message: "applied: failed", glyph: "✗"},
		{message: "prepare failed", glyph: "✗"},
		{message: "", glyph: "…"},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			require.Contains(t, StatusIcon(tt.message), tt.glyph)
		})
	}
}

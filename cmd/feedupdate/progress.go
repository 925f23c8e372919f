package main

import (
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/feedupdate/internal/task"
	"github.com/alexisbeaulieu97/feedupdate/internal/tui"
)

// progressView feeds cycle events to the TUI, either through a running
// Bubbletea program or by updating the model in place and printing it once.
type progressView struct {
	interactive bool
	out         io.Writer
	onCancel    func()

	mu      sync.Mutex
	program *tea.Program
	state   tui.Model
	done    chan struct{}
}

func newProgressView(out io.Writer, interactive bool, onCancel func()) *progressView {
	return &progressView{out: out, interactive: interactive, onCancel: onCancel}
}

func (v *progressView) start(model tui.Model) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.state = model
	if !v.interactive {
		return
	}
	v.program = tea.NewProgram(model, tea.WithOutput(v.out))
	v.done = make(chan struct{})
	program := v.program
	go func() {
		defer close(v.done)
		final, err := program.Run()
		if err != nil {
			return
		}
		if m, ok := final.(tui.Model); ok && m.Cancelled() && v.onCancel != nil {
			v.onCancel()
		}
	}()
}

func (v *progressView) send(msg tea.Msg) {
	v.mu.Lock()
	program := v.program
	if program == nil {
		updated, _ := v.state.Update(msg)
		if m, ok := updated.(tui.Model); ok {
			v.state = m
		}
	}
	v.mu.Unlock()

	if program != nil {
		program.Send(msg)
	}
}

func (v *progressView) progress(p task.Progress) {
	v.send(tui.ProgressMsg{Progress: p})
}

// stop ends the program, or prints the final state when not interactive.
func (v *progressView) stop() {
	v.mu.Lock()
	program, done := v.program, v.done
	v.mu.Unlock()

	if program != nil {
		program.Quit()
		<-done
		return
	}
	fmt.Fprintln(v.out, v.state.View())
}

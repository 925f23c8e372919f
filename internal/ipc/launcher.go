package ipc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ProcessSpec describes the helper process to start.
type ProcessSpec struct {
	Path        string
	Args        []string
	Dir         string
	Elevated    bool
	ShowConsole bool
}

// Process is a started helper.
type Process interface {
	Pid() int
	// Done is closed when the process exits. It never closes for processes
	// that cannot be observed.
	Done() <-chan struct{}
}

// Launcher starts helper processes.
type Launcher interface {
	Start(ctx context.Context, spec ProcessSpec) (Process, error)
}

// ExecLauncher starts the helper as a child process. Outside Windows an
// elevated start is prefixed with ElevationCommand (for example "sudo"); on
// Windows it goes through the "runas" shell verb.
type ExecLauncher struct {
	ElevationCommand string
}

type execProcess struct {
	pid  int
	done chan struct{}
}

func (p *execProcess) Pid() int              { return p.pid }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (l ExecLauncher) Start(ctx context.Context, spec ProcessSpec) (Process, error) {
	if spec.Path == "" {
		return nil, errors.New("helper path is required")
	}
	if spec.Elevated {
		return l.startElevated(ctx, spec)
	}
	return startCommand(spec.Path, spec.Args, spec)
}

func startCommand(name string, args []string, spec ProcessSpec) (Process, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = spec.Dir
	if spec.ShowConsole {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	configureConsole(cmd, spec.ShowConsole)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	p := &execProcess{pid: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func splitCommand(command string) []string {
	return strings.Fields(command)
}

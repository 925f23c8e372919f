//go:build windows

package ipc

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

// unobservedProcess stands in for a process started through the shell, whose
// handle is not returned.
type unobservedProcess struct{}

func (unobservedProcess) Pid() int              { return 0 }
func (unobservedProcess) Done() <-chan struct{} { return nil }

func (l ExecLauncher) startElevated(_ context.Context, spec ProcessSpec) (Process, error) {
	verb, err := windows.UTF16PtrFromString("runas")
	if err != nil {
		return nil, err
	}
	file, err := windows.UTF16PtrFromString(spec.Path)
	if err != nil {
		return nil, err
	}
	args, err := windows.UTF16PtrFromString(joinArgs(spec.Args))
	if err != nil {
		return nil, err
	}
	var dir *uint16
	if spec.Dir != "" {
		if dir, err = windows.UTF16PtrFromString(spec.Dir); err != nil {
			return nil, err
		}
	}

	show := int32(windows.SW_HIDE)
	if spec.ShowConsole {
		show = windows.SW_NORMAL
	}
	if err := windows.ShellExecute(0, verb, file, args, dir, show); err != nil {
		if errors.Is(err, windows.ERROR_CANCELLED) {
			return nil, ErrElevationDeclined
		}
		return nil, err
	}
	return unobservedProcess{}, nil
}

func joinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = windows.EscapeArg(a)
	}
	return strings.Join(quoted, " ")
}

func configureConsole(cmd *exec.Cmd, show bool) {
	if !show {
		cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	}
}

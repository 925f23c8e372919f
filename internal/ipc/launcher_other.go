//go:build !windows

package ipc

import (
	"context"
	"errors"
	"os/exec"
)

func (l ExecLauncher) startElevated(_ context.Context, spec ProcessSpec) (Process, error) {
	prefix := splitCommand(l.ElevationCommand)
	if len(prefix) == 0 {
		return startCommand(spec.Path, spec.Args, spec)
	}
	args := append(append(prefix[1:], spec.Path), spec.Args...)
	proc, err := startCommand(prefix[0], args, spec)
	if err != nil && errors.Is(err, exec.ErrNotFound) {
		return nil, errors.Join(ErrElevationDeclined, err)
	}
	return proc, err
}

func configureConsole(*exec.Cmd, bool) {}

// Package coldupdate finishes an update inside the helper process once the
// host application has exited.
package coldupdate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alexisbeaulieu97/feedupdate/internal/ipc"
	"github.com/alexisbeaulieu97/feedupdate/internal/logger"
	"github.com/alexisbeaulieu97/feedupdate/internal/platform"
	"github.com/alexisbeaulieu97/feedupdate/internal/task"
	"github.com/alexisbeaulieu97/feedupdate/internal/transfer"
	feederrors "github.com/alexisbeaulieu97/feedupdate/pkg/errors"
)

// DefaultHostExitTimeout bounds the wait for the host process to exit.
const DefaultHostExitTimeout = 2 * time.Minute

// ErrHostStillRunning is returned when the host does not exit in time.
var ErrHostStillRunning = errors.New("host application is still running")

// Result summarises a cold run.
type Result struct {
	Executed   int
	RolledBack bool
	Relaunched bool
}

// Runner applies the cold tasks of a transfer object.
type Runner struct {
	Tasks           *task.Registry
	Log             *logger.Logger
	Registry        platform.RegistryStore
	Progress        func(task.Progress)
	Launcher        ipc.Launcher
	HostExitTimeout time.Duration

	waitForExit func(ctx context.Context, pid int) error
	removeAll   func(string) error
}

// NewRunner returns a runner with the built-in task kinds and process
// launcher.
func NewRunner(log *logger.Logger) *Runner {
	return &Runner{
		Tasks:    task.DefaultRegistry(),
		Log:      log,
		Launcher: ipc.ExecLauncher{},
	}
}

// Run waits for the host to exit, executes every task that asked for a
// restart, and rolls all tasks back if one of them fails. The host is
// relaunched when the object asks for it, whether or not the update
// succeeded.
func (r *Runner) Run(ctx context.Context, obj *transfer.Object) (Result, error) {
	var res Result

	tasks, err := r.registry().Unmarshal(obj.Tasks)
	if err != nil {
		return res, fmt.Errorf("decode tasks: %w", err)
	}

	if err := r.waitForHost(ctx, obj.HostPID); err != nil {
		return res, err
	}

	env := r.env(obj)
	log := r.Log.WithFields(map[string]any{"transfer": obj.ID})

	var runErr error
	for _, t := range tasks {
		if t.Status() != task.StatusRequiresAppRestart {
			continue
		}
		status, err := t.Execute(ctx, env, true)
		if err == nil && status == task.StatusFailed {
			err = errors.New("task reported failure")
		}
		if err != nil {
			runErr = feederrors.NewExecutionError(t.ID(), "cold execute", err)
			break
		}
		res.Executed++
		log.WithFields(map[string]any{"task": t.ID()}).Debug("cold task applied")
	}

	if runErr != nil {
		log.Error(runErr, "cold update failed, rolling back")
		r.rollback(ctx, env, tasks)
		res.RolledBack = true
	} else {
		if err := r.remove(env.BackupFolder); err != nil {
			log.Warn("could not remove backup folder")
		}
		log.WithFields(map[string]any{"executed": res.Executed}).Info("cold update completed")
	}

	if obj.Relaunch {
		if err := r.relaunch(ctx, obj); err != nil {
			log.Error(err, "could not relaunch application")
			return res, errors.Join(runErr, err)
		}
		res.Relaunched = true
	}
	return res, runErr
}

func (r *Runner) registry() *task.Registry {
	if r.Tasks != nil {
		return r.Tasks
	}
	return task.DefaultRegistry()
}

func (r *Runner) env(obj *transfer.Object) task.Env {
	appPath := obj.Env(transfer.EnvAppPath)
	if appPath == "" {
		appPath = obj.AppPath
	}
	tempFolder := obj.Env(transfer.EnvTempFolder)
	if tempFolder == "" {
		tempFolder = obj.Config.TempFolder
	}
	backupFolder := obj.Env(transfer.EnvBackupFolder)
	if backupFolder == "" {
		backupFolder = obj.Config.BackupFolder
	}
	return task.Env{
		AppDir:       filepath.Dir(appPath),
		TempFolder:   tempFolder,
		BackupFolder: backupFolder,
		Logger:       r.Log,
		Progress:     r.Progress,
		Registry:     r.Registry,
	}
}

func (r *Runner) waitForHost(ctx context.Context, pid int) error {
	if pid <= 0 {
		return nil
	}
	timeout := r.HostExitTimeout
	if timeout <= 0 {
		timeout = DefaultHostExitTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wait := r.waitForExit
	if wait == nil {
		wait = func(ctx context.Context, pid int) error {
			return platform.WaitForExit(ctx, pid, platform.DefaultPollInterval)
		}
	}
	r.Log.WithFields(map[string]any{"pid": pid}).Debug("waiting for host to exit")
	if err := wait(waitCtx, pid); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: pid %d", ErrHostStillRunning, pid)
		}
		return fmt.Errorf("wait for host: %w", err)
	}
	return nil
}

// rollback undoes every task, newest first. Errors are logged only.
func (r *Runner) rollback(ctx context.Context, env task.Env, tasks []task.Task) {
	for i := len(tasks) - 1; i >= 0; i-- {
		t := tasks[i]
		if err := t.Rollback(ctx, env); err != nil {
			r.Log.WithFields(map[string]any{"task": t.ID()}).Error(err, "rollback failed")
		}
	}
}

func (r *Runner) relaunch(ctx context.Context, obj *transfer.Object) error {
	path := obj.Env(transfer.EnvAppPath)
	if path == "" {
		path = obj.AppPath
	}
	dir := obj.Env(transfer.EnvWorkingDirectory)
	if dir == "" {
		dir = obj.WorkingDirectory
	}
	launcher := r.Launcher
	if launcher == nil {
		launcher = ipc.ExecLauncher{}
	}
	proc, err := launcher.Start(ctx, ipc.ProcessSpec{Path: path, Dir: dir})
	if err != nil {
		return err
	}
	r.Log.WithFields(map[string]any{"pid": proc.Pid(), "path": path}).Info("application relaunched")
	return nil
}

func (r *Runner) remove(path string) error {
	if path == "" {
		return nil
	}
	if r.removeAll != nil {
		return r.removeAll(path)
	}
	return os.RemoveAll(path)
}

package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexisbeaulieu97/feedupdate/internal/ipc"
	"github.com/alexisbeaulieu97/feedupdate/internal/platform"
	"github.com/alexisbeaulieu97/feedupdate/internal/transfer"
	feederrors "github.com/alexisbeaulieu97/feedupdate/pkg/errors"
)

// Helper flags understood by the cold-update helper.
const (
	HelperLogFlag         = "--log"
	HelperShowConsoleFlag = "--show-console"
)

// ChannelName returns the channel name for the update process and host pid.
func ChannelName(processName string, pid int) string {
	return fmt.Sprintf("%s-%d", processName, pid)
}

// deployHelper copies the helper executable and its dependencies into the
// temp folder and returns the path of the copy.
func (m *Manager) deployHelper() (string, error) {
	if err := m.fs.MkdirAll(m.cfg.TempFolder, 0o755); err != nil {
		return "", fmt.Errorf("create temp folder: %w", err)
	}
	if m.cfg.HelperPath == "" {
		return "", fmt.Errorf("no helper executable configured")
	}

	dest := filepath.Join(m.cfg.TempFolder, m.cfg.UpdateExecutableName)
	if err := platform.CopyFile(m.cfg.HelperPath, dest); err != nil {
		return "", fmt.Errorf("deploy helper: %w", err)
	}
	if err := os.Chmod(dest, 0o755); err != nil {
		return "", fmt.Errorf("deploy helper: %w", err)
	}

	for _, dep := range m.cfg.DependenciesForColdUpdate {
		src := dep
		if !filepath.IsAbs(src) {
			src = filepath.Join(filepath.Dir(m.cfg.HelperPath), dep)
		}
		target := filepath.Join(m.cfg.TempFolder, filepath.Base(dep))
		if err := platform.CopyFile(src, target); err != nil {
			return "", fmt.Errorf("deploy helper dependency %s: %w", dep, err)
		}
	}
	return dest, nil
}

// startHelper fills obj, deploys the helper and hands obj over. Callers
// hold m.mu.
func (m *Manager) startHelper(ctx context.Context, obj *transfer.Object, opts ApplyOptions, privileged bool) error {
	envelopes, err := m.tasks.Marshal(m.pending)
	if err != nil {
		return feederrors.NewHandoffError("encode", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = m.cfg.AppDir()
	}

	obj.Config = transfer.Config{
		UpdateProcessName:    m.cfg.UpdateProcessName,
		UpdateExecutableName: m.cfg.UpdateExecutableName,
		TempFolder:           m.cfg.TempFolder,
		BackupFolder:         m.backupFolder,
		LogLevel:             m.cfg.Log.Level,
	}
	obj.Tasks = envelopes
	obj.Log = m.log.Journal().Entries()
	obj.AppPath = m.cfg.ApplicationPath
	obj.WorkingDirectory = wd
	obj.Relaunch = opts.Relaunch
	obj.HostPID = m.pid()
	obj.AddEnvironment()

	payload, err := obj.Marshal()
	if err != nil {
		return feederrors.NewHandoffError("encode", err)
	}

	helper, err := m.deployHelper()
	if err != nil {
		return feederrors.NewHandoffError("deploy", err)
	}

	var args []string
	if opts.HelperLogging {
		args = append(args, HelperLogFlag)
	}
	if opts.ShowConsole {
		args = append(args, HelperShowConsoleFlag)
	}

	req := ipc.Request{
		Channel: ChannelName(m.cfg.UpdateProcessName, obj.HostPID),
		Process: ipc.ProcessSpec{
			Path:        helper,
			Args:        args,
			Dir:         m.cfg.TempFolder,
			Elevated:    privileged,
			ShowConsole: opts.ShowConsole,
		},
		Payload: payload,
	}
	m.log.WithFields(map[string]any{
		"helper":      helper,
		"channel":     req.Channel,
		"elevated":    privileged,
		"coldUpdates": len(obj.ColdUpdates),
	}).Info("handing off to cold-update helper")
	return m.handoff.Send(ctx, req)
}

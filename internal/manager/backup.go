package manager

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// backupFallbackSuffix is appended to the update process name to form the
// fallback backup folder under the user data directory.
const backupFallbackSuffix = "UpdateBackups"

// ensureBackupFolder empties and recreates the backup folder. When the
// configured folder cannot be used, it switches once to a folder under the
// user data directory. Callers hold m.mu.
func (m *Manager) ensureBackupFolder() error {
	useFallback := true

	parent := filepath.Dir(m.backupFolder)
	if m.fs.IsDir(parent) && m.fs.Writable(parent) {
		if err := m.fs.RemoveAll(m.backupFolder); err == nil {
			useFallback = false
		} else if !errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("clear backup folder: %w", err)
		}

		if err := m.fs.MkdirAll(m.backupFolder, 0o755); err != nil {
			if !errors.Is(err, fs.ErrPermission) {
				return fmt.Errorf("create backup folder: %w", err)
			}
			useFallback = true
		} else if !m.fs.Writable(m.backupFolder) {
			useFallback = true
		}
	}

	if !useFallback {
		return nil
	}

	base, err := m.userDataDir()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackupUnavailable, err)
	}
	fallback := filepath.Join(base, m.cfg.UpdateProcessName+backupFallbackSuffix)
	if err := m.fs.MkdirAll(fallback, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrBackupUnavailable, err)
	}
	m.log.WithFields(map[string]any{
		"configured": m.backupFolder,
		"fallback":   fallback,
	}).Warn("backup folder not writable, using fallback")
	m.backupFolder = fallback
	return nil
}

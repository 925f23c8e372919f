// Package platform wraps the host facts the updater depends on: directory
// permissions, per-user data locations, OS bitness, process liveness and the
// Windows registry.
package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/process"
)

// DefaultPollInterval is how often WaitForExit re-checks a process.
const DefaultPollInterval = 200 * time.Millisecond

// Writable reports whether a file can be created inside dir by this process.
func Writable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}

	probe := filepath.Join(dir, ".write-probe-"+uuid.NewString())
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return false
	}
	f.Close()
	_ = os.Remove(probe)
	return true
}

// UserDataDir returns the per-user application data directory (AppData on
// Windows, XDG config home elsewhere).
func UserDataDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user data dir: %w", err)
	}
	return dir, nil
}

// OSBits returns 64 or 32 depending on the running kernel architecture.
func OSBits() (int, error) {
	arch, err := host.KernelArch()
	if err != nil {
		return 0, fmt.Errorf("read kernel arch: %w", err)
	}
	return bitsForArch(arch), nil
}

func bitsForArch(arch string) int {
	arch = strings.ToLower(strings.TrimSpace(arch))
	switch {
	case strings.Contains(arch, "64"), arch == "s390x":
		return 64
	default:
		return 32
	}
}

// ProcessRunning reports whether a process with the given pid is alive.
func ProcessRunning(ctx context.Context, pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	return process.PidExistsWithContext(ctx, int32(pid))
}

// WaitForExit blocks until pid is gone or ctx is done.
func WaitForExit(ctx context.Context, pid int, poll time.Duration) error {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		running, err := ProcessRunning(ctx, pid)
		if err != nil {
			return fmt.Errorf("check process %d: %w", pid, err)
		}
		if !running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

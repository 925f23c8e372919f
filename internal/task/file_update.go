package task

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/selfupdate"

	"github.com/alexisbeaulieu97/feedupdate/internal/condition"
	"github.com/alexisbeaulieu97/feedupdate/internal/platform"
	"github.com/alexisbeaulieu97/feedupdate/internal/source"
)

// FileUpdateTask replaces or creates one file of the installation.
type FileUpdateTask struct {
	Base

	LocalPath      string `json:"localPath"`
	UpdateTo       string `json:"updateTo"`
	Sha256Checksum string `json:"sha256Checksum,omitempty"`
	CanHotSwap     bool   `json:"hotSwap"`

	// Set while the task runs; carried to the helper.
	TempFile   string `json:"tempFile,omitempty"`
	BackupFile string `json:"backupFile,omitempty"`
	Created    bool   `json:"created,omitempty"`

	coldUpdates map[string]any
}

// NewFileUpdateTask returns a task replacing localPath with updateTo.
func NewFileUpdateTask(localPath, updateTo, sha256 string, hotSwap bool) *FileUpdateTask {
	t := &FileUpdateTask{}
	_ = t.Configure(map[string]string{
		"localPath":       localPath,
		"updateTo":        updateTo,
		"sha256-checksum": sha256,
		"hotswap":         strconv.FormatBool(hotSwap),
	})
	return t
}

func (t *FileUpdateTask) Kind() string { return KindFileUpdate }

func (t *FileUpdateTask) TargetPath() string { return t.LocalPath }

func (t *FileUpdateTask) Checksum() (string, string) { return "sha256", t.Sha256Checksum }

func (t *FileUpdateTask) Configure(attrs map[string]string) error {
	t.LocalPath = strings.TrimSpace(attrs["localPath"])
	if t.LocalPath == "" {
		return errors.New("localPath is required")
	}
	t.UpdateTo = strings.TrimSpace(attrs["updateTo"])
	if t.UpdateTo == "" {
		t.UpdateTo = t.LocalPath
	}
	t.Sha256Checksum = strings.ToLower(strings.TrimSpace(attrs["sha256-checksum"]))
	if raw := strings.TrimSpace(attrs["hotswap"]); raw != "" {
		hot, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid hotswap %q", raw)
		}
		t.CanHotSwap = hot
	}
	t.TaskID = t.LocalPath
	return nil
}

func (t *FileUpdateTask) destination(env Env) string {
	if filepath.IsAbs(t.LocalPath) || env.AppDir == "" {
		return t.LocalPath
	}
	return filepath.Join(env.AppDir, t.LocalPath)
}

func (t *FileUpdateTask) Prepare(ctx context.Context, env Env, src source.Source) error {
	if src == nil {
		return errors.New("no update source")
	}
	if env.TempFolder == "" {
		return errors.New("temp folder is not set")
	}
	if err := os.MkdirAll(env.TempFolder, 0o755); err != nil {
		return fmt.Errorf("create temp folder: %w", err)
	}

	staged := filepath.Join(env.TempFolder, uuid.NewString())
	progress := func(written, total int64) {
		if total <= 0 {
			return
		}
		env.report(Progress{
			TaskID:     t.ID(),
			Message:    "Downloading " + t.UpdateTo,
			Percentage: int(written * 100 / total),
		})
	}
	if err := src.FetchFile(ctx, t.UpdateTo, staged, progress); err != nil {
		return fmt.Errorf("fetch %s: %w", t.UpdateTo, err)
	}

	if t.Sha256Checksum != "" {
		sum, err := condition.SHA256File(staged)
		if err != nil {
			_ = os.Remove(staged)
			return fmt.Errorf("hash staged file: %w", err)
		}
		if sum != t.Sha256Checksum {
			_ = os.Remove(staged)
			return fmt.Errorf("checksum mismatch for %s: got %s", t.UpdateTo, sum)
		}
	}

	t.TempFile = staged
	t.setStatus(StatusPrepared)
	env.Logger.WithFields(map[string]any{"task": t.ID(), "staged": staged}).Debug("payload staged")
	return nil
}

func (t *FileUpdateTask) Execute(ctx context.Context, env Env, coldRun bool) (Status, error) {
	if err := ctx.Err(); err != nil {
		return t.setStatus(StatusFailed), err
	}
	if t.TempFile == "" || !fileExists(t.TempFile) {
		return t.setStatus(StatusFailed), errors.New("payload is not prepared")
	}

	dest := t.destination(env)
	if !coldRun && !t.CanHotSwap {
		t.deferToHelper(dest)
		return t.setStatus(StatusRequiresAppRestart), nil
	}

	if err := t.backup(env, dest); err != nil {
		return t.setStatus(StatusFailed), err
	}
	if err := t.replace(dest); err != nil {
		if coldRun {
			return t.setStatus(StatusFailed), err
		}
		env.Logger.WithFields(map[string]any{"task": t.ID(), "error": err.Error()}).
			Warn("hot swap failed, deferring to helper")
		t.deferToHelper(dest)
		return t.setStatus(StatusRequiresAppRestart), nil
	}

	t.coldUpdates = nil
	return t.setStatus(StatusSuccessful), nil
}

func (t *FileUpdateTask) deferToHelper(dest string) {
	t.coldUpdates = map[string]any{dest: t.TempFile}
}

// backup copies the current file into the backup folder before it is touched.
func (t *FileUpdateTask) backup(env Env, dest string) error {
	if !fileExists(dest) {
		t.Created = true
		return nil
	}
	if env.BackupFolder == "" {
		return errors.New("backup folder is not set")
	}
	backupPath := filepath.Join(env.BackupFolder, relativeName(t.LocalPath))
	if err := platform.CopyFile(dest, backupPath); err != nil {
		return fmt.Errorf("backup %s: %w", dest, err)
	}
	t.BackupFile = backupPath
	return nil
}

func (t *FileUpdateTask) replace(dest string) error {
	if t.Created {
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", dest, err)
		}
		return installFile(t.TempFile, dest)
	}

	payload, err := os.Open(t.TempFile)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}
	defer payload.Close()

	opts := selfupdate.Options{TargetPath: dest}
	if info, err := os.Stat(dest); err == nil {
		opts.TargetMode = info.Mode()
	}
	if t.Sha256Checksum != "" {
		sum, err := hex.DecodeString(t.Sha256Checksum)
		if err != nil {
			return fmt.Errorf("decode checksum: %w", err)
		}
		opts.Checksum = sum
	}
	if err := selfupdate.Apply(payload, opts); err != nil {
		if rerr := selfupdate.RollbackError(err); rerr != nil {
			return fmt.Errorf("replace %s: %w (restore failed: %v)", dest, err, rerr)
		}
		return fmt.Errorf("replace %s: %w", dest, err)
	}
	return nil
}

func (t *FileUpdateTask) Rollback(ctx context.Context, env Env) error {
	dest := t.destination(env)
	switch {
	case t.BackupFile != "" && fileExists(t.BackupFile):
		if err := installFile(t.BackupFile, dest); err != nil {
			return fmt.Errorf("restore %s: %w", dest, err)
		}
	case t.Created && t.ExecStatus == StatusSuccessful:
		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", dest, err)
		}
	}
	return nil
}

func (t *FileUpdateTask) MustRunPrivileged(env Env) bool {
	return !writablePath(t.destination(env))
}

func (t *FileUpdateTask) ColdUpdates() iter.Seq2[string, any] {
	if len(t.coldUpdates) == 0 {
		return noColdUpdates
	}
	return func(yield func(string, any) bool) {
		for key, value := range t.coldUpdates {
			if !yield(key, value) {
				return
			}
		}
	}
}

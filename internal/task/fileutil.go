package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexisbeaulieu97/feedupdate/internal/platform"
)

// installFile copies src next to dst and renames it into place.
func installFile(src, dst string) error {
	tmp := dst + ".new"
	if err := platform.CopyFile(src, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename into %s: %w", dst, err)
	}
	return nil
}

// writablePath reports whether path can be written: an existing file must
// open for writing, a new one needs a writable parent.
func writablePath(path string) bool {
	if _, err := os.Stat(path); err == nil {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			return false
		}
		_ = f.Close()
		return true
	}
	dir := filepath.Dir(path)
	for {
		if _, err := os.Stat(dir); err == nil {
			return platform.Writable(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}

// relativeName strips the volume and leading separators so an absolute path
// can be nested under another directory.
func relativeName(path string) string {
	path = strings.TrimPrefix(path, filepath.VolumeName(path))
	return strings.TrimLeft(filepath.Clean(path), `/\`)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

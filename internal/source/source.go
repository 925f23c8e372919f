// Package source provides the transports that deliver a feed document and
// the payload files it references.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ProgressFunc receives the number of bytes written so far and the expected
// total, which is -1 when unknown.
type ProgressFunc func(written, total int64)

// Source fetches the feed text and the files named by its tasks.
type Source interface {
	FetchFeed(ctx context.Context) (string, error)
	FetchFile(ctx context.Context, remotePath, localPath string, progress ProgressFunc) error
}

type progressWriter struct {
	w        io.Writer
	written  int64
	total    int64
	progress ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.progress != nil {
		p.progress(p.written, p.total)
	}
	return n, err
}

// writeFile streams r into dest through a temporary sibling file and renames
// it into place once the copy completed.
func writeFile(ctx context.Context, dest string, r io.Reader, total int64, progress ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := dest + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	pw := &progressWriter{w: tmpFile, total: total, progress: progress}
	if _, err := io.Copy(pw, contextReader{ctx: ctx, r: r}); err != nil {
		return fmt.Errorf("copy payload: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

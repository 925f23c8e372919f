package source

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// Memory serves a fixed feed and in-memory payloads. It backs tests and
// callers that already hold the feed text.
type Memory struct {
	mu    sync.RWMutex
	feed  string
	files map[string][]byte
}

// NewMemory returns a source serving feed.
func NewMemory(feed string) *Memory {
	return &Memory{feed: feed, files: make(map[string][]byte)}
}

// AddFile registers the payload served for remotePath.
func (m *Memory) AddFile(remotePath string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[remotePath] = append([]byte(nil), data...)
}

func (m *Memory) FetchFeed(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.feed, nil
}

func (m *Memory) FetchFile(ctx context.Context, remotePath, localPath string, progress ProgressFunc) error {
	m.mu.RLock()
	data, ok := m.files[remotePath]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("memory source: no file %q", remotePath)
	}
	return writeFile(ctx, localPath, bytes.NewReader(data), int64(len(data)), progress)
}

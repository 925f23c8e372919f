package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFeedName is the feed file looked up inside directory sources.
const DefaultFeedName = "feed.xml"

// Local serves a feed and payloads from a directory, such as a mounted share.
type Local struct {
	Root     string
	FeedName string
}

// NewLocal returns a directory source rooted at root.
func NewLocal(root string) *Local {
	return &Local{Root: root, FeedName: DefaultFeedName}
}

func (l *Local) FetchFeed(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := l.FeedName
	if name == "" {
		name = DefaultFeedName
	}
	data, err := os.ReadFile(filepath.Join(l.Root, name))
	if err != nil {
		return "", fmt.Errorf("read feed: %w", err)
	}
	return string(data), nil
}

func (l *Local) FetchFile(ctx context.Context, remotePath, localPath string, progress ProgressFunc) error {
	path, err := l.resolve(remotePath)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", remotePath, err)
	}
	defer f.Close()

	total := int64(-1)
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}
	return writeFile(ctx, localPath, f, total, progress)
}

// resolve keeps remote paths inside the source root.
func (l *Local) resolve(remotePath string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(strings.TrimSpace(remotePath)))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("empty remote path")
	}
	return filepath.Join(l.Root, clean), nil
}

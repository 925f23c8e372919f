package source

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"
)

// Git serves a feed published in a git repository. The repository is
// shallow-cloned once into a scratch directory and then read like a Local
// source.
type Git struct {
	URL      string
	Branch   string
	FeedName string
	WorkDir  string

	mu    sync.Mutex
	local *Local
}

// NewGit returns a source for the repository at url.
func NewGit(url, branch string) *Git {
	return &Git{URL: url, Branch: branch, FeedName: DefaultFeedName}
}

func (g *Git) FetchFeed(ctx context.Context) (string, error) {
	local, err := g.checkout(ctx)
	if err != nil {
		return "", err
	}
	return local.FetchFeed(ctx)
}

func (g *Git) FetchFile(ctx context.Context, remotePath, localPath string, progress ProgressFunc) error {
	local, err := g.checkout(ctx)
	if err != nil {
		return err
	}
	return local.FetchFile(ctx, remotePath, localPath, progress)
}

// Close removes the scratch clone.
func (g *Git) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.local == nil {
		return nil
	}
	err := os.RemoveAll(g.local.Root)
	g.local = nil
	return err
}

func (g *Git) checkout(ctx context.Context) (*Local, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.local != nil {
		return g.local, nil
	}

	workDir := g.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	dest, err := os.MkdirTemp(workDir, "feed-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("create clone dir: %w", err)
	}

	opts := &git.CloneOptions{URL: g.URL}
	if isRemote(g.URL) {
		opts.Depth = 1
	}
	if g.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
		opts.SingleBranch = true
	}
	if _, err := git.PlainCloneContext(ctx, dest, false, opts); err != nil {
		os.RemoveAll(dest)
		return nil, fmt.Errorf("clone %s: %w", g.URL, err)
	}

	g.local = &Local{Root: dest, FeedName: g.FeedName}
	return g.local, nil
}

// isRemote reports whether url uses a network transport. Local clones are
// always full since the in-process file transport does not negotiate depth.
func isRemote(url string) bool {
	if strings.HasPrefix(url, "file://") {
		return false
	}
	return strings.Contains(url, "://") || strings.Contains(url, "@")
}

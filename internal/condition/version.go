package condition

import (
	"context"
	"debug/buildinfo"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
)

// VersionProber reads the version of a local file.
type VersionProber interface {
	FileVersion(path string) (*version.Version, error)
}

// VersionProberFunc adapts a function to VersionProber.
type VersionProberFunc func(path string) (*version.Version, error)

func (f VersionProberFunc) FileVersion(path string) (*version.Version, error) {
	return f(path)
}

var versionPattern = regexp.MustCompile(`v?\d+(\.\d+)+`)

// VersionSidecarSuffix names the file next to a target that may hold its
// version, for files that carry no version metadata of their own.
const VersionSidecarSuffix = ".version"

// MetadataVersionProber reads a file's version without running it. It tries,
// in order, the platform version resource (Windows), Go build info embedded
// in the binary and a "<path>.version" sidecar file.
type MetadataVersionProber struct{}

func (MetadataVersionProber) FileVersion(path string) (*version.Version, error) {
	if v, err := resourceVersion(path); err == nil {
		return v, nil
	}
	if info, err := buildinfo.ReadFile(path); err == nil {
		if v, err := parseVersion(info.Main.Version); err == nil {
			return v, nil
		}
	}
	data, err := os.ReadFile(path + VersionSidecarSuffix)
	if err != nil {
		return nil, fmt.Errorf("no version metadata for %s", path)
	}
	return parseVersion(string(data))
}

func parseVersion(text string) (*version.Version, error) {
	match := versionPattern.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("no version in %q", strings.TrimSpace(text))
	}
	return version.NewVersion(strings.TrimPrefix(match, "v"))
}

// ExecVersionProber runs "<path> --version" and parses the first version
// number printed. It executes the target, so it is only used when the
// configuration asks for it.
type ExecVersionProber struct {
	Timeout time.Duration
}

func (p ExecVersionProber) FileVersion(path string) (*version.Version, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return nil, fmt.Errorf("run %s --version: %w", path, err)
	}
	return parseVersion(string(out))
}

// FileVersion compares the installed file version against Version.
type FileVersion struct {
	LocalPath      string
	Version        *version.Version
	ComparisonType string
}

func newFileVersion(attrs map[string]string) (Leaf, error) {
	v, err := version.NewVersion(strings.TrimSpace(attrs["version"]))
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", attrs["version"], err)
	}
	what := strings.ToLower(attrs["what"])
	switch what {
	case "":
		what = "below"
	case "below", "above", "is":
	default:
		return nil, fmt.Errorf("unknown comparison %q", attrs["what"])
	}
	return &FileVersion{LocalPath: attrs["localPath"], Version: v, ComparisonType: what}, nil
}

func (c *FileVersion) Kind() string { return KindFileVersion }

// Met is true when the file is missing or its version cannot be read, since
// an unversioned target still needs the update.
func (c *FileVersion) Met(env Env) bool {
	path := env.Resolve(c.LocalPath)
	if _, err := os.Stat(path); err != nil {
		return true
	}

	prober := env.Versions
	if prober == nil {
		prober = MetadataVersionProber{}
	}
	local, err := prober.FileVersion(path)
	if err != nil || local == nil {
		return true
	}

	switch c.ComparisonType {
	case "above":
		return local.GreaterThan(c.Version)
	case "is":
		return local.Equal(c.Version)
	default:
		return local.LessThan(c.Version)
	}
}

package condition

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/feedupdate/internal/platform"
)

// Feed element names of the built-in leaves.
const (
	KindFileExists   = "FileExistsCondition"
	KindFileVersion  = "FileVersionCondition"
	KindFileSize     = "FileSizeCondition"
	KindFileChecksum = "FileChecksumCondition"
	KindFileDate     = "FileDateCondition"
	KindOS           = "OSCondition"
)

// FileExists is met when the file is present.
type FileExists struct {
	LocalPath string
}

func newFileExists(attrs map[string]string) (Leaf, error) {
	return &FileExists{LocalPath: attrs["localPath"]}, nil
}

func (c *FileExists) Kind() string { return KindFileExists }

func (c *FileExists) Met(env Env) bool {
	path := env.Resolve(c.LocalPath)
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// FileSize compares the local file size against Size. An empty comparison
// means "differs".
type FileSize struct {
	LocalPath      string
	Size           int64
	ComparisonType string
}

func newFileSize(attrs map[string]string) (Leaf, error) {
	size, err := strconv.ParseInt(strings.TrimSpace(attrs["size"]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid size %q: %w", attrs["size"], err)
	}
	what := strings.ToLower(attrs["what"])
	switch what {
	case "", "is", "below", "above":
	default:
		return nil, fmt.Errorf("unknown comparison %q", attrs["what"])
	}
	return &FileSize{LocalPath: attrs["localPath"], Size: size, ComparisonType: what}, nil
}

func (c *FileSize) Kind() string { return KindFileSize }

func (c *FileSize) Met(env Env) bool {
	info, err := os.Stat(env.Resolve(c.LocalPath))
	if err != nil {
		return true
	}
	switch c.ComparisonType {
	case "is":
		return info.Size() == c.Size
	case "below":
		return info.Size() < c.Size
	case "above":
		return info.Size() > c.Size
	default:
		return info.Size() != c.Size
	}
}

// FileChecksum is met when the local file is missing or its digest differs
// from Checksum.
type FileChecksum struct {
	LocalPath    string
	ChecksumType string
	Checksum     string
}

func newFileChecksum(attrs map[string]string) (Leaf, error) {
	kind := strings.ToLower(attrs["checksumType"])
	if kind == "" {
		kind = "sha256"
	}
	if kind != "sha256" {
		return nil, fmt.Errorf("unsupported checksum type %q", attrs["checksumType"])
	}
	sum := strings.TrimSpace(attrs["checksum"])
	if sum == "" {
		return nil, fmt.Errorf("checksum is required")
	}
	return &FileChecksum{LocalPath: attrs["localPath"], ChecksumType: kind, Checksum: sum}, nil
}

func (c *FileChecksum) Kind() string { return KindFileChecksum }

func (c *FileChecksum) Met(env Env) bool {
	sum, err := SHA256File(env.Resolve(c.LocalPath))
	if err != nil {
		return true
	}
	return !strings.EqualFold(sum, c.Checksum)
}

// SHA256File returns the lowercase hex SHA-256 digest of a file.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileDate compares the local modification time against Timestamp.
type FileDate struct {
	LocalPath      string
	Timestamp      time.Time
	ComparisonType string
}

func newFileDate(attrs map[string]string) (Leaf, error) {
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(attrs["timestamp"]))
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", attrs["timestamp"], err)
	}
	what := strings.ToLower(attrs["what"])
	switch what {
	case "":
		what = "older"
	case "older", "newer", "is":
	default:
		return nil, fmt.Errorf("unknown comparison %q", attrs["what"])
	}
	return &FileDate{LocalPath: attrs["localPath"], Timestamp: ts, ComparisonType: what}, nil
}

func (c *FileDate) Kind() string { return KindFileDate }

func (c *FileDate) Met(env Env) bool {
	info, err := os.Stat(env.Resolve(c.LocalPath))
	if err != nil {
		return true
	}
	mod := info.ModTime().Truncate(time.Second)
	ts := c.Timestamp.Truncate(time.Second)
	switch c.ComparisonType {
	case "newer":
		return mod.After(ts)
	case "is":
		return mod.Equal(ts)
	default:
		return mod.Before(ts)
	}
}

// OS is met when the running OS has the given bitness.
type OS struct {
	Bits int
}

func newOS(attrs map[string]string) (Leaf, error) {
	bits, err := strconv.Atoi(strings.TrimSpace(attrs["bit"]))
	if err != nil || (bits != 32 && bits != 64) {
		return nil, fmt.Errorf("invalid bit %q", attrs["bit"])
	}
	return &OS{Bits: bits}, nil
}

func (c *OS) Kind() string { return KindOS }

func (c *OS) Met(env Env) bool {
	probe := env.OSBits
	if probe == nil {
		probe = platform.OSBits
	}
	bits, err := probe()
	if err != nil {
		return false
	}
	return bits == c.Bits
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
)

const (
	DefaultUpdateProcessName    = "FeedUpdateProcess"
	DefaultUpdateExecutableName = "feedupdate-helper"
	DefaultConnectTimeout       = 30
	DefaultBackupFolderName     = "Backup"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		UpdateProcessName:    DefaultUpdateProcessName,
		UpdateExecutableName: DefaultUpdateExecutableName,
		ConnectTimeout:       DefaultConnectTimeout,
		VersionProbe:         VersionProbeMetadata,
		Log:                  LogConfig{Level: "info"},
	}
	if runtime.GOOS != "windows" {
		cfg.ElevationCommand = "sudo"
	}
	return cfg
}

// Resolve fills derived paths: the application path defaults to the running
// executable, the temp folder to a fresh directory under the system temp dir,
// the backup folder to <app dir>/Backup and the helper to the executable name
// next to the application. A relative backup folder is placed under the temp
// folder.
func (c *Config) Resolve() error {
	if c.ApplicationPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve application path: %w", err)
		}
		c.ApplicationPath = exe
	}
	abs, err := filepath.Abs(c.ApplicationPath)
	if err != nil {
		return fmt.Errorf("resolve application path: %w", err)
	}
	c.ApplicationPath = abs

	if c.TempFolder == "" {
		c.TempFolder = filepath.Join(os.TempDir(), uuid.NewString())
	}
	if c.BackupFolder == "" {
		c.BackupFolder = filepath.Join(c.AppDir(), DefaultBackupFolderName)
	} else if !filepath.IsAbs(c.BackupFolder) {
		c.BackupFolder = filepath.Join(c.TempFolder, c.BackupFolder)
	}
	if c.HelperPath == "" {
		name := c.UpdateExecutableName
		if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
			name += ".exe"
		}
		c.HelperPath = filepath.Join(c.AppDir(), name)
	}
	return nil
}

// LoadPublicKeys reads the armored public key files in order. Relative paths
// resolve against the application directory.
func (c *Config) LoadPublicKeys() ([]string, error) {
	keys := make([]string, 0, len(c.PublicKeys))
	for _, path := range c.PublicKeys {
		if !filepath.IsAbs(path) && c.ApplicationPath != "" {
			path = filepath.Join(c.AppDir(), path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read public key %s: %w", path, err)
		}
		keys = append(keys, string(data))
	}
	return keys, nil
}

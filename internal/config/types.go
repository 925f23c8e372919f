// Package config loads and validates the host updater configuration.
package config

import (
	"path/filepath"
	"time"
)

// Feed source kinds.
const (
	FeedHTTP  = "http"
	FeedLocal = "local"
	FeedGit   = "git"
)

// Version probe modes.
const (
	VersionProbeMetadata = "metadata"
	VersionProbeExec     = "exec"
)

// Config is the host updater configuration.
type Config struct {
	UpdateProcessName    string `yaml:"update_process_name" validate:"required,channel_name"`
	UpdateExecutableName string `yaml:"update_executable_name" validate:"required"`
	ApplicationPath      string `yaml:"application_path"`
	TempFolder           string `yaml:"temp_folder"`
	BackupFolder         string `yaml:"backup_folder"`
	HelperPath           string `yaml:"helper_path"`

	Feed       FeedConfig `yaml:"feed"`
	PublicKeys []string   `yaml:"public_keys" validate:"dive,required"`

	// ConnectTimeout is in seconds.
	ConnectTimeout            int      `yaml:"connect_timeout" validate:"gte=0"`
	ElevationCommand          string   `yaml:"elevation_command"`
	DependenciesForColdUpdate []string `yaml:"dependencies_for_cold_update" validate:"dive,required"`

	// VersionProbe selects how FileVersion conditions read installed
	// versions. "exec" runs the file with --version.
	VersionProbe string `yaml:"version_probe" validate:"omitempty,oneof=metadata exec"`

	Log LogConfig `yaml:"log"`
}

// FeedConfig locates the update feed.
type FeedConfig struct {
	Kind     string `yaml:"kind" validate:"omitempty,oneof=http local git"`
	Location string `yaml:"location" validate:"required_with=Kind"`
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	Branch   string `yaml:"branch"`
	FeedName string `yaml:"feed_name"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level         string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	HumanReadable bool   `yaml:"human_readable"`
	File          string `yaml:"file"`
}

// AppDir is the directory holding the application executable.
func (c *Config) AppDir() string {
	return filepath.Dir(c.ApplicationPath)
}

// ConnectTimeoutDuration returns ConnectTimeout as a duration.
func (c *Config) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

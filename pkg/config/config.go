// Package config loads efisync settings from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath     = "/etc/efisync.yaml"
	DefaultLogFile  = "/Library/Logs/efisync.log"
	DefaultLockFile = "/var/run/efisync.lock"

	BackendNative = "native"
	BackendRsync  = "rsync"
)

// Config holds every setting of a run. It is passed explicitly to the
// components that need it.
type Config struct {
	// Simulate computes the mirror operations without applying them and
	// skips verification.
	Simulate bool `yaml:"simulate"`
	LogFile  string `yaml:"log_file"`
	LockFile string `yaml:"lock_file"`
	// ReadOnlySource mounts the source EFI partition read-only.
	ReadOnlySource bool `yaml:"read_only_source"`
	// StrictUnmount turns unmount failures into a failed run.
	StrictUnmount bool          `yaml:"strict_unmount"`
	MountTimeout  time.Duration `yaml:"mount_timeout"`
	SyncTimeout   time.Duration `yaml:"sync_timeout"`
	Backend       string        `yaml:"sync_backend"`
	// Exclude lists doublestar patterns, relative to the EFI partition
	// root, that are neither copied nor deleted nor hashed.
	Exclude []string `yaml:"exclude"`
	// BootVolume is resolved to find the EFI partition of the running
	// system, which is never used as a destination. Empty disables the
	// check.
	BootVolume string `yaml:"boot_volume"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogFile:        DefaultLogFile,
		LockFile:       DefaultLockFile,
		ReadOnlySource: true,
		MountTimeout:   time.Minute,
		SyncTimeout:    10 * time.Minute,
		Backend:        BackendNative,
		Exclude:        []string{".*"},
		BootVolume:     "/",
	}
}

// Load reads the YAML file at path on top of Default. A missing file is
// not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("cannot read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks settings that cannot be checked by the YAML decoder.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendNative, BackendRsync:
	default:
		return fmt.Errorf("unknown sync backend %q", c.Backend)
	}
	if c.MountTimeout < 0 || c.SyncTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}
	if c.LogFile == "" {
		return errors.New("log file cannot be empty")
	}
	return nil
}

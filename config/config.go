// Package config holds the process-wide settings that the installer and
// package handle need but do not own: where packages land, where their
// metadata lives, where scratch work happens, and whether to verify
// content hashes on install. There is no package-level mutable state;
// every collaborator receives a *Config explicitly.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"go.yaml.in/yaml/v3"
)

// Config is threaded explicitly through the installer and package handle.
// Defaults mirror the reference tool: install under "/", keep metadata
// under "/var/pkg", scratch under "/tmp", and verify MD5s unless told
// otherwise.
type Config struct {
	// InstallRoot is the directory under which all package paths are realized.
	InstallRoot string `yaml:"install_root"`
	// MetadataDir holds per-package description files and the ownership database.
	MetadataDir string `yaml:"metadata_dir"`
	// TempDir is the parent of scratch directories created for package handles.
	TempDir string `yaml:"temp_dir"`
	// VerifyMD5 enables post-extraction hash verification in pkgfile.Open.
	VerifyMD5 bool `yaml:"verify_md5"`

	// Logger receives commit-window diagnostics (installer passes 5-8) and
	// repair-pass diagnostics. A nil Logger is replaced by a no-op one.
	Logger hclog.Logger `yaml:"-"`
}

// Default returns the configuration the reference tool uses when nothing
// else is specified.
func Default() *Config {
	return &Config{
		InstallRoot: "/",
		MetadataDir: "/var/pkg",
		TempDir:     "/tmp",
		VerifyMD5:   true,
		Logger:      hclog.NewNullLogger(),
	}
}

// Load reads a YAML configuration file and overlays it onto Default().
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return cfg, nil
}

// log returns a usable logger even if the caller never set one.
func (c *Config) log() hclog.Logger {
	if c == nil || c.Logger == nil {
		return hclog.NewNullLogger()
	}
	return c.Logger
}

// Log exposes the configured logger to collaborators outside this package.
func (c *Config) Log() hclog.Logger { return c.log() }

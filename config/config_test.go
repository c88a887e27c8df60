package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, "/", cfg.InstallRoot)
	require.Equal(t, "/var/pkg", cfg.MetadataDir)
	require.Equal(t, "/tmp", cfg.TempDir)
	require.True(t, cfg.VerifyMD5)
	require.NotNil(t, cfg.Logger)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mpkg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("install_root: /opt/root\nverify_md5: false\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/opt/root", cfg.InstallRoot)
	require.False(t, cfg.VerifyMD5)
	// untouched fields keep their defaults
	require.Equal(t, "/var/pkg", cfg.MetadataDir)
	require.NotNil(t, cfg.Logger)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

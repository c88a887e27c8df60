package install

import (
	"crypto/md5"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mpkg-go/mpkg/config"
	"github.com/mpkg-go/mpkg/descr"
	"github.com/mpkg-go/mpkg/ownerdb"
	"github.com/mpkg-go/mpkg/pkgfile"
)

func testSetup(t *testing.T) (*config.Config, ownerdb.DB) {
	t.Helper()
	root := t.TempDir()
	meta := t.TempDir()

	cfg := config.Default()
	cfg.InstallRoot = root
	cfg.MetadataDir = meta
	cfg.TempDir = t.TempDir()

	db, err := ownerdb.OpenText(filepath.Join(meta, "owners.db"))
	require.NoError(t, err)
	return cfg, db
}

func buildHandle(t *testing.T, scratchParent, name string, mtime int64, entries []descr.Entry, contents map[string][]byte) *pkgfile.Handle {
	t.Helper()
	scratch := filepath.Join(scratchParent, name+"-scratch")
	require.NoError(t, os.MkdirAll(scratch, 0o755))
	for relPath, data := range contents {
		dest := filepath.Join(scratch, filepath.FromSlash(strings.TrimPrefix(relPath, "/")))
		require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
		require.NoError(t, os.WriteFile(dest, data, 0o644))
	}
	d := &descr.Description{Name: name, MTime: mtime, Entries: entries}
	d.Sort()
	return &pkgfile.Handle{Descr: d, UnpackedDir: scratch}
}

func dirEntry(p string, mode uint32) descr.Entry {
	return descr.Entry{Kind: descr.KindDir, Path: p, Owner: "", Group: "", Mode: mode}
}

func fileEntry(p string, mode uint32, content []byte) descr.Entry {
	return descr.Entry{Kind: descr.KindFile, Path: p, Owner: "", Group: "", Mode: mode, Hash: md5.Sum(content)}
}

func symlinkEntry(p, target string) descr.Entry {
	return descr.Entry{Kind: descr.KindSymlink, Path: p, Target: target, Owner: "", Group: ""}
}

// TestInstallFreshInstall covers scenario S1: a clean install places
// every entry on disk with the right mode, writes the description, and
// asserts ownership of every path.
func TestInstallFreshInstall(t *testing.T) {
	cfg, db := testSetup(t)
	content := []byte("#!/bin/sh\necho hi\n")
	h := buildHandle(t, cfg.TempDir, "hello", 1700000000, []descr.Entry{
		dirEntry("/usr", 0o755),
		dirEntry("/usr/bin", 0o755),
		fileEntry("/usr/bin/hello", 0o755, content),
	}, map[string][]byte{"/usr/bin/hello": content})

	require.NoError(t, Install(cfg, db, h))

	target := filepath.Join(cfg.InstallRoot, "usr", "bin", "hello")
	fi, err := os.Stat(target)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), fi.Mode().Perm())
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, content, got)

	descrBytes, err := os.ReadFile(filepath.Join(cfg.MetadataDir, "hello"))
	require.NoError(t, err)
	d, err := descr.Parse(descrBytes)
	require.NoError(t, err)
	require.Equal(t, "hello", d.Name)

	for _, p := range []string{"/usr", "/usr/bin", "/usr/bin/hello"} {
		pkg, ok, err := db.Query(p)
		require.NoError(t, err)
		require.True(t, ok, p)
		require.Equal(t, "hello", pkg)
	}
}

// TestInstallReinstallIsIdempotent covers scenario S2: reinstalling an
// identical package leaves an identical post-state and no stray
// temporaries in the metadata directory once Pass 8 has run.
func TestInstallReinstallIsIdempotent(t *testing.T) {
	cfg, db := testSetup(t)
	content := []byte("payload")
	entries := []descr.Entry{
		dirEntry("/usr", 0o755),
		dirEntry("/usr/bin", 0o755),
		fileEntry("/usr/bin/hello", 0o755, content),
	}

	h1 := buildHandle(t, cfg.TempDir, "hello", 1700000000, entries, map[string][]byte{"/usr/bin/hello": content})
	require.NoError(t, Install(cfg, db, h1))

	h2 := buildHandle(t, cfg.TempDir, "hello", 1700000000, entries, map[string][]byte{"/usr/bin/hello": content})
	require.NoError(t, Install(cfg, db, h2))

	target := filepath.Join(cfg.InstallRoot, "usr", "bin", "hello")
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, content, got)

	// The text backend writes owners.db on Close.
	require.NoError(t, db.Close())
	metaEntries, err := os.ReadDir(cfg.MetadataDir)
	require.NoError(t, err)
	var names []string
	for _, e := range metaEntries {
		names = append(names, e.Name())
	}
	require.Equal(t, []string{"hello", "owners.db"}, names)
}

// TestInstallRollsBackOnStagingFailure covers scenario S3's atomicity
// guarantee: when Pass 3 fails partway through (here, because a
// described file's content is absent from the scratch directory, the
// same externally-visible failure shape as a staging write error), the
// installer returns an error and leaves the install root, metadata
// directory, and database exactly as found.
func TestInstallRollsBackOnStagingFailure(t *testing.T) {
	cfg, db := testSetup(t)
	content := []byte("payload")
	h := buildHandle(t, cfg.TempDir, "hello", 1700000000, []descr.Entry{
		dirEntry("/usr", 0o755),
		dirEntry("/usr/bin", 0o755),
		fileEntry("/usr/bin/hello", 0o755, content),
	}, nil) // content deliberately not staged: Pass 3's link-or-copy will fail

	err := Install(cfg, db, h)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(cfg.InstallRoot, "usr"))
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(cfg.MetadataDir, "hello"))
	require.True(t, os.IsNotExist(statErr))
	n, err := db.EntryCount()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

// TestInstallUpgradeDropsPath covers scenario S4: an upgrade whose new
// description omits a previously-installed path removes it from disk
// and the database while adding the new path.
func TestInstallUpgradeDropsPath(t *testing.T) {
	cfg, db := testSetup(t)
	content := []byte("v1")
	h1 := buildHandle(t, cfg.TempDir, "hello", 1700000000, []descr.Entry{
		dirEntry("/usr", 0o755),
		dirEntry("/usr/bin", 0o755),
		fileEntry("/usr/bin/hello", 0o755, content),
	}, map[string][]byte{"/usr/bin/hello": content})
	require.NoError(t, Install(cfg, db, h1))

	content2 := []byte("v2")
	h2 := buildHandle(t, cfg.TempDir, "hello", 1700000001, []descr.Entry{
		dirEntry("/usr", 0o755),
		dirEntry("/usr/bin", 0o755),
		fileEntry("/usr/bin/hello2", 0o755, content2),
	}, map[string][]byte{"/usr/bin/hello2": content2})
	require.NoError(t, Install(cfg, db, h2))

	_, err := os.Stat(filepath.Join(cfg.InstallRoot, "usr", "bin", "hello"))
	require.True(t, os.IsNotExist(err))
	_, ok, err := db.Query("/usr/bin/hello")
	require.NoError(t, err)
	require.False(t, ok)

	got, err := os.ReadFile(filepath.Join(cfg.InstallRoot, "usr", "bin", "hello2"))
	require.NoError(t, err)
	require.Equal(t, content2, got)
	pkg, ok, err := db.Query("/usr/bin/hello2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", pkg)
}

// TestInstallPathCollisionWithNonDirectory covers scenario S6: a
// directory entry whose target path already exists as a regular file
// fails the install and leaves the filesystem and database untouched.
func TestInstallPathCollisionWithNonDirectory(t *testing.T) {
	cfg, db := testSetup(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InstallRoot, "usr"), []byte("not a directory"), 0o644))

	content := []byte("payload")
	h := buildHandle(t, cfg.TempDir, "hello", 1700000000, []descr.Entry{
		dirEntry("/usr", 0o755),
		dirEntry("/usr/bin", 0o755),
		fileEntry("/usr/bin/hello", 0o755, content),
	}, map[string][]byte{"/usr/bin/hello": content})

	err := Install(cfg, db, h)
	require.Error(t, err)

	fi, err := os.Stat(filepath.Join(cfg.InstallRoot, "usr"))
	require.NoError(t, err)
	require.False(t, fi.IsDir())
	_, statErr := os.Stat(filepath.Join(cfg.MetadataDir, "hello"))
	require.True(t, os.IsNotExist(statErr))
	n, err := db.EntryCount()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

// TestInstallSymlinks exercises Pass 4/7: a symlink is created over an
// existing regular file at its path and asserted in the database.
func TestInstallSymlinks(t *testing.T) {
	cfg, db := testSetup(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.InstallRoot, "usr", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InstallRoot, "usr", "bin", "old"), []byte("stale"), 0o644))

	h := buildHandle(t, cfg.TempDir, "hello", 1700000000, []descr.Entry{
		dirEntry("/usr", 0o755),
		dirEntry("/usr/bin", 0o755),
		symlinkEntry("/usr/bin/old", "/usr/bin/new-target"),
	}, nil)

	require.NoError(t, Install(cfg, db, h))

	link := filepath.Join(cfg.InstallRoot, "usr", "bin", "old")
	fi, err := os.Lstat(link)
	require.NoError(t, err)
	require.True(t, fi.Mode()&os.ModeSymlink != 0)
	dest, err := os.Readlink(link)
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/new-target", dest)

	pkg, ok, err := db.Query("/usr/bin/old")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", pkg)
}

func TestClassifyDiskErrRecognizesOutOfDisk(t *testing.T) {
	raw := &os.PathError{Op: "write", Path: "/x", Err: syscall.ENOSPC}
	require.ErrorIs(t, classifyDiskErr(raw), ErrOutOfDisk)
}

func TestClassifyDiskErrLeavesOtherErrorsAlone(t *testing.T) {
	raw := &os.PathError{Op: "write", Path: "/x", Err: syscall.EACCES}
	require.NotErrorIs(t, classifyDiskErr(raw), ErrOutOfDisk)
}

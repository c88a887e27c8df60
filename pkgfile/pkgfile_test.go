package pkgfile

import (
	"bytes"
	"crypto/md5"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mpkg-go/mpkg/config"
	"github.com/mpkg-go/mpkg/descr"
	"github.com/mpkg-go/mpkg/stream"
	"github.com/mpkg-go/mpkg/tarcodec"
)

// buildV1Package assembles a minimal v1 package archive (package-description
// plus one payload file) the way a package-creation tool would, purely as
// a test fixture — this system does not implement package creation.
func buildV1Package(t *testing.T, dir, name string, content []byte, corruptHash bool) string {
	t.Helper()

	hash := md5.Sum(content)
	if corruptHash {
		hash[0] ^= 0xff
	}
	d := &descr.Description{
		Name:  "hello",
		MTime: 1700000000,
		Entries: []descr.Entry{
			{Kind: descr.KindDir, Path: "/usr", Owner: "root", Group: "root", Mode: 0o755},
			{Kind: descr.KindDir, Path: "/usr/bin", Owner: "root", Group: "root", Mode: 0o755},
			{Kind: descr.KindFile, Path: "/usr/bin/hello", Owner: "root", Group: "root", Mode: 0o755, Hash: hash},
		},
	}
	descrBytes, err := d.Bytes()
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	w, err := stream.CreateFile(path, 0o644)
	require.NoError(t, err)
	tw := tarcodec.NewWriter(w)

	putMember(t, tw, "package-description", descrBytes)
	putMember(t, tw, "usr/bin/hello", content)

	require.NoError(t, tw.Close())
	require.NoError(t, w.Close())
	return path
}

func putMember(t *testing.T, tw *tarcodec.Writer, name string, content []byte) {
	t.Helper()
	sw, err := tw.PutNextFile(tarcodec.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(1700000000, 0),
		Typeflag: tarcodec.TypeReg,
	})
	require.NoError(t, err)
	_, err = sw.Write(content)
	require.NoError(t, err)
	require.NoError(t, sw.Close())
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.TempDir = t.TempDir()
	return cfg
}

func TestOpenV1Success(t *testing.T) {
	dir := t.TempDir()
	path := buildV1Package(t, dir, "hello.tar", []byte("#!/bin/sh\necho hi\n"), false)

	h, err := Open(testConfig(t), path)
	require.NoError(t, err)
	defer h.Close()

	require.Equal(t, "hello", h.Descr.Name)
	require.Equal(t, V1, h.Version)
	staged, err := os.ReadFile(filepath.Join(h.UnpackedDir, "usr", "bin", "hello"))
	require.NoError(t, err)
	require.Equal(t, "#!/bin/sh\necho hi\n", string(staged))
}

func TestOpenV1HashMismatchFails(t *testing.T) {
	dir := t.TempDir()
	path := buildV1Package(t, dir, "hello.tar", []byte("payload"), true)

	_, err := Open(testConfig(t), path)
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestOpenV1SkipsVerificationWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	path := buildV1Package(t, dir, "hello.tar", []byte("payload"), true)

	cfg := testConfig(t)
	cfg.VerifyMD5 = false
	h, err := Open(cfg, path)
	require.NoError(t, err)
	defer h.Close()
}

func TestCloseRemovesScratchDir(t *testing.T) {
	dir := t.TempDir()
	path := buildV1Package(t, dir, "hello.tar", []byte("payload"), false)

	h, err := Open(testConfig(t), path)
	require.NoError(t, err)
	scratch := h.UnpackedDir
	require.NoError(t, h.Close())

	_, err = os.Stat(scratch)
	require.True(t, os.IsNotExist(err))
}

func TestOpenV1GzipCompressed(t *testing.T) {
	dir := t.TempDir()
	raw := buildV1Package(t, dir, "hello.tar", []byte("payload"), false)

	rawBytes, err := os.ReadFile(raw)
	require.NoError(t, err)

	gzPath := filepath.Join(dir, "hello.tar.gz")
	w, err := stream.CreateGzipFile(gzPath, 0o644)
	require.NoError(t, err)
	_, err = w.Write(rawBytes)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	h, err := Open(testConfig(t), gzPath)
	require.NoError(t, err)
	defer h.Close()
	require.Equal(t, "hello", h.Descr.Name)
}

func TestOpenV2Success(t *testing.T) {
	dir := t.TempDir()
	content := []byte("v2 payload")
	hash := md5.Sum(content)
	d := &descr.Description{
		Name:  "v2pkg",
		MTime: 1700000001,
		Entries: []descr.Entry{
			{Kind: descr.KindFile, Path: "/usr/bin/v2pkg", Owner: "root", Group: "root", Mode: 0o755, Hash: hash},
		},
	}
	descrBytes, err := d.Bytes()
	require.NoError(t, err)

	var contentTar bytes.Buffer
	innerW := &memStreamV{Buffer: &contentTar}
	itw := tarcodec.NewWriter(innerW)
	putMember(t, itw, "usr/bin/v2pkg", content)
	require.NoError(t, itw.Close())

	outerPath := filepath.Join(dir, "v2pkg.mpkg")
	ow, err := stream.CreateFile(outerPath, 0o644)
	require.NoError(t, err)
	otw := tarcodec.NewWriter(ow)
	putMember(t, otw, "package-description", descrBytes)
	putMember(t, otw, "package-content.tar", contentTar.Bytes())
	require.NoError(t, otw.Close())
	require.NoError(t, ow.Close())

	h, err := Open(testConfig(t), outerPath)
	require.NoError(t, err)
	defer h.Close()
	require.Equal(t, V2, h.Version)
	require.Equal(t, "v2pkg", h.Descr.Name)
	staged, err := os.ReadFile(filepath.Join(h.UnpackedDir, "usr", "bin", "v2pkg"))
	require.NoError(t, err)
	require.Equal(t, content, staged)
}

// memStreamV adapts a *bytes.Buffer to stream.Writer for building fixtures
// entirely in memory.
type memStreamV struct {
	*bytes.Buffer
}

func (m *memStreamV) Close() error { return nil }

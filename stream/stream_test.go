package stream

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	w, err := CreateFile(path, 0o644)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello stream"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close()) // idempotent

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello stream", string(got))
}

func TestGzipFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.gz")
	w, err := CreateGzipFile(path, 0o644)
	require.NoError(t, err)
	payload := bytes.Repeat([]byte("payload-bytes "), 100)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenGzipFile(path)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, payload, got)
}

func TestGzipOverStreamDoesNotCloseInner(t *testing.T) {
	var buf bytes.Buffer
	inner := &countingCloser{Writer: &buf}
	w := GzipWriterOverStream(inner)
	_, err := w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Equal(t, 0, inner.closes)

	innerR := &countingReadCloser{Reader: bytes.NewReader(buf.Bytes())}
	r, err := GzipOverStream(innerR)
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, 0, innerR.closes)
}

func TestBzip2FileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bz2")
	w, err := CreateBzip2File(path, 0o644)
	require.NoError(t, err)
	payload := bytes.Repeat([]byte("bzip2 payload "), 200)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenBzip2File(path)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, payload, got)
}

func TestMD5SinkConformance(t *testing.T) {
	cases := map[string]string{
		"":    "d41d8cd98f00b204e9800998ecf8427e",
		"abc": "900150983cd24fb0d6963f7d28e17f72",
	}
	for input, want := range cases {
		s := NewMD5Sink()
		_, err := s.Write([]byte(input))
		require.NoError(t, err)
		require.Equal(t, want, s.SumHex())
	}
}

func TestVerifyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	s := NewMD5Sink()
	s.Write([]byte("abc"))
	ok, err := VerifyFile(path, s.Sum())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyFile(path, [16]byte{})
	require.NoError(t, err)
	require.False(t, ok)
}

type countingCloser struct {
	io.Writer
	closes int
}

func (c *countingCloser) Close() error {
	c.closes++
	return nil
}

type countingReadCloser struct {
	io.Reader
	closes int
}

func (c *countingReadCloser) Close() error {
	c.closes++
	return nil
}

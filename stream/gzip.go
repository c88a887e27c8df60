package stream

import (
	"compress/gzip"
	"fmt"
	"os"
)

// gzipReader decorates an inner Reader with gzip decompression. If
// ownsInner is true, closing this stream also closes the inner stream
// (the file-backed constructors below set this); otherwise the caller
// retains ownership of the inner stream, per the composition invariant.
type gzipReader struct {
	gz        *gzip.Reader
	inner     Reader
	ownsInner bool
}

func (g *gzipReader) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReader) Close() error {
	err := g.gz.Close()
	if g.ownsInner {
		if innerErr := g.inner.Close(); err == nil {
			err = innerErr
		}
	}
	return err
}

// GzipOverStream wraps an already-open Reader with gzip decompression.
// The caller remains the owner of under; closing the returned stream does
// not close under.
func GzipOverStream(under Reader) (Reader, error) {
	gz, err := gzip.NewReader(under)
	if err != nil {
		return nil, fmt.Errorf("stream: opening gzip stream: %w", err)
	}
	return &gzipReader{gz: gz, inner: under, ownsInner: false}, nil
}

// OpenGzipFile opens path and wraps it with gzip decompression; closing
// the returned stream also closes the file.
func OpenGzipFile(path string) (Reader, error) {
	under, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(under)
	if err != nil {
		under.Close()
		return nil, fmt.Errorf("stream: opening gzip file %s: %w", path, err)
	}
	return &gzipReader{gz: gz, inner: under, ownsInner: true}, nil
}

// gzipWriter decorates an inner Writer with gzip compression, flushing
// and closing the gzip layer before the inner layer on Close.
type gzipWriter struct {
	gz        *gzip.Writer
	inner     Writer
	ownsInner bool
}

func (g *gzipWriter) Write(p []byte) (int, error) { return g.gz.Write(p) }

func (g *gzipWriter) Close() error {
	err := g.gz.Close()
	if g.ownsInner {
		if innerErr := g.inner.Close(); err == nil {
			err = innerErr
		}
	}
	return err
}

// GzipOverStream's write-side counterpart: wraps an already-open Writer
// with gzip compression without taking ownership of it.
func GzipWriterOverStream(under Writer) Writer {
	return &gzipWriter{gz: gzip.NewWriter(under), inner: under, ownsInner: false}
}

// CreateGzipFile creates path and wraps it with gzip compression; closing
// the returned stream also closes the file.
func CreateGzipFile(path string, mode os.FileMode) (Writer, error) {
	under, err := CreateFile(path, mode)
	if err != nil {
		return nil, err
	}
	return &gzipWriter{gz: gzip.NewWriter(under), inner: under, ownsInner: true}, nil
}

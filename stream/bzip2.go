package stream

import (
	"compress/bzip2"
	"fmt"
	"io"
	"os"

	dbzip2 "github.com/dsnet/compress/bzip2"
)

// The standard library's compress/bzip2 only reads; writing needs the
// bidirectional implementation from dsnet/compress.

type bzip2Reader struct {
	r         io.Reader
	inner     Reader
	ownsInner bool
}

func (b *bzip2Reader) Read(p []byte) (int, error) { return b.r.Read(p) }

func (b *bzip2Reader) Close() error {
	if b.ownsInner {
		return b.inner.Close()
	}
	return nil
}

// Bzip2OverStream wraps an already-open Reader with bzip2 decompression
// without taking ownership of it.
func Bzip2OverStream(under Reader) Reader {
	return &bzip2Reader{r: bzip2.NewReader(under), inner: under, ownsInner: false}
}

// OpenBzip2File opens path and wraps it with bzip2 decompression; closing
// the returned stream also closes the file.
func OpenBzip2File(path string) (Reader, error) {
	under, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	return &bzip2Reader{r: bzip2.NewReader(under), inner: under, ownsInner: true}, nil
}

type bzip2Writer struct {
	bw        *dbzip2.Writer
	inner     Writer
	ownsInner bool
}

func (b *bzip2Writer) Write(p []byte) (int, error) { return b.bw.Write(p) }

func (b *bzip2Writer) Close() error {
	err := b.bw.Close()
	if b.ownsInner {
		if innerErr := b.inner.Close(); err == nil {
			err = innerErr
		}
	}
	return err
}

func newBzip2Writer(under Writer, ownsInner bool) (Writer, error) {
	bw, err := dbzip2.NewWriter(under, &dbzip2.WriterConfig{Level: dbzip2.DefaultCompression})
	if err != nil {
		return nil, fmt.Errorf("stream: opening bzip2 writer: %w", err)
	}
	return &bzip2Writer{bw: bw, inner: under, ownsInner: ownsInner}, nil
}

// Bzip2WriterOverStream wraps an already-open Writer with bzip2
// compression without taking ownership of it.
func Bzip2WriterOverStream(under Writer) (Writer, error) {
	return newBzip2Writer(under, false)
}

// CreateBzip2File creates path and wraps it with bzip2 compression;
// closing the returned stream also closes the file.
func CreateBzip2File(path string, mode os.FileMode) (Writer, error) {
	under, err := CreateFile(path, mode)
	if err != nil {
		return nil, err
	}
	w, err := newBzip2Writer(under, true)
	if err != nil {
		under.Close()
		return nil, err
	}
	return w, nil
}

package stream

import (
	"fmt"
	"os"
)

// OpenFile returns a Reader backed by a plain file. Closing it closes the
// underlying os.File, since a stream-over-file owns the file it opened.
func OpenFile(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stream: opening %s: %w", path, err)
	}
	return &fileStream{f: f}, nil
}

// CreateFile returns a Writer backed by a plain file, creating or
// truncating it with the given mode.
func CreateFile(path string, mode os.FileMode) (Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return nil, fmt.Errorf("stream: creating %s: %w", path, err)
	}
	return &fileStream{f: f}, nil
}

type fileStream struct {
	f      *os.File
	closed bool
}

func (s *fileStream) Read(p []byte) (int, error)  { return s.f.Read(p) }
func (s *fileStream) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *fileStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}

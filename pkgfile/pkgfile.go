// Package pkgfile opens a package file, dispatches to the v1 or v2
// on-disk format, stages its payload in a scratch directory, and
// validates content hashes before handing a Handle to the installer.
package pkgfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpkg-go/mpkg/config"
	"github.com/mpkg-go/mpkg/descr"
	"github.com/mpkg-go/mpkg/pkgpath"
	"github.com/mpkg-go/mpkg/stream"
	"github.com/mpkg-go/mpkg/tarcodec"
)

// Version identifies which on-disk package format a Handle was read as.
type Version int

const (
	V1 Version = iota
	V2
)

// ErrFormatMismatch is raised internally when the guessed format's
// structural expectations (member count, member names) are not met,
// triggering Open's fall-through to the other format.
var ErrFormatMismatch = errors.New("pkgfile: does not look like the guessed format")

// ErrHashMismatch is returned when a staged file's content does not
// match the digest recorded in its description entry.
var ErrHashMismatch = errors.New("pkgfile: content hash mismatch")

// Handle is an opened package: its parsed description, the scratch
// directory its payload was staged into, and which format it was.
type Handle struct {
	Descr       *descr.Description
	UnpackedDir string
	Version     Version
}

// Open guesses the package's format from path's suffix, stages its
// content in a fresh scratch directory under cfg.TempDir, and verifies
// every file's recorded hash (unless cfg.VerifyMD5 is false).
func Open(cfg *config.Config, path string) (*Handle, error) {
	guess := guessVersion(path)

	h, err := openAs(cfg, path, guess)
	if errors.Is(err, ErrFormatMismatch) {
		alt := V1
		if guess == V1 {
			alt = V2
		}
		h, err = openAs(cfg, path, alt)
	}
	if err != nil {
		return nil, err
	}

	if cfg.VerifyMD5 {
		if err := verifyHashes(h); err != nil {
			pkgpath.Recrm(h.UnpackedDir)
			return nil, err
		}
	}
	return h, nil
}

// Close recursively removes the scratch directory and releases the
// description.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	err := pkgpath.Recrm(h.UnpackedDir)
	h.Descr = nil
	return err
}

func guessVersion(path string) Version {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".mpkg"), strings.HasSuffix(lower, ".pkg"):
		return V2
	default:
		return V1
	}
}

func openAs(cfg *config.Config, path string, v Version) (*Handle, error) {
	scratch, err := os.MkdirTemp(cfg.TempDir, "mpkg-unpack-*")
	if err != nil {
		return nil, fmt.Errorf("pkgfile: creating scratch dir: %w", err)
	}

	var h *Handle
	if v == V1 {
		h, err = openV1(path, scratch)
	} else {
		h, err = openV2(path, scratch)
	}
	if err != nil {
		pkgpath.Recrm(scratch)
		return nil, err
	}
	h.Version = v
	return h, nil
}

// openOuter opens path as a read stream, decompressing it if its suffix
// says to, for v1 archives.
func openOuter(path string) (stream.Reader, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return stream.OpenGzipFile(path)
	case strings.HasSuffix(lower, ".tar.bz2"):
		return stream.OpenBzip2File(path)
	default:
		return stream.OpenFile(path)
	}
}

func openV1(path, scratch string) (*Handle, error) {
	outer, err := openOuter(path)
	if err != nil {
		return nil, err
	}
	defer outer.Close()

	tr := tarcodec.NewReader(outer)
	var description *descr.Description
	sawMember := false

	for {
		hdr, err := tr.AdvanceToNextFile()
		if errors.Is(err, tarcodec.ErrNoMoreFiles) {
			break
		}
		if errors.Is(err, tarcodec.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("pkgfile: %s: archive truncated", path)
		}
		if err != nil {
			return nil, fmt.Errorf("pkgfile: %s: %w", path, err)
		}
		sawMember = true

		if hdr.Typeflag != tarcodec.TypeReg {
			continue
		}

		name := strings.TrimPrefix(hdr.Name, "/")
		if name == "package-description" {
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, tr.FileReader()); err != nil {
				return nil, fmt.Errorf("pkgfile: reading description: %w", err)
			}
			description, err = descr.Parse(buf.Bytes())
			if err != nil {
				return nil, fmt.Errorf("pkgfile: %s: %w", path, err)
			}
			continue
		}

		if err := extractMember(tr, name, scratch); err != nil {
			return nil, err
		}
	}

	if !sawMember {
		return nil, fmt.Errorf("pkgfile: %s: %w: empty archive", path, ErrFormatMismatch)
	}
	if description == nil {
		return nil, fmt.Errorf("pkgfile: %s: missing package-description member", path)
	}

	return &Handle{Descr: description, UnpackedDir: scratch}, nil
}

func openV2(path, scratch string) (*Handle, error) {
	outer, err := stream.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer outer.Close()

	tr := tarcodec.NewReader(outer)

	var description *descr.Description
	var contentName string
	var contentBuf bytes.Buffer
	memberCount := 0

	for {
		hdr, err := tr.AdvanceToNextFile()
		if errors.Is(err, tarcodec.ErrNoMoreFiles) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pkgfile: %s: %w", path, err)
		}
		memberCount++
		name := strings.TrimPrefix(hdr.Name, "/")

		switch {
		case name == "package-description":
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, tr.FileReader()); err != nil {
				return nil, fmt.Errorf("pkgfile: reading description: %w", err)
			}
			description, err = descr.Parse(buf.Bytes())
			if err != nil {
				return nil, fmt.Errorf("pkgfile: %s: %w", path, err)
			}
		case strings.HasPrefix(name, "package-content.tar"):
			contentName = name
			if _, err := io.Copy(&contentBuf, tr.FileReader()); err != nil {
				return nil, fmt.Errorf("pkgfile: reading %s: %w", name, err)
			}
		default:
			return nil, fmt.Errorf("pkgfile: %s: %w: unexpected member %q", path, ErrFormatMismatch, name)
		}
	}

	if memberCount != 2 || description == nil || contentName == "" {
		return nil, fmt.Errorf("pkgfile: %s: %w", path, ErrFormatMismatch)
	}

	inner, err := decompressContent(contentName, contentBuf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("pkgfile: %s: %w", path, err)
	}
	defer inner.Close()

	itr := tarcodec.NewReader(inner)
	for {
		hdr, err := itr.AdvanceToNextFile()
		if errors.Is(err, tarcodec.ErrNoMoreFiles) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pkgfile: %s: reading inner archive: %w", path, err)
		}
		if hdr.Typeflag != tarcodec.TypeReg {
			continue
		}
		if err := extractMember(itr, strings.TrimPrefix(hdr.Name, "/"), scratch); err != nil {
			return nil, err
		}
	}

	return &Handle{Descr: description, UnpackedDir: scratch}, nil
}

func decompressContent(memberName string, raw []byte) (stream.Reader, error) {
	under := &bufCloser{Reader: bytes.NewReader(raw)}
	switch {
	case strings.HasSuffix(memberName, ".gz"):
		return stream.GzipOverStream(under)
	case strings.HasSuffix(memberName, ".bz2"):
		return stream.Bzip2OverStream(under), nil
	default:
		return under, nil
	}
}

type bufCloser struct {
	*bytes.Reader
}

func (b *bufCloser) Close() error { return nil }

func extractMember(tr *tarcodec.Reader, relName, scratch string) error {
	dest := filepath.Join(scratch, filepath.FromSlash(relName))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("pkgfile: staging %s: %w", relName, err)
	}
	w, err := stream.CreateFile(dest, 0o644)
	if err != nil {
		return fmt.Errorf("pkgfile: staging %s: %w", relName, err)
	}
	if _, err := io.Copy(w, tr.FileReader()); err != nil {
		w.Close()
		return fmt.Errorf("pkgfile: staging %s: %w", relName, err)
	}
	return w.Close()
}

func verifyHashes(h *Handle) error {
	for _, e := range h.Descr.Entries {
		if e.Kind != descr.KindFile {
			continue
		}
		staged := filepath.Join(h.UnpackedDir, filepath.FromSlash(strings.TrimPrefix(e.Path, "/")))
		ok, err := stream.VerifyFile(staged, e.Hash)
		if err != nil {
			return fmt.Errorf("pkgfile: verifying %s: %w", e.Path, err)
		}
		if !ok {
			return fmt.Errorf("pkgfile: %s: %w", e.Path, ErrHashMismatch)
		}
	}
	return nil
}

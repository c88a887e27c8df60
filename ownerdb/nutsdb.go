package ownerdb

import (
	"fmt"

	"github.com/nutsdb/nutsdb"

	"github.com/mpkg-go/mpkg/ordmap"
)

// bucket holds every path -> package assertion in a single nutsdb
// B-tree-indexed bucket.
const bucket = "owners"

// BTreeDB is the embedded-B-tree ownership backend (nutsdb), grounded on
// nabbar-golib's config/components/nutsdb wiring of the same library.
// Since this system is single-writer and single-process per install
// (spec's concurrency model explicitly excludes concurrent installs), the
// full key set is mirrored into an in-memory ordered map on Open and kept
// in sync on every mutation; Enumerate, Query and EntryCount read the
// mirror rather than re-scanning nutsdb on every call, the same "load
// fully, serve from memory" posture the text backend takes.
type BTreeDB struct {
	db     *nutsdb.DB
	mirror *ordmap.Map[string, string]
	closed bool
}

// OpenBTree opens (creating if absent) a nutsdb-backed ownership database
// rooted at dir.
func OpenBTree(dir string) (*BTreeDB, error) {
	db, err := nutsdb.Open(nutsdb.DefaultOptions, nutsdb.WithDir(dir))
	if err != nil {
		return nil, fmt.Errorf("ownerdb: opening nutsdb at %s: %w", dir, err)
	}

	b := &BTreeDB{db: db, mirror: ordmap.New[string, string](ordmap.LexicographicString)}

	err = db.Update(func(tx *nutsdb.Tx) error {
		if !tx.ExistBucket(nutsdb.DataStructureBTree, bucket) {
			return tx.NewBucket(nutsdb.DataStructureBTree, bucket)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ownerdb: preparing bucket %s: %w", bucket, err)
	}

	err = db.View(func(tx *nutsdb.Tx) error {
		entries, err := tx.GetAll(bucket)
		if err != nil && err != nutsdb.ErrBucketEmpty && err != nutsdb.ErrKeyNotFound {
			return err
		}
		for _, e := range entries {
			b.mirror.Insert(string(e.Key), string(e.Value))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ownerdb: loading bucket %s: %w", bucket, err)
	}

	return b, nil
}

func (b *BTreeDB) Insert(path, pkg string) error {
	err := b.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(bucket, []byte(path), []byte(pkg), 0)
	})
	if err != nil {
		return fmt.Errorf("ownerdb: inserting %s: %w", path, err)
	}
	b.mirror.Insert(path, pkg)
	return nil
}

func (b *BTreeDB) Delete(path string) (bool, error) {
	if _, ok := b.mirror.Query(path); !ok {
		return false, nil
	}
	err := b.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Delete(bucket, []byte(path))
	})
	if err != nil {
		return false, fmt.Errorf("ownerdb: deleting %s: %w", path, err)
	}
	b.mirror.Delete(path)
	return true, nil
}

func (b *BTreeDB) Query(path string) (string, bool, error) {
	pkg, ok := b.mirror.Query(path)
	return pkg, ok, nil
}

func (b *BTreeDB) Enumerate(visit func(path, pkg string) bool) error {
	c := b.mirror.Enumerate()
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

func (b *BTreeDB) EntryCount() (int, error) {
	return b.mirror.Size(), nil
}

func (b *BTreeDB) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("ownerdb: closing nutsdb: %w", err)
	}
	return nil
}

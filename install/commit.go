package install

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mpkg-go/mpkg/config"
	"github.com/mpkg-go/mpkg/descr"
	"github.com/mpkg-go/mpkg/ordmap"
	"github.com/mpkg-go/mpkg/ownerdb"
)

// pass5 finalizes every claimed directory's ownership and permissions,
// parents before children, and asserts ownership in db. Errors here are
// logged, not propagated: the commit window never unwinds.
func pass5(cfg *config.Config, db ownerdb.DB, pkgName string, bk *book) {
	log := cfg.Log()
	for _, k := range sortedKeys(bk.pass2Dirs, ordmap.PathPreOrder) {
		rec, _ := bk.pass2Dirs.Query(k)
		if !rec.Claim {
			continue
		}
		fsPath := filepath.Join(cfg.InstallRoot, k)
		if err := os.Chown(fsPath, rec.Owner, rec.Group); err != nil {
			log.Warn("pass 5: chown failed", "path", fsPath, "error", err)
		}
		if err := os.Chmod(fsPath, os.FileMode(rec.Mode&0o7777)); err != nil {
			log.Warn("pass 5: chmod failed", "path", fsPath, "error", err)
		}
		if err := db.Insert(k, pkgName); err != nil {
			log.Warn("pass 5: db insert failed", "path", k, "error", err)
		}
	}
}

// pass6 finalizes every staged file: it clears whatever currently
// occupies the target path, hard-links the staged temp into place, and
// applies ownership, mode, and mtime.
func pass6(cfg *config.Config, db ownerdb.DB, pkgName string, bk *book) {
	log := cfg.Log()
	deleteOwner := func(rel string) {
		if _, err := db.Delete(rel); err != nil {
			log.Warn("pass 6: db delete failed", "path", rel, "error", err)
		}
	}

	for _, k := range sortedKeys(bk.pass3Files, ordmap.LexicographicString) {
		fs, _ := bk.pass3Files.Query(k)
		target := filepath.Join(cfg.InstallRoot, k)

		if fi, err := os.Lstat(target); err == nil {
			if fi.IsDir() {
				reapDirRecursive(cfg, deleteOwner, target, k)
			} else if err := os.Remove(target); err != nil {
				log.Warn("pass 6: removing existing target failed", "path", target, "error", err)
			}
		}

		if err := os.Link(fs.TempPath, target); err != nil {
			log.Warn("pass 6: hardlink failed", "path", target, "error", err)
			continue
		}
		os.Remove(fs.TempPath)
		if err := os.Chown(target, fs.Owner, fs.Group); err != nil {
			log.Warn("pass 6: chown failed", "path", target, "error", err)
		}
		if err := os.Chmod(target, os.FileMode(fs.Mode&0o7777)); err != nil {
			log.Warn("pass 6: chmod failed", "path", target, "error", err)
		}
		mtime := time.Unix(fs.MTime, 0)
		if err := os.Chtimes(target, mtime, mtime); err != nil {
			log.Warn("pass 6: setting mtime failed", "path", target, "error", err)
		}
		if err := db.Insert(k, pkgName); err != nil {
			log.Warn("pass 6: db insert failed", "path", k, "error", err)
		}
	}
}

// pass7 removes every symlink original that Pass 4 displaced and
// asserts ownership of every newly created symlink.
func pass7(cfg *config.Config, db ownerdb.DB, pkgName string, bk *book) {
	log := cfg.Log()
	for _, k := range sortedKeys(bk.pass4Renamed, ordmap.LexicographicString) {
		tmp, _ := bk.pass4Renamed.Query(k)
		if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
			log.Warn("pass 7: removing renamed-aside original failed", "path", tmp, "error", err)
		}
		if _, err := db.Delete(k); err != nil {
			log.Warn("pass 7: db delete failed", "path", k, "error", err)
		}
	}
	for _, k := range sortedKeys(bk.pass4New, ordmap.LexicographicString) {
		if err := db.Insert(k, pkgName); err != nil {
			log.Warn("pass 7: db insert failed", "path", k, "error", err)
		}
	}
}

// pass8 reaps the prior generation of this package: any path the old
// description claimed that the new one dropped, and that the database
// still attributes to this package, is removed from disk and the
// database (a dropped directory only if it is empty; otherwise it stays
// on disk and claimed); the displaced old description is then deleted.
func pass8(cfg *config.Config, db ownerdb.DB, pkgName string, newDescr *descr.Description, bk *book) {
	log := cfg.Log()
	if bk.oldDescrTemp == "" {
		return
	}

	data, err := os.ReadFile(bk.oldDescrTemp)
	if err != nil {
		log.Warn("pass 8: reading prior description failed", "path", bk.oldDescrTemp, "error", err)
		return
	}
	oldDescr, err := descr.Parse(data)
	if err != nil {
		log.Warn("pass 8: parsing prior description failed", "path", bk.oldDescrTemp, "error", err)
		return
	}

	newPaths := make(map[string]bool, len(newDescr.Entries))
	for _, e := range newDescr.Entries {
		newPaths[e.Path] = true
	}

	var dirs []string
	for _, e := range oldDescr.Entries {
		if newPaths[e.Path] {
			continue
		}
		owner, ok, err := db.Query(e.Path)
		if err != nil {
			log.Warn("pass 8: db query failed", "path", e.Path, "error", err)
			continue
		}
		if !ok || owner != pkgName {
			continue
		}

		if e.Kind == descr.KindDir {
			dirs = append(dirs, e.Path)
			continue
		}

		fsPath := filepath.Join(cfg.InstallRoot, e.Path)
		if err := os.Remove(fsPath); err != nil && !os.IsNotExist(err) {
			log.Warn("pass 8: removing reaped path failed", "path", fsPath, "error", err)
			continue
		}
		if _, err := db.Delete(e.Path); err != nil {
			log.Warn("pass 8: db delete failed", "path", e.Path, "error", err)
		}
	}

	sort.Slice(dirs, func(i, j int) bool { return ordmap.PathPostOrder(dirs[i], dirs[j]) < 0 })
	for _, p := range dirs {
		fsPath := filepath.Join(cfg.InstallRoot, p)
		if err := os.Remove(fsPath); err != nil {
			if !os.IsNotExist(err) {
				log.Warn("pass 8: directory not empty, leaving claimed", "path", fsPath, "error", err)
			}
			continue
		}
		if _, err := db.Delete(p); err != nil {
			log.Warn("pass 8: db delete failed", "path", p, "error", err)
		}
	}

	if err := os.Remove(bk.oldDescrTemp); err != nil && !os.IsNotExist(err) {
		log.Warn("pass 8: removing prior description failed", "path", bk.oldDescrTemp, "error", err)
	}
}

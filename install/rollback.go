package install

import (
	"os"
	"path/filepath"

	"github.com/mpkg-go/mpkg/config"
	"github.com/mpkg-go/mpkg/ordmap"
	"github.com/mpkg-go/mpkg/pkgpath"
)

// rollback4 undoes Pass 4: remove every symlink it created and rename
// every displaced original back into place.
func rollback4(cfg *config.Config, bk *book) {
	for _, k := range sortedKeys(bk.pass4New, ordmap.LexicographicString) {
		pkgpath.Recrm(filepath.Join(cfg.InstallRoot, k))
	}
	for _, k := range sortedKeys(bk.pass4Renamed, ordmap.LexicographicString) {
		tmp, _ := bk.pass4Renamed.Query(k)
		os.Rename(tmp, filepath.Join(cfg.InstallRoot, k))
	}
}

// rollback3 undoes Pass 3: unlink every staged temp file (any order) and
// remove every directory Pass 3 created, children before parents.
func rollback3(cfg *config.Config, bk *book) {
	for _, k := range sortedKeys(bk.pass3Files, ordmap.LexicographicString) {
		fs, _ := bk.pass3Files.Query(k)
		pkgpath.Recrm(fs.TempPath)
	}
	removeUnrolledPostOrder(cfg, bk.pass3Dirs)
}

// rollback2 undoes Pass 2: remove every directory it created, children
// before parents, tolerating paths that are already absent.
func rollback2(cfg *config.Config, bk *book) {
	removeUnrolledPostOrder(cfg, bk.pass2Dirs)
}

// rollback1 undoes Pass 1: unlink the newly written description and, if
// a prior one was displaced, hard-link it back to the canonical name.
func rollback1(cfg *config.Config, bk *book) {
	if bk.descrPath == "" {
		return
	}
	os.Remove(bk.descrPath)
	if bk.oldDescrTemp != "" {
		os.Link(bk.oldDescrTemp, bk.descrPath)
		os.Remove(bk.oldDescrTemp)
	}
}

func removeUnrolledPostOrder(cfg *config.Config, m *ordmap.Map[string, dirRecord]) {
	for _, k := range sortedKeys(m, ordmap.PathPostOrder) {
		rec, _ := m.Query(k)
		if !rec.Unroll {
			continue
		}
		pkgpath.Recrm(filepath.Join(cfg.InstallRoot, k))
	}
}

// Package install implements the transactional package installer: an
// eight-pass pipeline over one package handle (pkgfile) and one
// ownership database (ownerdb), split at the point all new content
// lands on disk under temporary names. The first four passes are fully
// reversible and roll back as one unit on any failure; the last four
// only rename, permission-change, or delete already-staged content, so
// they cannot fail for lack of disk space, and their errors are logged
// rather than unwound.
package install

import (
	"github.com/mpkg-go/mpkg/config"
	"github.com/mpkg-go/mpkg/ownerdb"
	"github.com/mpkg-go/mpkg/pkgfile"
)

// Install applies the package described by h's description to
// cfg.InstallRoot, recording ownership in db. On success every path in
// h.Descr is present on disk and owned by the package in db, and any
// path dropped by an upgrade has been reaped. On failure during passes
// 1-4, the filesystem and db are left exactly as they were found; errors
// satisfying errors.Is(err, ErrOutOfDisk) should abort a multi-package
// batch rather than move on to the next package.
func Install(cfg *config.Config, db ownerdb.DB, h *pkgfile.Handle) error {
	d := h.Descr
	d.Sort()

	bk := newBook()

	if err := pass1(cfg, d, bk); err != nil {
		rollback1(cfg, bk)
		return err
	}
	if err := pass2(cfg, d, bk); err != nil {
		rollback2(cfg, bk)
		rollback1(cfg, bk)
		return err
	}
	if err := pass3(cfg, d, h, bk); err != nil {
		rollback3(cfg, bk)
		rollback2(cfg, bk)
		rollback1(cfg, bk)
		return err
	}
	if err := pass4(cfg, d, bk); err != nil {
		rollback4(cfg, bk)
		rollback3(cfg, bk)
		rollback2(cfg, bk)
		rollback1(cfg, bk)
		return err
	}

	// Point of no return: passes 5-8 commit. Errors from here on are
	// logged and skipped rather than rolled back.
	pass5(cfg, db, d.Name, bk)
	pass6(cfg, db, d.Name, bk)
	pass7(cfg, db, d.Name, bk)
	pass8(cfg, db, d.Name, d, bk)

	return nil
}

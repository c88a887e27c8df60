package install

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mpkg-go/mpkg/config"
	"github.com/mpkg-go/mpkg/descr"
	"github.com/mpkg-go/mpkg/pkgfile"
	"github.com/mpkg-go/mpkg/pkgpath"
)

// pass1 installs the new description, displacing any prior one for the
// same package name aside into a temp file recorded in bk.oldDescrTemp.
func pass1(cfg *config.Config, d *descr.Description, bk *book) error {
	descrPath := filepath.Join(cfg.MetadataDir, d.Name)
	bk.descrPath = descrPath

	fi, err := os.Lstat(descrPath)
	switch {
	case err == nil:
		if !fi.Mode().IsRegular() {
			return fmt.Errorf("install: pass 1: %s exists and is not a regular file", descrPath)
		}
		tmp, err := pkgpath.RenameToTemp(descrPath)
		if err != nil {
			return fmt.Errorf("install: pass 1: %w", err)
		}
		bk.oldDescrTemp = tmp
	case os.IsNotExist(err):
		// No prior description; nothing to displace.
	default:
		return fmt.Errorf("install: pass 1: statting %s: %w", descrPath, err)
	}

	data, err := d.Bytes()
	if err != nil {
		return fmt.Errorf("install: pass 1: serializing description: %w", err)
	}
	if err := os.WriteFile(descrPath, data, 0o644); err != nil {
		return classifyDiskErr(fmt.Errorf("install: pass 1: writing %s: %w", descrPath, err))
	}
	return nil
}

// pass2 walks every directory entry's path from the install root,
// creating missing components and finalizing the last one's claim state.
func pass2(cfg *config.Config, d *descr.Description, bk *book) error {
	for _, e := range d.Entries {
		if e.Kind != descr.KindDir {
			continue
		}
		uid, gid := resolveUID(e.Owner), resolveGID(e.Group)
		if err := walkCreateDirs(cfg, e.Path, bk.pass2Dirs, true, uid, gid, e.Mode); err != nil {
			return fmt.Errorf("install: pass 2: %w", err)
		}
	}
	return nil
}

// pass3 ensures every file entry's enclosing directory exists, then
// stages its content under a unique temp name beside its final target.
func pass3(cfg *config.Config, d *descr.Description, h *pkgfile.Handle, bk *book) error {
	for _, e := range d.Entries {
		if e.Kind != descr.KindFile {
			continue
		}
		dir := path.Dir(e.Path)
		if err := walkCreateDirs(cfg, dir, bk.pass3Dirs, false, 0, 0, 0); err != nil {
			return fmt.Errorf("install: pass 3: %w", err)
		}

		targetDir := filepath.Join(cfg.InstallRoot, dir)
		tempPath, err := pkgpath.UniqueTempName(targetDir, path.Base(e.Path))
		if err != nil {
			return classifyDiskErr(fmt.Errorf("install: pass 3: %w", err))
		}

		srcPath := filepath.Join(h.UnpackedDir, filepath.FromSlash(strings.TrimPrefix(e.Path, "/")))
		if err := linkOrCopy(srcPath, tempPath); err != nil {
			os.Remove(tempPath)
			return classifyDiskErr(fmt.Errorf("install: pass 3: staging %s: %w", e.Path, err))
		}

		bk.pass3Files.Insert(e.Path, fileState{
			TempPath: tempPath,
			Owner:    resolveUID(e.Owner),
			Group:    resolveGID(e.Group),
			Mode:     e.Mode,
			MTime:    d.MTime,
		})
	}
	return nil
}

// pass4 creates every symlink entry, displacing any existing path aside
// into a temp name recorded in bk.pass4Renamed.
func pass4(cfg *config.Config, d *descr.Description, bk *book) error {
	for _, e := range d.Entries {
		if e.Kind != descr.KindSymlink {
			continue
		}
		targetFS := filepath.Join(cfg.InstallRoot, e.Path)

		if _, err := os.Lstat(targetFS); err == nil {
			tmp, err := pkgpath.RenameToTemp(targetFS)
			if err != nil {
				return fmt.Errorf("install: pass 4: %w", err)
			}
			bk.pass4Renamed.Insert(e.Path, tmp)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("install: pass 4: statting %s: %w", targetFS, err)
		}

		if err := os.Symlink(e.Target, targetFS); err != nil {
			return classifyDiskErr(fmt.Errorf("install: pass 4: creating symlink %s: %w", targetFS, err))
		}
		bk.pass4New.Insert(e.Path, struct{}{})
	}
	return nil
}

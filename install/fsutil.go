package install

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/mpkg-go/mpkg/config"
	"github.com/mpkg-go/mpkg/ordmap"
	"github.com/mpkg-go/mpkg/pkgpath"
)

// resolveUID looks up name in the host user database, defaulting to 0
// (root) when the name is unknown, per spec §4.7 Pass 2 step 1.
func resolveUID(name string) int {
	u, err := user.Lookup(name)
	if err != nil {
		return 0
	}
	id, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0
	}
	return id
}

// resolveGID looks up name in the host group database, defaulting to 0.
func resolveGID(name string) int {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0
	}
	id, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0
	}
	return id
}

// walkCreateDirs walks relPath componentwise from cfg.InstallRoot,
// creating each missing intermediate directory with mode 0700 and
// recording it in book with the placeholder metadata (claim=false,
// unroll=true, owner=0, group=0, mode=0755), exactly as Pass 2 and
// Pass 3 both specify. When finalClaim is true the final component is
// recorded (and, if missing, created) with the supplied owner/group/mode
// and claim=true; when false it is treated like any other intermediate
// component, matching Pass 3's "claim=false always".
func walkCreateDirs(cfg *config.Config, relPath string, book *ordmap.Map[string, dirRecord], finalClaim bool, finalOwner, finalGroup int, finalMode uint32) error {
	it := pkgpath.NewIterator(relPath)
	var comps []string
	for {
		c, ok := it.Next()
		if !ok {
			break
		}
		comps = append(comps, c.Name)
	}

	cur := ""
	for i, name := range comps {
		cur += "/" + name
		isFinal := i == len(comps)-1
		fsPath := filepath.Join(cfg.InstallRoot, cur)

		fi, err := os.Lstat(fsPath)
		switch {
		case err == nil:
			if !fi.IsDir() {
				return fmt.Errorf("%s exists and is not a directory", fsPath)
			}
			if isFinal && finalClaim {
				book.Insert(cur, dirRecord{Owner: finalOwner, Group: finalGroup, Mode: finalMode, Claim: true, Unroll: false})
			}
		case os.IsNotExist(err):
			if err := os.Mkdir(fsPath, 0o700); err != nil {
				return classifyDiskErr(fmt.Errorf("creating %s: %w", fsPath, err))
			}
			if isFinal && finalClaim {
				book.Insert(cur, dirRecord{Owner: finalOwner, Group: finalGroup, Mode: finalMode, Claim: true, Unroll: true})
			} else {
				book.Insert(cur, dirRecord{Owner: 0, Group: 0, Mode: 0o755, Claim: false, Unroll: true})
			}
		default:
			return fmt.Errorf("statting %s: %w", fsPath, err)
		}
	}
	return nil
}

// linkOrCopy hard-links src to dst, falling back to a full byte copy
// only when the link fails cross-device, per spec §4.7 Pass 3.
func linkOrCopy(src, dst string) error {
	err := os.Link(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("linking %s to %s: %w", src, dst, err)
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

// reapDirRecursive removes fsPath and everything under it, deleting the
// corresponding ownership assertions as it goes, used by Pass 6 when a
// file entry's target path is occupied by a directory.
func reapDirRecursive(cfg *config.Config, deleteOwner func(relPath string), fsPath, relPath string) {
	entries, err := os.ReadDir(fsPath)
	if err != nil {
		cfg.Log().Warn("install: reading directory for replacement", "path", fsPath, "error", err)
		return
	}
	for _, ent := range entries {
		childFS := filepath.Join(fsPath, ent.Name())
		childRel := pkgpath.Join(relPath, ent.Name())
		if ent.IsDir() {
			reapDirRecursive(cfg, deleteOwner, childFS, childRel)
			continue
		}
		if err := os.Remove(childFS); err != nil {
			cfg.Log().Warn("install: removing file for replacement", "path", childFS, "error", err)
			continue
		}
		deleteOwner(childRel)
	}
	if err := os.Remove(fsPath); err != nil {
		cfg.Log().Warn("install: removing directory for replacement", "path", fsPath, "error", err)
		return
	}
	deleteOwner(relPath)
}

package install

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mpkg-go/mpkg/config"
	"github.com/mpkg-go/mpkg/ownerdb"
)

// strayTempPattern matches the ".BASENAME.mpkg.PID.XXXXXX" temporary
// names Pass 1/3/4 create, the same shape pkgpath.UniqueTempName emits.
var strayTempPattern = regexp.MustCompile(`^\.[^/]+\.mpkg\.\d+\..+$`)

// Report summarizes what Repair found and, where it could safely act
// unattended, fixed.
type Report struct {
	// RemovedMetadataTemps lists stray temporaries found directly under
	// the metadata directory (displaced descriptions from a crash
	// between Pass 1 and Pass 8).
	RemovedMetadataTemps []string
	// RemovedPayloadTemps lists stray temporaries found anywhere under
	// the install root (staged content from a crash in Pass 3 or 4).
	RemovedPayloadTemps []string
	// DanglingOwnership lists paths the database still claims that no
	// longer exist on disk; Repair reports these but does not remove
	// them, since a missing path and a genuinely stale assertion are
	// indistinguishable without reference to a description.
	DanglingOwnership []string
}

// Repair reconciles the three states a killed installer can leave
// behind (spec §5, concurrency & resource model): it deletes lingering
// rename-to-temp artifacts under the metadata directory and the install
// root, and reports (without altering) ownership assertions whose path
// no longer exists. It is always safe to run; rerunning it is a no-op
// once the tree is clean.
func Repair(cfg *config.Config, db ownerdb.DB) (Report, error) {
	var report Report
	log := cfg.Log()

	metaEntries, err := os.ReadDir(cfg.MetadataDir)
	if err != nil {
		return report, fmt.Errorf("install: repair: reading %s: %w", cfg.MetadataDir, err)
	}
	for _, ent := range metaEntries {
		if ent.IsDir() || !strayTempPattern.MatchString(ent.Name()) {
			continue
		}
		p := filepath.Join(cfg.MetadataDir, ent.Name())
		if err := os.Remove(p); err != nil {
			log.Warn("repair: removing stray metadata temp failed", "path", p, "error", err)
			continue
		}
		report.RemovedMetadataTemps = append(report.RemovedMetadataTemps, p)
	}

	walkErr := filepath.Walk(cfg.InstallRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warn("repair: walking install root failed", "path", p, "error", err)
			return nil
		}
		if info.IsDir() || !strayTempPattern.MatchString(filepath.Base(p)) {
			return nil
		}
		if err := os.Remove(p); err != nil {
			log.Warn("repair: removing stray payload temp failed", "path", p, "error", err)
			return nil
		}
		report.RemovedPayloadTemps = append(report.RemovedPayloadTemps, p)
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("install: repair: walking %s: %w", cfg.InstallRoot, walkErr)
	}

	enumErr := db.Enumerate(func(p, pkg string) bool {
		fsPath := filepath.Join(cfg.InstallRoot, p)
		if _, err := os.Lstat(fsPath); os.IsNotExist(err) {
			report.DanglingOwnership = append(report.DanglingOwnership, p)
		}
		return true
	})
	if enumErr != nil {
		return report, fmt.Errorf("install: repair: enumerating ownership database: %w", enumErr)
	}

	return report, nil
}

// Command mpkg installs, inspects, and repairs source packages
// under a configured install root, mirroring deb-pm's flag-based
// subcommand dispatch.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mpkg-go/mpkg/config"
	"github.com/mpkg-go/mpkg/install"
	"github.com/mpkg-go/mpkg/ownerdb"
	"github.com/mpkg-go/mpkg/pkgfile"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "install":
		runInstall(os.Args[2:])
	case "dump":
		runDump(os.Args[2:])
	case "repair":
		runRepair(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: mpkg <command> [flags]")
	fmt.Println("\nCommands:")
	fmt.Println("  install   Install one or more package files")
	fmt.Println("  dump      Print every path -> package assertion in the ownership database")
	fmt.Println("  repair    Reconcile stray temporaries and report dangling ownership")
}

func commonFlags(fs *flag.FlagSet) (*string, *string, *string, *bool) {
	root := fs.String("root", "/", "install root")
	meta := fs.String("metadata", "/var/pkg", "metadata directory")
	cfgPath := fs.String("config", "", "YAML config file (overrides -root/-metadata/-verify-md5 when set)")
	verifyMD5 := fs.Bool("verify-md5", true, "verify content hashes on install")
	return root, meta, cfgPath, verifyMD5
}

func loadConfig(cfgPath, root, meta string, verifyMD5 bool) *config.Config {
	if cfgPath != "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			log.Fatalf("loading config %s: %v", cfgPath, err)
		}
		return cfg
	}
	cfg := config.Default()
	cfg.InstallRoot = root
	cfg.MetadataDir = meta
	cfg.VerifyMD5 = verifyMD5
	return cfg
}

func openDB(cfg *config.Config, backend string) ownerdb.DB {
	switch backend {
	case "text":
		db, err := ownerdb.OpenText(cfg.MetadataDir + "/owners.db")
		if err != nil {
			log.Fatalf("opening ownership database: %v", err)
		}
		return db
	case "btree":
		db, err := ownerdb.OpenBTree(cfg.MetadataDir + "/owners.btree")
		if err != nil {
			log.Fatalf("opening ownership database: %v", err)
		}
		return db
	default:
		log.Fatalf("unknown database backend %q, want \"text\" or \"btree\"", backend)
		return nil
	}
}

func runInstall(args []string) {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	root, meta, cfgPath, verifyMD5 := commonFlags(fs)
	backend := fs.String("db", "text", "ownership database backend: text or btree")
	fs.Parse(args)

	if fs.NArg() == 0 {
		log.Fatal("install: at least one package file is required")
	}

	cfg := loadConfig(*cfgPath, *root, *meta, *verifyMD5)
	db := openDB(cfg, *backend)
	defer db.Close()

	for _, path := range fs.Args() {
		h, err := pkgfile.Open(cfg, path)
		if err != nil {
			log.Printf("skipping %s: opening failed: %v", path, err)
			continue
		}

		name := h.Descr.Name
		err = install.Install(cfg, db, h)
		h.Close()
		if err != nil {
			if errors.Is(err, install.ErrOutOfDisk) {
				log.Fatalf("installing %s: %v (aborting remaining packages)", path, err)
			}
			log.Printf("installing %s: %v", path, err)
			continue
		}
		fmt.Printf("installed %s\n", name)
	}
}

func runDump(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	_, meta, cfgPath, _ := commonFlags(fs)
	backend := fs.String("db", "text", "ownership database backend: text or btree")
	fs.Parse(args)

	cfg := loadConfig(*cfgPath, "/", *meta, true)
	db := openDB(cfg, *backend)
	defer db.Close()

	if err := db.Enumerate(func(path, pkg string) bool {
		fmt.Printf("%s\t%s\n", path, pkg)
		return true
	}); err != nil {
		log.Fatalf("dump: %v", err)
	}
}

func runRepair(args []string) {
	fs := flag.NewFlagSet("repair", flag.ExitOnError)
	root, meta, cfgPath, _ := commonFlags(fs)
	backend := fs.String("db", "text", "ownership database backend: text or btree")
	fs.Parse(args)

	cfg := loadConfig(*cfgPath, *root, *meta, true)
	db := openDB(cfg, *backend)
	defer db.Close()

	report, err := install.Repair(cfg, db)
	if err != nil {
		log.Fatalf("repair: %v", err)
	}
	fmt.Printf("removed %d stray metadata temporaries\n", len(report.RemovedMetadataTemps))
	fmt.Printf("removed %d stray payload temporaries\n", len(report.RemovedPayloadTemps))
	for _, p := range report.DanglingOwnership {
		fmt.Printf("dangling ownership: %s\n", p)
	}
}

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/envconfig"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/export"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/logging"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/store"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	env, err := envconfig.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	log, err := logging.New(env.LogMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	defer log.Sync()

	if cfg.RulesPath == "" {
		cfg.RulesPath = env.RulesPath
	}
	rules := fabric.DefaultRules()
	if cfg.RulesPath != "" {
		rules, err = fabric.LoadRules(cfg.RulesPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
	}

	sum, err := normalizeCatalog(cfg, rules, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalog-normalizer failed: %s\n", err.Error())
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "records=%d groups=%d degraded=%d out=%s\n", sum.Records, sum.Groups, sum.Degraded, cfg.OutputPath)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Raw fabric catalog JSON written by fabric-watcher")
	fs.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "Normalized catalog JSON to write")
	fs.StringVar(&cfg.RulesPath, "rules", "", "YAML file with typo fixes and group suffixes (overrides FABRIC_RULES_PATH)")
	fs.StringVar(&cfg.XLSXPath, "xlsx", "", "Optional spreadsheet export of the grouped catalog")
	fs.StringVar(&cfg.SQLitePath, "sqlite", "", "Optional SQLite database to mirror the normalized catalog into")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/catalog-normalizer -in fabric_inventory.json -out fabric_inventory_normalized.json -xlsx fabrics.xlsx")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InputPath = filepath.Clean(cfg.InputPath)
	cfg.OutputPath = filepath.Clean(cfg.OutputPath)
	cfg.RulesPath = cleanOptional(cfg.RulesPath)
	cfg.XLSXPath = cleanOptional(cfg.XLSXPath)
	cfg.SQLitePath = cleanOptional(cfg.SQLitePath)
	return cfg, nil
}

func cleanOptional(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

type summary struct {
	Records  int
	Groups   int
	Degraded int
}

func normalizeCatalog(cfg Config, rules fabric.Rules, log *logging.Logger) (summary, error) {
	raw, err := fabric.LoadCatalog(cfg.InputPath)
	if err != nil {
		return summary{}, err
	}
	records := fabric.NormalizeRecords(raw, rules)
	if err := fabric.SaveNormalizedCatalog(cfg.OutputPath, records); err != nil {
		return summary{}, err
	}

	groups := fabric.GroupRecords(records, rules.GroupSuffixes)
	sum := summary{Records: len(records), Groups: groups.Len()}
	for _, r := range records {
		if r.Degraded {
			sum.Degraded++
		}
	}
	log.Info("normalized catalog", "in", cfg.InputPath, "out", cfg.OutputPath, "records", sum.Records, "groups", sum.Groups)

	if cfg.XLSXPath != "" {
		if err := export.WriteGroupsXLSX(groups, cfg.XLSXPath); err != nil {
			return sum, fmt.Errorf("xlsx export: %w", err)
		}
		log.Info("wrote spreadsheet", "path", cfg.XLSXPath)
	}

	if cfg.SQLitePath != "" {
		if err := mirrorToSQLite(cfg.SQLitePath, records, rules); err != nil {
			return sum, fmt.Errorf("sqlite mirror: %w", err)
		}
		log.Info("mirrored catalog", "path", cfg.SQLitePath)
	}
	return sum, nil
}

func mirrorToSQLite(path string, records []fabric.FabricRecord, rules fabric.Rules) error {
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.ReplaceFabrics(records, rules.GroupSuffixes); err != nil {
		return err
	}
	if err := db.SetMetadata("rules_version", strconv.Itoa(rules.Version)); err != nil {
		return err
	}
	return db.SetMetadata("normalized_at", time.Now().UTC().Format(time.RFC3339))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/fileutils"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := newPaths(cfg.BaseDir)
	ran := 0
	for _, stage := range planStages(cfg) {
		args, skip := stageArgs(cfg, p, stage)
		if skip != "" {
			fmt.Fprintf(os.Stdout, "skip %s: %s\n", stage, skip)
			continue
		}
		if err := runGo(ctx, args...); err != nil {
			os.Exit(1)
		}
		ran++
	}
	fmt.Fprintf(os.Stdout, "stages_run=%d base_dir=%s\n", ran, cfg.BaseDir)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.BaseDir, "base-dir", cfg.BaseDir, "Working directory holding images/, processed_images/, inspiration/ and the catalogs")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model for fabric analysis and design suggestions (uses OPENAI_API_KEY)")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Photos analysed in parallel during ingest")
	fs.StringVar(&cfg.Group, "group", "", "Fabric group key or keyword for the suggest stage (suggest is skipped without it)")
	fs.IntVar(&cfg.Suggestions, "n", cfg.Suggestions, "Number of design ideas to ask for")
	fs.BoolVar(&cfg.SkipDegraded, "skip-degraded", false, "Do not catalog photos whose description could not be parsed")
	fs.BoolVar(&cfg.XLSX, "xlsx", false, "Also export the grouped catalog to fabrics.xlsx")
	fs.BoolVar(&cfg.SQLite, "sqlite", false, "Also mirror the normalized catalog into fabrics.db")
	fs.StringVar(&cfg.RulesPath, "rules", "", "YAML file with typo fixes and group suffixes")
	fs.StringVar(&cfg.FromStage, "from-stage", "", "Start at stage: "+strings.Join(allStages, "|"))
	fs.StringVar(&cfg.OnlyStage, "only-stage", "", "Run only one stage: "+strings.Join(allStages, "|"))
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Regenerate design images that already exist")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/upcycle-pipeline -group kurti -xlsx")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.BaseDir = filepath.Clean(cfg.BaseDir)
	cfg.Group = strings.TrimSpace(cfg.Group)
	cfg.FromStage = strings.ToLower(strings.TrimSpace(cfg.FromStage))
	cfg.OnlyStage = strings.ToLower(strings.TrimSpace(cfg.OnlyStage))
	if cfg.RulesPath != "" {
		cfg.RulesPath = filepath.Clean(cfg.RulesPath)
	}
	return cfg, nil
}

type paths struct {
	Watch       string
	Processed   string
	Inspiration string
	Catalog     string
	Normalized  string
	XLSX        string
	SQLite      string
	Suggestions string
	Renders     string
}

func newPaths(base string) paths {
	return paths{
		Watch:       filepath.Join(base, "images"),
		Processed:   filepath.Join(base, "processed_images"),
		Inspiration: filepath.Join(base, "inspiration"),
		Catalog:     filepath.Join(base, fabric.DefaultCatalogPath),
		Normalized:  filepath.Join(base, fabric.DefaultNormalizedCatalogPath),
		XLSX:        filepath.Join(base, "fabrics.xlsx"),
		SQLite:      filepath.Join(base, "fabrics.db"),
		Suggestions: filepath.Join(base, "last_suggestions.txt"),
		Renders:     filepath.Join(base, "dalle_outputs"),
	}
}

func planStages(cfg Config) []string {
	if cfg.OnlyStage != "" {
		return []string{cfg.OnlyStage}
	}
	return stagesFrom(allStages, cfg.FromStage)
}

// stageArgs returns the go command for stage, or a reason to skip it.
func stageArgs(cfg Config, p paths, stage string) ([]string, string) {
	switch stage {
	case "ingest":
		args := []string{
			"run", "./cmd/fabric-watcher",
			"-once",
			"-watch", p.Watch,
			"-processed", p.Processed,
			"-catalog", p.Catalog,
			"-model", cfg.Model,
			"-concurrency", fmt.Sprintf("%d", cfg.Concurrency),
		}
		if cfg.SkipDegraded {
			args = append(args, "-skip-degraded")
		}
		return args, ""
	case "normalize":
		if !fileutils.FileExists(p.Catalog) {
			return nil, "no catalog yet at " + p.Catalog
		}
		args := []string{
			"run", "./cmd/catalog-normalizer",
			"-in", p.Catalog,
			"-out", p.Normalized,
		}
		if cfg.XLSX {
			args = append(args, "-xlsx", p.XLSX)
		}
		if cfg.SQLite {
			args = append(args, "-sqlite", p.SQLite)
		}
		if cfg.RulesPath != "" {
			args = append(args, "-rules", cfg.RulesPath)
		}
		return args, ""
	case "suggest":
		if cfg.Group == "" {
			return nil, "no -group given"
		}
		args := []string{
			"run", "./cmd/design-suggester",
			"-catalog", p.Normalized,
			"-inspiration", p.Inspiration,
			"-images", p.Processed,
			"-group", cfg.Group,
			"-n", fmt.Sprintf("%d", cfg.Suggestions),
			"-out", p.Suggestions,
			"-model", cfg.Model,
		}
		if cfg.RulesPath != "" {
			args = append(args, "-rules", cfg.RulesPath)
		}
		return args, ""
	case "render":
		if !fileutils.FileExists(p.Suggestions) {
			return nil, "no suggestions at " + p.Suggestions
		}
		args := []string{
			"run", "./cmd/image-generator",
			"-in", p.Suggestions,
			"-out", p.Renders,
		}
		if cfg.Overwrite {
			args = append(args, "-overwrite")
		}
		return args, ""
	default:
		return nil, "unknown stage"
	}
}

func runGo(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "command failed:", "go "+strings.Join(args, " "))
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		return err
	}
	fmt.Fprintln(os.Stdout, "ok:", "go "+strings.Join(args, " "), "(", time.Since(start).Round(time.Millisecond).String()+")")
	return nil
}

func stagesFrom(stages []string, from string) []string {
	from = strings.ToLower(strings.TrimSpace(from))
	for i, s := range stages {
		if s == from {
			return stages[i:]
		}
	}
	return stages
}

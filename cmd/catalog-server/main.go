package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/envconfig"
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
	if strings.EqualFold(env.LogMode, "prod") {
		gin.SetMode(gin.ReleaseMode)
	}

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

	var source catalogSource = jsonCatalog{path: cfg.CatalogPath}
	sourceName := cfg.CatalogPath
	if cfg.SQLitePath != "" {
		db, err := store.Open(cfg.SQLitePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open sqlite: %s\n", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		source = sqliteCatalog{db: db}
		sourceName = cfg.SQLitePath
	}

	h := &catalogHandler{source: source, rules: rules, maxBodySize: cfg.MaxBodySize, log: log}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("catalog server listening", "addr", cfg.Addr, "source", sourceName)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "catalog-server failed: %s\n", err.Error())
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %s\n", err.Error())
			os.Exit(1)
		}
	}
	fmt.Fprintf(os.Stdout, "addr=%s source=%s stopped=true\n", cfg.Addr, sourceName)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Address to listen on")
	fs.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "Normalized fabric catalog JSON to serve")
	fs.StringVar(&cfg.SQLitePath, "sqlite", "", "Serve the SQLite mirror written by catalog-normalizer instead of the JSON file")
	fs.StringVar(&cfg.RulesPath, "rules", "", "YAML file with group suffixes (overrides FABRIC_RULES_PATH)")
	fs.Int64Var(&cfg.MaxBodySize, "max-body", cfg.MaxBodySize, "Maximum request body size in bytes for POST endpoints")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/catalog-server -addr :8080 -catalog fabric_inventory_normalized.json")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.CatalogPath != "" {
		cfg.CatalogPath = filepath.Clean(cfg.CatalogPath)
	}
	if cfg.SQLitePath != "" {
		cfg.SQLitePath = filepath.Clean(cfg.SQLitePath)
	}
	if cfg.RulesPath != "" {
		cfg.RulesPath = filepath.Clean(cfg.RulesPath)
	}
	return cfg, nil
}

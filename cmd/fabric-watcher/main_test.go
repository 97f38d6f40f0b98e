package main

import (
	"bytes"
	"context"
	"flag"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/imageutil"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/logging"
)

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("fabric-watcher", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-watch", "in/photos/",
		"-processed", "done",
		"-catalog", "data/inventory.json",
		"-interval", "30s",
		"-once",
		"-concurrency", "4",
		"-skip-degraded",
		"-model", "gpt-4o-mini",
		"-strict-schema",
		"-api-key", "k",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.WatchDir != "in/photos" || cfg.ProcessedDir != "done" || cfg.CatalogPath != "data/inventory.json" {
		t.Fatalf("paths=%q %q %q", cfg.WatchDir, cfg.ProcessedDir, cfg.CatalogPath)
	}
	if cfg.Interval != 30*time.Second || !cfg.Once || cfg.Concurrency != 4 {
		t.Fatalf("Interval=%s Once=%v Concurrency=%d", cfg.Interval, cfg.Once, cfg.Concurrency)
	}
	if !cfg.SkipDegraded || !cfg.StrictSchema {
		t.Fatalf("SkipDegraded=%v StrictSchema=%v", cfg.SkipDegraded, cfg.StrictSchema)
	}
	if cfg.Model != "gpt-4o-mini" || cfg.APIKey != "k" {
		t.Fatalf("Model=%q APIKey=%q", cfg.Model, cfg.APIKey)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected error")
	}
	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := defaultConfig()
	cfg.Interval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	cfg.Once = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero interval with -once should be fine: %v", err)
	}
}

func TestDescribePrompt(t *testing.T) {
	t.Parallel()

	p := describePrompt(fabric.ViewHint("kurti_back.jpg"))
	if !strings.HasPrefix(p, "This image shows the back") {
		t.Fatalf("prompt should start with the view hint: %q", p)
	}
	for _, key := range []string{"material", "texture", "colors", "embellishments", "embellishment_description", "JSON"} {
		if !strings.Contains(p, key) {
			t.Fatalf("prompt missing %q", key)
		}
	}
	if describePrompt("") != describeFabricPrompt {
		t.Fatalf("empty hint should leave the prompt unchanged")
	}
}

func TestAnalyzerFormat(t *testing.T) {
	t.Parallel()

	if f := (openAIFabricAnalyzer{}).format(); f.OfJSONObject == nil || f.OfJSONSchema != nil {
		t.Fatalf("default format should be json_object")
	}
	f := (openAIFabricAnalyzer{strictSchema: true}).format()
	if f.OfJSONSchema == nil || f.OfJSONSchema.Name != "FabricMetadata" {
		t.Fatalf("strict format should carry the schema")
	}
	props, ok := fabricMetadataSchema["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("schema properties=%#v", fabricMetadataSchema["properties"])
	}
	for _, key := range []string{"material", "texture", "colors", "embellishments", "embellishment_description"} {
		if _, ok := props[key]; !ok {
			t.Fatalf("schema missing property %q", key)
		}
	}
}

func TestAnalyzer_RejectsMissingClient(t *testing.T) {
	t.Parallel()

	_, err := (openAIFabricAnalyzer{model: "gpt-4o"}).DescribeFabric(context.Background(), imageutil.Photo{Data: []byte{1}}, "")
	if err == nil {
		t.Fatalf("expected error")
	}
}

type cannedAnalyzer struct{ text string }

func (c cannedAnalyzer) DescribeFabric(ctx context.Context, photo imageutil.Photo, viewHint string) (string, error) {
	return c.text, nil
}

func TestWatch_Once(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	watchDir := filepath.Join(dir, "images")
	if err := os.MkdirAll(watchDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, name := range []string{"a_front.png", "a_back.png"} {
		if err := os.WriteFile(filepath.Join(watchDir, name), buf.Bytes(), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	opt := fabric.IngestOptions{
		WatchDir:     watchDir,
		ProcessedDir: filepath.Join(dir, "processed"),
		CatalogPath:  filepath.Join(dir, "catalog.json"),
		Concurrency:  2,
		Log:          logging.NewNop(),
	}
	a := cannedAnalyzer{text: `{"material": "cotton", "texture": "soft", "colors": ["white"], "embellishments": false, "embellishment_description": ""}`}
	totals, err := watch(context.Background(), a, opt, time.Hour, true, logging.NewNop())
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if totals.Passes != 1 || totals.Found != 2 || totals.Appended != 2 {
		t.Fatalf("totals=%+v", totals)
	}
	recs, err := fabric.LoadCatalog(opt.CatalogPath)
	if err != nil || len(recs) != 2 {
		t.Fatalf("catalog=%v err=%v", recs, err)
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := watch(ctx, cannedAnalyzer{}, fabric.IngestOptions{
			WatchDir:     filepath.Join(dir, "images"),
			ProcessedDir: filepath.Join(dir, "processed"),
			CatalogPath:  filepath.Join(dir, "catalog.json"),
		}, 10*time.Millisecond, false, logging.NewNop())
		done <- err
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned %v after cancel, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not stop after cancel")
	}
}

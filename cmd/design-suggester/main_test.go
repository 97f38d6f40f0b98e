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

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/imageutil"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/logging"
)

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("design-suggester", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-catalog", "data/norm.json",
		"-inspiration", "style/",
		"-images", "photos",
		"-group", " kurti ",
		"-n", "5",
		"-out", "out/ideas.txt",
		"-model", "gpt-4o-mini",
		"-api-key", "k",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.CatalogPath != "data/norm.json" || cfg.InspirationDir != "style" || cfg.ImagesDir != "photos" {
		t.Fatalf("paths=%+v", cfg)
	}
	if cfg.Group != "kurti" || cfg.Suggestions != 5 || cfg.OutputPath != "out/ideas.txt" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Model != "gpt-4o-mini" || cfg.APIKey != "k" || cfg.List {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := defaultConfig().Validate(); err == nil {
		t.Fatalf("expected error without -group")
	}
	cfg := defaultConfig()
	cfg.List = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("-list needs no group: %v", err)
	}
	cfg = defaultConfig()
	cfg.Group = "kurti"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	cfg.Suggestions = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for -n 0")
	}
}

func TestBuildDesignPrompt(t *testing.T) {
	t.Parallel()

	fabrics := []fabric.FabricRecord{
		{Name: "kurti_front", Material: "silk", Texture: "smooth", Colors: []string{"red", "gold"}, EmbellishmentDescription: "zari border"},
	}
	p := buildDesignPrompt("kurti", fabrics, 4)
	for _, want := range []string{
		"for 'kurti', generate 4 trendy upcycled clothing ideas",
		"- kurti_front: silk, smooth, colors: red, gold, embellishments: zari border",
		"DALL·E Prompt:",
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func testGroups() fabric.Groups {
	return fabric.GroupRecords([]fabric.FabricRecord{
		{Name: "kurti_front"}, {Name: "kurti_detail"}, {Name: "saree"},
	}, fabric.DefaultGroupSuffixes())
}

func TestPrepareRequest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := defaultConfig()
	cfg.Group = "KURTI"
	cfg.ImagesDir = filepath.Join(dir, "processed")
	cfg.InspirationDir = filepath.Join(dir, "inspiration")
	writePNG(t, filepath.Join(cfg.ImagesDir, "kurti_front.png"))
	writePNG(t, filepath.Join(cfg.ImagesDir, "Kurti_detail.png"))
	writePNG(t, filepath.Join(cfg.ImagesDir, "saree.png"))
	writePNG(t, filepath.Join(cfg.InspirationDir, "look1.png"))
	if err := os.WriteFile(filepath.Join(cfg.InspirationDir, "look2.jpg"), []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	req, err := prepareRequest(cfg, testGroups(), logging.NewNop())
	if err != nil {
		t.Fatalf("prepareRequest: %v", err)
	}
	if len(req.Fabrics) != 2 || len(req.FabricPhotos) != 2 || len(req.Inspiration) != 1 {
		t.Fatalf("fabrics=%d photos=%d inspiration=%d", len(req.Fabrics), len(req.FabricPhotos), len(req.Inspiration))
	}
	if req.FabricPhotos[0].MIME != "image/png" {
		t.Fatalf("MIME=%q", req.FabricPhotos[0].MIME)
	}

	cfg.Group = "lehenga"
	if _, err := prepareRequest(cfg, testGroups(), logging.NewNop()); err == nil {
		t.Fatalf("expected error for unknown fabric")
	}

	cfg.Group = "saree"
	cfg.ImagesDir = filepath.Join(dir, "empty")
	if _, err := prepareRequest(cfg, testGroups(), logging.NewNop()); err == nil {
		t.Fatalf("expected error when no fabric images exist")
	}
}

func TestPrintGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printGroups(&buf, testGroups())
	want := "kurti\t2\tkurti_front,kurti_detail\nsaree\t1\tsaree\n"
	if buf.String() != want {
		t.Fatalf("printGroups=%q, want %q", buf.String(), want)
	}
}

type fakeDesigner struct {
	text string
	got  suggestionRequest
}

func (f *fakeDesigner) SuggestDesigns(ctx context.Context, req suggestionRequest) (string, error) {
	f.got = req
	return f.text, nil
}

func TestSuggest_SavesTextAndCountsDirectives(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "last_suggestions.txt")
	d := &fakeDesigner{text: "1. Halter top\nDALL·E Prompt: a red silk halter top\n\n2. Skirt\n**DALL-E Prompt:**\n\"a gold zari midi skirt on a mannequin\"\n"}
	res, err := suggest(context.Background(), d, suggestionRequest{Selection: "kurti", Count: 2}, out)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if res.Directives != 2 {
		t.Fatalf("Directives=%d, want 2", res.Directives)
	}
	b, err := os.ReadFile(out)
	if err != nil || string(b) != d.text {
		t.Fatalf("saved=%q err=%v", b, err)
	}
	if d.got.Selection != "kurti" {
		t.Fatalf("designer got %+v", d.got)
	}

	if _, err := suggest(context.Background(), &fakeDesigner{text: "  "}, suggestionRequest{}, out); err == nil {
		t.Fatalf("expected error for empty suggestions")
	}
}

func TestBuildDesignInput(t *testing.T) {
	t.Parallel()

	req := suggestionRequest{Selection: "kurti", Count: 3}
	if items := buildDesignInput(req); len(items) != 2 {
		t.Fatalf("items=%d, want fabric and prompt messages only", len(items))
	}
	req.Inspiration = []imageutil.Photo{{Path: "look.png", MIME: "image/png", Data: []byte{1}}}
	if items := buildDesignInput(req); len(items) != 3 {
		t.Fatalf("items=%d, want inspiration message as well", len(items))
	}
}

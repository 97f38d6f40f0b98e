package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/logging"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/provider"
)

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("image-generator", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-in", "out/ideas.txt",
		"-out", "renders/",
		"-model", "dall-e-2",
		"-size", "512x512",
		"-quality", "hd",
		"-overwrite",
		"-api-key", "k",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	want := Config{InputPath: "out/ideas.txt", OutputDir: "renders", Model: "dall-e-2", Size: "512x512", Quality: "hd", Overwrite: true, APIKey: "k"}
	if cfg != want {
		t.Fatalf("cfg=%+v, want %+v", cfg, want)
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
}

type fakeRenderer struct {
	fail    map[string]bool
	prompts []string
}

func (f *fakeRenderer) Render(ctx context.Context, prompt string) (provider.GeneratedImage, error) {
	f.prompts = append(f.prompts, prompt)
	if f.fail[prompt] {
		return provider.GeneratedImage{}, errors.New("400 content policy violation")
	}
	return provider.GeneratedImage{Data: []byte("png:" + prompt), RevisedPrompt: "revised " + prompt}, nil
}

const suggestions = `1. Peplum blouse
DALL·E Prompt: a red silk peplum blouse on a mannequin

2. Halter top
**DALL-E Prompt:** "a gold halter crop top, flat lay"

3. Two-piece set
Dall-E prompt:
a green net two-piece set photographed on a model
`

func TestRenderDirectives(t *testing.T) {
	t.Parallel()

	outDir := filepath.Join(t.TempDir(), "dalle_outputs")
	directives := fabric.ExtractDirectives(suggestions)
	if len(directives) != 3 {
		t.Fatalf("directives=%d, want 3", len(directives))
	}
	r := &fakeRenderer{fail: map[string]bool{"a gold halter crop top, flat lay": true}}

	res, err := renderDirectives(context.Background(), r, directives, outDir, false, logging.NewNop())
	if err != nil {
		t.Fatalf("renderDirectives: %v", err)
	}
	if len(res.Written) != 2 || res.Failed != 1 || res.Skipped != 0 {
		t.Fatalf("res=%+v", res)
	}
	b, err := os.ReadFile(filepath.Join(outDir, "design_3.png"))
	if err != nil || string(b) != "png:a green net two-piece set photographed on a model" {
		t.Fatalf("design_3.png=%q err=%v", b, err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "design_2.png")); !os.IsNotExist(err) {
		t.Fatalf("failed directive should not leave a file: %v", err)
	}

	var manifest []manifestEntry
	mb, err := os.ReadFile(filepath.Join(outDir, manifestName))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if err := json.Unmarshal(mb, &manifest); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if len(manifest) != 2 || manifest[0].File != "design_1.png" || manifest[0].RevisedPrompt == "" {
		t.Fatalf("manifest=%+v", manifest)
	}

	// Existing images are kept unless overwrite is set.
	r2 := &fakeRenderer{}
	res, err = renderDirectives(context.Background(), r2, directives, outDir, false, logging.NewNop())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Skipped != 2 || len(res.Written) != 1 || len(r2.prompts) != 1 {
		t.Fatalf("second run res=%+v prompts=%v", res, r2.prompts)
	}

	r3 := &fakeRenderer{}
	res, err = renderDirectives(context.Background(), r3, directives, outDir, true, logging.NewNop())
	if err != nil || len(res.Written) != 3 || len(r3.prompts) != 3 {
		t.Fatalf("overwrite run res=%+v err=%v", res, err)
	}
}

func TestRenderDirectives_None(t *testing.T) {
	t.Parallel()

	outDir := filepath.Join(t.TempDir(), "out")
	res, err := renderDirectives(context.Background(), &fakeRenderer{}, nil, outDir, false, logging.NewNop())
	if err != nil || len(res.Written) != 0 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if _, err := os.Stat(outDir); !os.IsNotExist(err) {
		t.Fatalf("no directives should not create the out dir")
	}
}

func TestDesignFileName(t *testing.T) {
	t.Parallel()

	if got := designFileName(1); got != "design_1.png" {
		t.Fatalf("designFileName(1)=%q", got)
	}
}

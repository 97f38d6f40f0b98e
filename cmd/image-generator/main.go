package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/envconfig"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/fileutils"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/logging"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/provider"
)

const manifestName = "prompts.json"

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

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = env.OpenAIAPIKey
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	text, err := os.ReadFile(cfg.InputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read -in: %s\n", err.Error())
		os.Exit(1)
	}
	directives := fabric.ExtractDirectives(string(text))
	log.Info("found prompts", "count", len(directives), "in", cfg.InputPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := provider.DefaultRetryPolicy()
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		log.Warn("OpenAI call failed; retrying", "attempt", attempt, "wait", wait, "error", err)
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	renderer := openAIRenderer{
		client: &client,
		opt: provider.ImageOptions{
			Model:   openai.ImageModel(cfg.Model),
			Size:    openai.ImageGenerateParamsSize(cfg.Size),
			Quality: openai.ImageGenerateParamsQuality(cfg.Quality),
		},
		policy: policy,
	}

	res, err := renderDirectives(ctx, renderer, directives, cfg.OutputDir, cfg.Overwrite, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "image-generator failed: %s\n", err.Error())
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "prompts=%d images_written=%d images_skipped=%d images_failed=%d out_dir=%s\n",
		len(directives), len(res.Written), res.Skipped, res.Failed, cfg.OutputDir)
	for _, p := range res.Written {
		fmt.Fprintln(os.Stdout, p)
	}
	if res.Failed > 0 {
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Suggestion text containing DALL·E Prompt lines")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Directory to write design_<n>.png images into")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI image model")
	fs.StringVar(&cfg.Size, "size", cfg.Size, "Image size (e.g. 1024x1024)")
	fs.StringVar(&cfg.Quality, "quality", cfg.Quality, "Image quality (standard or hd)")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Regenerate images that already exist")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/image-generator -in last_suggestions.txt -out dalle_outputs")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InputPath = filepath.Clean(cfg.InputPath)
	cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	return cfg, nil
}

type imageRenderer interface {
	Render(ctx context.Context, prompt string) (provider.GeneratedImage, error)
}

type openAIRenderer struct {
	client *openai.Client
	opt    provider.ImageOptions
	policy provider.RetryPolicy
}

func (r openAIRenderer) Render(ctx context.Context, prompt string) (provider.GeneratedImage, error) {
	return provider.GenerateImage(ctx, r.client, prompt, r.opt, r.policy)
}

// manifestEntry records which directive produced which file.
type manifestEntry struct {
	Index         int    `json:"index"`
	Prompt        string `json:"prompt"`
	File          string `json:"file"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type renderResult struct {
	Written []string
	Skipped int
	Failed  int
}

func designFileName(index int) string {
	return fmt.Sprintf("design_%d.png", index)
}

// renderDirectives renders each directive to design_<index>.png. A failed directive is logged and
// counted; the rest still run. Cancellation stops the batch.
func renderDirectives(ctx context.Context, r imageRenderer, directives []fabric.Directive, outDir string, overwrite bool, log *logging.Logger) (renderResult, error) {
	var res renderResult
	if len(directives) == 0 {
		return res, nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return res, fmt.Errorf("create out dir: %w", err)
	}

	manifest := make([]manifestEntry, 0, len(directives))
	for _, d := range directives {
		name := designFileName(d.Index)
		path := filepath.Join(outDir, name)
		entry := manifestEntry{Index: d.Index, Prompt: d.Text, File: name}

		if !overwrite && fileutils.FileExists(path) {
			log.Info("image exists; skipping", "file", path)
			res.Skipped++
			manifest = append(manifest, entry)
			continue
		}

		log.Info("generating image", "index", d.Index, "prompt", fileutils.Truncate(d.Text, 120))
		img, err := r.Render(ctx, d.Text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			log.Error("image generation failed", "index", d.Index, "error", err)
			res.Failed++
			continue
		}
		if err := fileutils.WriteFileAtomicSameDir(path, img.Data, 0o644); err != nil {
			return res, fmt.Errorf("write %s: %w", path, err)
		}
		entry.RevisedPrompt = img.RevisedPrompt
		manifest = append(manifest, entry)
		res.Written = append(res.Written, path)
	}

	if err := fileutils.WriteJSONFileAtomic(filepath.Join(outDir, manifestName), manifest, true); err != nil {
		return res, fmt.Errorf("write manifest: %w", err)
	}
	return res, nil
}

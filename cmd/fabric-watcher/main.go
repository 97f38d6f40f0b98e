package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/envconfig"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/imageutil"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/logging"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/provider"
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

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = env.OpenAIAPIKey
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	for _, dir := range []string{cfg.WatchDir, cfg.ProcessedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %s\n", dir, err.Error())
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := provider.DefaultRetryPolicy()
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		log.Warn("OpenAI call failed; retrying", "attempt", attempt, "wait", wait, "error", err)
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	analyzer := openAIFabricAnalyzer{
		client:       &client,
		model:        cfg.Model,
		strictSchema: cfg.StrictSchema,
		policy:       policy,
	}

	start := time.Now()
	totals, err := watch(ctx, analyzer, fabric.IngestOptions{
		WatchDir:     cfg.WatchDir,
		ProcessedDir: cfg.ProcessedDir,
		CatalogPath:  cfg.CatalogPath,
		Concurrency:  cfg.Concurrency,
		SkipDegraded: cfg.SkipDegraded,
		Log:          log,
	}, cfg.Interval, cfg.Once, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fabric-watcher failed: %s\n", err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "passes=%d images_found=%d entries_appended=%d degraded=%d skipped=%d failed=%d catalog=%s elapsed=%s\n",
		totals.Passes, totals.Found, totals.Appended, totals.Degraded, totals.Skipped, totals.Failed,
		cfg.CatalogPath, time.Since(start).Round(time.Second))
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.WatchDir, "watch", cfg.WatchDir, "Folder to watch for new fabric photos (.jpg, .jpeg, .png, .webp)")
	fs.StringVar(&cfg.ProcessedDir, "processed", cfg.ProcessedDir, "Folder analysed photos are moved into")
	fs.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "Fabric catalog JSON file to append entries to")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Time to wait between scans of the watch folder")
	fs.BoolVar(&cfg.Once, "once", false, "Process the current photos and exit instead of watching")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Photos analysed in parallel")
	fs.BoolVar(&cfg.SkipDegraded, "skip-degraded", false, "Do not catalog photos whose description could not be parsed (moved to <processed>/unparsed)")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI vision model used to describe fabrics")
	fs.BoolVar(&cfg.StrictSchema, "strict-schema", false, "Ask the model for output matching a strict JSON schema")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/fabric-watcher -watch images -processed processed_images -once")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.WatchDir = filepath.Clean(cfg.WatchDir)
	cfg.ProcessedDir = filepath.Clean(cfg.ProcessedDir)
	cfg.CatalogPath = filepath.Clean(cfg.CatalogPath)
	return cfg, nil
}

type watchTotals struct {
	Passes   int
	Found    int
	Appended int
	Degraded int
	Skipped  int
	Failed   int
}

func (t *watchTotals) add(res fabric.IngestResult) {
	t.Passes++
	t.Found += res.Found
	t.Appended += res.Appended
	t.Degraded += res.Degraded
	t.Skipped += res.Skipped
	t.Failed += res.Failed
}

// watch runs ingest passes until ctx is cancelled, or a single pass when once is set. Cancellation
// is a normal way to stop and is not reported as an error.
func watch(ctx context.Context, analyzer fabric.FabricAnalyzer, opt fabric.IngestOptions, interval time.Duration, once bool, log *logging.Logger) (watchTotals, error) {
	var totals watchTotals
	for {
		res, err := fabric.IngestImages(ctx, analyzer, opt)
		totals.add(res)
		if err != nil {
			if ctx.Err() != nil {
				return totals, nil
			}
			return totals, err
		}
		if res.Found == 0 {
			log.Debug("no images found; waiting", "dir", opt.WatchDir, "interval", interval)
		} else {
			log.Info("pass complete",
				"found", res.Found, "appended", res.Appended, "degraded", res.Degraded,
				"skipped", res.Skipped, "failed", res.Failed, "strategies", res.Strategies)
		}
		if once {
			return totals, nil
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return totals, nil
		case <-t.C:
		}
	}
}

type openAIFabricAnalyzer struct {
	client       *openai.Client
	model        string
	strictSchema bool
	policy       provider.RetryPolicy
}

type fabricMetadataResponse struct {
	Material                 string   `json:"material" jsonschema_description:"Fabric material such as silk or cotton or net"`
	Texture                  string   `json:"texture" jsonschema_description:"Fabric texture such as smooth or sheer or stiff"`
	Colors                   []string `json:"colors" jsonschema_description:"Primary colors present"`
	Embellishments           []string `json:"embellishments" jsonschema_description:"Visible embellishments; empty when there are none"`
	EmbellishmentDescription string   `json:"embellishment_description" jsonschema_description:"Where borders and ornate zones are and what they look like"`
}

var fabricMetadataSchema = provider.GenerateSchema[fabricMetadataResponse]()

func (a openAIFabricAnalyzer) DescribeFabric(ctx context.Context, photo imageutil.Photo, viewHint string) (string, error) {
	if a.client == nil {
		return "", errors.New("openAIFabricAnalyzer: client is nil")
	}
	if a.model == "" {
		return "", errors.New("openAIFabricAnalyzer: model is empty")
	}
	if len(photo.Data) == 0 {
		return "", errors.New("openAIFabricAnalyzer: photo is empty")
	}

	content := responses.ResponseInputMessageContentListParam{
		responses.ResponseInputContentParamOfInputText(describePrompt(viewHint)),
		provider.ImageContent(provider.ImageDataURL(photo.MIME, photo.Data)),
	}
	params := responses.ResponseNewParams{
		Model:           a.model,
		MaxOutputTokens: openai.Int(500),
		Instructions:    openai.String(fabricAssistantInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: a.format(),
		},
	}

	resp, err := provider.CallWithRetry(ctx, a.client, params, a.policy)
	if err != nil {
		return "", fmt.Errorf("describe %s: %w", filepath.Base(photo.Path), err)
	}
	// The text goes through fabric.ExtractRecord even with a strict schema.
	return resp.OutputText(), nil
}

func (a openAIFabricAnalyzer) format() responses.ResponseFormatTextConfigUnionParam {
	if a.strictSchema {
		return responses.ResponseFormatTextConfigUnionParam{
			OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
				Name:        "FabricMetadata",
				Schema:      fabricMetadataSchema,
				Strict:      openai.Bool(true),
				Description: openai.String("Fabric description JSON"),
				Type:        "json_schema",
			},
		}
	}
	jsonObject := shared.NewResponseFormatJSONObjectParam()
	return responses.ResponseFormatTextConfigUnionParam{OfJSONObject: &jsonObject}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/envconfig"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/fileutils"
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

	records, err := fabric.LoadNormalizedCatalog(cfg.CatalogPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	groups := fabric.GroupRecords(records, rules.GroupSuffixes)

	if cfg.List {
		printGroups(os.Stdout, groups)
		return
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = env.OpenAIAPIKey
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req, err := prepareRequest(cfg, groups, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	policy := provider.DefaultRetryPolicy()
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		log.Warn("OpenAI call failed; retrying", "attempt", attempt, "wait", wait, "error", err)
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	designer := openAIDesigner{client: &client, model: cfg.Model, policy: policy}

	res, err := suggest(ctx, designer, req, cfg.OutputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "design-suggester failed: %s\n", err.Error())
		os.Exit(1)
	}
	if res.Directives == 0 {
		log.Warn("suggestions contain no DALL·E prompts; image-generator will have nothing to render", "out", cfg.OutputPath)
	}

	fmt.Fprintf(os.Stdout, "group=%s fabrics=%d inspiration_images=%d fabric_images=%d directives=%d out=%s\n",
		req.Selection, len(req.Fabrics), len(req.Inspiration), len(req.FabricPhotos), res.Directives, cfg.OutputPath)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "Normalized fabric catalog JSON")
	fs.StringVar(&cfg.InspirationDir, "inspiration", cfg.InspirationDir, "Folder of style inspiration photos (optional)")
	fs.StringVar(&cfg.ImagesDir, "images", cfg.ImagesDir, "Folder holding the processed fabric photos")
	fs.StringVar(&cfg.Group, "group", "", "Fabric group key or keyword to design with")
	fs.BoolVar(&cfg.List, "list", false, "Print the fabric groups and exit")
	fs.IntVar(&cfg.Suggestions, "n", cfg.Suggestions, "Number of design ideas to ask for")
	fs.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "File to save the suggestions to")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model used for design suggestions")
	fs.StringVar(&cfg.RulesPath, "rules", "", "YAML file with typo fixes and group suffixes (overrides FABRIC_RULES_PATH)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/design-suggester -list")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/design-suggester -group kurti -n 3")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Group = strings.TrimSpace(cfg.Group)
	cfg.CatalogPath = filepath.Clean(cfg.CatalogPath)
	cfg.ImagesDir = filepath.Clean(cfg.ImagesDir)
	cfg.OutputPath = filepath.Clean(cfg.OutputPath)
	if cfg.InspirationDir != "" {
		cfg.InspirationDir = filepath.Clean(cfg.InspirationDir)
	}
	if cfg.RulesPath != "" {
		cfg.RulesPath = filepath.Clean(cfg.RulesPath)
	}
	return cfg, nil
}

func printGroups(w io.Writer, groups fabric.Groups) {
	for _, g := range groups.All() {
		names := make([]string, 0, len(g.Records))
		for _, r := range g.Records {
			names = append(names, r.Name)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", g.Key, len(g.Records), strings.Join(names, ","))
	}
}

type suggestionRequest struct {
	Selection    string
	Fabrics      []fabric.FabricRecord
	Inspiration  []imageutil.Photo
	FabricPhotos []imageutil.Photo
	Count        int
}

// prepareRequest resolves the selected groups and loads the photos that go with them.
func prepareRequest(cfg Config, groups fabric.Groups, log *logging.Logger) (suggestionRequest, error) {
	matched := groups.Match(cfg.Group)
	if len(matched) == 0 {
		return suggestionRequest{}, fmt.Errorf("fabric not found: %q", cfg.Group)
	}
	req := suggestionRequest{Selection: cfg.Group, Count: cfg.Suggestions}
	keys := make([]string, 0, len(matched))
	for _, g := range matched {
		req.Fabrics = append(req.Fabrics, g.Records...)
		if g.Key != "" {
			keys = append(keys, strings.ToLower(g.Key))
		}
	}

	var err error
	if cfg.InspirationDir != "" {
		req.Inspiration, err = loadPhotos(cfg.InspirationDir, nil, log)
		if err != nil {
			return suggestionRequest{}, err
		}
	}
	req.FabricPhotos, err = loadPhotos(cfg.ImagesDir, func(name string) bool {
		lower := strings.ToLower(name)
		for _, k := range keys {
			if strings.Contains(lower, k) {
				return true
			}
		}
		return false
	}, log)
	if err != nil {
		return suggestionRequest{}, err
	}
	if len(req.FabricPhotos) == 0 {
		return suggestionRequest{}, fmt.Errorf("no images found for fabric %q in %s", cfg.Group, cfg.ImagesDir)
	}
	return req, nil
}

// loadPhotos reads the image files in dir accepted by keep. Files that are not valid images are
// logged and skipped.
func loadPhotos(dir string, keep func(name string) bool, log *logging.Logger) ([]imageutil.Photo, error) {
	paths, err := fileutils.ListFiles(dir, func(name string) bool {
		return fabric.IsImageFile(name) && (keep == nil || keep(name))
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	photos := make([]imageutil.Photo, 0, len(paths))
	for _, p := range paths {
		photo, err := imageutil.LoadPhoto(p)
		if err != nil {
			log.Warn("skipping unreadable image", "image", p, "error", err)
			continue
		}
		photos = append(photos, photo)
	}
	return photos, nil
}

type designSuggester interface {
	SuggestDesigns(ctx context.Context, req suggestionRequest) (string, error)
}

type suggestResult struct {
	Text       string
	Directives int
}

func suggest(ctx context.Context, designer designSuggester, req suggestionRequest, outputPath string) (suggestResult, error) {
	text, err := designer.SuggestDesigns(ctx, req)
	if err != nil {
		return suggestResult{}, err
	}
	if strings.TrimSpace(text) == "" {
		return suggestResult{}, errors.New("model returned no suggestions")
	}
	if err := fileutils.WriteFileAtomicSameDir(outputPath, []byte(text), 0o644); err != nil {
		return suggestResult{}, fmt.Errorf("save suggestions: %w", err)
	}
	return suggestResult{Text: text, Directives: len(fabric.ExtractDirectives(text))}, nil
}

type openAIDesigner struct {
	client *openai.Client
	model  string
	policy provider.RetryPolicy
}

func (d openAIDesigner) SuggestDesigns(ctx context.Context, req suggestionRequest) (string, error) {
	if d.client == nil {
		return "", errors.New("openAIDesigner: client is nil")
	}
	if d.model == "" {
		return "", errors.New("openAIDesigner: model is empty")
	}

	params := responses.ResponseNewParams{
		Model:           d.model,
		MaxOutputTokens: openai.Int(1000),
		Instructions:    openai.String(designerInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: buildDesignInput(req),
		},
	}
	resp, err := provider.CallWithRetry(ctx, d.client, params, d.policy)
	if err != nil {
		return "", err
	}
	return resp.OutputText(), nil
}

func buildDesignInput(req suggestionRequest) []responses.ResponseInputItemUnionParam {
	var items []responses.ResponseInputItemUnionParam
	user := func(content responses.ResponseInputMessageContentListParam) {
		items = append(items, responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRoleUser))
	}

	if len(req.Inspiration) > 0 {
		content := responses.ResponseInputMessageContentListParam{
			responses.ResponseInputContentParamOfInputText(inspirationIntro),
		}
		for _, p := range req.Inspiration {
			content = append(content, provider.ImageContent(provider.ImageDataURL(p.MIME, p.Data)))
		}
		user(content)
	}

	content := responses.ResponseInputMessageContentListParam{
		responses.ResponseInputContentParamOfInputText(fabricImagesIntro(req.Selection)),
	}
	for _, p := range req.FabricPhotos {
		content = append(content, provider.ImageContent(provider.ImageDataURL(p.MIME, p.Data)))
	}
	user(content)

	user(responses.ResponseInputMessageContentListParam{
		responses.ResponseInputContentParamOfInputText(buildDesignPrompt(req.Selection, req.Fabrics, req.Count)),
	})
	return items
}

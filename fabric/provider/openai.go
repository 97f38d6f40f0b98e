package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
)

// RetryPolicy bounds retries of rate-limit and server errors. The wait before retry N is the Nth
// entry of the list for the error's class; a class with no entry left is not retried.
type RetryPolicy struct {
	MaxAttempts      int
	RateLimitWaits   []time.Duration
	ServerErrorWaits []time.Duration

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		RateLimitWaits:   []time.Duration{65 * time.Second, 100 * time.Second, 135 * time.Second},
		ServerErrorWaits: []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second},
	}
}

// CallWithRetry sends a Responses API request, retrying rate-limit and server errors.
func CallWithRetry(ctx context.Context, client *openai.Client, params responses.ResponseNewParams, policy RetryPolicy) (*responses.Response, error) {
	if client == nil {
		return nil, errors.New("CallWithRetry: client is nil")
	}
	return WithRetry(ctx, policy, func(ctx context.Context) (*responses.Response, error) {
		return client.Responses.New(ctx, params)
	})
}

// WithRetry runs call until it succeeds, fails with a non-retryable error, or runs out of
// attempts. Waits end early when ctx is cancelled.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, call func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, err := call(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var waits []time.Duration
		switch {
		case isRateLimitError(err):
			waits = policy.RateLimitWaits
		case isServerError(err):
			waits = policy.ServerErrorWaits
		default:
			return zero, err
		}
		if attempt == maxAttempts-1 || attempt >= len(waits) {
			break
		}

		wait := waits[attempt]
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, wait, err)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}
	return zero, fmt.Errorf("failed after %d attempts due to OpenAI API issues: %w", maxAttempts, lastErr)
}

type errorClass struct {
	match   func(status int) bool
	phrases []string
}

var (
	rateLimitClass = errorClass{
		match:   func(status int) bool { return status == http.StatusTooManyRequests },
		phrases: []string{"429", "rate limit", "too many requests"},
	}
	serverErrorClass = errorClass{
		match:   func(status int) bool { return status >= http.StatusInternalServerError },
		phrases: []string{"500", "internal server error", "server_error"},
	}
)

// matches checks the API status code first and falls back to the message for errors that lost
// their type on the way up.
func (c errorClass) matches(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && c.match(apiErr.StatusCode) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range c.phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func isRateLimitError(err error) bool { return rateLimitClass.matches(err) }

func isServerError(err error) bool { return serverErrorClass.matches(err) }

// ImageOptions configures an image generation request.
type ImageOptions struct {
	Model   openai.ImageModel
	Size    openai.ImageGenerateParamsSize
	Quality openai.ImageGenerateParamsQuality
}

func DefaultImageOptions() ImageOptions {
	return ImageOptions{
		Model:   openai.ImageModelDallE3,
		Size:    openai.ImageGenerateParamsSize1024x1024,
		Quality: openai.ImageGenerateParamsQualityStandard,
	}
}

// GeneratedImage is one decoded image returned by the images API.
type GeneratedImage struct {
	Data          []byte
	RevisedPrompt string
}

// GenerateImage renders prompt to a single image, requested as base64 so no second download is
// needed.
func GenerateImage(ctx context.Context, client *openai.Client, prompt string, opt ImageOptions, policy RetryPolicy) (GeneratedImage, error) {
	if client == nil {
		return GeneratedImage{}, errors.New("GenerateImage: client is nil")
	}
	if strings.TrimSpace(prompt) == "" {
		return GeneratedImage{}, errors.New("GenerateImage: prompt is empty")
	}
	params := openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          opt.Model,
		Size:           opt.Size,
		Quality:        opt.Quality,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		N:              openai.Int(1),
	}
	resp, err := WithRetry(ctx, policy, func(ctx context.Context) (*openai.ImagesResponse, error) {
		return client.Images.Generate(ctx, params)
	})
	if err != nil {
		return GeneratedImage{}, fmt.Errorf("GenerateImage: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return GeneratedImage{}, errors.New("GenerateImage: response has no images")
	}
	img := resp.Data[0]
	b, err := base64.StdEncoding.DecodeString(img.B64JSON)
	if err != nil {
		return GeneratedImage{}, fmt.Errorf("GenerateImage: decode base64: %w", err)
	}
	if len(b) == 0 {
		return GeneratedImage{}, errors.New("GenerateImage: empty image data")
	}
	return GeneratedImage{Data: b, RevisedPrompt: img.RevisedPrompt}, nil
}

// ImageDataURL encodes image bytes as a data URL for vision input.
func ImageDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ImageContent wraps a data URL as a Responses API image input.
func ImageContent(dataURL string) responses.ResponseInputContentUnionParam {
	return responses.ResponseInputContentUnionParam{
		OfInputImage: &responses.ResponseInputImageParam{
			Detail:   responses.ResponseInputImageDetailAuto,
			ImageURL: openai.String(dataURL),
		},
	}
}

// GenerateSchema reflects T into a JSON schema accepted by strict structured outputs. It panics if
// the reflected schema cannot round-trip through JSON, which only happens for unsupported types.
func GenerateSchema[T any]() map[string]any {
	r := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	b, err := json.Marshal(r.Reflect(v))
	if err != nil {
		panic(fmt.Errorf("GenerateSchema: %w", err))
	}
	var schema map[string]any
	if err := json.Unmarshal(b, &schema); err != nil {
		panic(fmt.Errorf("GenerateSchema: %w", err))
	}
	closeObjects(schema)
	return schema
}

// closeObjects walks a schema and makes every object closed with all of its properties required,
// listed in sorted order so the schema is stable across runs.
func closeObjects(node map[string]any) {
	props, _ := node["properties"].(map[string]any)
	if t, _ := node["type"].(string); t == "object" {
		node["additionalProperties"] = false
		if len(props) > 0 {
			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			sort.Strings(names)
			node["required"] = names
		}
	}
	for _, p := range props {
		if child, ok := p.(map[string]any); ok {
			closeObjects(child)
		}
	}
	for _, key := range []string{"items", "additionalProperties"} {
		if child, ok := node[key].(map[string]any); ok {
			closeObjects(child)
		}
	}
}

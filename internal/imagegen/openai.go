package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultOpenAIModel is the image model used when none is configured.
const DefaultOpenAIModel = "gpt-image-1"

// OpenAI generates images with the OpenAI Images API.
type OpenAI struct {
	client openai.Client
	model  string
	hasKey bool
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI returns an OpenAI provider. baseURL may be empty for the public API.
func NewOpenAI(apiKey, model, baseURL string, httpClient *http.Client) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAI{client: openai.NewClient(opts...), model: model, hasKey: apiKey != ""}
}

func (o *OpenAI) Name() string { return "openai" }

// Generate requests a single PNG sized to the closest supported aspect.
func (o *OpenAI) Generate(ctx context.Context, req Request) ([]byte, string, error) {
	if !o.hasKey {
		return nil, "", ErrMissingCredential
	}
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:        o.model,
		Prompt:       req.Prompt,
		N:            openai.Int(1),
		Size:         openAISize(req.Width, req.Height),
		Quality:      openai.ImageGenerateParamsQualityLow,
		OutputFormat: openai.ImageGenerateParamsOutputFormatPNG,
	})
	if err != nil {
		return nil, "", fmt.Errorf("openai: generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, "", ErrEmptyResult
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode base64: %w", ErrEmptyResult, err)
	}
	return data, "image/png", nil
}

func openAISize(width, height int) openai.ImageGenerateParamsSize {
	switch {
	case height > width:
		return openai.ImageGenerateParamsSize1024x1536
	case width > height:
		return openai.ImageGenerateParamsSize1536x1024
	}
	return openai.ImageGenerateParamsSize1024x1024
}

package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kjstillabower/weather-moment-nft/internal/client"
)

// DefaultReplicateVersion is the SDXL model version.
const DefaultReplicateVersion = "39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b"

// maxImageBytes bounds a downloaded image.
const maxImageBytes = 20 << 20

// Replicate runs predictions on replicate.com and polls until they finish.
type Replicate struct {
	baseURL  string
	token    string
	version  string
	upstream *client.Upstream
	poller   Poller
}

var _ Provider = (*Replicate)(nil)

// NewReplicate returns a Replicate provider. baseURL is the API root, e.g. https://api.replicate.com/v1.
func NewReplicate(baseURL, token, version string, upstream *client.Upstream, poller Poller) *Replicate {
	if version == "" {
		version = DefaultReplicateVersion
	}
	return &Replicate{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		version:  version,
		upstream: upstream,
		poller:   poller,
	}
}

func (r *Replicate) Name() string { return "replicate" }

type predictionInput struct {
	Prompt            string  `json:"prompt"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	NumOutputs        int     `json:"num_outputs"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Scheduler         string  `json:"scheduler"`
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type prediction struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Output predictionOutput `json:"output"`
	Error  json.RawMessage  `json:"error"`
}

// predictionOutput accepts either a list of URLs or a single URL.
type predictionOutput []string

func (o *predictionOutput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = predictionOutput{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*o = list
	return nil
}

func (p prediction) errorMessage() string {
	if len(p.Error) == 0 || bytes.Equal(p.Error, []byte("null")) {
		return "Image generation failed"
	}
	var s string
	if json.Unmarshal(p.Error, &s) == nil && s != "" {
		return s
	}
	return string(p.Error)
}

func (p prediction) terminal() bool {
	return p.Status == "succeeded" || p.Status == "failed" || p.Status == "canceled"
}

// Generate creates a prediction, waits for it and downloads the first output.
func (r *Replicate) Generate(ctx context.Context, req Request) ([]byte, string, error) {
	if r.token == "" {
		return nil, "", ErrMissingCredential
	}
	header := http.Header{}
	header.Set("Authorization", "Token "+r.token)

	body := predictionRequest{
		Version: r.version,
		Input: predictionInput{
			Prompt:            req.Prompt,
			Width:             req.Width,
			Height:            req.Height,
			NumOutputs:        1,
			NumInferenceSteps: 20,
			GuidanceScale:     7.5,
			Scheduler:         "K_EULER",
		},
	}
	var pred prediction
	if err := r.upstream.SendJSON(ctx, http.MethodPost, r.baseURL+"/predictions", header, body, &pred); err != nil {
		return nil, "", fmt.Errorf("replicate: create prediction: %w", err)
	}

	if !pred.terminal() {
		if pred.ID == "" {
			return nil, "", fmt.Errorf("replicate: %w: prediction has no id", ErrEmptyResult)
		}
		statusURL := r.baseURL + "/predictions/" + url.PathEscape(pred.ID)
		err := r.poller.Poll(ctx, func(ctx context.Context) error {
			var next prediction
			if err := r.upstream.GetJSON(ctx, statusURL, header, &next); err != nil {
				return fmt.Errorf("replicate: poll prediction: %w", err)
			}
			pred = next
			if !pred.terminal() {
				return ErrPending
			}
			return nil
		})
		if err != nil {
			return nil, "", err
		}
	}

	if pred.Status != "succeeded" {
		return nil, "", fmt.Errorf("%w: %s", ErrPredictionFailed, pred.errorMessage())
	}
	if len(pred.Output) == 0 || pred.Output[0] == "" {
		return nil, "", ErrEmptyResult
	}

	data, contentType, err := r.upstream.Download(ctx, pred.Output[0], maxImageBytes)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDownload, err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyResult
	}
	return data, imageContentType(contentType, data), nil
}

// imageContentType keeps a declared image type and otherwise sniffs, defaulting to PNG.
func imageContentType(declared string, data []byte) string {
	if ct := strings.TrimSpace(strings.Split(declared, ";")[0]); strings.HasPrefix(ct, "image/") {
		return ct
	}
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/png"
}

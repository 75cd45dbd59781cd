// Package imagegen produces poster images from prompts, falling back to the
// procedural renderer whenever the AI provider cannot deliver.
package imagegen

import (
	"context"
	"errors"
)

var (
	ErrMissingCredential = errors.New("image provider credential not configured")
	ErrPredictionFailed  = errors.New("image prediction failed")
	ErrEmptyResult       = errors.New("image provider returned no image")
	ErrDownload          = errors.New("image download failed")
)

// Request describes one image to generate.
type Request struct {
	Prompt string
	Width  int
	Height int
}

// Provider is an AI image backend. Generate returns the image bytes and their content type.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) ([]byte, string, error)
}

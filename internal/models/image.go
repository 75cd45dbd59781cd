package models

const (
	ContentTypeSVG = "image/svg+xml"
	ContentTypePNG = "image/png"
)

// ImageSource records which path produced a GenerationResult.
type ImageSource string

const (
	SourceAI       ImageSource = "ai"
	SourceFallback ImageSource = "fallback"
)

// GenerationResult is the poster produced by either the AI provider or the fallback renderer.
type GenerationResult struct {
	Image          []byte      `json:"-"`
	ContentType    string      `json:"contentType"`
	Source         ImageSource `json:"source"`
	FallbackReason string      `json:"fallbackReason,omitempty"`
}

// PosterFields are the display values drawn on a fallback poster.
// Temperature is kept as text since it may come from a parsed prompt.
type PosterFields struct {
	City        string `json:"city"`
	Weather     string `json:"weather"`
	Temperature string `json:"temperature"`
	TimeOfDay   string `json:"timeOfDay"`
}

package pipeline

import (
	"errors"
	"time"

	"github.com/kjstillabower/weather-moment-nft/internal/frame"
	"github.com/kjstillabower/weather-moment-nft/internal/models"
)

// State is a stage of a mint run.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateFetching   State = "fetching"
	StateGenerating State = "generating"
	StateUploading  State = "uploading"
	StateMinting    State = "minting"
	StateDone       State = "done"
)

var (
	// ErrNotEligible is matched by every *NotEligibleError.
	ErrNotEligible = errors.New("not eligible to mint")
	// ErrMintFailed is matched by every *MintError.
	ErrMintFailed = errors.New("mint failed")
	// ErrInFlight is returned when a run for the same address, city and date is already in progress.
	ErrInFlight = errors.New("a mint for this city and date is already in progress")
	// ErrPromptEmpty is returned by Render for a blank prompt.
	ErrPromptEmpty = errors.New("prompt is required")
)

// NotEligibleError carries the eligibility reason. Its message is the reason itself.
type NotEligibleError struct {
	Reason string
}

func (e *NotEligibleError) Error() string { return e.Reason }

func (e *NotEligibleError) Unwrap() error { return ErrNotEligible }

// MintError wraps a mint failure without altering its message.
type MintError struct {
	Err error
}

func (e *MintError) Error() string { return e.Err.Error() }

func (e *MintError) Unwrap() []error { return []error{ErrMintFailed, e.Err} }

// Coordinates is a device position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Request starts a mint run. Exactly one of City and Coordinates is used;
// City wins when both are set. An empty Date means today.
type Request struct {
	Address     string
	City        string
	Coordinates *Coordinates
	Date        string
	UseFrame    bool
	FrameStyle  frame.Style
}

// Outcome is the trail and result of one run. Fields fill in as stages complete.
type Outcome struct {
	RunID  string        `json:"runId"`
	State  State         `json:"state"`
	States []State       `json:"states"`
	Took   time.Duration `json:"-"`

	Address string                  `json:"address"`
	City    string                  `json:"city"`
	Date    string                  `json:"date"`
	Weather *models.WeatherSnapshot `json:"weather,omitempty"`
	Prompt  string                  `json:"prompt,omitempty"`

	ImageSource    models.ImageSource   `json:"imageSource,omitempty"`
	FallbackReason string               `json:"fallbackReason,omitempty"`
	ContentType    string               `json:"contentType,omitempty"`
	Framed         bool                 `json:"framed"`
	FrameStyle     frame.Style          `json:"frameStyle,omitempty"`
	Traits         *models.WalletTraits `json:"walletTraits,omitempty"`

	ImageURI        string `json:"imageUri,omitempty"`
	ImageGatewayURL string `json:"imageGatewayUrl,omitempty"`
	TokenURI        string `json:"tokenUri,omitempty"`
	UploadDegraded  bool   `json:"uploadDegraded"`

	TxHash             string `json:"txHash,omitempty"`
	TokenID            string `json:"tokenId,omitempty"`
	TokenIDPlaceholder bool   `json:"tokenIdPlaceholder"`

	// Image is the final poster, framed when requested.
	Image []byte `json:"-"`
}

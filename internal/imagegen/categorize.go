package imagegen

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v3"

	"github.com/kjstillabower/weather-moment-nft/internal/circuitbreaker"
	"github.com/kjstillabower/weather-moment-nft/internal/client"
)

// Reason is a stable label for why the fallback poster was used.
type Reason string

const (
	ReasonMissingCredential Reason = "missing_credential"
	ReasonHTTPStatus        Reason = "http_status"
	ReasonPredictionFailed  Reason = "prediction_failed"
	ReasonTimeout           Reason = "timeout"
	ReasonEmptyResult       Reason = "empty_result"
	ReasonDownload          Reason = "download"
	ReasonCircuitOpen       Reason = "circuit_open"
	ReasonCanceled          Reason = "canceled"
	ReasonUnknown           Reason = "unknown"
)

// Categorize maps a provider failure to a Reason for metrics and logs.
func Categorize(err error) Reason {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrMissingCredential):
		return ReasonMissingCredential
	case errors.Is(err, circuitbreaker.ErrOpen):
		return ReasonCircuitOpen
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.Is(err, ErrDownload):
		return ReasonDownload
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrEmptyResult):
		return ReasonEmptyResult
	case errors.Is(err, ErrPredictionFailed):
		return ReasonPredictionFailed
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ReasonHTTPStatus
	}
	switch client.CategorizeError(err) {
	case client.ErrorCategoryTimeout:
		return ReasonTimeout
	case client.ErrorCategoryUnauthorized, client.ErrorCategoryNotFound, client.ErrorCategoryRejected,
		client.ErrorCategoryRateLimited, client.ErrorCategoryUpstream5xx:
		return ReasonHTTPStatus
	}
	return ReasonUnknown
}

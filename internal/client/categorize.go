package client

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

const (
	ErrorCategoryTimeout      ErrorCategory = "timeout"
	ErrorCategoryCanceled     ErrorCategory = "canceled"
	ErrorCategoryNetwork      ErrorCategory = "network"
	ErrorCategoryUnauthorized ErrorCategory = "unauthorized"
	ErrorCategoryNotFound     ErrorCategory = "not_found"
	ErrorCategoryRejected     ErrorCategory = "rejected"
	ErrorCategoryRateLimited  ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx  ErrorCategory = "upstream_5xx"
	ErrorCategoryParsing      ErrorCategory = "parsing"
	ErrorCategoryUnknown      ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCategoryCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorCategoryTimeout
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return ErrorCategoryUnauthorized
	case errors.Is(err, ErrNotFound):
		return ErrorCategoryNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrUpstreamFailure):
		return ErrorCategoryUpstream5xx
	case errors.Is(err, ErrRejected):
		return ErrorCategoryRejected
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorCategoryNetwork
	}
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return ErrorCategoryNetwork
	}
	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") {
		return ErrorCategoryParsing
	}
	return ErrorCategoryUnknown
}

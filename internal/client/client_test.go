package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-moment-nft/internal/observability"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestUpstream_GetJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if got := r.Header.Get("User-Agent"); got != "WeatherNFT-App/1.0" {
			t.Errorf("User-Agent = %q", got)
		}
		if got := r.Header.Get("X-Correlation-ID"); got != "corr-1" {
			t.Errorf("X-Correlation-ID = %q, want corr-1", got)
		}
		if got := r.Header.Get("X-Extra"); got != "yes" {
			t.Errorf("X-Extra = %q, want yes", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"value": 42})
	}))
	defer server.Close()

	u := NewUpstream("test", time.Second, fastRetry()).WithUserAgent("WeatherNFT-App/1.0")
	ctx := observability.WithCorrelationID(context.Background(), "corr-1")

	var out struct {
		Value int `json:"value"`
	}
	if err := u.GetJSON(ctx, server.URL, http.Header{"X-Extra": {"yes"}}, &out); err != nil {
		t.Fatalf("GetJSON() error = %v, want nil", err)
	}
	if out.Value != 42 {
		t.Errorf("Value = %d, want 42", out.Value)
	}
}

func TestUpstream_GetJSON_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	u := NewUpstream("test", time.Second, fastRetry())
	if err := u.GetJSON(context.Background(), server.URL, nil, &struct{}{}); err != nil {
		t.Fatalf("GetJSON() error = %v, want nil after retries", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestUpstream_GetJSON_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	u := NewUpstream("test", time.Second, fastRetry())
	err := u.GetJSON(context.Background(), server.URL, nil, &struct{}{})
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("GetJSON() error = %v, want ErrUpstreamFailure", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestUpstream_GetJSON_NoRetryOnClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"unprocessable", http.StatusUnprocessableEntity, ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"detail":"nope"}`))
			}))
			defer server.Close()

			u := NewUpstream("test", time.Second, fastRetry())
			err := u.GetJSON(context.Background(), server.URL, nil, &struct{}{})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("GetJSON() error = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), "nope") {
				t.Errorf("error %q should carry the response excerpt", err)
			}
			if got := calls.Load(); got != 1 {
				t.Errorf("calls = %d, want 1", got)
			}
		})
	}
}

func TestUpstream_SendJSON_NotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	u := NewUpstream("test", time.Second, fastRetry())
	err := u.SendJSON(context.Background(), http.MethodPost, server.URL, nil, map[string]string{"a": "b"}, nil)
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("SendJSON() error = %v, want ErrUpstreamFailure", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestUpstream_Download(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer server.Close()

	u := NewUpstream("test", time.Second, fastRetry())

	data, ct, err := u.Download(context.Background(), server.URL, 10)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if string(data) != "0123456789" || ct != "image/png" {
		t.Errorf("Download() = %q, %q", data, ct)
	}

	if _, _, err := u.Download(context.Background(), server.URL, 5); !errors.Is(err, ErrRejected) {
		t.Errorf("Download() oversize error = %v, want ErrRejected", err)
	}
}

func TestUpstream_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	u := NewUpstream("test", 10*time.Millisecond, RetryPolicy{Attempts: 1})
	err := u.GetJSON(context.Background(), server.URL, nil, nil)
	if err == nil {
		t.Fatal("GetJSON() expected timeout error, got nil")
	}
	if CategorizeError(err) != ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %v, want timeout", CategorizeError(err))
	}
}

func TestRetry_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Retry(ctx, RetryPolicy{Attempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, func() error {
		calls++
		cancel()
		return ErrUpstreamFailure
	})
	if err == nil {
		t.Fatal("Retry() expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrRateLimited, true},
		{ErrUpstreamFailure, true},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{ErrUnauthorized, false},
		{ErrRejected, false},
		{errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "success"},
		{201, "success"},
		{429, "rate_limited"},
		{404, "client_error"},
		{503, "server_error"},
		{301, "error"},
	}
	for _, tt := range tests {
		if got := StatusLabel(tt.code); got != tt.want {
			t.Errorf("StatusLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

package main

import (
	"testing"
	"time"

	"github.com/kjstillabower/weather-moment-nft/internal/client"
	"github.com/kjstillabower/weather-moment-nft/internal/config"
)

func TestNewImageProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
	}{
		{"replicate", "replicate"},
		{"openai", "openai"},
		{"none", ""},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := &config.Config{
				ImageProvider:   tt.provider,
				ImageTimeout:    time.Second,
				PollInterval:    time.Second,
				PollMaxAttempts: 60,
			}
			p := newImageProvider(cfg, client.DefaultRetryPolicy())
			if tt.wantName == "" {
				if p != nil {
					t.Errorf("newImageProvider(%q) = %T, want nil", tt.provider, p)
				}
				return
			}
			if p == nil || p.Name() != tt.wantName {
				t.Errorf("newImageProvider(%q) = %v", tt.provider, p)
			}
		})
	}
}

// The rest of main is wiring; the behavior it assembles is tested in the internal packages.

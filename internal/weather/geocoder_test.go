package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-moment-nft/internal/client"
)

func newTestNominatim(url string) *Nominatim {
	up := client.NewUpstream("nominatim", time.Second, client.RetryPolicy{Attempts: 1}).WithUserAgent("WeatherNFT-App/1.0")
	return NewNominatim(url, up, 1000, 10, time.Minute)
}

func TestNominatim_Search(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/search" {
			t.Errorf("path = %s, want /search", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != "Paris" || q.Get("format") != "json" || q.Get("limit") != "1" || q.Get("accept-language") != "zh-CN,zh" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if ua := r.Header.Get("User-Agent"); ua != "WeatherNFT-App/1.0" {
			t.Errorf("User-Agent = %q", ua)
		}
		_, _ = w.Write([]byte(`[{"lat":"48.8588897","lon":"2.3200410","display_name":"巴黎, 法兰西岛, 法国"}]`))
	}))
	defer server.Close()

	n := newTestNominatim(server.URL)
	got, err := n.Search(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got.City != "巴黎" || got.Country != "法国" {
		t.Errorf("Search() = %+v, want 巴黎/法国", got)
	}
	if got.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", got.Timezone)
	}

	// Second lookup is served from cache.
	if _, err := n.Search(context.Background(), " paris "); err != nil {
		t.Fatalf("Search() cached error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestNominatim_Search_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	_, err := newTestNominatim(server.URL).Search(context.Background(), "Atlantis")
	if !errors.Is(err, ErrCityNotFound) {
		t.Errorf("Search() error = %v, want ErrCityNotFound", err)
	}
}

func TestNominatim_Reverse(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantCity    string
		wantCountry string
	}{
		{"city", `{"display_name":"x","address":{"city":"上海市","country":"中国"}}`, "上海市", "中国"},
		{"town", `{"display_name":"x","address":{"town":"Hallstatt","country":"Österreich"}}`, "Hallstatt", "Österreich"},
		{"county only", `{"display_name":"x","address":{"county":"Marin"}}`, "Marin", "未知国家"},
		{"empty", `{}`, "未知位置", "未知国家"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/reverse" {
					t.Errorf("path = %s, want /reverse", r.URL.Path)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			got, err := newTestNominatim(server.URL).Reverse(context.Background(), 31.23, 121.47)
			if err != nil {
				t.Fatalf("Reverse() error = %v", err)
			}
			if got.City != tt.wantCity || got.Country != tt.wantCountry {
				t.Errorf("Reverse() = %s/%s, want %s/%s", got.City, got.Country, tt.wantCity, tt.wantCountry)
			}
			if got.Timezone != "Asia/Shanghai" {
				t.Errorf("Timezone = %q, want Asia/Shanghai", got.Timezone)
			}
		})
	}
}

package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-moment-nft/internal/client"
)

// ErrCityNotFound is returned when geocoding yields no match.
var ErrCityNotFound = errors.New("city not found")

const (
	unknownCity    = "未知位置"
	unknownCountry = "未知国家"
	acceptLanguage = "zh-CN,zh"
)

// Place is a geocoded location.
type Place struct {
	City      string
	Country   string
	Latitude  float64
	Longitude float64
	Timezone  string
}

// Geocoder resolves city names and coordinates to places.
type Geocoder interface {
	Search(ctx context.Context, city string) (Place, error)
	Reverse(ctx context.Context, lat, lon float64) (Place, error)
}

// Nominatim is a Geocoder backed by the OpenStreetMap Nominatim API.
// Requests are paced by a limiter, deduplicated while in flight, and cached by query.
type Nominatim struct {
	baseURL  string
	upstream *client.Upstream
	limiter  *rate.Limiter
	cache    *gocache.Cache
	group    singleflight.Group
}

var _ Geocoder = (*Nominatim)(nil)

// NewNominatim returns a geocoder for baseURL. rps bounds outbound requests (the public
// instance allows one per second) and cacheTTL bounds how long search results are reused.
func NewNominatim(baseURL string, upstream *client.Upstream, rps float64, burst int, cacheTTL time.Duration) *Nominatim {
	return &Nominatim{
		baseURL:  strings.TrimRight(baseURL, "/"),
		upstream: upstream,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		cache:    gocache.New(cacheTTL, 2*cacheTTL),
	}
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type reverseResult struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		County  string `json:"county"`
		Country string `json:"country"`
	} `json:"address"`
}

// Search geocodes a free-form city name. City is the first display_name part, country the last.
func (n *Nominatim) Search(ctx context.Context, city string) (Place, error) {
	key := "search:" + strings.ToLower(strings.TrimSpace(city))
	if v, ok := n.cache.Get(key); ok {
		return v.(Place), nil
	}

	v, err, _ := n.group.Do(key, func() (any, error) {
		params := url.Values{}
		params.Set("q", city)
		params.Set("format", "json")
		params.Set("limit", "1")
		params.Set("accept-language", acceptLanguage)

		var results []searchResult
		if err := n.get(ctx, "/search", params, &results); err != nil {
			return Place{}, err
		}
		if len(results) == 0 {
			return Place{}, fmt.Errorf("%w: %s", ErrCityNotFound, city)
		}
		p, err := placeFromSearch(results[0], city)
		if err != nil {
			return Place{}, err
		}
		n.cache.SetDefault(key, p)
		return p, nil
	})
	if err != nil {
		return Place{}, err
	}
	return v.(Place), nil
}

// Reverse resolves coordinates to a place. Missing address parts fall back to placeholder names.
func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (Place, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("format", "json")
	params.Set("accept-language", acceptLanguage)

	var res reverseResult
	if err := n.get(ctx, "/reverse", params, &res); err != nil {
		return Place{}, err
	}
	a := res.Address
	return Place{
		City:      firstNonEmpty(a.City, a.Town, a.Village, a.County, unknownCity),
		Country:   firstNonEmpty(a.Country, unknownCountry),
		Latitude:  lat,
		Longitude: lon,
		Timezone:  EstimateTimezone(lon),
	}, nil
}

func (n *Nominatim) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("nominatim: rate limit wait: %w", err)
	}
	return n.upstream.GetJSON(ctx, n.baseURL+path+"?"+params.Encode(), http.Header{"Accept-Language": {acceptLanguage}}, out)
}

func placeFromSearch(r searchResult, query string) (Place, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return Place{}, fmt.Errorf("nominatim: parse lat %q: %w", r.Lat, err)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return Place{}, fmt.Errorf("nominatim: parse lon %q: %w", r.Lon, err)
	}
	parts := strings.Split(r.DisplayName, ", ")
	city := strings.TrimSpace(parts[0])
	if city == "" {
		city = query
	}
	country := strings.TrimSpace(parts[len(parts)-1])
	if len(parts) < 2 || country == "" {
		country = unknownCountry
	}
	return Place{
		City:      city,
		Country:   country,
		Latitude:  lat,
		Longitude: lon,
		Timezone:  EstimateTimezone(lon),
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

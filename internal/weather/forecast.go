package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-moment-nft/internal/client"
)

// ErrMalformedForecast is returned when the forecast response lacks current conditions.
var ErrMalformedForecast = errors.New("forecast response missing current conditions")

// Conditions are the current readings at a location, in the location's wall-clock time.
type Conditions struct {
	LocalTime    time.Time
	WeatherCode  int
	TemperatureC float64
	HumidityPct  int
	WindSpeedKmh float64
}

// Forecaster returns current conditions for coordinates.
type Forecaster interface {
	Current(ctx context.Context, lat, lon float64, timezone string) (Conditions, error)
}

// OpenMeteo is a Forecaster backed by the Open-Meteo forecast API.
type OpenMeteo struct {
	apiURL   string
	upstream *client.Upstream
}

var _ Forecaster = (*OpenMeteo)(nil)

func NewOpenMeteo(apiURL string, upstream *client.Upstream) *OpenMeteo {
	return &OpenMeteo{apiURL: apiURL, upstream: upstream}
}

type openMeteoResponse struct {
	Current *struct {
		Time               string   `json:"time"`
		Temperature2m      *float64 `json:"temperature_2m"`
		RelativeHumidity2m *float64 `json:"relative_humidity_2m"`
		WeatherCode        *int     `json:"weather_code"`
		WindSpeed10m       *float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

// Current fetches current conditions. The returned LocalTime is the reading time in timezone.
func (o *OpenMeteo) Current(ctx context.Context, lat, lon float64, timezone string) (Conditions, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("current", "temperature_2m,relative_humidity_2m,weather_code,wind_speed_10m")
	params.Set("timezone", timezone)

	var resp openMeteoResponse
	if err := o.upstream.GetJSON(ctx, o.apiURL+"?"+params.Encode(), nil, &resp); err != nil {
		return Conditions{}, err
	}
	cur := resp.Current
	if cur == nil || cur.Temperature2m == nil || cur.WeatherCode == nil {
		return Conditions{}, ErrMalformedForecast
	}

	local, err := parseLocalTime(cur.Time)
	if err != nil {
		return Conditions{}, fmt.Errorf("open-meteo: %w", err)
	}
	c := Conditions{
		LocalTime:    local,
		WeatherCode:  *cur.WeatherCode,
		TemperatureC: *cur.Temperature2m,
	}
	if cur.RelativeHumidity2m != nil {
		c.HumidityPct = int(math.Round(*cur.RelativeHumidity2m))
	}
	if cur.WindSpeed10m != nil {
		c.WindSpeedKmh = *cur.WindSpeed10m
	}
	return c, nil
}

// parseLocalTime reads Open-Meteo's "2006-01-02T15:04" wall-clock timestamps.
func parseLocalTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q", s)
}

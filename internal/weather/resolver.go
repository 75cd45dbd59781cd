// Package weather resolves a city or coordinates to a WeatherSnapshot using
// a geocoder and a current-conditions forecaster.
package weather

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-moment-nft/internal/models"
	"github.com/kjstillabower/weather-moment-nft/internal/observability"
)

// Resolver produces WeatherSnapshots.
type Resolver struct {
	geo      Geocoder
	forecast Forecaster
	logger   *zap.Logger
}

func NewResolver(geo Geocoder, forecast Forecaster, logger *zap.Logger) *Resolver {
	return &Resolver{geo: geo, forecast: forecast, logger: logger}
}

// ResolveCity geocodes city and fetches its current weather. An empty date
// takes the calendar day at the location.
func (r *Resolver) ResolveCity(ctx context.Context, city, date string) (models.WeatherSnapshot, error) {
	place, err := r.geo.Search(ctx, city)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("weather: geocode %q: %w", city, err)
	}
	return r.ResolvePlace(ctx, place, date)
}

// ResolveCoordinates reverse-geocodes a device position and fetches its weather.
func (r *Resolver) ResolveCoordinates(ctx context.Context, lat, lon float64, date string) (models.WeatherSnapshot, error) {
	return r.ResolvePlace(ctx, r.Locate(ctx, lat, lon), date)
}

// Locate reverse-geocodes a position without fetching weather. A failed lookup
// is tolerated: the place keeps placeholder names and the UTC zone.
func (r *Resolver) Locate(ctx context.Context, lat, lon float64) Place {
	place, err := r.geo.Reverse(ctx, lat, lon)
	if err != nil {
		observability.LoggerFromContext(ctx, r.logger).Warn("reverse geocode failed", zap.Error(err),
			zap.Float64("lat", lat), zap.Float64("lon", lon))
		return Place{City: unknownCity, Country: "", Latitude: lat, Longitude: lon, Timezone: "UTC"}
	}
	return place
}

// ResolvePlace fetches current weather for an already located place.
func (r *Resolver) ResolvePlace(ctx context.Context, place Place, date string) (models.WeatherSnapshot, error) {
	cond, err := r.forecast.Current(ctx, place.Latitude, place.Longitude, place.Timezone)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("weather: current conditions: %w", err)
	}
	if date == "" {
		date = cond.LocalTime.Format("2006-01-02")
	}
	return models.WeatherSnapshot{
		City:         place.City,
		Country:      place.Country,
		Latitude:     place.Latitude,
		Longitude:    place.Longitude,
		Date:         date,
		WeatherCode:  cond.WeatherCode,
		WeatherLabel: Label(cond.WeatherCode),
		TemperatureC: int(math.Round(cond.TemperatureC)),
		HumidityPct:  cond.HumidityPct,
		WindSpeedKmh: int(math.Round(cond.WindSpeedKmh)),
		TimeOfDay:    TimeOfDayAt(cond.LocalTime),
		Timezone:     place.Timezone,
	}, nil
}

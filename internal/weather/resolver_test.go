package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-moment-nft/internal/models"
)

type mockGeocoder struct {
	place      Place
	err        error
	reverseErr error
}

func (m *mockGeocoder) Search(ctx context.Context, city string) (Place, error) {
	return m.place, m.err
}

func (m *mockGeocoder) Reverse(ctx context.Context, lat, lon float64) (Place, error) {
	if m.reverseErr != nil {
		return Place{}, m.reverseErr
	}
	p := m.place
	p.Latitude, p.Longitude = lat, lon
	return p, nil
}

type mockForecaster struct {
	cond    Conditions
	err     error
	gotZone string
	calls   int
}

func (m *mockForecaster) Current(ctx context.Context, lat, lon float64, timezone string) (Conditions, error) {
	m.calls++
	m.gotZone = timezone
	return m.cond, m.err
}

// TestResolver_ResolveCity_ParisLightRain covers code 61 at 14:00 local.
func TestResolver_ResolveCity_ParisLightRain(t *testing.T) {
	// Arrange
	geo := &mockGeocoder{place: Place{City: "Paris", Country: "France", Latitude: 48.8566, Longitude: 2.3522, Timezone: "UTC"}}
	fc := &mockForecaster{cond: Conditions{
		LocalTime:    time.Date(2025, 8, 1, 14, 0, 0, 0, time.UTC),
		WeatherCode:  61,
		TemperatureC: 17.5,
		HumidityPct:  80,
		WindSpeedKmh: 9.4,
	}}
	r := NewResolver(geo, fc, zap.NewNop())

	// Act
	got, err := r.ResolveCity(context.Background(), "Paris", "")

	// Assert
	if err != nil {
		t.Fatalf("ResolveCity() error = %v, want nil", err)
	}
	want := models.WeatherSnapshot{
		City: "Paris", Country: "France", Latitude: 48.8566, Longitude: 2.3522,
		Date: "2025-08-01", WeatherCode: 61, WeatherLabel: "小雨",
		TemperatureC: 18, HumidityPct: 80, WindSpeedKmh: 9,
		TimeOfDay: models.Afternoon, Timezone: "UTC",
	}
	if got != want {
		t.Errorf("ResolveCity() = %+v\nwant %+v", got, want)
	}
}

func TestResolver_ResolveCity_ExplicitDate(t *testing.T) {
	geo := &mockGeocoder{place: Place{City: "Tokyo", Timezone: "Asia/Tokyo"}}
	fc := &mockForecaster{cond: Conditions{LocalTime: time.Date(2025, 8, 2, 1, 0, 0, 0, time.UTC)}}
	r := NewResolver(geo, fc, zap.NewNop())

	got, err := r.ResolveCity(context.Background(), "Tokyo", "2025-08-01")
	if err != nil {
		t.Fatalf("ResolveCity() error = %v", err)
	}
	if got.Date != "2025-08-01" {
		t.Errorf("Date = %q, want caller date", got.Date)
	}
	if fc.gotZone != "Asia/Tokyo" {
		t.Errorf("forecast timezone = %q, want Asia/Tokyo", fc.gotZone)
	}
}

func TestResolver_ResolveCity_Errors(t *testing.T) {
	geoErr := errors.New("geocode down")
	r := NewResolver(&mockGeocoder{err: geoErr}, &mockForecaster{}, zap.NewNop())
	if _, err := r.ResolveCity(context.Background(), "X", ""); !errors.Is(err, geoErr) {
		t.Errorf("ResolveCity() error = %v, want wrapped geocode error", err)
	}

	fcErr := errors.New("forecast down")
	r = NewResolver(&mockGeocoder{}, &mockForecaster{err: fcErr}, zap.NewNop())
	if _, err := r.ResolveCity(context.Background(), "X", ""); !errors.Is(err, fcErr) {
		t.Errorf("ResolveCity() error = %v, want wrapped forecast error", err)
	}
}

// TestResolver_ResolveCoordinates_ReverseFailureTolerated verifies placeholder names and a warning log.
func TestResolver_ResolveCoordinates_ReverseFailureTolerated(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	fc := &mockForecaster{cond: Conditions{LocalTime: time.Date(2025, 8, 1, 20, 0, 0, 0, time.UTC), WeatherCode: 0}}
	r := NewResolver(&mockGeocoder{reverseErr: errors.New("nominatim 503")}, fc, zap.New(core))

	got, err := r.ResolveCoordinates(context.Background(), 10, 20, "")
	if err != nil {
		t.Fatalf("ResolveCoordinates() error = %v", err)
	}
	if got.City != "未知位置" || got.Timezone != "UTC" {
		t.Errorf("ResolveCoordinates() = %+v, want placeholder city and UTC", got)
	}
	if got.TimeOfDay != models.Evening || got.WeatherLabel != "晴天" {
		t.Errorf("TimeOfDay/Label = %s/%s", got.TimeOfDay, got.WeatherLabel)
	}
	if logs.FilterMessage("reverse geocode failed").Len() != 1 {
		t.Errorf("expected reverse geocode warning, got %d logs", logs.Len())
	}
}

// TestResolver_Locate_SkipsForecast verifies locating a position costs no forecast call,
// and that ResolvePlace then fetches weather for the located place.
func TestResolver_Locate_SkipsForecast(t *testing.T) {
	geo := &mockGeocoder{place: Place{City: "Tokyo", Country: "Japan", Timezone: "Asia/Tokyo"}}
	fc := &mockForecaster{cond: Conditions{LocalTime: time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC), WeatherCode: 3}}
	r := NewResolver(geo, fc, zap.NewNop())

	place := r.Locate(context.Background(), 35.68, 139.69)
	if place.City != "Tokyo" || place.Latitude != 35.68 {
		t.Errorf("Locate() = %+v", place)
	}
	if fc.calls != 0 {
		t.Fatalf("forecast calls after Locate = %d, want 0", fc.calls)
	}

	snap, err := r.ResolvePlace(context.Background(), place, "2025-04-02")
	if err != nil {
		t.Fatalf("ResolvePlace() error = %v", err)
	}
	if snap.City != "Tokyo" || snap.Date != "2025-04-02" || fc.gotZone != "Asia/Tokyo" || fc.calls != 1 {
		t.Errorf("ResolvePlace() = %+v, zone %q, calls %d", snap, fc.gotZone, fc.calls)
	}
}

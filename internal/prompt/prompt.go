// Package prompt maps weather snapshots to image-generation prompts and back.
package prompt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kjstillabower/weather-moment-nft/internal/models"
)

// Placeholders used by ParseFields when a field cannot be recovered.
const (
	DefaultCity        = "Unknown City"
	DefaultWeather     = "clear"
	DefaultTemperature = "20"
	DefaultTimeOfDay   = "day"
)

const styleDirectives = "minimalist design, modern typography, vibrant colors, travel poster style --ar 96:96 --style rd_fast__retro"

var weatherPhrases = map[string]string{
	"晴天":   "sunny clear sky",
	"基本晴朗": "mostly clear",
	"部分多云": "partly cloudy",
	"阴天":   "overcast",
	"雾":    "foggy",
	"小雨":   "light rain",
	"中雨":   "moderate rain",
	"大雨":   "heavy rain",
	"小雪":   "light snow",
	"中雪":   "moderate snow",
	"大雪":   "heavy snow",
	"雷暴":   "thunderstorm",
}

var (
	cityPattern    = regexp.MustCompile(`of ([^,]+)`)
	weatherPattern = regexp.MustCompile(`(?i)(sunny|rainy|cloudy|snowy|foggy|clear|overcast|thunderstorm)`)
	tempPattern    = regexp.MustCompile(`(-?\d+)°C`)
	timePattern    = regexp.MustCompile(`(?i)(morning|afternoon|evening|night)`)
)

// WeatherPhrase returns the English phrase for a weather label, or the label itself when unmapped.
func WeatherPhrase(label string) string {
	if p, ok := weatherPhrases[label]; ok {
		return p
	}
	return label
}

// TimePhrase returns the English time-of-day phrase; unknown values read as "day".
func TimePhrase(t models.TimeOfDay) string {
	switch t {
	case models.Morning, models.Afternoon, models.Evening, models.Night:
		return string(t)
	}
	return DefaultTimeOfDay
}

// Build renders the image-generation prompt for s. Output is stable for equal inputs.
func Build(s models.WeatherSnapshot) string {
	return fmt.Sprintf("A beautiful artistic poster of city %s, %s time, %s weather, %d°C, %s",
		s.City, TimePhrase(s.TimeOfDay), WeatherPhrase(s.WeatherLabel), s.TemperatureC, styleDirectives)
}

// FieldsFromSnapshot derives poster fields directly from structured weather data.
func FieldsFromSnapshot(s models.WeatherSnapshot) models.PosterFields {
	return models.PosterFields{
		City:        s.City,
		Weather:     WeatherPhrase(s.WeatherLabel),
		Temperature: strconv.Itoa(s.TemperatureC),
		TimeOfDay:   TimePhrase(s.TimeOfDay),
	}
}

// ParseFields recovers poster fields from a prompt string on a best-effort basis.
// Fields that do not match fall back to the package placeholders.
func ParseFields(prompt string) models.PosterFields {
	f := models.PosterFields{
		City:        DefaultCity,
		Weather:     DefaultWeather,
		Temperature: DefaultTemperature,
		TimeOfDay:   DefaultTimeOfDay,
	}
	if m := cityPattern.FindStringSubmatch(prompt); m != nil {
		f.City = strings.TrimPrefix(strings.TrimSpace(m[1]), "city ")
	}
	if m := weatherPattern.FindStringSubmatch(prompt); m != nil {
		f.Weather = m[1]
	}
	if m := tempPattern.FindStringSubmatch(prompt); m != nil {
		f.Temperature = m[1]
	}
	if m := timePattern.FindStringSubmatch(prompt); m != nil {
		f.TimeOfDay = strings.ToLower(m[1])
	}
	return f
}

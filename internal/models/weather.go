package models

// TimeOfDay buckets the local hour of a weather reading.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	Night     TimeOfDay = "night"
)

// WeatherSnapshot is the resolved weather and location for one mint attempt.
// It is never mutated after the resolver returns it.
type WeatherSnapshot struct {
	City         string    `json:"city"`
	Country      string    `json:"country"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Date         string    `json:"date"`
	WeatherCode  int       `json:"weatherCode"`
	WeatherLabel string    `json:"weather"`
	TemperatureC int       `json:"temperature"`
	HumidityPct  int       `json:"humidity"`
	WindSpeedKmh int       `json:"windSpeed"`
	TimeOfDay    TimeOfDay `json:"timeOfDay"`
	Timezone     string    `json:"timezone"`
}

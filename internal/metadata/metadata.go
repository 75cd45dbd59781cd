// Package metadata builds the ERC-721 metadata document for a weather moment.
package metadata

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kjstillabower/weather-moment-nft/internal/models"
)

const defaultExternalURL = "https://your-domain.com"

// Attribute is one OpenSea-style trait. Value is a string or a number.
type Attribute struct {
	TraitType   string `json:"trait_type"`
	Value       any    `json:"value"`
	DisplayType string `json:"display_type,omitempty"`
}

// Document is the token metadata JSON.
type Document struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	ExternalURL string      `json:"external_url,omitempty"`
	Attributes  []Attribute `json:"attributes"`
}

// Build returns the metadata for snap. Attributes are always in the order
// City, Country, Date, Weather, Temperature, Time of Day, Humidity, Wind Speed,
// Latitude, Longitude, Weather Code.
func Build(snap models.WeatherSnapshot, tokenID, imageURI, externalURL string) Document {
	if externalURL == "" {
		externalURL = defaultExternalURL
	}
	return Document{
		Name: fmt.Sprintf("Weather Moment #%s - %s", tokenID, snap.City),
		Description: fmt.Sprintf("A unique AI-generated poster capturing the weather moment in %s on %s. Temperature: %d°C, Conditions: %s",
			snap.City, snap.Date, snap.TemperatureC, snap.WeatherLabel),
		Image:       imageURI,
		ExternalURL: externalURL + "/nft/" + tokenID,
		Attributes: []Attribute{
			{TraitType: "City", Value: snap.City},
			{TraitType: "Country", Value: snap.Country},
			{TraitType: "Date", Value: snap.Date},
			{TraitType: "Weather", Value: snap.WeatherLabel},
			{TraitType: "Temperature", Value: snap.TemperatureC, DisplayType: "number"},
			{TraitType: "Time of Day", Value: string(snap.TimeOfDay)},
			{TraitType: "Humidity", Value: snap.HumidityPct, DisplayType: "number"},
			{TraitType: "Wind Speed", Value: snap.WindSpeedKmh, DisplayType: "number"},
			{TraitType: "Latitude", Value: strconv.FormatFloat(snap.Latitude, 'f', 4, 64)},
			{TraitType: "Longitude", Value: strconv.FormatFloat(snap.Longitude, 'f', 4, 64)},
			{TraitType: "Weather Code", Value: snap.WeatherCode, DisplayType: "number"},
		},
	}
}

// DataURI encodes doc as a base64 data:application/json URI, used as the token
// URI when pinning is unavailable.
func DataURI(doc Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("metadata: encode: %w", err)
	}
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(raw), nil
}

// ImageDataURI encodes image bytes as a data: URI of the given content type.
func ImageDataURI(data []byte, contentType string) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

package poster

import "strings"

// Gradient is a vertical two-stop background.
type Gradient struct {
	From string
	To   string
}

var (
	GradientRain    = Gradient{From: "#4682B4", To: "#2F4F4F"}
	GradientSnow    = Gradient{From: "#B0C4DE", To: "#4682B4"}
	GradientCloud   = Gradient{From: "#87CEEB", To: "#4682B4"}
	GradientNight   = Gradient{From: "#191970", To: "#000080"}
	GradientEvening = Gradient{From: "#FF6347", To: "#FF4500"}
	GradientDefault = Gradient{From: "#FFD700", To: "#FFA500"}
)

// Gradients lists every background the renderer can produce.
var Gradients = []Gradient{GradientRain, GradientSnow, GradientCloud, GradientNight, GradientEvening, GradientDefault}

// GradientFor picks the background for a weather phrase and time of day.
// Weather keywords take precedence over time of day; the first match wins.
func GradientFor(weather, timeOfDay string) Gradient {
	w := strings.ToLower(weather)
	t := strings.ToLower(timeOfDay)
	switch {
	case strings.Contains(w, "rain"):
		return GradientRain
	case strings.Contains(w, "snow"):
		return GradientSnow
	case strings.Contains(w, "cloud"):
		return GradientCloud
	case t == "night":
		return GradientNight
	case t == "evening":
		return GradientEvening
	}
	return GradientDefault
}

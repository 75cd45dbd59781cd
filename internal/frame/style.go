// Package frame draws persona-styled borders and composites them around poster images.
package frame

import "github.com/kjstillabower/weather-moment-nft/internal/models"

// Style is a concrete or requested frame look.
type Style string

const (
	StyleAuto    Style = "auto"
	StyleMinimal Style = "minimal"
	StylePixel   Style = "pixel"
)

// Frame geometry in pixels.
const (
	Width     = 484
	Height    = 484
	Border    = 50
	BlockSize = 25
)

// Rule maps a persona tag to a frame style.
type Rule struct {
	Tag   string
	Style Style
}

// Rules is checked in order; the first tag present on the wallet wins.
var Rules = []Rule{
	{Tag: models.TagVeteran, Style: StyleMinimal},
	{Tag: models.TagCollector, Style: StyleMinimal},
	{Tag: models.TagExplorer, Style: StylePixel},
}

// DefaultRule applies when no rule matches.
var DefaultRule = Rule{Tag: models.TagNovice, Style: StylePixel}

// Palette is four colors used to paint a frame.
type Palette [4]string

var palettes = map[string]Palette{
	models.TagNovice:    {"#E0E0E0", "#BDBDBD", "#9E9E9E", "#FAFAFA"},
	models.TagCollector: {"#8D6E63", "#A1887F", "#BCAAA4", "#795548"},
	models.TagVeteran:   {"#FFD700", "#C0C0C0", "#424242", "#212121"},
	models.TagExplorer:  {"#1E88E5", "#00ACC1", "#43A047", "#FDD835"},
}

// Resolve returns the first rule whose tag the wallet carries.
func Resolve(traits models.WalletTraits) Rule {
	for _, r := range Rules {
		if traits.HasTag(r.Tag) {
			return r
		}
	}
	return DefaultRule
}

// Persona returns the tag that decides the palette.
func Persona(traits models.WalletTraits) string {
	return Resolve(traits).Tag
}

// SelectStyle resolves a requested style. Explicit minimal and pixel requests ignore the traits.
func SelectStyle(traits models.WalletTraits, requested Style) Style {
	switch requested {
	case StyleMinimal, StylePixel:
		return requested
	}
	return Resolve(traits).Style
}

// PaletteFor returns the palette for a persona tag, defaulting to the novice palette.
func PaletteFor(tag string) Palette {
	if p, ok := palettes[tag]; ok {
		return p
	}
	return palettes[models.TagNovice]
}

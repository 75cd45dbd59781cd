// Package poster renders the fallback weather poster used when no AI image is available.
// Output depends only on the input fields and dimensions.
package poster

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kjstillabower/weather-moment-nft/internal/models"
)

// Caption is the watermark drawn near the bottom of every fallback poster.
const Caption = "AI GENERATED WEATHER NFT"

// Layout positions, as fractions of the canvas.
const (
	cityY     = 0.2
	tempY     = 0.4
	weatherY  = 0.55
	timeY     = 0.65
	dividerY  = 0.7
	captionY  = 0.9
	dividerX1 = 0.3
	dividerX2 = 0.7
)

// RenderSVG returns the poster as an SVG document.
func RenderSVG(f models.PosterFields, width, height int) []byte {
	w, h := float64(width), float64(height)
	g := GradientFor(f.Weather, f.TimeOfDay)

	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg width="%d" height="%d" viewBox="0 0 %d %d" xmlns="http://www.w3.org/2000/svg">`, width, height, width, height)
	b.WriteString(`<defs>`)
	fmt.Fprintf(&b, `<linearGradient id="bg" x1="0%%" y1="0%%" x2="0%%" y2="100%%"><stop offset="0%%" stop-color="%s"/><stop offset="100%%" stop-color="%s"/></linearGradient>`, g.From, g.To)
	b.WriteString(`<filter id="glow"><feGaussianBlur stdDeviation="3" result="coloredBlur"/><feMerge><feMergeNode in="coloredBlur"/><feMergeNode in="SourceGraphic"/></feMerge></filter>`)
	b.WriteString(`</defs>`)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="url(#bg)"/>`, width, height)
	fmt.Fprintf(&b, `<circle cx="%s" cy="%s" r="60" fill="#FFFFFF" fill-opacity="0.1"/>`, num(w*0.8), num(h*0.2))
	fmt.Fprintf(&b, `<circle cx="%s" cy="%s" r="40" fill="#FFFFFF" fill-opacity="0.05"/>`, num(w*0.2), num(h*0.8))

	cx := num(w / 2)
	text(&b, cx, num(h*cityY), `font-size="42" font-weight="bold" filter="url(#glow)"`, f.City)
	text(&b, cx, num(h*tempY), `font-size="72" font-weight="bold"`, f.Temperature+"°C")
	text(&b, cx, num(h*weatherY), `font-size="24" opacity="0.9"`, strings.ToUpper(f.Weather))
	text(&b, cx, num(h*timeY), `font-size="18" opacity="0.8"`, strings.ToUpper(f.TimeOfDay))
	text(&b, cx, num(h*captionY), `font-size="14" fill-opacity="0.6"`, Caption)

	fmt.Fprintf(&b, `<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="#FFFFFF" stroke-opacity="0.3" stroke-width="2"/>`,
		num(w*dividerX1), num(h*dividerY), num(w*dividerX2), num(h*dividerY))
	b.WriteString(`</svg>`)
	return b.Bytes()
}

func text(b *bytes.Buffer, x, y, attrs, content string) {
	fmt.Fprintf(b, `<text x="%s" y="%s" text-anchor="middle" fill="#FFFFFF" font-family="sans-serif" %s>`, x, y, attrs)
	_ = xml.EscapeText(b, []byte(content))
	b.WriteString(`</text>`)
}

// num formats a coordinate with at most two decimals.
func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

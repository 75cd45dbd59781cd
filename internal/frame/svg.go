package frame

import (
	"bytes"
	"fmt"
	"math/rand/v2"

	"github.com/kjstillabower/weather-moment-nft/internal/models"
)

// Renderer draws frame SVGs. The pixel style draws from IntN; set it to a seeded source for repeatable output.
type Renderer struct {
	IntN func(n int) int
}

// NewRenderer returns a Renderer backed by the global random source.
func NewRenderer() *Renderer {
	return &Renderer{IntN: rand.IntN}
}

// Render draws the frame for the wallet in a concrete style.
func (r *Renderer) Render(traits models.WalletTraits, style Style) []byte {
	palette := PaletteFor(Persona(traits))
	if style == StyleMinimal {
		return Minimal(palette)
	}
	return r.Pixel(palette)
}

// Minimal draws a diagonal gradient field with a double rule and corner dots.
func Minimal(p Palette) []byte {
	var b bytes.Buffer
	header(&b)
	fmt.Fprintf(&b, `<defs><linearGradient id="field" x1="0%%" y1="0%%" x2="100%%" y2="100%%"><stop offset="0%%" stop-color="%s"/><stop offset="100%%" stop-color="%s"/></linearGradient></defs>`, p[0], p[1])
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="url(#field)"/>`, Width, Height)

	const outerInset, innerInset = 10, Border - 10
	fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="none" stroke="%s" stroke-width="2"/>`,
		outerInset, outerInset, Width-2*outerInset, Height-2*outerInset, p[2])
	fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="none" stroke="%s" stroke-width="1"/>`,
		innerInset, innerInset, Width-2*innerInset, Height-2*innerInset, p[2])

	c := Border / 2
	for _, pt := range [][2]int{{c, c}, {Width - c, c}, {c, Height - c}, {Width - c, Height - c}} {
		fmt.Fprintf(&b, `<circle cx="%d" cy="%d" r="4" fill="%s"/>`, pt[0], pt[1], p[3])
	}
	b.WriteString(`</svg>`)
	return b.Bytes()
}

// Pixel tiles the border band with blocks filled from the palette or the shared gradient.
func (r *Renderer) Pixel(p Palette) []byte {
	intn := r.IntN
	if intn == nil {
		intn = rand.IntN
	}

	var b bytes.Buffer
	header(&b)
	fmt.Fprintf(&b, `<defs><linearGradient id="px" x1="0%%" y1="0%%" x2="100%%" y2="100%%"><stop offset="0%%" stop-color="%s"/><stop offset="100%%" stop-color="%s"/></linearGradient></defs>`, p[0], p[2])
	for y := 0; y < Height; y += BlockSize {
		for x := 0; x < Width; x += BlockSize {
			if !inBorder(x, y) {
				continue
			}
			// One slot beyond the palette selects the gradient.
			fill := "url(#px)"
			if i := intn(len(p) + 1); i < len(p) {
				fill = p[i]
			}
			rx := intn(3) * 3
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" rx="%d" fill="%s"/>`, x, y, BlockSize, BlockSize, rx, fill)
		}
	}
	b.WriteString(`</svg>`)
	return b.Bytes()
}

func inBorder(x, y int) bool {
	return x < Border || x >= Width-Border || y < Border || y >= Height-Border
}

func header(b *bytes.Buffer) {
	fmt.Fprintf(b, `<svg width="%d" height="%d" viewBox="0 0 %d %d" xmlns="http://www.w3.org/2000/svg">`, Width, Height, Width, Height)
}

// Command render draws fallback posters and persona frames to files, for
// previewing artwork without running the service.
package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-moment-nft/internal/frame"
	"github.com/kjstillabower/weather-moment-nft/internal/models"
	"github.com/kjstillabower/weather-moment-nft/internal/observability"
	"github.com/kjstillabower/weather-moment-nft/internal/poster"
	"github.com/kjstillabower/weather-moment-nft/internal/prompt"
)

type cli struct {
	Poster posterCmd `cmd:"" help:"Render a fallback poster."`
	Frame  frameCmd  `cmd:"" help:"Render a persona frame, optionally around a poster."`
}

type posterCmd struct {
	City    string `help:"City drawn on the poster." default:"Unknown City"`
	Weather string `help:"Weather phrase, e.g. 'light rain'." default:"clear"`
	Temp    string `help:"Temperature in Celsius." default:"20"`
	Time    string `help:"Time of day: morning, afternoon, evening or night." default:"day"`
	Prompt  string `help:"Parse the fields from an image prompt instead of the flags."`
	Width   int    `help:"Width in pixels." default:"512"`
	Height  int    `help:"Height in pixels." default:"768"`
	PNG     bool   `help:"Rasterize to PNG instead of writing SVG."`
	Out     string `short:"o" help:"Output file." required:"" type:"path"`
}

func (c *posterCmd) fields() models.PosterFields {
	if strings.TrimSpace(c.Prompt) != "" {
		return prompt.ParseFields(c.Prompt)
	}
	return models.PosterFields{City: c.City, Weather: c.Weather, Temperature: c.Temp, TimeOfDay: c.Time}
}

func (c *posterCmd) Run(logger *zap.Logger) error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("width and height must be positive")
	}
	f := c.fields()
	data := poster.RenderSVG(f, c.Width, c.Height)
	if c.PNG {
		var err error
		if data, err = poster.RenderPNG(f, c.Width, c.Height); err != nil {
			return fmt.Errorf("render png: %w", err)
		}
	}
	if err := os.WriteFile(c.Out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", c.Out, err)
	}
	g := poster.GradientFor(f.Weather, f.TimeOfDay)
	logger.Info("poster written",
		zap.String("out", c.Out),
		zap.String("city", f.City),
		zap.String("gradient_from", g.From),
		zap.String("gradient_to", g.To),
		zap.Int("bytes", len(data)))
	return nil
}

type frameCmd struct {
	Tag    []string `help:"Wallet persona tag, repeatable (新手, 收藏家, 老炮, 探索家)." default:"新手"`
	Style  string   `help:"Frame style." enum:"auto,minimal,pixel" default:"auto"`
	Seed   uint64   `help:"Seed for pixel blocks; 0 draws a random frame."`
	Poster string   `help:"Poster image (PNG or SVG) to compose inside the frame." type:"existingfile"`
	Out    string   `short:"o" help:"Output file; SVG without --poster, PNG with it." required:"" type:"path"`
}

func (c *frameCmd) Run(logger *zap.Logger) error {
	traits := models.WalletTraits{Tags: c.Tag}
	style := frame.SelectStyle(traits, frame.Style(c.Style))

	r := frame.NewRenderer()
	if c.Seed != 0 {
		r.IntN = rand.New(rand.NewPCG(c.Seed, c.Seed)).IntN
	}
	data := r.Render(traits, style)

	if c.Poster != "" {
		posterImg, err := os.ReadFile(c.Poster)
		if err != nil {
			return fmt.Errorf("read poster: %w", err)
		}
		if data, err = frame.Compose(posterImg, data); err != nil {
			return fmt.Errorf("compose: %w", err)
		}
	}
	if err := os.WriteFile(c.Out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", c.Out, err)
	}
	logger.Info("frame written",
		zap.String("out", c.Out),
		zap.String("persona", frame.Persona(traits)),
		zap.String("style", string(style)),
		zap.Bool("composed", c.Poster != ""))
	return nil
}

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var c cli
	ctx := kong.Parse(&c,
		kong.Name("render"),
		kong.Description("Render weather posters and wallet frames to files."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(logger))
}

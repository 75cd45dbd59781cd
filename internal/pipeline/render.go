package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-moment-nft/internal/frame"
	"github.com/kjstillabower/weather-moment-nft/internal/imagegen"
	"github.com/kjstillabower/weather-moment-nft/internal/models"
	"github.com/kjstillabower/weather-moment-nft/internal/observability"
	"github.com/kjstillabower/weather-moment-nft/internal/poster"
	"github.com/kjstillabower/weather-moment-nft/internal/validation"
)

// RenderRequest asks for a poster without minting. Fields feed the fallback poster.
// Zero Width or Height use the pipeline defaults.
type RenderRequest struct {
	Prompt     string
	Fields     models.PosterFields
	Address    string
	Width      int
	Height     int
	UseFrame   bool
	FrameStyle frame.Style
}

// Rendered is a finished poster, framed when requested.
type Rendered struct {
	Image          []byte
	ContentType    string
	Source         models.ImageSource
	FallbackReason string
	Framed         bool
	FrameStyle     frame.Style
	Traits         *models.WalletTraits
}

// Render generates a poster and applies the persona frame. Wallet traits are read
// concurrently with the image call. The only errors are input errors and cancellation;
// AI and frame failures degrade to the fallback poster and an unframed image.
func (p *Pipeline) Render(ctx context.Context, req RenderRequest) (Rendered, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Rendered{}, ErrPromptEmpty
	}
	style, err := validation.ValidateFrameStyle(string(req.FrameStyle))
	if err != nil {
		return Rendered{}, err
	}
	if req.UseFrame {
		if req.Address, err = validation.ValidateAddress(req.Address); err != nil {
			return Rendered{}, err
		}
	}
	if req.Width <= 0 {
		req.Width = p.opts.Width
	}
	if req.Height <= 0 {
		req.Height = p.opts.Height
	}
	logger := observability.LoggerFromContext(ctx, p.logger)

	var (
		result models.GenerationResult
		traits models.WalletTraits
	)
	var g errgroup.Group
	g.Go(func() error {
		result = p.deps.Images.Generate(ctx, imagegen.Request{Prompt: req.Prompt, Width: req.Width, Height: req.Height}, req.Fields)
		return nil
	})
	if req.UseFrame && p.deps.Wallet != nil {
		g.Go(func() error {
			traits = p.deps.Wallet.Analyze(ctx, req.Address)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Rendered{}, err
	}

	out := Rendered{
		Image:          result.Image,
		ContentType:    result.ContentType,
		Source:         result.Source,
		FallbackReason: result.FallbackReason,
	}
	if !req.UseFrame {
		return out, nil
	}

	if len(traits.Tags) == 0 {
		traits.Tags = []string{models.TagNovice}
	}
	out.Traits = &traits
	out.FrameStyle = frame.SelectStyle(traits, frame.Style(style))

	main := result.Image
	if result.Source == models.SourceFallback {
		// The SVG rasterizer drops text, so framed fallbacks use the raster twin.
		png, err := poster.RenderPNG(req.Fields, req.Width, req.Height)
		if err != nil {
			logger.Warn("fallback raster failed, posting unframed", zap.Error(err))
			return out, nil
		}
		main = png
	}
	framed, err := frame.Compose(main, p.deps.Frames.Render(traits, out.FrameStyle))
	if err != nil {
		logger.Warn("frame compose failed, posting unframed", zap.Error(err))
		return out, nil
	}
	out.Image = framed
	out.ContentType = models.ContentTypePNG
	out.Framed = true
	return out, nil
}

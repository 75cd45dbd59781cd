package imagegen

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-moment-nft/internal/circuitbreaker"
	"github.com/kjstillabower/weather-moment-nft/internal/models"
	"github.com/kjstillabower/weather-moment-nft/internal/observability"
	"github.com/kjstillabower/weather-moment-nft/internal/poster"
)

// Generator tries the AI provider and renders the fallback poster on any failure.
type Generator struct {
	provider Provider
	breaker  *circuitbreaker.CircuitBreaker
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithCircuitBreaker routes provider calls through cb.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(g *Generator) { g.breaker = cb }
}

// WithTimeout bounds one provider call, polling included.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// NewGenerator returns a Generator. A nil provider always falls back.
func NewGenerator(provider Provider, logger *zap.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{provider: provider, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns an AI image for req, or the fallback poster drawn from fields.
// It never fails; the fallback reason is recorded on the result.
func (g *Generator) Generate(ctx context.Context, req Request, fields models.PosterFields) models.GenerationResult {
	logger := observability.LoggerFromContext(ctx, g.logger)

	data, contentType, err := g.callProvider(ctx, req)
	if err == nil {
		observability.ImageGenerationTotal.WithLabelValues(string(models.SourceAI), "").Inc()
		return models.GenerationResult{Image: data, ContentType: contentType, Source: models.SourceAI}
	}

	reason := Categorize(err)
	observability.ImageGenerationTotal.WithLabelValues(string(models.SourceFallback), string(reason)).Inc()
	logFields := []zap.Field{zap.String("provider", providerName(g.provider)), zap.String("reason", string(reason))}
	if reason == ReasonMissingCredential {
		logger.Info("image provider not configured, using fallback poster", logFields...)
	} else {
		logger.Warn("image generation failed, using fallback poster", append(logFields, zap.Error(err))...)
	}
	return Fallback(fields, req.Width, req.Height, reason)
}

func (g *Generator) callProvider(ctx context.Context, req Request) ([]byte, string, error) {
	if g.provider == nil {
		return nil, "", ErrMissingCredential
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var (
		data        []byte
		contentType string
	)
	call := func() error {
		var err error
		data, contentType, err = g.provider.Generate(ctx, req)
		if err == nil && len(data) == 0 {
			err = ErrEmptyResult
		}
		return err
	}
	if g.breaker == nil {
		return data, contentType, call()
	}

	// An unconfigured provider says nothing about upstream health.
	var credErr error
	err := g.breaker.Call(ctx, func() error {
		err := call()
		if errors.Is(err, ErrMissingCredential) {
			credErr = err
			return nil
		}
		return err
	})
	if credErr != nil {
		return nil, "", credErr
	}
	return data, contentType, err
}

// Fallback renders the procedural poster as SVG.
func Fallback(fields models.PosterFields, width, height int, reason Reason) models.GenerationResult {
	return models.GenerationResult{
		Image:          poster.RenderSVG(fields, width, height),
		ContentType:    models.ContentTypeSVG,
		Source:         models.SourceFallback,
		FallbackReason: string(reason),
	}
}

func providerName(p Provider) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}

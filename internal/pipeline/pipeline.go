// Package pipeline runs one weather-moment mint end to end:
// validating, fetching, generating, uploading, minting, done.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-moment-nft/internal/chain"
	"github.com/kjstillabower/weather-moment-nft/internal/eligibility"
	"github.com/kjstillabower/weather-moment-nft/internal/frame"
	"github.com/kjstillabower/weather-moment-nft/internal/history"
	"github.com/kjstillabower/weather-moment-nft/internal/imagegen"
	"github.com/kjstillabower/weather-moment-nft/internal/metadata"
	"github.com/kjstillabower/weather-moment-nft/internal/models"
	"github.com/kjstillabower/weather-moment-nft/internal/observability"
	"github.com/kjstillabower/weather-moment-nft/internal/poster"
	"github.com/kjstillabower/weather-moment-nft/internal/prompt"
	"github.com/kjstillabower/weather-moment-nft/internal/storage"
	"github.com/kjstillabower/weather-moment-nft/internal/validation"
	"github.com/kjstillabower/weather-moment-nft/internal/weather"
)

// DefaultTokenGateway serves token URIs handed to the contract.
const DefaultTokenGateway = "https://ipfs.io"

// maxEmbeddedImage bounds an image inlined into a data: token URI. The token URI
// is mint calldata, so raster or oversized images are replaced by the
// procedural SVG poster.
const maxEmbeddedImage = 16 << 10

// Eligibility answers and forgets mint eligibility.
type Eligibility interface {
	Check(ctx context.Context, address, city, date string) (eligibility.Result, error)
	Invalidate(ctx context.Context, address, city, date string)
}

// WeatherResolver resolves a location to a snapshot. Locate only geocodes, so
// coordinate requests can be checked for eligibility before any forecast call.
type WeatherResolver interface {
	ResolveCity(ctx context.Context, city, date string) (models.WeatherSnapshot, error)
	Locate(ctx context.Context, lat, lon float64) weather.Place
	ResolvePlace(ctx context.Context, place weather.Place, date string) (models.WeatherSnapshot, error)
}

// ImageGenerator produces a poster and never fails.
type ImageGenerator interface {
	Generate(ctx context.Context, req imagegen.Request, fields models.PosterFields) models.GenerationResult
}

// TraitsAnalyzer reads wallet traits and never fails.
type TraitsAnalyzer interface {
	Analyze(ctx context.Context, address string) models.WalletTraits
}

// FrameRenderer draws a frame SVG.
type FrameRenderer interface {
	Render(traits models.WalletTraits, style frame.Style) []byte
}

// Minter submits the mint transaction.
type Minter interface {
	MintWithURI(ctx context.Context, p chain.MintParams) (chain.MintReceipt, error)
}

// HistoryRecorder keeps a local log of mints.
type HistoryRecorder interface {
	Record(ctx context.Context, m history.Mint) (int64, error)
	HasMinted(ctx context.Context, address, city, date string) (bool, error)
}

// Deps are the collaborators of a Pipeline. Uploader and History may be nil.
type Deps struct {
	Eligibility Eligibility
	Weather     WeatherResolver
	Images      ImageGenerator
	Wallet      TraitsAnalyzer
	Frames      FrameRenderer
	Uploader    storage.Uploader
	Minter      Minter
	History     HistoryRecorder
}

// Options tune a Pipeline.
type Options struct {
	Width        int
	Height       int
	ExternalURL  string
	TokenGateway string
	Now          func() time.Time
}

// Pipeline runs mints. It is safe for concurrent use.
type Pipeline struct {
	deps   Deps
	opts   Options
	guard  *runGuard
	logger *zap.Logger
}

func New(deps Deps, opts Options, logger *zap.Logger) *Pipeline {
	if opts.Width <= 0 {
		opts.Width = 512
	}
	if opts.Height <= 0 {
		opts.Height = 768
	}
	if opts.TokenGateway == "" {
		opts.TokenGateway = DefaultTokenGateway
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Frames == nil {
		deps.Frames = frame.NewRenderer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, opts: opts, guard: newRunGuard(), logger: logger}
}

// ActiveRuns returns the number of runs in progress.
func (p *Pipeline) ActiveRuns() int { return p.guard.active() }

// run is the mutable state of one Run call.
type run struct {
	out      *Outcome
	progress func(State)
	logger   *zap.Logger
	stage    State
	started  time.Time
}

func (r *run) enter(s State) {
	r.finishStage()
	r.stage = s
	r.started = time.Now()
	r.out.State = s
	r.out.States = append(r.out.States, s)
	if r.progress != nil {
		r.progress(s)
	}
	r.logger.Debug("pipeline state", zap.String("state", string(s)))
}

func (r *run) finishStage() {
	if r.stage != "" && r.stage != StateIdle && r.stage != StateDone {
		observability.PipelineStageDuration.WithLabelValues(string(r.stage)).Observe(time.Since(r.started).Seconds())
	}
}

// abort returns the run to idle and records the outcome label.
func (r *run) abort(label string, err error) (*Outcome, error) {
	r.enter(StateIdle)
	observability.PipelineRunsTotal.WithLabelValues(label).Inc()
	return r.out, err
}

// Run executes one mint. progress, when non-nil, is called on every state change.
// The Outcome is returned on failure too, carrying the state trail.
func (p *Pipeline) Run(ctx context.Context, req Request, progress func(State)) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{RunID: uuid.NewString(), State: StateIdle}
	logger := observability.LoggerFromContext(ctx, p.logger).With(zap.String("run_id", out.RunID))
	r := &run{out: out, progress: progress, logger: logger}
	defer func() { out.Took = time.Since(start) }()

	req, err := p.normalize(req)
	if err != nil {
		observability.PipelineRunsTotal.WithLabelValues("invalid").Inc()
		return out, err
	}
	out.Address, out.City, out.Date = req.Address, req.City, req.Date

	guardKey := eligibility.Key(req.Address, guardLocation(req), req.Date)
	release, err := p.guard.acquire(guardKey)
	if err != nil {
		observability.PipelineRunsTotal.WithLabelValues("in_flight").Inc()
		logger.Info("duplicate mint rejected", zap.String("key", guardKey))
		return out, err
	}
	defer release()

	// validating: coordinates must be named as a city before the contract can be asked.
	r.enter(StateValidating)
	var place *weather.Place
	if req.City == "" {
		located := p.deps.Weather.Locate(ctx, req.Coordinates.Latitude, req.Coordinates.Longitude)
		place = &located
		req.City = located.City
		out.City = located.City
	}
	res, err := p.deps.Eligibility.Check(ctx, req.Address, req.City, req.Date)
	if err != nil {
		return r.abort("invalid", err)
	}
	if !res.CanMint {
		logger.Info("mint denied", zap.String("reason", res.Reason), zap.Bool("cached", res.Cached))
		return r.abort("not_eligible", &NotEligibleError{Reason: res.Reason})
	}
	p.historyHint(ctx, req, logger)

	r.enter(StateFetching)
	var snap models.WeatherSnapshot
	if place != nil {
		snap, err = p.deps.Weather.ResolvePlace(ctx, *place, req.Date)
	} else {
		snap, err = p.deps.Weather.ResolveCity(ctx, req.City, req.Date)
	}
	if err != nil {
		return r.abort("error", err)
	}
	out.Weather = &snap

	r.enter(StateGenerating)
	if err := p.generate(ctx, req, r); err != nil {
		return r.abort(abortLabel(ctx), err)
	}

	r.enter(StateUploading)
	p.upload(ctx, req, r)
	if err := ctx.Err(); err != nil {
		return r.abort("canceled", err)
	}

	r.enter(StateMinting)
	receipt, err := p.deps.Minter.MintWithURI(ctx, chain.MintParams{
		To:          req.Address,
		City:        req.City,
		Date:        req.Date,
		Temperature: snap.TemperatureC,
		Weather:     snap.WeatherLabel,
		TimeOfDay:   string(snap.TimeOfDay),
		TokenURI:    out.TokenURI,
	})
	if err != nil {
		observability.MintTotal.WithLabelValues("failed", "").Inc()
		logger.Error("mint failed", zap.Error(err))
		return r.abort("mint_failed", &MintError{Err: err})
	}
	out.TxHash = receipt.TxHash
	if receipt.TokenID != nil {
		out.TokenID = receipt.TokenID.String()
		observability.MintTotal.WithLabelValues("success", "receipt").Inc()
	} else {
		out.TokenID = placeholderTokenID(p.opts.Now())
		out.TokenIDPlaceholder = true
		observability.MintTotal.WithLabelValues("success", "placeholder").Inc()
	}

	r.enter(StateDone)
	p.deps.Eligibility.Invalidate(ctx, req.Address, req.City, req.Date)
	p.record(ctx, req, out, logger)
	observability.PipelineRunsTotal.WithLabelValues("done").Inc()
	logger.Info("mint complete",
		zap.String("tx", out.TxHash),
		zap.String("token_id", out.TokenID),
		zap.Bool("token_id_placeholder", out.TokenIDPlaceholder),
		zap.String("image_source", string(out.ImageSource)),
		zap.Bool("upload_degraded", out.UploadDegraded),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// normalize validates and canonicalizes a request.
func (p *Pipeline) normalize(req Request) (Request, error) {
	addr, err := validation.ValidateAddress(req.Address)
	if err != nil {
		return req, err
	}
	req.Address = addr

	switch {
	case strings.TrimSpace(req.City) != "":
		city, err := validation.ValidateCity(req.City, validation.MaxCityLength)
		if err != nil {
			return req, err
		}
		req.City = city
		req.Coordinates = nil
	case req.Coordinates != nil:
		if err := validation.ValidateCoordinates(req.Coordinates.Latitude, req.Coordinates.Longitude); err != nil {
			return req, err
		}
	default:
		return req, validation.ErrCityEmpty
	}

	if req.Date == "" {
		req.Date = p.opts.Now().Format(validation.DateLayout)
	} else if req.Date, err = validation.ValidateDate(req.Date); err != nil {
		return req, err
	}

	style, err := validation.ValidateFrameStyle(string(req.FrameStyle))
	if err != nil {
		return req, err
	}
	req.FrameStyle = frame.Style(style)
	return req, nil
}

// generate produces the poster for the run's snapshot and applies the frame.
func (p *Pipeline) generate(ctx context.Context, req Request, r *run) error {
	out := r.out
	out.Prompt = prompt.Build(*out.Weather)
	img, err := p.Render(ctx, RenderRequest{
		Prompt:     out.Prompt,
		Fields:     prompt.FieldsFromSnapshot(*out.Weather),
		Address:    req.Address,
		UseFrame:   req.UseFrame,
		FrameStyle: req.FrameStyle,
	})
	if err != nil {
		return err
	}

	out.ImageSource = img.Source
	out.FallbackReason = img.FallbackReason
	out.ContentType = img.ContentType
	out.Image = img.Image
	out.Framed = img.Framed
	out.FrameStyle = img.FrameStyle
	out.Traits = img.Traits
	return nil
}

// upload pins the image and metadata. Failures degrade to data: URIs.
func (p *Pipeline) upload(ctx context.Context, req Request, r *run) {
	out := r.out
	name := fmt.Sprintf("weather-%s-%s", slug(out.City), out.Date)
	provisionalID := strconv.FormatInt(p.opts.Now().UnixMilli(), 10)

	imageURI, imgErr := p.uploadImage(ctx, name, out)
	if imgErr != nil {
		out.ImageURI = p.embeddedImageURI(out, r.logger)
	} else {
		out.ImageURI = imageURI.URI
		out.ImageGatewayURL = imageURI.GatewayURL
	}

	doc := metadata.Build(*out.Weather, provisionalID, out.ImageURI, p.opts.ExternalURL)
	var metaErr error
	if imgErr == nil {
		var meta storage.Object
		meta, metaErr = p.deps.Uploader.UploadJSON(ctx, doc, name+".json")
		if metaErr == nil {
			out.TokenURI = storage.ToGatewayURL(meta.URI, p.opts.TokenGateway)
		}
	}
	if out.TokenURI != "" {
		return
	}

	out.UploadDegraded = true
	if metaErr == nil {
		metaErr = imgErr
	}
	if errors.Is(metaErr, storage.ErrNotConfigured) {
		r.logger.Info("pinning not configured, embedding metadata")
	} else {
		r.logger.Warn("upload failed, embedding metadata", zap.Error(metaErr))
	}
	uri, err := metadata.DataURI(doc)
	if err != nil {
		r.logger.Error("encode metadata", zap.Error(err))
		return
	}
	out.TokenURI = uri
}

// embeddedImageURI returns a data: URI small enough to travel inside the token URI.
func (p *Pipeline) embeddedImageURI(out *Outcome, logger *zap.Logger) string {
	if out.ContentType == models.ContentTypeSVG && len(out.Image) <= maxEmbeddedImage {
		return metadata.ImageDataURI(out.Image, out.ContentType)
	}
	logger.Info("embedding procedural poster in place of image",
		zap.String("content_type", out.ContentType), zap.Int("bytes", len(out.Image)))
	svg := poster.RenderSVG(prompt.FieldsFromSnapshot(*out.Weather), p.opts.Width, p.opts.Height)
	return metadata.ImageDataURI(svg, models.ContentTypeSVG)
}

func (p *Pipeline) uploadImage(ctx context.Context, name string, out *Outcome) (storage.Object, error) {
	if p.deps.Uploader == nil {
		return storage.Object{}, storage.ErrNotConfigured
	}
	return p.deps.Uploader.UploadImage(ctx, out.Image, out.ContentType, name)
}

func (p *Pipeline) historyHint(ctx context.Context, req Request, logger *zap.Logger) {
	if p.deps.History == nil {
		return
	}
	minted, err := p.deps.History.HasMinted(ctx, req.Address, req.City, req.Date)
	if err == nil && minted {
		logger.Info("local history has a mint the contract does not report", zap.String("city", req.City), zap.String("date", req.Date))
	}
}

func (p *Pipeline) record(ctx context.Context, req Request, out *Outcome, logger *zap.Logger) {
	if p.deps.History == nil {
		return
	}
	if _, err := p.deps.History.Record(ctx, history.Mint{
		Address:            req.Address,
		City:               req.City,
		Date:               req.Date,
		TokenID:            out.TokenID,
		TokenIDPlaceholder: out.TokenIDPlaceholder,
		TxHash:             out.TxHash,
		TokenURI:           out.TokenURI,
		ImageURI:           out.ImageURI,
		ImageSource:        string(out.ImageSource),
		CreatedAt:          p.opts.Now(),
	}); err != nil {
		logger.Warn("record mint history", zap.Error(err))
	}
}

// placeholderTokenID stands in for a token id whose receipt has not arrived.
func placeholderTokenID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

func guardLocation(req Request) string {
	if req.City != "" {
		return req.City
	}
	return strconv.FormatFloat(req.Coordinates.Latitude, 'f', 4, 64) + "," + strconv.FormatFloat(req.Coordinates.Longitude, 'f', 4, 64)
}

func abortLabel(ctx context.Context) string {
	if ctx.Err() != nil {
		return "canceled"
	}
	return "error"
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' || r == '\\' {
			return '-'
		}
		return r
	}, s)
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-moment-nft/internal/circuitbreaker"
	"github.com/kjstillabower/weather-moment-nft/internal/eligibility"
	"github.com/kjstillabower/weather-moment-nft/internal/frame"
	"github.com/kjstillabower/weather-moment-nft/internal/history"
	"github.com/kjstillabower/weather-moment-nft/internal/lifecycle"
	"github.com/kjstillabower/weather-moment-nft/internal/models"
	"github.com/kjstillabower/weather-moment-nft/internal/observability"
	"github.com/kjstillabower/weather-moment-nft/internal/pipeline"
	"github.com/kjstillabower/weather-moment-nft/internal/prompt"
	"github.com/kjstillabower/weather-moment-nft/internal/traffic"
	"github.com/kjstillabower/weather-moment-nft/internal/validation"
	"github.com/kjstillabower/weather-moment-nft/internal/weather"
)

const (
	maxBodyBytes   = 64 << 10
	minImageSide   = 64
	maxImageSide   = 2048
	defaultListMax = 50
)

// EligibilityService is the cached eligibility check plus its maintenance hooks.
type EligibilityService interface {
	Check(ctx context.Context, address, city, date string) (eligibility.Result, error)
	Stats() eligibility.Stats
	ClearExpired() int
}

// MintPipeline runs mints and standalone renders.
type MintPipeline interface {
	Run(ctx context.Context, req pipeline.Request, progress func(pipeline.State)) (*pipeline.Outcome, error)
	Render(ctx context.Context, req pipeline.RenderRequest) (pipeline.Rendered, error)
	ActiveRuns() int
}

// WeatherLookup resolves a city or a position to current weather.
type WeatherLookup interface {
	ResolveCity(ctx context.Context, city, date string) (models.WeatherSnapshot, error)
	ResolveCoordinates(ctx context.Context, lat, lon float64, date string) (models.WeatherSnapshot, error)
}

// HistoryReader lists recorded mints.
type HistoryReader interface {
	ListByAddress(ctx context.Context, address string, limit int) ([]history.Mint, error)
}

// Deps are the collaborators of a Handler. History may be nil.
type Deps struct {
	Eligibility EligibilityService
	Pipeline    MintPipeline
	Weather     WeatherLookup
	History     HistoryReader
	Traffic     *traffic.Tracker
}

// HealthConfig holds thresholds and dependency checks for the health handler.
type HealthConfig struct {
	Window           time.Duration
	DegradedErrorPct int
	Version          string
	// CachePing, when set, checks cache reachability. Used when the backend is memcached.
	CachePing func() error
	// ImageBreaker, when set, reports the image provider circuit state.
	ImageBreaker func() circuitbreaker.State
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	deps             Deps
	healthConfig     HealthConfig
	logger           *zap.Logger
	now              func() time.Time
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. A nil Traffic tracker gets a private one.
func NewHandler(deps Deps, healthConfig HealthConfig, logger *zap.Logger) *Handler {
	if deps.Traffic == nil {
		deps.Traffic = traffic.NewTracker(nil)
	}
	if healthConfig.Window <= 0 {
		healthConfig.Window = time.Minute
	}
	if healthConfig.Version == "" {
		healthConfig.Version = "dev"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{deps: deps, healthConfig: healthConfig, logger: logger, now: time.Now}
}

type validateRequest struct {
	Address string `json:"address"`
	City    string `json:"city"`
	Date    string `json:"date"`
}

type validateResponse struct {
	CanMint   bool   `json:"canMint"`
	Reason    string `json:"reason,omitempty"`
	Address   string `json:"address"`
	City      string `json:"city"`
	Date      string `json:"date"`
	HasMinted bool   `json:"hasMinted"`
	Cached    bool   `json:"cached"`
}

// PostValidate handles POST /api/validate. A contract failure is a 200 deny, not an error.
func (h *Handler) PostValidate(w http.ResponseWriter, r *http.Request) {
	var body validateRequest
	if !decodeBody(w, r, &body) {
		return
	}
	addr, err := validation.ValidateAddress(body.Address)
	if err != nil {
		writeInputError(w, r, err)
		return
	}
	city, err := validation.ValidateCity(body.City, validation.MaxCityLength)
	if err != nil {
		writeInputError(w, r, err)
		return
	}
	date, err := validation.ValidateDate(body.Date)
	if err != nil {
		writeInputError(w, r, err)
		return
	}

	res, err := h.deps.Eligibility.Check(r.Context(), addr, city, date)
	if err != nil {
		writeInputError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		CanMint:   res.CanMint,
		Reason:    res.Reason,
		Address:   addr,
		City:      city,
		Date:      date,
		HasMinted: res.Reason == eligibility.ReasonAlreadyMinted,
		Cached:    res.Cached,
	})
}

type generateRequest struct {
	Prompt     string `json:"prompt"`
	Address    string `json:"address"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	UseFrame   bool   `json:"useFrame"`
	FrameStyle string `json:"frameStyle"`
}

// PostGenerate handles POST /api/generate and responds with the image bytes.
// The fallback poster is drawn from fields parsed out of the prompt.
func (h *Handler) PostGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if !validSide(body.Width) || !validSide(body.Height) {
		writeError(w, r, http.StatusBadRequest, "INVALID_SIZE",
			"width and height must be between "+strconv.Itoa(minImageSide)+" and "+strconv.Itoa(maxImageSide))
		return
	}

	img, err := h.deps.Pipeline.Render(r.Context(), pipeline.RenderRequest{
		Prompt:     body.Prompt,
		Fields:     prompt.ParseFields(body.Prompt),
		Address:    body.Address,
		Width:      body.Width,
		Height:     body.Height,
		UseFrame:   body.UseFrame,
		FrameStyle: frame.Style(body.FrameStyle),
	})
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Image-Source", string(img.Source))
	if img.FallbackReason != "" {
		w.Header().Set("X-Fallback-Reason", img.FallbackReason)
	}
	if img.Framed {
		w.Header().Set("X-Frame-Style", string(img.FrameStyle))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Image)
}

func validSide(v int) bool {
	return v == 0 || (v >= minImageSide && v <= maxImageSide)
}

type mintRequest struct {
	Address    string   `json:"address"`
	City       string   `json:"city"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Date       string   `json:"date"`
	UseFrame   bool     `json:"useFrame"`
	FrameStyle string   `json:"frameStyle"`
}

// PostMint handles POST /api/mint and responds with the run outcome.
func (h *Handler) PostMint(w http.ResponseWriter, r *http.Request) {
	var body mintRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req := pipeline.Request{
		Address:    body.Address,
		City:       body.City,
		Date:       body.Date,
		UseFrame:   body.UseFrame,
		FrameStyle: frame.Style(body.FrameStyle),
	}
	switch {
	case body.Latitude != nil && body.Longitude != nil:
		req.Coordinates = &pipeline.Coordinates{Latitude: *body.Latitude, Longitude: *body.Longitude}
	case body.Latitude != nil || body.Longitude != nil:
		writeInputError(w, r, validation.ErrCoordinatesInvalid)
		return
	}

	out, err := h.deps.Pipeline.Run(r.Context(), req, nil)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}
	h.deps.Traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, out)
}

// GetWeather handles GET /api/weather?city= or ?lat=&lon=, with an optional date.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	if date == "" {
		date = h.now().Format(validation.DateLayout)
	} else if d, err := validation.ValidateDate(date); err != nil {
		writeInputError(w, r, err)
		return
	} else {
		date = d
	}

	if raw := q.Get("city"); strings.TrimSpace(raw) != "" {
		city, err := validation.ValidateCity(raw, validation.MaxCityLength)
		if err != nil {
			writeInputError(w, r, err)
			return
		}
		snap, err := h.deps.Weather.ResolveCity(r.Context(), city, date)
		if err != nil {
			h.writePipelineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}

	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
	if q.Get("lat") == "" && q.Get("lon") == "" {
		writeInputError(w, r, validation.ErrCityEmpty)
		return
	}
	if latErr != nil || lonErr != nil {
		writeInputError(w, r, validation.ErrCoordinatesInvalid)
		return
	}
	if err := validation.ValidateCoordinates(lat, lon); err != nil {
		writeInputError(w, r, err)
		return
	}
	snap, err := h.deps.Weather.ResolveCoordinates(r.Context(), lat, lon, date)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetEligibilityStats handles GET /api/eligibility/stats.
func (h *Handler) GetEligibilityStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Eligibility.Stats())
}

// PostClearExpired handles POST /api/eligibility/clear-expired.
func (h *Handler) PostClearExpired(w http.ResponseWriter, r *http.Request) {
	removed := h.deps.Eligibility.ClearExpired()
	observability.LoggerFromContext(r.Context(), h.logger).Info("eligibility cache swept", zap.Int("removed", removed))
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// GetMints handles GET /api/mints?address=&limit=.
func (h *Handler) GetMints(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeError(w, r, http.StatusServiceUnavailable, "HISTORY_DISABLED", "mint history is not configured")
		return
	}
	addr, err := validation.ValidateAddress(r.URL.Query().Get("address"))
	if err != nil {
		writeInputError(w, r, err)
		return
	}
	limit := defaultListMax
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, r, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	mints, err := h.deps.History.ListByAddress(r.Context(), addr, limit)
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("list mints", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "HISTORY_UNAVAILABLE", "Unable to read mint history")
		return
	}
	if mints == nil {
		mints = []history.Mint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr, "mints": mints})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"pipeline": "healthy"}
	if result.status == "degraded" {
		checks["pipeline"] = "unhealthy"
	}
	if ping := h.healthConfig.CachePing; ping != nil {
		checks["cache"] = "healthy"
		if ping() != nil {
			checks["cache"] = "unhealthy"
		}
	}
	if breaker := h.healthConfig.ImageBreaker; breaker != nil {
		// An open breaker only means fallback posters; it does not fail the service.
		checks["imageGen"] = breaker().String()
	}

	errs, total := h.deps.Traffic.ErrorRate(h.healthConfig.Window)
	body := map[string]any{
		"status":  result.status,
		"service": "weather-moment-nft",
		"version": h.healthConfig.Version,
		"checks":  checks,
		"window": map[string]any{
			"length": h.healthConfig.Window.String(),
			"errors": errs,
			"total":  total,
			"denied": h.deps.Traffic.DenialCount(h.healthConfig.Window),
		},
		"activeMints": h.deps.Pipeline.ActiveRuns(),
		"timestamp":   h.now().UTC().Format(time.RFC3339),
	}
	if since := lifecycle.DrainingSince(); !since.IsZero() {
		body["drainingSince"] = since.UTC().Format(time.RFC3339)
	}
	writeJSON(w, result.statusCode, body)
}

// computeHealthStatus evaluates, in order: shutting-down, degraded, healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.ShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig.DegradedErrorPct > 0 && h.deps.Traffic.Degraded(h.healthConfig.Window, h.healthConfig.DegradedErrorPct) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// decodeBody reads a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "request body must be a JSON object")
		return false
	}
	return true
}

func writeInputError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadRequest, inputErrorCode(err), err.Error())
}

func inputErrorCode(err error) string {
	switch {
	case errors.Is(err, validation.ErrAddressEmpty), errors.Is(err, validation.ErrAddressInvalid):
		return "INVALID_ADDRESS"
	case errors.Is(err, validation.ErrCityEmpty), errors.Is(err, validation.ErrCityTooLong), errors.Is(err, validation.ErrCityInvalidChars):
		return "INVALID_CITY"
	case errors.Is(err, validation.ErrDateInvalid):
		return "INVALID_DATE"
	case errors.Is(err, validation.ErrCoordinatesInvalid):
		return "INVALID_COORDINATES"
	case errors.Is(err, validation.ErrStyleInvalid):
		return "INVALID_FRAME_STYLE"
	case errors.Is(err, pipeline.ErrPromptEmpty):
		return "INVALID_PROMPT"
	}
	return "INVALID_INPUT"
}

// writePipelineError maps run, render and weather errors to responses.
// Only upstream failures count against the health error rate.
func (h *Handler) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)
	switch {
	case validation.IsInputError(err), errors.Is(err, pipeline.ErrPromptEmpty):
		writeInputError(w, r, err)
	case errors.Is(err, pipeline.ErrNotEligible):
		writeError(w, r, http.StatusForbidden, "NOT_ELIGIBLE", err.Error())
	case errors.Is(err, pipeline.ErrInFlight):
		writeError(w, r, http.StatusConflict, "MINT_IN_PROGRESS", err.Error())
	case errors.Is(err, weather.ErrCityNotFound):
		writeError(w, r, http.StatusNotFound, "CITY_NOT_FOUND", err.Error())
	case errors.Is(err, pipeline.ErrMintFailed):
		h.deps.Traffic.RecordError()
		writeError(w, r, http.StatusBadGateway, "MINT_FAILED", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.deps.Traffic.RecordError()
		logger.Warn("request deadline exceeded", zap.Error(err))
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "The request took too long")
	case errors.Is(err, context.Canceled):
		logger.Debug("request canceled", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "CANCELED", "The request was canceled")
	default:
		h.deps.Traffic.RecordError()
		logger.Warn("upstream error", zap.Error(err))
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "An upstream service is unavailable")
	}
}

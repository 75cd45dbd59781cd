package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-moment-nft/internal/observability"
)

// RouterOptions configure NewRouter. A nil Limiter disables rate limiting.
// MintTimeout also bounds /api/generate, which waits on the image provider.
type RouterOptions struct {
	RequestTimeout time.Duration
	MintTimeout    time.Duration
	Limiter        *rate.Limiter
	InFlight       *InFlightTracker
}

// NewRouter wires the API, health and metrics routes. Everything under /api is
// rate limited; mint and generate get the longer deadline.
func NewRouter(h *Handler, opts RouterOptions, logger *zap.Logger) *mux.Router {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.MintTimeout <= 0 {
		opts.MintTimeout = 3 * time.Minute
	}
	if opts.InFlight == nil {
		opts.InFlight = &InFlightTracker{}
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(InFlightMiddleware(opts.InFlight))
	api.Use(RateLimitMiddleware(opts.Limiter, h.deps.Traffic))

	short := TimeoutMiddleware(opts.RequestTimeout)
	long := TimeoutMiddleware(opts.MintTimeout)
	api.Handle("/mint", long(http.HandlerFunc(h.PostMint))).Methods(http.MethodPost)
	api.Handle("/generate", long(http.HandlerFunc(h.PostGenerate))).Methods(http.MethodPost)
	api.Handle("/validate", short(http.HandlerFunc(h.PostValidate))).Methods(http.MethodPost)
	api.Handle("/weather", short(http.HandlerFunc(h.GetWeather))).Methods(http.MethodGet)
	api.Handle("/eligibility/stats", short(http.HandlerFunc(h.GetEligibilityStats))).Methods(http.MethodGet)
	api.Handle("/eligibility/clear-expired", short(http.HandlerFunc(h.PostClearExpired))).Methods(http.MethodPost)
	api.Handle("/mints", short(http.HandlerFunc(h.GetMints))).Methods(http.MethodGet)
	return router
}

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-moment-nft/internal/cache"
	"github.com/kjstillabower/weather-moment-nft/internal/chain"
	"github.com/kjstillabower/weather-moment-nft/internal/circuitbreaker"
	"github.com/kjstillabower/weather-moment-nft/internal/client"
	"github.com/kjstillabower/weather-moment-nft/internal/config"
	"github.com/kjstillabower/weather-moment-nft/internal/eligibility"
	"github.com/kjstillabower/weather-moment-nft/internal/history"
	httphandler "github.com/kjstillabower/weather-moment-nft/internal/http"
	"github.com/kjstillabower/weather-moment-nft/internal/imagegen"
	"github.com/kjstillabower/weather-moment-nft/internal/lifecycle"
	"github.com/kjstillabower/weather-moment-nft/internal/observability"
	"github.com/kjstillabower/weather-moment-nft/internal/pipeline"
	"github.com/kjstillabower/weather-moment-nft/internal/storage"
	"github.com/kjstillabower/weather-moment-nft/internal/traffic"
	"github.com/kjstillabower/weather-moment-nft/internal/wallet"
	"github.com/kjstillabower/weather-moment-nft/internal/weather"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	retry := client.RetryPolicy{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay, MaxDelay: cfg.RetryMaxDelay}

	geoUpstream := client.NewUpstream("nominatim", cfg.WeatherTimeout, retry).WithUserAgent(cfg.UserAgent)
	forecastUpstream := client.NewUpstream("open_meteo", cfg.WeatherTimeout, retry).WithUserAgent(cfg.UserAgent)
	resolver := weather.NewResolver(
		weather.NewNominatim(cfg.GeocodeURL, geoUpstream, cfg.GeocodeRPS, cfg.GeocodeBurst, cfg.GeocodeCacheTTL),
		weather.NewOpenMeteo(cfg.ForecastURL, forecastUpstream),
		logger,
	)

	provider := newImageProvider(cfg, retry)
	genOpts := []imagegen.Option{imagegen.WithTimeout(cfg.ImageTimeout)}
	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled && provider != nil {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "imagegen",
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("image provider circuit transition", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		genOpts = append(genOpts, imagegen.WithCircuitBreaker(breaker))
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	if provider == nil {
		logger.Warn("no image provider configured; every poster uses the procedural fallback", zap.String("provider", cfg.ImageProvider))
	} else {
		logger.Info("image provider", zap.String("provider", provider.Name()))
	}
	generator := imagegen.NewGenerator(provider, logger, genOpts...)

	var uploader storage.Uploader
	if cfg.PinataJWT != "" {
		uploader = storage.NewPinata(cfg.PinataURL, cfg.PinataJWT, cfg.GatewayURL,
			client.NewUpstream("pinata", cfg.StorageTimeout, retry))
		logger.Info("pinning enabled", zap.String("jwt", observability.MaskSecret(cfg.PinataJWT)))
	} else {
		logger.Warn("PINATA_JWT not set; metadata is embedded as data URIs")
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), cfg.ChainTimeout)
	contract, err := chain.Dial(dialCtx, cfg.RPCURL, chain.Config{
		Address:     cfg.ContractAddress,
		PrivateKey:  cfg.MinterPrivateKey,
		ChainID:     cfg.ChainID,
		GraceWindow: cfg.MintGraceWindow,
	}, logger)
	dialCancel()
	if err != nil {
		logger.Fatal("chain", zap.Error(err))
	}
	logger.Info("contract bound",
		zap.String("network", cfg.Network),
		zap.String("address", contract.Address()),
		zap.Bool("can_mint", contract.CanMint()))

	var store cache.Store
	var memcached *cache.MemcachedStore
	switch cfg.CacheBackend {
	case "memcached":
		memcached = cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		store = memcached
		logger.Info("eligibility cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		store = cache.NewInMemoryStore(nil)
		logger.Info("eligibility cache backend: in_memory")
	}
	validator := eligibility.New(contract, store, cfg.EligibilityTTL, nil, logger)

	analyzerCtx, analyzerCancel := context.WithTimeout(context.Background(), cfg.ChainTimeout)
	analyzer, err := wallet.Dial(analyzerCtx, cfg.AlchemyRPCURL, cfg.AlchemyNFTURL, cfg.AlchemyAPIKey,
		client.NewUpstream("alchemy", cfg.ChainTimeout, retry), logger)
	analyzerCancel()
	if err != nil {
		logger.Fatal("wallet analyzer", zap.Error(err))
	}

	mints, err := history.Open(cfg.HistoryPath, logger)
	if err != nil {
		logger.Fatal("history", zap.Error(err))
	}

	p := pipeline.New(pipeline.Deps{
		Eligibility: validator,
		Weather:     resolver,
		Images:      generator,
		Wallet:      analyzer,
		Uploader:    uploader,
		Minter:      contract,
		History:     mints,
	}, pipeline.Options{
		Width:       cfg.ImageWidth,
		Height:      cfg.ImageHeight,
		ExternalURL: cfg.ExternalURL,
	}, logger)

	tracker := traffic.NewTracker(nil)
	healthConfig := httphandler.HealthConfig{
		Window:           cfg.HealthWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
	}
	if memcached != nil {
		healthConfig.CachePing = memcached.Ping
	}
	if breaker != nil {
		healthConfig.ImageBreaker = breaker.State
	}
	handler := httphandler.NewHandler(httphandler.Deps{
		Eligibility: validator,
		Pipeline:    p,
		Weather:     resolver,
		History:     mints,
		Traffic:     tracker,
	}, healthConfig, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	inFlight := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		RequestTimeout: cfg.RequestTimeout,
		MintTimeout:    cfg.MintRequestTimeout,
		Limiter:        limiter,
		InFlight:       inFlight,
	}, logger)

	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// Mints wait on the chain; the write deadline must outlast the mint budget.
		WriteTimeout: cfg.MintRequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.BeginShutdown(time.Now())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()), zap.Int("active_mints", p.ActiveRuns()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inFlight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}

	closers := []io.Closer{mints, analyzer, contract}
	if memcached != nil {
		closers = append(closers, memcached)
	}
	if err := observability.FlushTelemetry(context.Background(), logger, closers...); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
}

// newImageProvider returns the configured provider, or nil when images always use the fallback.
func newImageProvider(cfg *config.Config, retry client.RetryPolicy) imagegen.Provider {
	switch cfg.ImageProvider {
	case "replicate":
		poller := imagegen.Poller{Interval: cfg.PollInterval, MaxAttempts: cfg.PollMaxAttempts}
		return imagegen.NewReplicate(cfg.ReplicateURL, cfg.ReplicateToken, cfg.ReplicateVersion,
			client.NewUpstream("replicate", cfg.ImageTimeout, retry), poller)
	case "openai":
		return imagegen.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, "", &http.Client{Timeout: cfg.ImageTimeout})
	}
	return nil
}

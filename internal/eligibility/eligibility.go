// Package eligibility answers whether an address may mint a city's token for a day.
// Answers are cached for a short TTL; the contract stays the authority at mint time.
package eligibility

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-moment-nft/internal/cache"
	"github.com/kjstillabower/weather-moment-nft/internal/observability"
	"github.com/kjstillabower/weather-moment-nft/internal/validation"
)

// Deny reasons returned to callers.
const (
	ReasonAlreadyMinted    = "今日已铸造过该城市的NFT"
	ReasonValidationFailed = "validation failed"
)

// DefaultTTL is how long an answer is reused.
const DefaultTTL = 5 * time.Minute

// DefaultReadTimeout bounds one shared contract read.
const DefaultReadTimeout = 15 * time.Second

// MintChecker is the read-only contract call.
type MintChecker interface {
	HasAlreadyMinted(ctx context.Context, address, city, date string) (bool, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// Result is an eligibility answer.
type Result struct {
	CanMint   bool      `json:"canMint"`
	Reason    string    `json:"reason,omitempty"`
	Cached    bool      `json:"cached"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Stats reports cache effectiveness. Size is -1 when the store cannot count entries.
type Stats struct {
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// Validator checks eligibility through a MintChecker and caches answers in a cache.Store.
type Validator struct {
	checker MintChecker
	store   cache.Store
	ttl     time.Duration
	clock   Clock
	logger  *zap.Logger
	group   singleflight.Group

	readTimeout time.Duration

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// New builds a Validator. A nil clock uses SystemClock and a non-positive ttl uses DefaultTTL.
func New(checker MintChecker, store cache.Store, ttl time.Duration, clock Clock, logger *zap.Logger) *Validator {
	if clock == nil {
		clock = SystemClock
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{checker: checker, store: store, ttl: ttl, clock: clock, logger: logger, readTimeout: DefaultReadTimeout}
}

// Key builds the cache key for a triple. Addresses compare case-insensitively.
func Key(address, city, date string) string {
	return strings.ToLower(strings.TrimSpace(address)) + "-" + strings.TrimSpace(city) + "-" + date
}

// Check returns whether address may mint city on date.
// The only error is an input error; contract failures produce a deny Result with ReasonValidationFailed.
func (v *Validator) Check(ctx context.Context, address, city, date string) (Result, error) {
	if strings.TrimSpace(address) == "" {
		return Result{}, validation.ErrAddressEmpty
	}
	if strings.TrimSpace(city) == "" {
		return Result{}, validation.ErrCityEmpty
	}
	if date == "" {
		return Result{}, validation.ErrDateInvalid
	}

	logger := observability.LoggerFromContext(ctx, v.logger)
	key := Key(address, city, date)

	if rec, ok := v.lookup(ctx, key, logger); ok {
		v.recordHit()
		observability.EligibilityChecksTotal.WithLabelValues(resultLabel(rec.CanMint)).Inc()
		return Result{CanMint: rec.CanMint, Reason: rec.Reason, Cached: true, CheckedAt: rec.CheckedAt}, nil
	}
	v.recordMiss()

	// Concurrent misses for the same key share one contract read, so the read
	// is detached from the caller that happened to start it.
	val, _, _ := v.group.Do(key, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.readTimeout)
		defer cancel()
		return v.read(readCtx, key, address, city, date, logger), nil
	})
	return val.(Result), nil
}

func (v *Validator) read(ctx context.Context, key, address, city, date string, logger *zap.Logger) Result {
	now := v.clock.Now()
	minted, err := v.checker.HasAlreadyMinted(ctx, address, city, date)
	if err != nil {
		observability.EligibilityChecksTotal.WithLabelValues("error").Inc()
		logger.Warn("eligibility check failed, denying",
			zap.String("address", address),
			zap.String("city", city),
			zap.String("date", date),
			zap.Error(err),
		)
		return Result{CanMint: false, Reason: ReasonValidationFailed, CheckedAt: now}
	}

	rec := cache.Record{CanMint: !minted, CheckedAt: now}
	if minted {
		rec.Reason = ReasonAlreadyMinted
	}
	if err := v.store.Set(ctx, key, rec, v.ttl); err != nil {
		logger.Warn("eligibility cache write failed", zap.String("key", key), zap.Error(err))
	}
	observability.EligibilityChecksTotal.WithLabelValues(resultLabel(rec.CanMint)).Inc()
	return Result{CanMint: rec.CanMint, Reason: rec.Reason, CheckedAt: now}
}

// lookup returns a cached record younger than the TTL. Store errors count as a miss.
func (v *Validator) lookup(ctx context.Context, key string, logger *zap.Logger) (cache.Record, bool) {
	rec, ok, err := v.store.Get(ctx, key)
	if err != nil {
		logger.Warn("eligibility cache read failed", zap.String("key", key), zap.Error(err))
		return cache.Record{}, false
	}
	if !ok || v.clock.Now().Sub(rec.CheckedAt) >= v.ttl {
		return cache.Record{}, false
	}
	return rec, true
}

// Invalidate drops the cached answer so the next check reads the contract.
func (v *Validator) Invalidate(ctx context.Context, address, city, date string) {
	if err := v.store.Delete(ctx, Key(address, city, date)); err != nil {
		v.logger.Warn("eligibility cache invalidate failed", zap.Error(err))
	}
}

// ClearExpired sweeps stale entries when the store supports it and returns how many were removed.
func (v *Validator) ClearExpired() int {
	if s, ok := v.store.(interface{ ClearExpired() int }); ok {
		return s.ClearExpired()
	}
	return 0
}

// Clear drops every cached answer.
func (v *Validator) Clear() error {
	switch s := v.store.(type) {
	case interface{ Clear() }:
		s.Clear()
	case interface{ Clear() error }:
		return s.Clear()
	}
	return nil
}

// Stats returns cache counters since construction.
func (v *Validator) Stats() Stats {
	v.mu.Lock()
	hits, misses := v.hits, v.misses
	v.mu.Unlock()

	st := Stats{Size: -1, Hits: hits, Misses: misses}
	if s, ok := v.store.(interface{ Len() int }); ok {
		st.Size = s.Len()
	}
	if total := hits + misses; total > 0 {
		st.HitRate = float64(hits) / float64(total)
	}
	return st
}

func (v *Validator) recordHit() {
	observability.EligibilityCacheHitsTotal.Inc()
	v.mu.Lock()
	v.hits++
	v.mu.Unlock()
}

func (v *Validator) recordMiss() {
	observability.EligibilityCacheMissesTotal.Inc()
	v.mu.Lock()
	v.misses++
	v.mu.Unlock()
}

func resultLabel(canMint bool) string {
	if canMint {
		return "eligible"
	}
	return "denied"
}

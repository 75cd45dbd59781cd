package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-moment-nft/internal/cache"
	"github.com/kjstillabower/weather-moment-nft/internal/chain"
	"github.com/kjstillabower/weather-moment-nft/internal/client"
	"github.com/kjstillabower/weather-moment-nft/internal/eligibility"
	"github.com/kjstillabower/weather-moment-nft/internal/imagegen"
	"github.com/kjstillabower/weather-moment-nft/internal/models"
	"github.com/kjstillabower/weather-moment-nft/internal/pipeline"
)

// ledger stands in for the contract: it remembers mints and answers hasAlreadyMinted.
type ledger struct {
	mu     sync.Mutex
	minted map[string]bool
	reads  int
}

func (l *ledger) HasAlreadyMinted(ctx context.Context, address, city, date string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	return l.minted[eligibility.Key(address, city, date)], nil
}

func (l *ledger) MintWithURI(ctx context.Context, p chain.MintParams) (chain.MintReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := eligibility.Key(p.To, p.City, p.Date)
	if l.minted[key] {
		return chain.MintReceipt{}, errors.New("execution reverted: already minted")
	}
	l.minted[key] = true
	return chain.MintReceipt{TxHash: "0xabc", TokenID: big.NewInt(int64(len(l.minted))), Mined: true}, nil
}

type downProvider struct{}

func (downProvider) Name() string { return "replicate" }

func (downProvider) Generate(ctx context.Context, req imagegen.Request) ([]byte, string, error) {
	return nil, "", fmt.Errorf("replicate: %w: HTTP 500", client.ErrUpstreamFailure)
}

func newIntegrationRouter(t *testing.T) (http.Handler, *ledger) {
	t.Helper()
	now := func() time.Time { return time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC) }
	chainLedger := &ledger{minted: map[string]bool{}}
	validator := eligibility.New(chainLedger, cache.NewInMemoryStore(now), time.Minute, nil, zap.NewNop())
	weatherFake := &mockWeather{snap: models.WeatherSnapshot{
		City: "Paris", Country: "France", Date: "2025-03-01",
		WeatherCode: 61, WeatherLabel: "小雨", TemperatureC: 12, TimeOfDay: models.Afternoon,
	}}
	p := pipeline.New(pipeline.Deps{
		Eligibility: validator,
		Weather:     weatherFake,
		Images:      imagegen.NewGenerator(downProvider{}, zap.NewNop()),
		Minter:      chainLedger,
	}, pipeline.Options{Now: now}, zap.NewNop())

	h := NewHandler(Deps{Eligibility: validator, Pipeline: p, Weather: weatherFake}, HealthConfig{}, zap.NewNop())
	return NewRouter(h, RouterOptions{}, zap.NewNop()), chainLedger
}

func TestIntegration_MintThenRevalidate(t *testing.T) {
	router, chainLedger := newIntegrationRouter(t)
	triple := `"address":"` + testAddr + `","city":"Paris","date":"2025-03-01"`

	w := serve(router, "POST", "/api/validate", "{"+triple+"}")
	var v validateResponse
	_ = json.NewDecoder(w.Body).Decode(&v)
	if !v.CanMint {
		t.Fatalf("first validate = %+v", v)
	}

	w = serve(router, "POST", "/api/mint", "{"+triple+"}")
	if w.Code != http.StatusOK {
		t.Fatalf("mint status = %d body %s", w.Code, w.Body)
	}
	var out pipeline.Outcome
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.State != pipeline.StateDone || out.ImageSource != models.SourceFallback || out.FallbackReason != "http_status" {
		t.Errorf("outcome = %+v", out)
	}
	if !out.UploadDegraded || !strings.HasPrefix(out.TokenURI, "data:application/json;base64,") {
		t.Errorf("token uri = %q degraded = %v", out.TokenURI, out.UploadDegraded)
	}
	if out.TokenID != "1" || out.TokenIDPlaceholder {
		t.Errorf("token id = %q placeholder = %v", out.TokenID, out.TokenIDPlaceholder)
	}

	// The cached "eligible" answer was invalidated by the mint.
	w = serve(router, "POST", "/api/validate", "{"+triple+"}")
	v = validateResponse{}
	_ = json.NewDecoder(w.Body).Decode(&v)
	if v.CanMint || !v.HasMinted || v.Reason != eligibility.ReasonAlreadyMinted {
		t.Errorf("second validate = %+v", v)
	}
	if chainLedger.reads != 2 {
		t.Errorf("contract reads = %d, want 2", chainLedger.reads)
	}

	w = serve(router, "POST", "/api/mint", "{"+triple+"}")
	if w.Code != http.StatusForbidden {
		t.Errorf("repeat mint status = %d, want 403", w.Code)
	}
}

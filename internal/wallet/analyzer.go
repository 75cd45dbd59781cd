// Package wallet derives persona tags from a wallet's on-chain activity.
// The tags only pick a frame style; they never gate minting.
package wallet

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-moment-nft/internal/client"
	"github.com/kjstillabower/weather-moment-nft/internal/models"
	"github.com/kjstillabower/weather-moment-nft/internal/observability"
)

const (
	noviceTxCount   = 5
	collectorNFTs   = 5
	veteranAgeDays  = 365
	explorerTargets = 10
	outgoingSample  = 100
)

var transferCategories = []string{"external", "erc20", "erc721", "erc1155"}

// Activity is the raw data the tag rules read.
type Activity struct {
	TransactionCount uint64
	NFTCount         int
	// FirstSeen is the block time of the first incoming transfer; zero when none exists.
	FirstSeen time.Time
	// Recipients are the `to` addresses of recent outgoing transfers.
	Recipients []string
}

// Analyzer queries Alchemy for wallet activity.
type Analyzer struct {
	rpc      *rpc.Client
	nftURL   string
	apiKey   string
	upstream *client.Upstream
	now      func() time.Time
	logger   *zap.Logger
}

// Dial connects to the Alchemy JSON-RPC endpoint at rpcURL/apiKey. With no
// key it returns an Analyzer that reports default traits.
func Dial(ctx context.Context, rpcURL, nftURL, apiKey string, upstream *client.Upstream, logger *zap.Logger) (*Analyzer, error) {
	if apiKey == "" {
		return NewAnalyzer(nil, nftURL, "", upstream, logger), nil
	}
	c, err := rpc.DialContext(ctx, strings.TrimRight(rpcURL, "/")+"/"+apiKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: dial alchemy: %w", err)
	}
	return NewAnalyzer(c, nftURL, apiKey, upstream, logger), nil
}

// NewAnalyzer returns an Analyzer over an existing RPC client. rpcClient may be nil.
func NewAnalyzer(rpcClient *rpc.Client, nftURL, apiKey string, upstream *client.Upstream, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		rpc:      rpcClient,
		nftURL:   strings.TrimRight(nftURL, "/"),
		apiKey:   apiKey,
		upstream: upstream,
		now:      time.Now,
		logger:   logger,
	}
}

// Analyze returns the traits of address. Lookup failures are logged and yield
// DefaultTraits.
func (a *Analyzer) Analyze(ctx context.Context, address string) models.WalletTraits {
	logger := observability.LoggerFromContext(ctx, a.logger)
	if a.rpc == nil {
		logger.Debug("wallet analysis disabled, using default traits")
		return DefaultTraits()
	}
	act, err := a.Fetch(ctx, address)
	if err != nil {
		logger.Warn("wallet analysis failed, using default traits", zap.String("address", address), zap.Error(err))
		return DefaultTraits()
	}
	return Classify(act, a.now())
}

// Fetch collects the activity of address with the four lookups running concurrently.
func (a *Analyzer) Fetch(ctx context.Context, address string) (Activity, error) {
	if !common.IsHexAddress(address) {
		return Activity{}, fmt.Errorf("wallet: invalid address %q", address)
	}
	var (
		act      Activity
		firstIn  []assetTransfer
		outgoing []assetTransfer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var count hexutil.Uint64
		if err := a.call(gctx, &count, "eth_getTransactionCount", address, "latest"); err != nil {
			return err
		}
		act.TransactionCount = uint64(count)
		return nil
	})
	g.Go(func() error {
		n, err := a.nftCount(gctx, address)
		act.NFTCount = n
		return err
	})
	g.Go(func() error {
		var err error
		firstIn, err = a.transfers(gctx, transferQuery{ToAddress: address, MaxCount: "0x1", Order: "asc"})
		return err
	})
	g.Go(func() error {
		var err error
		outgoing, err = a.transfers(gctx, transferQuery{FromAddress: address, MaxCount: hexutil.EncodeUint64(outgoingSample)})
		return err
	})
	if err := g.Wait(); err != nil {
		return Activity{}, err
	}

	for _, t := range outgoing {
		if t.To != "" {
			act.Recipients = append(act.Recipients, t.To)
		}
	}
	if len(firstIn) > 0 && firstIn[0].BlockNum != "" {
		var block struct {
			Timestamp hexutil.Uint64 `json:"timestamp"`
		}
		if err := a.call(ctx, &block, "eth_getBlockByNumber", firstIn[0].BlockNum, false); err != nil {
			return Activity{}, err
		}
		if block.Timestamp > 0 {
			act.FirstSeen = time.Unix(int64(block.Timestamp), 0)
		}
	}
	return act, nil
}

// Close releases the RPC connection.
func (a *Analyzer) Close() error {
	if a.rpc != nil {
		a.rpc.Close()
	}
	return nil
}

type transferQuery struct {
	FromBlock   string   `json:"fromBlock"`
	FromAddress string   `json:"fromAddress,omitempty"`
	ToAddress   string   `json:"toAddress,omitempty"`
	Category    []string `json:"category"`
	MaxCount    string   `json:"maxCount"`
	Order       string   `json:"order,omitempty"`
}

type assetTransfer struct {
	BlockNum string `json:"blockNum"`
	From     string `json:"from"`
	To       string `json:"to"`
}

func (a *Analyzer) transfers(ctx context.Context, q transferQuery) ([]assetTransfer, error) {
	q.FromBlock = "0x0"
	q.Category = transferCategories
	var out struct {
		Transfers []assetTransfer `json:"transfers"`
	}
	if err := a.call(ctx, &out, "alchemy_getAssetTransfers", q); err != nil {
		return nil, err
	}
	return out.Transfers, nil
}

func (a *Analyzer) call(ctx context.Context, result any, method string, args ...any) error {
	start := time.Now()
	err := a.rpc.CallContext(ctx, result, method, args...)
	observability.UpstreamDuration.WithLabelValues("alchemy").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("alchemy", "error").Inc()
		return fmt.Errorf("wallet: %s: %w", method, err)
	}
	observability.UpstreamCallsTotal.WithLabelValues("alchemy", "success").Inc()
	return nil
}

func (a *Analyzer) nftCount(ctx context.Context, owner string) (int, error) {
	params := url.Values{}
	params.Set("owner", owner)
	params.Set("pageSize", "1")
	params.Set("withMetadata", "false")
	var out struct {
		TotalCount int `json:"totalCount"`
	}
	endpoint := a.nftURL + "/" + url.PathEscape(a.apiKey) + "/getNFTsForOwner?" + params.Encode()
	if err := a.upstream.GetJSON(ctx, endpoint, http.Header{}, &out); err != nil {
		return 0, fmt.Errorf("wallet: getNFTsForOwner: %w", err)
	}
	return out.TotalCount, nil
}

// DefaultTraits are reported when activity cannot be read.
func DefaultTraits() models.WalletTraits {
	return models.WalletTraits{Tags: []string{models.TagNovice}}
}

// Classify applies the tag rules to act as of now. Tags keep rule order; a
// wallet matching no rule is a novice.
func Classify(act Activity, now time.Time) models.WalletTraits {
	traits := models.WalletTraits{
		TransactionCount: act.TransactionCount,
		NFTCount:         act.NFTCount,
	}
	if !act.FirstSeen.IsZero() && now.After(act.FirstSeen) {
		traits.WalletAgeInDays = int(now.Sub(act.FirstSeen) / (24 * time.Hour))
	}
	unique := make(map[string]struct{}, len(act.Recipients))
	for _, to := range act.Recipients {
		unique[strings.ToLower(to)] = struct{}{}
	}
	traits.UniqueContractsInteracted = len(unique)

	if act.TransactionCount < noviceTxCount {
		traits.Tags = append(traits.Tags, models.TagNovice)
	}
	if act.NFTCount > collectorNFTs {
		traits.Tags = append(traits.Tags, models.TagCollector)
	}
	if traits.WalletAgeInDays > veteranAgeDays {
		traits.Tags = append(traits.Tags, models.TagVeteran)
	}
	if traits.UniqueContractsInteracted > explorerTargets {
		traits.Tags = append(traits.Tags, models.TagExplorer)
	}
	if len(traits.Tags) == 0 {
		traits.Tags = []string{models.TagNovice}
	}
	return traits
}

// Package chain talks to the WeatherNFT contract: the eligibility read and the relayed mint.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-moment-nft/internal/observability"
)

var (
	// ErrMinterUnavailable is returned by MintWithURI when no signing key is configured.
	ErrMinterUnavailable = errors.New("minter key not configured")
	// ErrMintReverted is returned when the mint transaction was mined with a failed status.
	ErrMintReverted = errors.New("mint transaction reverted")

	ErrInvalidAddress = errors.New("invalid address")
)

const contractABI = `[
  {"inputs":[{"internalType":"address","name":"user","type":"address"},{"internalType":"string","name":"city","type":"string"},{"internalType":"string","name":"date","type":"string"}],
   "name":"hasAlreadyMinted","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"to","type":"address"},{"internalType":"string","name":"city","type":"string"},{"internalType":"string","name":"date","type":"string"},{"internalType":"int256","name":"temperature","type":"int256"},{"internalType":"string","name":"weather","type":"string"},{"internalType":"string","name":"timeOfDay","type":"string"},{"internalType":"string","name":"tokenURI","type":"string"}],
   "name":"mintWithURI","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

// transferTopic is the ERC-721 Transfer(address,address,uint256) event signature.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Backend is what the contract client needs from an Ethereum node.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// MintParams are the mintWithURI arguments.
type MintParams struct {
	To          string
	City        string
	Date        string
	Temperature int
	Weather     string
	TimeOfDay   string
	TokenURI    string
}

// MintReceipt describes a submitted mint. TokenID is nil when the receipt did not
// arrive within the grace window.
type MintReceipt struct {
	TxHash  string
	TokenID *big.Int
	Mined   bool
}

// Contract is a client for one deployed WeatherNFT contract.
type Contract struct {
	address     common.Address
	backend     Backend
	bound       *bind.BoundContract
	key         *ecdsa.PrivateKey
	chainID     *big.Int
	graceWindow time.Duration
	logger      *zap.Logger
	closer      func()
}

// Config configures a Contract.
type Config struct {
	Address string
	// PrivateKey is a hex secp256k1 key without 0x; empty disables minting.
	PrivateKey  string
	ChainID     int64
	GraceWindow time.Duration
}

// Dial connects to rpcURL and returns a Contract bound to cfg.Address.
func Dial(ctx context.Context, rpcURL string, cfg Config, logger *zap.Logger) (*Contract, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	c, err := NewContract(client, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	c.closer = client.Close
	return c, nil
}

// NewContract binds cfg.Address on backend.
func NewContract(backend Backend, cfg Config, logger *zap.Logger) (*Contract, error) {
	if !common.IsHexAddress(cfg.Address) {
		return nil, fmt.Errorf("chain: contract %q: %w", cfg.Address, ErrInvalidAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse abi: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	address := common.HexToAddress(cfg.Address)
	c := &Contract{
		address:     address,
		backend:     backend,
		bound:       bind.NewBoundContract(address, parsed, backend, backend, backend),
		chainID:     big.NewInt(cfg.ChainID),
		graceWindow: cfg.GraceWindow,
		logger:      logger,
	}
	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("chain: parse minter key: %w", err)
		}
		c.key = key
	}
	return c, nil
}

// Address returns the contract address.
func (c *Contract) Address() string { return c.address.Hex() }

// CanMint reports whether a signing key is configured.
func (c *Contract) CanMint() bool { return c.key != nil }

// HasAlreadyMinted calls the view method hasAlreadyMinted(user, city, date).
func (c *Contract) HasAlreadyMinted(ctx context.Context, address, city, date string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("chain: user %q: %w", address, ErrInvalidAddress)
	}
	start := time.Now()
	var out []any
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "hasAlreadyMinted", common.HexToAddress(address), city, date)
	observability.UpstreamDuration.WithLabelValues("rpc").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("rpc", "error").Inc()
		return false, fmt.Errorf("chain: hasAlreadyMinted: %w", err)
	}
	observability.UpstreamCallsTotal.WithLabelValues("rpc", "success").Inc()
	if len(out) != 1 {
		return false, fmt.Errorf("chain: hasAlreadyMinted: unexpected %d outputs", len(out))
	}
	minted, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("chain: hasAlreadyMinted: unexpected output type %T", out[0])
	}
	return minted, nil
}

// MintWithURI signs and sends mintWithURI, then waits up to the grace window for the receipt.
// A receipt that arrives in time yields the token id from the Transfer log.
func (c *Contract) MintWithURI(ctx context.Context, p MintParams) (MintReceipt, error) {
	if c.key == nil {
		return MintReceipt{}, ErrMinterUnavailable
	}
	if !common.IsHexAddress(p.To) {
		return MintReceipt{}, fmt.Errorf("chain: recipient %q: %w", p.To, ErrInvalidAddress)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return MintReceipt{}, fmt.Errorf("chain: transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := c.bound.Transact(opts, "mintWithURI",
		common.HexToAddress(p.To), p.City, p.Date, big.NewInt(int64(p.Temperature)), p.Weather, p.TimeOfDay, p.TokenURI)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("rpc", "error").Inc()
		return MintReceipt{}, err
	}
	observability.UpstreamCallsTotal.WithLabelValues("rpc", "success").Inc()
	out := MintReceipt{TxHash: tx.Hash().Hex()}
	logger := observability.LoggerFromContext(ctx, c.logger)
	logger.Info("mint transaction sent", zap.String("tx", out.TxHash), zap.String("to", p.To))

	waitCtx, cancel := context.WithTimeout(ctx, c.graceWindow)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		logger.Info("mint receipt not available within grace window", zap.String("tx", out.TxHash), zap.Duration("grace", c.graceWindow))
		return out, nil
	}
	out.Mined = true
	if receipt.Status != types.ReceiptStatusSuccessful {
		return out, fmt.Errorf("%w: tx %s", ErrMintReverted, out.TxHash)
	}
	out.TokenID = c.TokenIDFromReceipt(receipt)
	return out, nil
}

// TokenIDFromReceipt returns the id of the token this contract minted in receipt, or nil.
func (c *Contract) TokenIDFromReceipt(receipt *types.Receipt) *big.Int {
	for _, l := range receipt.Logs {
		if l.Address != c.address || len(l.Topics) != 4 || l.Topics[0] != transferTopic {
			continue
		}
		if l.Topics[1] != (common.Hash{}) {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[3].Bytes())
	}
	return nil
}

// Close releases the RPC connection when the Contract was created by Dial.
func (c *Contract) Close() error {
	if c.closer != nil {
		c.closer()
	}
	return nil
}

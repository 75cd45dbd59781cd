package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string

	RequestTimeout     time.Duration
	MintRequestTimeout time.Duration
	ExternalURL        string

	GeocodeURL      string
	ForecastURL     string
	WeatherTimeout  time.Duration
	UserAgent       string
	GeocodeRPS      float64
	GeocodeBurst    int
	GeocodeCacheTTL time.Duration

	ImageProvider    string // "replicate", "openai" or "none"
	ReplicateURL     string
	ReplicateToken   string
	ReplicateVersion string
	OpenAIKey        string
	OpenAIModel      string
	ImageWidth       int
	ImageHeight      int
	ImageTimeout     time.Duration
	PollInterval     time.Duration
	PollMaxAttempts  int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	PinataURL      string
	PinataJWT      string
	GatewayURL     string
	StorageTimeout time.Duration

	Network          string // "local", "sepolia" or "mainnet"
	RPCURL           string
	ContractAddress  string
	ChainID          int64
	MinterPrivateKey string
	MintGraceWindow  time.Duration
	ChainTimeout     time.Duration

	AlchemyRPCURL string
	AlchemyNFTURL string
	AlchemyAPIKey string

	EligibilityTTL        time.Duration
	CacheBackend          string // "in_memory" or "memcached"
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	HistoryPath string

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	HealthWindow     time.Duration
	DegradedErrorPct int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port        string `yaml:"port"`
		ExternalURL string `yaml:"external_url"`
	} `yaml:"server"`

	Request struct {
		Timeout     string `yaml:"timeout"`
		MintTimeout string `yaml:"mint_timeout"`
	} `yaml:"request"`

	Weather struct {
		GeocodeURL      string  `yaml:"geocode_url"`
		ForecastURL     string  `yaml:"forecast_url"`
		Timeout         string  `yaml:"timeout"`
		UserAgent       string  `yaml:"user_agent"`
		GeocodeRPS      float64 `yaml:"geocode_rps"`
		GeocodeBurst    int     `yaml:"geocode_burst"`
		GeocodeCacheTTL string  `yaml:"geocode_cache_ttl"`
	} `yaml:"weather"`

	ImageGen struct {
		Provider         string `yaml:"provider"`
		ReplicateURL     string `yaml:"replicate_url"`
		ReplicateVersion string `yaml:"replicate_version"`
		OpenAIModel      string `yaml:"openai_model"`
		Width            int    `yaml:"width"`
		Height           int    `yaml:"height"`
		Timeout          string `yaml:"timeout"`
		PollInterval     string `yaml:"poll_interval"`
		PollMaxAttempts  int    `yaml:"poll_max_attempts"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"imagegen"`

	Storage struct {
		PinataURL  string `yaml:"pinata_url"`
		GatewayURL string `yaml:"gateway_url"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"storage"`

	Chain struct {
		Network         string `yaml:"network"`
		RPCURL          string `yaml:"rpc_url"`
		ContractAddress string `yaml:"contract_address"`
		ChainID         int64  `yaml:"chain_id"`
		MintGraceWindow string `yaml:"mint_grace_window"`
		Timeout         string `yaml:"timeout"`
	} `yaml:"chain"`

	Wallet struct {
		AlchemyRPCURL string `yaml:"alchemy_rpc_url"`
		AlchemyNFTURL string `yaml:"alchemy_nft_url"`
	} `yaml:"wallet"`

	Eligibility struct {
		TTL       string `yaml:"ttl"`
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"eligibility"`

	History struct {
		Path string `yaml:"path"`
	} `yaml:"history"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Health struct {
		Window           string `yaml:"window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	ReplicateAPIToken string `yaml:"replicate_api_token"`
	OpenAIAPIKey      string `yaml:"openai_api_key"`
	PinataJWT         string `yaml:"pinata_jwt"`
	MinterPrivateKey  string `yaml:"minter_private_key"`
	AlchemyAPIKey     string `yaml:"alchemy_api_key"`
}

// network holds per-network defaults used when rpc_url or contract_address are unset.
type network struct {
	rpcURL          string
	contractAddress string
	chainID         int64
}

var networks = map[string]network{
	"local": {
		rpcURL:          "http://127.0.0.1:8545",
		contractAddress: "0xa4C1118cF44bC08bbEa969eE13718E5348f04e37",
		chainID:         31337,
	},
	"sepolia": {
		rpcURL:          "https://rpc.sepolia.org",
		contractAddress: "0xa4C1118cF44bC08bbEa969eE13718E5348f04e37",
		chainID:         11155111,
	},
	"mainnet": {
		rpcURL:          "https://cloudflare-eth.com",
		contractAddress: "0x0000000000000000000000000000000000000000",
		chainID:         1,
	},
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), config/secrets.yaml and .env.
// Secrets in the process environment win over .env, which wins over the secrets file. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var sec secretsFile
	secretsData, err := os.ReadFile(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.ExternalURL = strings.TrimRight(strings.TrimSpace(fc.Server.ExternalURL), "/")

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.MintRequestTimeout = parseDuration(fc.Request.MintTimeout, 3*time.Minute)

	cfg.GeocodeURL = stringOr(fc.Weather.GeocodeURL, "https://nominatim.openstreetmap.org")
	cfg.ForecastURL = stringOr(fc.Weather.ForecastURL, "https://api.open-meteo.com/v1/forecast")
	cfg.WeatherTimeout = parseDurationOrZero(fc.Weather.Timeout, 5*time.Second)
	cfg.UserAgent = stringOr(fc.Weather.UserAgent, "WeatherNFT-App/1.0")
	cfg.GeocodeRPS = fc.Weather.GeocodeRPS
	if cfg.GeocodeRPS <= 0 {
		cfg.GeocodeRPS = 1
	}
	cfg.GeocodeBurst = fc.Weather.GeocodeBurst
	if cfg.GeocodeBurst <= 0 {
		cfg.GeocodeBurst = 1
	}
	cfg.GeocodeCacheTTL = parseDuration(fc.Weather.GeocodeCacheTTL, 24*time.Hour)

	cfg.ImageProvider = strings.TrimSpace(strings.ToLower(os.Getenv("IMAGE_PROVIDER")))
	if cfg.ImageProvider == "" {
		cfg.ImageProvider = strings.TrimSpace(strings.ToLower(fc.ImageGen.Provider))
	}
	if cfg.ImageProvider == "" {
		cfg.ImageProvider = "replicate"
	}
	cfg.ReplicateURL = stringOr(fc.ImageGen.ReplicateURL, "https://api.replicate.com/v1")
	cfg.ReplicateVersion = stringOr(fc.ImageGen.ReplicateVersion, "39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b")
	cfg.ReplicateToken = secret("REPLICATE_API_TOKEN", sec.ReplicateAPIToken)
	cfg.OpenAIKey = secret("OPENAI_API_KEY", sec.OpenAIAPIKey)
	cfg.OpenAIModel = stringOr(fc.ImageGen.OpenAIModel, "gpt-image-1")
	cfg.ImageWidth = fc.ImageGen.Width
	if cfg.ImageWidth <= 0 {
		cfg.ImageWidth = 512
	}
	cfg.ImageHeight = fc.ImageGen.Height
	if cfg.ImageHeight <= 0 {
		cfg.ImageHeight = 768
	}
	cfg.ImageTimeout = parseDuration(fc.ImageGen.Timeout, 30*time.Second)
	cfg.PollInterval = parseDurationOrZero(fc.ImageGen.PollInterval, time.Second)
	cfg.PollMaxAttempts = fc.ImageGen.PollMaxAttempts
	if cfg.PollMaxAttempts == 0 {
		cfg.PollMaxAttempts = 60
	}
	cfg.CircuitBreakerEnabled = true
	if fc.ImageGen.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.ImageGen.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = fc.ImageGen.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.ImageGen.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 1
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.ImageGen.CircuitBreaker.Timeout, 60*time.Second)

	cfg.PinataURL = stringOr(fc.Storage.PinataURL, "https://api.pinata.cloud")
	cfg.GatewayURL = stringOr(fc.Storage.GatewayURL, "https://gateway.pinata.cloud")
	cfg.PinataJWT = secret("PINATA_JWT", sec.PinataJWT)
	cfg.StorageTimeout = parseDuration(fc.Storage.Timeout, 30*time.Second)

	cfg.Network = strings.TrimSpace(strings.ToLower(os.Getenv("NETWORK")))
	if cfg.Network == "" {
		cfg.Network = strings.TrimSpace(strings.ToLower(fc.Chain.Network))
	}
	if cfg.Network == "" {
		cfg.Network = "sepolia"
	}
	preset := networks[cfg.Network]
	cfg.RPCURL = strings.TrimSpace(os.Getenv("RPC_URL"))
	if cfg.RPCURL == "" {
		cfg.RPCURL = stringOr(fc.Chain.RPCURL, preset.rpcURL)
	}
	cfg.ContractAddress = stringOr(fc.Chain.ContractAddress, preset.contractAddress)
	cfg.ChainID = fc.Chain.ChainID
	if cfg.ChainID <= 0 {
		cfg.ChainID = preset.chainID
	}
	cfg.MinterPrivateKey = strings.TrimPrefix(secret("MINTER_PRIVATE_KEY", sec.MinterPrivateKey), "0x")
	cfg.MintGraceWindow = parseDuration(fc.Chain.MintGraceWindow, 3*time.Second)
	cfg.ChainTimeout = parseDurationOrZero(fc.Chain.Timeout, 10*time.Second)

	cfg.AlchemyAPIKey = secret("ALCHEMY_API_KEY", sec.AlchemyAPIKey)
	cfg.AlchemyRPCURL = stringOr(fc.Wallet.AlchemyRPCURL, "https://eth-sepolia.g.alchemy.com/v2")
	cfg.AlchemyNFTURL = stringOr(fc.Wallet.AlchemyNFTURL, "https://eth-sepolia.g.alchemy.com/nft/v3")

	cfg.EligibilityTTL = parseDuration(fc.Eligibility.TTL, 5*time.Minute)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Eligibility.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = stringOr(fc.Eligibility.Memcached.Addrs, "localhost:11211")
	}
	cfg.MemcachedTimeout = parseDuration(fc.Eligibility.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Eligibility.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.HistoryPath = stringOr(fc.History.Path, "data/mints.db")

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 200*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}

	cfg.HealthWindow = parseDuration(fc.Health.Window, time.Minute)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 || cfg.DegradedErrorPct > 100 {
		cfg.DegradedErrorPct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 90*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 500*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// secret returns the environment value for key, or fromFile when the variable is unset.
func secret(key, fromFile string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(fromFile)
}

func stringOr(s, defaultVal string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	return s
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is so validate can reject them.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above WeatherTimeout when needed.
func validate(cfg *Config) error {
	if cfg.WeatherTimeout <= 0 {
		return fmt.Errorf("weather.timeout must be positive")
	}
	if cfg.ChainTimeout <= 0 {
		return fmt.Errorf("chain.timeout must be positive")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("imagegen.poll_interval must be positive")
	}
	if cfg.PollMaxAttempts < 1 {
		return fmt.Errorf("imagegen.poll_max_attempts must be at least 1, got %d", cfg.PollMaxAttempts)
	}
	if cfg.RequestTimeout <= cfg.WeatherTimeout {
		cfg.RequestTimeout = cfg.WeatherTimeout + time.Second
	}
	switch cfg.ImageProvider {
	case "replicate", "openai", "none":
	default:
		return fmt.Errorf("imagegen.provider must be replicate, openai or none, got %q", cfg.ImageProvider)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("eligibility.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if _, ok := networks[cfg.Network]; !ok {
		return fmt.Errorf("chain.network must be local, sepolia or mainnet, got %q", cfg.Network)
	}
	if cfg.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url required")
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
server:
  port: "8080"
`

// clearSecrets unsets every variable Load reads so the host environment cannot leak in.
func clearSecrets(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENV_NAME", "IMAGE_PROVIDER", "NETWORK", "RPC_URL", "CACHE_BACKEND", "MEMCACHED_ADDRS",
		"REPLICATE_API_TOKEN", "OPENAI_API_KEY", "PINATA_JWT", "MINTER_PRIVATE_KEY", "ALCHEMY_API_KEY",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// TestLoad_Defaults verifies a minimal config file yields the documented defaults.
func TestLoad_Defaults(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.EligibilityTTL != 5*time.Minute {
		t.Errorf("EligibilityTTL = %v, want 5m", cfg.EligibilityTTL)
	}
	if cfg.PollInterval != time.Second || cfg.PollMaxAttempts != 60 {
		t.Errorf("poll = %v x %d, want 1s x 60", cfg.PollInterval, cfg.PollMaxAttempts)
	}
	if cfg.ImageWidth != 512 || cfg.ImageHeight != 768 {
		t.Errorf("image size = %dx%d, want 512x768", cfg.ImageWidth, cfg.ImageHeight)
	}
	if cfg.MintGraceWindow != 3*time.Second {
		t.Errorf("MintGraceWindow = %v, want 3s", cfg.MintGraceWindow)
	}
	if cfg.Network != "sepolia" || cfg.ChainID != 11155111 {
		t.Errorf("network = %s/%d, want sepolia/11155111", cfg.Network, cfg.ChainID)
	}
	if cfg.ImageProvider != "replicate" {
		t.Errorf("ImageProvider = %q, want replicate", cfg.ImageProvider)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if cfg.UserAgent != "WeatherNFT-App/1.0" {
		t.Errorf("UserAgent = %q", cfg.UserAgent)
	}
	if !cfg.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = false, want true by default")
	}
}

// TestLoad_SecretsPrecedence verifies env vars win over .env, which wins over secrets.yaml.
func TestLoad_SecretsPrecedence(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "pinata_jwt: from-secrets\nreplicate_api_token: tok-secrets\nopenai_api_key: oa-secrets\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PINATA_JWT=from-dotenv\nREPLICATE_API_TOKEN=tok-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("REPLICATE_API_TOKEN", "tok-env")
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ReplicateToken != "tok-env" {
		t.Errorf("ReplicateToken = %q, want tok-env", cfg.ReplicateToken)
	}
	if cfg.PinataJWT != "from-dotenv" {
		t.Errorf("PinataJWT = %q, want from-dotenv", cfg.PinataJWT)
	}
	if cfg.OpenAIKey != "oa-secrets" {
		t.Errorf("OpenAIKey = %q, want oa-secrets", cfg.OpenAIKey)
	}
}

// TestLoad_MinterKeyStripsPrefix verifies a 0x-prefixed private key is normalized.
func TestLoad_MinterKeyStripsPrefix(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	t.Setenv("MINTER_PRIVATE_KEY", "0xabc123")
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MinterPrivateKey != "abc123" {
		t.Errorf("MinterPrivateKey = %q, want abc123", cfg.MinterPrivateKey)
	}
}

// TestLoad_NetworkPresets verifies local network defaults and explicit overrides.
func TestLoad_NetworkPresets(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
chain:
  network: local
  contract_address: "0x1111111111111111111111111111111111111111"
`)
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RPCURL != "http://127.0.0.1:8545" {
		t.Errorf("RPCURL = %q, want local preset", cfg.RPCURL)
	}
	if cfg.ChainID != 31337 {
		t.Errorf("ChainID = %d, want 31337", cfg.ChainID)
	}
	if cfg.ContractAddress != "0x1111111111111111111111111111111111111111" {
		t.Errorf("ContractAddress = %q, want override", cfg.ContractAddress)
	}
}

// TestLoad_EnvFileNotFound verifies a missing environment file is reported with its path.
func TestLoad_EnvFileNotFound(t *testing.T) {
	clearSecrets(t)
	t.Setenv("ENV_NAME", "nonexistent")
	t.Chdir(t.TempDir())

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing config file, got nil")
	}
	if !strings.Contains(err.Error(), "nonexistent.yaml") {
		t.Errorf("Load() error = %v, want path to nonexistent.yaml", err)
	}
}

// TestLoad_InvalidDurationFallsBackToDefault verifies unparseable durations use defaults.
func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
eligibility:
  ttl: "not-a-duration"
request:
  timeout: "-5s"
`)
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.EligibilityTTL != 5*time.Minute {
		t.Errorf("EligibilityTTL = %v, want 5m", cfg.EligibilityTTL)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
}

// TestLoad_ValidationFailures verifies enum and range checks reject bad config.
func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad provider", "imagegen:\n  provider: midjourney\n", "imagegen.provider"},
		{"bad backend", "eligibility:\n  backend: redis\n", "eligibility.backend"},
		{"bad network", "chain:\n  network: goerli\n", "chain.network"},
		{"zero weather timeout", "weather:\n  timeout: 0s\n", "weather.timeout"},
		{"zero poll interval", "imagegen:\n  poll_interval: 0s\n", "poll_interval"},
		{"negative poll attempts", "imagegen:\n  poll_max_attempts: -1\n", "poll_max_attempts"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearSecrets(t)
			dir := t.TempDir()
			writeEnvFile(t, dir, tc.yaml)
			t.Chdir(dir)

			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error, got cfg %+v", cfg)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

// TestLoad_InvalidYAML verifies malformed config and secrets files are rejected.
func TestLoad_InvalidYAML(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		clearSecrets(t)
		dir := t.TempDir()
		writeEnvFile(t, dir, "server: [unclosed\n")
		t.Chdir(dir)
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse config file") {
			t.Errorf("Load() error = %v, want parse config file", err)
		}
	})
	t.Run("secrets", func(t *testing.T) {
		clearSecrets(t)
		dir := t.TempDir()
		writeEnvFile(t, dir, minimalEnvYAML)
		writeSecretsFile(t, dir, "pinata_jwt: [unclosed\n")
		t.Chdir(dir)
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse secrets file") {
			t.Errorf("Load() error = %v, want parse secrets file", err)
		}
	})
}

// TestLoad_RequestTimeoutRaisedAboveWeatherTimeout verifies the request budget covers one upstream call.
func TestLoad_RequestTimeoutRaisedAboveWeatherTimeout(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "weather:\n  timeout: 20s\nrequest:\n  timeout: 5s\n")
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 21*time.Second {
		t.Errorf("RequestTimeout = %v, want 21s", cfg.RequestTimeout)
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config", "secrets.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

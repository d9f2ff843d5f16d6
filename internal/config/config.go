package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultMulticallAddress is the canonical Multicall3 deployment, shared by
// every supported chain unless overridden per chain.
const DefaultMulticallAddress = "0xcA11bde05977b3631167028862bE2a173976CA11"

// Config holds the overall configuration for the application.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Chains     []ChainNode      `yaml:"chains"`
	Protocols  []ProtocolConfig `yaml:"protocols"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	RpcClient  RpcClientConfig  `yaml:"rpcClient"`
	Cache      CacheConfig      `yaml:"cache"`
	Pricing    PricingConfig    `yaml:"pricing"`
	DefiLlama  DefiLlamaConfig  `yaml:"defiLlama"`
	Files      FilesConfig      `yaml:"files"`
	Logging    LoggingConfig    `yaml:"logging"`
	Swagger    SwaggerConfig    `yaml:"swagger"`
}

// ServerConfig holds the server-specific configuration.
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
}

// ChainNode holds the configuration for a single EVM chain.
type ChainNode struct {
	ChainID        uint64   `yaml:"chainID"`
	Name           string   `yaml:"name"` // chain identifier, e.g. "ethereum"
	LlamaChainID   string   `yaml:"llamaChainID"`
	NativeSymbol   string   `yaml:"nativeSymbol"`
	NativeDecimals uint8    `yaml:"nativeDecimals"`
	Endpoints      []string `yaml:"endpoints"` // ordered, first is primary
	Multicall      string   `yaml:"multicall"`
	WrappedNative  string   `yaml:"wrappedNative"`
	LookbackBlocks uint64   `yaml:"lookbackBlocks"`
}

// ProtocolConfig enables and tunes a single protocol handler.
type ProtocolConfig struct {
	Name     string `yaml:"name"`
	Disabled bool   `yaml:"disabled"`
	// AlwaysProbe runs the handler even when the activity scan saw no matching
	// events, for protocols whose positions accrue without user transactions.
	AlwaysProbe bool `yaml:"alwaysProbe"`
	// Addresses overrides the built-in contract addresses: chain -> role -> address.
	Addresses map[string]map[string]string `yaml:"addresses,omitempty"`
	// Vaults lists yield vaults to check per chain (beefy only).
	Vaults map[string][]VaultConfig `yaml:"vaults,omitempty"`
}

// VaultConfig describes one yield vault and its underlying want token.
type VaultConfig struct {
	Address       string `yaml:"address"`
	Name          string `yaml:"name"`
	WantAddress   string `yaml:"wantAddress"`
	WantSymbol    string `yaml:"wantSymbol"`
	WantDecimals  uint8  `yaml:"wantDecimals"`
	ShareDecimals uint8  `yaml:"shareDecimals"` // defaults to wantDecimals
}

// ScannerConfig holds configuration for the activity log scanner.
type ScannerConfig struct {
	LookbackBlocks          uint64 `yaml:"lookbackBlocks"` // default window when a chain does not override
	MaxBlockRange           uint64 `yaml:"maxBlockRange"`  // 0 means probe the whole window in one query
	ActivityCacheTTLSeconds int    `yaml:"activityCacheTTLSeconds"`
}

// AggregatorConfig holds configuration for the cross-chain aggregation.
type AggregatorConfig struct {
	MaxConcurrentChains   int `yaml:"maxConcurrentChains"`
	ScanTimeoutSeconds    int `yaml:"scanTimeoutSeconds"`
	PricingTimeoutSeconds int `yaml:"pricingTimeoutSeconds"`
}

// RpcClientConfig holds configuration for RPC clients.
type RpcClientConfig struct {
	DefaultTimeoutMs int64 `yaml:"defaultTimeoutMs"`
	RateLimit        int   `yaml:"rateLimit"`
	BurstLimit       int   `yaml:"burstLimit"`
	MaxRetries       int   `yaml:"maxRetries"`
	RetryDelayMs     int64 `yaml:"retryDelayMs"`
	RetryMaxDelayMs  int64 `yaml:"retryMaxDelayMs"`
}

// CacheConfig holds TTLs for the contract call cache, one per call class.
type CacheConfig struct {
	CleanupIntervalMinutes int `yaml:"cleanupIntervalMinutes"`
	BalanceTTLSeconds      int `yaml:"balanceTTLSeconds"`
	MetadataTTLMinutes     int `yaml:"metadataTTLMinutes"`
	QuoteTTLSeconds        int `yaml:"quoteTTLSeconds"`
}

// PricingConfig maps tokens to their on-chain price feeds.
// Feeds is chain -> lowercased token address -> aggregator contract address.
type PricingConfig struct {
	Feeds map[string]map[string]string `yaml:"feeds"`
}

// DefiLlamaConfig holds the configuration for the DefiLlama coins client.
type DefiLlamaConfig struct {
	BaseURL              string `yaml:"baseURL"`
	RequestTimeoutMillis int64  `yaml:"requestTimeoutMillis"`
	MaxTokensPerRequest  int    `yaml:"maxTokensPerRequest"`
	RateLimitPerMinute   int    `yaml:"rateLimitPerMinute"`
}

// FilesConfig holds paths to data files.
type FilesConfig struct {
	TokensDir   string `yaml:"tokensDir"`
	WalletsFile string `yaml:"walletsFile"`
}

// LoggingConfig holds the configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // e.g., "debug", "info", "warn", "error"
	File  string `yaml:"file"`
}

// SwaggerConfig holds configuration for Swagger UI.
type SwaggerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		logrus.Errorf("Failed to unmarshal config data from %s: %v", path, err)
		return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
	}

	applyDefaults(&cfg)

	logrus.Info("Configuration loaded successfully.")
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Scanner.LookbackBlocks == 0 {
		cfg.Scanner.LookbackBlocks = 1_000_000
		logrus.Infof("Scanner.LookbackBlocks not set, defaulting to %d blocks", cfg.Scanner.LookbackBlocks)
	}
	if cfg.Scanner.ActivityCacheTTLSeconds == 0 {
		cfg.Scanner.ActivityCacheTTLSeconds = 600
		logrus.Infof("Scanner.ActivityCacheTTLSeconds not set, defaulting to %d seconds", cfg.Scanner.ActivityCacheTTLSeconds)
	}

	if cfg.Aggregator.MaxConcurrentChains == 0 {
		cfg.Aggregator.MaxConcurrentChains = 4
		logrus.Infof("Aggregator.MaxConcurrentChains not set, defaulting to %d", cfg.Aggregator.MaxConcurrentChains)
	}
	if cfg.Aggregator.ScanTimeoutSeconds == 0 {
		cfg.Aggregator.ScanTimeoutSeconds = 30
		logrus.Infof("Aggregator.ScanTimeoutSeconds not set, defaulting to %d seconds", cfg.Aggregator.ScanTimeoutSeconds)
	}
	if cfg.Aggregator.PricingTimeoutSeconds == 0 {
		cfg.Aggregator.PricingTimeoutSeconds = 15
		logrus.Infof("Aggregator.PricingTimeoutSeconds not set, defaulting to %d seconds", cfg.Aggregator.PricingTimeoutSeconds)
	}

	if cfg.RpcClient.DefaultTimeoutMs == 0 {
		cfg.RpcClient.DefaultTimeoutMs = 10000
		logrus.Infof("RpcClient.DefaultTimeoutMs not set, defaulting to %d ms", cfg.RpcClient.DefaultTimeoutMs)
	}
	if cfg.RpcClient.MaxRetries == 0 {
		cfg.RpcClient.MaxRetries = 3
		logrus.Infof("RpcClient.MaxRetries not set, defaulting to %d", cfg.RpcClient.MaxRetries)
	}
	if cfg.RpcClient.RetryDelayMs == 0 {
		cfg.RpcClient.RetryDelayMs = 1000
		logrus.Infof("RpcClient.RetryDelayMs not set, defaulting to %d ms", cfg.RpcClient.RetryDelayMs)
	}
	if cfg.RpcClient.RetryMaxDelayMs == 0 {
		cfg.RpcClient.RetryMaxDelayMs = 30000
		logrus.Infof("RpcClient.RetryMaxDelayMs not set, defaulting to %d ms", cfg.RpcClient.RetryMaxDelayMs)
	}

	if cfg.Cache.CleanupIntervalMinutes == 0 {
		cfg.Cache.CleanupIntervalMinutes = 10
	}
	if cfg.Cache.BalanceTTLSeconds == 0 {
		cfg.Cache.BalanceTTLSeconds = 30
	}
	if cfg.Cache.MetadataTTLMinutes == 0 {
		cfg.Cache.MetadataTTLMinutes = 60
	}
	if cfg.Cache.QuoteTTLSeconds == 0 {
		cfg.Cache.QuoteTTLSeconds = 60
	}

	if cfg.DefiLlama.BaseURL == "" {
		cfg.DefiLlama.BaseURL = "https://coins.llama.fi"
		logrus.Infof("DefiLlama.BaseURL not set, defaulting to %s", cfg.DefiLlama.BaseURL)
	}
	if cfg.DefiLlama.RequestTimeoutMillis == 0 {
		cfg.DefiLlama.RequestTimeoutMillis = 10000
		logrus.Infof("DefiLlama.RequestTimeoutMillis not set, defaulting to %d ms", cfg.DefiLlama.RequestTimeoutMillis)
	}
	if cfg.DefiLlama.MaxTokensPerRequest == 0 {
		cfg.DefiLlama.MaxTokensPerRequest = 30
		logrus.Infof("DefiLlama.MaxTokensPerRequest not set, defaulting to %d", cfg.DefiLlama.MaxTokensPerRequest)
	}

	if cfg.Files.TokensDir == "" {
		cfg.Files.TokensDir = "data/tokens"
	}
	if cfg.Files.WalletsFile == "" {
		cfg.Files.WalletsFile = "data/wallets.txt"
	}

	for i, chain := range cfg.Chains {
		if chain.Multicall == "" {
			cfg.Chains[i].Multicall = DefaultMulticallAddress
		}
		if chain.LookbackBlocks == 0 {
			cfg.Chains[i].LookbackBlocks = cfg.Scanner.LookbackBlocks
		}
		if chain.NativeSymbol == "" {
			cfg.Chains[i].NativeSymbol = "ETH"
		}
		if chain.NativeDecimals == 0 {
			cfg.Chains[i].NativeDecimals = 18
		}
		if len(chain.Endpoints) == 0 {
			logrus.Warnf("Chain '%s' (ChainID: %d) has no RPC endpoints configured, it will be skipped.", chain.Name, chain.ChainID)
		}
	}
}

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/sigweihq/billpay/pkg/constants"
	"github.com/sigweihq/billpay/pkg/utils"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Port         string
	IsProduction bool
	LogLevel     slog.Level

	Network      string
	RPCURLs      []string // empty means discover endpoints from chainlist
	WalletRPCURL string
	FeeCurrency  common.Address // zero means the network's cUSD
	GasLimit     uint64

	RateTTL       time.Duration
	RateSourceURL string
	RateAPIKey    string

	StepTimeout              time.Duration
	VerificationTimeout      time.Duration
	VerificationPollInterval time.Duration

	DatabaseURL string // empty keeps the ledger in memory

	RateLimit   string // ulule formatted, e.g. "60-M"
	CORSOrigins []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("IS_PRODUCTION", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("NETWORK", constants.NetworkCelo)
	v.SetDefault("RPC_URLS", "")
	v.SetDefault("WALLET_RPC_URL", "")
	v.SetDefault("FEE_CURRENCY", "")
	v.SetDefault("GAS_LIMIT", constants.TransferGasLimit)
	v.SetDefault("RATE_TTL", constants.DefaultRateTTL.String())
	v.SetDefault("RATE_SOURCE_URL", "")
	v.SetDefault("RATE_API_KEY", "")
	v.SetDefault("STEP_TIMEOUT", constants.DefaultStepTimeout.String())
	v.SetDefault("VERIFICATION_TIMEOUT", constants.DefaultVerificationTimeout.String())
	v.SetDefault("VERIFICATION_POLL_INTERVAL", constants.DefaultVerificationPollInterval.String())
	v.SetDefault("PGSQL_URL", "")
	v.SetDefault("RATE_LIMIT", "60-M")
	v.SetDefault("CORS_ORIGINS", "*")
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig(logger *slog.Logger) (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v, logger)
}

func fromViper(v *viper.Viper, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := &Config{
		Port:          v.GetString("PORT"),
		IsProduction:  v.GetBool("IS_PRODUCTION"),
		Network:       v.GetString("NETWORK"),
		RPCURLs:       splitList(v.GetString("RPC_URLS")),
		WalletRPCURL:  v.GetString("WALLET_RPC_URL"),
		GasLimit:      v.GetUint64("GAS_LIMIT"),
		RateSourceURL: v.GetString("RATE_SOURCE_URL"),
		RateAPIKey:    v.GetString("RATE_API_KEY"),
		DatabaseURL:   v.GetString("PGSQL_URL"),
		RateLimit:     v.GetString("RATE_LIMIT"),
		CORSOrigins:   splitList(v.GetString("CORS_ORIGINS")),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		logger.Warn("invalid LOG_LEVEL, defaulting to info", "value", v.GetString("LOG_LEVEL"))
		cfg.LogLevel = slog.LevelInfo
	}

	if _, ok := constants.NetworkToChainID[cfg.Network]; !ok {
		return nil, fmt.Errorf("unsupported NETWORK %q", cfg.Network)
	}

	if fee := v.GetString("FEE_CURRENCY"); fee != "" {
		if !common.IsHexAddress(fee) {
			return nil, fmt.Errorf("FEE_CURRENCY is not an address: %q", fee)
		}
		cfg.FeeCurrency = common.HexToAddress(fee)
	}

	if cfg.GasLimit == 0 {
		cfg.GasLimit = constants.TransferGasLimit
	}

	durations := []struct {
		key      string
		dst      *time.Duration
		fallback time.Duration
	}{
		{"RATE_TTL", &cfg.RateTTL, constants.DefaultRateTTL},
		{"STEP_TIMEOUT", &cfg.StepTimeout, constants.DefaultStepTimeout},
		{"VERIFICATION_TIMEOUT", &cfg.VerificationTimeout, constants.DefaultVerificationTimeout},
		{"VERIFICATION_POLL_INTERVAL", &cfg.VerificationPollInterval, constants.DefaultVerificationPollInterval},
	}
	for _, d := range durations {
		raw := v.GetString(d.key)
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			logger.Warn("invalid duration, using default", "key", d.key, "value", raw, "default", d.fallback)
			parsed = d.fallback
		}
		*d.dst = parsed
	}

	for _, url := range cfg.RPCURLs {
		if err := utils.ValidateServiceURL(url); err != nil {
			return nil, fmt.Errorf("RPC_URLS: %w", err)
		}
	}
	if cfg.RateSourceURL != "" {
		if err := utils.ValidateServiceURL(cfg.RateSourceURL); err != nil {
			return nil, fmt.Errorf("RATE_SOURCE_URL: %w", err)
		}
	}

	if cfg.DatabaseURL == "" {
		logger.Warn("PGSQL_URL not set, payment ledger is kept in memory")
	}
	if cfg.WalletRPCURL == "" {
		logger.Warn("WALLET_RPC_URL not set, transfers must be submitted by the client")
	}

	return cfg, nil
}

// ChainID returns the numeric id of the configured network
func (c *Config) ChainID() int64 {
	return constants.NetworkToChainID[c.Network]
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

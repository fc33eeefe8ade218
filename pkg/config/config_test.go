package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/billpay/pkg/constants"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(values map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := fromViper(newViper(nil), nil)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, constants.NetworkCelo, cfg.Network)
	assert.Equal(t, int64(42220), cfg.ChainID())
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, uint64(200000), cfg.GasLimit)
	assert.Equal(t, 5*time.Minute, cfg.RateTTL)
	assert.Equal(t, 30*time.Second, cfg.StepTimeout)
	assert.Equal(t, 2*time.Minute, cfg.VerificationTimeout)
	assert.Equal(t, 3*time.Second, cfg.VerificationPollInterval)
	assert.Empty(t, cfg.RPCURLs)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, common.Address{}, cfg.FeeCurrency)
}

func TestOverrides(t *testing.T) {
	cfg, err := fromViper(newViper(map[string]any{
		"NETWORK":              constants.NetworkCeloAlfajores,
		"RPC_URLS":             "https://a.example, https://b.example ,",
		"LOG_LEVEL":            "debug",
		"FEE_CURRENCY":         "0x874069Fa1Eb16D44d622F2e0Ca25eeA172369bC1",
		"VERIFICATION_TIMEOUT": "45s",
		"STEP_TIMEOUT":         "nonsense",
		"CORS_ORIGINS":         "https://pay.example,https://app.example",
	}), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(44787), cfg.ChainID())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.RPCURLs)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, common.HexToAddress("0x874069Fa1Eb16D44d622F2e0Ca25eeA172369bC1"), cfg.FeeCurrency)
	assert.Equal(t, 45*time.Second, cfg.VerificationTimeout)
	assert.Equal(t, 30*time.Second, cfg.StepTimeout)
	assert.Len(t, cfg.CORSOrigins, 2)
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{name: "unknown network", values: map[string]any{"NETWORK": "base"}},
		{name: "bad fee currency", values: map[string]any{"FEE_CURRENCY": "cUSD"}},
		{name: "plain http rpc", values: map[string]any{"RPC_URLS": "http://rpc.example"}},
		{name: "plain http rate source", values: map[string]any{"RATE_SOURCE_URL": "http://rates.example"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromViper(newViper(tt.values), nil)
			assert.Error(t, err)
		})
	}
}

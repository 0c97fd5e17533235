package exchange_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeloop/pkg/exchange"
	"tradeloop/pkg/exchange/hyperliquid"
	"tradeloop/pkg/exchange/sim"
)

const testPrivateKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a741b52d7c5d5095e2f"

func TestLoadConfigAndBuildAdapters(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EXCHANGE_PRIVATE_KEY", testPrivateKey)

	configYAML := `
default: hyperliquid
providers:
  hyperliquid:
    type: hyperliquid
    private_key: ${EXCHANGE_PRIVATE_KEY}
    timeout: 15s
    testnet: true
    rate_limit: 4
  paper:
    type: sim
    feed: hyperliquid
    taker_fee: 0.1
`
	path := filepath.Join(dir, "exchange.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := exchange.LoadConfig(path)
	require.NoError(t, err, "LoadConfig should not error")
	assert.Equal(t, 15*time.Second, cfg.Providers["hyperliquid"].Timeout)
	assert.Equal(t, testPrivateKey, cfg.Providers["hyperliquid"].PrivateKey)

	adapters, err := cfg.BuildAdapters()
	require.NoError(t, err, "BuildAdapters should not error")
	require.Len(t, adapters, 2)

	hl, ok := adapters["hyperliquid"].(*hyperliquid.Adapter)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(hl.Address(), "0x"))

	paper, ok := adapters["paper"].(*sim.Provider)
	require.True(t, ok)
	assert.Equal(t, 0.1, paper.Info().TakerFee)

	resolved, err := cfg.Resolve(adapters, "unknown")
	require.NoError(t, err)
	assert.Same(t, hl, resolved)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty providers":  `providers: {}`,
		"unknown type":     "providers:\n  x:\n    type: nope\n",
		"bad timeout":      "providers:\n  x:\n    type: hyperliquid\n    timeout: soon\n",
		"missing default":  "default: y\nproviders:\n  x:\n    type: hyperliquid\n",
		"undefined feed":   "providers:\n  p:\n    type: sim\n    feed: nope\n",
		"negative fee":     "providers:\n  x:\n    type: hyperliquid\n    maker_fee: -1\n",
		"negative limiter": "providers:\n  x:\n    type: hyperliquid\n    rate_limit: -2\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := exchange.LoadConfigFromReader(strings.NewReader(body))
			assert.Error(t, err)
		})
	}
}

func TestParseOrderType(t *testing.T) {
	ot, ok := exchange.ParseOrderType("taker")
	assert.True(t, ok)
	assert.Equal(t, exchange.OrderTaker, ot)

	ot, ok = exchange.ParseOrderType("fast")
	assert.False(t, ok)
	assert.Equal(t, exchange.OrderMaker, ot)
}

package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeloop/internal/config"
	"tradeloop/pkg/options"
)

func TestSplitSelector(t *testing.T) {
	sel, rest := splitSelector([]string{"hyperliquid.BTC-USD", "--days", "2"})
	assert.Equal(t, "hyperliquid.BTC-USD", sel)
	assert.Equal(t, []string{"--days", "2"}, rest)

	sel, rest = splitSelector([]string{"--paper", "true"})
	assert.Empty(t, sel)
	assert.Equal(t, []string{"--paper", "true"}, rest)
}

func TestLoadOptionsPrecedence(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "options.yaml"),
		[]byte("selector: hyperliquid.ETH-USD\nbuy_pct: 50\nsell_pct: 40\n"), 0o600))
	mainPath := filepath.Join(dir, "trade.yaml")
	require.NoError(t, os.WriteFile(mainPath, []byte("Store: memory\nTrade:\n  File: options.yaml\n"), 0o600))

	fs := flag.NewFlagSet("trade", flag.ContinueOnError)
	options.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--buy_pct", "25"}))

	cfg, opts, err := loadOptions(mainPath, "hyperliquid.BTC-USD", fs)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, "hyperliquid.BTC-USD", opts.Sel.Normalized)
	assert.Equal(t, 25.0, opts.BuyPct)
	assert.Equal(t, 40.0, opts.SellPct)
}

func TestLoadOptionsNeedsSelector(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "trade.yaml")
	require.NoError(t, os.WriteFile(mainPath, []byte("Store: memory\n"), 0o600))

	_, _, err := loadOptions(mainPath, "", nil)
	assert.ErrorContains(t, err, "selector")
}

func TestConfPath(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "trade.yaml")
	assert.Equal(t, abs, confPath(abs))

	// the test runs from cmd/trade, so etc/trade.yaml resolves to the project copy
	p := confPath(filepath.Join("etc", "trade.yaml"))
	assert.True(t, filepath.IsAbs(p))
	_, err := os.Stat(p)
	assert.NoError(t, err)

	assert.Equal(t, "nope/missing.yaml", confPath("nope/missing.yaml"))
}

func TestRunBackfillJob(t *testing.T) {
	assert.False(t, runBackfillJob(&config.Config{Store: config.StoreMemory}, false))
	assert.True(t, runBackfillJob(&config.Config{Store: config.StoreFile}, false))
	assert.True(t, runBackfillJob(&config.Config{Store: config.StorePostgres}, false))
	assert.False(t, runBackfillJob(&config.Config{Store: config.StoreFile}, true))
}

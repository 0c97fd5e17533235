package prompt

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRendersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("{{ .Selector }} at {{ num 1 .Price }} {{ shout .Side }}"), 0o600))

	tpl, err := Load(path, template.FuncMap{"shout": strings.ToUpper})
	require.NoError(t, err)
	out, err := tpl.Render(map[string]any{"Selector": "hyperliquid.BTC-USDC", "Price": 64123.25, "Side": "buy"})
	require.NoError(t, err)
	assert.Equal(t, "hyperliquid.BTC-USDC at 64123.2 BUY", out)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("", nil)
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.tmpl"), nil)
	assert.Error(t, err)
	_, err = Parse("broken", "{{ .Open ", nil)
	assert.Error(t, err)
}

func TestDigestFollowsSource(t *testing.T) {
	a, err := Parse("a", "v1", nil)
	require.NoError(t, err)
	b, err := Parse("b", "v1", nil)
	require.NoError(t, err)
	c, err := Parse("c", "v2", nil)
	require.NoError(t, err)

	assert.Len(t, a.Digest(), 64)
	assert.Equal(t, a.Digest(), b.Digest())
	assert.NotEqual(t, a.Digest(), c.Digest())
}

func TestHelpers(t *testing.T) {
	tpl, err := Parse("inline", `{{ num 2 .Close }} {{ pct .Change }} {{ num 2 .Bad }}`, nil)
	require.NoError(t, err)
	out, err := tpl.Render(map[string]float64{"Close": 101.234, "Change": 0.0125, "Bad": math.NaN()})
	require.NoError(t, err)
	assert.Equal(t, "101.23 1.25% n/a", out)
}

func TestRenderMissingKey(t *testing.T) {
	tpl, err := Parse("strict", `{{ .Nope }}`, nil)
	require.NoError(t, err)
	_, err = tpl.Render(map[string]any{})
	assert.Error(t, err)
}

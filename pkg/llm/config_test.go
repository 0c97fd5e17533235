package llm

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(envAPIKey, "")
	cfg, err := LoadConfigFromReader(strings.NewReader("api_key: k\ndefault_model: openai/gpt-4o-mini\n"))
	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL, cfg.BaseURL)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
	assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv(envAPIKey, "from-env")
	t.Setenv(envTimeout, "5s")
	t.Setenv(envMaxRetries, "7")
	t.Setenv("PROMPT_DIR", "/etc/prompts")
	cfg, err := LoadConfigFromReader(strings.NewReader("api_key: file\ndefault_model: m\nprompt_template: ${PROMPT_DIR}/signal.tmpl\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, "/etc/prompts/signal.tmpl", cfg.PromptTemplate)
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv(envAPIKey, "")
	t.Setenv(envTimeout, "")
	_, err := LoadConfigFromReader(strings.NewReader("default_model: m\n"))
	assert.ErrorContains(t, err, "api_key")

	_, err = LoadConfigFromReader(strings.NewReader("api_key: k\ndefault_model: m\ntimeout: never\n"))
	assert.ErrorContains(t, err, "invalid timeout")
}

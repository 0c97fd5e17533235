package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradeloop/internal/config"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "tradeloop:session:latest:sim.BTC-USDC", SessionLatestKey("sim.BTC-USDC"))
	assert.Equal(t, "tradeloop:session:latest", SessionLatestKey(" "))
}

func TestTTLSet(t *testing.T) {
	ttl := NewTTLSet(config.CacheTTL{Short: 0, Medium: 30, Long: -1})
	assert.Equal(t, 10*time.Second, ttl.Short)
	assert.Equal(t, 30*time.Second, ttl.Medium)
	assert.Equal(t, time.Duration(0), SessionTTL(ttl))
	assert.Equal(t, 5*time.Minute, SessionTTL(NewTTLSet(config.CacheTTL{})))
}

package config

import (
	"testing"
	"time"

	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("DUPLICATE_CHECK_POLICY", "")
	t.Setenv("TRACKING_MAX_RETRIES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, tracker.FailOpen, cfg.DuplicatePolicy)
	assert.Equal(t, tracker.RetryPolicy{MaxRetries: 0, Backoff: 200 * time.Millisecond}, cfg.RetryPolicy())
	assert.Equal(t, 30*24*time.Hour, cfg.DuplicateWindow)
	assert.Equal(t, 168*time.Hour, cfg.SessionExpiry)
	assert.True(t, cfg.MetricsEnabled)
	assert.Empty(t, cfg.ProxyHeader)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("DUPLICATE_CHECK_POLICY", "fail_closed")
	t.Setenv("TRACKING_MAX_RETRIES", "2")
	t.Setenv("TRACKING_RETRY_BACKOFF", "1s")
	t.Setenv("BLOCK_DUPLICATE_SIGNUPS", "true")
	t.Setenv("PROXY_HEADER", "X-Forwarded-For")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 10.1.0.0/16,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, tracker.FailClosed, cfg.DuplicatePolicy)
	assert.Equal(t, 2, cfg.TrackingMaxRetries)
	assert.Equal(t, time.Second, cfg.TrackingRetryBackoff)
	assert.True(t, cfg.BlockDuplicateSignups)
	assert.Equal(t, "X-Forwarded-For", cfg.ProxyHeader)
	assert.Equal(t, []string{"10.0.0.1", "10.1.0.0/16"}, cfg.TrustedProxies)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("DUPLICATE_CHECK_POLICY", "sometimes")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DUPLICATE_CHECK_POLICY", "")
	t.Setenv("TRACKING_MAX_RETRIES", "5")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("TRACKING_MAX_RETRIES", "")
	t.Setenv("STORE_DRIVER", "mongo")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1")
	_, err = Load()
	assert.Error(t, err, "trusted proxies without a header")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, key := range []string{"PORT", "DATABASE_URL", "DATA_FILE", "ALLOW_NEGATIVE_STOCK", "PHONE_REGION", "STATS_CACHE_TTL", "LOW_STOCK_THRESHOLD", "REDIS_ADDR"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Address())
	require.Equal(t, "paintstore-data.json", cfg.DataFile)
	require.False(t, cfg.AllowNegativeStock)
	require.False(t, cfg.UsePostgres())
	require.False(t, cfg.UseRedis())
	require.Equal(t, "PK", cfg.PhoneRegion)
	require.Equal(t, 30*time.Second, cfg.StatsCacheTTL)
	require.Equal(t, 10, cfg.LowStockThreshold)
	require.True(t, cfg.CSRFEnabled)
}

func TestLoadReadsEnvFileWithoutOverridingEnvironment(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PHONE_REGION=in\nLOW_STOCK_THRESHOLD=4\n"), 0o600))
	require.NoError(t, os.Unsetenv("PHONE_REGION"))
	t.Setenv("LOW_STOCK_THRESHOLD", "7")
	t.Cleanup(func() { _ = os.Unsetenv("PHONE_REGION") })

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "IN", cfg.PhoneRegion)
	require.Equal(t, 7, cfg.LowStockThreshold)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STATS_CACHE_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "memory", cfg.EventBus.Driver)
	assert.Equal(t, 3, cfg.EventBus.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.EventBus.RetryBackoff)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Fee.PlatformRate.IsZero())
	assert.Equal(t, int64(1000000), cfg.Fee.MaxContributionCents())
	assert.Equal(t, int64(5000000), cfg.Ledger.GoalCapCents())
	assert.Equal(t, 10*time.Minute, cfg.Idempotency.Window)
	assert.Equal(t, 10*time.Second, cfg.Stripe.Timeout)
	assert.True(t, cfg.Stripe.HealthCheck)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	env := "FEE_PLATFORM_RATE=0.05\nRETRY_MAX_ATTEMPTS=5\nSTRIPE_API_KEY=sk_test_abcdef123456\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.test"), []byte(env), 0o600))
	t.Cleanup(func() {
		for _, k := range []string{"FEE_PLATFORM_RATE", "RETRY_MAX_ATTEMPTS", "STRIPE_API_KEY"} {
			_ = os.Unsetenv(k)
		}
	})

	cfg, err := Load(".env.missing", ".env.test")
	require.NoError(t, err)
	assert.Equal(t, "0.05", cfg.Fee.PlatformRate.String())
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, "sk_test_abcdef123456", cfg.Stripe.ApiKey)
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "****", maskValue("short"))
	assert.Equal(t, "sk****3456", maskValue("sk_test_abcdef123456"))
}

func TestLocateEnvFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(filepath.Join(nested, ".env.dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("X=1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", ".env.dir"), []byte("X=2\n"), 0o600))

	tests := []struct {
		name    string
		file    string
		want    string
		wantErr bool
	}{
		{name: "default name found in ancestor", file: "", want: filepath.Join(root, ".env")},
		{name: "directories are skipped", file: ".env.dir", want: filepath.Join(root, "a", ".env.dir")},
		{name: "absolute path", file: filepath.Join(root, ".env"), want: filepath.Join(root, ".env")},
		{name: "missing", file: ".env.nowhere", wantErr: true},
		{name: "missing absolute", file: filepath.Join(root, "nope"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := locateEnvFile(nested, tt.file)
			if tt.wantErr {
				assert.ErrorIs(t, err, os.ErrNotExist)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

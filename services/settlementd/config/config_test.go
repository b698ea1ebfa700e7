package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settlementd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "listen: \":9000\"\nauth:\n  hmac_secret: 0123456789abcdef\n"))
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.True(t, cfg.Auth.IsEnabled())
	require.Equal(t, DriverSQLite, cfg.Database.Driver)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout.Duration)
	require.Equal(t, 2*time.Minute, cfg.Auth.ClockSkew.Duration)
	require.Equal(t, 50, cfg.RateLimit.Burst)
}

func TestLoadParsesDurationsAndSecretEnv(t *testing.T) {
	t.Setenv("SETTLEMENTD_TEST_SECRET", "0123456789abcdef0123")
	cfg, err := Load(writeConfig(t, `
auth:
  enabled: true
  hmac_secret_env: SETTLEMENTD_TEST_SECRET
  issuer: invokeledger
  clock_skew: 30s
shutdown_timeout: 1m
database:
  driver: postgres
  dsn: postgres://settle@localhost/settle
`))
	require.NoError(t, err)
	require.Equal(t, "0123456789abcdef0123", cfg.Auth.HMACSecret)
	require.Equal(t, 30*time.Second, cfg.Auth.ClockSkew.Duration)
	require.Equal(t, time.Minute, cfg.ShutdownTimeout.Duration)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  driver: mysql\n"))
	require.Error(t, err)
	_, err = Load(writeConfig(t, "auth:\n  enabled: true\n  hmac_secret: short\n"))
	require.Error(t, err)
	_, err = Load(writeConfig(t, "listen: \":9000\"\n"))
	require.ErrorContains(t, err, "hmac_secret")
	_, err = Load(writeConfig(t, "shutdown_timeout: [1]\n"))
	require.Error(t, err)
}

func TestAuthCanBeDisabledExplicitly(t *testing.T) {
	cfg, err := Load(writeConfig(t, "environment: dev\nauth:\n  enabled: false\n"))
	require.NoError(t, err)
	require.False(t, cfg.Auth.IsEnabled())
}

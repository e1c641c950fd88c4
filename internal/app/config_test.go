package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "")
	t.Setenv("PG_DSN", "postgres://ledger@localhost/ledger")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 120, cfg.AppRateLimit)
	require.Equal(t, "ledger:session", cfg.SessionPrefix)
	require.Equal(t, 10*time.Second, cfg.BalanceLockTTL)
	require.False(t, cfg.IsProduction())

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)
}

func TestLoadConfigRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "Mars/Olympus_Mons")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "APP_TIMEZONE")
}

func TestClockUsesBusinessLocation(t *testing.T) {
	cfg := &Config{AppTimezone: "America/Mexico_City"}
	now := cfg.Clock()()
	require.Equal(t, "America/Mexico_City", now.Location().String())

	var missing *Config
	require.False(t, missing.IsProduction())
	require.Equal(t, time.UTC, missing.Clock()().Location())
}

func TestRedisOpt(t *testing.T) {
	cfg := &Config{RedisAddr: "cache:6379", RedisPassword: "secret", RedisDB: 2}
	opt := cfg.RedisOpt()
	require.Equal(t, "cache:6379", opt.Addr)
	require.Equal(t, "secret", opt.Password)
	require.Equal(t, 2, opt.DB)
}

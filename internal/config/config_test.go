package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/webreq/pkg/logging"
	"github.com/Sternrassler/webreq/pkg/ratelimit"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper())
	require.NoError(t, err)

	require.Equal(t, 100, cfg.RateLimit.Rate)
	require.Equal(t, time.Second, cfg.RateLimit.Period)
	require.Equal(t, BackendMemory, cfg.RateLimit.Backend)
	require.Equal(t, ratelimit.RedisKeyWindow, cfg.RateLimit.RedisKey)
	require.Equal(t, 100*time.Millisecond, cfg.RateLimit.PollInterval)

	require.Equal(t, 30*time.Second, cfg.Client.Timeout)
	require.False(t, cfg.Client.LegacyTextPut)

	require.Equal(t, "cursor", cfg.Pagination.CursorParam)
	require.Equal(t, 5, cfg.Pagination.MaxFailedPages)
	require.Equal(t, time.Second, cfg.Pagination.InitialBackoff)
	require.Equal(t, 30*time.Second, cfg.Pagination.MaxBackoff)
	require.Equal(t, 2.0, cfg.Pagination.BackoffMultiplier)

	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, ":8080", cfg.Proxy.Listen)
	require.Equal(t, "https", cfg.Proxy.UpstreamScheme)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WEBREQ_RATE_LIMIT_RATE", "7")
	t.Setenv("WEBREQ_RATE_LIMIT_PERIOD", "250ms")
	t.Setenv("WEBREQ_CLIENT_LEGACY_TEXT_PUT", "true")
	t.Setenv("WEBREQ_PAGINATION_CURSOR_PARAM", "after")
	t.Setenv("WEBREQ_LOGGING_LEVEL", "debug")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	require.Equal(t, 7, cfg.RateLimit.Rate)
	require.Equal(t, 250*time.Millisecond, cfg.RateLimit.Period)
	require.True(t, cfg.Client.LegacyTextPut)
	require.Equal(t, "after", cfg.Pagination.CursorParam)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webreq.yaml")
	content := `
rate_limit:
  rate: 20
  period: 2s
  backend: Redis
  redis_addr: redis:6379
pagination:
  max_failed_pages: 2
  initial_backoff: 100ms
  max_backoff: 1s
proxy:
  upstream_host: api.example.com
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := NewViper()
	require.NoError(t, ReadFile(v, path))

	cfg, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, 20, cfg.RateLimit.Rate)
	require.Equal(t, 2*time.Second, cfg.RateLimit.Period)
	require.Equal(t, BackendRedis, cfg.RateLimit.Backend)
	require.Equal(t, "redis:6379", cfg.RateLimit.RedisAddr)
	require.Equal(t, 2, cfg.Pagination.MaxFailedPages)
	require.Equal(t, 100*time.Millisecond, cfg.Pagination.InitialBackoff)
	require.Equal(t, "api.example.com", cfg.Proxy.UpstreamHost)
}

func TestReadFile_Missing(t *testing.T) {
	v := NewViper()
	require.NoError(t, ReadFile(v, ""))
	require.Error(t, ReadFile(v, filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(NewViper())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:   "zero rate is allowed",
			mutate: func(c *Config) { c.RateLimit.Rate = 0 },
		},
		{
			name:    "negative rate",
			mutate:  func(c *Config) { c.RateLimit.Rate = -1 },
			wantErr: "rate_limit: ratelimit: rate must not be negative",
		},
		{
			name:    "zero period",
			mutate:  func(c *Config) { c.RateLimit.Period = 0 },
			wantErr: "rate_limit:",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.RateLimit.Backend = "memcached" },
			wantErr: "rate_limit.backend",
		},
		{
			name: "redis without address",
			mutate: func(c *Config) {
				c.RateLimit.Backend = BackendRedis
				c.RateLimit.RedisAddr = ""
			},
			wantErr: "rate_limit.redis_addr is required",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Client.Timeout = -time.Second },
			wantErr: "client.timeout",
		},
		{
			name:    "backoff inverted",
			mutate:  func(c *Config) { c.Pagination.InitialBackoff = time.Minute },
			wantErr: "exceeds max_backoff",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "bad upstream scheme",
			mutate:  func(c *Config) { c.Proxy.UpstreamScheme = "ftp" },
			wantErr: "proxy.upstream_scheme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConversions(t *testing.T) {
	cfg, err := Load(NewViper())
	require.NoError(t, err)
	cfg.Client.LegacyTextPut = true
	cfg.Logging.Level = "warn"

	gate := ratelimit.NewDefaultGate(zerolog.Nop())
	clientCfg := cfg.ClientConfig(gate)
	require.Same(t, gate, clientCfg.Gate)
	require.True(t, clientCfg.LegacyTextPut)
	require.Equal(t, "webreq/0.1.0", clientCfg.UserAgent)

	drainCfg := cfg.DrainerConfig()
	require.Equal(t, "cursor", drainCfg.CursorParam)
	require.Equal(t, 5, drainCfg.MaxFailedPages)

	buf := &bytes.Buffer{}
	logCfg := cfg.LoggingConfig(buf)
	require.Equal(t, logging.LevelWarn, logCfg.Level)
	require.Same(t, buf, logCfg.Output)

	require.Equal(t, ratelimit.Config{Rate: 100, Period: time.Second}, cfg.RateLimit.Window())
}

// Package config loads webreq configuration from defaults, an optional
// YAML file and WEBREQ_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Sternrassler/webreq/pkg/client"
	"github.com/Sternrassler/webreq/pkg/logging"
	"github.com/Sternrassler/webreq/pkg/pagination"
	"github.com/Sternrassler/webreq/pkg/ratelimit"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g.
// WEBREQ_RATE_LIMIT_RATE.
const EnvPrefix = "WEBREQ"

// Limiter backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the complete webreq configuration.
type Config struct {
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" yaml:"rate_limit"`
	Client     ClientConfig     `mapstructure:"client" yaml:"client"`
	Pagination PaginationConfig `mapstructure:"pagination" yaml:"pagination"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Proxy      ProxyConfig      `mapstructure:"proxy" yaml:"proxy"`
}

// RateLimitConfig selects and sizes the admission limiter.
type RateLimitConfig struct {
	Rate         int           `mapstructure:"rate" yaml:"rate"`
	Period       time.Duration `mapstructure:"period" yaml:"period"`
	Backend      string        `mapstructure:"backend" yaml:"backend"`
	RedisAddr    string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisKey     string        `mapstructure:"redis_key" yaml:"redis_key"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// ClientConfig configures the request invoker.
type ClientConfig struct {
	UserAgent     string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	LegacyTextPut bool          `mapstructure:"legacy_text_put" yaml:"legacy_text_put"`
}

// PaginationConfig configures the page drainers.
type PaginationConfig struct {
	CursorParam       string        `mapstructure:"cursor_param" yaml:"cursor_param"`
	MaxFailedPages    int           `mapstructure:"max_failed_pages" yaml:"max_failed_pages"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// ProxyConfig configures the forwarding proxy.
type ProxyConfig struct {
	Listen          string        `mapstructure:"listen" yaml:"listen"`
	UpstreamScheme  string        `mapstructure:"upstream_scheme" yaml:"upstream_scheme"`
	UpstreamHost    string        `mapstructure:"upstream_host" yaml:"upstream_host"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// NewViper returns a viper instance with defaults and environment
// overrides wired up.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every configuration key with its default value.
func SetDefaults(v *viper.Viper) {
	window := ratelimit.DefaultConfig()
	v.SetDefault("rate_limit.rate", window.Rate)
	v.SetDefault("rate_limit.period", window.Period.String())
	v.SetDefault("rate_limit.backend", BackendMemory)
	v.SetDefault("rate_limit.redis_addr", "localhost:6379")
	v.SetDefault("rate_limit.redis_key", ratelimit.RedisKeyWindow)
	v.SetDefault("rate_limit.poll_interval", ratelimit.DefaultPollInterval.String())

	v.SetDefault("client.user_agent", "webreq/0.1.0")
	v.SetDefault("client.timeout", "30s")
	v.SetDefault("client.legacy_text_put", false)

	drain := pagination.DefaultConfig()
	v.SetDefault("pagination.cursor_param", drain.CursorParam)
	v.SetDefault("pagination.max_failed_pages", drain.MaxFailedPages)
	v.SetDefault("pagination.initial_backoff", drain.InitialBackoff.String())
	v.SetDefault("pagination.max_backoff", drain.MaxBackoff.String())
	v.SetDefault("pagination.backoff_multiplier", drain.BackoffMultiplier)

	v.SetDefault("logging.level", string(logging.LevelInfo))
	v.SetDefault("logging.pretty", false)

	v.SetDefault("proxy.listen", ":8080")
	v.SetDefault("proxy.upstream_scheme", "https")
	v.SetDefault("proxy.upstream_host", "")
	v.SetDefault("proxy.request_timeout", "30s")
	v.SetDefault("proxy.shutdown_timeout", "10s")
}

// ReadFile merges a YAML config file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

// Load decodes v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if err := c.RateLimit.Window().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("rate_limit: %w", err))
	}
	switch c.RateLimit.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RateLimit.RedisAddr == "" {
			errs = append(errs, errors.New("rate_limit.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("rate_limit.backend must be %q or %q (got %q)", BackendMemory, BackendRedis, c.RateLimit.Backend))
	}
	if c.RateLimit.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.poll_interval must be positive (got %s)", c.RateLimit.PollInterval))
	}

	if c.Client.Timeout < 0 {
		errs = append(errs, fmt.Errorf("client.timeout must not be negative (got %s)", c.Client.Timeout))
	}

	if c.Pagination.MaxFailedPages < 0 {
		errs = append(errs, fmt.Errorf("pagination.max_failed_pages must not be negative (got %d)", c.Pagination.MaxFailedPages))
	}
	if c.Pagination.InitialBackoff > c.Pagination.MaxBackoff && c.Pagination.MaxBackoff > 0 {
		errs = append(errs, fmt.Errorf("pagination.initial_backoff (%s) exceeds max_backoff (%s)", c.Pagination.InitialBackoff, c.Pagination.MaxBackoff))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	switch c.Proxy.UpstreamScheme {
	case "http", "https":
	default:
		errs = append(errs, fmt.Errorf("proxy.upstream_scheme must be http or https (got %q)", c.Proxy.UpstreamScheme))
	}

	return errors.Join(errs...)
}

// Window returns the in-memory limiter configuration.
func (c RateLimitConfig) Window() ratelimit.Config {
	return ratelimit.Config{Rate: c.Rate, Period: c.Period}
}

// ClientConfig returns the invoker configuration for gate.
func (c *Config) ClientConfig(gate *ratelimit.Gate) client.Config {
	cfg := client.DefaultConfig(gate)
	cfg.UserAgent = c.Client.UserAgent
	cfg.Timeout = c.Client.Timeout
	cfg.LegacyTextPut = c.Client.LegacyTextPut
	return cfg
}

// DrainerConfig returns the drainer configuration.
func (c *Config) DrainerConfig() pagination.Config {
	return pagination.Config{
		CursorParam:       c.Pagination.CursorParam,
		MaxFailedPages:    c.Pagination.MaxFailedPages,
		InitialBackoff:    c.Pagination.InitialBackoff,
		MaxBackoff:        c.Pagination.MaxBackoff,
		BackoffMultiplier: c.Pagination.BackoffMultiplier,
	}
}

// LoggingConfig returns the logger configuration writing to out.
func (c *Config) LoggingConfig(out io.Writer) logging.Config {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.Config{
		Level:  level,
		Pretty: c.Logging.Pretty,
		Output: out,
	}
}

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/webreq/internal/config"
	"github.com/Sternrassler/webreq/pkg/client"
	"github.com/Sternrassler/webreq/pkg/logging"
	"github.com/Sternrassler/webreq/pkg/pagination"
	"github.com/Sternrassler/webreq/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the state shared by every subcommand once the persistent
// pre-run has loaded configuration.
type app struct {
	v       *viper.Viper
	cfgFile string

	cfg    *config.Config
	gate   *ratelimit.Gate
	client *client.Client
	redis  *redis.Client
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "webreq",
		Short: "Rate-limited HTTP requests and pagination draining",
		Long: `webreq sends HTTP requests through a sliding-window rate limiter.

Every request, whether from invoke, fetch or the proxy, takes one
admission from the same limiter. The limiter lives in memory or, with
--limiter redis, in a Redis sorted set shared by several processes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context(), cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	defaults := ratelimit.DefaultConfig()
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	flags.Int("rate", defaults.Rate, "maximum requests per period")
	flags.Duration("period", defaults.Period, "length of the sliding window")
	flags.String("limiter", config.BackendMemory, "limiter backend: memory or redis")
	flags.String("redis-addr", "localhost:6379", "Redis address for the redis limiter")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Bool("log-pretty", false, "human-readable console logs")

	bindFlags(a.v, flags.Lookup, map[string]string{
		"rate_limit.rate":       "rate",
		"rate_limit.period":     "period",
		"rate_limit.backend":    "limiter",
		"rate_limit.redis_addr": "redis-addr",
		"logging.level":         "log-level",
		"logging.pretty":        "log-pretty",
	})

	cmd.AddCommand(newInvokeCmd(a))
	cmd.AddCommand(newFetchCmd(a))
	cmd.AddCommand(newProxyCmd(a))

	return cmd
}

// init loads configuration, sets up logging and builds the gate and client.
func (a *app) init(ctx context.Context, logOut io.Writer) error {
	if err := config.ReadFile(a.v, a.cfgFile); err != nil {
		return err
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logging.Setup(cfg.LoggingConfig(logOut))
	a.logger = logging.NewLogger(logging.ComponentCLI)

	limiter, err := a.newLimiter(ctx)
	if err != nil {
		return err
	}

	a.gate = ratelimit.NewGate(limiter, logging.NewLogger(logging.ComponentRateLimit))
	a.gate.PollInterval = cfg.RateLimit.PollInterval

	a.client, err = client.New(cfg.ClientConfig(a.gate))
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	a.logger.Debug().
		Str("limiter", cfg.RateLimit.Backend).
		Int("rate", cfg.RateLimit.Rate).
		Dur("period", cfg.RateLimit.Period).
		Msg("Client ready")
	return nil
}

func (a *app) newLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	window := a.cfg.RateLimit.Window()

	if a.cfg.RateLimit.Backend != config.BackendRedis {
		w, err := ratelimit.NewSlidingWindow(window)
		if err != nil {
			return nil, err
		}
		return w, nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr: a.cfg.RateLimit.RedisAddr,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", a.cfg.RateLimit.RedisAddr, err)
	}
	a.logger.Info().Str("addr", a.cfg.RateLimit.RedisAddr).Msg("Connected to Redis")

	w, err := ratelimit.NewRedisWindow(a.redis, a.cfg.RateLimit.RedisKey, window, logging.NewLogger(logging.ComponentRateLimit))
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (a *app) drainer() *pagination.Drainer {
	return pagination.NewDrainer(a.client, a.cfg.DrainerConfig())
}

func (a *app) close() error {
	if a.client != nil {
		a.client.Close()
	}
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

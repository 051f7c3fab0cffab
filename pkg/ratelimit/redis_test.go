package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestNewRedisWindow_Validation(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer redisClient.Close()

	tests := []struct {
		name     string
		client   redis.Scripter
		config   Config
		wantErr  error
		errorMsg string
	}{
		{
			name:   "valid config",
			client: redisClient,
			config: DefaultConfig(),
		},
		{
			name:     "nil client",
			config:   DefaultConfig(),
			errorMsg: "redis client is required",
		},
		{
			name:    "invalid period",
			client:  redisClient,
			config:  Config{Rate: 1},
			wantErr: ErrInvalidPeriod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewRedisWindow(tt.client, "", tt.config, zerolog.Nop())

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.errorMsg != "":
				if err == nil || err.Error() != tt.errorMsg {
					t.Errorf("error = %v, want %q", err, tt.errorMsg)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if w.Key() != RedisKeyWindow {
					t.Errorf("Key() = %q, want %q", w.Key(), RedisKeyWindow)
				}
				if w.Config().Period != time.Second {
					t.Errorf("Period = %v, want 1s", w.Config().Period)
				}
			}
		})
	}
}

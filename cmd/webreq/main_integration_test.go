//go:build integration

package main

import (
	"context"
	"net/http"
	"testing"

	"github.com/Sternrassler/webreq/internal/testutil"
	"github.com/Sternrassler/webreq/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestRedis(t *testing.T) (*redis.Client, string) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	addr := host + ":" + port.Port()
	redisClient := redis.NewClient(&redis.Options{Addr: addr})

	t.Cleanup(func() {
		redisClient.Close()
		redisC.Terminate(ctx)
	})

	return redisClient, addr
}

func TestInvokeCommand_RedisLimiter(t *testing.T) {
	redisClient, addr := setupTestRedis(t)

	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/ping", testutil.NewJSONResponse(http.StatusOK, `{"pong": true}`))

	for i := 0; i < 3; i++ {
		stdout, _, err := runCLI(t, "invoke", "--limiter", "redis", "--redis-addr", addr,
			"--scheme", "http", "--host", mock.Host(), "--path", "/ping")
		require.NoError(t, err)
		require.Equal(t, `{"pong": true}`, stdout)
	}

	// each invocation recorded its admission in the shared window
	count, err := redisClient.ZCard(context.Background(), ratelimit.RedisKeyWindow).Result()
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

func TestInvokeCommand_RedisUnreachable(t *testing.T) {
	_, _, err := runCLI(t, "invoke", "--limiter", "redis", "--redis-addr", "127.0.0.1:1",
		"--host", "example.com")
	require.ErrorContains(t, err, "failed to connect to Redis")
}

package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RedisImage is the image the integration Redis runs on. EXPIRE NX needs 7.0+.
const RedisImage = "redis:7-alpine"

var (
	sharedRedis     *redis.Client
	sharedRedisOnce sync.Once
	sharedRedisErr  error
)

// GetTestRedis returns a client for a shared Redis container. Each test
// gets a flushed database.
func GetTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedRedisOnce.Do(func() {
		sharedRedis, sharedRedisErr = setupTestRedis()
	})
	if sharedRedisErr != nil {
		t.Fatalf("Failed to setup test redis: %v", sharedRedisErr)
	}

	if err := sharedRedis.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to flush test redis: %v", err)
	}
	return sharedRedis
}

func setupTestRedis() (*redis.Client, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        RedisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping test redis: %w", err)
	}
	return client, nil
}

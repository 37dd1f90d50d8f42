//go:build integration

package admission

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/gia-report-checker/internal/testutil"
	"github.com/Sternrassler/gia-report-checker/pkg/batch"
	"github.com/Sternrassler/gia-report-checker/pkg/client"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestLimiter_Integration_SharedKey(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	cfg := DefaultConfig(1)
	cfg.Key = "shared"
	cfg.PollInterval = 10 * time.Millisecond

	a, err := NewLimiter(redisClient, cfg, logger)
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	b, err := NewLimiter(redisClient, cfg, logger)
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	ctx := context.Background()

	if err := a.Acquire(ctx); err != nil {
		t.Fatalf("a.Acquire() error = %v", err)
	}

	acquired := make(chan error, 1)
	go func() { acquired <- b.Acquire(ctx) }()

	select {
	case err := <-acquired:
		t.Fatalf("b.Acquire() returned %v while a holds the only slot", err)
	case <-time.After(100 * time.Millisecond):
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("a.Release() error = %v", err)
	}

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("b.Acquire() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("b.Acquire() did not return after a released")
	}

	state, err := b.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.InFlight != 1 {
		t.Errorf("InFlight = %d, want 1", state.InFlight)
	}
}

func TestLimiter_Integration_BatchRunners(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGIA()
	defer mock.Close()
	mock.SetDelay(20 * time.Millisecond)

	cfg := client.DefaultConfig("test-agent/1.0")
	cfg.LookupURL = mock.LookupURL()
	cfg.DataURL = mock.DataURL()
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	limCfg := DefaultConfig(2)
	limCfg.Key = "runners"
	limCfg.PollInterval = 5 * time.Millisecond

	nos := []string{"1", "2", "3", "4", "5", "6"}
	var wg sync.WaitGroup
	results := make([]*batch.Result, 3)
	for i := range results {
		lim, err := NewLimiter(redisClient, limCfg, logger)
		if err != nil {
			t.Fatalf("NewLimiter() error = %v", err)
		}
		runner := batch.NewRunner(c, batch.Config{MaxConcurrency: 2, Gate: lim, Logger: &logger})

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = runner.Run(context.Background(), nos)
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if got := len(r.Successes()); got != len(nos) {
			t.Errorf("runner %d: Successes() = %d, want %d", i, got, len(nos))
		}
	}
	// Each check holds its slot across both stages, one request at a time.
	if got := mock.GetMaxInFlight(); got > 2 {
		t.Errorf("server saw %d concurrent requests across runners, want <= 2", got)
	}
}

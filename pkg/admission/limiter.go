package admission

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for admission control.
var (
	giaAdmissionInflight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gia_admission_inflight",
		Help: "Checks admitted across all processes sharing the counter, as last observed",
	}, []string{"key"})

	giaAdmissionWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gia_admission_waits_total",
		Help: "Total number of acquisitions that had to wait for a free slot",
	}, []string{"key"})

	giaAdmissionWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gia_admission_wait_seconds",
		Help:    "Time spent waiting for admission",
		Buckets: prometheus.DefBuckets,
	}, []string{"key"})
)

// The shared state is a sorted set of lease IDs scored by their expiry in
// Redis server milliseconds. Expired leases are pruned before every count, so
// a lease left behind by a crashed process frees its slot after LeaseTTL no
// matter how busy the other holders keep the key.

// acquireScript adds a lease only while fewer than the limit are live,
// so a full set is never observed above its limit by other processes.
var acquireScript = redis.NewScript(`
local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)
local ttl = tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now)
local n = redis.call("ZCARD", KEYS[1])
if n >= tonumber(ARGV[1]) then
  return -1
end
redis.call("ZADD", KEYS[1], now + ttl, ARGV[3])
if redis.call("PTTL", KEYS[1]) < ttl then
  redis.call("PEXPIRE", KEYS[1], ttl)
end
return n + 1
`)

// releaseScript drops a lease and returns the number still live.
var releaseScript = redis.NewScript(`
local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now)
return redis.call("ZCARD", KEYS[1])
`)

// Config holds limiter configuration.
type Config struct {
	// Key names the shared counter (default "default")
	Key string

	// Limit is the maximum number of checks admitted together
	Limit int

	// PollInterval is how often a waiting Acquire retries
	PollInterval time.Duration

	// LeaseTTL bounds how long a single acquisition holds its slot
	LeaseTTL time.Duration
}

// DefaultConfig returns the default configuration for the given limit.
func DefaultConfig(limit int) Config {
	return Config{
		Key:          DefaultKey,
		Limit:        limit,
		PollInterval: DefaultPollInterval,
		LeaseTTL:     DefaultLeaseTTL,
	}
}

// Limiter is a counting semaphore shared through Redis.
type Limiter struct {
	redis  *redis.Client
	key    string
	config Config
	logger zerolog.Logger

	mu     sync.Mutex
	leases []string // held by this process, any of them may be released
}

// NewLimiter creates a new admission limiter.
func NewLimiter(redisClient *redis.Client, cfg Config, logger zerolog.Logger) (*Limiter, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Limit < 1 {
		return nil, fmt.Errorf("limit must be >= 1 (got %d)", cfg.Limit)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}

	key := RedisKey(cfg.Key)
	return &Limiter{
		redis:  redisClient,
		key:    key,
		config: cfg,
		logger: logger.With().Str("component", "admission").Str("key", key).Logger(),
	}, nil
}

// Key returns the Redis key of the shared counter.
func (l *Limiter) Key() string {
	return l.key
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	waited := false

	lease := uuid.NewString()

	for {
		n, err := acquireScript.Run(ctx, l.redis, []string{l.key}, l.config.Limit, l.config.LeaseTTL.Milliseconds(), lease).Int()
		if err != nil {
			return fmt.Errorf("acquire admission slot: %w", err)
		}

		if n >= 0 {
			l.mu.Lock()
			l.leases = append(l.leases, lease)
			l.mu.Unlock()

			giaAdmissionInflight.WithLabelValues(l.key).Set(float64(n))
			if waited {
				giaAdmissionWaitDuration.WithLabelValues(l.key).Observe(time.Since(start).Seconds())
				l.logger.Debug().
					Dur("waited", time.Since(start)).
					Int("in_flight", n).
					Msg("Admission granted after wait")
			}
			return nil
		}

		if !waited {
			waited = true
			giaAdmissionWaitsTotal.WithLabelValues(l.key).Inc()
			l.logger.Debug().
				Int("limit", l.config.Limit).
				Msg("Admission saturated - waiting for a free slot")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.config.PollInterval):
		}
	}
}

// Release frees a slot taken by Acquire. It is a no-op when this process
// holds no lease.
func (l *Limiter) Release(ctx context.Context) error {
	l.mu.Lock()
	if len(l.leases) == 0 {
		l.mu.Unlock()
		return nil
	}
	lease := l.leases[len(l.leases)-1]
	l.leases = l.leases[:len(l.leases)-1]
	l.mu.Unlock()

	n, err := releaseScript.Run(ctx, l.redis, []string{l.key}, lease).Int()
	if err != nil {
		return fmt.Errorf("release admission slot: %w", err)
	}
	giaAdmissionInflight.WithLabelValues(l.key).Set(float64(n))
	return nil
}

// GetState retrieves the current lease state from Redis.
// Expired leases and a missing key read as zero checks in flight.
func (l *Limiter) GetState(ctx context.Context) (*State, error) {
	now, err := l.redis.Time(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("get redis time: %w", err)
	}

	n, err := l.redis.ZCount(ctx, l.key, "("+strconv.FormatInt(now.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return nil, fmt.Errorf("get in-flight count: %w", err)
	}

	ttl, err := l.redis.PTTL(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("get counter ttl: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}

	return &State{
		Key:      l.key,
		InFlight: int(n),
		Limit:    l.config.Limit,
		TTL:      ttl,
	}, nil
}

// Reset deletes every lease under the key, including those of other processes.
func (l *Limiter) Reset(ctx context.Context) error {
	if err := l.redis.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("reset admission counter: %w", err)
	}
	l.mu.Lock()
	l.leases = nil
	l.mu.Unlock()
	l.logger.Info().Msg("Admission counter reset")
	return nil
}

// Package admission bounds report checks across processes with leases in Redis.
// Several checker instances sharing one key never have more than Limit checks
// in flight together, which keeps the combined load on the report service low
// enough to avoid being blocked.
package admission

import (
	"fmt"
	"time"
)

// Redis keys for admission state storage.
const (
	// RedisKeyPrefix prefixes every admission key.
	RedisKeyPrefix = "gia:admission:"

	// DefaultKey is the counter name used when none is configured.
	DefaultKey = "default"
)

// Defaults for Limiter configuration.
const (
	DefaultPollInterval = 250 * time.Millisecond

	// DefaultLeaseTTL expires a lease left behind by a crashed process.
	// A single fetch must finish well within it.
	DefaultLeaseTTL = 5 * time.Minute
)

// RedisKey returns the full Redis key for an admission counter name.
func RedisKey(name string) string {
	if name == "" {
		name = DefaultKey
	}
	return RedisKeyPrefix + name
}

// State is a snapshot of a shared admission counter.
type State struct {
	// Key is the full Redis key of the counter
	Key string `json:"key"`

	// InFlight is the number of checks currently admitted across all processes
	InFlight int `json:"in_flight"`

	// Limit is the configured maximum of this process
	Limit int `json:"limit"`

	// TTL is the remaining lifetime of the lease set, 0 if it has none
	TTL time.Duration `json:"ttl"`
}

// Saturated returns true if no further check would be admitted.
func (s *State) Saturated() bool {
	return s.InFlight >= s.Limit
}

// Available returns the number of checks that could still be admitted.
// Returns 0 if the counter is at or above the limit.
func (s *State) Available() int {
	if s.Saturated() {
		return 0
	}
	return s.Limit - s.InFlight
}

func (s *State) String() string {
	return fmt.Sprintf("%s %d/%d", s.Key, s.InFlight, s.Limit)
}

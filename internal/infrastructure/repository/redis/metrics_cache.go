// Package redis implements the hot metrics cache: the latest evaluation
// snapshot per run, served to dashboards without touching the database.
package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/openrmt/openrmt/internal/observability/logging"
	"github.com/openrmt/openrmt/pkg/errors"
)

// Snapshot is the latest evaluation state of a run.
type Snapshot struct {
	RunID     string    `json:"run_id"`
	Epoch     int       `json:"epoch"`
	Step      int       `json:"step"`
	Loss      float64   `json:"loss"`
	DistMean  float64   `json:"dist_mean"`
	Acc       float64   `json:"acc"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MetricsCache stores run snapshots in Redis with a TTL.
type MetricsCache struct {
	client *goredis.Client
	ttl    time.Duration
	logger logging.Logger
}

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewMetricsCache connects to Redis and verifies the connection.
func NewMetricsCache(ctx context.Context, cfg Config, logger logging.Logger) (*MetricsCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCacheFailed, "failed to connect to redis")
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &MetricsCache{client: client, ttl: ttl, logger: logger}, nil
}

func snapshotKey(runID string) string {
	return "openrmt:run:" + runID + ":snapshot"
}

// Put stores the latest snapshot for a run.
func (c *MetricsCache) Put(ctx context.Context, s *Snapshot) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	buf, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.CodeCacheFailed, "failed to encode snapshot")
	}
	if err := c.client.Set(ctx, snapshotKey(s.RunID), buf, c.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.CodeCacheFailed, "failed to store snapshot")
	}
	return nil
}

// Get loads the latest snapshot for a run, or nil when none is cached.
func (c *MetricsCache) Get(ctx context.Context, runID string) (*Snapshot, error) {
	buf, err := c.client.Get(ctx, snapshotKey(runID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCacheFailed, "failed to load snapshot")
	}

	var s Snapshot
	if err := json.Unmarshal(buf, &s); err != nil {
		return nil, errors.Wrap(err, errors.CodeCacheFailed, "failed to decode snapshot")
	}
	return &s, nil
}

// Delete evicts a run's snapshot.
func (c *MetricsCache) Delete(ctx context.Context, runID string) error {
	if err := c.client.Del(ctx, snapshotKey(runID)).Err(); err != nil {
		return errors.Wrap(err, errors.CodeCacheFailed, "failed to delete snapshot")
	}
	return nil
}

// Close releases the client.
func (c *MetricsCache) Close() error {
	return c.client.Close()
}

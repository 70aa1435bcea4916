package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// DefaultKeyPrefix namespaces window hashes in Redis.
const DefaultKeyPrefix = "ekaya-ask:metrics:"

const (
	fieldTotal     = "total"
	fieldSucceeded = "succeeded"
	fieldFailed    = "failed"
)

// RedisRecorder keeps one hash per period so that every replica of the
// service increments the same counters.
type RedisRecorder struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

var _ Recorder = (*RedisRecorder)(nil)

// NewRedisRecorder creates a Redis-backed recorder. Empty prefix and
// non-positive retention take the defaults.
func NewRedisRecorder(client redis.UniversalClient, prefix string, retention time.Duration) *RedisRecorder {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisRecorder{client: client, prefix: prefix, retention: retention, now: time.Now}
}

func (r *RedisRecorder) key(period string) string {
	return r.prefix + period
}

// Record increments the period's counters atomically. The expiry is set
// only when the window is created.
func (r *RedisRecorder) Record(ctx context.Context, rec models.OutcomeRecord) error {
	key := r.key(periodOf(rec, r.now()))
	outcome := fieldFailed
	if rec.Success {
		outcome = fieldSucceeded
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldTotal, 1)
		pipe.HIncrBy(ctx, key, outcome, 1)
		pipe.ExpireNX(ctx, key, r.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record outcome in %s: %w", key, err)
	}
	return nil
}

func (r *RedisRecorder) Window(ctx context.Context, period string) (*models.MetricsWindow, error) {
	key := r.key(period)

	var (
		fields *redis.MapStringStringCmd
		ttl    *redis.DurationCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read window %s: %w", key, err)
	}

	w := &models.MetricsWindow{Period: period}
	for name, dst := range map[string]*int64{
		fieldTotal:     &w.Total,
		fieldSucceeded: &w.Succeeded,
		fieldFailed:    &w.Failed,
	} {
		raw, ok := fields.Val()[name]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("window %s field %s: %w", key, name, err)
		}
		*dst = n
	}
	if d := ttl.Val(); d > 0 {
		w.ExpiresAt = r.now().Add(d)
	}
	return w, nil
}

package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps cumulative per-service counts in Redis hashes, plus per-minute buckets that expire.
// Keys:
//
//	<prefix>:total:<service>               HINCRBY <kind>
//	<prefix>:minute:<service>:<yyyymmddhhmm> HINCRBY <kind>, wait_ms, run_ms (expire after ttl)
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix (default "dispatch:stats").
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithBucketTTL sets how long per-minute buckets are kept (default 24h).
func WithBucketTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

// NewRedisStore returns a RedisStore using rdb.
func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "dispatch:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements Recorder.
func (s *RedisStore) Record(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Kind)
	totalKey := s.TotalKey(ev.Service)
	bucketKey := fmt.Sprintf("%s:minute:%s:%s", s.prefix, ev.Service, at.UTC().Format("200601021504"))

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if ev.QueueWait > 0 {
		pipe.HIncrBy(ctx, bucketKey, "wait_ms", ev.QueueWait.Milliseconds())
	}
	if ev.Duration > 0 {
		pipe.HIncrBy(ctx, bucketKey, "run_ms", ev.Duration.Milliseconds())
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Totals reads the cumulative counts for service.
func (s *RedisStore) Totals(ctx context.Context, service string) (Counts, error) {
	m, err := s.rdb.HGetAll(ctx, s.TotalKey(service)).Result()
	if err != nil {
		return Counts{}, err
	}
	parse := func(k Kind) int64 {
		n, _ := strconv.ParseInt(m[string(k)], 10, 64)
		return n
	}
	return Counts{
		Enqueued:   parse(KindEnqueued),
		Dispatched: parse(KindDispatched),
		Failed:     parse(KindFailed),
		Rejected:   parse(KindRejected),
	}, nil
}

// TotalKey returns the hash key holding cumulative counts for service.
func (s *RedisStore) TotalKey(service string) string {
	return s.prefix + ":total:" + service
}

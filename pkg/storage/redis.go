package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gt8004/gt8004-go/pkg/cache"
	"github.com/gt8004/gt8004-go/pkg/telemetry"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by GetEntry for unknown or expired ids.
var ErrNotFound = errors.New("entry not found")

const (
	defaultLimit    = 100
	defaultPageSize = 500
	timelineIndex   = "entries:timeline"
	// scratchTTL bounds how long an intersection key outlives a crashed query.
	scratchTTL = time.Minute
)

// RedisStore implements Store using Redis with time-series indexes.
type RedisStore struct {
	rdb      *cache.Client
	ttl      time.Duration // How long to keep entries (e.g., 30 days)
	pageSize int
}

// NewRedisStore creates a new Redis-backed archive.
func NewRedisStore(rdb *cache.Client, retention time.Duration) *RedisStore {
	if retention == 0 {
		retention = 30 * 24 * time.Hour // Default 30 days
	}
	return &RedisStore{
		rdb:      rdb,
		ttl:      retention,
		pageSize: defaultPageSize,
	}
}

func entryKey(id string) string {
	return "entry:" + id
}

// indexesFor lists every sorted set an entry belongs to.
func indexesFor(e *telemetry.LogEntry) []string {
	keys := []string{timelineIndex}
	if e.CustomerID != nil {
		keys = append(keys, "entries:customer:"+*e.CustomerID)
	}
	if e.ToolName != nil {
		keys = append(keys, "entries:tool:"+*e.ToolName)
	}
	return keys
}

// indexFor lists the sorted sets whose intersection serves the filters.
func indexFor(f Filters) []string {
	var keys []string
	if f.CustomerID != "" {
		keys = append(keys, "entries:customer:"+f.CustomerID)
	}
	if f.ToolName != "" {
		keys = append(keys, "entries:tool:"+f.ToolName)
	}
	if len(keys) == 0 {
		keys = append(keys, timelineIndex)
	}
	return keys
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// SaveEntry stores an entry and adds it to its indexes, trimming anything
// older than the retention window.
func (s *RedisStore) SaveEntry(ctx context.Context, entry *telemetry.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", entry.RequestID, err)
	}

	ts := float64(entry.Timestamp.UnixMilli())
	cutoff := score(time.Now().Add(-s.ttl))

	_, err = s.rdb.Redis().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entryKey(entry.RequestID), data, s.ttl)
		for _, index := range indexesFor(entry) {
			pipe.ZAdd(ctx, index, redis.Z{Score: ts, Member: entry.RequestID})
			pipe.ZRemRangeByScore(ctx, index, "-inf", "("+cutoff)
			pipe.Expire(ctx, index, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save entry %s: %w", entry.RequestID, err)
	}
	return nil
}

// GetEntry retrieves a single entry by request id.
func (s *RedisStore) GetEntry(ctx context.Context, id string) (*telemetry.LogEntry, error) {
	data, err := s.rdb.Get(ctx, entryKey(id))
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var entry telemetry.LogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", id, err)
	}
	return &entry, nil
}

// ListEntries returns the newest entries matching the filters. Offset and
// Limit count matching entries, not index positions.
func (s *RedisStore) ListEntries(ctx context.Context, filters Filters) ([]*telemetry.LogEntry, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	skip := filters.Offset

	entries := make([]*telemetry.LogEntry, 0)
	err := s.scan(ctx, filters, func(e *telemetry.LogEntry) bool {
		if skip > 0 {
			skip--
			return true
		}
		entries = append(entries, e)
		return len(entries) < limit
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetUsageStats aggregates a customer's entries, or every entry when
// customerID is empty, over the whole window.
func (s *RedisStore) GetUsageStats(ctx context.Context, customerID string, from, to time.Time) (*UsageStats, error) {
	stats := newUsageStats()
	err := s.scan(ctx, Filters{CustomerID: customerID, From: from, To: to}, func(e *telemetry.LogEntry) bool {
		stats.add(e)
		return true
	})
	if err != nil {
		return nil, err
	}
	stats.finish()
	return stats, nil
}

// Ping checks Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Redis().Ping(ctx).Err()
}

// scan walks the index for f newest first, one page at a time, and hands
// every matching entry to fn until fn returns false or the window runs out.
func (s *RedisStore) scan(ctx context.Context, f Filters, fn func(*telemetry.LogEntry) bool) error {
	index, release, err := s.openIndex(ctx, indexFor(f))
	if err != nil {
		return err
	}
	defer release()

	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf", Count: int64(s.pageSize)}
	if !f.From.IsZero() {
		rng.Min = score(f.From)
	}
	if !f.To.IsZero() {
		rng.Max = score(f.To)
	}

	// Entries saved mid-scan shift later pages; seen keeps them from being
	// reported twice.
	seen := make(map[string]struct{})
	for {
		ids, err := s.rdb.Redis().ZRevRangeByScore(ctx, index, rng).Result()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		entries, err := s.fetch(ctx, ids)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if _, dup := seen[e.RequestID]; dup {
				continue
			}
			seen[e.RequestID] = struct{}{}
			if matches(f, e) && !fn(e) {
				return nil
			}
		}

		if len(ids) < s.pageSize {
			return nil
		}
		rng.Offset += int64(len(ids))
	}
}

// openIndex returns a sorted set holding the intersection of keys. A single
// key is used as-is; several are combined into a short-lived scratch key
// that release deletes.
func (s *RedisStore) openIndex(ctx context.Context, keys []string) (string, func(), error) {
	if len(keys) == 1 {
		return keys[0], func() {}, nil
	}

	dest := "entries:tmp:" + uuid.NewString()
	_, err := s.rdb.Redis().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZInterStore(ctx, dest, &redis.ZStore{Keys: keys, Aggregate: "MAX"})
		pipe.Expire(ctx, dest, scratchTTL)
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("intersect %v: %w", keys, err)
	}

	release := func() {
		_ = s.rdb.Redis().Del(context.WithoutCancel(ctx), dest).Err()
	}
	return dest, release, nil
}

// fetch loads entries by id in index order. Ids whose entry has expired or
// cannot be decoded are skipped.
func (s *RedisStore) fetch(ctx context.Context, ids []string) ([]*telemetry.LogEntry, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = entryKey(id)
	}
	values, err := s.rdb.Redis().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]*telemetry.LogEntry, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Expired between the index read and the fetch.
			continue
		}
		var e telemetry.LogEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

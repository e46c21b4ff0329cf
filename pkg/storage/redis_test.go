package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gt8004/gt8004-go/pkg/cache"
	"github.com/gt8004/gt8004-go/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(cache.Wrap(rdb), 24*time.Hour), mr
}

// seed saves entries one second apart, oldest first, ending a minute ago.
func seed(t *testing.T, s *RedisStore, entries ...*telemetry.LogEntry) time.Time {
	t.Helper()
	start := time.Now().Add(-time.Minute - time.Duration(len(entries))*time.Second).Truncate(time.Millisecond)
	for i, e := range entries {
		e.Timestamp = start.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.SaveEntry(context.Background(), e))
	}
	return start
}

func ids(entries []*telemetry.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.RequestID
	}
	return out
}

func TestRedisSaveAndGet(t *testing.T) {
	s, _ := newTestRedisStore(t)
	seed(t, s, entry("r1", "c1", "chat", 200, 12))

	got, err := s.GetEntry(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "c1", telemetry.Value(got.CustomerID))
	assert.Equal(t, 12.0, got.ResponseMs)

	_, err = s.GetEntry(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Ping(context.Background()))
}

func TestRedisListNewestFirst(t *testing.T) {
	s, _ := newTestRedisStore(t)
	var entries []*telemetry.LogEntry
	for i := 0; i < 6; i++ {
		entries = append(entries, entry(fmt.Sprintf("r%d", i), "c1", "chat", 200, 1))
	}
	seed(t, s, entries...)

	got, err := s.ListEntries(context.Background(), Filters{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"r5", "r4", "r3"}, ids(got))

	got, err = s.ListEntries(context.Background(), Filters{Limit: 3, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r0"}, ids(got))
}

func TestRedisListFiltersAcrossPages(t *testing.T) {
	s, _ := newTestRedisStore(t)
	s.pageSize = 4

	// Ten successes are newer than the two failures, so the first pages hold
	// nothing that matches.
	var entries []*telemetry.LogEntry
	entries = append(entries, entry("bad0", "c1", "chat", 500, 1), entry("bad1", "c1", "chat", 500, 1))
	for i := 0; i < 10; i++ {
		entries = append(entries, entry(fmt.Sprintf("ok%d", i), "c1", "chat", 200, 1))
	}
	seed(t, s, entries...)

	got, err := s.ListEntries(context.Background(), Filters{StatusCode: 500, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"bad1", "bad0"}, ids(got))

	got, err = s.ListEntries(context.Background(), Filters{StatusCode: 500, Offset: 1, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"bad0"}, ids(got))

	got, err = s.ListEntries(context.Background(), Filters{StatusCode: 200, Limit: 6})
	require.NoError(t, err)
	assert.Len(t, got, 6)
	assert.Equal(t, "ok9", got[0].RequestID)
}

func TestRedisListCustomerAndTool(t *testing.T) {
	s, mr := newTestRedisStore(t)
	s.pageSize = 2

	seed(t, s,
		entry("a-chat", "alice", "chat", 200, 1),
		entry("b-chat", "bob", "chat", 200, 1),
		entry("a-search", "alice", "search", 200, 1),
		entry("a-chat-2", "alice", "chat", 200, 1),
		entry("b-search", "bob", "search", 200, 1),
	)

	got, err := s.ListEntries(context.Background(), Filters{CustomerID: "alice", ToolName: "chat"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-chat-2", "a-chat"}, ids(got))

	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "entries:tmp:", "scratch key left behind")
	}
}

func TestRedisUsageStatsCoversWholeWindow(t *testing.T) {
	s, _ := newTestRedisStore(t)
	s.pageSize = 3

	var entries []*telemetry.LogEntry
	for i := 0; i < 10; i++ {
		customer := "c1"
		if i%2 == 1 {
			customer = "c2"
		}
		e := entry(fmt.Sprintf("r%d", i), customer, "chat", 200, float64(i))
		if i == 0 {
			amount := 0.5
			e.PaymentAmount = &amount
		}
		entries = append(entries, e)
	}
	start := seed(t, s, entries...)

	stats, err := s.GetUsageStats(context.Background(), "", start.Add(-time.Second), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalRequests)
	assert.InDelta(t, 4.5, stats.AvgResponseMs, 1e-9)
	assert.Equal(t, int64(1), stats.PaidRequests)
	assert.InDelta(t, 0.5, stats.Revenue, 1e-9)

	stats, err = s.GetUsageStats(context.Background(), "c1", start.Add(-time.Second), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalRequests)
	assert.Equal(t, map[string]int64{"chat": 5}, stats.ByTool)
}

func TestRedisWindowBounds(t *testing.T) {
	s, _ := newTestRedisStore(t)
	start := seed(t, s,
		entry("r0", "c1", "chat", 200, 1),
		entry("r1", "c1", "chat", 200, 1),
		entry("r2", "c1", "chat", 200, 1),
		entry("r3", "c1", "chat", 200, 1),
	)

	got, err := s.ListEntries(context.Background(), Filters{
		From: start.Add(time.Second),
		To:   start.Add(2 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r1"}, ids(got))

	stats, err := s.GetUsageStats(context.Background(), "", start.Add(3*time.Second), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalRequests)
}

func TestRedisSkipsExpiredEntries(t *testing.T) {
	s, mr := newTestRedisStore(t)
	seed(t, s,
		entry("r0", "c1", "chat", 200, 1),
		entry("r1", "c1", "chat", 200, 1),
	)
	mr.Del(entryKey("r1"))

	got, err := s.ListEntries(context.Background(), Filters{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r0"}, ids(got))
}

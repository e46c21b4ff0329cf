package storage

import (
	"context"
	"time"

	"github.com/gt8004/gt8004-go/pkg/telemetry"
)

// Store persists captured entries locally so an operator can inspect what the
// agent served without going through the remote ingestion service.
type Store interface {
	SaveEntry(ctx context.Context, entry *telemetry.LogEntry) error
	GetEntry(ctx context.Context, requestID string) (*telemetry.LogEntry, error)
	ListEntries(ctx context.Context, filters Filters) ([]*telemetry.LogEntry, error)

	GetUsageStats(ctx context.Context, customerID string, from, to time.Time) (*UsageStats, error)

	// Health check
	Ping(ctx context.Context) error
}

// matches applies the filters that the index lookup cannot.
func matches(f Filters, e *telemetry.LogEntry) bool {
	if f.StatusCode != 0 && e.StatusCode != f.StatusCode {
		return false
	}
	if f.ErrorsOnly && !e.IsError() {
		return false
	}
	if f.CustomerID != "" && telemetry.Value(e.CustomerID) != f.CustomerID {
		return false
	}
	if f.ToolName != "" && telemetry.Value(e.ToolName) != f.ToolName {
		return false
	}
	return true
}

// Summarize folds entries into usage statistics.
func Summarize(entries []*telemetry.LogEntry) *UsageStats {
	stats := newUsageStats()
	for _, e := range entries {
		stats.add(e)
	}
	stats.finish()
	return stats
}

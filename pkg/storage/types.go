package storage

import (
	"time"

	"github.com/gt8004/gt8004-go/pkg/telemetry"
)

// Filters narrows an archive query. Zero values mean "any".
type Filters struct {
	CustomerID string
	ToolName   string
	From       time.Time
	To         time.Time
	StatusCode int
	ErrorsOnly bool
	Limit      int
	Offset     int
}

// UsageStats aggregates archived entries over a time window.
type UsageStats struct {
	TotalRequests int64            `json:"total_requests"`
	Errors        int64            `json:"errors"`
	PaidRequests  int64            `json:"paid_requests"`
	Revenue       float64          `json:"revenue"`
	ByTool        map[string]int64 `json:"by_tool"`
	ByStatusCode  map[int]int64    `json:"by_status_code"`
	AvgResponseMs float64          `json:"avg_response_ms"`

	totalMs float64
}

func newUsageStats() *UsageStats {
	return &UsageStats{
		ByTool:       make(map[string]int64),
		ByStatusCode: make(map[int]int64),
	}
}

func (u *UsageStats) add(e *telemetry.LogEntry) {
	u.TotalRequests++
	u.ByStatusCode[e.StatusCode]++
	u.totalMs += e.ResponseMs

	if e.IsError() {
		u.Errors++
	}
	if e.ToolName != nil {
		u.ByTool[*e.ToolName]++
	}
	if e.PaymentAmount != nil {
		u.PaidRequests++
		u.Revenue += *e.PaymentAmount
	}
}

func (u *UsageStats) finish() {
	if u.TotalRequests > 0 {
		u.AvgResponseMs = u.totalMs / float64(u.TotalRequests)
	}
}

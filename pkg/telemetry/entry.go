package telemetry

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// SDKVersion is reported with every batch so the ingestion side can tell
// clients apart.
const SDKVersion = "0.1.0"

// LogEntry captures one observed request/response at the agent boundary.
// Optional fields are pointers so that "not observed" stays distinct from a
// zero value on the wire.
type LogEntry struct {
	RequestID        string    `json:"requestId"`
	CustomerID       *string   `json:"customerId,omitempty"`
	ToolName         *string   `json:"toolName,omitempty"`
	Method           string    `json:"method"`
	Path             string    `json:"path"`
	StatusCode       int       `json:"statusCode"`
	ResponseMs       float64   `json:"responseMs"`
	ErrorType        *string   `json:"errorType,omitempty"`
	PaymentAmount    *float64  `json:"x402Amount,omitempty"`
	PaymentTxHash    *string   `json:"x402TxHash,omitempty"`
	PaymentToken     *string   `json:"x402Token,omitempty"`
	PaymentPayer     *string   `json:"x402Payer,omitempty"`
	RequestBodySize  *int      `json:"requestBodySize,omitempty"`
	ResponseBodySize *int      `json:"responseBodySize,omitempty"`
	RequestBody      *string   `json:"requestBody,omitempty"`
	ResponseBody     *string   `json:"responseBody,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// LogBatch is the unit of network delivery.
type LogBatch struct {
	AgentID    string     `json:"agent_id"`
	SDKVersion string     `json:"sdk_version"`
	BatchID    string     `json:"batch_id"`
	Entries    []LogEntry `json:"entries"`
}

// NewRequestID returns a fresh random identifier for a request.
func NewRequestID() string {
	return uuid.NewString()
}

// NewBatch wraps entries in a batch with a newly generated batch id.
// The slice is used as-is; callers hand over ownership.
func NewBatch(agentID string, entries []LogEntry) LogBatch {
	return LogBatch{
		AgentID:    agentID,
		SDKVersion: SDKVersion,
		BatchID:    uuid.NewString(),
		Entries:    entries,
	}
}

// HasPayment reports whether any payment field was extracted.
func (e *LogEntry) HasPayment() bool {
	return e.PaymentAmount != nil || e.PaymentTxHash != nil || e.PaymentToken != nil || e.PaymentPayer != nil
}

// Normalize replaces values JSON cannot carry. A non-finite or negative
// ResponseMs becomes 0; a non-finite or non-positive PaymentAmount is
// dropped.
func (e *LogEntry) Normalize() {
	if math.IsNaN(e.ResponseMs) || math.IsInf(e.ResponseMs, 0) || e.ResponseMs < 0 {
		e.ResponseMs = 0
	}
	if a := e.PaymentAmount; a != nil && (math.IsNaN(*a) || math.IsInf(*a, 0) || *a <= 0) {
		e.PaymentAmount = nil
	}
}

// IsError reports whether the entry was classified as an error.
func (e *LogEntry) IsError() bool {
	return e.ErrorType != nil
}

// String returns a pointer to s, or nil when s is empty.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int returns a pointer to n.
func Int(n int) *int {
	return &n
}

// Value dereferences an optional string field.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

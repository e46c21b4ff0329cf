package telemetry

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestIDUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewRequestID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate request id %s", id)
		seen[id] = struct{}{}
	}
}

func TestNewBatchKeepsOrder(t *testing.T) {
	entries := []LogEntry{{RequestID: "e1"}, {RequestID: "e2"}, {RequestID: "e3"}}
	b := NewBatch("agent-1", entries)

	assert.Equal(t, "agent-1", b.AgentID)
	assert.Equal(t, SDKVersion, b.SDKVersion)
	assert.NotEmpty(t, b.BatchID)
	require.Len(t, b.Entries, 3)
	assert.Equal(t, "e1", b.Entries[0].RequestID)
	assert.Equal(t, "e3", b.Entries[2].RequestID)

	other := NewBatch("agent-1", entries)
	assert.NotEqual(t, b.BatchID, other.BatchID)
}

func TestWireNames(t *testing.T) {
	amount := 0.5
	e := LogEntry{
		RequestID:     "r1",
		Method:        "POST",
		Path:          "/chat",
		StatusCode:    200,
		PaymentAmount: &amount,
		PaymentTxHash: String("0xabc"),
		Timestamp:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	raw, err := json.Marshal(NewBatch("a", []LogEntry{e}))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "a", decoded["agent_id"])
	assert.Contains(t, decoded, "batch_id")

	entry := decoded["entries"].([]any)[0].(map[string]any)
	assert.Equal(t, "r1", entry["requestId"])
	assert.Equal(t, 0.5, entry["x402Amount"])
	assert.Equal(t, "0xabc", entry["x402TxHash"])
	assert.Equal(t, "2025-01-02T03:04:05Z", entry["timestamp"])
	assert.NotContains(t, entry, "customerId")
	assert.NotContains(t, entry, "x402Payer")
	assert.NotContains(t, entry, "responseBody")
}

func TestStringHelper(t *testing.T) {
	assert.Nil(t, String(""))
	assert.Equal(t, "x", Value(String("x")))
	assert.Equal(t, "", Value(nil))
}

func TestNormalizeClearsNonFiniteValues(t *testing.T) {
	inf := math.Inf(1)
	e := LogEntry{RequestID: "r1", ResponseMs: math.NaN(), PaymentAmount: &inf}
	e.Normalize()

	assert.Equal(t, 0.0, e.ResponseMs)
	assert.Nil(t, e.PaymentAmount)

	_, err := json.Marshal(e)
	assert.NoError(t, err)

	amount := 0.25
	e = LogEntry{ResponseMs: 12.5, PaymentAmount: &amount}
	e.Normalize()
	assert.Equal(t, 12.5, e.ResponseMs)
	require.NotNil(t, e.PaymentAmount)
	assert.Equal(t, 0.25, *e.PaymentAmount)

	e = LogEntry{ResponseMs: -3}
	e.Normalize()
	assert.Equal(t, 0.0, e.ResponseMs)
}

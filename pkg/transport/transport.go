package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gt8004/gt8004-go/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// IngestPath is appended to the configured endpoint.
const IngestPath = "/v1/ingest"

// ErrDeliveryFailed is returned by Flush when every attempt for a batch failed.
var ErrDeliveryFailed = errors.New("batch delivery failed")

// StatusError is an ingestion response outside the 2xx range.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ingest endpoint returned HTTP %d", e.Code)
}

// Stats is a point-in-time view of a Transport.
type Stats struct {
	Buffered            int    `json:"buffered"`
	BreakerState        string `json:"breaker_state"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	BatchesSent         uint64 `json:"batches_sent"`
	BatchesFailed       uint64 `json:"batches_failed"`
}

// Transport buffers log entries and ships them in batches to the ingestion
// endpoint. Delivery happens on a timer and whenever the buffer reaches the
// batch size; the caller that enqueues never waits on the network.
type Transport struct {
	agentID string
	url     string
	apiKey  string
	opts    Options
	log     zerolog.Logger

	mu      sync.Mutex
	buffer  []telemetry.LogEntry
	breaker *gobreaker.CircuitBreaker

	sleep func(ctx context.Context, d time.Duration) error

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	sent   atomic.Uint64
	failed atomic.Uint64
}

// New creates a Transport and starts its periodic flush loop. The loop runs
// until Close.
func New(agentID, endpoint, apiKey string, opts Options) *Transport {
	opts = opts.withDefaults()

	t := &Transport{
		agentID: agentID,
		url:     strings.TrimRight(endpoint, "/") + IngestPath,
		apiKey:  apiKey,
		opts:    opts,
		log:     opts.logger(),
		buffer:  make([]telemetry.LogEntry, 0, opts.BatchSize),
		sleep:   sleepContext,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	t.breaker = t.newBreaker()

	go t.run(opts.FlushInterval)

	return t
}

// Enqueue appends an entry to the buffer after clearing values JSON cannot
// carry (see telemetry.LogEntry.Normalize). Reaching the batch size kicks
// off a flush in the background; its outcome is not reported here.
func (t *Transport) Enqueue(entry telemetry.LogEntry) {
	entry.Normalize()

	t.mu.Lock()
	t.buffer = append(t.buffer, entry)
	n := len(t.buffer)
	t.mu.Unlock()

	bufferLength.Set(float64(n))

	if n >= t.opts.BatchSize {
		go func() {
			_ = t.Flush(context.Background())
		}()
	}
}

// Flush takes up to one batch from the head of the buffer and delivers it,
// retrying with exponential backoff. It does nothing when the buffer is empty
// or the breaker is open. Entries are only taken once the breaker has let the
// flush through. If every attempt fails they go back to the head of the
// buffer, ahead of anything enqueued in the meantime.
func (t *Transport) Flush(ctx context.Context) error {
	t.mu.Lock()
	cb := t.breaker
	if len(t.buffer) == 0 || cb.State() == gobreaker.StateOpen {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	var (
		entries []telemetry.LogEntry
		batchID string
	)
	_, err := cb.Execute(func() (interface{}, error) {
		t.mu.Lock()
		entries = t.takeLocked(t.opts.BatchSize)
		t.mu.Unlock()

		batch, body := t.encode(entries)
		entries, batchID = batch.Entries, batch.BatchID
		if len(entries) == 0 {
			return nil, nil
		}
		return nil, t.deliver(ctx, batchID, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Another flush tripped or is probing the breaker; nothing was taken.
		return nil
	}
	if err == nil {
		if len(entries) > 0 {
			t.sent.Add(1)
			batchesSent.Inc()
			t.log.Debug().Str("batch_id", batchID).Int("entries", len(entries)).Msg("sent logs")
		}
		return nil
	}

	t.requeue(entries)

	t.failed.Add(1)
	batchesFailed.Inc()
	t.log.Warn().Err(err).Str("batch_id", batchID).Int("entries", len(entries)).Msg("failed to send logs")
	return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
}

// encode builds the batch for entries. Entries that cannot be encoded on
// their own are dropped and the rest are sent; the returned batch holds only
// what made it into body.
func (t *Transport) encode(entries []telemetry.LogEntry) (telemetry.LogBatch, []byte) {
	if len(entries) == 0 {
		return telemetry.LogBatch{}, nil
	}
	batch := telemetry.NewBatch(t.agentID, entries)
	body, err := json.Marshal(batch)
	if err == nil {
		return batch, body
	}

	kept := entries[:0:0]
	for _, e := range entries {
		if _, perr := json.Marshal(e); perr != nil {
			entriesDropped.Inc()
			t.log.Error().Err(perr).Str("request_id", e.RequestID).Msg("dropping entry that cannot be encoded")
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == 0 {
		return telemetry.LogBatch{BatchID: batch.BatchID}, nil
	}

	batch.Entries = kept
	body, err = json.Marshal(batch)
	if err != nil {
		// Every entry encodes alone, so this is the envelope itself.
		entriesDropped.Add(float64(len(kept)))
		t.log.Error().Err(err).Str("batch_id", batch.BatchID).Int("entries", len(kept)).Msg("dropping batch that cannot be encoded")
		return telemetry.LogBatch{BatchID: batch.BatchID}, nil
	}
	return batch, body
}

// Close stops the periodic flush loop, resets the breaker and makes one last
// delivery attempt. A failure of that attempt is logged, not returned: the
// remaining entries are lost when the process exits.
func (t *Transport) Close(ctx context.Context) error {
	first := false
	t.closeOnce.Do(func() {
		first = true
		close(t.stop)
	})
	if !first {
		return nil
	}
	<-t.done

	t.mu.Lock()
	t.breaker = t.newBreaker()
	t.mu.Unlock()
	breakerOpen.Set(0)

	if err := t.Flush(ctx); err != nil {
		t.log.Warn().Err(err).Int("dropped", t.Len()).Msg("final flush failed")
	}
	return nil
}

// Len returns the number of buffered entries.
func (t *Transport) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

// Stats reports buffer and breaker state.
func (t *Transport) Stats() Stats {
	t.mu.Lock()
	n := len(t.buffer)
	cb := t.breaker
	t.mu.Unlock()

	return Stats{
		Buffered:            n,
		BreakerState:        cb.State().String(),
		ConsecutiveFailures: cb.Counts().ConsecutiveFailures,
		BatchesSent:         t.sent.Load(),
		BatchesFailed:       t.failed.Load(),
	}
}

func (t *Transport) run(interval time.Duration) {
	defer close(t.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if err := t.Flush(context.Background()); err != nil {
				t.log.Debug().Err(err).Msg("periodic flush failed")
			}
		}
	}
}

// takeLocked removes up to n entries from the head of the buffer.
// t.mu must be held.
func (t *Transport) takeLocked(n int) []telemetry.LogEntry {
	if n > len(t.buffer) {
		n = len(t.buffer)
	}
	taken := make([]telemetry.LogEntry, n)
	copy(taken, t.buffer[:n])

	rest := copy(t.buffer, t.buffer[n:])
	clear(t.buffer[rest:])
	t.buffer = t.buffer[:rest]

	bufferLength.Set(float64(rest))
	return taken
}

func (t *Transport) requeue(entries []telemetry.LogEntry) {
	t.mu.Lock()
	merged := make([]telemetry.LogEntry, 0, len(entries)+len(t.buffer))
	merged = append(merged, entries...)
	merged = append(merged, t.buffer...)
	t.buffer = merged
	n := len(merged)
	t.mu.Unlock()

	entriesRequeued.Add(float64(len(entries)))
	bufferLength.Set(float64(n))
}

// deliver POSTs one encoded batch, up to MaxRetries times.
func (t *Transport) deliver(ctx context.Context, batchID string, body []byte) error {
	var lastErr error
	for attempt := 0; attempt < t.opts.MaxRetries; attempt++ {
		start := time.Now()
		lastErr = t.post(ctx, body)
		deliveryLatency.Observe(time.Since(start).Seconds())

		if lastErr == nil {
			deliveryAttempts.WithLabelValues("success").Inc()
			return nil
		}
		deliveryAttempts.WithLabelValues("failure").Inc()
		t.log.Debug().Err(lastErr).Str("batch_id", batchID).Int("attempt", attempt+1).Msg("delivery attempt failed")

		if attempt < t.opts.MaxRetries-1 {
			if err := t.sleep(ctx, t.backoff(attempt)); err != nil {
				return fmt.Errorf("backoff interrupted after %v: %w", lastErr, err)
			}
		}
	}
	return lastErr
}

func (t *Transport) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, t.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("User-Agent", "gt8004-go/"+telemetry.SDKVersion)

	resp, err := t.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode}
}

// backoff returns the wait after the given 0-based attempt, never more than
// MaxBackoff.
func (t *Transport) backoff(attempt int) time.Duration {
	limit := t.opts.MaxBackoff
	if limit <= 0 {
		limit = DefaultMaxBackoff
	}
	base := t.opts.BackoffBase

	d := limit
	if attempt < 63 && base <= limit>>attempt {
		d = base << attempt
	}
	if t.opts.BackoffJitter > 0 {
		d += time.Duration(rand.Float64() * t.opts.BackoffJitter * float64(d))
	}
	if d > limit || d < 0 {
		d = limit
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

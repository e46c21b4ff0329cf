package storage

import (
	"context"
	"time"

	"github.com/gt8004/gt8004-go/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Archiver saves captured entries to a Store in the background. It satisfies
// middleware.Sink, so it can sit next to the delivery transport.
type Archiver struct {
	store   Store
	log     zerolog.Logger
	timeout time.Duration
}

func NewArchiver(store Store, log zerolog.Logger) *Archiver {
	return &Archiver{
		store:   store,
		log:     log.With().Str("component", "archive").Logger(),
		timeout: 5 * time.Second,
	}
}

// Enqueue persists the entry without blocking the caller.
func (a *Archiver) Enqueue(entry telemetry.LogEntry) {
	go func(e telemetry.LogEntry) {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.store.SaveEntry(ctx, &e); err != nil {
			a.log.Warn().Err(err).Str("request_id", e.RequestID).Msg("failed to archive entry")
		}
	}(entry)
}

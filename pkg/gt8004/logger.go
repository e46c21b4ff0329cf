// Package gt8004 captures request telemetry from an HTTP agent and ships it
// in batches to the GT8004 ingestion service.
//
//	logger, err := gt8004.New(gt8004.Config{AgentID: "my-agent", APIKey: key})
//	if err != nil { ... }
//	defer logger.Close(context.Background())
//	handler = logger.Middleware(middleware.CaptureOptions{})(handler)
package gt8004

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gt8004/gt8004-go/pkg/middleware"
	"github.com/gt8004/gt8004-go/pkg/telemetry"
	"github.com/gt8004/gt8004-go/pkg/transport"
	"github.com/rs/zerolog"
)

// Logger owns one Transport and hands out capture middleware bound to it.
type Logger struct {
	cfg       Config
	transport *transport.Transport
	log       *zerolog.Logger
}

// New validates cfg, applies defaults and starts the background transport.
func New(cfg Config) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	var log *zerolog.Logger
	if cfg.Debug {
		l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel).With().Timestamp().Logger()
		if cfg.Logger != nil {
			l = *cfg.Logger
		}
		l = l.With().Str("sdk", "gt8004").Str("agent_id", cfg.AgentID).Logger()
		log = &l
	}

	return &Logger{
		cfg:       cfg,
		transport: transport.New(cfg.AgentID, cfg.Endpoint, cfg.APIKey, cfg.transportOptions(log)),
		log:       log,
	}, nil
}

// Middleware returns capture middleware that enqueues every entry on this
// logger's transport and on each mirror sink.
func (l *Logger) Middleware(opts middleware.CaptureOptions, mirrors ...middleware.Sink) func(http.Handler) http.Handler {
	if opts.Logger == nil {
		opts.Logger = l.log
	}
	sinks := append([]middleware.Sink{l.transport}, mirrors...)
	return middleware.Capture(middleware.Sinks(sinks...), opts)
}

// LogRequest submits an entry that did not pass through the middleware.
// A missing request id or timestamp is filled in.
func (l *Logger) LogRequest(entry telemetry.LogEntry) {
	if entry.RequestID == "" {
		entry.RequestID = telemetry.NewRequestID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	l.transport.Enqueue(entry)
}

// Flush delivers one batch of pending entries now.
func (l *Logger) Flush(ctx context.Context) error {
	return l.transport.Flush(ctx)
}

// Close stops periodic delivery and makes a final attempt to send what is
// buffered.
func (l *Logger) Close(ctx context.Context) error {
	return l.transport.Close(ctx)
}

// Stats reports the transport's buffer and breaker state.
func (l *Logger) Stats() transport.Stats {
	return l.transport.Stats()
}

// AgentID returns the configured agent id.
func (l *Logger) AgentID() string {
	return l.cfg.AgentID
}

// Endpoint returns the ingestion base URL in use.
func (l *Logger) Endpoint() string {
	return l.cfg.Endpoint
}

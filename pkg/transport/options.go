package transport

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBatchSize        = 50
	DefaultFlushInterval    = 5 * time.Second
	DefaultMaxRetries       = 3
	DefaultBackoffBase      = time.Second
	DefaultMaxBackoff       = 5 * time.Minute
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 30 * time.Second
	DefaultRequestTimeout   = 10 * time.Second
)

// Options tunes a Transport. Zero values fall back to the defaults above.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    int

	// BackoffBase is the wait after the first failed attempt; it doubles
	// for every further attempt.
	BackoffBase time.Duration
	// BackoffJitter adds up to this fraction of the computed wait at random.
	// Zero keeps the exact 1s, 2s, 4s ... schedule.
	BackoffJitter float64
	// MaxBackoff caps a single wait, jitter included.
	MaxBackoff time.Duration

	// BreakerThreshold is the number of consecutive exhausted flushes that
	// opens the breaker; BreakerCooldown is how long it stays open.
	BreakerThreshold uint32
	BreakerCooldown  time.Duration

	// RequestTimeout bounds a single delivery attempt.
	RequestTimeout time.Duration
	HTTPClient     *http.Client

	// Debug turns on diagnostic logging. Logger is used when set, otherwise
	// a console logger on stderr.
	Debug  bool
	Logger *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.BackoffJitter < 0 {
		o.BackoffJitter = 0
	}
	if o.BackoffJitter > 1 {
		o.BackoffJitter = 1
	}
	if o.BreakerThreshold == 0 {
		o.BreakerThreshold = DefaultBreakerThreshold
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = DefaultBreakerCooldown
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	return o
}

func (o Options) logger() zerolog.Logger {
	if !o.Debug {
		return zerolog.Nop()
	}
	if o.Logger != nil {
		return o.Logger.With().Str("component", "transport").Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Str("component", "transport").Logger()
}

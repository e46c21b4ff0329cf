package gt8004

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gt8004/gt8004-go/pkg/transport"
	"github.com/rs/zerolog"
)

// DefaultEndpoint is the hosted ingestion service.
const DefaultEndpoint = "https://api.aes.network"

// ErrInvalidConfig wraps every validation failure returned by New.
var ErrInvalidConfig = errors.New("invalid gt8004 config")

// Config is the set of options recognised by New. The mapstructure tags let
// it be embedded in a viper-loaded file.
type Config struct {
	AgentID         string `mapstructure:"agent_id" validate:"required"`
	APIKey          string `mapstructure:"api_key" validate:"required"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	BatchSize       int    `mapstructure:"batch_size" validate:"gte=0"`
	FlushIntervalMs int    `mapstructure:"flush_interval_ms" validate:"gte=0"`
	MaxRetries      int    `mapstructure:"max_retries" validate:"gte=0"`
	Debug           bool   `mapstructure:"debug"`

	// Logger receives diagnostics when Debug is set. Defaults to a console
	// logger on stderr.
	Logger *zerolog.Logger `mapstructure:"-" validate:"-"`
	// HTTPClient is used for delivery. Defaults to a fresh http.Client.
	HTTPClient *http.Client `mapstructure:"-" validate:"-"`
}

var validate = validator.New()

// Validate checks required fields and value ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.BatchSize == 0 {
		c.BatchSize = transport.DefaultBatchSize
	}
	if c.FlushIntervalMs == 0 {
		c.FlushIntervalMs = int(transport.DefaultFlushInterval / time.Millisecond)
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = transport.DefaultMaxRetries
	}
	return c
}

func (c Config) transportOptions(log *zerolog.Logger) transport.Options {
	return transport.Options{
		BatchSize:     c.BatchSize,
		FlushInterval: time.Duration(c.FlushIntervalMs) * time.Millisecond,
		MaxRetries:    c.MaxRetries,
		HTTPClient:    c.HTTPClient,
		Debug:         c.Debug,
		Logger:        log,
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/gt8004/gt8004-go/pkg/gt8004"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds everything the agent host needs.
// The structure tags (mapstructure) tell Viper which YAML field maps to which Go struct field.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Agent     gt8004.Config   `mapstructure:"agent"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

type ServerConfig struct {
	Port               string `mapstructure:"port" validate:"required"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec" validate:"gte=0"`
}

// DefaultShutdownTimeout applies when shutdown_timeout_sec is unset or 0.
const DefaultShutdownTimeout = 10 * time.Second

// ShutdownTimeout bounds graceful shutdown and the final telemetry flush.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	if s.ShutdownTimeoutSec <= 0 {
		return DefaultShutdownTimeout
	}
	return time.Duration(s.ShutdownTimeoutSec) * time.Second
}

type CaptureConfig struct {
	CaptureBody    bool   `mapstructure:"capture_body"`
	MaxBodySize    int    `mapstructure:"max_body_size" validate:"gte=0"`
	CustomerHeader string `mapstructure:"customer_header"`
	PaymentHeader  string `mapstructure:"payment_header"`
	ToolField      string `mapstructure:"tool_field"`
	Classify4xx    bool   `mapstructure:"classify_4xx"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst   int     `mapstructure:"burst" validate:"gte=0"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type ArchiveConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	RetentionDays int  `mapstructure:"retention_days" validate:"gte=0"`
}

type AdminConfig struct {
	Key string `mapstructure:"key"`
}

var validate = validator.New()

// Validate checks the host sections and the agent section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Store wraps configuration with thread-safe access and hot-reload updates.
type Store struct {
	mu        sync.RWMutex
	cfg       *Config
	listeners []func(*Config)
}

// NewStore returns a store holding cfg; it never reloads. Used by tests and
// by callers that build the config in code.
func NewStore(cfg *Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil
	}
	cpy := *s.cfg
	return &cpy
}

// OnChange registers fn to run with the new config after every successful
// reload.
func (s *Store) OnChange(fn func(*Config)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Update swaps in cfg and notifies listeners.
func (s *Store) Update(cfg *Config) {
	s.mu.Lock()
	s.cfg = cfg
	listeners := append(([]func(*Config))(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// LoadAndWatch loads the config and watches for on-disk changes. The file is
// ./configs/config.yaml unless GT8004_CONFIG points elsewhere; any key can be
// overridden with a GT8004_ environment variable, e.g. GT8004_AGENT_API_KEY.
func LoadAndWatch(log zerolog.Logger) (*Store, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	store := &Store{}
	if err := refresh(v, store); err != nil {
		return nil, err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		if err := refresh(v, store); err != nil {
			log.Error().Err(err).Str("file", e.Name).Msg("config reload failed")
		} else {
			log.Info().Str("file", e.Name).Msg("config reloaded")
		}
	})

	return store, nil
}

// Load reads the config once without watching.
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	store := &Store{}
	if err := refresh(v, store); err != nil {
		return nil, err
	}
	return store.Get(), nil
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	if path := os.Getenv("GT8004_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./configs")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix("GT8004")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":3100")
	v.SetDefault("server.shutdown_timeout_sec", 10)
	v.SetDefault("agent.endpoint", gt8004.DefaultEndpoint)
	v.SetDefault("agent.batch_size", 50)
	v.SetDefault("agent.flush_interval_ms", 5000)
	v.SetDefault("agent.max_retries", 3)
	v.SetDefault("agent.debug", false)
	// Bound so AutomaticEnv can fill them even when the file omits them.
	v.SetDefault("agent.agent_id", "")
	v.SetDefault("agent.api_key", "")
	v.SetDefault("capture.max_body_size", 16384)
	v.SetDefault("capture.customer_header", "X-Agent-ID")
	v.SetDefault("capture.payment_header", "X-Payment")
	v.SetDefault("ratelimit.requests_per_second", 10)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("archive.retention_days", 30)
}

func refresh(v *viper.Viper, store *Store) error {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	store.Update(&cfg)
	return nil
}

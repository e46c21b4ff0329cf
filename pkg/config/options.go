package config

import "github.com/gt8004/gt8004-go/pkg/middleware"

// CaptureOptions turns the capture section into middleware options.
func (c *Config) CaptureOptions() middleware.CaptureOptions {
	opts := middleware.CaptureOptions{
		CaptureBody:   c.Capture.CaptureBody,
		MaxBodySize:   c.Capture.MaxBodySize,
		PaymentHeader: c.Capture.PaymentHeader,
	}
	if c.Capture.CustomerHeader != "" {
		opts.Customer = middleware.HeaderCustomer{Header: c.Capture.CustomerHeader}
	}
	if c.Capture.ToolField != "" {
		opts.Tool = middleware.BodyFieldTool{Field: c.Capture.ToolField, Fallback: middleware.PathTool{}}
	}
	if c.Capture.Classify4xx {
		opts.Errors = middleware.ClientAndServerErrors{}
	}
	return opts
}

// RateLimitSettings returns the host limiter settings, keyed by the customer header.
func (c *Config) RateLimitSettings() middleware.RateLimit {
	return middleware.RateLimit{
		Enabled:        c.RateLimit.Enabled,
		RPS:            c.RateLimit.RPS,
		Burst:          c.RateLimit.Burst,
		CustomerHeader: c.Capture.CustomerHeader,
	}
}

package config

import (
	"testing"

	"github.com/gt8004/gt8004-go/pkg/middleware"
	"github.com/stretchr/testify/assert"
)

func TestCaptureOptions(t *testing.T) {
	cfg := &Config{Capture: CaptureConfig{
		CaptureBody:    true,
		MaxBodySize:    1024,
		CustomerHeader: "X-Customer-ID",
		PaymentHeader:  "X-Payment",
		ToolField:      "skill_id",
		Classify4xx:    true,
	}}

	opts := cfg.CaptureOptions()
	assert.True(t, opts.CaptureBody)
	assert.Equal(t, 1024, opts.MaxBodySize)
	assert.Equal(t, middleware.HeaderCustomer{Header: "X-Customer-ID"}, opts.Customer)
	assert.Equal(t, middleware.BodyFieldTool{Field: "skill_id", Fallback: middleware.PathTool{}}, opts.Tool)
	assert.Equal(t, middleware.ClientAndServerErrors{}, opts.Errors)
}

func TestCaptureOptionsLeavesDefaultsToMiddleware(t *testing.T) {
	opts := (&Config{}).CaptureOptions()
	assert.Nil(t, opts.Customer)
	assert.Nil(t, opts.Tool)
	assert.Nil(t, opts.Errors)
}

func TestRateLimitSettings(t *testing.T) {
	cfg := &Config{
		Capture:   CaptureConfig{CustomerHeader: "X-Agent-ID"},
		RateLimit: RateLimitConfig{Enabled: true, RPS: 2.5, Burst: 4},
	}
	assert.Equal(t, middleware.RateLimit{
		Enabled: true, RPS: 2.5, Burst: 4, CustomerHeader: "X-Agent-ID",
	}, cfg.RateLimitSettings())
}

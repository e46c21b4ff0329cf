package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	assert.InDelta(t, 0.002, EstimateCost(2000, 0.001), 1e-12)
	assert.Zero(t, EstimateCost(0, 0.001))
}

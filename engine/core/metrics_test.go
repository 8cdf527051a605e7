package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	assert.InDelta(t, 16.0, m.FrameTime(), 1e-9)

	// a second window replaces, rather than accumulates, the average
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.008)
	}
	assert.InDelta(t, 8.0, m.FrameTime(), 1e-9)
}

func TestMetricsFPS(t *testing.T) {
	m := NewMetrics()
	// 15.625ms is exact in binary, so the second boundary is crossed on frame 65
	for i := 0; i < 65; i++ {
		m.Update(0.015625)
	}
	fps, _ := m.Frame()
	assert.Equal(t, 64.0, fps)
}

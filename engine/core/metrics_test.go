package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAveragesAfterFullWindow(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	assert.InDelta(t, 16.0, m.FrameTime(), 0.001)
	assert.Equal(t, uint8(0), m.FrameAVGCounter)
}

func TestMetricsRecordBuild(t *testing.T) {
	m := NewMetrics()
	m.RecordBuild(2 * time.Millisecond)
	assert.InDelta(t, 2.0, m.LastBuildMS, 0.001)
	assert.Zero(t, m.BuildMSavg)
	for i := 1; i < int(AVG_COUNT); i++ {
		m.RecordBuild(2 * time.Millisecond)
	}
	assert.InDelta(t, 2.0, m.BuildMSavg, 0.001)
}

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, errors.Is(ErrArenaExhausted, ErrResourceExhausted))
	assert.True(t, errors.Is(ErrAccelerationUnsupported, ErrAccelerationBuildFailure))
	assert.False(t, errors.Is(ErrOutOfDeviceMemory, ErrResourceExhausted))
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("debug"))
	require.Error(t, SetLogLevel("loud"))
	require.NoError(t, SetLogLevel("info"))
}

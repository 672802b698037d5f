package core

import "time"

const AVG_COUNT uint8 = 30

// Metrics keeps rolling frame and acceleration-structure build timings.
// It is owned by the engine; nothing in here is global.
type Metrics struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64

	BuildAVGCounter uint8
	BuildMStimes    [AVG_COUNT]float64
	BuildMSavg      float64
	LastBuildMS     float64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Update(frameElapsedTime float64) {
	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	m.MStimes[m.FrameAVGCounter] = frameMS
	if m.FrameAVGCounter == AVG_COUNT-1 {
		m.MSavg = average(m.MStimes[:])
	}
	m.FrameAVGCounter++
	m.FrameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	m.AccumulatedFrameMS += frameMS
	if m.AccumulatedFrameMS > 1000 {
		m.FPS = float64(m.Frames)
		m.AccumulatedFrameMS -= 1000
		m.Frames = 0
	}

	// Count all Frames.
	m.Frames++
}

// RecordBuild stores the duration of one top-level acceleration structure build.
func (m *Metrics) RecordBuild(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	m.LastBuildMS = ms
	m.BuildMStimes[m.BuildAVGCounter] = ms
	if m.BuildAVGCounter == AVG_COUNT-1 {
		m.BuildMSavg = average(m.BuildMStimes[:])
	}
	m.BuildAVGCounter++
	m.BuildAVGCounter %= AVG_COUNT
}

func (m *Metrics) FPSValue() float64 {
	return m.FPS
}

func (m *Metrics) FrameTime() float64 {
	return m.MSavg
}

func (m *Metrics) Frame() (float64, float64) {
	return m.FPS, m.MSavg
}

func average(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

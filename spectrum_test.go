package main

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHannWindowEndpointsAreZero(t *testing.T) {
	w := hannWindow(64)
	assert.InDelta(t, 0, w[0], 1e-9)
	assert.InDelta(t, 0, w[len(w)-1], 1e-9)
	mid := w[len(w)/2]
	assert.Greater(t, mid, 0.9)
}

func TestSpectrumSchedulerProducesEventsOnceBufferFilled(t *testing.T) {
	ring := NewRingAudioBuffer(8000, 1000)
	samples := make([]float32, 256)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) * 0.1))
	}
	ring.Write(samples)

	sched := NewSpectrumScheduler(ring, 256, 10*time.Millisecond)
	ch := sched.Subscribe()
	defer sched.Unsubscribe(ch)
	sched.Start()
	defer sched.Stop()

	select {
	case ev := <-ch:
		require.NotEmpty(t, ev.MagnitudeDb)
		assert.Greater(t, ev.BinHz, 0.0)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a spectrum event")
	}
}

func TestSpectrumSchedulerSkipsTickWithInsufficientSamples(t *testing.T) {
	ring := NewRingAudioBuffer(8000, 1000)
	ring.Write(make([]float32, 10)) // far fewer than fftSize
	sched := NewSpectrumScheduler(ring, 2048, 10*time.Millisecond)

	sched.tick()
	assert.Equal(t, SpectrumEvent{}, sched.Latest())
}

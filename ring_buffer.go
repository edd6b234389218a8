package main

import (
	"sync"
	"sync/atomic"
	"time"
)

// RingAudioBuffer is C1: a bounded, timestamp-indexed PCM store fed by
// the capture device. Single writer (the audio callback), many readers.
// Grounded on the teacher's atomic-cursor pattern in session.go's byte
// counters, generalized to a ring of audio samples per spec.md §4.1.
type RingAudioBuffer struct {
	sampleRate int
	horizonMs  int64

	mu      sync.RWMutex
	samples []float32 // ring storage, len == capacity
	cap     int

	totalWritten   atomic.Int64 // monotonically increasing sample count
	startTimestamp atomic.Int64 // wall-clock ms captured at first write, 0 until set
}

// NewRingAudioBuffer creates a buffer sized to hold horizonMs of audio
// at sampleRate. spec.md §4.1 requires horizon >= 2*slotMs + one window
// span; callers size horizonMs accordingly.
func NewRingAudioBuffer(sampleRate int, horizonMs int64) *RingAudioBuffer {
	capSamples := int(int64(sampleRate) * horizonMs / 1000)
	if capSamples < 1 {
		capSamples = 1
	}
	return &RingAudioBuffer{
		sampleRate: sampleRate,
		horizonMs:  horizonMs,
		samples:    make([]float32, capSamples),
		cap:        capSamples,
	}
}

// Write appends samples, overwriting the oldest data silently on
// overflow (spec.md §4.1 policy).
func (b *RingAudioBuffer) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	b.startTimestamp.CompareAndSwap(0, time.Now().UnixMilli())

	b.mu.Lock()
	defer b.mu.Unlock()

	written := b.totalWritten.Load()
	for _, s := range samples {
		idx := int(written % int64(b.cap))
		b.samples[idx] = s
		written++
	}
	b.totalWritten.Store(written)
}

// wallClockOf returns the wall-clock time (ms) of sample index i,
// per spec.md §4.1: startTimestamp + i*1000/sampleRate.
func (b *RingAudioBuffer) wallClockOf(sampleIndex int64) int64 {
	start := b.startTimestamp.Load()
	return start + sampleIndex*1000/int64(b.sampleRate)
}

// sampleIndexOf inverts wallClockOf: the sample index nearest wall-clock
// time ms.
func (b *RingAudioBuffer) sampleIndexOf(ms int64) int64 {
	start := b.startTimestamp.Load()
	return (ms - start) * int64(b.sampleRate) / 1000
}

// Read returns durationMs of PCM starting at startMs (wall clock). The
// result is silence-padded if the range is only partially covered, and
// an error if the range is entirely outside the horizon, per spec.md
// §4.1.
func (b *RingAudioBuffer) Read(startMs, durationMs int64) ([]float32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.startTimestamp.Load() == 0 {
		return nil, ErrBufferUnderrun
	}

	wantSamples := int(int64(b.sampleRate) * durationMs / 1000)
	out := make([]float32, wantSamples)

	startIdx := b.sampleIndexOf(startMs)
	written := b.totalWritten.Load()
	nowIdx := written // one-past-the-last-written index

	endIdx := startIdx + int64(wantSamples)
	if startIdx >= nowIdx {
		return nil, ErrBufferUnderrun
	}
	oldestAvailable := written - int64(b.cap)
	if endIdx <= oldestAvailable {
		return nil, ErrBufferEvicted
	}

	for i := int64(0); i < int64(wantSamples); i++ {
		srcIdx := startIdx + i
		if srcIdx < 0 || srcIdx < oldestAvailable || srcIdx >= nowIdx {
			continue // leave as silence (zero value)
		}
		out[i] = b.samples[srcIdx%int64(b.cap)]
	}
	return out, nil
}

// ReadNextChunk returns the most recent n samples written, for monitors
// (e.g. the spectrum scheduler) that want a sliding tail rather than a
// wall-clock-addressed range.
func (b *RingAudioBuffer) ReadNextChunk(n int) []float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	written := b.totalWritten.Load()
	if n > b.cap {
		n = b.cap
	}
	out := make([]float32, n)
	start := written - int64(n)
	for i := 0; i < n; i++ {
		idx := start + int64(i)
		if idx < 0 {
			continue
		}
		out[i] = b.samples[idx%int64(b.cap)]
	}
	return out
}

// SampleRate returns the buffer's configured sample rate.
func (b *RingAudioBuffer) SampleRate() int { return b.sampleRate }

// TotalSamplesWritten returns the monotonic write counter.
func (b *RingAudioBuffer) TotalSamplesWritten() int64 { return b.totalWritten.Load() }

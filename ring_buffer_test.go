package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingAudioBufferReadBeforeAnyWrite(t *testing.T) {
	b := NewRingAudioBuffer(12000, 1000)
	_, err := b.Read(0, 100)
	assert.ErrorIs(t, err, ErrBufferUnderrun)
}

func TestRingAudioBufferWriteThenReadRoundTrip(t *testing.T) {
	b := NewRingAudioBuffer(1000, 1000) // 1000 samples/sec, 1s horizon -> cap 1000
	samples := make([]float32, 500)
	for i := range samples {
		samples[i] = float32(i)
	}
	b.Write(samples)

	start := b.wallClockOf(0)
	out, err := b.Read(start, 500)
	require.NoError(t, err)
	require.Len(t, out, 500)
	assert.Equal(t, samples, out)
}

func TestRingAudioBufferReadFutureIsUnderrun(t *testing.T) {
	b := NewRingAudioBuffer(1000, 1000)
	b.Write(make([]float32, 10))
	future := b.wallClockOf(0) + 100_000
	_, err := b.Read(future, 100)
	assert.ErrorIs(t, err, ErrBufferUnderrun)
}

func TestRingAudioBufferReadEvictedRangeErrors(t *testing.T) {
	b := NewRingAudioBuffer(1000, 100) // cap 100 samples
	b.Write(make([]float32, 1000))     // overflows the ring 10x over

	start := b.wallClockOf(0) // long evicted
	_, err := b.Read(start, 10)
	assert.ErrorIs(t, err, ErrBufferEvicted)
}

func TestRingAudioBufferReadNextChunk(t *testing.T) {
	b := NewRingAudioBuffer(1000, 1000)
	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = float32(i)
	}
	b.Write(samples)

	chunk := b.ReadNextChunk(10)
	require.Len(t, chunk, 10)
	assert.Equal(t, samples[90:], chunk)
}

func TestRingAudioBufferConcurrentWrites(t *testing.T) {
	b := NewRingAudioBuffer(8000, 1000)
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				b.Write([]float32{1, 2, 3})
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.Equal(t, int64(1200), b.TotalSamplesWritten())
}

func TestRingAudioBufferStartTimestampSetOnce(t *testing.T) {
	b := NewRingAudioBuffer(1000, 1000)
	b.Write([]float32{1})
	first := b.startTimestamp.Load()
	time.Sleep(2 * time.Millisecond)
	b.Write([]float32{2})
	assert.Equal(t, first, b.startTimestamp.Load())
}

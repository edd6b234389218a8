package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResamplePCMIsNoopWhenRatesMatch(t *testing.T) {
	pcm := []float32{0.1, 0.2, 0.3}
	out, err := resamplePCM(pcm, 12000, 12000)
	require.NoError(t, err)
	assert.Equal(t, pcm, out)
}

func TestResamplePCMDownsamplesToTargetLength(t *testing.T) {
	// 48kHz -> 12000Hz is a 4:1 decimation: half a second of audio
	// should come out as roughly half a second at the target rate.
	pcm := make([]float32, 48000/2)
	for i := range pcm {
		pcm[i] = float32(i%100) / 100
	}
	out, err := resamplePCM(pcm, 48000, 12000)
	require.NoError(t, err)
	assert.InDelta(t, 12000/2, len(out), 2)
}

func TestResamplePCMPreservesDCLevel(t *testing.T) {
	pcm := make([]float32, 4800)
	for i := range pcm {
		pcm[i] = 0.5
	}
	out, err := resamplePCM(pcm, 48000, 12000)
	require.NoError(t, err)
	for _, s := range out {
		assert.InDelta(t, 0.5, s, 1e-6)
	}
}

package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePoolDeliversWaveform(t *testing.T) {
	enc := EncoderFunc(func(ctx context.Context, text, modeName string, baseFreqHz, sampleRate int) ([]float32, error) {
		return []float32{0.1, 0.2, 0.3}, nil
	})
	pool := NewEncodePool(enc, 1, 4)
	defer pool.Close()

	results := make(chan EncodeResult, 4)
	pool.Subscribe(results)
	pool.Submit(TransmitRequest{OperatorID: "op1", SlotID: "slot1", Text: "CQ K1ABC FN42"}, "FT8", 48000)

	select {
	case res := <-results:
		require.NoError(t, res.Err)
		assert.Equal(t, "op1", res.Waveform.OperatorID)
		assert.Len(t, res.Waveform.PCM, 3)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for encode result")
	}
}

func TestEncodePoolWrapsEncoderErrors(t *testing.T) {
	enc := EncoderFunc(func(ctx context.Context, text, modeName string, baseFreqHz, sampleRate int) ([]float32, error) {
		return nil, errors.New("dsp fault")
	})
	pool := NewEncodePool(enc, 1, 4)
	defer pool.Close()

	results := make(chan EncodeResult, 4)
	pool.Subscribe(results)
	pool.Submit(TransmitRequest{OperatorID: "op1", SlotID: "slot1"}, "FT8", 48000)

	select {
	case res := <-results:
		require.Error(t, res.Err)
		assert.ErrorIs(t, res.Err, ErrEncodeFault)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for encode error")
	}
}

func TestDecodePoolDropsOldestOnBacklog(t *testing.T) {
	block := make(chan struct{})
	dec := DecoderFunc(func(ctx context.Context, pcm12k []float32, modeName string) ([]DecodedFrame, error) {
		<-block // hold every worker busy so the queue actually backs up
		return nil, nil
	})
	source := fakeAudioReader{}
	pool := NewDecodePool(dec, source, 1, 1)
	defer func() { close(block); pool.Close() }()

	results := make(chan DecodeResult, 8)
	pool.Subscribe(results)

	pool.Submit(SubWindowRequest{SlotID: "slot-busy"})   // occupies the single worker
	time.Sleep(20 * time.Millisecond)
	pool.Submit(SubWindowRequest{SlotID: "slot-queued"}) // fills the 1-deep queue
	pool.Submit(SubWindowRequest{SlotID: "slot-new"})    // must evict slot-queued

	var dropped []string
	deadline := time.After(time.Second)
loop:
	for {
		select {
		case res := <-results:
			if errors.Is(res.Err, ErrDecodeDropped) {
				dropped = append(dropped, res.Request.SlotID)
			}
			if len(dropped) >= 1 {
				break loop
			}
		case <-deadline:
			break loop
		}
	}
	assert.Contains(t, dropped, "slot-queued")
}

type fakeAudioReader struct{}

func (fakeAudioReader) Read(startMs, durationMs int64) ([]float32, error) {
	return make([]float32, 10), nil
}

func (fakeAudioReader) SampleRate() int { return 48000 }

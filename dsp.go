package main

import "context"

// Decoder is the external FT8/FT4 DSP decode function, spec.md §6: a
// pure function with no side effects. The real implementation (Costas
// sync, LDPC) is out of scope for this engine; C3 only knows this
// interface.
type Decoder interface {
	Decode(ctx context.Context, pcm12k []float32, modeName string) ([]DecodedFrame, error)
}

// Encoder is the external FT8/FT4 DSP encode function, spec.md §6.
type Encoder interface {
	Encode(ctx context.Context, text, modeName string, baseFreqHz, sampleRate int) ([]float32, error)
}

// DecoderFunc adapts a plain function to the Decoder interface.
type DecoderFunc func(ctx context.Context, pcm12k []float32, modeName string) ([]DecodedFrame, error)

func (f DecoderFunc) Decode(ctx context.Context, pcm12k []float32, modeName string) ([]DecodedFrame, error) {
	return f(ctx, pcm12k, modeName)
}

// EncoderFunc adapts a plain function to the Encoder interface.
type EncoderFunc func(ctx context.Context, text, modeName string, baseFreqHz, sampleRate int) ([]float32, error)

func (f EncoderFunc) Encode(ctx context.Context, text, modeName string, baseFreqHz, sampleRate int) ([]float32, error) {
	return f(ctx, text, modeName, baseFreqHz, sampleRate)
}

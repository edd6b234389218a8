package main

import "time"

// AudioBlock is one delivery from the capture device: interleaved
// float32 PCM plus a monotonic capture timestamp, per spec.md §6.
type AudioBlock struct {
	Samples        []float32
	CaptureTimeMs  int64
	MissingSamples int // gap reported by the driver since the previous block
}

// AudioSource is the capture-device boundary from spec.md §6. Grounded
// on the teacher's AudioReceiver receive-loop shape (deleted audio.go):
// a background goroutine feeds blocks to a channel-based consumer, but
// generalized from RTP/multicast delivery to the plain continuous PCM
// stream spec.md §6 requires, with gaps reported rather than silently
// dropped.
type AudioSource interface {
	// Blocks returns a channel of audio blocks. The source is the sole
	// writer; it closes the channel when capture stops.
	Blocks() <-chan AudioBlock
	SampleRate() int
	Start() error
	Stop() error
}

// AudioSink is the playback boundary from spec.md §6.
type AudioSink interface {
	// PlayAudio begins emission at or very near startAt (if non-nil),
	// or immediately otherwise, and reports the actual completion time
	// once done via the returned channel.
	PlayAudio(pcm []float32, sampleRate int, startAt *time.Time) (<-chan time.Time, error)
}

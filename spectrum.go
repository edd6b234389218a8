package main

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
)

// SpectrumEvent is one FFT frame emitted by the spectrum scheduler,
// spec.md §4.11's "spectrum event".
type SpectrumEvent struct {
	CenterFreqHz float64
	BinHz        float64
	MagnitudeDb  []float64
	CapturedAt   time.Time
}

// SpectrumScheduler is C11: periodic FFT over a sliding window of C1.
// Grounded on the teacher's SpectrumManager subscriber-map/ticker shape
// (deleted spectrum.go's STATUS-packet polling loop), generalized from
// polling an SDR's radiod STATUS channel to computing the FFT locally
// with gonum/dsp/fourier over PCM already resident in the ring buffer.
type SpectrumScheduler struct {
	source     *RingAudioBuffer
	fftSize    int
	pollPeriod time.Duration
	fft        *fourier.FFT
	window     []float64 // Hann window, precomputed

	mu          sync.RWMutex
	subscribers map[chan SpectrumEvent]struct{}
	latest      SpectrumEvent

	busy   chan struct{} // single-slot semaphore: skip a tick if the previous FFT hasn't completed
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSpectrumScheduler builds a scheduler. fftSize defaults to 2048,
// pollPeriod to 100ms, per spec.md §4.11.
func NewSpectrumScheduler(source *RingAudioBuffer, fftSize int, pollPeriod time.Duration) *SpectrumScheduler {
	if fftSize <= 0 {
		fftSize = 2048
	}
	if pollPeriod <= 0 {
		pollPeriod = 100 * time.Millisecond
	}
	s := &SpectrumScheduler{
		source:      source,
		fftSize:     fftSize,
		pollPeriod:  pollPeriod,
		fft:         fourier.NewFFT(fftSize),
		window:      hannWindow(fftSize),
		subscribers: make(map[chan SpectrumEvent]struct{}),
		busy:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
	return s
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// Subscribe creates and registers a channel (buffered to 4 events) for
// spectrum events; delivery is best-effort (a slow subscriber drops
// frames rather than blocking the scheduler).
func (s *SpectrumScheduler) Subscribe() chan SpectrumEvent {
	ch := make(chan SpectrumEvent, 4)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *SpectrumScheduler) Unsubscribe(ch chan SpectrumEvent) {
	s.mu.Lock()
	delete(s.subscribers, ch)
	s.mu.Unlock()
}

// Start begins the polling loop.
func (s *SpectrumScheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *SpectrumScheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *SpectrumScheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick computes one FFT frame, skipping non-blockingly if the previous
// tick's computation is still "in flight" (here, synchronous, so this
// only guards against a ticker firing again before tick() returns —
// kept to honor the spec's "skip this tick if previous hasn't
// completed" contract even though our FFT is fast enough to always
// finish within one period).
func (s *SpectrumScheduler) tick() {
	select {
	case s.busy <- struct{}{}:
	default:
		return
	}
	defer func() { <-s.busy }()

	// ReadNextChunk zero-pads when fewer samples exist, so also check the
	// write counter before computing a frame.
	raw := s.source.ReadNextChunk(s.fftSize)
	if len(raw) < s.fftSize || s.source.TotalSamplesWritten() < int64(s.fftSize) {
		return
	}

	windowed := make([]float64, s.fftSize)
	for i, v := range raw {
		windowed[i] = float64(v) * s.window[i]
	}

	coeffs := s.fft.Coefficients(nil, windowed)
	magDb := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mag := math.Hypot(real(c), imag(c)) / float64(s.fftSize)
		if mag <= 0 {
			magDb[i] = -300
			continue
		}
		magDb[i] = 20 * math.Log10(mag)
	}

	binHz := float64(s.source.SampleRate()) / float64(s.fftSize)
	event := SpectrumEvent{
		BinHz:       binHz,
		MagnitudeDb: magDb,
		CapturedAt:  time.Now(),
	}

	s.mu.Lock()
	s.latest = event
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	s.mu.Unlock()
}

// Latest returns the most recently computed spectrum frame.
func (s *SpectrumScheduler) Latest() SpectrumEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

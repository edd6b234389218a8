package main

import (
	"math"
	"sync"
	"time"
)

const (
	defaultEarlyReleaseMs = 50
	defaultPlaySkipMs     = 100
	defaultMixerGain      = 1.0
)

// MixedAudioListener receives the mixer's single release per slot.
type MixedAudioListener interface {
	OnMixedAudioReady(out MixedSlotOutput)
}

type pendingWindow struct {
	slotID       string
	targetPlayMs int64
	expected     map[string]bool // operator IDs known to be transmitting this slot
	contributors map[string]EncodedWaveform
	released     bool
	timer        *time.Timer
}

// AudioMixer is C6: collects per-operator encoded waveforms and emits
// one mixed slot waveform at the target play instant. Grounded on the
// teacher's prometheus.go periodic-flush-with-timer idiom, generalized
// to the per-slot release-window state machine spec.md §4.6 requires.
type AudioMixer struct {
	earlyReleaseMs int64
	playSkipMs     int64
	gains          map[string]float64 // operatorID -> per-operator gain, spec.md §4.6

	mu       sync.Mutex
	pending  map[string]*pendingWindow

	listenersMu sync.RWMutex
	listeners   []MixedAudioListener
}

// NewAudioMixer builds a mixer. earlyReleaseMs/playSkipMs default to the
// spec's 50ms/100ms values when <= 0.
func NewAudioMixer(earlyReleaseMs, playSkipMs int64) *AudioMixer {
	if earlyReleaseMs <= 0 {
		earlyReleaseMs = defaultEarlyReleaseMs
	}
	if playSkipMs <= 0 {
		playSkipMs = defaultPlaySkipMs
	}
	return &AudioMixer{
		earlyReleaseMs: earlyReleaseMs,
		playSkipMs:     playSkipMs,
		gains:          make(map[string]float64),
		pending:        make(map[string]*pendingWindow),
	}
}

func (m *AudioMixer) Subscribe(l MixedAudioListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// SetOperatorGain sets the per-operator multiplicative gain, clamped to
// [0.001, 10.0] per spec.md §4.6.
func (m *AudioMixer) SetOperatorGain(operatorID string, gain float64) {
	if gain < 0.001 {
		gain = 0.001
	}
	if gain > 10.0 {
		gain = 10.0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gains[operatorID] = gain
}

func (m *AudioMixer) gainFor(operatorID string) float64 {
	if g, ok := m.gains[operatorID]; ok {
		return g
	}
	return defaultMixerGain
}

// ExpectOperator registers that operatorID intends to transmit in
// slotID, so the mixer can release early once every expected
// contributor has delivered, per spec.md §4.6. targetPlayMs must be
// consistent across all calls for the same slot.
func (m *AudioMixer) ExpectOperator(slotID, operatorID string, targetPlayMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.windowFor(slotID, targetPlayMs)
	if w.released {
		return
	}
	w.expected[operatorID] = true
}

// AddAudio delivers one operator's encoded waveform for mixing.
func (m *AudioMixer) AddAudio(waveform EncodedWaveform) {
	m.mu.Lock()
	now := time.Now().UnixMilli()
	if now >= waveform.TargetPlayMs+m.playSkipMs {
		m.mu.Unlock()
		return // too late: discard per spec.md §4.6, caller should log a warning
	}

	w := m.windowFor(waveform.SlotID, waveform.TargetPlayMs)
	if w.released {
		m.mu.Unlock()
		return
	}
	w.contributors[waveform.OperatorID] = waveform

	readyEarly := len(w.expected) > 0 && m.allDelivered(w)
	m.mu.Unlock()

	if readyEarly {
		m.release(waveform.SlotID)
	}
}

// allDelivered must be called with m.mu held.
func (m *AudioMixer) allDelivered(w *pendingWindow) bool {
	for op := range w.expected {
		if _, ok := w.contributors[op]; !ok {
			return false
		}
	}
	return true
}

// windowFor returns (creating if needed) the pending window for a slot
// and arms its release timer. Must be called with m.mu held.
func (m *AudioMixer) windowFor(slotID string, targetPlayMs int64) *pendingWindow {
	if w, ok := m.pending[slotID]; ok {
		return w
	}
	w := &pendingWindow{
		slotID:       slotID,
		targetPlayMs: targetPlayMs,
		expected:     make(map[string]bool),
		contributors: make(map[string]EncodedWaveform),
	}
	m.pending[slotID] = w

	releaseAt := targetPlayMs - m.earlyReleaseMs
	delay := releaseAt - time.Now().UnixMilli()
	if delay < 0 {
		delay = 0
	}
	w.timer = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		m.release(slotID)
	})
	return w
}

// release finalizes and emits the mix for a slot, idempotently: only
// the first caller (whether the early-delivery path or the deadline
// timer) actually mixes and broadcasts, per the "at most one
// mixedAudioReady per slotId" invariant in spec.md §4.6.
func (m *AudioMixer) release(slotID string) {
	m.mu.Lock()
	w, ok := m.pending[slotID]
	if !ok || w.released {
		m.mu.Unlock()
		return
	}
	w.released = true
	if w.timer != nil {
		w.timer.Stop()
	}

	contributing := make([]string, 0, len(w.contributors))
	for op := range w.contributors {
		contributing = append(contributing, op)
	}

	var mixed []float32
	sampleRate := 0
	for _, wf := range w.contributors {
		sampleRate = wf.SampleRate
		gain := m.gainFor(wf.OperatorID)
		if len(wf.PCM) > len(mixed) {
			grown := make([]float32, len(wf.PCM))
			copy(grown, mixed)
			mixed = grown
		}
		for i, s := range wf.PCM {
			mixed[i] += float32(gain) * s
		}
	}
	for i, s := range mixed {
		mixed[i] = float32(math.Tanh(float64(s)))
	}

	out := MixedSlotOutput{
		SlotID:                slotID,
		PCM:                   mixed,
		SampleRate:            sampleRate,
		TargetPlayMs:          w.targetPlayMs,
		ContributingOperators: contributing,
	}

	// Keep a tombstone in m.pending so a waveform that arrives after
	// release but still inside the playSkipMs grace window (AddAudio's
	// staleness check) finds the already-released window instead of
	// windowFor recreating one and firing a second release. The entry
	// is reaped once the grace window has fully elapsed, after which
	// AddAudio's own staleness check discards deliveries before ever
	// consulting m.pending.
	w.contributors = nil
	w.expected = nil
	reapDelay := w.targetPlayMs + m.playSkipMs - time.Now().UnixMilli()
	if reapDelay < 0 {
		reapDelay = 0
	}
	time.AfterFunc(time.Duration(reapDelay)*time.Millisecond, func() {
		m.mu.Lock()
		if cur, ok := m.pending[slotID]; ok && cur == w {
			delete(m.pending, slotID)
		}
		m.mu.Unlock()
	})
	m.mu.Unlock()

	if len(contributing) == 0 {
		return // nothing was ever encoded for this slot; no release to announce
	}
	m.broadcast(out)
}

func (m *AudioMixer) broadcast(out MixedSlotOutput) {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	for _, l := range m.listeners {
		safeCall(func() { l.OnMixedAudioReady(out) })
	}
}

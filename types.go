package main

import (
	"fmt"
	"strings"
	"time"
)

// Phase is the even/odd parity of a slot's cycle index. Operators are
// configured to transmit in one or both phases.
type Phase int

const (
	PhaseEven Phase = iota
	PhaseOdd
)

func (p Phase) String() string {
	if p == PhaseEven {
		return "even"
	}
	return "odd"
}

// ModeDescriptor is immutable per-mode configuration selected at runtime.
// Mirrors spec.md §3 "Mode descriptor".
type ModeDescriptor struct {
	Name             string  `yaml:"name"`
	SlotMs           int64   `yaml:"slot_ms"`
	ToleranceMs      int64   `yaml:"tolerance_ms"`
	WindowOffsetsMs  []int64 `yaml:"window_offsets_ms"`
	TransmitOffsetMs int64   `yaml:"transmit_offset_ms"`
	EncodeAdvanceMs  int64   `yaml:"encode_advance_ms"`
}

// Validate checks the invariants spec.md §3 places on a mode descriptor.
func (m ModeDescriptor) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("mode: name must not be empty")
	}
	if m.SlotMs <= 0 {
		return fmt.Errorf("mode %s: slot_ms must be positive", m.Name)
	}
	if m.ToleranceMs < 0 {
		return fmt.Errorf("mode %s: tolerance_ms must be non-negative", m.Name)
	}
	if m.TransmitOffsetMs < 0 {
		return fmt.Errorf("mode %s: transmit_offset_ms must be non-negative", m.Name)
	}
	if m.EncodeAdvanceMs < 0 {
		return fmt.Errorf("mode %s: encode_advance_ms must be non-negative", m.Name)
	}
	if len(m.WindowOffsetsMs) == 0 {
		return fmt.Errorf("mode %s: window_offsets_ms must not be empty", m.Name)
	}
	return nil
}

// FT8Mode and FT4Mode are the two predefined mode descriptors named in
// spec.md §1. windowOffsetsMs follows the Open Question decision recorded
// in DESIGN.md.
func FT8Mode() ModeDescriptor {
	return ModeDescriptor{
		Name:             "FT8",
		SlotMs:           15000,
		ToleranceMs:      200,
		WindowOffsetsMs:  []int64{-1500, -1000, -500, 0, 250},
		TransmitOffsetMs: 1180,
		EncodeAdvanceMs:  400,
	}
}

func FT4Mode() ModeDescriptor {
	return ModeDescriptor{
		Name:             "FT4",
		SlotMs:           7500,
		ToleranceMs:      100,
		WindowOffsetsMs:  []int64{-750, -250, 0, 150},
		TransmitOffsetMs: 550,
		EncodeAdvanceMs:  300,
	}
}

// Slot is a value describing one fixed-length UTC-aligned transmission
// period. Mirrors spec.md §3 "Slot".
type Slot struct {
	ID          string
	StartMs     int64
	EndMs       int64
	UTCSeconds  int64
	CycleIndex  int64
	Phase       Phase
	ModeName    string
}

// NewSlot constructs the Slot value for the slot containing wall-clock
// time startMs (which must already be aligned to slotMs; callers derive
// alignment via AlignToSlot).
func NewSlot(modeName string, startMs, slotMs int64) Slot {
	endMs := startMs + slotMs
	utcSeconds := startMs / 1000
	cycleIndex := startMs / slotMs
	phase := PhaseEven
	if cycleIndex%2 != 0 {
		phase = PhaseOdd
	}
	return Slot{
		ID:         slotID(startMs),
		StartMs:    startMs,
		EndMs:      endMs,
		UTCSeconds: utcSeconds,
		CycleIndex: cycleIndex,
		Phase:      phase,
		ModeName:   modeName,
	}
}

// AlignToSlot rounds nowMs down to the most recent multiple of slotMs.
func AlignToSlot(nowMs, slotMs int64) int64 {
	return (nowMs / slotMs) * slotMs
}

func slotID(startMs int64) string {
	t := time.UnixMilli(startMs).UTC()
	return t.Format("20060102-150405")
}

// Valid checks the slot alignment invariant from spec.md §3.
func (s Slot) Valid(slotMs int64) bool {
	return s.StartMs%slotMs == 0 && s.EndMs == s.StartMs+slotMs
}

// SubWindowRequest is produced by the slot clock (C2) and consumed by the
// decode work pool (C3). Mirrors spec.md §3 "Sub-window request".
type SubWindowRequest struct {
	SlotID            string
	ModeName          string
	WindowIdx         int
	CaptureStartMs    int64
	CaptureDurationMs int64
	TargetSampleRate  int
}

// DecodedFrame is one decode result. Mirrors spec.md §3 "Decoded frame".
type DecodedFrame struct {
	Message    string
	SNRdB      int
	DtSec      float64
	FreqHz     int
	Confidence float64
}

// TrimmedMessage returns the message canonicalized to at most 22 UTF-8
// runes after trimming, per spec.md §3.
func (f DecodedFrame) TrimmedMessage() string {
	m := strings.TrimSpace(f.Message)
	r := []rune(m)
	if len(r) > 22 {
		r = r[:22]
	}
	return string(r)
}

// Fingerprint is the canonical (message, freq-bin, time-bin) triple used
// for deduplication. Mirrors spec.md §3's F(frame) definition.
type Fingerprint struct {
	Canonical string
	FreqBin   int
	TimeBin   int
}

const ft8BinHz = 6

// ComputeFingerprint derives the dedup key for a decoded frame. binHz
// defaults to the FT8 value (6 Hz) when zero is passed.
func ComputeFingerprint(f DecodedFrame, binHz int) Fingerprint {
	if binHz <= 0 {
		binHz = ft8BinHz
	}
	return Fingerprint{
		Canonical: canonicalMessage(f.Message),
		FreqBin:   roundDiv(f.FreqHz, binHz),
		TimeBin:   int(roundHalfAwayFromZero(f.DtSec * 10)),
	}
}

func canonicalMessage(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func roundDiv(a, b int) int {
	if b == 0 {
		return a
	}
	return int(roundHalfAwayFromZero(float64(a) / float64(b)))
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}

// WindowStats tracks per-window decode counts inside a slot pack.
type WindowStats struct {
	TotalDecodes int
	LastUpdated  time.Time
	PerWindow    map[int]int
}

// SlotPack is the deduplicated set of frames decoded from one slot.
// Mirrors spec.md §3 "Slot pack". Owned exclusively by the aggregator
// (C4); callers only ever see copies returned by Snapshot().
type SlotPack struct {
	SlotID   string
	ModeName string
	Frames   map[Fingerprint]storedFrame
	Stats    WindowStats
	Sealed   bool
}

type storedFrame struct {
	frame     DecodedFrame
	windowIdx int
}

// SlotPackSnapshot is the immutable, copy-on-send view of a SlotPack
// exposed to subscribers (spec.md §9 "Cyclic references").
type SlotPackSnapshot struct {
	SlotID   string
	ModeName string
	Frames   []DecodedFrame
	Stats    WindowStats
	Sealed   bool
}

// Snapshot returns an immutable copy of the pack suitable for broadcast.
func (p *SlotPack) Snapshot() SlotPackSnapshot {
	frames := make([]DecodedFrame, 0, len(p.Frames))
	for _, sf := range p.Frames {
		frames = append(frames, sf.frame)
	}
	perWindow := make(map[int]int, len(p.Stats.PerWindow))
	for k, v := range p.Stats.PerWindow {
		perWindow[k] = v
	}
	return SlotPackSnapshot{
		SlotID:   p.SlotID,
		ModeName: p.ModeName,
		Frames:   frames,
		Stats: WindowStats{
			TotalDecodes: p.Stats.TotalDecodes,
			LastUpdated:  p.Stats.LastUpdated,
			PerWindow:    perWindow,
		},
		Sealed: p.Sealed,
	}
}

// AutoFlags are the per-operator automation toggles from spec.md §3.
type AutoFlags struct {
	ReplyToCQ       bool
	ResumeCQOnFail  bool
	ResumeCQOnSuccess bool
	ReplyToWorked   bool
	PreferNew       bool
}

// StrategyState is the operator's QSO FSM state, spec.md §4.7.
type StrategyState int

const (
	StateIdle StrategyState = iota
	StateCallingCQ
	StateReplying
	StateExchangingReport
	StateConfirming
	StateCompleted
	StateFailed
)

func (s StrategyState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCallingCQ:
		return "callingCQ"
	case StateReplying:
		return "replying"
	case StateExchangingReport:
		return "exchangingReport"
	case StateConfirming:
		return "confirming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SlotTemplates holds the six deterministically-derived TX text patterns,
// spec.md §3/§4.7.
type SlotTemplates struct {
	TX1, TX2, TX3, TX4, TX5, TX6 string
}

// OperatorContext is the per-operator entity owned exclusively by C7.
// Mirrors spec.md §3 "Operator context".
type OperatorContext struct {
	ID               string
	MyCallsign       string
	MyGrid           string
	TargetCallsign   string
	TargetGrid       string
	FrequencyHz      int
	ReportSent       *int
	ReportReceived   *int
	TransmitPhases   map[Phase]bool
	AutoFlags        AutoFlags
	StrategyState    StrategyState
	CyclesIdle       int
	Templates        SlotTemplates
}

// ValidFrequency checks the §3 invariant frequencyHz ∈ [200,4000].
func (o OperatorContext) ValidFrequency() bool {
	return o.FrequencyHz >= 200 && o.FrequencyHz <= 4000
}

// TransmitRequest is a short-lived value produced by an operator on
// encodeStart. Mirrors spec.md §3 "Transmit request".
type TransmitRequest struct {
	OperatorID   string
	SlotID       string
	SlotStartMs  int64
	Text         string
	FrequencyHz  int
	TargetPlayMs int64
}

// EncodedWaveform is the output of the encode pool. Mirrors spec.md §3
// "Encoded waveform".
type EncodedWaveform struct {
	OperatorID   string
	SlotID       string
	PCM          []float32
	SampleRate   int
	DurationMs   int64
	TargetPlayMs int64
}

// MixedSlotOutput is released by the mixer at most once per outbound
// slot. Mirrors spec.md §3 "Mixed slot output".
type MixedSlotOutput struct {
	SlotID                string
	PCM                   []float32
	SampleRate            int
	TargetPlayMs          int64
	ContributingOperators []string
}

// Spot is the supplemental wire shape SPEC_FULL.md §3 adds for
// publishing a decoded frame to MQTT / WSJT-X UDP style consumers.
type Spot struct {
	SlotID          string
	ModeName        string
	Frame           DecodedFrame
	DialFreqHz      uint64
	StationCallsign string
	StationGrid     string
	Timestamp       time.Time
}

// RadioHealthSample is produced by the health prober (C16) and consumed
// by the radio lifecycle FSM (C9).
type RadioHealthSample struct {
	FrequencyHz   int
	ProbeLatency  time.Duration
	OK            bool
	Err           error
}

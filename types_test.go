package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestModeDescriptorValidate(t *testing.T) {
	m := FT8Mode()
	require.NoError(t, m.Validate())

	bad := m
	bad.Name = ""
	assert.Error(t, bad.Validate())

	bad = m
	bad.SlotMs = 0
	assert.Error(t, bad.Validate())

	bad = m
	bad.WindowOffsetsMs = nil
	assert.Error(t, bad.Validate())
}

func TestAlignToSlot(t *testing.T) {
	assert.Equal(t, int64(15000), AlignToSlot(15999, 15000))
	assert.Equal(t, int64(0), AlignToSlot(14999, 15000))
	assert.Equal(t, int64(30000), AlignToSlot(30000, 15000))
}

func TestNewSlotPhaseAlternates(t *testing.T) {
	mode := FT8Mode()
	s0 := NewSlot(mode.Name, 0, mode.SlotMs)
	s1 := NewSlot(mode.Name, mode.SlotMs, mode.SlotMs)
	assert.NotEqual(t, s0.Phase, s1.Phase)
	assert.True(t, s0.Valid(mode.SlotMs))
	assert.True(t, s1.Valid(mode.SlotMs))
}

func TestSlotValidRejectsMisaligned(t *testing.T) {
	s := Slot{StartMs: 1234, EndMs: 1234 + 15000}
	assert.False(t, s.Valid(15000))
}

func TestTrimmedMessageTruncatesAt22Runes(t *testing.T) {
	f := DecodedFrame{Message: "  this message is deliberately far too long for a real FT8 frame  "}
	trimmed := f.TrimmedMessage()
	assert.LessOrEqual(t, len([]rune(trimmed)), 22)
}

func TestComputeFingerprintCanonicalizesMessage(t *testing.T) {
	a := ComputeFingerprint(DecodedFrame{Message: "  cq k1abc fn42 ", FreqHz: 1500, DtSec: 0.1}, 0)
	b := ComputeFingerprint(DecodedFrame{Message: "CQ K1ABC FN42", FreqHz: 1502, DtSec: 0.12}, 0)
	assert.Equal(t, a, b, "messages differing only by case/whitespace/near-identical freq+dt should collide")
}

func TestComputeFingerprintSeparatesDistinctFreqBins(t *testing.T) {
	a := ComputeFingerprint(DecodedFrame{Message: "CQ K1ABC FN42", FreqHz: 1000, DtSec: 0}, 0)
	b := ComputeFingerprint(DecodedFrame{Message: "CQ K1ABC FN42", FreqHz: 1100, DtSec: 0}, 0)
	assert.NotEqual(t, a.FreqBin, b.FreqBin)
}

func TestSlotPackSnapshotIsACopy(t *testing.T) {
	p := &SlotPack{
		SlotID: "s1",
		Frames: map[Fingerprint]storedFrame{
			{Canonical: "CQ K1ABC FN42"}: {frame: DecodedFrame{Message: "CQ K1ABC FN42"}},
		},
		Stats: WindowStats{PerWindow: map[int]int{0: 1}},
	}
	snap := p.Snapshot()
	snap.Stats.PerWindow[0] = 99
	assert.Equal(t, 1, p.Stats.PerWindow[0], "mutating a snapshot must not affect the owning pack")
}

// Property: fingerprint computation never depends on wall-clock time and is
// deterministic for equal inputs, regardless of freq/dt magnitude.
func TestFingerprintDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msg := rapid.StringMatching(`[A-Z0-9 ]{3,20}`).Draw(t, "msg")
		freq := rapid.IntRange(0, 4000).Draw(t, "freq")
		dt := rapid.Float64Range(-2, 2).Draw(t, "dt")
		frame := DecodedFrame{Message: msg, FreqHz: freq, DtSec: dt}
		a := ComputeFingerprint(frame, 0)
		b := ComputeFingerprint(frame, 0)
		assert.Equal(t, a, b)
	})
}

func TestSlotIDIsStableForSameStart(t *testing.T) {
	now := time.Now().UnixMilli()
	aligned := AlignToSlot(now, 15000)
	s1 := NewSlot("FT8", aligned, 15000)
	s2 := NewSlot("FT8", aligned, 15000)
	assert.Equal(t, s1.ID, s2.ID)
}

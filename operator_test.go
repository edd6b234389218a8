package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOperator() *Operator {
	return NewOperator(OperatorContext{
		ID:             "op1",
		MyCallsign:     "K1ABC",
		MyGrid:         "FN42",
		FrequencyHz:    1500,
		TransmitPhases: map[Phase]bool{PhaseEven: true, PhaseOdd: true},
	}, 4)
}

func TestOperatorStartCQTransitionsFromIdle(t *testing.T) {
	op := newTestOperator()
	op.HandleEvent(OperatorEvent{Kind: EventStartCQ})
	assert.Equal(t, StateCallingCQ, op.CurrentContext().StrategyState)
}

func TestOperatorFullQSOSequence(t *testing.T) {
	op := newTestOperator()
	op.HandleEvent(OperatorEvent{Kind: EventStartCQ})
	require.Equal(t, StateCallingCQ, op.CurrentContext().StrategyState)

	// W9XYZ replies to our CQ.
	op.HandleEvent(OperatorEvent{Kind: EventRxFrame, Frame: DecodedFrame{Message: "W9XYZ K1ABC FN42", SNRdB: -8}})
	ctx := op.CurrentContext()
	require.Equal(t, StateExchangingReport, ctx.StrategyState)
	assert.Equal(t, "W9XYZ", ctx.TargetCallsign)
	require.NotNil(t, ctx.ReportSent)

	op.HandleEvent(OperatorEvent{Kind: EventRxFrame, Frame: DecodedFrame{Message: "W9XYZ K1ABC RR73"}})
	ctx = op.CurrentContext()
	assert.Equal(t, StateConfirming, ctx.StrategyState)

	op.HandleEvent(OperatorEvent{Kind: EventRxFrame, Frame: DecodedFrame{Message: "W9XYZ K1ABC 73"}})
	assert.Equal(t, StateCompleted, op.CurrentContext().StrategyState)
}

func TestOperatorIgnoresUnmatchedFrames(t *testing.T) {
	op := newTestOperator()
	op.HandleEvent(OperatorEvent{Kind: EventStartCQ})
	op.HandleEvent(OperatorEvent{Kind: EventRxFrame, Frame: DecodedFrame{Message: "W5AAA W5BBB FN10"}})
	assert.Equal(t, StateCallingCQ, op.CurrentContext().StrategyState, "a frame not addressed to us must be a no-op")
}

func TestOperatorResetClearsTarget(t *testing.T) {
	op := newTestOperator()
	op.HandleEvent(OperatorEvent{Kind: EventStartCQ})
	op.HandleEvent(OperatorEvent{Kind: EventRxFrame, Frame: DecodedFrame{Message: "W9XYZ K1ABC FN42"}})
	op.HandleEvent(OperatorEvent{Kind: EventReset})

	ctx := op.CurrentContext()
	assert.Equal(t, StateIdle, ctx.StrategyState)
	assert.Empty(t, ctx.TargetCallsign)
	assert.Nil(t, ctx.ReportSent)
}

func TestOperatorTimeoutReemitsCQAfterMaxCyclesIdle(t *testing.T) {
	op := NewOperator(OperatorContext{ID: "op1", MyCallsign: "K1ABC", MyGrid: "FN42", TransmitPhases: map[Phase]bool{PhaseEven: true}}, 2)
	op.HandleEvent(OperatorEvent{Kind: EventStartCQ})

	op.HandleEvent(OperatorEvent{Kind: EventTimeout})
	assert.Equal(t, 1, op.CurrentContext().CyclesIdle)

	op.HandleEvent(OperatorEvent{Kind: EventTimeout})
	assert.Equal(t, 0, op.CurrentContext().CyclesIdle, "cycle counter must reset once maxCyclesIdle is reached")
}

func TestIsTransmitCyclePredicate(t *testing.T) {
	ctx := OperatorContext{TransmitPhases: map[Phase]bool{PhaseEven: true}}
	assert.True(t, IsTransmitCycle(Slot{Phase: PhaseEven}, ctx))
	assert.False(t, IsTransmitCycle(Slot{Phase: PhaseOdd}, ctx))
}

func TestBuildTransmitRequestSilentWhenIdle(t *testing.T) {
	op := newTestOperator()
	_, ok := op.BuildTransmitRequest(Slot{Phase: PhaseEven, StartMs: 0}, FT8Mode())
	assert.False(t, ok, "an idle operator never transmits")
}

func TestBuildTransmitRequestWhenCallingCQ(t *testing.T) {
	op := newTestOperator()
	op.HandleEvent(OperatorEvent{Kind: EventStartCQ})

	mode := FT8Mode()
	req, ok := op.BuildTransmitRequest(Slot{Phase: PhaseEven, StartMs: 15000, ID: "slot1"}, mode)
	require.True(t, ok)
	assert.Equal(t, "op1", req.OperatorID)
	assert.Equal(t, int64(15000+mode.TransmitOffsetMs), req.TargetPlayMs)
	assert.Contains(t, req.Text, "K1ABC")
}

func TestBuildTransmitRequestRespectsPhaseFilter(t *testing.T) {
	op := NewOperator(OperatorContext{ID: "op1", MyCallsign: "K1ABC", MyGrid: "FN42", TransmitPhases: map[Phase]bool{PhaseOdd: true}}, 4)
	op.HandleEvent(OperatorEvent{Kind: EventStartCQ})
	_, ok := op.BuildTransmitRequest(Slot{Phase: PhaseEven}, FT8Mode())
	assert.False(t, ok, "an operator configured only for odd phases must stay silent on even slots")
}

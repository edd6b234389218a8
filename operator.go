package main

import (
	"fmt"
	"strings"
	"sync"
)

// OperatorEvent is the tagged enum of inputs the operator FSM accepts,
// per spec.md §9's "re-architected as a small set of tagged event enums
// with exhaustive handling" note.
type OperatorEventKind int

const (
	EventStartCQ OperatorEventKind = iota
	EventRxFrame
	EventTimeout
	EventReset
)

// OperatorEvent carries the payload for an OperatorEventKind.
type OperatorEvent struct {
	Kind  OperatorEventKind
	Frame DecodedFrame // valid when Kind == EventRxFrame
}

// Operator is C7: the per-operator QSO state machine. It owns its
// OperatorContext exclusively; callers only ever observe it through
// CurrentContext()'s snapshot, per spec.md §9's "no live reference"
// design note. Grounded on the teacher's session.go state-holder shape
// (one mutex-guarded struct per entity, deterministic accessors).
type Operator struct {
	mu  sync.Mutex
	ctx OperatorContext

	maxCyclesIdle int // Cmax in spec.md §4.7's callingCQ timeout transition
}

// NewOperator constructs an idle operator from its initial context.
func NewOperator(ctx OperatorContext, maxCyclesIdle int) *Operator {
	if maxCyclesIdle <= 0 {
		maxCyclesIdle = 4
	}
	ctx.StrategyState = StateIdle
	return &Operator{ctx: ctx, maxCyclesIdle: maxCyclesIdle}
}

// CurrentContext returns a copy of the operator's context.
func (o *Operator) CurrentContext() OperatorContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ctx
}

// HandleEvent applies one event to the state machine per the transition
// table in spec.md §4.7. Unmatched events are no-ops; the machine is
// total and never panics on an unexpected event.
func (o *Operator) HandleEvent(ev OperatorEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch ev.Kind {
	case EventReset:
		o.ctx.TargetCallsign = ""
		o.ctx.TargetGrid = ""
		o.ctx.ReportSent = nil
		o.ctx.ReportReceived = nil
		o.ctx.StrategyState = StateIdle
		o.deriveTemplates()
		return
	case EventStartCQ:
		if o.ctx.StrategyState == StateIdle {
			o.ctx.StrategyState = StateCallingCQ
			o.ctx.CyclesIdle = 0
			o.deriveTemplates()
		}
		return
	case EventTimeout:
		if o.ctx.StrategyState == StateCallingCQ {
			o.ctx.CyclesIdle++
			if o.ctx.CyclesIdle >= o.maxCyclesIdle {
				o.ctx.CyclesIdle = 0
				o.deriveTemplates() // re-emit CQ
			}
		}
		return
	case EventRxFrame:
		o.handleRxFrame(ev.Frame)
		return
	}
}

// handleRxFrame implements the rx* transitions. Must be called with
// o.mu held.
func (o *Operator) handleRxFrame(frame DecodedFrame) {
	pm := ParseMessage(frame.TrimmedMessage())

	switch o.ctx.StrategyState {
	case StateIdle:
		if AddressedToMe(pm, o.ctx.MyCallsign) {
			o.ctx.TargetCallsign = pm.FirstCallsign
			o.ctx.StrategyState = StateReplying
			o.deriveTemplates()
		}
	case StateCallingCQ:
		if AddressedToMe(pm, o.ctx.MyCallsign) {
			o.ctx.TargetCallsign = pm.FirstCallsign
			sent := frame.SNRdB
			o.ctx.ReportSent = &sent
			o.ctx.StrategyState = StateExchangingReport
			o.deriveTemplates()
		}
	case StateReplying:
		if MatchesTarget(pm, o.ctx.TargetCallsign) {
			received := frame.SNRdB
			o.ctx.ReportReceived = &received
			o.ctx.StrategyState = StateExchangingReport
			o.deriveTemplates()
		}
	case StateExchangingReport:
		if MatchesTarget(pm, o.ctx.TargetCallsign) && (pm.ThirdField == "RR73" || pm.ThirdField == "RRR") {
			o.ctx.StrategyState = StateConfirming
			o.deriveTemplates()
		}
	case StateConfirming:
		if MatchesTarget(pm, o.ctx.TargetCallsign) && pm.ThirdField == "73" {
			o.ctx.StrategyState = StateCompleted
			o.deriveTemplates()
		}
	}
	// StateCompleted, StateFailed: rxMismatchTarget / any unmatched rx is a no-op.
}

// deriveTemplates re-derives the six TX slot templates from the current
// context, per spec.md §3's "on every state entry the six slot
// templates are deterministically re-derived" invariant. Must be called
// with o.mu held.
func (o *Operator) deriveTemplates() {
	my := o.ctx.MyCallsign
	target := o.ctx.TargetCallsign
	grid := o.ctx.MyGrid

	sent := reportText(o.ctx.ReportSent)

	o.ctx.Templates = SlotTemplates{
		TX1: fmt.Sprintf("%s %s %s", target, my, grid),
		TX2: fmt.Sprintf("%s %s %s", target, my, sent),
		TX3: fmt.Sprintf("%s %s R%s", target, my, sent),
		TX4: fmt.Sprintf("%s %s RR73", target, my),
		TX5: fmt.Sprintf("%s %s 73", target, my),
		TX6: fmt.Sprintf("CQ %s %s", my, grid),
	}
}

func reportText(r *int) string {
	if r == nil {
		return ""
	}
	if *r >= 0 {
		return fmt.Sprintf("+%02d", *r)
	}
	return fmt.Sprintf("%03d", *r)
}

// IsTransmitCycle is the pure predicate from spec.md §4.7:
// isTransmitCycle(slot, operator) = slot.phase ∈ operator.transmitPhases.
func IsTransmitCycle(slot Slot, operator OperatorContext) bool {
	return operator.TransmitPhases[slot.Phase]
}

// TemplateForState selects which of the six slot templates corresponds
// to the operator's current strategy state, per spec.md §4.7.
func TemplateForState(state StrategyState, t SlotTemplates) string {
	switch state {
	case StateCallingCQ:
		return t.TX6
	case StateReplying:
		return t.TX2
	case StateExchangingReport:
		return t.TX3
	case StateConfirming:
		return t.TX4
	case StateCompleted:
		return t.TX5
	default:
		return t.TX1
	}
}

// BuildTransmitRequest evaluates the transmit-cycle predicate and, if
// true, produces the operator's TransmitRequest for encodeStart(slot),
// per spec.md §4.7. Returns ok=false when the operator stays silent.
func (o *Operator) BuildTransmitRequest(slot Slot, mode ModeDescriptor) (TransmitRequest, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !IsTransmitCycle(slot, o.ctx) {
		return TransmitRequest{}, false
	}
	if o.ctx.StrategyState == StateIdle || o.ctx.StrategyState == StateCompleted || o.ctx.StrategyState == StateFailed {
		return TransmitRequest{}, false
	}

	text := TemplateForState(o.ctx.StrategyState, o.ctx.Templates)
	text = strings.TrimSpace(text)

	return TransmitRequest{
		OperatorID:   o.ctx.ID,
		SlotID:       slot.ID,
		SlotStartMs:  slot.StartMs,
		Text:         text,
		FrequencyHz:  o.ctx.FrequencyHz,
		TargetPlayMs: slot.StartMs + mode.TransmitOffsetMs,
	}, true
}

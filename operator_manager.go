package main

import (
	"sync"
)

// OperatorManager is C8: owns the set of operators, dispatches their
// transmit requests to the encode pool on encodeStart, and is the sole
// authority that feeds the mixer, per spec.md §4.8 ("C7 never touches
// C6"). Grounded on the teacher's SessionManager registry shape in
// session.go (deleted): a mutex-guarded map plus lifecycle accessors.
type OperatorManager struct {
	mode ModeDescriptor
	pool *EncodePool
	mix  *AudioMixer

	mu        sync.RWMutex
	operators map[string]*Operator
	enabled   map[string]bool
}

// NewOperatorManager wires the manager to its downstream encode pool
// and mixer.
func NewOperatorManager(mode ModeDescriptor, pool *EncodePool, mix *AudioMixer) *OperatorManager {
	return &OperatorManager{
		mode:      mode,
		pool:      pool,
		mix:       mix,
		operators: make(map[string]*Operator),
		enabled:   make(map[string]bool),
	}
}

// AddOperator registers an operator, enabled by default.
func (m *OperatorManager) AddOperator(op *Operator) {
	ctx := op.CurrentContext()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operators[ctx.ID] = op
	m.enabled[ctx.ID] = true
}

// RemoveOperator unregisters an operator.
func (m *OperatorManager) RemoveOperator(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.operators, id)
	delete(m.enabled, id)
}

// SetEnabled toggles whether an operator participates in transmit
// cycles, per the setClientEnabledOperators inbound command (spec.md
// §6).
func (m *OperatorManager) SetEnabled(id string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.operators[id]; ok {
		m.enabled[id] = enabled
	}
}

// AllOperatorIDs returns every registered operator ID, for control-API
// handlers that need to reconcile an explicit enabled set (e.g.
// setClientEnabledOperators, spec.md §6) against the full roster.
func (m *OperatorManager) AllOperatorIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.operators))
	for id := range m.operators {
		ids = append(ids, id)
	}
	return ids
}

// Operator returns the named operator, if registered.
func (m *OperatorManager) Operator(id string) (*Operator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	op, ok := m.operators[id]
	return op, ok
}

// DispatchFrame fans a decoded frame out to every enabled operator, for
// the rxAddressedToMe/rxReplyToMe/rxReportFromTarget/rxRogerReport/rx73
// family of transitions in spec.md §4.7.
func (m *OperatorManager) DispatchFrame(frame DecodedFrame) {
	for _, op := range m.enabledOperators() {
		op.HandleEvent(OperatorEvent{Kind: EventRxFrame, Frame: frame})
	}
}

// OnSlotPackUpdated implements SlotPackListener so the manager can be
// subscribed directly to the aggregator.
func (m *OperatorManager) OnSlotPackUpdated(pack SlotPackSnapshot) {
	for _, f := range pack.Frames {
		m.DispatchFrame(f)
	}
}

func (m *OperatorManager) OnSlotPackSealed(pack SlotPackSnapshot) {}

// OnEncodeStart implements SlotClockListener's half relevant to C8: for
// every enabled operator whose transmit-cycle predicate holds, collect
// a transmit request, register it with the mixer as an expected
// contributor, then dispatch to the encode pool in one pass — all
// requests for this event share the event's slotStartMs, per spec.md
// §4.8's cross-cycle consistency requirement.
func (m *OperatorManager) OnEncodeStart(slot Slot) {
	for _, op := range m.enabledOperators() {
		req, ok := op.BuildTransmitRequest(slot, m.mode)
		if !ok {
			continue
		}
		m.mix.ExpectOperator(req.SlotID, req.OperatorID, req.TargetPlayMs)
		m.pool.Submit(req, m.mode.Name, 48000)
	}
}

// OnSlotStart and OnTransmitStart satisfy SlotClockListener; the
// manager has nothing to do at those instants (C9 owns PTT/playback).
func (m *OperatorManager) OnSlotStart(slot Slot)     {}
func (m *OperatorManager) OnTransmitStart(slot Slot) {}

// Override issues a fresh encode mid-slot, replacing the pending mix
// entry for operatorID's slot, per spec.md §4.8's mid-slot override
// handling. Callers (the control API) are responsible for checking the
// time-budget guard described in spec.md §8 scenario 6 before calling
// this.
func (m *OperatorManager) Override(operatorID string, slot Slot) {
	op, ok := m.Operator(operatorID)
	if !ok {
		return
	}
	req, ok := op.BuildTransmitRequest(slot, m.mode)
	if !ok {
		return
	}
	m.mix.ExpectOperator(req.SlotID, req.OperatorID, req.TargetPlayMs)
	m.pool.Submit(req, m.mode.Name, 48000)
}

func (m *OperatorManager) enabledOperators() []*Operator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Operator, 0, len(m.operators))
	for id, op := range m.operators {
		if m.enabled[id] {
			out = append(out, op)
		}
	}
	return out
}

// ConsumeEncodeResults wires the encode pool's result stream into the
// mixer (success) or a diagnostic log (failure); call this from a
// goroutine reading the channel passed to EncodePool.Subscribe.
func (m *OperatorManager) ConsumeEncodeResults(results <-chan EncodeResult) {
	for res := range results {
		if res.Err != nil {
			continue // EncodeError already logged by the pool
		}
		m.mix.AddAudio(res.Waveform)
	}
}

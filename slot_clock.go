package main

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// SlotClockListener receives the four event streams from the slot clock
// (C2). Handlers run on the clock's own cooperative goroutine, never on
// an audio callback; a panic inside a handler is recovered and logged so
// it cannot take down other subscribers or later events.
type SlotClockListener interface {
	OnSlotStart(slot Slot)
	OnSubWindow(req SubWindowRequest)
	OnEncodeStart(slot Slot)
	OnTransmitStart(slot Slot)
}

// SlotClock drives the engine's single logical timeline. Grounded on the
// teacher's timer-driven scheduling idiom (session pruning tickers in
// session.go), generalized from a fixed interval to the UTC slot
// alignment spec.md §4.2 requires.
type SlotClock struct {
	mode ModeDescriptor

	mu        sync.RWMutex
	listeners []SlotClockListener

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSlotClock builds a clock for the given mode. Call Start to begin
// emitting events.
func NewSlotClock(mode ModeDescriptor) *SlotClock {
	return &SlotClock{mode: mode}
}

// Subscribe registers a listener. Must be called before Start for
// deterministic delivery of the first slot's events.
func (c *SlotClock) Subscribe(l SlotClockListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Start begins the clock loop with the slot that contains the current
// time. Events of that slot whose deadline already lies more than
// toleranceMs in the past are skipped, never fired late; its remaining
// events fire on schedule.
func (c *SlotClock) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx)
}

// Stop halts the clock and waits for the loop goroutine to exit.
func (c *SlotClock) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *SlotClock) run(ctx context.Context) {
	defer close(c.done)

	slotMs := c.mode.SlotMs
	nowMs := time.Now().UnixMilli()
	startMs := AlignToSlot(nowMs, slotMs)

	for {
		slot := NewSlot(c.mode.Name, startMs, slotMs)
		if !c.runSlot(ctx, slot) {
			return
		}
		// Recompute against the wall clock each slot rather than only
		// adding slotMs, so a stalled loop resumes at the current slot.
		startMs = max(startMs+slotMs, AlignToSlot(time.Now().UnixMilli(), slotMs))
	}
}

// runSlot schedules and fires every event belonging to one slot,
// skipping any whose wall-clock deadline has already passed by more
// than toleranceMs (so a clock started mid-slot never fires stale
// events). Returns false if the context was cancelled.
func (c *SlotClock) runSlot(ctx context.Context, slot Slot) bool {
	type scheduled struct {
		atMs int64
		fire func()
	}

	var events []scheduled
	events = append(events, scheduled{slot.StartMs, func() { c.emitSlotStart(slot) }})
	for idx, offset := range c.mode.WindowOffsetsMs {
		idx, offset := idx, offset
		atMs := slot.EndMs + offset
		req := SubWindowRequest{
			SlotID:            slot.ID,
			ModeName:          slot.ModeName,
			WindowIdx:         idx,
			CaptureStartMs:    atMs - c.mode.SlotMs,
			CaptureDurationMs: c.mode.SlotMs,
			TargetSampleRate:  12000,
		}
		events = append(events, scheduled{atMs, func() { c.emitSubWindow(req) }})
	}
	events = append(events, scheduled{slot.StartMs + c.mode.TransmitOffsetMs - c.mode.EncodeAdvanceMs, func() { c.emitEncodeStart(slot) }})
	events = append(events, scheduled{slot.StartMs + c.mode.TransmitOffsetMs, func() { c.emitTransmitStart(slot) }})

	sort.Slice(events, func(i, j int) bool { return events[i].atMs < events[j].atMs })

	for _, ev := range events {
		if !c.waitUntil(ctx, ev.atMs) {
			if ctx.Err() != nil {
				return false
			}
			continue // stale: skip, do not fire late
		}
		ev.fire()
	}
	return true
}

// waitUntil blocks until wall-clock atMs, returning false without
// firing if atMs already lies more than toleranceMs in the past (the
// event is stale) or if ctx is cancelled.
func (c *SlotClock) waitUntil(ctx context.Context, atMs int64) bool {
	now := time.Now().UnixMilli()
	remaining := atMs - now
	if remaining < -c.mode.ToleranceMs {
		return false
	}
	if remaining <= 0 {
		return true
	}
	t := time.NewTimer(time.Duration(remaining) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *SlotClock) emitSlotStart(slot Slot) {
	for _, l := range c.snapshotListeners() {
		safeCall(func() { l.OnSlotStart(slot) })
	}
}

func (c *SlotClock) emitSubWindow(req SubWindowRequest) {
	for _, l := range c.snapshotListeners() {
		safeCall(func() { l.OnSubWindow(req) })
	}
}

func (c *SlotClock) emitEncodeStart(slot Slot) {
	for _, l := range c.snapshotListeners() {
		safeCall(func() { l.OnEncodeStart(slot) })
	}
}

func (c *SlotClock) emitTransmitStart(slot Slot) {
	for _, l := range c.snapshotListeners() {
		safeCall(func() { l.OnTransmitStart(slot) })
	}
}

func (c *SlotClock) snapshotListeners() []SlotClockListener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SlotClockListener, len(c.listeners))
	copy(out, c.listeners)
	return out
}

// safeCall isolates one listener's panic so it cannot take down the
// clock loop or other subscribers, per spec.md §4.2.
func safeCall(f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("slot clock: listener panic recovered: %v", r)
		}
	}()
	f()
}

package main

import (
	"container/list"
	"sync"
	"time"
)

// SlotPackListener receives aggregator broadcasts.
type SlotPackListener interface {
	OnSlotPackUpdated(pack SlotPackSnapshot)
	OnSlotPackSealed(pack SlotPackSnapshot)
}

// SlotPackAggregator is C4: dedup and merge of decode results into one
// pack per slot. Grounded on the teacher's bounded-map-with-mutex
// pattern in session.go (SessionManager), generalized from session
// bookkeeping to fingerprint-keyed frame merge per spec.md §4.4.
type SlotPackAggregator struct {
	sealGraceMs  int64
	retainCount  int
	windowCounts map[string]int // slotID -> scheduled window count

	mu      sync.Mutex
	packs   map[string]*SlotPack
	order   *list.List // LRU of sealed slotIDs, front = most recently sealed
	elems   map[string]*list.Element

	listenersMu sync.RWMutex
	listeners   []SlotPackListener
}

// NewSlotPackAggregator builds an aggregator. sealGraceMs and
// retainCount default to the spec's 2000ms / 64-pack values when <= 0.
func NewSlotPackAggregator(sealGraceMs int64, retainCount int) *SlotPackAggregator {
	if sealGraceMs <= 0 {
		sealGraceMs = 2000
	}
	if retainCount <= 0 {
		retainCount = 64
	}
	return &SlotPackAggregator{
		sealGraceMs:  sealGraceMs,
		retainCount:  retainCount,
		windowCounts: make(map[string]int),
		packs:        make(map[string]*SlotPack),
		order:        list.New(),
		elems:        make(map[string]*list.Element),
	}
}

func (a *SlotPackAggregator) Subscribe(l SlotPackListener) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	a.listeners = append(a.listeners, l)
}

// ExpectWindows records how many sub-windows are scheduled for a slot,
// so the aggregator knows when "all scheduled windows have reported".
// Called by the owner once per slot, typically from OnSlotStart.
func (a *SlotPackAggregator) ExpectWindows(slotID string, count int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.windowCounts[slotID] = count
}

// Ingest merges one decode result into its slot's pack.
func (a *SlotPackAggregator) Ingest(res DecodeResult) {
	if res.Err != nil {
		return // decode faults carry no frames to merge; surfaced separately
	}

	a.mu.Lock()
	pack, ok := a.packs[res.Request.SlotID]
	if !ok {
		if _, sealed := a.elems[res.Request.SlotID]; sealed {
			a.mu.Unlock()
			return // ErrSlotSealed: stale result for an already-evicted slot
		}
		pack = &SlotPack{
			SlotID:   res.Request.SlotID,
			ModeName: res.Request.ModeName,
			Frames:   make(map[Fingerprint]storedFrame),
			Stats:    WindowStats{PerWindow: make(map[int]int)},
		}
		a.packs[res.Request.SlotID] = pack
	}
	if pack.Sealed {
		a.mu.Unlock()
		return
	}

	for _, f := range res.Frames {
		fp := ComputeFingerprint(f, ft8BinHz)
		existing, exists := pack.Frames[fp]
		if !exists || f.SNRdB > existing.frame.SNRdB {
			pack.Frames[fp] = storedFrame{frame: f, windowIdx: res.Request.WindowIdx}
		}
	}
	pack.Stats.TotalDecodes += len(res.Frames)
	pack.Stats.PerWindow[res.Request.WindowIdx]++
	pack.Stats.LastUpdated = time.Now()

	expected := a.windowCounts[res.Request.SlotID]
	shouldSeal := expected > 0 && len(pack.Stats.PerWindow) >= expected
	snapshot := pack.Snapshot()
	a.mu.Unlock()

	a.broadcastUpdate(snapshot)
	if shouldSeal {
		a.Seal(res.Request.SlotID)
	}
}

// Seal marks a slot pack complete, broadcasts the final snapshot, and
// moves it into the bounded LRU retention set. Safe to call more than
// once; subsequent calls are no-ops.
func (a *SlotPackAggregator) Seal(slotID string) {
	a.mu.Lock()
	pack, ok := a.packs[slotID]
	if !ok || pack.Sealed {
		a.mu.Unlock()
		return
	}
	pack.Sealed = true
	snapshot := pack.Snapshot()
	a.touchLRU(slotID)
	a.evictIfNeeded()
	a.mu.Unlock()

	a.broadcastSealed(snapshot)
}

// SealExpired seals any slot pack whose grace period has elapsed,
// per spec.md §4.4's "now > slot.endMs + sealGraceMs" policy. Callers
// invoke this periodically (e.g., on each slotStart tick).
func (a *SlotPackAggregator) SealExpired(slotEndMsOf func(slotID string) (int64, bool)) {
	nowMs := time.Now().UnixMilli()

	a.mu.Lock()
	var toSeal []string
	for slotID, pack := range a.packs {
		if pack.Sealed {
			continue
		}
		endMs, ok := slotEndMsOf(slotID)
		if !ok {
			continue
		}
		if nowMs > endMs+a.sealGraceMs {
			toSeal = append(toSeal, slotID)
		}
	}
	a.mu.Unlock()

	for _, id := range toSeal {
		a.Seal(id)
	}
}

// touchLRU must be called with a.mu held.
func (a *SlotPackAggregator) touchLRU(slotID string) {
	if elem, ok := a.elems[slotID]; ok {
		a.order.MoveToFront(elem)
		return
	}
	elem := a.order.PushFront(slotID)
	a.elems[slotID] = elem
}

// evictIfNeeded must be called with a.mu held.
func (a *SlotPackAggregator) evictIfNeeded() {
	for a.order.Len() > a.retainCount {
		back := a.order.Back()
		if back == nil {
			return
		}
		slotID := back.Value.(string)
		a.order.Remove(back)
		delete(a.elems, slotID)
		delete(a.packs, slotID)
		delete(a.windowCounts, slotID)
	}
}

// Snapshot returns the current (possibly unsealed) pack for a slot, if any.
func (a *SlotPackAggregator) Snapshot(slotID string) (SlotPackSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pack, ok := a.packs[slotID]
	if !ok {
		return SlotPackSnapshot{}, false
	}
	return pack.Snapshot(), true
}

func (a *SlotPackAggregator) broadcastUpdate(snap SlotPackSnapshot) {
	a.listenersMu.RLock()
	defer a.listenersMu.RUnlock()
	for _, l := range a.listeners {
		safeCall(func() { l.OnSlotPackUpdated(snap) })
	}
}

func (a *SlotPackAggregator) broadcastSealed(snap SlotPackSnapshot) {
	a.listenersMu.RLock()
	defer a.listenersMu.RUnlock()
	for _, l := range a.listeners {
		safeCall(func() { l.OnSlotPackSealed(snap) })
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"sync"

	"gonum.org/v1/gonum/interp"
)

// DecodeTask is one submitted decode job, produced from a SubWindowRequest
// once PCM has been read from C1.
type DecodeTask struct {
	Request SubWindowRequest
	PCM     []float32
}

// DecodeResult is delivered to C4 for every completed (or failed) task.
type DecodeResult struct {
	Request SubWindowRequest
	Frames  []DecodedFrame
	Err     error
}

// AudioSourceReader is the subset of RingAudioBuffer the decode pool
// needs: read a wall-clock range of PCM at its native sample rate.
type AudioSourceReader interface {
	Read(startMs, durationMs int64) ([]float32, error)
	SampleRate() int
}

// DecodePool is C3: a fixed-size worker pool invoking the external
// decode function. Grounded on the teacher's decoder_spawner.go task-
// queue-with-worker-goroutines shape (deleted), generalized from
// spawning OS subprocesses to pure in-process function calls per
// spec.md §6, and bounded with drop-oldest backpressure per spec.md §4.3.
type DecodePool struct {
	decoder    Decoder
	source     AudioSourceReader
	maxBacklog int

	mu      sync.Mutex
	queue   []DecodeTask
	cancels map[string]bool // slotIDs whose pending/in-flight tasks are cancelled

	tasks chan DecodeTask

	resultsMu sync.Mutex
	results   []chan<- DecodeResult

	wg sync.WaitGroup
}

// NewDecodePool creates a pool with workerCount workers and the given
// backlog bound.
func NewDecodePool(decoder Decoder, source AudioSourceReader, workerCount, maxBacklog int) *DecodePool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &DecodePool{
		decoder:    decoder,
		source:     source,
		maxBacklog: maxBacklog,
		cancels:    make(map[string]bool),
		tasks:      make(chan DecodeTask, maxBacklog),
	}
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Subscribe registers a channel to receive decode results. Must not be
// called concurrently with Submit.
func (p *DecodePool) Subscribe(ch chan<- DecodeResult) {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	p.results = append(p.results, ch)
}

// Submit reads PCM for the requested window, resamples it from the
// capture device's native rate to req.TargetSampleRate (12000 Hz per
// spec.md §4.3) and enqueues a decode task. If the queue is full, the
// oldest queued task is dropped (not this new one) so recent
// sub-windows are favored, and ErrDecodeDropped is surfaced for the
// dropped task via a synthetic result.
func (p *DecodePool) Submit(req SubWindowRequest) {
	pcm, err := p.source.Read(req.CaptureStartMs, req.CaptureDurationMs)
	if err != nil {
		p.publish(DecodeResult{Request: req, Err: err})
		return
	}

	if req.TargetSampleRate > 0 {
		resampled, err := resamplePCM(pcm, p.source.SampleRate(), req.TargetSampleRate)
		if err != nil {
			p.publish(DecodeResult{Request: req, Err: err})
			return
		}
		pcm = resampled
	}

	task := DecodeTask{Request: req, PCM: pcm}
	select {
	case p.tasks <- task:
	default:
		p.dropOldestAndRetry(task)
	}
}

// resamplePCM converts pcm captured at fromRate to toRate via piecewise
// linear interpolation (gonum.org/v1/gonum/interp, already pulled in by
// spectrum.go's FFT path), per spec.md §4.3's "resample to
// targetSampleRate" requirement on the decode coordinator.
func resamplePCM(pcm []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate == toRate || len(pcm) < 2 {
		return pcm, nil
	}

	xs := make([]float64, len(pcm))
	ys := make([]float64, len(pcm))
	for i, s := range pcm {
		xs[i] = float64(i) / float64(fromRate)
		ys[i] = float64(s)
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("decode pool: resample fit: %w", err)
	}

	durationSec := xs[len(xs)-1]
	outN := int(durationSec * float64(toRate))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		t := float64(i) / float64(toRate)
		if t > durationSec {
			t = durationSec
		}
		out[i] = float32(pl.Predict(t))
	}
	return out, nil
}

func (p *DecodePool) dropOldestAndRetry(task DecodeTask) {
	select {
	case old := <-p.tasks:
		p.publish(DecodeResult{Request: old.Request, Err: ErrDecodeDropped})
	default:
	}
	select {
	case p.tasks <- task:
	default:
		p.publish(DecodeResult{Request: task.Request, Err: ErrDecodeDropped})
	}
}

// CancelSlot marks a slot's outstanding tasks as cancelled. Workers
// check this before doing expensive decode work, per spec.md §4.3's
// "check cancellation before expensive work only" policy.
func (p *DecodePool) CancelSlot(slotID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels[slotID] = true
}

func (p *DecodePool) isCancelled(slotID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancels[slotID]
}

func (p *DecodePool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		if p.isCancelled(task.Request.SlotID) {
			continue
		}
		frames, err := p.decoder.Decode(context.Background(), task.PCM, task.Request.ModeName)
		if err != nil {
			err = &DecodeError{SlotID: task.Request.SlotID, WindowIdx: task.Request.WindowIdx, Message: err.Error()}
			log.Printf("decode pool: %v", err)
		}
		p.publish(DecodeResult{Request: task.Request, Frames: frames, Err: err})
	}
}

func (p *DecodePool) publish(res DecodeResult) {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	for _, ch := range p.results {
		select {
		case ch <- res:
		default:
			log.Printf("decode pool: result consumer backlogged, dropping result for slot %s", res.Request.SlotID)
		}
	}
}

// Close stops accepting new work and waits for in-flight tasks to drain.
func (p *DecodePool) Close() {
	close(p.tasks)
	p.wg.Wait()
}

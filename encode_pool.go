package main

import (
	"context"
	"log"
	"sync"
)

// EncodeTask is one submitted encode job.
type EncodeTask struct {
	Request    TransmitRequest
	ModeName   string
	SampleRate int
}

// EncodeResult is delivered to C8 for every completed (or failed) task.
type EncodeResult struct {
	Request  TransmitRequest
	Waveform EncodedWaveform
	Err      error
}

// EncodePool is C5: same shape as the decode pool but inverted, per
// spec.md §4.5. Grounded on the identical decoder_spawner.go worker-pool
// pattern as DecodePool, sized smaller since encoding is cheaper.
type EncodePool struct {
	encoder Encoder
	tasks   chan EncodeTask

	resultsMu sync.Mutex
	results   []chan<- EncodeResult

	wg sync.WaitGroup
}

// NewEncodePool creates a pool with workerCount workers.
func NewEncodePool(encoder Encoder, workerCount, queueDepth int) *EncodePool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueDepth < 1 {
		queueDepth = 16
	}
	p := &EncodePool{
		encoder: encoder,
		tasks:   make(chan EncodeTask, queueDepth),
	}
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *EncodePool) Subscribe(ch chan<- EncodeResult) {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	p.results = append(p.results, ch)
}

// Submit enqueues a transmit request for encoding at the mixer's
// internal sample rate (48000 Hz output, per spec.md §3), upsampled
// from the encoder's native 12kHz by the encoder boundary itself.
func (p *EncodePool) Submit(req TransmitRequest, modeName string, sampleRate int) {
	select {
	case p.tasks <- EncodeTask{Request: req, ModeName: modeName, SampleRate: sampleRate}:
	default:
		p.publish(EncodeResult{Request: req, Err: &EncodeError{OperatorID: req.OperatorID, SlotID: req.SlotID, Message: "encode pool backlogged"}})
	}
}

func (p *EncodePool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		pcm, err := p.encoder.Encode(context.Background(), task.Request.Text, task.ModeName, task.Request.FrequencyHz, task.SampleRate)
		if err != nil {
			wrapped := &EncodeError{OperatorID: task.Request.OperatorID, SlotID: task.Request.SlotID, Message: err.Error()}
			log.Printf("encode pool: %v", wrapped)
			p.publish(EncodeResult{Request: task.Request, Err: wrapped})
			continue
		}
		durationMs := int64(len(pcm)) * 1000 / int64(task.SampleRate)
		waveform := EncodedWaveform{
			OperatorID:   task.Request.OperatorID,
			SlotID:       task.Request.SlotID,
			PCM:          pcm,
			SampleRate:   task.SampleRate,
			DurationMs:   durationMs,
			TargetPlayMs: task.Request.TargetPlayMs,
		}
		p.publish(EncodeResult{Request: task.Request, Waveform: waveform})
	}
}

func (p *EncodePool) publish(res EncodeResult) {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	for _, ch := range p.results {
		select {
		case ch <- res:
		default:
			log.Printf("encode pool: result consumer backlogged, dropping result for operator %s", res.Request.OperatorID)
		}
	}
}

// Close stops accepting new work and waits for in-flight tasks to drain.
func (p *EncodePool) Close() {
	close(p.tasks)
	p.wg.Wait()
}

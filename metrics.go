package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineMetrics is C14: the Prometheus collector set for the
// coordination layer. Grounded on the teacher's PrometheusMetrics
// struct shape (deleted prometheus.go): one promauto-registered
// GaugeVec/Counter field per observable, served via promhttp, but
// re-scoped from SDR noise-floor/CW-skimmer telemetry to the FT8/FT4
// engine's own components (decode pool, slot pack, mixer, radio FSM).
type EngineMetrics struct {
	decodeTasksTotal   *prometheus.CounterVec // labels: result=ok|dropped|fault
	decodeLatencyMs    prometheus.Histogram
	slotPackFrames     *prometheus.GaugeVec // labels: slot_id (most recent only, set on seal)
	slotPackSealed     prometheus.Counter
	encodeTasksTotal   *prometheus.CounterVec // labels: result=ok|fault
	mixerReleases      prometheus.Counter
	mixerDiscarded     prometheus.Counter
	radioState         prometheus.Gauge // numeric RadioState
	radioReconnects    prometheus.Counter
	engineState        prometheus.Gauge // numeric EngineState
	operatorState      *prometheus.GaugeVec // labels: operator_id; numeric StrategyState
}

// NewEngineMetrics registers every collector with the default registry.
func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		decodeTasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ft8engine_decode_tasks_total",
			Help: "Decode tasks completed, partitioned by result.",
		}, []string{"result"}),
		decodeLatencyMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ft8engine_decode_latency_ms",
			Help:    "Wall-clock time spent in the external decode function.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
		slotPackFrames: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ft8engine_slot_pack_frames",
			Help: "Frame count of the most recently sealed slot pack.",
		}, []string{"slot_id"}),
		slotPackSealed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ft8engine_slot_packs_sealed_total",
			Help: "Slot packs sealed.",
		}),
		encodeTasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ft8engine_encode_tasks_total",
			Help: "Encode tasks completed, partitioned by result.",
		}, []string{"result"}),
		mixerReleases: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ft8engine_mixer_releases_total",
			Help: "mixedAudioReady events emitted.",
		}),
		mixerDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ft8engine_mixer_discarded_total",
			Help: "Mixer windows discarded for arriving past playSkipMs.",
		}),
		radioState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ft8engine_radio_state",
			Help: "Current RadioState ordinal (0=disconnected..4=error).",
		}),
		radioReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ft8engine_radio_reconnects_total",
			Help: "Transitions of the radio lifecycle FSM into reconnecting.",
		}),
		engineState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ft8engine_engine_state",
			Help: "Current EngineState ordinal (0=idle..4=error).",
		}),
		operatorState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ft8engine_operator_state",
			Help: "Current StrategyState ordinal per operator.",
		}, []string{"operator_id"}),
	}
}

// Handler returns the HTTP handler to mount at the Prometheus scrape
// endpoint.
func (m *EngineMetrics) Handler() http.Handler {
	return promhttp.Handler()
}

// OnSlotPackSealed implements SlotPackListener so metrics can subscribe
// directly to the aggregator.
func (m *EngineMetrics) OnSlotPackSealed(pack SlotPackSnapshot) {
	m.slotPackSealed.Inc()
	m.slotPackFrames.Reset()
	m.slotPackFrames.WithLabelValues(pack.SlotID).Set(float64(len(pack.Frames)))
}

func (m *EngineMetrics) OnSlotPackUpdated(pack SlotPackSnapshot) {}

// OnRadioStateChanged implements RadioStateListener.
func (m *EngineMetrics) OnRadioStateChanged(prev, next RadioState) {
	m.radioState.Set(float64(next))
	if next == RadioReconnecting {
		m.radioReconnects.Inc()
	}
}

func (m *EngineMetrics) OnReconnectStopped() {}

// RecordEngineState records the Engine Lifecycle FSM's current state.
func (m *EngineMetrics) RecordEngineState(s EngineState) {
	m.engineState.Set(float64(s))
}

// RecordOperatorState records one operator's current strategy state.
func (m *EngineMetrics) RecordOperatorState(operatorID string, s StrategyState) {
	m.operatorState.WithLabelValues(operatorID).Set(float64(s))
}

// RecordDecodeResult tallies one decode pool outcome.
func (m *EngineMetrics) RecordDecodeResult(res DecodeResult) {
	switch {
	case res.Err == nil:
		m.decodeTasksTotal.WithLabelValues("ok").Inc()
	case res.Err == ErrDecodeDropped:
		m.decodeTasksTotal.WithLabelValues("dropped").Inc()
	default:
		m.decodeTasksTotal.WithLabelValues("fault").Inc()
	}
}

// RecordEncodeResult tallies one encode pool outcome.
func (m *EngineMetrics) RecordEncodeResult(res EncodeResult) {
	if res.Err == nil {
		m.encodeTasksTotal.WithLabelValues("ok").Inc()
		return
	}
	m.encodeTasksTotal.WithLabelValues("fault").Inc()
}

// OnMixedAudioReady implements MixedAudioListener.
func (m *EngineMetrics) OnMixedAudioReady(out MixedSlotOutput) {
	m.mixerReleases.Inc()
}

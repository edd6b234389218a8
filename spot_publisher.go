package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// SpotPublisher is C15: publishes decoded frames (and, whenever
// PublishMetricsSnapshot is called, a metrics snapshot) to MQTT for external spot aggregators, the
// supplemental feature SPEC_FULL.md §3 adds beyond spec.md's core
// scope. Grounded on the teacher's MQTTPublisher (deleted
// mqtt_publisher.go): same paho client-options/auto-reconnect setup and
// the same prometheus.DefaultGatherer.Gather()+dto.Metric extraction
// idiom for the metrics snapshot, re-scoped from SDR noise-floor
// telemetry to FT8/FT4 spot records.
type SpotPublisher struct {
	client    mqtt.Client
	topicRoot string
	qos       byte
}

// SpotPayload is the wire shape published for one decoded frame.
type SpotPayload struct {
	Timestamp       int64  `json:"timestamp"`
	SlotID          string `json:"slot_id"`
	Mode            string `json:"mode"`
	Message         string `json:"message"`
	SNRdB           int    `json:"snr_db"`
	FreqHz          int    `json:"freq_hz"`
	DialFreqHz      uint64 `json:"dial_freq_hz"`
	StationCallsign string `json:"station_callsign,omitempty"`
	StationGrid     string `json:"station_grid,omitempty"`
}

func generateClientID(prefix string) string {
	b := make([]byte, 8)
	rand.Read(b)
	return prefix + "_" + hex.EncodeToString(b)
}

// NewSpotPublisher dials broker and returns a publisher scoped under
// topicRoot.
func NewSpotPublisher(cfg MQTTConfig) (*SpotPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = generateClientID("ft8engine")
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("spot publisher: connect: %w", token.Error())
	}

	return &SpotPublisher{client: client, topicRoot: cfg.TopicRoot, qos: 0}, nil
}

// PublishSpot publishes one Spot record asynchronously; publication
// never blocks the slot pack aggregator that feeds it.
func (p *SpotPublisher) PublishSpot(spot Spot) {
	payload := SpotPayload{
		Timestamp:       spot.Timestamp.Unix(),
		SlotID:          spot.SlotID,
		Mode:            spot.ModeName,
		Message:         spot.Frame.TrimmedMessage(),
		SNRdB:           spot.Frame.SNRdB,
		FreqHz:          spot.Frame.FreqHz,
		DialFreqHz:      spot.DialFreqHz,
		StationCallsign: spot.StationCallsign,
		StationGrid:     spot.StationGrid,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("spot publisher: marshal: %v", err)
		return
	}
	topic := fmt.Sprintf("%s/spots/%s", p.topicRoot, spot.ModeName)
	token := p.client.Publish(topic, p.qos, false, data)
	_ = token // fire-and-forget, per spec.md §7's "never block" policy for transient I/O
}

// OnSlotPackSealed implements SlotPackListener: every frame in a sealed
// pack becomes one spot publication.
func (p *SpotPublisher) OnSlotPackSealed(pack SlotPackSnapshot) {
	for _, f := range pack.Frames {
		p.PublishSpot(Spot{
			SlotID:    pack.SlotID,
			ModeName:  pack.ModeName,
			Frame:     f,
			Timestamp: time.Now(),
		})
	}
}

func (p *SpotPublisher) OnSlotPackUpdated(pack SlotPackSnapshot) {}

// PublishMetricsSnapshot gathers the current Prometheus registry and
// publishes a flattened {name: value} snapshot, for consumers that
// prefer MQTT over scraping.
func (p *SpotPublisher) PublishMetricsSnapshot() {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		log.Printf("spot publisher: gather metrics: %v", err)
		return
	}

	snapshot := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if v := extractMetricValue(m); v != 0 || m.GetGauge() != nil {
				snapshot[mf.GetName()] = v
			}
		}
	}

	data, err := json.Marshal(map[string]interface{}{
		"timestamp": time.Now().Unix(),
		"metrics":   snapshot,
	})
	if err != nil {
		return
	}
	topic := fmt.Sprintf("%s/metrics", p.topicRoot)
	p.client.Publish(topic, p.qos, false, data)
}

func extractMetricValue(m *dto.Metric) float64 {
	if g := m.GetGauge(); g != nil {
		return g.GetValue()
	}
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	if h := m.GetHistogram(); h != nil {
		return h.GetSampleSum()
	}
	return 0
}

// Close disconnects the MQTT client.
func (p *SpotPublisher) Close() {
	p.client.Disconnect(250)
}

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is C12's root configuration object. Grounded on the teacher's
// config.go: one Config struct, one *Config sub-struct per concern, yaml
// tags throughout, and a LoadConfig/ApplyDefaults pair. Every key named
// in spec.md §6's "Configuration keys recognized" list has a home here.
type Config struct {
	Mode          string              `yaml:"mode"`
	Operators     []OperatorConfig    `yaml:"operators"`
	AudioCapture  AudioCaptureConfig  `yaml:"audio_capture"`
	AudioPlay     AudioPlayConfig     `yaml:"audio_play"`
	Radio         RadioConfig         `yaml:"radio"`
	DecodePool    DecodePoolConfig    `yaml:"decode_pool"`
	EncodePool    EncodePoolConfig    `yaml:"encode_pool"`
	Mixer         MixerConfig         `yaml:"mixer"`
	Reconnect     ReconnectPolicy     `yaml:"reconnect"`
	SlotPack      SlotPackConfig      `yaml:"slot_pack_retention"`
	Spectrum      SpectrumConfig      `yaml:"spectrum"`
	Logging       LoggingConfig       `yaml:"logging"`
	EventBus      EventBusConfig      `yaml:"event_bus"`
	Prometheus    PrometheusConfig    `yaml:"prometheus"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
}

// OperatorConfig is the yaml-facing mirror of OperatorContext, spec.md §3.
type OperatorConfig struct {
	ID               string   `yaml:"id"`
	MyCallsign       string   `yaml:"my_callsign"`
	MyGrid           string   `yaml:"my_grid"`
	TargetCallsign   string   `yaml:"target_callsign,omitempty"`
	TargetGrid       string   `yaml:"target_grid,omitempty"`
	FrequencyHz      int      `yaml:"frequency_hz"`
	TransmitPhases   []string `yaml:"transmit_phases"` // "even", "odd"
	ReplyToCQ        bool     `yaml:"reply_to_cq"`
	ResumeCQOnFail   bool     `yaml:"resume_cq_on_fail"`
	ResumeCQOnSuccess bool    `yaml:"resume_cq_on_success"`
	ReplyToWorked    bool     `yaml:"reply_to_worked"`
	PreferNew        bool     `yaml:"prefer_new"`
}

// ToOperatorContext converts yaml configuration into the runtime entity
// C7 owns.
func (oc OperatorConfig) ToOperatorContext() OperatorContext {
	phases := make(map[Phase]bool, 2)
	for _, p := range oc.TransmitPhases {
		switch p {
		case "even":
			phases[PhaseEven] = true
		case "odd":
			phases[PhaseOdd] = true
		}
	}
	return OperatorContext{
		ID:             oc.ID,
		MyCallsign:     oc.MyCallsign,
		MyGrid:         oc.MyGrid,
		TargetCallsign: oc.TargetCallsign,
		TargetGrid:     oc.TargetGrid,
		FrequencyHz:    oc.FrequencyHz,
		TransmitPhases: phases,
		AutoFlags: AutoFlags{
			ReplyToCQ:         oc.ReplyToCQ,
			ResumeCQOnFail:    oc.ResumeCQOnFail,
			ResumeCQOnSuccess: oc.ResumeCQOnSuccess,
			ReplyToWorked:     oc.ReplyToWorked,
			PreferNew:         oc.PreferNew,
		},
	}
}

// AudioCaptureConfig names the capture device, spec.md §6.
type AudioCaptureConfig struct {
	DeviceID   string `yaml:"device_id"`
	SampleRate int    `yaml:"sample_rate"`
}

// AudioPlayConfig names the playback device, spec.md §6.
type AudioPlayConfig struct {
	DeviceID string `yaml:"device_id"`
}

// RadioConfig describes the PTT/CAT transport, spec.md §6.
type RadioConfig struct {
	Transport string `yaml:"transport"` // "rigctld"
	Endpoint  string `yaml:"endpoint"`  // rigctld host; main.go dials it on port 4532
	BaudRate  int    `yaml:"baud_rate,omitempty"`
	Address   string `yaml:"address,omitempty"`
}

// DecodePoolConfig sizes C3.
type DecodePoolConfig struct {
	Size       int `yaml:"size"`
	MaxBacklog int `yaml:"max_backlog"`
}

// EncodePoolConfig sizes C5.
type EncodePoolConfig struct {
	Size int `yaml:"size"`
}

// MixerConfig tunes C6.
type MixerConfig struct {
	EarlyReleaseMs  int64              `yaml:"early_release_ms"`
	PlaySkipMs      int64              `yaml:"play_skip_ms"`
	PerOperatorGain map[string]float64 `yaml:"per_operator_gain"`
}

// SlotPackConfig tunes C4's retention.
type SlotPackConfig struct {
	Count       int   `yaml:"count"`
	SealGraceMs int64 `yaml:"seal_grace_ms"`
}

// SpectrumConfig tunes C11.
type SpectrumConfig struct {
	FFTSize      int `yaml:"fft_size"`
	PollPeriodMs int `yaml:"poll_period_ms"`
}

// LoggingConfig is ambient: structured logging sink selection.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// EventBusConfig tunes C13's websocket fan-out.
type EventBusConfig struct {
	Listen       string `yaml:"listen"`
	Compress     bool   `yaml:"compress"`
	BufferEvents int    `yaml:"buffer_events"`
}

// PrometheusConfig tunes C14.
type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MQTTConfig tunes C15's spot publisher.
type MQTTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Broker    string `yaml:"broker"`
	ClientID  string `yaml:"client_id"`
	TopicRoot string `yaml:"topic_root"`
}

// LoadConfig reads and parses filename, applying defaults for any
// zero-valued field the source leaves unset.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in the constants named throughout SPEC_FULL.md
// §4-6 for any field the loaded config leaves at its zero value.
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "FT8"
	}
	if c.AudioCapture.SampleRate == 0 {
		c.AudioCapture.SampleRate = 48000
	}
	if c.DecodePool.Size == 0 {
		c.DecodePool.Size = 4
	}
	if c.DecodePool.MaxBacklog == 0 {
		c.DecodePool.MaxBacklog = 32
	}
	if c.EncodePool.Size == 0 {
		c.EncodePool.Size = 2
	}
	if c.Mixer.EarlyReleaseMs == 0 {
		c.Mixer.EarlyReleaseMs = defaultEarlyReleaseMs
	}
	if c.Mixer.PlaySkipMs == 0 {
		c.Mixer.PlaySkipMs = defaultPlaySkipMs
	}
	if c.SlotPack.Count == 0 {
		c.SlotPack.Count = 64
	}
	if c.SlotPack.SealGraceMs == 0 {
		c.SlotPack.SealGraceMs = 2000
	}
	if c.Spectrum.FFTSize == 0 {
		c.Spectrum.FFTSize = 2048
	}
	if c.Spectrum.PollPeriodMs == 0 {
		c.Spectrum.PollPeriodMs = 100
	}
	if c.Reconnect.BaseDelayMs == 0 {
		c.Reconnect.BaseDelayMs = 3000
	}
	if c.Reconnect.MaxDelayMs == 0 {
		c.Reconnect.MaxDelayMs = 30000
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = -1
	}
	if c.Reconnect.HealthCheckMs == 0 {
		c.Reconnect.HealthCheckMs = 3000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.EventBus.Listen == "" {
		c.EventBus.Listen = ":8090"
	}
	if c.EventBus.BufferEvents == 0 {
		c.EventBus.BufferEvents = 64
	}
	if c.Prometheus.Listen == "" {
		c.Prometheus.Listen = ":9090"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "ft8engine"
	}
	if c.MQTT.TopicRoot == "" {
		c.MQTT.TopicRoot = "ft8engine"
	}
}

// ModeDescriptor resolves the configured mode name to its descriptor.
func (c *Config) ModeDescriptor() (ModeDescriptor, error) {
	switch c.Mode {
	case "FT8":
		return FT8Mode(), nil
	case "FT4":
		return FT4Mode(), nil
	default:
		return ModeDescriptor{}, fmt.Errorf("config: unknown mode %q", c.Mode)
	}
}

// Validate checks the configuration-kind errors from spec.md §7 that
// must be caught before the engine enters running.
func (c *Config) Validate() error {
	if _, err := c.ModeDescriptor(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Operators))
	for _, op := range c.Operators {
		if op.ID == "" {
			return fmt.Errorf("config: operator with empty id")
		}
		if seen[op.ID] {
			return fmt.Errorf("config: duplicate operator id %q", op.ID)
		}
		seen[op.ID] = true
		if op.FrequencyHz < 200 || op.FrequencyHz > 4000 {
			return fmt.Errorf("config: operator %s: frequency_hz must be in [200,4000]", op.ID)
		}
	}
	return nil
}

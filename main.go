package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// DebugMode is set from the -debug flag or the DEBUG environment
// variable, per the teacher's precedence rule in main.go (deleted):
// the environment variable always wins over the CLI flag.
var DebugMode bool

// StartTime records process start for uptime reporting.
var StartTime time.Time

func main() {
	StartTime = time.Now()

	configDir := flag.String("config-dir", ".", "Directory containing configuration files")
	configFile := flag.String("config", "config.yaml", "Path to the engine configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	DebugMode = *debug
	if env := os.Getenv("DEBUG"); env != "" {
		DebugMode = env == "true" || env == "1" || env == "yes"
	}
	if DebugMode {
		log.Println("debug mode enabled")
	}

	configPath := *configFile
	if *configDir != "." {
		configPath = *configDir + "/" + *configFile
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	mode, err := cfg.ModeDescriptor()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	eng, err := buildEngine(cfg, mode)
	if err != nil {
		log.Fatalf("failed to assemble engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.fsm.Start(ctx); err != nil {
		log.Fatalf("engine failed to start: %v", err)
	}
	log.Printf("engine running in %s mode", mode.Name)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down")
	eng.fsm.Stop(ctx)
}

// engine bundles every component wired together by buildEngine, for
// Start/Stop orchestration from main.
type engine struct {
	fsm       *EngineFSM
	clock     *SlotClock
	ringbuf   *RingAudioBuffer
	decodes   *DecodePool
	encodes   *EncodePool
	aggregator *SlotPackAggregator
	mixer     *AudioMixer
	operators *OperatorManager
	radio     *RadioFSM
	prober    *RadioHealthProber
	spectrum  *SpectrumScheduler
	bus       *EventBus
	metrics   *EngineMetrics
	spots     *SpotPublisher

	audioSource AudioSource
}

// buildEngine constructs every component named in SPEC_FULL.md §4 and
// registers each as a dependency-ordered Resource with the Engine
// Lifecycle FSM (C10), per spec.md §4.10's component list: audio stream
// -> radio connection -> decode pool -> operator manager -> mixer ->
// clock.
func buildEngine(cfg *Config, mode ModeDescriptor) (*engine, error) {
	horizonMs := 2*mode.SlotMs + mode.SlotMs
	ring := NewRingAudioBuffer(cfg.AudioCapture.SampleRate, horizonMs)

	audioSource, err := NewUDPAudioSource(cfg.AudioCapture.DeviceID, cfg.AudioCapture.SampleRate)
	if err != nil {
		return nil, err
	}
	go func() {
		for block := range audioSource.Blocks() {
			ring.Write(block.Samples)
		}
	}()

	audioSink, err := NewUDPAudioSink(cfg.AudioPlay.DeviceID)
	if err != nil {
		return nil, err
	}

	actuator := NewRigctlClient(cfg.Radio.Endpoint, 4532)
	radio := NewRadioFSM(actuator, cfg.Reconnect)
	prober := NewRadioHealthProber(actuator, radio, time.Duration(cfg.Reconnect.HealthCheckMs)*time.Millisecond)

	decodeFn := DecoderFunc(func(ctx context.Context, pcm12k []float32, modeName string) ([]DecodedFrame, error) {
		return nil, nil // external DSP boundary, spec.md §1; wired by a real decoder at deployment
	})
	encodeFn := EncoderFunc(func(ctx context.Context, text, modeName string, baseFreqHz, sampleRate int) ([]float32, error) {
		return nil, nil // external DSP boundary, spec.md §1
	})

	decodes := NewDecodePool(decodeFn, ring, cfg.DecodePool.Size, cfg.DecodePool.MaxBacklog)
	encodes := NewEncodePool(encodeFn, cfg.EncodePool.Size, cfg.EncodePool.Size*4)

	aggregator := NewSlotPackAggregator(cfg.SlotPack.SealGraceMs, cfg.SlotPack.Count)
	mixer := NewAudioMixer(cfg.Mixer.EarlyReleaseMs, cfg.Mixer.PlaySkipMs)
	for operatorID, gain := range cfg.Mixer.PerOperatorGain {
		mixer.SetOperatorGain(operatorID, gain)
	}

	operators := NewOperatorManager(mode, encodes, mixer)
	for _, opCfg := range cfg.Operators {
		operators.AddOperator(NewOperator(opCfg.ToOperatorContext(), 4))
	}

	transmit := NewTransmitController(radio, audioSink)
	mixer.Subscribe(transmit)

	metrics := NewEngineMetrics()
	aggregator.Subscribe(metrics)
	mixer.Subscribe(metrics)
	radio.Subscribe(metrics)

	var spots *SpotPublisher
	if cfg.MQTT.Enabled {
		spots, err = NewSpotPublisher(cfg.MQTT)
		if err != nil {
			log.Printf("spot publisher disabled: %v", err)
		} else {
			aggregator.Subscribe(spots)
		}
	}

	bus := NewEventBus(cfg.EventBus.Compress, cfg.EventBus.BufferEvents)
	wireControlCommands(bus, operators, radio)

	spectrum := NewSpectrumScheduler(ring, cfg.Spectrum.FFTSize, time.Duration(cfg.Spectrum.PollPeriodMs)*time.Millisecond)

	clock := NewSlotClock(mode)
	clock.Subscribe(operators)
	clock.Subscribe(slotClockAdapter{aggregator: aggregator, decodes: decodes, mode: mode})

	encodeResults := make(chan EncodeResult, 32)
	encodes.Subscribe(encodeResults)
	go operators.ConsumeEncodeResults(encodeResults)

	decodeResults := make(chan DecodeResult, 32)
	decodes.Subscribe(decodeResults)
	go func() {
		for res := range decodeResults {
			metrics.RecordDecodeResult(res)
			aggregator.Ingest(res)
		}
	}()

	fsm := NewEngineFSM()
	fsm.Register(Resource{
		Name: "audio",
		Start: func(ctx context.Context) error { return audioSource.Start() },
		Stop:  func(ctx context.Context) error { return audioSource.Stop() },
	})
	fsm.Register(Resource{
		Name:      "radio",
		DependsOn: []string{"audio"},
		Start:     func(ctx context.Context) error { radio.Connect(ctx); return nil },
		Stop:      func(ctx context.Context) error { radio.Disconnect(); return nil },
	})
	fsm.Register(Resource{
		Name:      "decode_pool",
		DependsOn: []string{"audio"},
		Start:     func(ctx context.Context) error { return nil },
		Stop:      func(ctx context.Context) error { decodes.Close(); return nil },
	})
	fsm.Register(Resource{
		Name:      "operator_manager",
		DependsOn: []string{"decode_pool", "radio"},
		Start:     func(ctx context.Context) error { return nil },
		Stop:      func(ctx context.Context) error { encodes.Close(); return nil },
	})
	fsm.Register(Resource{
		Name:      "mixer",
		DependsOn: []string{"operator_manager"},
		Start:     func(ctx context.Context) error { return nil },
		Stop:      func(ctx context.Context) error { return nil },
	})
	fsm.Register(Resource{
		Name:      "clock",
		DependsOn: []string{"mixer"},
		Start:     func(ctx context.Context) error { clock.Start(ctx); return nil },
		Stop:      func(ctx context.Context) error { clock.Stop(); return nil },
	})
	fsm.Register(Resource{
		Name:      "spectrum",
		DependsOn: []string{"audio"},
		Optional:  true,
		Start:     func(ctx context.Context) error { spectrum.Start(); return nil },
		Stop:      func(ctx context.Context) error { spectrum.Stop(); return nil },
	})
	fsm.Register(Resource{
		Name:      "health_prober",
		DependsOn: []string{"radio"},
		Optional:  true,
		Start:     func(ctx context.Context) error { go prober.Run(ctx); return nil },
		Stop:      func(ctx context.Context) error { return nil },
	})
	fsm.Register(Resource{
		Name:     "event_bus",
		Optional: true,
		Start: func(ctx context.Context) error {
			mux := http.NewServeMux()
			mux.Handle("/events", bus)
			mux.Handle("/metrics", metrics.Handler())
			go http.ListenAndServe(cfg.EventBus.Listen, mux)
			return nil
		},
		Stop: func(ctx context.Context) error { return nil },
	})

	return &engine{
		fsm: fsm, clock: clock, ringbuf: ring, decodes: decodes, encodes: encodes,
		aggregator: aggregator, mixer: mixer, operators: operators, radio: radio,
		prober: prober, spectrum: spectrum, bus: bus, metrics: metrics, spots: spots,
		audioSource: audioSource,
	}, nil
}

// slotClockAdapter bridges SlotClockListener to the aggregator's
// ExpectWindows bookkeeping and the decode pool's per-sub-window Submit,
// without making either component depend on ModeDescriptor or the clock
// directly.
type slotClockAdapter struct {
	aggregator *SlotPackAggregator
	decodes    *DecodePool
	mode       ModeDescriptor
}

func (a slotClockAdapter) OnSlotStart(slot Slot) {
	a.aggregator.ExpectWindows(slot.ID, len(a.mode.WindowOffsetsMs))
}
func (a slotClockAdapter) OnSubWindow(req SubWindowRequest) {
	a.decodes.Submit(req)
}
func (a slotClockAdapter) OnEncodeStart(slot Slot) {}
func (a slotClockAdapter) OnTransmitStart(slot Slot) {}

// wireControlCommands registers the inbound command handlers from
// spec.md §6.
func wireControlCommands(bus *EventBus, operators *OperatorManager, radio *RadioFSM) {
	bus.HandleCommand(CmdSetClientEnabledOperators, func(cmd Command) (interface{}, error) {
		var ids []string
		if err := decodeArgs(cmd, &ids); err != nil {
			return nil, err
		}
		enabled := make(map[string]bool, len(ids))
		for _, id := range ids {
			enabled[id] = true
		}
		for _, id := range operators.AllOperatorIDs() {
			operators.SetEnabled(id, enabled[id])
		}
		return nil, nil
	})
	bus.HandleCommand(CmdForceStopTransmission, func(cmd Command) (interface{}, error) {
		return nil, radio.SetPTT(false)
	})
}

func decodeArgs(cmd Command, v interface{}) error {
	if len(cmd.Args) == 0 {
		return nil
	}
	return json.Unmarshal(cmd.Args, v)
}

package main

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/shirou/gopsutil/v3/process"
)

var processPID = os.Getpid()

// RadioHealthProber is C16: periodically probes the radio actuator with a
// frequency read-back and, when a probe fails, drives the radio lifecycle
// FSM's HEALTH_CHECK_FAILED transition per spec.md §4.9. Grounded on the
// teacher's rotctl_api.go health-poll ticker shape (deleted), generalized
// from rotator position polling to a frequency read-back probe. Process
// resource sampling via gopsutil is the separate SampleProcess function;
// Run does not call it.
type RadioHealthProber struct {
	actuator RadioActuator
	interval time.Duration
	fsm      *RadioFSM

	pid int32
}

// NewRadioHealthProber builds a prober. interval defaults to the
// spec's 3000ms healthCheckInterval when <= 0.
func NewRadioHealthProber(actuator RadioActuator, fsm *RadioFSM, interval time.Duration) *RadioHealthProber {
	if interval <= 0 {
		interval = 3000 * time.Millisecond
	}
	return &RadioHealthProber{actuator: actuator, interval: interval, fsm: fsm, pid: int32(currentPID())}
}

func currentPID() int {
	return processPID
}

// Run blocks, probing on interval until ctx is cancelled.
func (p *RadioHealthProber) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeOnce(ctx)
		}
	}
}

func (p *RadioHealthProber) probeOnce(ctx context.Context) {
	start := time.Now()
	_, err := p.actuator.GetFrequency()
	sample := RadioHealthSample{
		ProbeLatency: time.Since(start),
		OK:           err == nil,
		Err:          err,
	}
	if freq, ferr := p.actuator.GetFrequency(); ferr == nil {
		sample.FrequencyHz = int(freq)
	}

	if !sample.OK {
		p.fsm.HealthCheckFailed(ctx, sample.Err)
	}
}

// ProcessStats reports the engine process's own CPU/memory usage, a
// supplemental diagnostic returned by SampleProcess; no event or metric
// publishes it.
type ProcessStats struct {
	CPUPercent float64
	MemRSSKB   uint64
	GoVersion  string
	NumGo      int
}

// SampleProcess reads the current process's resource usage via
// gopsutil, matching the corpus's process-metrics library rather than
// hand-parsing /proc.
func SampleProcess() (ProcessStats, error) {
	proc, err := process.NewProcess(int32(currentPID()))
	if err != nil {
		return ProcessStats{}, err
	}
	cpuPct, err := proc.CPUPercent()
	if err != nil {
		return ProcessStats{}, err
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return ProcessStats{}, err
	}
	return ProcessStats{
		CPUPercent: cpuPct,
		MemRSSKB:   memInfo.RSS / 1024,
		GoVersion:  runtime.Version(),
		NumGo:      runtime.NumGoroutine(),
	}, nil
}

// MinimumActuatorVersion is the lowest rigctld protocol version this
// engine has been validated against. hashicorp/go-version is used
// rather than a raw string compare so operators can report
// "v1.2"-style protocol strings with a well-defined ordering.
var MinimumActuatorVersion = version.Must(version.NewVersion("1.2.0"))

// ActuatorVersionSupported reports whether a reported protocol version
// string meets MinimumActuatorVersion.
func ActuatorVersionSupported(reported string) (bool, error) {
	v, err := version.NewVersion(reported)
	if err != nil {
		return false, err
	}
	return v.GreaterThanOrEqual(MinimumActuatorVersion), nil
}

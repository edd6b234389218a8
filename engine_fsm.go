package main

import (
	"context"
	"fmt"
	"log"
	"time"
)

// EngineState is one of the five states in spec.md §4.10.
type EngineState int

const (
	EngineIdle EngineState = iota
	EngineStarting
	EngineRunning
	EngineStopping
	EngineError
)

func (s EngineState) String() string {
	switch s {
	case EngineIdle:
		return "idle"
	case EngineStarting:
		return "starting"
	case EngineRunning:
		return "running"
	case EngineStopping:
		return "stopping"
	case EngineError:
		return "error"
	default:
		return "unknown"
	}
}

// Resource is one named, orderable component the Engine Lifecycle FSM
// supervises. Grounded on the teacher's main.go startup sequencing
// (dial MQTT, open decoder pool, start websocket hub in a fixed order),
// generalized into an explicit dependency-ordered registry per
// spec.md §4.10.
type Resource struct {
	Name     string
	DependsOn []string
	Optional bool
	Start    func(ctx context.Context) error
	Stop     func(ctx context.Context) error
}

// EngineFSM is C10: ordered resource start/stop with rollback.
type EngineFSM struct {
	state        EngineState
	resources    map[string]Resource
	started      []string // names, in start order, for reverse-order stop
	stopTimeout  time.Duration
}

// NewEngineFSM builds an idle engine with a default 10s per-resource
// stop timeout (spec.md §4.10).
func NewEngineFSM() *EngineFSM {
	return &EngineFSM{
		state:       EngineIdle,
		resources:   make(map[string]Resource),
		stopTimeout: 10 * time.Second,
	}
}

func (e *EngineFSM) State() EngineState { return e.state }

// Register adds a resource. Must be called before Start.
func (e *EngineFSM) Register(r Resource) {
	e.resources[r.Name] = r
}

// resolveOrder performs a dependency-respecting topological sort,
// rejecting circular dependencies and unknown references before any
// resource starts, per spec.md §4.10 and the boundary behavior in §8.
func (e *EngineFSM) resolveOrder() ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(e.resources))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrCircularDependency, name)
		}
		r, ok := e.resources[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownResource, name)
		}
		state[name] = visiting
		for _, dep := range r.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = visited
		order = append(order, name)
		return nil
	}

	for name := range e.resources {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Start brings every resource up in dependency order. If a required
// resource fails, previously started resources are stopped in reverse
// order and the FSM settles in error, per spec.md §4.10 and scenario 5
// in §8. Optional resources may fail without aborting the start.
func (e *EngineFSM) Start(ctx context.Context) error {
	order, err := e.resolveOrder()
	if err != nil {
		e.state = EngineError
		return err
	}

	e.state = EngineStarting
	e.started = nil

	for _, name := range order {
		r := e.resources[name]
		startCtx, cancel := context.WithTimeout(ctx, e.stopTimeout)
		err := r.Start(startCtx)
		cancel()

		if err != nil {
			if r.Optional {
				log.Printf("engine: optional resource %s failed to start: %v", name, err)
				continue
			}
			log.Printf("engine: required resource %s failed to start: %v; rolling back", name, err)
			e.rollback(ctx)
			e.state = EngineError
			return fmt.Errorf("engine: resource %s: %w", name, err)
		}
		e.started = append(e.started, name)
	}

	e.state = EngineRunning
	return nil
}

// rollback stops already-started resources in reverse order.
func (e *EngineFSM) rollback(ctx context.Context) {
	for i := len(e.started) - 1; i >= 0; i-- {
		e.stopOne(ctx, e.started[i])
	}
	e.started = nil
}

// Stop tears every started resource down in reverse start order, each
// bounded by stopTimeout.
func (e *EngineFSM) Stop(ctx context.Context) {
	e.state = EngineStopping
	e.rollback(ctx)
	e.state = EngineIdle
}

func (e *EngineFSM) stopOne(ctx context.Context, name string) {
	r, ok := e.resources[name]
	if !ok || r.Stop == nil {
		return
	}
	stopCtx, cancel := context.WithTimeout(ctx, e.stopTimeout)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		log.Printf("engine: resource %s failed to stop cleanly: %v", name, err)
	}
}

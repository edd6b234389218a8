package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineFSMStartsInDependencyOrder(t *testing.T) {
	fsm := NewEngineFSM()
	var order []string

	fsm.Register(Resource{Name: "a", Start: func(ctx context.Context) error { order = append(order, "a"); return nil }})
	fsm.Register(Resource{Name: "b", DependsOn: []string{"a"}, Start: func(ctx context.Context) error { order = append(order, "b"); return nil }})
	fsm.Register(Resource{Name: "c", DependsOn: []string{"b", "a"}, Start: func(ctx context.Context) error { order = append(order, "c"); return nil }})

	require.NoError(t, fsm.Start(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, EngineRunning, fsm.State())
}

func TestEngineFSMDetectsCircularDependency(t *testing.T) {
	fsm := NewEngineFSM()
	fsm.Register(Resource{Name: "a", DependsOn: []string{"b"}, Start: func(context.Context) error { return nil }})
	fsm.Register(Resource{Name: "b", DependsOn: []string{"a"}, Start: func(context.Context) error { return nil }})

	err := fsm.Start(context.Background())
	assert.ErrorIs(t, err, ErrCircularDependency)
	assert.Equal(t, EngineError, fsm.State())
}

func TestEngineFSMUnknownDependencyFailsFast(t *testing.T) {
	fsm := NewEngineFSM()
	fsm.Register(Resource{Name: "a", DependsOn: []string{"ghost"}, Start: func(context.Context) error { return nil }})

	err := fsm.Start(context.Background())
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestEngineFSMRollsBackPreviouslyStartedOnFailure(t *testing.T) {
	fsm := NewEngineFSM()
	var stopped []string

	fsm.Register(Resource{
		Name:  "a",
		Start: func(context.Context) error { return nil },
		Stop:  func(context.Context) error { stopped = append(stopped, "a"); return nil },
	})
	fsm.Register(Resource{
		Name:      "b",
		DependsOn: []string{"a"},
		Start:     func(context.Context) error { return errors.New("boom") },
	})

	err := fsm.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, stopped, "already-started resources must be stopped in reverse order on rollback")
	assert.Equal(t, EngineError, fsm.State())
}

func TestEngineFSMOptionalResourceFailureDoesNotAbortStart(t *testing.T) {
	fsm := NewEngineFSM()
	fsm.Register(Resource{Name: "a", Start: func(context.Context) error { return nil }})
	fsm.Register(Resource{Name: "opt", Optional: true, Start: func(context.Context) error { return errors.New("boom") }})

	err := fsm.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EngineRunning, fsm.State())
}

func TestEngineFSMStopTearsDownInReverseOrder(t *testing.T) {
	fsm := NewEngineFSM()
	var stopped []string

	fsm.Register(Resource{
		Name:  "a",
		Start: func(context.Context) error { return nil },
		Stop:  func(context.Context) error { stopped = append(stopped, "a"); return nil },
	})
	fsm.Register(Resource{
		Name:      "b",
		DependsOn: []string{"a"},
		Start:     func(context.Context) error { return nil },
		Stop:      func(context.Context) error { stopped = append(stopped, "b"); return nil },
	})

	require.NoError(t, fsm.Start(context.Background()))
	fsm.Stop(context.Background())
	assert.Equal(t, []string{"b", "a"}, stopped)
	assert.Equal(t, EngineIdle, fsm.State())
}

package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeArgsEmptyIsNoop(t *testing.T) {
	var v []string
	require.NoError(t, decodeArgs(Command{}, &v))
	assert.Nil(t, v)
}

func TestDecodeArgsUnmarshalsJSON(t *testing.T) {
	var v []string
	raw, _ := json.Marshal([]string{"op1", "op2"})
	require.NoError(t, decodeArgs(Command{Args: raw}, &v))
	assert.Equal(t, []string{"op1", "op2"}, v)
}

func noopEncode(ctx context.Context, text, modeName string, baseFreqHz, sampleRate int) ([]float32, error) {
	return nil, nil
}

func TestWireControlCommandsReconcilesEnabledSet(t *testing.T) {
	mode := FT8Mode()
	mix := NewAudioMixer(50, 100)
	pool := NewEncodePool(EncoderFunc(noopEncode), 1, 1)
	defer pool.Close()
	operators := NewOperatorManager(mode, pool, mix)

	operators.AddOperator(NewOperator(OperatorContext{ID: "op1"}, 4))
	operators.AddOperator(NewOperator(OperatorContext{ID: "op2"}, 4))

	bus := NewEventBus(false, 8)
	radio := NewRadioFSM(&fakeActuator{}, DefaultReconnectPolicy())
	wireControlCommands(bus, operators, radio)

	args, _ := json.Marshal([]string{"op1"})
	bc := &busConn{outbox: make(chan []byte, 4)}
	bus.dispatch(bc, Command{Kind: CmdSetClientEnabledOperators, Args: args})

	assert.ElementsMatch(t, []string{"op1", "op2"}, operators.AllOperatorIDs())

	enabledIDs := map[string]bool{}
	for _, op := range operators.enabledOperators() {
		enabledIDs[op.CurrentContext().ID] = true
	}
	assert.True(t, enabledIDs["op1"])
	assert.False(t, enabledIDs["op2"], "op2 must be disabled once excluded from the enabled set")
}

func TestWireControlCommandsForceStopTransmission(t *testing.T) {
	mix := NewAudioMixer(50, 100)
	pool := NewEncodePool(EncoderFunc(noopEncode), 1, 1)
	defer pool.Close()
	operators := NewOperatorManager(FT8Mode(), pool, mix)

	bus := NewEventBus(false, 8)
	act := &fakeActuator{}
	radio := NewRadioFSM(act, DefaultReconnectPolicy())
	radio.Connect(context.Background())
	require.NoError(t, radio.SetPTT(true))

	wireControlCommands(bus, operators, radio)
	bc := &busConn{outbox: make(chan []byte, 4)}
	bus.dispatch(bc, Command{Kind: CmdForceStopTransmission})

	act.mu.Lock()
	ptt := act.ptt
	act.mu.Unlock()
	assert.False(t, ptt)
}

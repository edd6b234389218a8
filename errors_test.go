package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeErrorUnwrapsToSentinel(t *testing.T) {
	err := &DecodeError{SlotID: "slot1", WindowIdx: 2, Message: "bad frame"}
	assert.ErrorIs(t, err, ErrDecodeFault)
	assert.Contains(t, err.Error(), "slot1")
	assert.Contains(t, err.Error(), "bad frame")
}

func TestEncodeErrorUnwrapsToSentinel(t *testing.T) {
	err := &EncodeError{OperatorID: "op1", SlotID: "slot1", Message: "synth failed"}
	assert.ErrorIs(t, err, ErrEncodeFault)
	assert.Contains(t, err.Error(), "op1")
	assert.Contains(t, err.Error(), "synth failed")
}

func TestDecodeErrorIsNotEncodeFault(t *testing.T) {
	err := &DecodeError{SlotID: "slot1", WindowIdx: 0, Message: "x"}
	assert.False(t, errors.Is(err, ErrEncodeFault))
}

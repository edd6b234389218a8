package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "mode: FT8\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 48000, cfg.AudioCapture.SampleRate)
	assert.Equal(t, 4, cfg.DecodePool.Size)
	assert.Equal(t, int64(2000), cfg.SlotPack.SealGraceMs)
	assert.Equal(t, "ft8engine", cfg.MQTT.ClientID)
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	path := writeTempConfig(t, "mode: FT9\n")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsDuplicateOperatorIDs(t *testing.T) {
	path := writeTempConfig(t, `
mode: FT8
operators:
  - id: op1
    my_callsign: K1ABC
    frequency_hz: 1500
  - id: op1
    my_callsign: W9XYZ
    frequency_hz: 1600
`)
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "duplicate operator id")
}

func TestLoadConfigRejectsFrequencyOutOfRange(t *testing.T) {
	path := writeTempConfig(t, `
mode: FT8
operators:
  - id: op1
    my_callsign: K1ABC
    frequency_hz: 5000
`)
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "frequency_hz")
}

func TestOperatorConfigToOperatorContextMapsPhases(t *testing.T) {
	oc := OperatorConfig{ID: "op1", TransmitPhases: []string{"even", "odd"}}
	ctx := oc.ToOperatorContext()
	assert.True(t, ctx.TransmitPhases[PhaseEven])
	assert.True(t, ctx.TransmitPhases[PhaseOdd])
}

func TestModeDescriptorResolution(t *testing.T) {
	cfg := &Config{Mode: "FT4"}
	mode, err := cfg.ModeDescriptor()
	require.NoError(t, err)
	assert.Equal(t, "FT4", mode.Name)
}

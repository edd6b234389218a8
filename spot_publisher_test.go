package main

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func TestExtractMetricValueGauge(t *testing.T) {
	v := 42.5
	m := &dto.Metric{Gauge: &dto.Gauge{Value: &v}}
	assert.Equal(t, 42.5, extractMetricValue(m))
}

func TestExtractMetricValueCounter(t *testing.T) {
	v := 7.0
	m := &dto.Metric{Counter: &dto.Counter{Value: &v}}
	assert.Equal(t, 7.0, extractMetricValue(m))
}

func TestExtractMetricValueHistogramUsesSampleSum(t *testing.T) {
	sum := 123.0
	m := &dto.Metric{Histogram: &dto.Histogram{SampleSum: &sum}}
	assert.Equal(t, 123.0, extractMetricValue(m))
}

func TestExtractMetricValueUnknownKindIsZero(t *testing.T) {
	assert.Equal(t, 0.0, extractMetricValue(&dto.Metric{}))
}

func TestGenerateClientIDIsUniqueAndPrefixed(t *testing.T) {
	a := generateClientID("ft8engine")
	b := generateClientID("ft8engine")
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "ft8engine_")
}

func TestSpotPayloadMessageIsTrimmed(t *testing.T) {
	spot := Spot{
		SlotID:   "slot1",
		ModeName: "FT8",
		Frame:    DecodedFrame{Message: "  CQ K1ABC FN42  ", SNRdB: -5, FreqHz: 1500},
	}
	trimmed := spot.Frame.TrimmedMessage()
	assert.Equal(t, "CQ K1ABC FN42", trimmed)
}

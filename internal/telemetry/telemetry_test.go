package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupNoopWhenEndpointUnset(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	tracer, shutdown, err := Setup(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tracer)
	require.NoError(t, shutdown(context.Background()))
}

func TestParseHeaders(t *testing.T) {
	got := parseHeaders("a=1,b=2")
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
}

func TestParseSamplerRatio(t *testing.T) {
	_, err := parseSampler("traceidratio", "0.5")
	require.NoError(t, err)
}

func TestParseSamplerInvalidRatio(t *testing.T) {
	_, err := parseSampler("traceidratio", "not-a-float")
	require.Error(t, err)
}

func TestParseSamplerUnsupported(t *testing.T) {
	_, err := parseSampler("bogus", "")
	require.Error(t, err)
}

package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/harun/warden/internal/config"
)

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  sdktrace.Sampler
	}{
		{"zero ratio never samples roots", 0, sdktrace.ParentBased(sdktrace.NeverSample())},
		{"negative ratio clamps to never", -0.5, sdktrace.ParentBased(sdktrace.NeverSample())},
		{"full ratio always samples", 1, sdktrace.ParentBased(sdktrace.AlwaysSample())},
		{"oversized ratio clamps to always", 2, sdktrace.ParentBased(sdktrace.AlwaysSample())},
		{"partial ratio", 0.25, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want.Description(), samplerFor(tt.ratio).Description())
		})
	}
}

func TestInitOpenTelemetry(t *testing.T) {
	cfg := config.TracingConfig{ServiceName: "warden-test", SampleRatio: 1}
	require.NoError(t, InitOpenTelemetry(cfg))

	// Subsequent calls are no-ops and must not error
	require.NoError(t, InitOpenTelemetry(config.TracingConfig{}))

	ctx, span := StartSpan(context.Background(), "tracing-test", "test.op")
	assert.NotEmpty(t, GetTraceID(ctx))
	span.End()

	require.NoError(t, ShutdownOpenTelemetry(context.Background()))
}

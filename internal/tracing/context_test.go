package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	ctx = WithTraceID(ctx, "trace-123")
	assert.Equal(t, "trace-123", GetTraceID(ctx))
}

func TestIdentityRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), "tenant-a")
	assert.Equal(t, "tenant-a", GetIdentity(ctx))
	assert.Empty(t, GetIdentity(context.Background()))
}

func TestNewRequestContext_GeneratesTraceID(t *testing.T) {
	ctx := NewRequestContext(context.Background())
	require.NotEmpty(t, GetTraceID(ctx))

	other := NewRequestContext(context.Background())
	assert.NotEqual(t, GetTraceID(ctx), GetTraceID(other))
}

func TestNewRequestContext_NilContext(t *testing.T) {
	ctx := NewRequestContext(nil) //nolint:staticcheck
	assert.NotEmpty(t, GetTraceID(ctx))
}

func TestLoggerFromContext_CarriesFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithIdentity(WithTraceID(context.Background(), "trace-xyz"), "tenant-b")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("resolved")

	out := buf.String()
	assert.Contains(t, out, "trace-xyz")
	assert.Contains(t, out, "tenant-b")
}

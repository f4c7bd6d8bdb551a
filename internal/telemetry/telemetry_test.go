package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestInitDisabledInstallsNoop(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Init(ctx, Options{}, "foreman", "test"))
	defer Shutdown(ctx)

	_, span := Tracer("").Start(ctx, "noop")
	require.False(t, span.SpanContext().IsValid())
	span.End()

	c := Counter("", EventsAppended)
	require.NotNil(t, c)
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "session_created")))
}

func TestInitEnabled(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Init(ctx, Options{Enabled: true}, "foreman", "test"))
	defer func() {
		Shutdown(ctx)
		require.NoError(t, Init(ctx, Options{}, "foreman", "test"))
	}()

	_, span := Tracer("").Start(ctx, "real")
	require.True(t, span.SpanContext().IsValid())
	span.End()
}

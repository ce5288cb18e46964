package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_ExportsSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), &buf, "subrun-test", "0.0.1")
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "unit-of-work")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name": "unit-of-work"`)
	assert.Contains(t, buf.String(), "subrun-test")
}

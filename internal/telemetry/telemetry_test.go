package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "graphspace"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestGlobalInstruments(t *testing.T) {
	assert.NotNil(t, Meter("graphspace/test"))

	_, span := Tracer("graphspace/test").Start(context.Background(), "noop")
	span.End()
}

package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/lore/internal/config"
	"github.com/koopa0/lore/internal/log"
)

func TestSetup_Disabled(t *testing.T) {
	t.Parallel()

	cfg := config.TracingConfig{Enabled: false}

	ctx := context.Background()
	shutdown, err := Setup(ctx, cfg, log.NewNop())

	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
}

func TestSetup_DefaultEndpoint(t *testing.T) {
	t.Parallel()

	cfg := config.TracingConfig{
		Enabled:     true,
		Endpoint:    "", // empty should use the default
		Environment: "test",
		ServiceName: "test-service",
	}

	ctx := context.Background()
	shutdown, err := Setup(ctx, cfg, log.NewNop())

	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
}

func TestSetup_CollectorUnavailable_GracefulDegradation(t *testing.T) {
	t.Parallel()

	// Nothing listens here; spans fail to export silently and the
	// service keeps running untraced.
	cfg := config.TracingConfig{
		Enabled:     true,
		Endpoint:    "localhost:1",
		Environment: "test",
		ServiceName: "graceful-test",
	}

	ctx := context.Background()
	shutdown, err := Setup(ctx, cfg, log.NewNop())

	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
}

func TestSetup_WithAPIKey(t *testing.T) {
	t.Parallel()

	cfg := config.TracingConfig{
		Enabled:     true,
		Endpoint:    "localhost:4318",
		APIKey:      "test-key",
		ServiceName: "keyed-service",
	}

	ctx := context.Background()
	shutdown, err := Setup(ctx, cfg, log.NewNop())

	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
}

func TestDefaultEndpoint_Value(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "localhost:4318", DefaultEndpoint)
}

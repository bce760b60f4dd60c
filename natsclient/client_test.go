package natsclient

import (
	"context"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/metric"
)

// nothing listens on port 1
const unreachable = "nats://127.0.0.1:1"

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(unreachable)
	require.NoError(t, err)

	assert.Equal(t, unreachable, c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Equal(t, time.Second, c.Backoff())
	assert.NotEmpty(t, c.ConnectionOptions())
}

func TestNewClient_InvalidOption(t *testing.T) {
	_, err := NewClient(unreachable, WithCircuitBreakerThreshold(0))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestClient_NotConnected(t *testing.T) {
	c, err := NewClient(unreachable)
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, c.Publish(ctx, "tensile.records", []byte("1,2\n")), ErrNotConnected)
	assert.ErrorIs(t, c.Subscribe(ctx, "tensile.records", func(context.Context, []byte) {}), ErrNotConnected)
	assert.ErrorIs(t, c.Flush(ctx), ErrNotConnected)

	_, err = c.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, c.Close(ctx))
	assert.NoError(t, c.Close(ctx))
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	m := metric.NewMetrics()
	c, err := NewClient(unreachable,
		WithCircuitBreakerThreshold(2),
		WithTimeout(200*time.Millisecond),
		WithMetrics(m))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		err := c.Connect(ctx)
		require.Error(t, err)
		assert.True(t, errors.IsTransient(err))
	}

	assert.Equal(t, StatusCircuitOpen, c.Status())
	assert.Equal(t, 2*time.Second, c.Backoff())
	assert.Equal(t, 1.0, promtest.ToFloat64(m.NATSCircuitBreaker))

	err = c.Connect(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), c.GetStatus().FailureCount)
	assert.Equal(t, int32(2), c.Failures())
}

func TestNewClient_Options(t *testing.T) {
	c, err := NewClient(unreachable,
		WithReconnectWait(250*time.Millisecond),
		WithPingInterval(5*time.Second),
		WithMaxBackoff(2*time.Minute),
		WithDrainTimeout(3*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, c.reconnectWait)
	assert.Equal(t, 5*time.Second, c.pingInterval)
	assert.Equal(t, 2*time.Minute, c.maxBackoff)
	assert.Equal(t, 3*time.Second, c.drainTimeout)

	// below one second falls back to a minute
	c, err = NewClient(unreachable, WithMaxBackoff(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, c.maxBackoff)
}

func TestClient_WaitForConnectionTimeout(t *testing.T) {
	c, err := NewClient(unreachable)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.WaitForConnection(ctx), context.DeadlineExceeded)
}

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamrelay/errors"
)

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status   ConnectionStatus
		expected string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(42), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.status.String())
	}
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, time.Second, client.Backoff())
	assert.Equal(t, int32(0), client.Failures())
	assert.Nil(t, client.GetConnection())
}

func TestNewClient_EmptyURL(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestNewClient_OptionsApplied(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithName("relay"),
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithCircuitBreakerThreshold(0),
		WithMaxBackoff(time.Millisecond),
	)
	require.NoError(t, err)

	assert.Equal(t, "relay", client.clientName)
	assert.Equal(t, 3, client.maxReconnects)
	assert.Equal(t, int32(5), client.circuitThreshold, "threshold below 1 falls back to default")
	assert.Equal(t, time.Minute, client.maxBackoff, "backoff below 1s falls back to default")
}

func TestClient_NotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, client.Publish(ctx, "bus.carState", []byte("{}")), ErrNotConnected)
	assert.ErrorIs(t, client.PublishMsg(ctx, &nats.Msg{Subject: "bus.carState"}), ErrNotConnected)

	_, err = client.SubscribeMsg("bus.carState", func(*nats.Msg) {})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	client, err := NewClient("nats://127.0.0.1:1",
		WithCircuitBreakerThreshold(2),
		WithTimeout(100*time.Millisecond),
		WithMaxReconnects(0),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StatusDisconnected, client.Status())

	err = client.Connect(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, StatusCircuitOpen, client.Status())

	// Fails fast while open
	err = client.Connect(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2*time.Second, client.Backoff())

	// Moves to half-open after the initial backoff
	assert.Eventually(t, func() bool {
		return client.Status() == StatusDisconnected
	}, 3*time.Second, 20*time.Millisecond)
}

func TestClient_CloseIdempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.NoError(t, client.Close(context.Background()))
	assert.NoError(t, client.Close(context.Background()))
	assert.ErrorIs(t, client.Connect(context.Background()), ErrClosed)
}

func TestClient_WaitForConnectionTimeout(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = client.WaitForConnection(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

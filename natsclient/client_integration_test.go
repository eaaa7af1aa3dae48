//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PublishSubscribeHeaders(t *testing.T) {
	tc := NewTestClient(t)
	require.True(t, tc.IsReady())

	received := make(chan *nats.Msg, 1)
	sub, err := tc.Client.SubscribeMsg("bus.carState", func(msg *nats.Msg) {
		received <- msg
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := nats.NewMsg("bus.carState")
	msg.Header.Set("Log-Mono-Time", "12345")
	msg.Data = []byte(`{"vEgo":1.5}`)
	require.NoError(t, tc.Client.PublishMsg(ctx, msg))
	require.NoError(t, tc.Client.Flush(ctx))

	select {
	case got := <-received:
		assert.Equal(t, "12345", got.Header.Get("Log-Mono-Time"))
		assert.JSONEq(t, `{"vEgo":1.5}`, string(got.Data))
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}

	require.NoError(t, tc.Client.Unsubscribe(sub))

	rtt, err := tc.Client.RTT()
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))

	status := tc.Client.GetStatus()
	assert.Equal(t, StatusConnected, status.Status)
}

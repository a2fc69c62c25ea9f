package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imaustink/homebridge-mqtt-base/internal/mqtttest"
	"github.com/imaustink/homebridge-mqtt-base/pkg/gateway"
)

func newTestBridge(t *testing.T, client *mqtttest.Client) *Bridge {
	t.Helper()
	gw := gateway.New(gateway.Config{
		ClientID:       "bridge-test",
		PublishTopic:   "bridge/state",
		SubscribeTopic: "bridge/remote",
		QoS:            gateway.DefaultQoS,
	}, gateway.WithClient(client))
	return New(gw, WithQuietPeriod(20*time.Millisecond))
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SetState completion")
		return nil
	}
}

func TestSetStateFlowsToBroker(t *testing.T) {
	client := mqtttest.NewClient()
	b := newTestBridge(t, client)

	done := make(chan error, 2)
	b.SetState(map[string]any{"On": true}, func(err error) { done <- err })
	b.SetState(map[string]any{"Brightness": 80}, func(err error) { done <- err })

	require.NoError(t, waitErr(t, done))
	require.NoError(t, waitErr(t, done))

	pubs := client.Publishes()
	require.Len(t, pubs, 1, "two SetState calls in one quiet period collapse into one publish")
	assert.Equal(t, "bridge/state", pubs[0].Topic)
	assert.JSONEq(t, `{"On": true, "Brightness": 80}`, string(pubs[0].Payload))
}

func TestSetStateFanOutOnPublishError(t *testing.T) {
	client := mqtttest.NewClient()
	client.PublishErr = errors.New("broker unavailable")
	b := newTestBridge(t, client)

	done := make(chan error, 2)
	b.SetState(map[string]any{"On": true}, func(err error) { done <- err })
	b.SetState(map[string]any{"On": false}, func(err error) { done <- err })

	for i := 0; i < 2; i++ {
		err := waitErr(t, done)
		require.Error(t, err)
		assert.ErrorContains(t, err, "broker unavailable")
	}
}

func TestRemoteStateBypassesCoalescer(t *testing.T) {
	client := mqtttest.NewClient()
	b := newTestBridge(t, client)

	received := make(chan map[string]any, 1)
	b.OnRemoteState(func(state map[string]any) { received <- state })

	// Deliver a remote message through the gateway's inbound path.
	gw := b.gateway
	require.NoError(t, gw.HandleMessage("bridge/remote", []byte(`{"On": false}`)))

	select {
	case state := <-received:
		assert.Equal(t, false, state["On"])
	case <-time.After(time.Second):
		t.Fatal("reconciliation hook never invoked")
	}

	// The remote message did not publish anything or touch pending callbacks.
	assert.Empty(t, client.Publishes())
	assert.Zero(t, b.Pending())
}

func TestIdentifyInvokesCallbackImmediately(t *testing.T) {
	b := newTestBridge(t, mqtttest.NewClient())

	called := false
	b.Identify(func() { called = true })
	assert.True(t, called, "identify must confirm synchronously")

	b.Identify(nil) // must not panic
}

func TestReconcileAndSnapshot(t *testing.T) {
	b := newTestBridge(t, mqtttest.NewClient())

	b.Reconcile(map[string]any{"On": true, "Brightness": 50})

	snap := b.Snapshot()
	assert.Equal(t, true, snap["On"])
	assert.Equal(t, 50, snap["Brightness"])
}

func TestStopUnresolvedCallbacks(t *testing.T) {
	client := mqtttest.NewClient()
	b := newTestBridge(t, client)

	b.SetState(map[string]any{"On": true}, func(error) {
		t.Error("callback resolved after Stop")
	})
	b.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, client.Publishes())
	assert.Equal(t, gateway.StateDisconnected, b.ConnectionState())
}

package gridnav

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	client, err := InitMQTT(DefaultConfig(), nil)
	assert.NoError(t, err)
	assert.Nil(t, client, "no broker configured disables MQTT")

	client, err = InitMQTT(nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestMQTTClient_CommandTopic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MQTT.PublishPrefix = "lab/bot1"
	c := newMQTTClientWithMock(NewMockClient(), cfg, nil)
	assert.Equal(t, "lab/bot1/command", c.CommandTopic())
}

func TestMQTTClient_OnConnectSubscribesCommands(t *testing.T) {
	mock := NewMockClient()
	var mu sync.Mutex
	var got [][]byte
	handler := func(payload []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, payload)
		return nil
	}

	c := newMQTTClientWithMock(mock, DefaultConfig(), handler)
	mock.SetOnConnect(c.onConnect)
	assert.False(t, c.IsConnected())

	require.NoError(t, mock.Connect().Error())
	assert.True(t, c.IsConnected())

	assert.True(t, mock.SimulateMessage("gridbot/command", []byte(`{"command":"checkAhead"}`)))
	assert.False(t, mock.SimulateMessage("gridbot/other", []byte(`{}`)), "only the command topic is subscribed")

	mu.Lock()
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"command":"checkAhead"}`, string(got[0]))
	mu.Unlock()

	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.False(t, mock.IsConnected())
}

func TestMQTTClient_HandlerErrorsAreSwallowed(t *testing.T) {
	mock := NewMockClient()
	calls := 0
	c := newMQTTClientWithMock(mock, DefaultConfig(), func([]byte) error {
		calls++
		return errors.New("queue full")
	})
	mock.SetOnConnect(c.onConnect)
	require.NoError(t, mock.Connect().Error())

	assert.True(t, mock.SimulateMessage(c.CommandTopic(), []byte(`{}`)))
	assert.Equal(t, 1, calls)
}

func TestMQTTClient_NilHandler(t *testing.T) {
	mock := NewMockClient()
	c := newMQTTClientWithMock(mock, DefaultConfig(), nil)
	mock.SetOnConnect(c.onConnect)
	require.NoError(t, mock.Connect().Error())

	assert.NotPanics(t, func() {
		mock.SimulateMessage(c.CommandTopic(), []byte(`{}`))
	})
}

func TestMQTTClient_SubscribeFailureKeepsConnection(t *testing.T) {
	mock := NewMockClient()
	mock.SetSubscribeError(errors.New("not authorised"))
	c := newMQTTClientWithMock(mock, DefaultConfig(), nil)
	mock.SetOnConnect(c.onConnect)

	require.NoError(t, mock.Connect().Error())
	assert.True(t, c.IsConnected())
	assert.False(t, mock.SimulateMessage(c.CommandTopic(), nil))
}

func TestMQTTClient_ConnectionLost(t *testing.T) {
	mock := NewMockClient()
	c := newMQTTClientWithMock(mock, DefaultConfig(), nil)
	c.onConnect(mock)
	assert.True(t, c.IsConnected())

	c.onConnectionLost(mock, errors.New("eof"))
	assert.False(t, c.IsConnected())
	assert.Same(t, mock, c.GetClient())
}

func TestControllerReceivesMQTTCommands(t *testing.T) {
	mock := NewMockClient()
	ctrl := NewController(nil, 1)
	c := newMQTTClientWithMock(mock, DefaultConfig(), ctrl.HandlePayload)
	mock.SetOnConnect(c.onConnect)
	require.NoError(t, mock.Connect().Error())

	mock.SimulateMessage(c.CommandTopic(), []byte(`{"command":"snapper","enabled":true}`))
	mock.SimulateMessage(c.CommandTopic(), []byte(`{"command":"snapper","enabled":false}`))

	cmd := <-ctrl.queue
	assert.Equal(t, "snapper", cmd.Command)
	require.NotNil(t, cmd.Enabled)
	assert.True(t, *cmd.Enabled)
	assert.Empty(t, ctrl.queue, "second command is dropped while the queue is full")
}

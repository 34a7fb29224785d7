package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/housemon/internal/errors"
	"codeberg.org/mutker/housemon/internal/record"
	"codeberg.org/mutker/housemon/internal/sensor"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// startBroker runs an in-process broker that accepts every client.
func startBroker(t *testing.T) string {
	t.Helper()
	address := fmt.Sprintf("127.0.0.1:%d", freePort(t))

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "test",
		Address: address,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { server.Close() })

	return "tcp://" + address
}

func subscribe(t *testing.T, server, topic string) <-chan mqtt.Message {
	t.Helper()
	messages := make(chan mqtt.Message, 10)

	opts := mqtt.NewClientOptions().AddBroker(server).SetClientID(NewClientID())
	client := mqtt.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	t.Cleanup(func() { client.Disconnect(100) })

	token = client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		messages <- msg
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	return messages
}

func records(n int) []record.AveragedRecord {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)
	out := make([]record.AveragedRecord, n)
	for i := range out {
		out[i] = record.NewAveragedRecord(sensor.Reading{
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			Temperature: 20 + float64(i),
			Humidity:    45,
		}, 20, 45)
	}
	return out
}

func TestStateTopic(t *testing.T) {
	assert.Equal(t, "housemon/state", StateTopic("housemon"))
	assert.Equal(t, "home/livingroom/state", StateTopic("home/livingroom/"))
}

func TestNewClientID(t *testing.T) {
	a, b := NewClientID(), NewClientID()
	assert.True(t, strings.HasPrefix(a, "housemon-"))
	assert.NotEqual(t, a, b)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, errors.IsConfig(err))

	_, err = New(Config{Server: DefaultServer, QoS: 3})
	assert.True(t, errors.IsConfig(err))
}

func TestNewConnectFailure(t *testing.T) {
	_, err := New(Config{
		Server:  fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t)),
		Timeout: 2 * time.Second,
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrPublishConnect, errors.CodeOf(err))
}

func TestPublishNewestRecord(t *testing.T) {
	server := startBroker(t)
	messages := subscribe(t, server, "test/state")

	p, err := New(Config{Server: server, Topic: "test", QoS: 1, Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	assert.Equal(t, "publish", p.Name())

	ctx := context.Background()
	all := records(3)
	require.NoError(t, p.Handle(ctx, all[:2]))

	select {
	case msg := <-messages:
		assert.Equal(t, "test/state", msg.Topic())
		var got record.AveragedRecord
		require.NoError(t, json.Unmarshal(msg.Payload(), &got))
		assert.InDelta(t, 21.0, got.Temperature, 1e-9)
		assert.True(t, all[1].Timestamp.Equal(got.Timestamp))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}

	// Same newest record: nothing new to send.
	require.NoError(t, p.Handle(ctx, all[:2]))
	require.NoError(t, p.Handle(ctx, nil))
	assert.Equal(t, 1, p.Sent())

	require.NoError(t, p.Handle(ctx, all))
	assert.Equal(t, 2, p.Sent())

	select {
	case msg := <-messages:
		var got record.AveragedRecord
		require.NoError(t, json.Unmarshal(msg.Payload(), &got))
		assert.InDelta(t, 22.0, got.Temperature, 1e-9)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

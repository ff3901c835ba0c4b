package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeClient struct {
	topic        string
	qos          byte
	retained     bool
	payload      []byte
	token        mqtt.Token
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic, c.qos, c.retained = topic, qos, retained
	c.payload, _ = payload.([]byte)
	return c.token
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestMQTTPublisher_Publish(t *testing.T) {
	client := &fakeClient{token: doneToken(nil)}
	cfg := DefaultMQTTConfig()
	cfg.TopicPrefix = "lots/"
	cfg.Retain = true
	pub := newMQTTPublisher(client, cfg)

	require.NoError(t, pub.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, "lots/3/7/plates", client.topic)
	assert.Equal(t, byte(1), client.qos)
	assert.True(t, client.retained)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(client.payload, &ev))
	assert.Equal(t, "AB123CD", ev["plate"])
	assert.Equal(t, []any{10.0, 10.0, 110.0, 60.0}, ev["bbox"])

	require.NoError(t, pub.Close())
	assert.True(t, client.disconnected)
}

func TestMQTTPublisher_Errors(t *testing.T) {
	pub := newMQTTPublisher(&fakeClient{token: doneToken(errors.New("not authorized"))}, DefaultMQTTConfig())
	assert.ErrorContains(t, pub.Publish(context.Background(), sampleEvent()), "not authorized")

	pending := &fakeToken{done: make(chan struct{})}
	cfg := DefaultMQTTConfig()
	cfg.ConnectTimeout = 20 * time.Millisecond
	pub = newMQTTPublisher(&fakeClient{token: pending}, cfg)
	assert.ErrorContains(t, pub.Publish(context.Background(), sampleEvent()), "timed out")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub = newMQTTPublisher(&fakeClient{token: &fakeToken{done: make(chan struct{})}}, DefaultMQTTConfig())
	assert.ErrorIs(t, pub.Publish(ctx, sampleEvent()), context.Canceled)
}

func TestMQTTConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultMQTTConfig().Validate(), "disabled config is always valid")

	cfg := DefaultMQTTConfig()
	cfg.Enabled = true
	require.NoError(t, cfg.Validate())

	cfg.QoS = 3
	assert.Error(t, cfg.Validate())

	cfg = DefaultMQTTConfig()
	cfg.Enabled = true
	cfg.Broker = ""
	assert.Error(t, cfg.Validate())
}

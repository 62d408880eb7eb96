package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echorelay-project/echorelay/internal/config"
	"github.com/echorelay-project/echorelay/internal/events"
)

type published struct {
	topic string
	msg   Message
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	sent      []published
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{topic: topic, msg: m})
	return nil
}

func (f *fakePublisher) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.sent...)
}

func TestHandlerPublishesRoutedEvents(t *testing.T) {
	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)
	pub := &fakePublisher{connected: true}
	h := NewHandler("/echorelay/", bus, pub)
	h.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	h.SubscribeEvents()

	ctx := context.Background()
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventServerRegistered,
		Payload: events.GameServerPayload{ServerID: 9, Address: "203.0.113.4", Port: 6792},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventMatchFailed,
		Payload: events.MatchPayload{UserID: "OVR-1", Message: "no servers"},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{Type: events.EventPacketSent}))

	sent := pub.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "echorelay/relay/serverdb", sent[0].topic)
	assert.Equal(t, "server_registered", sent[0].msg.Event)
	assert.Equal(t, "2026-01-02T03:04:05Z", sent[0].msg.Timestamp)
	assert.Contains(t, sent[0].msg.Host, "hostname")
	assert.EqualValues(t, 9, sent[0].msg.Payload.(map[string]any)["ServerID"])

	assert.Equal(t, "echorelay/relay/matching", sent[1].topic)
	assert.Equal(t, "match_failed", sent[1].msg.Event)
}

func TestHandlerSkipsWhileDisconnected(t *testing.T) {
	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)
	pub := &fakePublisher{}
	h := NewHandler("", bus, pub)
	h.SubscribeEvents()

	require.NoError(t, bus.EmitSync(context.Background(), events.Event{Type: events.EventHeartbeat}))
	assert.Empty(t, pub.messages())
	assert.Equal(t, "relay/status", h.Topic(TopicStatus))
}

func TestRunPublishesShutdown(t *testing.T) {
	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)
	pub := &fakePublisher{connected: true}
	h := NewHandler("relay1", bus, pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		return bus.HandlerCount(events.EventHeartbeat) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Zero(t, bus.HandlerCount(events.EventHeartbeat))

	sent := pub.messages()
	require.NotEmpty(t, sent)
	last := sent[len(sent)-1]
	assert.Equal(t, "relay1/relay/status", last.topic)
	assert.Equal(t, "shutdown", last.msg.Event)
}

func TestDialDisabled(t *testing.T) {
	_, err := Dial(config.MQTTConfig{})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestClientOptionsRejectsBadCA(t *testing.T) {
	ca := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(ca, []byte("not a certificate"), 0600))

	_, err := clientOptions(config.MQTTConfig{Enabled: true, BrokerURL: "localhost", Port: 8883, UseTLS: true, CAFile: ca})
	assert.Error(t, err)

	opts, err := clientOptions(config.MQTTConfig{Enabled: true, BrokerURL: "localhost", Port: 1883, ClientID: "relay-a"})
	require.NoError(t, err)
	assert.Equal(t, "relay-a", opts.ClientID)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://localhost:1883", opts.Servers[0].String())
}

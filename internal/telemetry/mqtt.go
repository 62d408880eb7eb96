// Package telemetry publishes relay events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/config"
	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Topic suffixes, appended to the configured prefix.
const (
	TopicStatus   = "relay/status"
	TopicPeers    = "relay/peers"
	TopicServers  = "relay/serverdb"
	TopicMatching = "relay/matching"
	TopicAccounts = "relay/accounts"
	TopicHealth   = "relay/health"
)

// ErrDisabled is returned when MQTT telemetry is turned off.
var ErrDisabled = errors.New("MQTT telemetry is disabled")

// Publisher is the part of an MQTT client the handler needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Connected() bool
}

// Message is the envelope of every published event.
type Message struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Host      map[string]any `json:"host"`
	Payload   any            `json:"payload"`
}

// MQTTHandler forwards bus events to MQTT topics.
type MQTTHandler struct {
	prefix    string
	eventBus  *events.EventBus
	publisher Publisher
	metadata  map[string]any
	now       func() time.Time
	logger    zerolog.Logger
}

var routes = []struct {
	event events.EventType
	topic string
}{
	{events.EventPeerConnected, TopicPeers},
	{events.EventPeerDisconnected, TopicPeers},
	{events.EventServerRegistered, TopicServers},
	{events.EventServerUnregistered, TopicServers},
	{events.EventLobbyStarted, TopicServers},
	{events.EventLobbyEnded, TopicServers},
	{events.EventMatchSucceeded, TopicMatching},
	{events.EventMatchFailed, TopicMatching},
	{events.EventAccountBanned, TopicAccounts},
	{events.EventAccountUnbanned, TopicAccounts},
	{events.EventHeartbeat, TopicStatus},
	{events.EventPublicIPChanged, TopicHealth},
	{events.EventHealthWarning, TopicHealth},
}

// NewHandler creates a handler publishing through p.
func NewHandler(prefix string, eventBus *events.EventBus, p Publisher) *MQTTHandler {
	sys := util.GetSystemInfo()
	return &MQTTHandler{
		prefix:    strings.Trim(prefix, "/"),
		eventBus:  eventBus,
		publisher: p,
		metadata: map[string]any{
			"hostname": sys.Hostname,
			"os":       sys.OS,
			"arch":     sys.Architecture,
		},
		now:    time.Now,
		logger: log.With().Str("component", "mqtt").Logger(),
	}
}

// Topic returns the full topic for a suffix.
func (h *MQTTHandler) Topic(suffix string) string {
	if h.prefix == "" {
		return suffix
	}
	return h.prefix + "/" + suffix
}

// SubscribeEvents registers the bus handlers that publish events.
func (h *MQTTHandler) SubscribeEvents() {
	for _, r := range routes {
		topic := h.Topic(r.topic)
		h.eventBus.Subscribe(r.event, "mqtt."+string(r.event), func(_ context.Context, e events.Event) error {
			return h.publish(topic, string(e.Type), e.Payload)
		})
	}
}

// UnsubscribeEvents removes the handlers added by SubscribeEvents.
func (h *MQTTHandler) UnsubscribeEvents() {
	for _, r := range routes {
		h.eventBus.Unsubscribe(r.event, "mqtt."+string(r.event))
	}
}

func (h *MQTTHandler) publish(topic, event string, payload any) error {
	if !h.publisher.Connected() {
		return nil
	}
	data, err := json.Marshal(Message{
		Event:     event,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Host:      h.metadata,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal MQTT message: %w", err)
	}
	if err := h.publisher.Publish(topic, data); err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
	}
	return nil
}

// PublishShutdown sends a shutdown notice on the status topic.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(h.Topic(TopicStatus), string(events.EventShutdown), nil)
}

// Run subscribes to the bus and blocks until ctx is cancelled, then
// publishes a shutdown notice.
func (h *MQTTHandler) Run(ctx context.Context) {
	h.SubscribeEvents()
	<-ctx.Done()
	h.UnsubscribeEvents()
	h.PublishShutdown()
}

// Client wraps a paho client as a Publisher.
type Client struct {
	client  mqtt.Client
	timeout time.Duration
}

// Dial connects to the broker described by cfg.
func Dial(cfg config.MQTTConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{client: mqtt.NewClient(opts), timeout: 5 * time.Second}
	token := c.client.Connect()
	if !token.WaitTimeout(30*time.Second) || token.Error() != nil {
		if token.Error() != nil {
			return nil, fmt.Errorf("MQTT connect failed: %w", token.Error())
		}
		return nil, fmt.Errorf("MQTT connect to %s timed out", brokerURL(cfg))
	}
	return c, nil
}

func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port)
}

func clientOptions(cfg config.MQTTConfig) (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID("echorelay-" + util.GetSystemInfo().Hostname)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)

	if cfg.UseTLS {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.CAFile != "" {
			pem, err := os.ReadFile(cfg.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
			}
			tlsConfig.RootCAs = pool
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", brokerURL(cfg)).Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})
	return opts, nil
}

// Publish sends payload with QoS 1 and waits for the broker's ack.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// Connected reports whether the client has a live connection.
func (c *Client) Connected() bool { return c.client.IsConnected() }

// Close disconnects, allowing in-flight messages 250ms to drain.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

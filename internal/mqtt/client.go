// Package mqtt publishes rule outputs straight to an MQTT broker, bypassing
// Home Assistant's mqtt.publish service.
package mqtt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"hvacautomation/internal/config"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	defaultKeepAlive         = 60 * time.Second

	payloadOnline  = "online"
	payloadOffline = "offline"
)

var (
	ErrNotConnected   = errors.New("mqtt not connected")
	ErrPublishTimeout = errors.New("mqtt publish timeout")
)

// conn is the part of the paho client the publisher uses
type conn interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Client publishes rule values to the broker
type Client struct {
	conn        conn
	logger      *zap.Logger
	statusTopic string
	timeout     time.Duration
}

// StatusTopic is where the client announces online/offline (retained, with a last will)
func StatusTopic(clientID string) string {
	return fmt.Sprintf("%s/status", clientID)
}

func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(StatusTopic(cfg.ClientID), payloadOffline, 1, true)

	return opts
}

// Connect dials the broker and announces the client online
func Connect(cfg config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	logger = logger.Named("mqtt")
	opts := buildClientOptions(cfg)

	c := &Client{
		logger:      logger,
		statusTopic: StatusTopic(cfg.ClientID),
		timeout:     defaultPublishTimeout,
	}

	opts.SetOnConnectHandler(func(client pahomqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.Host))
		client.Publish(c.statusTopic, 1, true, payloadOnline)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := pahomqtt.NewClient(opts)
	c.conn = client

	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("failed to connect to MQTT broker: timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return c, nil
}

// Publish sends payload to topic (QoS 0, not retained) and waits for it to be handed to the broker
func (c *Client) Publish(topic string, payload any) error {
	if !c.conn.IsConnected() {
		return ErrNotConnected
	}

	text := FormatPayload(payload)
	token := c.conn.Publish(topic, 0, false, text)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	c.logger.Debug("Published", zap.String("topic", topic), zap.String("payload", text))
	return nil
}

// Close announces the client offline and disconnects
func (c *Client) Close() {
	if c.conn.IsConnected() {
		token := c.conn.Publish(c.statusTopic, 1, true, payloadOffline)
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.conn.Disconnect(defaultDisconnectQuiesce)
}

// FormatPayload renders a rule value as the plain-text payload Home Assistant MQTT entities expect
func FormatPayload(payload any) string {
	switch v := payload.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

package dispatch

import (
	"fmt"

	"go.uber.org/zap"
)

// Publisher sends a payload to a message bus topic
type Publisher interface {
	Publish(topic string, payload any) error
}

// HAPublisher publishes through Home Assistant's mqtt.publish service
type HAPublisher struct {
	client ServiceCaller
}

func NewHAPublisher(client ServiceCaller) *HAPublisher {
	return &HAPublisher{client: client}
}

func (p *HAPublisher) Publish(topic string, payload any) error {
	if topic == "" {
		return fmt.Errorf("empty topic")
	}
	return p.client.CallService("mqtt", "publish", map[string]interface{}{
		"topic":   topic,
		"payload": payload,
	})
}

// ReadOnlyPublisher logs publishes instead of sending them
type ReadOnlyPublisher struct {
	logger *zap.Logger
}

func NewReadOnlyPublisher(logger *zap.Logger) *ReadOnlyPublisher {
	return &ReadOnlyPublisher{logger: logger.Named("dispatch")}
}

func (p *ReadOnlyPublisher) Publish(topic string, payload any) error {
	if topic == "" {
		return fmt.Errorf("empty topic")
	}
	p.logger.Info("READ-ONLY: skipping publish",
		zap.String("topic", topic),
		zap.Any("payload", payload))
	return nil
}

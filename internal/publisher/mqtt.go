package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wisefido-ledger/internal/domain"

	"go.uber.org/zap"
)

// DefaultTopicPrefix 默认 topic 前缀
const DefaultTopicPrefix = "ledger"

var ErrMQTTDisconnected = errors.New("mqtt client not connected")

// mqttClient common/mqtt.Client 实现此接口
type mqttClient interface {
	Publish(topic string, retained bool, payload []byte) error
	IsConnected() bool
}

// MQTTPublisher 将已提交事件发布到 <prefix>/<participant_id>/events，供边缘网关订阅
type MQTTPublisher struct {
	client mqttClient
	prefix string
	logger *zap.Logger
}

// NewMQTTPublisher 创建 MQTT 分发器
func NewMQTTPublisher(client mqttClient, prefix string, logger *zap.Logger) *MQTTPublisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTTPublisher{client: client, prefix: prefix, logger: logger}
}

// Topic 参与者事件 topic
func (p *MQTTPublisher) Topic(participantID string) string {
	return fmt.Sprintf("%s/%s/events", p.prefix, participantID)
}

func (p *MQTTPublisher) Publish(ctx context.Context, e *domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// 断线期间 paho 自动重连，本次发布直接失败
	if !p.client.IsConnected() {
		return ErrMQTTDisconnected
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	topic := p.Topic(e.ParticipantID)
	if err := p.client.Publish(topic, false, payload); err != nil {
		return err
	}
	p.logger.Debug("Published event to MQTT", zap.String("topic", topic), zap.String("event_id", e.ID))
	return nil
}

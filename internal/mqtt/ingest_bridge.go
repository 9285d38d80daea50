package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"radiotest-data/internal/config"
	"radiotest-data/internal/domain"
	"radiotest-data/internal/service"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// bulkUploadMessage mirrors the HTTP bulk-upload body: field devices can
// publish the exact same payload to the broker instead.
type bulkUploadMessage struct {
	DeviceID string               `json:"deviceId"`
	Samples  []domain.SampleInput `json:"samples"`
}

// IngestBridge 订阅 bulk-upload 主题并转发给 IngestService
type IngestBridge struct {
	client pahomqtt.Client
	cfg    *config.MQTTConfig
	ingest service.IngestService
	logger *zap.Logger
}

// NewIngestBridge 创建并连接 MQTT ingest bridge
func NewIngestBridge(cfg *config.MQTTConfig, ingest service.IngestService, logger *zap.Logger) (*IngestBridge, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := pahomqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &IngestBridge{client: client, cfg: cfg, ingest: ingest, logger: logger}, nil
}

// Start subscribes to the configured topic. Message handling never panics
// the bridge: malformed payloads are logged and dropped.
func (b *IngestBridge) Start() error {
	token := b.client.Subscribe(b.cfg.Topic, b.cfg.QoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleMessage(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", b.cfg.Topic, token.Error())
	}
	b.logger.Info("MQTT ingest bridge subscribed", zap.String("topic", b.cfg.Topic))
	return nil
}

func (b *IngestBridge) handleMessage(topic string, payload []byte) {
	var msg bulkUploadMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("Dropping malformed MQTT payload",
			zap.String("topic", topic),
			zap.Int("payload_size", len(payload)),
			zap.Error(err),
		)
		return
	}
	if msg.DeviceID == "" {
		b.logger.Warn("Dropping MQTT payload without deviceId", zap.String("topic", topic))
		return
	}

	result, err := b.ingest.Ingest(context.Background(), msg.DeviceID, msg.Samples)
	if err != nil {
		b.logger.Error("MQTT bulk ingest failed",
			zap.String("device_id", msg.DeviceID),
			zap.Error(err),
		)
		return
	}

	b.logger.Info("MQTT bulk ingest completed",
		zap.String("device_id", msg.DeviceID),
		zap.Int("accepted", len(result.AcceptedIDs)),
		zap.Int("rejected", len(result.Rejected)),
	)
}

// Stop unsubscribes and disconnects.
func (b *IngestBridge) Stop() {
	if token := b.client.Unsubscribe(b.cfg.Topic); token.Wait() && token.Error() != nil {
		b.logger.Warn("MQTT unsubscribe failed", zap.Error(token.Error()))
	}
	b.client.Disconnect(250)
}

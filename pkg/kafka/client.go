// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"

	"infinity-go/internal/config"
	"infinity-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// Event 是跨实例广播的变更事件信封。
// Origin 标识产生事件的实例，消费者据此丢弃自己发出的回声。
type Event struct {
	Origin    string          `json:"origin"`
	Channel   string          `json:"channel"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// EventHandler 处理一条从 Kafka 消费到的事件。
type EventHandler interface {
	HandleEvent(ctx context.Context, event Event)
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceEvent 发送一条变更事件到 Kafka，以 Channel 作为分区键保证同频道有序。
func ProduceEvent(ctx context.Context, event Event) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return producer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(event.Channel),
			Value: eventBytes,
		},
	)
}

// StartConsumer 启动一个 Kafka 消费者，把其他实例广播的事件交给 handler。
// 变更通知是尽力而为的广播，消息无论处理结果如何都提交 offset。
func StartConsumer(cfg config.KafkaConfig, handler EventHandler) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		var event Event
		if err := json.Unmarshal(m.Value, &event); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		} else {
			handler.HandleEvent(context.Background(), event)
		}

		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}

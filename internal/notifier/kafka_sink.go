package notifier

import (
	"context"
	"encoding/json"

	"infinity-go/pkg/kafka"
)

// kafkaSink 把本实例的变更事件广播到 Kafka。
type kafkaSink struct {
	origin string
}

// NewKafkaSink 创建一个 Kafka Sink。origin 写入事件信封，
// 消费端据此识别并丢弃本实例的回声。
func NewKafkaSink(origin string) Sink {
	return &kafkaSink{origin: origin}
}

func (s *kafkaSink) Emit(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}
	return kafka.ProduceEvent(ctx, kafka.Event{
		Origin:    s.origin,
		Channel:   msg.Channel,
		Kind:      msg.Kind,
		Payload:   payload,
		Timestamp: msg.Timestamp,
	})
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter 是 *kafka.Writer 用到的部分，方便測試替換
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher 將提交後的帳務事件寫入 Kafka
// 同一筆轉帳的事件以 transferId 為 key，經 Hash balancer 落在同一個 partition
type Publisher struct {
	writer      messageWriter
	topicPrefix string
}

// NewPublisher 建立 Publisher
// writer 為非同步模式: WriteMessages 放入批次後立即返回，送出失敗由 completion 記錄
//
// 參數:
//
//	brokers: broker 位址列表
//	topicPrefix: topic 前綴，例如 "ledger." 會產生 "ledger.transfer_completed"
//	logger: 記錄非同步送出失敗
func NewPublisher(brokers []string, topicPrefix string, logger *slog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: brokers are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		Async:                  true,
		Completion:             completion(logger),
	}
	return newPublisher(writer, topicPrefix), nil
}

// completion 非同步批次送出後的回呼，只記錄失敗
func completion(logger *slog.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, m := range msgs {
			logger.Warn("kafka delivery failed", "topic", m.Topic, "key", string(m.Key), "error", err)
		}
	}
}

func newPublisher(w messageWriter, topicPrefix string) *Publisher {
	return &Publisher{writer: w, topicPrefix: topicPrefix}
}

// Topic 回傳實際寫入的 topic 名稱
func (p *Publisher) Topic(name string) string {
	if p.topicPrefix == "" {
		return name
	}
	return strings.TrimSuffix(p.topicPrefix, ".") + "." + name
}

// Publish 以 JSON 序列化事件並寫入 Kafka
func (p *Publisher) Publish(ctx context.Context, topic string, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: encode event: %w", err)
	}
	msg := kafka.Message{
		Topic: p.Topic(topic),
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(topic)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publisher: write %s: %w", msg.Topic, err)
	}
	return nil
}

// Close 送出緩衝中的訊息並關閉連線
func (p *Publisher) Close() error {
	return p.writer.Close()
}

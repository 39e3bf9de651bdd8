/*
Package notify provides notification sinks for the leave service.

PURPOSE:
  The lifecycle emits a notification after each committed transition
  (submitted, approved, rejected, cancelled). A sink decides where it goes.
  Sinks may fail; the service logs the failure and the transition stands.

SINKS:
  KafkaSink: publishes each notification as a JSON event, keyed by recipient
  Multi:     fans out to several sinks, e.g. the SQLite inbox plus Kafka

SEE ALSO:
  - leave/store.go: Notifier and Inbox interfaces
  - store/sqlite/directory.go: persisted inbox
*/
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "leave.notifications"

// EventType is carried in the event_type header.
const EventType = "leave.notification"

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Event is the wire form of a notification.
type Event struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Category   string    `json:"category"`
	Link       string    `json:"link,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func eventFrom(n leave.Notification) Event {
	return Event{
		ID:         n.ID,
		EmployeeID: string(n.EmployeeID),
		Title:      n.Title,
		Message:    n.Message,
		Category:   string(n.Category),
		Link:       n.Link,
		CreatedAt:  n.CreatedAt,
	}
}

// KafkaSink publishes notifications to a Kafka topic.
type KafkaSink struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

var _ leave.Notifier = (*KafkaSink)(nil)

// NewKafkaWriter builds a writer for the given brokers. The topic is set per
// message, so the writer itself carries none.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewKafkaSink(writer messageWriter, topic string, logger ...*zap.Logger) *KafkaSink {
	if topic == "" {
		topic = DefaultTopic
	}
	l := zap.L()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &KafkaSink{writer: writer, topic: topic, logger: l.Named("notify.kafka")}
}

// Notify writes one message keyed by recipient so a recipient's
// notifications stay ordered within a partition.
func (k *KafkaSink) Notify(ctx context.Context, n leave.Notification) error {
	payload, err := json.Marshal(eventFrom(n))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.topic,
		Key:   []byte(n.EmployeeID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventType)},
			{Key: "category", Value: []byte(n.Category)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish notification to %s: %w", k.topic, err)
	}
	k.logger.Debug("notification published",
		zap.String("id", n.ID),
		zap.String("recipient", string(n.EmployeeID)))
	return nil
}

// internal/common/events/publisher.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kennel-notifications/internal/common/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	TypeNotificationSent   = "notification.sent"
	TypeNotificationFailed = "notification.failed"
)

// OutcomeEvent is emitted once a job reaches a terminal state.
type OutcomeEvent struct {
	EventID           string    `json:"eventId"`
	Type              string    `json:"type"`
	NotificationID    string    `json:"notificationId"`
	TenantID          string    `json:"tenantId"`
	BookingID         string    `json:"bookingId,omitempty"`
	Channel           string    `json:"channel"`
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
	ErrorCode         string    `json:"errorCode,omitempty"`
	Error             string    `json:"error,omitempty"`
	OccurredAt        time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, event OutcomeEvent) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer MessageWriter
	logger logger.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log logger.Logger) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 5 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}, log)
}

func NewKafkaPublisherWithWriter(w MessageWriter, log logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		logger: log.WithFields(map[string]interface{}{"component": "outcome-publisher"}),
	}
}

// Publish writes the event keyed by notification id so all events for one
// job land on the same partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event OutcomeEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outcome event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.NotificationID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write outcome event: %w", err)
	}

	p.logger.Debug("outcome event published", map[string]interface{}{
		"eventId":        event.EventID,
		"type":           event.Type,
		"notificationId": event.NotificationID,
	})
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, OutcomeEvent) error { return nil }
func (NoopPublisher) Close() error                                { return nil }

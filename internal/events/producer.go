package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Domain event types emitted by the settlement core. Delivery to users
// (push/email/SMS/chat) is the notification collaborator's concern.
const (
	TypeOfferAccepted     = "offer.accepted"
	TypePaymentAuthorized = "payment.authorized"
	TypeTaskCompleted     = "task.completed"
	TypeTransferFailed    = "transfer.failed"
)

// Alert types for the operations channel.
const (
	AlertManualPayoutNeeded = "settlement.manual_payout_needed"
	AlertTransferFailed     = "settlement.transfer_failed"
	AlertFinalizationFailed = "settlement.finalization_failed"
)

// DomainEvent is the payload published for every settlement transition.
type DomainEvent struct {
	Type        string    `json:"type"`
	TaskID      uuid.UUID `json:"task_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Amount      float64   `json:"amount,omitempty"`
	PlatformFee float64   `json:"platform_fee,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Alert is an operational alert requiring human follow-up.
type Alert struct {
	Type      string    `json:"type"`
	TaskID    uuid.UUID `json:"task_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Producer publishes domain events and operational alerts to Kafka.
type Producer struct {
	events *kafka.Writer
	alerts *kafka.Writer
}

func NewProducer(brokers []string, eventsTopic, alertsTopic string) *Producer {
	return &Producer{
		events: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    eventsTopic,
			Balancer: &kafka.LeastBytes{},
		},
		alerts: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    alertsTopic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishEvent sends one domain event, keyed by task id so per-task ordering
// is preserved within a partition.
func (p *Producer) PublishEvent(ctx context.Context, event DomainEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.events.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TaskID.String()),
		Value: payload,
		Time:  time.Now(),
	})
}

// PublishAlert sends one operational alert.
func (p *Producer) PublishAlert(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return p.alerts.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.TaskID.String()),
		Value: payload,
		Time:  time.Now(),
	})
}

// Close flushes and closes both writers.
func (p *Producer) Close() error {
	if err := p.events.Close(); err != nil {
		p.alerts.Close()
		return err
	}
	return p.alerts.Close()
}

// Package events publishes settlement status transitions to kafka
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/instapay/pkg/models"
)

// StatusEvent describes one observed change of a payout
type StatusEvent struct {
	EventID          string          `json:"event_id"`
	TransactionID    uint            `json:"transaction_id"`
	UniqueID         string          `json:"unique_id"`
	ClientCode       string          `json:"client_code"`
	Channel          models.Channel  `json:"channel"`
	Amount           decimal.Decimal `json:"amount"`
	PreviousState    models.State    `json:"previous_state"`
	State            models.State    `json:"state"`
	SettlementStatus string          `json:"settlement_status"`
	UTR              string          `json:"utr,omitempty"`
	VoucherNo        string          `json:"voucher_no,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// NewStatusEvent snapshots a transaction after a transition
func NewStatusEvent(tx *models.Transaction, previous models.State) StatusEvent {
	ev := StatusEvent{
		EventID:          uuid.NewString(),
		TransactionID:    tx.ID,
		UniqueID:         tx.UniqueID,
		ClientCode:       tx.ClientCode,
		Channel:          tx.Channel,
		Amount:           tx.Amount,
		PreviousState:    previous,
		State:            tx.CurrentState(),
		SettlementStatus: tx.SettlementStatus(),
		UTR:              tx.UTRNumber,
		OccurredAt:       time.Now().UTC(),
	}
	if tx.VoucherNo != nil {
		ev.VoucherNo = *tx.VoucherNo
	}
	return ev
}

// Publisher emits status events
type Publisher interface {
	Publish(ctx context.Context, ev StatusEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by the gateway reference so every
// event of one payout lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher builds a publisher. Publish blocks on the write, so
// batchTimeout stays small; zero means 10ms.
func NewKafkaPublisher(logger *zap.Logger, brokers []string, topic string, batchTimeout time.Duration) *KafkaPublisher {
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.CRC32Balancer{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: batchTimeout,
			WriteTimeout: 5 * time.Second,
		},
		topic:  topic,
		logger: logger.Named("events"),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev StatusEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode status event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.UniqueID),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "state", Value: []byte(ev.State)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish status event to %s: %w", p.topic, err)
	}
	p.logger.Debug("status event published",
		zap.String("unique_id", ev.UniqueID),
		zap.String("state", string(ev.State)))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events; used when kafka is disabled
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, StatusEvent) error { return nil }
func (NopPublisher) Close() error                              { return nil }

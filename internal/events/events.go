// Package events publishes booking outcomes to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/rail"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const OutcomeQueue = "booking.outcomes"

// Outcome is published once per leg when its polling loop finishes.
type Outcome struct {
	ID                string         `json:"id"`
	SessionID         int64          `json:"session_id"`
	OwnerID           string         `json:"owner_id"`
	ChannelID         string         `json:"channel_id"`
	Provider          rail.Provider  `json:"provider"`
	Leg               booking.Leg    `json:"leg"`
	Status            booking.Status `json:"status"`
	ReservationNumber string         `json:"reservation_number,omitempty"`
	Attempts          int            `json:"attempts"`
	Reason            string         `json:"reason,omitempty"`
	At                time.Time      `json:"at"`
}

// NewOutcome snapshots s after its loop ended.
func NewOutcome(s *booking.Session, reason string) Outcome {
	return Outcome{
		ID:                uuid.NewString(),
		SessionID:         s.ID,
		OwnerID:           s.OwnerID,
		ChannelID:         s.ChannelID,
		Provider:          s.Provider,
		Leg:               s.Leg,
		Status:            s.Status(),
		ReservationNumber: s.ReservationNumber(),
		Attempts:          s.Attempts(),
		Reason:            reason,
		At:                time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, o Outcome) error
}

// Nop drops every outcome. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Outcome) error { return nil }

// AMQP publishes each outcome on its own connection so a broker outage never
// leaves a stale channel behind. Outcomes are rare, one or two per booking.
type AMQP struct {
	url string
	log *zap.Logger
}

func NewAMQP(url string, log *zap.Logger) *AMQP {
	return &AMQP{url: url, log: log.Named("events")}
}

// New returns an AMQP publisher, or Nop when url is empty.
func New(url string, log *zap.Logger) Publisher {
	if url == "" {
		return Nop{}
	}
	return NewAMQP(url, log)
}

func publishing(o Outcome) (amqp.Publishing, error) {
	body, err := json.Marshal(o)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    o.ID,
		Timestamp:    o.At,
		Type:         "booking.outcome",
		Body:         body,
	}, nil
}

func (p *AMQP) Publish(ctx context.Context, o Outcome) error {
	msg, err := publishing(o)
	if err != nil {
		return err
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn("dial broker", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("open channel", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(OutcomeQueue, true, false, false, false, nil); err != nil {
		p.log.Warn("declare queue", zap.Error(err))
		return err
	}
	if err := ch.PublishWithContext(ctx, "", OutcomeQueue, false, false, msg); err != nil {
		p.log.Warn("publish outcome", zap.Int64("session_id", o.SessionID), zap.Error(err))
		return err
	}
	p.log.Debug("outcome published", zap.Int64("session_id", o.SessionID), zap.String("status", string(o.Status)))
	return nil
}

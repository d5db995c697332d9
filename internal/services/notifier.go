package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type SessionEventKind string

const (
	SessionEventRequest   SessionEventKind = "request"
	SessionEventAccepted  SessionEventKind = "accepted"
	SessionEventRejected  SessionEventKind = "rejected"
	SessionEventCancelled SessionEventKind = "cancelled"
)

// SessionEvent is what the mailer needs to tell a user about their session
type SessionEvent struct {
	Kind           SessionEventKind `json:"kind"`
	SessionID      uuid.UUID        `json:"session_id"`
	Title          string           `json:"title"`
	ScheduledDate  time.Time        `json:"scheduled_date"`
	DurationMins   int              `json:"duration"`
	RecipientID    uuid.UUID        `json:"recipient_id"`
	RecipientName  string           `json:"recipient_name"`
	RecipientEmail string           `json:"recipient_email"`
	Reason         *string          `json:"reason,omitempty"`
}

// Notifier hands session events to the outbound notification service.
// Delivery is best effort.
type Notifier interface {
	NotifySessionEvent(ctx context.Context, event SessionEvent) error
}

const SessionEventsChannel = "session-events"

// RedisNotifier publishes events for the mail worker to consume
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client, channel: SessionEventsChannel}
}

func (n *RedisNotifier) NotifySessionEvent(ctx context.Context, event SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, payload).Err()
}

// LogNotifier is used when no broker is configured
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) NotifySessionEvent(_ context.Context, event SessionEvent) error {
	n.log.Info().
		Str("kind", string(event.Kind)).
		Str("session_id", event.SessionID.String()).
		Str("recipient_id", event.RecipientID.String()).
		Msg("session event")
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"time"

	"presence/internal/queue"
)

// MessageType tags queue messages carrying notifications.
const MessageType = "notify"

// Notification is one outbound message for an external collaborator.
type Notification struct {
	Channel string    `json:"channel"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// Publisher satisfies the attendance service's Notifier by enqueueing
// notifications for the delivery worker. Delivery is fire-and-forget from
// the request's point of view.
type Publisher struct {
	q queue.Queue
}

// NewPublisher wraps a queue backend.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// Notify enqueues a notification.
func (p *Publisher) Notify(ctx context.Context, channel, message string) error {
	body, err := json.Marshal(Notification{
		Channel: channel,
		Message: message,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, queue.Message{Type: MessageType, Body: body})
}

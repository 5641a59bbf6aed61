package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"ridetrack/internal/model"
)

// EventNotice is the webhook event type for dispatcher notices.
const EventNotice = "notice"

// Publisher enqueues every notice for delivery to a single webhook endpoint.
type Publisher struct {
	Queue  *Queue
	URL    string
	Secret string
}

func NewPublisher(q *Queue, url, secret string) *Publisher {
	return &Publisher{Queue: q, URL: url, Secret: secret}
}

// Notify implements notify.Notifier.
func (p *Publisher) Notify(_ context.Context, n model.Notice) {
	if p.URL == "" {
		return
	}
	payload := map[string]any{
		"id":   n.ID,
		"type": EventNotice,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": n,
	}
	body, _ := json.Marshal(payload)
	p.Queue.Enqueue(EventNotice, p.URL, p.Secret, body)
}

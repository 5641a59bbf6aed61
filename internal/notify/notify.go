// Package notify delivers dispatcher notices to viewers, logs and webhooks.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"ridetrack/internal/broker"
	"ridetrack/internal/metrics"
	"ridetrack/internal/model"
)

// EventNotice is the broker event type carrying a notice.
const EventNotice = "notice"

// Notifier shows a notice. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, n model.Notice)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n model.Notice)

func (f Func) Notify(ctx context.Context, n model.Notice) { f(ctx, n) }

// New builds a notice stamped with an id and the current time.
func New(message string, variant model.Variant, routeID string) model.Notice {
	if variant == "" {
		variant = model.VariantDefault
	}
	return model.Notice{
		ID:      uuid.NewString(),
		Message: message,
		Variant: variant,
		RouteID: routeID,
		TS:      time.Now().UTC().Format(time.RFC3339),
	}
}

// Fanout delivers to every notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n model.Notice) {
	metrics.Notices.WithLabelValues(string(n.Variant)).Inc()
	for _, x := range f {
		if x != nil {
			x.Notify(ctx, n)
		}
	}
}

// Broker publishes notices on broker.TopicNotices.
type Broker struct {
	B broker.EventBroker
}

func (b Broker) Notify(_ context.Context, n model.Notice) {
	b.B.Publish(broker.TopicNotices, broker.Event{Type: EventNotice, Data: map[string]any{
		"id":      n.ID,
		"message": n.Message,
		"variant": n.Variant,
		"routeId": n.RouteID,
		"ts":      n.TS,
	}})
}

// Log writes notices to the logger.
type Log struct {
	Logger log.FieldLogger
}

func (l Log) Notify(_ context.Context, n model.Notice) {
	l.Logger.WithFields(log.Fields{"route_id": n.RouteID, "variant": n.Variant}).Info(n.Message)
}

package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/outbox/idempotency"
)

const notificationConsumer = "customer-notifications"

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer delivers published notifications exactly once per message id.
type Consumer struct {
	subscription receiver
	idempotency  *idempotency.Guard
	sender       Sender
	logg         *logger.Logger
}

func NewConsumer(subscription receiver, guard *idempotency.Guard, sender Sender, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{subscription: subscription, idempotency: guard, sender: sender, logg: logg}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Data) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process reports whether the message should be redelivered.
func (c *Consumer) process(ctx context.Context, messageID string, data []byte) (retry bool) {
	logCtx := c.logg.WithField(ctx, "message_id", messageID)

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logg.Error(logCtx, "failed to decode notification", err)
		return false
	}
	if msg.ID == "" || !msg.Type.IsValid() {
		c.logg.Warn(logCtx, "dropping malformed notification")
		return false
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"notification_id":   msg.ID,
		"notification_type": msg.Type,
		"customer_id":       msg.CustomerID.String(),
	})

	first, err := c.idempotency.Claim(ctx, notificationConsumer, msg.ID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return true
	}
	if !first {
		c.logg.Info(logCtx, "notification already delivered")
		return false
	}

	if err := c.sender.Send(logCtx, Render(msg)); err != nil {
		c.logg.Error(logCtx, "notification delivery failed", err)
		_ = c.idempotency.Release(ctx, notificationConsumer, msg.ID)
		return true
	}
	return false
}

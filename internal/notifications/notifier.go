package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/furnique/furnique-backend/pkg/enums"
	"github.com/furnique/furnique-backend/pkg/logger"
)

const attrNotificationType = "notification_type"

// Notifier is called after the owning transaction commits. Errors are
// reported to the caller, which logs them; they never undo committed state.
type Notifier interface {
	OrderConfirmed(ctx context.Context, notice OrderNotice) error
	OrderCanceled(ctx context.Context, notice OrderNotice) error
	CreditsGranted(ctx context.Context, notice CreditsNotice) error
}

// Publisher sends one encoded message to the notifications topic.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) error
}

// TopicPublisher adapts a Pub/Sub publisher and waits for the server ack.
type TopicPublisher struct {
	publisher *pubsub.Publisher
}

func NewTopicPublisher(publisher *pubsub.Publisher) (*TopicPublisher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return &TopicPublisher{publisher: publisher}, nil
}

func (p *TopicPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) error {
	_, err := p.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes}).Get(ctx)
	return err
}

// PubSubNotifier publishes notifications for the worker to deliver.
type PubSubNotifier struct {
	publisher Publisher
	logg      *logger.Logger
}

func NewPubSubNotifier(publisher Publisher, logg *logger.Logger) (*PubSubNotifier, error) {
	if publisher == nil {
		return nil, fmt.Errorf("notification publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &PubSubNotifier{publisher: publisher, logg: logg}, nil
}

func (n *PubSubNotifier) OrderConfirmed(ctx context.Context, notice OrderNotice) error {
	return n.publish(ctx, notice.message(enums.NotificationOrderConfirmed))
}

func (n *PubSubNotifier) OrderCanceled(ctx context.Context, notice OrderNotice) error {
	return n.publish(ctx, notice.message(enums.NotificationOrderCanceled))
}

func (n *PubSubNotifier) CreditsGranted(ctx context.Context, notice CreditsNotice) error {
	return n.publish(ctx, notice.message())
}

func (n *PubSubNotifier) publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.publisher.Publish(ctx, data, map[string]string{attrNotificationType: string(msg.Type)}); err != nil {
		return fmt.Errorf("publish %s notification: %w", msg.Type, err)
	}
	n.logg.Debug(n.logg.WithFields(ctx, map[string]any{
		"notification_id":   msg.ID,
		"notification_type": msg.Type,
	}), "notification published")
	return nil
}

// DirectNotifier renders and sends in process. It backs local runs without a broker.
type DirectNotifier struct {
	sender Sender
}

func NewDirectNotifier(sender Sender) *DirectNotifier {
	return &DirectNotifier{sender: sender}
}

func (n *DirectNotifier) OrderConfirmed(ctx context.Context, notice OrderNotice) error {
	return n.sender.Send(ctx, Render(notice.message(enums.NotificationOrderConfirmed)))
}

func (n *DirectNotifier) OrderCanceled(ctx context.Context, notice OrderNotice) error {
	return n.sender.Send(ctx, Render(notice.message(enums.NotificationOrderCanceled)))
}

func (n *DirectNotifier) CreditsGranted(ctx context.Context, notice CreditsNotice) error {
	return n.sender.Send(ctx, Render(notice.message()))
}

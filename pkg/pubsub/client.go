// Package pubsub wraps the Cloud Pub/Sub v2 client. Each binary declares the
// topics and subscriptions it depends on; NewClient refuses to start when one
// of them is missing and Ping re-checks them for readiness probes.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/furnique/furnique-backend/pkg/config"
	"github.com/furnique/furnique-backend/pkg/logger"
)

// Resources lists topic and subscription ids, short or fully qualified.
type Resources struct {
	Topics        []string
	Subscriptions []string
}

// PublisherResources is what the outbox publisher writes to.
func PublisherResources(cfg config.PubSubConfig) Resources {
	return Resources{Topics: []string{cfg.OrdersTopic, cfg.PaymentsTopic, cfg.NotificationTopic}}
}

// NotifierResources is what the api needs to hand notices to the worker.
func NotifierResources(cfg config.PubSubConfig) Resources {
	return Resources{Topics: []string{cfg.NotificationTopic}}
}

// WorkerResources is what the notification worker drains.
func WorkerResources(cfg config.PubSubConfig) Resources {
	return Resources{Subscriptions: []string{cfg.NotificationSubscription}}
}

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	required  Resources
}

var errProjectIDRequired = errors.New("gcp project id is required")

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, required Resources, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	ps, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: ps, projectID: projectID, cfg: cfg, required: required.compact()}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":       projectID,
			"topics":        c.required.Topics,
			"subscriptions": c.required.Subscriptions,
		}), "pubsub client initialized")
	}
	return c, nil
}

// Ping checks every required resource still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	var errs error
	for _, topic := range c.required.Topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topicName(topic)})
		errs = multierr.Append(errs, describe("topic", topic, err))
	}
	for _, sub := range c.required.Subscriptions {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.subscriptionName(sub)})
		errs = multierr.Append(errs, describe("subscription", sub, err))
	}
	return errs
}

func describe(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Subscriber returns a handle for a subscription id or resource name.
func (c *Client) Subscriber(name string) *pubsub.Subscriber {
	full := c.subscriptionName(name)
	if full == "" || c.client == nil {
		return nil
	}
	return c.client.Subscriber(full)
}

// NotificationSubscription is the subscriber cmd/worker drains.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscriber(c.cfg.NotificationSubscription)
}

// Publisher returns a handle for a topic id or resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	full := c.topicName(name)
	if full == "" || c.client == nil {
		return nil
	}
	return c.client.Publisher(full)
}

// NotificationPublisher publishes customer notifications after commit.
func (c *Client) NotificationPublisher() *pubsub.Publisher {
	if c == nil {
		return nil
	}
	return c.Publisher(c.cfg.NotificationTopic)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) topicName(name string) string { return c.qualify("topics", name) }

func (c *Client) subscriptionName(name string) string { return c.qualify("subscriptions", name) }

// qualify expands a short id to projects/<project>/<kind>/<id>. It returns
// "" for a nil client, a blank name or an unknown project.
func (c *Client) qualify(kind, name string) string {
	if c == nil {
		return ""
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + kind + "/" + name
}

func (r Resources) compact() Resources {
	return Resources{Topics: nonBlank(r.Topics), Subscriptions: nonBlank(r.Subscriptions)}
}

func nonBlank(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

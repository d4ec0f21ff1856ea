// Package bootstrap builds the payment and order graph shared by the api and
// cron-worker binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/furnique/furnique-backend/internal/cart"
	"github.com/furnique/furnique-backend/internal/credits"
	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/internal/inventory"
	"github.com/furnique/furnique-backend/internal/notifications"
	"github.com/furnique/furnique-backend/internal/orders"
	"github.com/furnique/furnique-backend/internal/payments"
	"github.com/furnique/furnique-backend/internal/reconcile"
	"github.com/furnique/furnique-backend/pkg/config"
	"github.com/furnique/furnique-backend/pkg/db"
	"github.com/furnique/furnique-backend/pkg/enums"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/metrics"
	"github.com/furnique/furnique-backend/pkg/momo"
	"github.com/furnique/furnique-backend/pkg/outbox"
	"github.com/furnique/furnique-backend/pkg/payos"
	"github.com/furnique/furnique-backend/pkg/pubsub"
	"github.com/furnique/furnique-backend/pkg/square"
	"github.com/furnique/furnique-backend/pkg/stripe"
)

// Core holds the long-lived services every payment path goes through.
type Core struct {
	Gateways     *gateway.Registry
	Orchestrator *payments.Orchestrator
	Payments     *payments.Repository
	Orders       orders.Service
	OrdersRepo   orders.Repository
	Carts        *cart.Repository
	Outbox       *outbox.Service
	Metrics      *metrics.PaymentMetrics
}

type CoreParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Notifier   notifications.Notifier
	Registerer prometheus.Registerer
}

// NewCore wires gateways, the orchestrator and its purpose handlers.
func NewCore(ctx context.Context, params CoreParams) (*Core, error) {
	switch {
	case params.Config == nil:
		return nil, fmt.Errorf("config required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db client required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	}
	cfg := params.Config
	logg := params.Logger
	conn := params.DB.DB()

	registry, err := Gateways(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}
	if len(registry.Methods()) == 0 {
		logg.Warn(ctx, "no payment gateway configured; checkout will reject every method")
	}

	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	ordersRepo := orders.NewRepository(conn)
	carts := cart.NewRepository(conn)
	stock := inventory.NewRepository(conn)

	capture, err := reconcile.NewOrderCapture(reconcile.OrderCaptureParams{
		Orders:    ordersRepo,
		Carts:     carts,
		Inventory: stock,
		Outbox:    emitter,
		Notifier:  params.Notifier,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("order capture: %w", err)
	}
	grants, err := credits.NewHandler(emitter, params.Notifier, logg)
	if err != nil {
		return nil, fmt.Errorf("credits handler: %w", err)
	}

	paymentMetrics := metrics.NewPaymentMetrics(params.Registerer)
	paymentsRepo := payments.NewRepository(conn)
	orch, err := payments.NewOrchestrator(payments.OrchestratorParams{
		Registry:          registry,
		Repo:              paymentsRepo,
		TransactionRunner: params.DB,
		Outbox:            emitter,
		Handlers: map[enums.PaymentType]payments.PurposeHandler{
			enums.PaymentTypeOrder:          capture,
			enums.PaymentTypeCreditPurchase: grants,
		},
		Metrics:        paymentMetrics,
		Logger:         logg,
		GatewayTimeout: cfg.Checkout.GatewayTimeout,
		Currency:       cfg.Checkout.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("payment orchestrator: %w", err)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:              ordersRepo,
		Inventory:         stock,
		TransactionRunner: params.DB,
		Outbox:            emitter,
		Notifier:          params.Notifier,
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	return &Core{
		Gateways:     registry,
		Orchestrator: orch,
		Payments:     paymentsRepo,
		Orders:       orderService,
		OrdersRepo:   ordersRepo,
		Carts:        carts,
		Outbox:       emitter,
		Metrics:      paymentMetrics,
	}, nil
}

// Gateways builds a strategy for every gateway whose credentials are set.
func Gateways(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*gateway.Registry, error) {
	var strategies []gateway.Strategy

	if cfg.PayOS.Enabled() {
		client, err := payos.NewClient(cfg.PayOS)
		if err != nil {
			return nil, fmt.Errorf("payos client: %w", err)
		}
		strategies = append(strategies, gateway.NewPayOS(client))
	}
	if cfg.MoMo.Enabled() {
		client, err := momo.NewClient(cfg.MoMo)
		if err != nil {
			return nil, fmt.Errorf("momo client: %w", err)
		}
		strategies = append(strategies, gateway.NewMoMo(client))
	}
	if cfg.Square.Enabled() {
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		strategies = append(strategies, gateway.NewSquare(client))
	}
	if cfg.Stripe.Enabled() {
		client, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		strategies = append(strategies, gateway.NewStripe(client))
	}

	registry, err := gateway.NewRegistry(strategies...)
	if err != nil {
		return nil, err
	}
	logg.Info(logg.WithField(ctx, "methods", registry.Methods()), "payment gateways ready")
	return registry, nil
}

// Notifier publishes to the notifications topic when Pub/Sub is available
// and otherwise logs notices in-process.
func Notifier(cfg *config.Config, logg *logger.Logger, client *pubsub.Client) (notifications.Notifier, error) {
	if client == nil || cfg.Eventing.Broker == config.BrokerKafka {
		return notifications.NewDirectNotifier(notifications.NewLogSender(logg)), nil
	}
	topic, err := notifications.NewTopicPublisher(client.NotificationPublisher())
	if err != nil {
		return nil, err
	}
	return notifications.NewPubSubNotifier(topic, logg)
}

package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/pkg/auth"
	"github.com/furnique/furnique-backend/pkg/db"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/metrics"
	"github.com/furnique/furnique-backend/pkg/outbox"
	"github.com/furnique/furnique-backend/pkg/outbox/payloads"
	"github.com/furnique/furnique-backend/pkg/pagination"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	cancelTimeout         = 5 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type OrchestratorParams struct {
	Registry          *gateway.Registry
	Repo              *Repository
	TransactionRunner txRunner
	Outbox            outbox.Emitter
	Handlers          map[enums.PaymentType]PurposeHandler
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
	GatewayTimeout    time.Duration
	// Currency is the ISO code checkouts were opened in; refunds reuse it.
	Currency string
}

// Orchestrator is the only writer of payment rows.
type Orchestrator struct {
	registry *gateway.Registry
	repo     *Repository
	tx       txRunner
	outbox   outbox.Emitter
	handlers map[enums.PaymentType]PurposeHandler
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	timeout  time.Duration
	currency string
	newCode  func() (int64, error)
}

func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	switch {
	case params.Registry == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway registry required")
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment repository required")
	case params.TransactionRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	handlers := make(map[enums.PaymentType]PurposeHandler, len(params.Handlers))
	for purpose, h := range params.Handlers {
		if h != nil {
			handlers[purpose] = h
		}
	}
	timeout := params.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &Orchestrator{
		registry: params.Registry,
		repo:     params.Repo,
		tx:       params.TransactionRunner,
		outbox:   params.Outbox,
		handlers: handlers,
		metrics:  params.Metrics,
		logg:     params.Logger,
		timeout:  timeout,
		currency: params.Currency,
		newCode:  NewOrderCode,
	}, nil
}

// CreatePayment opens the gateway checkout first and only then, in one
// transaction, writes the DRAFT payment and calls persist. A gateway failure
// writes nothing. A persistence failure voids the checkout when the gateway
// supports it.
func (o *Orchestrator) CreatePayment(ctx context.Context, req PaymentRequest, persist PersistFunc) (*gateway.CheckoutSession, error) {
	switch {
	case req.CustomerID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	case !req.Type.IsValid():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment type is invalid")
	case req.Checkout.OrderCode <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order code is required")
	case req.Checkout.Amount <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	strategy, err := o.registry.Get(req.Method)
	if err != nil {
		return nil, err
	}

	ctx = o.logg.WithFields(ctx, map[string]any{
		"order_code":   req.Checkout.OrderCode,
		"gateway":      req.Method.Slug(),
		"payment_type": req.Type,
	})

	session, err := o.callGateway(ctx, req.Method, "create_checkout", func(callCtx context.Context) (*gateway.CheckoutSession, error) {
		return strategy.CreateCheckout(callCtx, req.Checkout)
	})
	o.metrics.IncCheckout(req.Method.Slug(), err == nil)
	if err != nil {
		o.logg.Warn(ctx, "gateway checkout failed")
		return nil, err
	}

	payment := &models.Payment{
		OrderCode:         req.Checkout.OrderCode,
		CustomerID:        req.CustomerID,
		PaymentMethod:     req.Method,
		PaymentType:       req.Type,
		Amount:            req.Checkout.Amount,
		TransactionStatus: enums.TransactionStatusDraft,
		ProviderRef:       session.ProviderRef,
		CheckoutURL:       session.CheckoutURL,
		CreditPlan:        req.CreditPlan,
		Transaction:       []byte(session.Raw),
	}
	err = o.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := o.repo.WithTx(tx)
		if err := repo.Create(ctx, payment); err != nil {
			return err
		}
		if err := repo.AppendTransaction(ctx, payment.ID, enums.TransactionStatusDraft, session.Raw); err != nil {
			return err
		}
		if persist != nil {
			return persist(ctx, tx, payment)
		}
		return nil
	})
	if err != nil {
		o.voidCheckout(ctx, strategy, session)
		if db.IsUniqueViolation(err, "order_code") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ErrOrderCodeTaken, "order code already in use")
		}
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist draft payment")
		}
		o.logg.Error(ctx, "draft payment not persisted", err)
		return nil, err
	}

	o.logg.Info(o.logg.WithField(ctx, "payment_id", payment.ID.String()), "draft payment created")
	return session, nil
}

// ErrOrderCodeTaken is the cause of the CONFLICT returned when the order code collides.
var ErrOrderCodeTaken = errors.New("order code taken")

// ProcessWebhook verifies a gateway callback, then settles the payment it
// names in one transaction. Callbacks for payments that already left DRAFT
// succeed without mutating anything.
func (o *Orchestrator) ProcessWebhook(ctx context.Context, method enums.PaymentMethod, payload gateway.WebhookPayload) (*WebhookResult, error) {
	strategy, err := o.registry.Get(method)
	if err != nil {
		return nil, err
	}
	ctx = o.logg.WithGateway(ctx, method.Slug())
	if !strategy.VerifyWebhook(payload) {
		return nil, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "webhook signature mismatch")
	}
	outcome, err := strategy.ParseOutcome(payload)
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse webhook outcome")
		}
		return nil, err
	}

	result := &WebhookResult{Method: method, OrderCode: outcome.CorrelationID}
	if outcome.Ignored {
		result.Ignored = true
		return result, nil
	}
	return o.settle(ctx, method, outcome, result)
}

// ReconcileDraft asks the gateway whether a DRAFT payment was paid and settles
// it when it was, the same way a success callback would. It reports whether the
// payment is no longer DRAFT, so callers must not cancel it.
func (o *Orchestrator) ReconcileDraft(ctx context.Context, payment *models.Payment) (bool, error) {
	if payment.ProviderRef == "" {
		return false, nil
	}
	strategy, err := o.registry.Get(payment.PaymentMethod)
	if err != nil {
		return false, err
	}
	ctx = o.logg.WithGateway(ctx, payment.PaymentMethod.Slug())

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	started := time.Now()
	snapshot, err := strategy.FetchTransaction(callCtx, payment.ProviderRef)
	cancel()
	o.metrics.ObserveGatewayCall(payment.PaymentMethod.Slug(), "fetch_transaction", time.Since(started))
	if err != nil {
		return false, asGatewayError(err, "fetch_transaction")
	}
	if snapshot == nil || !snapshot.Paid {
		return false, nil
	}

	outcome := &gateway.Outcome{
		Success:       true,
		CorrelationID: payment.OrderCode,
		Amount:        snapshot.Amount,
		ProviderRef:   snapshot.ProviderRef,
		Payload:       snapshot.Raw,
	}
	result, err := o.settle(ctx, payment.PaymentMethod, outcome, &WebhookResult{Method: payment.PaymentMethod, OrderCode: payment.OrderCode})
	if err != nil {
		return false, err
	}
	if result.Status == enums.TransactionStatusDraft {
		o.logg.Warn(o.logg.WithOrderCode(ctx, payment.OrderCode), "gateway reports paid but the purchase can no longer be captured")
		return false, nil
	}
	return true, nil
}

// settle applies a verified outcome to the payment it names in one
// transaction.
func (o *Orchestrator) settle(ctx context.Context, method enums.PaymentMethod, outcome *gateway.Outcome, result *WebhookResult) (*WebhookResult, error) {
	ctx = o.logg.WithOrderCode(ctx, outcome.CorrelationID)

	var post PostCommit
	err := o.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := o.repo.WithTx(tx)
		payment, err := repo.FindByOrderCodeForUpdate(ctx, outcome.CorrelationID)
		if err != nil {
			return err
		}
		result.PaymentID = payment.ID
		result.Status = payment.TransactionStatus
		if payment.PaymentMethod != method {
			return pkgerrors.New(pkgerrors.CodeValidation, "callback gateway does not match payment").
				WithDetails(map[string]any{"paymentMethod": payment.PaymentMethod})
		}
		if payment.TransactionStatus != enums.TransactionStatusDraft {
			result.Duplicate = true
			return nil
		}
		if outcome.Success && outcome.Amount > 0 && outcome.Amount != payment.Amount {
			return pkgerrors.New(pkgerrors.CodeValidation, "callback amount does not match payment").
				WithDetails(map[string]any{"expected": payment.Amount, "received": outcome.Amount})
		}
		handler, ok := o.handlers[payment.PaymentType]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInternal, "no handler for payment type "+string(payment.PaymentType))
		}

		post, err = handler.Settle(ctx, tx, payment, outcome)
		if err != nil {
			return err
		}

		status := enums.TransactionStatusError
		event := enums.EventPaymentFailed
		if outcome.Success {
			status = enums.TransactionStatusCaptured
			event = enums.EventPaymentSettled
		}
		moved, err := repo.Transition(ctx, payment.ID, enums.TransactionStatusDraft, status, outcome.Payload)
		if err != nil {
			return err
		}
		if !moved {
			return errSettledConcurrently
		}
		if err := repo.AppendTransaction(ctx, payment.ID, status, outcome.Payload); err != nil {
			return err
		}
		payment.TransactionStatus = status
		result.Status = status
		return o.emitPaymentEvent(ctx, tx, event, payment, auth.CustomerActor(payment.CustomerID))
	})
	if errors.Is(err, ErrAlreadySettled) || errors.Is(err, errSettledConcurrently) {
		result.Duplicate = true
		post = nil
		err = nil
	}
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		o.logg.Info(ctx, "duplicate webhook ignored")
		return result, nil
	}
	o.logg.Info(o.logg.WithField(ctx, "status", result.Status), "payment settled")
	if post != nil {
		post(ctx)
	}
	return result, nil
}

// GetPayment returns a payment with its transaction log.
func (o *Orchestrator) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, err := o.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	payment.History, err = o.repo.Transactions(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transactions")
	}
	return payment, nil
}

// ListPayments pages through a customer's captured and refunded payments.
func (o *Orchestrator) ListPayments(ctx context.Context, customerID uuid.UUID, params pagination.Params) (pagination.Page[models.Payment], error) {
	if customerID == uuid.Nil {
		return pagination.Page[models.Payment]{}, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	return o.repo.ListSettled(ctx, customerID, params)
}

// RefundPayment refunds a captured payment through its gateway, then moves it
// to REFUNDED and lets the purpose handler record the refund. The payment is
// claimed as REFUNDING before the gateway call, so only one refund reaches the
// gateway; a failed gateway call returns it to CAPTURED.
func (o *Orchestrator) RefundPayment(ctx context.Context, paymentID uuid.UUID, reason string, actor auth.Actor) (*models.Payment, error) {
	payment, err := o.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.TransactionStatus != enums.TransactionStatusCaptured {
		return nil, refundConflict(payment.TransactionStatus)
	}
	handler, ok := o.handlers[payment.PaymentType].(RefundHandler)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment type cannot be refunded")
	}
	strategy, err := o.registry.Get(payment.PaymentMethod)
	if err != nil {
		return nil, err
	}
	refunder, ok := strategy.(gateway.Refunder)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway does not support refunds")
	}
	ctx = o.logg.WithFields(ctx, map[string]any{
		"order_code": payment.OrderCode,
		"gateway":    payment.PaymentMethod.Slug(),
		"payment_id": payment.ID.String(),
	})

	if err := o.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := handler.CheckRefund(ctx, tx, payment); err != nil {
			return err
		}
		claimed, err := o.repo.WithTx(tx).Transition(ctx, payment.ID, enums.TransactionStatusCaptured, enums.TransactionStatusRefunding, nil)
		if err != nil {
			return err
		}
		if !claimed {
			return refundConflict(enums.TransactionStatusRefunding)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	refund, err := o.callGatewayRefund(ctx, payment.PaymentMethod, refunder, gateway.RefundSpec{
		OrderCode:   payment.OrderCode,
		ProviderRef: payment.ProviderRef,
		Amount:      payment.Amount,
		Currency:    o.currency,
		Reason:      reason,
		Transaction: []byte(payment.Transaction),
	})
	if err != nil {
		o.releaseRefundClaim(ctx, payment.ID)
		return nil, err
	}

	err = o.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := o.repo.WithTx(tx)
		moved, err := repo.Transition(ctx, payment.ID, enums.TransactionStatusRefunding, enums.TransactionStatusRefunded, refund.Raw)
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment changed during refund")
		}
		if err := repo.AppendTransaction(ctx, payment.ID, enums.TransactionStatusRefunded, refund.Raw); err != nil {
			return err
		}
		payment.TransactionStatus = enums.TransactionStatusRefunded
		if err := handler.Refunded(ctx, tx, payment, actor); err != nil {
			return err
		}
		return o.emitPaymentEvent(ctx, tx, enums.EventPaymentRefunded, payment, actor)
	})
	if err != nil {
		// The gateway already refunded; the payment stays REFUNDING until fixed by hand.
		o.logg.Error(ctx, "refund succeeded at gateway but was not recorded", err)
		return nil, err
	}
	o.logg.Info(ctx, "payment refunded")
	return o.GetPayment(ctx, payment.ID)
}

func refundConflict(status enums.TransactionStatus) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "only captured payments can be refunded").
		WithDetails(map[string]any{"transactionStatus": status})
}

// releaseRefundClaim returns a payment to CAPTURED after its gateway refund
// failed. It runs detached so a canceled request still releases the claim.
func (o *Orchestrator) releaseRefundClaim(ctx context.Context, paymentID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	moved, err := o.repo.Transition(ctx, paymentID, enums.TransactionStatusRefunding, enums.TransactionStatusCaptured, nil)
	switch {
	case err != nil:
		o.logg.Error(ctx, "release refund claim", err)
	case !moved:
		o.logg.Warn(ctx, "refund claim already released")
	}
}

// CancelDraft voids an unpaid payment whose checkout window closed. cancel
// runs in the same transaction for the purpose side. It reports false when the
// payment had already left DRAFT.
func (o *Orchestrator) CancelDraft(ctx context.Context, payment *models.Payment, cancel func(tx *gorm.DB) error) (bool, error) {
	var moved bool
	err := o.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := o.repo.WithTx(tx)
		var err error
		moved, err = repo.Transition(ctx, payment.ID, enums.TransactionStatusDraft, enums.TransactionStatusCanceled, nil)
		if err != nil || !moved {
			return err
		}
		if err := repo.AppendTransaction(ctx, payment.ID, enums.TransactionStatusCanceled, nil); err != nil {
			return err
		}
		if cancel != nil {
			if err := cancel(tx); err != nil {
				return err
			}
		}
		payment.TransactionStatus = enums.TransactionStatusCanceled
		return o.emitPaymentEvent(ctx, tx, enums.EventPaymentFailed, payment, auth.SystemActor())
	})
	if err != nil || !moved {
		return false, err
	}
	if strategy, err := o.registry.Get(payment.PaymentMethod); err == nil {
		o.voidCheckout(ctx, strategy, &gateway.CheckoutSession{ProviderRef: payment.ProviderRef, OrderCode: payment.OrderCode})
	}
	return true, nil
}

func (o *Orchestrator) emitPaymentEvent(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payment *models.Payment, actor auth.Actor) error {
	return o.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         outbox.ActorOf(actor),
		Data: payloads.PaymentStatusEvent{
			PaymentID:     payment.ID,
			OrderCode:     payment.OrderCode,
			CustomerID:    payment.CustomerID,
			PaymentMethod: payment.PaymentMethod,
			PaymentType:   payment.PaymentType,
			Amount:        payment.Amount,
			Status:        payment.TransactionStatus,
		},
	})
}

func (o *Orchestrator) callGateway(ctx context.Context, method enums.PaymentMethod, op string, fn func(context.Context) (*gateway.CheckoutSession, error)) (*gateway.CheckoutSession, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	started := time.Now()
	session, err := fn(callCtx)
	o.metrics.ObserveGatewayCall(method.Slug(), op, time.Since(started))
	if err != nil {
		return nil, asGatewayError(err, op)
	}
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "gateway returned no checkout session")
	}
	return session, nil
}

func (o *Orchestrator) callGatewayRefund(ctx context.Context, method enums.PaymentMethod, refunder gateway.Refunder, spec gateway.RefundSpec) (*gateway.RefundResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	started := time.Now()
	result, err := refunder.Refund(callCtx, spec)
	o.metrics.ObserveGatewayCall(method.Slug(), "refund", time.Since(started))
	if err != nil {
		o.logg.Warn(ctx, "gateway refund failed")
		return nil, asGatewayError(err, "refund")
	}
	if result == nil {
		result = &gateway.RefundResult{}
	}
	return result, nil
}

// voidCheckout cancels an open checkout best-effort. It runs detached from the
// request so a client disconnect does not leave the session open.
func (o *Orchestrator) voidCheckout(ctx context.Context, strategy gateway.Strategy, session *gateway.CheckoutSession) {
	canceler, ok := strategy.(gateway.Canceler)
	if !ok || session == nil || session.ProviderRef == "" {
		return
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := canceler.CancelCheckout(callCtx, session.ProviderRef, "checkout abandoned"); err != nil {
		o.logg.Warn(o.logg.WithField(ctx, "provider_ref", session.ProviderRef), "void checkout failed: "+err.Error())
	}
}

func asGatewayError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "gateway "+op+" timed out")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "gateway "+op+" failed")
}

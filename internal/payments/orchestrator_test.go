package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/internal/gateway/gatewaytest"
	"github.com/furnique/furnique-backend/pkg/auth"
	"github.com/furnique/furnique-backend/pkg/db"
	"github.com/furnique/furnique-backend/pkg/db/dbtest"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/outbox"
	"github.com/furnique/furnique-backend/pkg/pagination"
)

type stubHandler struct {
	settled  int
	err      error
	postRuns int
	refunded int
}

func (h *stubHandler) CheckRefund(context.Context, *gorm.DB, *models.Payment) error { return nil }

func (h *stubHandler) Refunded(context.Context, *gorm.DB, *models.Payment, auth.Actor) error {
	h.refunded++
	return nil
}

func (h *stubHandler) Settle(context.Context, *gorm.DB, *models.Payment, *gateway.Outcome) (PostCommit, error) {
	h.settled++
	if h.err != nil {
		return nil, h.err
	}
	return func(context.Context) { h.postRuns++ }, nil
}

type harness struct {
	client  *db.Client
	orch    *Orchestrator
	fake    *gatewaytest.Fake
	handler *stubHandler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.New(t)
	fake := gatewaytest.New(enums.PaymentMethodMoMo)
	registry, err := gateway.NewRegistry(fake)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	handler := &stubHandler{}
	orch, err := NewOrchestrator(OrchestratorParams{
		Registry:          registry,
		Repo:              NewRepository(client.DB()),
		TransactionRunner: client,
		Outbox:            outbox.NewService(outbox.NewRepository(client.DB()), nil),
		Handlers:          map[enums.PaymentType]PurposeHandler{enums.PaymentTypeCreditPurchase: handler},
		Logger:            logger.Nop(),
		Currency:          "USD",
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return &harness{client: client, orch: orch, fake: fake, handler: handler}
}

func request(code int64) PaymentRequest {
	return PaymentRequest{
		Method:     enums.PaymentMethodMoMo,
		Type:       enums.PaymentTypeCreditPurchase,
		CustomerID: uuid.New(),
		Checkout:   gateway.CheckoutSpec{OrderCode: code, Amount: 50_000, Description: "credits"},
	}
}

func (h *harness) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	if err := h.client.DB().Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestCreatePaymentWritesDraft(t *testing.T) {
	h := newHarness(t)
	var persisted uuid.UUID
	session, err := h.orch.CreatePayment(context.Background(), request(1_000_000_000_000_001), func(_ context.Context, _ *gorm.DB, p *models.Payment) error {
		persisted = p.ID
		return nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.CheckoutURL == "" || session.ProviderRef != "ref-1000000000000001" {
		t.Fatalf("unexpected session %+v", session)
	}
	payment, err := h.orch.GetPayment(context.Background(), persisted)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if payment.TransactionStatus != enums.TransactionStatusDraft || payment.ProviderRef != session.ProviderRef {
		t.Fatalf("unexpected payment %+v", payment)
	}
	if len(payment.History) != 1 || payment.History[0].TransactionStatus != enums.TransactionStatusDraft {
		t.Fatalf("expected the checkout snapshot as first history row, got %+v", payment.History)
	}
}

func TestCreatePaymentGatewayFailureWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.fake.CreateErr = errors.New("connection reset")
	called := false
	_, err := h.orch.CreatePayment(context.Background(), request(1_000_000_000_000_002), func(context.Context, *gorm.DB, *models.Payment) error {
		called = true
		return nil
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeGateway) {
		t.Fatalf("expected GATEWAY_ERROR, got %v", err)
	}
	if called || h.count(t, &models.Payment{}) != 0 {
		t.Fatal("gateway failure must not persist anything")
	}
}

func TestCreatePaymentPersistFailureRollsBackAndVoids(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.CreatePayment(context.Background(), request(1_000_000_000_000_003), func(context.Context, *gorm.DB, *models.Payment) error {
		return pkgerrors.New(pkgerrors.CodeOrderItemsInvalid, "gone")
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeOrderItemsInvalid) {
		t.Fatalf("expected persist error to surface, got %v", err)
	}
	if h.count(t, &models.Payment{}) != 0 || h.count(t, &models.PaymentTransaction{}) != 0 {
		t.Fatal("payment rows should roll back")
	}
	if got := h.fake.Canceled(); len(got) != 1 || got[0] != "ref-1000000000000003" {
		t.Fatalf("expected checkout to be voided, got %v", got)
	}
}

func TestCreatePaymentOrderCodeCollision(t *testing.T) {
	h := newHarness(t)
	if _, err := h.orch.CreatePayment(context.Background(), request(1_000_000_000_000_004), nil); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := h.orch.CreatePayment(context.Background(), request(1_000_000_000_000_004), nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) || !errors.Is(err, ErrOrderCodeTaken) {
		t.Fatalf("expected order code conflict, got %v", err)
	}
}

func TestCreatePaymentValidation(t *testing.T) {
	h := newHarness(t)
	bad := request(0)
	if _, err := h.orch.CreatePayment(context.Background(), bad, nil); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	unknown := request(1_000_000_000_000_005)
	unknown.Method = enums.PaymentMethodStripe
	if _, err := h.orch.CreatePayment(context.Background(), unknown, nil); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected unknown gateway to be rejected, got %v", err)
	}
	if len(h.fake.Created()) != 0 {
		t.Fatal("invalid requests must not reach the gateway")
	}
}

func TestProcessWebhookSettlesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.orch.CreatePayment(ctx, request(1_000_000_000_000_006), nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	payload := gatewaytest.Signed(gatewaytest.Callback{OrderCode: 1_000_000_000_000_006, Amount: 50_000, Success: true})

	res, err := h.orch.ProcessWebhook(ctx, enums.PaymentMethodMoMo, payload)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Status != enums.TransactionStatusCaptured || res.Duplicate {
		t.Fatalf("unexpected result %+v", res)
	}
	res, err = h.orch.ProcessWebhook(ctx, enums.PaymentMethodMoMo, payload)
	if err != nil || !res.Duplicate {
		t.Fatalf("replay should be a duplicate, got %+v err=%v", res, err)
	}
	if h.handler.settled != 1 || h.handler.postRuns != 1 {
		t.Fatalf("handler ran %d times, post ran %d times", h.handler.settled, h.handler.postRuns)
	}
	if h.count(t, &models.PaymentTransaction{}) != 2 {
		t.Fatal("expected draft and capture payloads only")
	}
}

func TestProcessWebhookRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.orch.CreatePayment(ctx, request(1_000_000_000_000_007), nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name    string
		method  enums.PaymentMethod
		payload gateway.WebhookPayload
		code    pkgerrors.Code
	}{
		{"forged", enums.PaymentMethodMoMo, gatewaytest.Unsigned(gatewaytest.Callback{OrderCode: 1_000_000_000_000_007, Success: true}), pkgerrors.CodeSignatureInvalid},
		{"unknown payment", enums.PaymentMethodMoMo, gatewaytest.Signed(gatewaytest.Callback{OrderCode: 42, Success: true}), pkgerrors.CodePaymentNotFound},
		{"amount mismatch", enums.PaymentMethodMoMo, gatewaytest.Signed(gatewaytest.Callback{OrderCode: 1_000_000_000_000_007, Amount: 1, Success: true}), pkgerrors.CodeValidation},
		{"disabled gateway", enums.PaymentMethodSquare, gatewaytest.Signed(gatewaytest.Callback{OrderCode: 1_000_000_000_000_007, Success: true}), pkgerrors.CodeValidation},
	}
	for _, tt := range tests {
		if _, err := h.orch.ProcessWebhook(ctx, tt.method, tt.payload); !pkgerrors.HasCode(err, tt.code) {
			t.Fatalf("%s: expected %s, got %v", tt.name, tt.code, err)
		}
	}
	if h.handler.settled != 0 {
		t.Fatal("rejected callbacks must not reach the handler")
	}

	res, err := h.orch.ProcessWebhook(ctx, enums.PaymentMethodMoMo, gatewaytest.Signed(gatewaytest.Callback{OrderCode: 1_000_000_000_000_007, Ignored: true}))
	if err != nil || !res.Ignored {
		t.Fatalf("expected ignored callback, got %+v err=%v", res, err)
	}
}

func TestProcessWebhookHandlerErrorRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.orch.CreatePayment(ctx, request(1_000_000_000_000_008), nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	h.handler.err = pkgerrors.New(pkgerrors.CodeOrderItemsInvalid, "stock gone")
	payload := gatewaytest.Signed(gatewaytest.Callback{OrderCode: 1_000_000_000_000_008, Amount: 50_000, Success: true})
	if _, err := h.orch.ProcessWebhook(ctx, enums.PaymentMethodMoMo, payload); !pkgerrors.HasCode(err, pkgerrors.CodeOrderItemsInvalid) {
		t.Fatalf("expected handler error, got %v", err)
	}
	var p models.Payment
	h.client.DB().First(&p, "order_code = ?", 1_000_000_000_000_008)
	if p.TransactionStatus != enums.TransactionStatusDraft {
		t.Fatalf("payment should stay DRAFT, got %s", p.TransactionStatus)
	}

	h.handler.err = ErrAlreadySettled
	res, err := h.orch.ProcessWebhook(ctx, enums.PaymentMethodMoMo, payload)
	if err != nil || !res.Duplicate {
		t.Fatalf("already-settled purpose should read as duplicate, got %+v err=%v", res, err)
	}
}

func TestCancelDraftAndListPayments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := request(1_000_000_000_000_009)
	if _, err := h.orch.CreatePayment(ctx, req, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	stale, err := h.orch.repo.StaleDrafts(ctx, time.Now().Add(time.Minute), 10)
	if err != nil || len(stale) != 1 {
		t.Fatalf("expected one stale draft, got %d err=%v", len(stale), err)
	}

	purposeCalled := false
	moved, err := h.orch.CancelDraft(ctx, &stale[0], func(*gorm.DB) error {
		purposeCalled = true
		return nil
	})
	if err != nil || !moved || !purposeCalled {
		t.Fatalf("cancel draft: moved=%v called=%v err=%v", moved, purposeCalled, err)
	}
	if moved, _ := h.orch.CancelDraft(ctx, &stale[0], nil); moved {
		t.Fatal("second cancel must be a no-op")
	}
	if len(h.fake.Canceled()) != 1 {
		t.Fatalf("expected the checkout to be voided once, got %v", h.fake.Canceled())
	}

	page, err := h.orch.ListPayments(ctx, req.CustomerID, pagination.Params{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatal("canceled drafts are not listed")
	}
}

func TestReconcileDraftSettlesPaidCheckout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	paidReq, openReq := request(1_000_000_000_000_010), request(1_000_000_000_000_011)
	for _, req := range []PaymentRequest{paidReq, openReq} {
		if _, err := h.orch.CreatePayment(ctx, req, nil); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	h.fake.MarkPaid("ref-1000000000000010", 50_000)

	// The callback for the paid checkout raced its draft and was never applied.
	early := gatewaytest.Signed(gatewaytest.Callback{OrderCode: 1_000_000_000_000_099, Amount: 50_000, Success: true})
	if _, err := h.orch.ProcessWebhook(ctx, enums.PaymentMethodMoMo, early); !pkgerrors.HasCode(err, pkgerrors.CodePaymentNotFound) {
		t.Fatalf("expected PAYMENT_NOT_FOUND before the draft exists, got %v", err)
	}

	stale, err := h.orch.repo.StaleDrafts(ctx, time.Now().Add(time.Minute), 10)
	if err != nil || len(stale) != 2 {
		t.Fatalf("expected two stale drafts, got %d err=%v", len(stale), err)
	}
	for i := range stale {
		p := &stale[i]
		settled, err := h.orch.ReconcileDraft(ctx, p)
		if err != nil {
			t.Fatalf("reconcile %d: %v", p.OrderCode, err)
		}
		if want := p.OrderCode == paidReq.Checkout.OrderCode; settled != want {
			t.Fatalf("order %d: settled=%v, want %v", p.OrderCode, settled, want)
		}
	}
	if len(h.fake.Fetched()) != 2 {
		t.Fatalf("every draft is looked up at the gateway, got %v", h.fake.Fetched())
	}

	var p models.Payment
	h.client.DB().First(&p, "order_code = ?", paidReq.Checkout.OrderCode)
	if p.TransactionStatus != enums.TransactionStatusCaptured {
		t.Fatalf("paid checkout should be captured, got %s", p.TransactionStatus)
	}
	if h.handler.settled != 1 || h.handler.postRuns != 1 {
		t.Fatalf("handler ran %d times, post ran %d times", h.handler.settled, h.handler.postRuns)
	}

	// A late webhook for the reconciled payment is a duplicate.
	late := gatewaytest.Signed(gatewaytest.Callback{OrderCode: paidReq.Checkout.OrderCode, Amount: 50_000, Success: true})
	res, err := h.orch.ProcessWebhook(ctx, enums.PaymentMethodMoMo, late)
	if err != nil || !res.Duplicate {
		t.Fatalf("late webhook should be a duplicate, got %+v err=%v", res, err)
	}
}

func TestReconcileDraftSurfacesGatewayFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.orch.CreatePayment(ctx, request(1_000_000_000_000_012), nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	h.fake.FetchErr = errors.New("connection reset")
	stale, err := h.orch.repo.StaleDrafts(ctx, time.Now().Add(time.Minute), 10)
	if err != nil || len(stale) != 1 {
		t.Fatalf("expected one stale draft, got %d err=%v", len(stale), err)
	}
	if settled, err := h.orch.ReconcileDraft(ctx, &stale[0]); settled || !pkgerrors.HasCode(err, pkgerrors.CodeGateway) {
		t.Fatalf("expected GATEWAY_ERROR, got settled=%v err=%v", settled, err)
	}
}

func (h *harness) captured(t *testing.T, code int64) *models.Payment {
	t.Helper()
	ctx := context.Background()
	if _, err := h.orch.CreatePayment(ctx, request(code), nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	payload := gatewaytest.Signed(gatewaytest.Callback{OrderCode: code, Amount: 50_000, Success: true})
	if _, err := h.orch.ProcessWebhook(ctx, enums.PaymentMethodMoMo, payload); err != nil {
		t.Fatalf("capture: %v", err)
	}
	var p models.Payment
	if err := h.client.DB().First(&p, "order_code = ?", code).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	return &p
}

func TestRefundPaymentReachesGatewayOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payment := h.captured(t, 1_000_000_000_000_013)
	staff := auth.Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin}

	// A second refund arrives while the first is still at the gateway.
	var concurrentErr error
	h.fake.BeforeRefund = func() {
		h.fake.BeforeRefund = nil
		_, concurrentErr = h.orch.RefundPayment(ctx, payment.ID, "double click", staff)
	}
	refunded, err := h.orch.RefundPayment(ctx, payment.ID, "damaged", staff)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !pkgerrors.HasCode(concurrentErr, pkgerrors.CodeConflict) {
		t.Fatalf("concurrent refund should conflict, got %v", concurrentErr)
	}
	if got := h.fake.Refunds(); len(got) != 1 {
		t.Fatalf("expected one gateway refund, got %d", len(got))
	}
	if refunded.TransactionStatus != enums.TransactionStatusRefunded || h.handler.refunded != 1 {
		t.Fatalf("unexpected refund result status=%s handler=%d", refunded.TransactionStatus, h.handler.refunded)
	}
	if spec := h.fake.Refunds()[0]; spec.Currency != "USD" || spec.Amount != 50_000 {
		t.Fatalf("refund must use the checkout currency and amount, got %+v", spec)
	}
}

func TestRefundPaymentGatewayFailureReleasesClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payment := h.captured(t, 1_000_000_000_000_014)
	staff := auth.Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin}

	h.fake.RefundErr = errors.New("connection reset")
	if _, err := h.orch.RefundPayment(ctx, payment.ID, "damaged", staff); !pkgerrors.HasCode(err, pkgerrors.CodeGateway) {
		t.Fatalf("expected GATEWAY_ERROR, got %v", err)
	}
	reloaded, err := h.orch.GetPayment(ctx, payment.ID)
	if err != nil || reloaded.TransactionStatus != enums.TransactionStatusCaptured {
		t.Fatalf("failed refund must leave the payment CAPTURED, got %+v err=%v", reloaded, err)
	}

	h.fake.RefundErr = nil
	if _, err := h.orch.RefundPayment(ctx, payment.ID, "damaged", staff); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

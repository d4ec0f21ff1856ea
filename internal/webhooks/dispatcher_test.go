package webhooks

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/internal/gateway/gatewaytest"
	"github.com/furnique/furnique-backend/internal/payments"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
)

type stubProcessor struct {
	mu     sync.Mutex
	calls  int
	result *payments.WebhookResult
	err    error
}

func (s *stubProcessor) ProcessWebhook(context.Context, enums.PaymentMethod, gateway.WebhookPayload) (*payments.WebhookResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &payments.WebhookResult{Status: enums.TransactionStatusCaptured}, nil
}

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMemoryStore() *memoryStore { return &memoryStore{keys: map[string]bool{}} }

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func (m *memoryStore) WebhookDeliveryKey(gw, id string) string { return gw + ":" + id }

func newDispatcher(t *testing.T, proc *stubProcessor, store *memoryStore, strategies ...gateway.Strategy) *Dispatcher {
	t.Helper()
	registry, err := gateway.NewRegistry(strategies...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	var guard *DeliveryGuard
	if store != nil {
		if guard, err = NewDeliveryGuard(store, time.Hour); err != nil {
			t.Fatalf("guard: %v", err)
		}
	}
	d, err := NewDispatcher(DispatcherParams{Registry: registry, Processor: proc, Guard: guard, Logger: logger.Nop()})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	return d
}

func momoFake() *gatewaytest.Fake {
	f := gatewaytest.New(enums.PaymentMethodMoMo)
	f.AckValue = &gateway.Ack{Status: http.StatusNoContent}
	return f
}

func TestDispatchAcksPerProvider(t *testing.T) {
	proc := &stubProcessor{}
	d := newDispatcher(t, proc, nil, momoFake(), gatewaytest.New(enums.PaymentMethodPayOS))
	cb := gatewaytest.Callback{OrderCode: 1000000000000001, Amount: 100, Success: true}

	ack, err := d.Dispatch(context.Background(), enums.PaymentMethodMoMo, gatewaytest.Signed(cb))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if ack.Status != http.StatusNoContent || len(ack.Body) != 0 {
		t.Fatalf("momo expects 204 with empty body, got %d %q", ack.Status, ack.Body)
	}
	ack, err = d.Dispatch(context.Background(), enums.PaymentMethodPayOS, gatewaytest.Signed(cb))
	if err != nil || ack.Status != http.StatusOK {
		t.Fatalf("payos expects 200, got %d err=%v", ack.Status, err)
	}
}

func TestDispatchRejectsForgedSignatureWithoutProcessing(t *testing.T) {
	proc := &stubProcessor{}
	d := newDispatcher(t, proc, newMemoryStore(), momoFake())
	ack, err := d.Dispatch(context.Background(), enums.PaymentMethodMoMo, gatewaytest.Unsigned(gatewaytest.Callback{OrderCode: 1}))
	if err != nil {
		t.Fatalf("forged callbacks are acked, got %v", err)
	}
	if ack.Status != http.StatusNoContent {
		t.Fatalf("unexpected ack %d", ack.Status)
	}
	if proc.calls != 0 {
		t.Fatal("forged callback reached the orchestrator")
	}
}

func TestDispatchDropsReplayedDelivery(t *testing.T) {
	proc := &stubProcessor{}
	d := newDispatcher(t, proc, newMemoryStore(), momoFake())
	payload := gatewaytest.Signed(gatewaytest.Callback{OrderCode: 7, Success: true, DeliveryID: "trans-7"})

	for i := 0; i < 3; i++ {
		if _, err := d.Dispatch(context.Background(), enums.PaymentMethodMoMo, payload); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if proc.calls != 1 {
		t.Fatalf("expected one processed delivery, got %d", proc.calls)
	}
}

func TestDispatchWithoutDeliveryIDUsesBody(t *testing.T) {
	proc := &stubProcessor{}
	d := newDispatcher(t, proc, newMemoryStore(), momoFake())
	first := gatewaytest.Signed(gatewaytest.Callback{OrderCode: 8, Success: true})
	other := gatewaytest.Signed(gatewaytest.Callback{OrderCode: 9, Success: true})
	for _, p := range []gateway.WebhookPayload{first, first, other} {
		if _, err := d.Dispatch(context.Background(), enums.PaymentMethodMoMo, p); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}
	if proc.calls != 2 {
		t.Fatalf("expected two distinct deliveries, got %d", proc.calls)
	}
}

func TestDispatchRetryableFailureReleasesGuard(t *testing.T) {
	proc := &stubProcessor{err: pkgerrors.New(pkgerrors.CodeTransactionAbort, "serialization failure")}
	store := newMemoryStore()
	d := newDispatcher(t, proc, store, momoFake())
	payload := gatewaytest.Signed(gatewaytest.Callback{OrderCode: 5, Success: true, DeliveryID: "trans-5"})

	if _, err := d.Dispatch(context.Background(), enums.PaymentMethodMoMo, payload); !pkgerrors.HasCode(err, pkgerrors.CodeTransactionAbort) {
		t.Fatalf("expected TRANSACTION_ABORT to surface, got %v", err)
	}
	proc.err = nil
	if _, err := d.Dispatch(context.Background(), enums.PaymentMethodMoMo, payload); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if proc.calls != 2 {
		t.Fatalf("gateway retry should be processed, calls=%d", proc.calls)
	}
}

func TestDispatchCallbackAheadOfDraftIsRedelivered(t *testing.T) {
	proc := &stubProcessor{err: pkgerrors.New(pkgerrors.CodePaymentNotFound, "payment not found")}
	store := newMemoryStore()
	d := newDispatcher(t, proc, store, momoFake())
	payload := gatewaytest.Signed(gatewaytest.Callback{OrderCode: 6, Success: true, DeliveryID: "trans-6"})

	ack, err := d.Dispatch(context.Background(), enums.PaymentMethodMoMo, payload)
	if !pkgerrors.IsRetryable(err) || pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).HTTPStatus < 500 {
		t.Fatalf("early callback must fail with a retryable 5xx, got ack=%d err=%v", ack.Status, err)
	}
	if len(store.keys) != 0 {
		t.Fatalf("delivery guard must be released, still holds %v", store.keys)
	}

	proc.err = nil
	if _, err := d.Dispatch(context.Background(), enums.PaymentMethodMoMo, payload); err != nil {
		t.Fatalf("redelivery after commit: %v", err)
	}
	if proc.calls != 2 {
		t.Fatalf("redelivery must reach the orchestrator, calls=%d", proc.calls)
	}
}

func TestDispatchAcksBusinessErrors(t *testing.T) {
	for _, code := range []pkgerrors.Code{pkgerrors.CodeValidation, pkgerrors.CodeOrderItemsInvalid} {
		proc := &stubProcessor{err: pkgerrors.New(code, "nope")}
		d := newDispatcher(t, proc, nil, momoFake())
		ack, err := d.Dispatch(context.Background(), enums.PaymentMethodMoMo, gatewaytest.Signed(gatewaytest.Callback{OrderCode: 3}))
		if err != nil {
			t.Fatalf("%s: expected ack, got %v", code, err)
		}
		if ack.Status != http.StatusNoContent {
			t.Fatalf("%s: unexpected ack %d", code, ack.Status)
		}
	}
}

func TestDispatchGuardOutageFallsThrough(t *testing.T) {
	proc := &stubProcessor{}
	store := newMemoryStore()
	store.err = errors.New("redis down")
	d := newDispatcher(t, proc, store, momoFake())
	if _, err := d.Dispatch(context.Background(), enums.PaymentMethodMoMo, gatewaytest.Signed(gatewaytest.Callback{OrderCode: 4})); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if proc.calls != 1 {
		t.Fatal("redis outage must not block processing")
	}
}

func TestDispatchUnknownGateway(t *testing.T) {
	d := newDispatcher(t, &stubProcessor{}, nil, momoFake())
	if _, err := d.Dispatch(context.Background(), enums.PaymentMethodStripe, gatewaytest.Signed(gatewaytest.Callback{})); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

package enums

import "slices"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregatePayment
}

// OutboxEventType names a domain event written through the outbox. The
// publisher routes each type to a topic.
type OutboxEventType string

const (
	EventOrderCreated      OutboxEventType = "order_created"
	EventOrderPaid         OutboxEventType = "order_paid"
	EventOrderStateChanged OutboxEventType = "order_state_changed"
	EventOrderCanceled     OutboxEventType = "order_canceled"
	EventOrderExpired      OutboxEventType = "order_expired"
	EventPaymentSettled    OutboxEventType = "payment_settled"
	EventPaymentFailed     OutboxEventType = "payment_failed"
	EventPaymentRefunded   OutboxEventType = "payment_refunded"
	EventCreditsGranted    OutboxEventType = "credits_granted"
)

var outboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderStateChanged,
	EventOrderCanceled,
	EventOrderExpired,
	EventPaymentSettled,
	EventPaymentFailed,
	EventPaymentRefunded,
	EventCreditsGranted,
}

func (e OutboxEventType) IsValid() bool { return slices.Contains(outboxEventTypes, e) }

// OutboxDLQErrorReason explains why a row left the outbox for the DLQ.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}

// OutboxEventTypes lists every event type the outbox can carry.
func OutboxEventTypes() []OutboxEventType { return slices.Clone(outboxEventTypes) }

package enums

import "slices"

// OrderStatus is the fulfillment side of an order's state.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusDelivering OrderStatus = "DELIVERING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCanceled   OrderStatus = "CANCELED"
	OrderStatusDeleted    OrderStatus = "DELETED"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusDelivering,
	OrderStatusCompleted,
	OrderStatusCanceled,
	OrderStatusDeleted,
}

func (s OrderStatus) IsValid() bool { return slices.Contains(orderStatuses, s) }

// ParseOrderStatus accepts a status filter from a query string.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse("order status", orderStatuses, value)
}

// TransactionStatus is the money side of an order or payment.
type TransactionStatus string

const (
	TransactionStatusDraft    TransactionStatus = "DRAFT"
	TransactionStatusCaptured TransactionStatus = "CAPTURED"
	TransactionStatusError    TransactionStatus = "ERROR"
	TransactionStatusCanceled TransactionStatus = "CANCELED"
	TransactionStatusRefunded TransactionStatus = "REFUNDED"
	// TransactionStatusRefunding holds a payment while its gateway refund is in flight.
	TransactionStatusRefunding TransactionStatus = "REFUNDING"
)

func (s TransactionStatus) IsValid() bool {
	return slices.Contains([]TransactionStatus{
		TransactionStatusDraft,
		TransactionStatusCaptured,
		TransactionStatusError,
		TransactionStatusCanceled,
		TransactionStatusRefunding,
		TransactionStatusRefunded,
	}, s)
}

// IsTerminal reports whether no further gateway outcome can change the status.
func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusDraft
}

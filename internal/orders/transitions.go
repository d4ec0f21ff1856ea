package orders

import (
	"time"

	"github.com/furnique/furnique-backend/pkg/enums"
)

// Operation names a fulfillment transition.
type Operation string

const (
	OpConfirm        Operation = "confirm"
	OpAssignDelivery Operation = "assign_delivery"
	OpDeliver        Operation = "deliver"
	OpComplete       Operation = "complete"
	OpCancel         Operation = "cancel"
)

// transition is one row of the lifecycle table. A nil Target leaves
// order_status unchanged.
type transition struct {
	Guard   Guard
	Target  *enums.OrderStatus
	TxnTo   enums.TransactionStatus
	updates func(now time.Time) map[string]any
}

func statusPtr(s enums.OrderStatus) *enums.OrderStatus { return &s }

var transitions = map[Operation]transition{
	OpConfirm: {
		Guard:  Guard{OrderStatuses: []enums.OrderStatus{enums.OrderStatusPending}, TransactionStatus: enums.TransactionStatusCaptured},
		Target: statusPtr(enums.OrderStatusConfirmed),
	},
	OpAssignDelivery: {
		Guard: Guard{OrderStatuses: []enums.OrderStatus{enums.OrderStatusConfirmed}, TransactionStatus: enums.TransactionStatusCaptured},
		updates: func(time.Time) map[string]any {
			return map[string]any{"is_delivery_assigned": true}
		},
	},
	OpDeliver: {
		Guard:  Guard{OrderStatuses: []enums.OrderStatus{enums.OrderStatusConfirmed}, TransactionStatus: enums.TransactionStatusCaptured},
		Target: statusPtr(enums.OrderStatusDelivering),
		updates: func(now time.Time) map[string]any {
			return map[string]any{"delivery_date": now}
		},
	},
	OpComplete: {
		Guard:  Guard{OrderStatuses: []enums.OrderStatus{enums.OrderStatusDelivering}, TransactionStatus: enums.TransactionStatusCaptured},
		Target: statusPtr(enums.OrderStatusCompleted),
		updates: func(now time.Time) map[string]any {
			return map[string]any{"complete_date": now}
		},
	},
	OpCancel: {
		Guard:  Guard{OrderStatuses: []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusConfirmed}, TransactionStatus: enums.TransactionStatusCaptured},
		Target: statusPtr(enums.OrderStatusCanceled),
		TxnTo:  enums.TransactionStatusCanceled,
	},
}

// apply returns the column updates for t plus the order's resulting state.
func (t transition) apply(current enums.OrderStatus, now time.Time) (map[string]any, enums.OrderStatus, enums.TransactionStatus) {
	updates := map[string]any{"updated_at": now}
	if t.updates != nil {
		for k, v := range t.updates(now) {
			updates[k] = v
		}
	}
	to := current
	if t.Target != nil {
		to = *t.Target
		updates["order_status"] = to
	}
	txn := t.Guard.TransactionStatus
	if t.TxnTo != "" {
		txn = t.TxnTo
		updates["transaction_status"] = txn
	}
	return updates, to, txn
}

package enums

import "slices"

// NotificationType names the customer-facing message a notification renders.
type NotificationType string

const (
	NotificationOrderConfirmed NotificationType = "order_confirmed"
	NotificationOrderCanceled  NotificationType = "order_canceled"
	NotificationCreditsGranted NotificationType = "credits_granted"
)

func (n NotificationType) IsValid() bool {
	return slices.Contains([]NotificationType{
		NotificationOrderConfirmed,
		NotificationOrderCanceled,
		NotificationCreditsGranted,
	}, n)
}

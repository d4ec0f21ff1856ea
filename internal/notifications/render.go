package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/furnique/furnique-backend/pkg/enums"
	"github.com/furnique/furnique-backend/pkg/logger"
)

// Rendered is a notification ready for delivery.
type Rendered struct {
	ID      string
	To      string
	Subject string
	Body    string
}

// Sender delivers rendered notifications.
type Sender interface {
	Send(ctx context.Context, msg Rendered) error
}

// LogSender writes notifications to the structured log.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, msg Rendered) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"notification_id": msg.ID,
		"to":              msg.To,
		"subject":         msg.Subject,
		"body":            msg.Body,
	}), "notification sent")
	return nil
}

// Render builds the customer-facing subject and body.
func Render(msg Message) Rendered {
	out := Rendered{ID: msg.ID, To: msg.Email}
	var body strings.Builder
	switch msg.Type {
	case enums.NotificationOrderConfirmed:
		out.Subject = fmt.Sprintf("[Furnique] Đã nhận đơn hàng #%d", msg.OrderCode)
		writeLines(&body, msg.Items)
		fmt.Fprintf(&body, "Tổng cộng: %s\n", FormatAmount(msg.TotalAmount))
	case enums.NotificationOrderCanceled:
		out.Subject = fmt.Sprintf("[Furnique] Đơn hàng #%d đã bị hủy", msg.OrderCode)
		writeLines(&body, msg.Items)
		if msg.Reason != "" {
			fmt.Fprintf(&body, "Lý do: %s\n", msg.Reason)
		}
	case enums.NotificationCreditsGranted:
		out.Subject = "[Furnique] Nạp credits thành công"
		fmt.Fprintf(&body, "Gói %s: +%d credits (%s)\n", msg.Plan, msg.Credits, FormatAmount(msg.TotalAmount))
	default:
		out.Subject = "[Furnique] " + string(msg.Type)
	}
	out.Body = body.String()
	return out
}

func writeLines(b *strings.Builder, items []Line) {
	for _, item := range items {
		fmt.Fprintf(b, "%s (%s) x%d: %s\n", item.Name, item.SKU, item.Quantity, FormatAmount(item.Price*item.Quantity))
	}
}

// FormatAmount renders a VND amount with "." thousands separators, e.g. 1.250.000 ₫.
func FormatAmount(amount int64) string {
	d := decimal.NewFromInt(amount)
	digits := d.Abs().StringFixed(0)
	var grouped strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + grouped.String() + " ₫"
}

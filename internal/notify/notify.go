// Package notify dispatches fire-and-forget notifications on state
// transitions. The log notifier stands in for the external email/SMS
// dispatcher, which is not part of this core.
package notify

import (
	"log/slog"

	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) OrderEvent(order *models.Order, event string) {
	n.log.Info("notify order event", "order", order.Number, "user", order.UserID, "event", event)
}

func (n *LogNotifier) ReturnEvent(ret *models.Return, event string) {
	n.log.Info("notify return event", "return_id", ret.ID, "order", ret.OrderNumber, "event", event)
}

func (n *LogNotifier) PayoutEvent(payout *models.Payout, event string) {
	n.log.Info("notify payout event", "payout_id", payout.ID, "owner", payout.Owner.ID, "event", event)
}

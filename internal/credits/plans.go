// Package credits sells prepaid credit bundles through the payment orchestrator.
package credits

import (
	"github.com/furnique/furnique-backend/pkg/enums"
)

// Plan is a purchasable bundle. Amount is in VND.
type Plan struct {
	Name        enums.CreditPlan `json:"name"`
	Amount      int64            `json:"amount"`
	Credits     int64            `json:"credits"`
	Description string           `json:"description"`
}

var plans = []Plan{
	{Name: enums.CreditPlanPersonal, Amount: 50_000, Credits: 100, Description: "Furnique AI personal"},
	{Name: enums.CreditPlanPremium, Amount: 100_000, Credits: 250, Description: "Furnique AI premium"},
}

// Plans lists the bundles on sale.
func Plans() []Plan {
	return append([]Plan(nil), plans...)
}

// PlanFor resolves a plan by name.
func PlanFor(name enums.CreditPlan) (Plan, bool) {
	for _, p := range plans {
		if p.Name == name {
			return p, true
		}
	}
	return Plan{}, false
}

// PlanForAmount resolves the plan a payment of amount bought.
func PlanForAmount(amount int64) (Plan, bool) {
	for _, p := range plans {
		if p.Amount == amount {
			return p, true
		}
	}
	return Plan{}, false
}

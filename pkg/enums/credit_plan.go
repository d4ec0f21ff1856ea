package enums

import "slices"

// CreditPlan is a prepaid credit bundle customers can purchase.
type CreditPlan string

const (
	CreditPlanPersonal CreditPlan = "PERSONAL"
	CreditPlanPremium  CreditPlan = "PREMIUM"
)

func (p CreditPlan) IsValid() bool {
	return slices.Contains([]CreditPlan{CreditPlanPersonal, CreditPlanPremium}, p)
}

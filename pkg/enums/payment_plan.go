package enums

import "fmt"

// PaymentPlan selects how much of the quote total is due at checkout.
type PaymentPlan string

const (
	// PaymentPlanFull settles the whole total up front.
	PaymentPlanFull PaymentPlan = "full"
	// PaymentPlanAdvance settles half (rounded up) up front; the remainder is
	// collected later through the remaining-balance flow.
	PaymentPlanAdvance PaymentPlan = "advance"
)

var validPaymentPlans = []PaymentPlan{
	PaymentPlanFull,
	PaymentPlanAdvance,
}

// String implements fmt.Stringer.
func (p PaymentPlan) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentPlan.
func (p PaymentPlan) IsValid() bool {
	for _, candidate := range validPaymentPlans {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentPlan converts raw input into a PaymentPlan.
func ParsePaymentPlan(value string) (PaymentPlan, error) {
	for _, candidate := range validPaymentPlans {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment plan %q", value)
}

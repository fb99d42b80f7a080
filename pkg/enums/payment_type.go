package enums

import "fmt"

// PaymentType tags a payment row with the money movement it records.
type PaymentType string

const (
	PaymentTypeFull      PaymentType = "full"
	PaymentTypeAdvance   PaymentType = "advance"
	PaymentTypeRemaining PaymentType = "remaining"
)

var validPaymentTypes = []PaymentType{
	PaymentTypeFull,
	PaymentTypeAdvance,
	PaymentTypeRemaining,
}

// String implements fmt.Stringer.
func (p PaymentType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentType.
func (p PaymentType) IsValid() bool {
	for _, candidate := range validPaymentTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentType converts raw input into a PaymentType.
func ParsePaymentType(value string) (PaymentType, error) {
	for _, candidate := range validPaymentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment type %q", value)
}

package enums

import "slices"

// CartStatus soft-deactivates carts; carts are never hard deleted.
type CartStatus string

const (
	CartStatusActive   CartStatus = "ACTIVE"
	CartStatusInactive CartStatus = "INACTIVE"
)

func (c CartStatus) IsValid() bool {
	return slices.Contains([]CartStatus{CartStatusActive, CartStatusInactive}, c)
}

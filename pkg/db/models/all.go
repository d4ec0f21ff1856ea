package models

// All lists every persisted model; dev sqlite databases and tests migrate from it.
func All() []any {
	return []any{
		&Customer{},
		&Product{},
		&Variant{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&OrderHistory{},
		&Payment{},
		&PaymentTransaction{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}

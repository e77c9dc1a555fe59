package domain

import "fmt"

// Balance tracks free and locked funds for one asset. Total is always
// free + locked; Free only decreases when funds are reserved for an order,
// and only increases when an order fills or is canceled.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// Total is free + locked.
func (b Balance) Total() float64 {
	return b.Free + b.Locked
}

// Reserve moves amount from free into locked. Returns ErrInsufficientBalance
// without mutating when free funds are short.
func (b *Balance) Reserve(amount float64) error {
	if amount > b.Free {
		return fmt.Errorf("%w: %s free %.8f < required %.8f", ErrInsufficientBalance, b.Asset, b.Free, amount)
	}
	b.Free -= amount
	b.Locked += amount
	return nil
}

// Release returns locked funds to free after a cancellation.
func (b *Balance) Release(amount float64) {
	if amount > b.Locked {
		amount = b.Locked
	}
	b.Locked -= amount
	b.Free += amount
}

// Consume removes filled funds from the locked bucket. Unreserved orders
// consume from free instead, so total stays free + locked either way.
func (b *Balance) Consume(amount float64, reserved bool) {
	if !reserved {
		b.Free -= amount
		return
	}
	if amount > b.Locked {
		// Settle the remainder from free; a short reservation was already
		// logged at placement time.
		b.Free -= amount - b.Locked
		b.Locked = 0
		return
	}
	b.Locked -= amount
}

// Deposit credits free funds from a fill conversion.
func (b *Balance) Deposit(amount float64) {
	b.Free += amount
}

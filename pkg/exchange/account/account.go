// Package account provides the Account aggregate with its embedded Ledger
// (money balance + per-object holdings) and the Manager that serializes all
// ledger mutations against the record store.
package account

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FabienLariviere/trading-simulation/pkg/exchange"
)

// Account is a user identity owning exactly one Ledger. The pair is created
// together and never reassigned.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt int64     `json:"createdAt"` // Unix milliseconds
	Ledger    *Ledger   `json:"ledger"`
}

// Ledger holds a non-negative money balance and non-negative per-object
// holdings. It is mutated exclusively through its Credit*/Debit* primitives;
// higher components never touch the fields directly.
type Ledger struct {
	Money    decimal.Decimal     `json:"money"`
	Holdings map[uuid.UUID]int64 `json:"holdings"`
}

// New creates an account with an empty ledger.
func New(name string, now time.Time) *Account {
	return &Account{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: now.UnixMilli(),
		Ledger:    NewLedger(),
	}
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		Money:    decimal.Zero,
		Holdings: make(map[uuid.UUID]int64),
	}
}

// CreditMoney adds amount (> 0) to the money balance.
func (l *Ledger) CreditMoney(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: credit amount must be positive, got %s", exchange.ErrInvalidParameters, amount)
	}
	l.Money = l.Money.Add(amount)
	return nil
}

// DebitMoney removes amount (> 0) from the money balance. Fails without
// mutating if the balance would go negative.
func (l *Ledger) DebitMoney(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: debit amount must be positive, got %s", exchange.ErrInvalidParameters, amount)
	}
	if l.Money.LessThan(amount) {
		return fmt.Errorf("%w: have %s, need %s", exchange.ErrInsufficientFunds, l.Money, amount)
	}
	l.Money = l.Money.Sub(amount)
	return nil
}

// CanDebitMoney reports whether a DebitMoney(amount) would succeed.
func (l *Ledger) CanDebitMoney(amount decimal.Decimal) bool {
	return amount.IsPositive() && l.Money.GreaterThanOrEqual(amount)
}

// CreditHolding adds qty (> 0) units of the object.
func (l *Ledger) CreditHolding(objectID uuid.UUID, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: credit qty must be positive, got %d", exchange.ErrInvalidParameters, qty)
	}
	l.Holdings[objectID] += qty
	return nil
}

// DebitHolding removes qty (> 0) units of the object. Fails without mutating
// if the resulting quantity would go negative.
func (l *Ledger) DebitHolding(objectID uuid.UUID, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: debit qty must be positive, got %d", exchange.ErrInvalidParameters, qty)
	}
	held := l.Holdings[objectID]
	if held < qty {
		return fmt.Errorf("%w: have %d of %s, need %d", exchange.ErrInsufficientHoldings, held, objectID, qty)
	}
	l.Holdings[objectID] = held - qty
	return nil
}

// Holding returns the quantity held of the object, zero if absent.
func (l *Ledger) Holding(objectID uuid.UUID) int64 {
	return l.Holdings[objectID]
}

// Validate checks the ledger invariants: money >= 0 and every holding >= 0.
func (l *Ledger) Validate() error {
	if l.Money.IsNegative() {
		return fmt.Errorf("negative money balance: %s", l.Money)
	}
	for id, qty := range l.Holdings {
		if qty < 0 {
			return fmt.Errorf("negative holding of %s: %d", id, qty)
		}
	}
	return nil
}

package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FabienLariviere/trading-simulation/pkg/exchange/account"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/order"
)

// Trader is the per-account operation surface: a handle bound to one account
// that forwards every operation to the engine and account manager under that
// identity.
type Trader struct {
	AccountID uuid.UUID

	engine   *Engine
	accounts *account.Manager
}

// Trader returns the operation surface for the given account.
func (e *Engine) Trader(accountID uuid.UUID) *Trader {
	return &Trader{AccountID: accountID, engine: e, accounts: e.accounts}
}

// CreateOrder places a buy/sell intent for this account.
func (t *Trader) CreateOrder(objectID uuid.UUID, amount int64, price decimal.Decimal, side order.Side) (*Placement, error) {
	return t.engine.PlaceOrder(t.AccountID, objectID, amount, price, side)
}

// ConsumeOrder fills qty units of an existing order (0 = full remainder).
func (t *Trader) ConsumeOrder(orderID uuid.UUID, qty int64) (*Fill, error) {
	return t.engine.ConsumeOrder(t.AccountID, orderID, qty)
}

// CancelOrder cancels one of this account's resting orders and refunds the
// remaining reservation.
func (t *Trader) CancelOrder(orderID uuid.UUID) error {
	return t.engine.CancelOrder(t.AccountID, orderID)
}

// Transfer sends money to another account with no fee.
func (t *Trader) Transfer(to uuid.UUID, amount decimal.Decimal) error {
	return t.accounts.Transfer(t.AccountID, to, amount)
}

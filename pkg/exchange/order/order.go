// Package order defines the Order aggregate: a resting buy/sell request and
// the state machine it moves through (ACTIVE -> COMPLETED | CANCELED).
package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FabienLariviere/trading-simulation/pkg/exchange"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the counter side (SELL for BUY and vice versa).
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Status is the lifecycle state of an order.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
)

// Order is a resting or executing request to buy/sell Amount units of an
// object at Price. Amount is the remaining unfilled quantity and only ever
// decreases; once the order is COMPLETED or CANCELED it is immutable.
type Order struct {
	ID       uuid.UUID       `json:"id"`
	Side     Side            `json:"side"`
	ObjectID uuid.UUID       `json:"objectId"`
	Creator  uuid.UUID       `json:"creator"`
	Amount   int64           `json:"amount"`
	Price    decimal.Decimal `json:"price"`
	Status   Status          `json:"status"`

	// Unix milliseconds
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// New creates an ACTIVE order. Callers are expected to have validated and
// reserved the creator's funds/holdings already; the matching engine is the
// only production caller.
func New(creator, objectID uuid.UUID, side Side, amount int64, price decimal.Decimal, now time.Time) (*Order, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: unknown side %q", exchange.ErrInvalidParameters, side)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", exchange.ErrInvalidParameters, amount)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive, got %s", exchange.ErrInvalidParameters, price)
	}

	ts := now.UnixMilli()
	return &Order{
		ID:        uuid.New(),
		Side:      side,
		ObjectID:  objectID,
		Creator:   creator,
		Amount:    amount,
		Price:     price,
		Status:    StatusActive,
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

// Active reports whether the order can still be filled or canceled.
func (o *Order) Active() bool {
	return o.Status == StatusActive
}

// Notional returns Price x qty, the money value of qty units at the order's
// price.
func (o *Order) Notional(qty int64) decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(qty))
}

// ReservedMoney returns the money still set aside for the unfilled remainder
// of a BUY order. Zero for SELL orders, whose reservation is held in object
// units instead.
func (o *Order) ReservedMoney() decimal.Decimal {
	if o.Side != Buy {
		return decimal.Zero
	}
	return o.Notional(o.Amount)
}

// Fill consumes qty units of the remaining amount. The order completes when
// the remainder reaches zero and stays ACTIVE otherwise. Settlement of the
// two ledgers happens in the engine before this transition is applied.
func (o *Order) Fill(qty int64, now time.Time) error {
	if !o.Active() {
		return fmt.Errorf("%w: order %s is %s", exchange.ErrOrderNotActive, o.ID, o.Status)
	}
	if qty <= 0 || qty > o.Amount {
		return fmt.Errorf("%w: fill qty %d out of range (remaining %d)", exchange.ErrInvalidParameters, qty, o.Amount)
	}

	o.Amount -= qty
	if o.Amount == 0 {
		o.Status = StatusCompleted
	}
	o.UpdatedAt = now.UnixMilli()
	return nil
}

// Cancel transitions the order to CANCELED. The engine refunds the remaining
// reservation to the creator before calling this.
func (o *Order) Cancel(now time.Time) error {
	if !o.Active() {
		return fmt.Errorf("%w: order %s is %s", exchange.ErrOrderNotActive, o.ID, o.Status)
	}
	o.Status = StatusCanceled
	o.UpdatedAt = now.UnixMilli()
	return nil
}

// Package object identifies tradable instruments and their trading fee, and
// exposes aggregate price statistics over the resting order set.
package object

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradableObject is a tradable instrument. Fee is a fraction in [0,1)
// applied to the notional of newly created resting orders. Immutable after
// registration.
type TradableObject struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Fee       decimal.Decimal `json:"fee"`
	CreatedAt int64           `json:"createdAt"` // Unix milliseconds
}

// New creates a tradable object. Validation happens in Registry.Register.
func New(name string, fee decimal.Decimal, now time.Time) *TradableObject {
	return &TradableObject{
		ID:        uuid.New(),
		Name:      name,
		Fee:       fee,
		CreatedAt: now.UnixMilli(),
	}
}

// TradeFee returns the fee charged on a resting order of the given notional:
// notional x Fee.
func (o *TradableObject) TradeFee(notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(o.Fee)
}

package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FabienLariviere/trading-simulation/pkg/exchange/order"
)

// Placement is the outcome of PlaceOrder: either a new resting order was
// created, or the request crossed an existing order and settled immediately.
// Exactly one of the two fields is set.
type Placement struct {
	Created *order.Order `json:"created,omitempty"`
	Matched *Fill        `json:"matched,omitempty"`
}

// Fill describes a settled consumption of a resting order.
type Fill struct {
	OrderID   uuid.UUID       `json:"orderId"`
	ObjectID  uuid.UUID       `json:"objectId"`
	Consumer  uuid.UUID       `json:"consumer"`
	Creator   uuid.UUID       `json:"creator"`
	Qty       int64           `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	Notional  decimal.Decimal `json:"notional"`
	Completed bool            `json:"completed"` // true when the order fully filled
}

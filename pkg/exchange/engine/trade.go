package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FabienLariviere/trading-simulation/pkg/exchange/order"
)

// Trade is the record of a settled fill between two accounts. Buyer ends up
// with the object units, Seller with the money. TakerSide is the side of the
// consuming party.
type Trade struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"orderId"`
	ObjectID  uuid.UUID       `json:"objectId"`
	Price     decimal.Decimal `json:"price"`
	Qty       int64           `json:"qty"`
	TakerSide order.Side      `json:"takerSide"`
	Buyer     uuid.UUID       `json:"buyer"`
	Seller    uuid.UUID       `json:"seller"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
}

// TradeStore persists trade history.
type TradeStore interface {
	SaveTrade(t *Trade) error

	// RecentTrades returns up to limit trades for the object, newest first.
	RecentTrades(objectID uuid.UUID, limit int) ([]*Trade, error)
}

func newTrade(o *order.Order, consumer uuid.UUID, qty int64, now time.Time) *Trade {
	t := &Trade{
		ID:        uuid.New(),
		OrderID:   o.ID,
		ObjectID:  o.ObjectID,
		Price:     o.Price,
		Qty:       qty,
		Timestamp: now.UnixMilli(),
	}
	if o.Side == order.Buy {
		// Creator wanted to buy; the consumer sold into the order.
		t.Buyer, t.Seller, t.TakerSide = o.Creator, consumer, order.Sell
	} else {
		t.Buyer, t.Seller, t.TakerSide = consumer, o.Creator, order.Buy
	}
	return t
}

package order

import "github.com/google/uuid"

// Repository is the persistent system-wide order set. Implementations must
// keep an index over ACTIVE orders per (object, side) so BestResting is a
// single-row lookup rather than a scan.
type Repository interface {
	// Insert stores a newly created order.
	Insert(o *Order) error

	// Update persists a state transition (fill or cancel) of an existing
	// order.
	Update(o *Order) error

	// Find returns the order with the given ID, or exchange.ErrNotFound.
	Find(id uuid.UUID) (*Order, error)

	// BestResting returns the ACTIVE order of the given side on the object
	// at the best price of its book: lowest price for SELL, highest for
	// BUY. Ties break by earliest creation time. Returns (nil, nil) when
	// no ACTIVE order of that side exists.
	BestResting(objectID uuid.UUID, side Side) (*Order, error)

	// ActiveOrders lists all ACTIVE orders of the given side on the object.
	ActiveOrders(objectID uuid.UUID, side Side) ([]*Order, error)

	// OrdersByCreator lists every order created by the account, any status.
	// Backed by a secondary index; the account record itself never owns
	// this collection.
	OrdersByCreator(creator uuid.UUID) ([]*Order, error)
}

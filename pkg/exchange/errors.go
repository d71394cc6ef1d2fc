// Package exchange defines the business error kinds shared by the account,
// order, object and engine packages. All of them are recoverable failures
// raised synchronously to the caller; match with errors.Is.
package exchange

import "errors"

var (
	// ErrInsufficientFunds is returned when a money debit would take a
	// ledger balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientHoldings is returned when a holdings debit would take
	// an object quantity below zero.
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrOrderIntersection is returned when a new order's price crosses
	// through the best opposing resting order instead of meeting it.
	ErrOrderIntersection = errors.New("order price intersects opposing order")

	// ErrOrderNotActive is returned when filling or canceling an order that
	// is already COMPLETED or CANCELED.
	ErrOrderNotActive = errors.New("order is not active")

	// ErrSelfTrade is returned when an account tries to consume its own
	// resting order.
	ErrSelfTrade = errors.New("cannot consume own order")

	// ErrNotOrderOwner is returned when an account tries to cancel an order
	// it did not create.
	ErrNotOrderOwner = errors.New("not the order creator")

	// ErrInvalidParameters is returned for non-positive amounts, prices or
	// quantities, and for fees outside [0,1).
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrNotFound is returned when a referenced account, object or order
	// does not exist in the record store.
	ErrNotFound = errors.New("not found")
)

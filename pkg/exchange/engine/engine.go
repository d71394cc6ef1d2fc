// Package engine implements the matching engine: given a trade intent it
// finds the best opposing resting order, decides crossing vs. resting, and
// drives settlement through the account manager and order repository.
//
// Crossing rule: an incoming BUY is checked against the lowest-priced ACTIVE
// SELL, an incoming SELL against the highest-priced ACTIVE BUY (price-time
// priority on ties). A price strictly through the best opposing order is
// rejected with ErrOrderIntersection; an exactly equal price consumes the
// opposing order; anything else rests. The trading fee is charged only on
// the resting path, never to the consuming side of a match.
package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/FabienLariviere/trading-simulation/pkg/exchange"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/account"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/object"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/order"
	"github.com/FabienLariviere/trading-simulation/pkg/util"
)

// Engine composes the account manager, order repository and object registry
// under one concurrency discipline: every find-candidate/decide/settle
// sequence runs inside a per-object lock, so two concurrent requests can
// never both match the same now-stale candidate. Ledger mutations are
// serialized one level down by the account manager; locks are always taken
// object-first, manager-second.
type Engine struct {
	accounts *account.Manager
	orders   order.Repository
	objects  *object.Registry
	trades   TradeStore
	clock    util.Clock
	log      *zap.SugaredLogger

	lockMu   sync.Mutex
	objLocks map[uuid.UUID]*sync.Mutex

	// OnTrade, when set, is invoked after each settled fill (outside the
	// object lock). Used by the API server to broadcast trade events.
	OnTrade func(t *Trade)
}

// New creates a matching engine.
func New(accounts *account.Manager, orders order.Repository, objects *object.Registry, trades TradeStore, clock util.Clock, log *zap.SugaredLogger) *Engine {
	return &Engine{
		accounts: accounts,
		orders:   orders,
		objects:  objects,
		trades:   trades,
		clock:    clock,
		log:      log,
		objLocks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// objLock returns the mutex serializing all matching activity on one object.
func (e *Engine) objLock(objectID uuid.UUID) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()

	l, ok := e.objLocks[objectID]
	if !ok {
		l = &sync.Mutex{}
		e.objLocks[objectID] = l
	}
	return l
}

// PlaceOrder handles a trade intent from requester: it either consumes the
// best opposing resting order (equal price), rejects a crossing price, or
// reserves funds/holdings plus the trading fee and creates a new ACTIVE
// resting order.
func (e *Engine) PlaceOrder(requester, objectID uuid.UUID, amount int64, price decimal.Decimal, side order.Side) (*Placement, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: unknown side %q", exchange.ErrInvalidParameters, side)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", exchange.ErrInvalidParameters, amount)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive, got %s", exchange.ErrInvalidParameters, price)
	}

	obj, err := e.objects.Get(objectID)
	if err != nil {
		return nil, err
	}
	if _, err := e.accounts.Get(requester); err != nil {
		return nil, err
	}

	lock := e.objLock(objectID)
	lock.Lock()
	defer lock.Unlock()

	candidate, err := e.orders.BestResting(objectID, side.Opposite())
	if err != nil {
		return nil, fmt.Errorf("query best opposing order: %w", err)
	}

	if candidate != nil {
		switch {
		case side == order.Buy && candidate.Price.LessThan(price):
			return nil, fmt.Errorf("%w: buy at %s crosses best sell at %s",
				exchange.ErrOrderIntersection, price, candidate.Price)
		case side == order.Sell && candidate.Price.GreaterThan(price):
			return nil, fmt.Errorf("%w: sell at %s crosses best buy at %s",
				exchange.ErrOrderIntersection, price, candidate.Price)
		case candidate.Price.Equal(price):
			qty := amount
			if candidate.Amount < qty {
				qty = candidate.Amount
			}
			fill, err := e.consumeLocked(requester, candidate, qty)
			if err != nil {
				return nil, err
			}
			return &Placement{Matched: fill}, nil
		}
	}

	notional := price.Mul(decimal.NewFromInt(amount))
	fee := obj.TradeFee(notional)
	if err := e.accounts.ReserveForOrder(requester, side, objectID, amount, notional, fee); err != nil {
		return nil, err
	}

	o, err := order.New(requester, objectID, side, amount, price, e.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := e.orders.Insert(o); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	e.log.Infow("order_created", "order", o.ID, "account", requester, "object", objectID,
		"side", side, "amount", amount, "price", price, "fee", fee)
	return &Placement{Created: o}, nil
}

// ConsumeOrder settles qty units of the target order against the requester.
// qty == 0 consumes the full remaining amount.
func (e *Engine) ConsumeOrder(requester, orderID uuid.UUID, qty int64) (*Fill, error) {
	if qty < 0 {
		return nil, fmt.Errorf("%w: qty must not be negative, got %d", exchange.ErrInvalidParameters, qty)
	}
	if _, err := e.accounts.Get(requester); err != nil {
		return nil, err
	}

	// First load resolves the object so the right lock can be taken; the
	// order is re-read under the lock before anything is decided.
	o, err := e.orders.Find(orderID)
	if err != nil {
		return nil, err
	}

	lock := e.objLock(o.ObjectID)
	lock.Lock()
	defer lock.Unlock()

	o, err = e.orders.Find(orderID)
	if err != nil {
		return nil, err
	}
	if qty == 0 {
		qty = o.Amount
	}
	return e.consumeLocked(requester, o, qty)
}

// consumeLocked validates and settles a fill. The object lock must be held.
func (e *Engine) consumeLocked(consumer uuid.UUID, o *order.Order, qty int64) (*Fill, error) {
	if o.Creator == consumer {
		return nil, fmt.Errorf("%w: order %s", exchange.ErrSelfTrade, o.ID)
	}
	if !o.Active() {
		return nil, fmt.Errorf("%w: order %s is %s", exchange.ErrOrderNotActive, o.ID, o.Status)
	}
	if qty <= 0 || qty > o.Amount {
		return nil, fmt.Errorf("%w: qty %d out of range (remaining %d)", exchange.ErrInvalidParameters, qty, o.Amount)
	}

	notional := o.Notional(qty)
	if err := e.accounts.SettleFill(consumer, o.Creator, o.Side, o.ObjectID, qty, notional); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	if err := o.Fill(qty, now); err != nil {
		return nil, err
	}
	if err := e.orders.Update(o); err != nil {
		return nil, fmt.Errorf("persist order fill: %w", err)
	}

	trade := newTrade(o, consumer, qty, now)
	if err := e.trades.SaveTrade(trade); err != nil {
		e.log.Errorw("trade_persist_failed", "trade", trade.ID, "err", err)
	}
	if e.OnTrade != nil {
		e.OnTrade(trade)
	}

	fill := &Fill{
		OrderID:   o.ID,
		ObjectID:  o.ObjectID,
		Consumer:  consumer,
		Creator:   o.Creator,
		Qty:       qty,
		Price:     o.Price,
		Notional:  notional,
		Completed: o.Status == order.StatusCompleted,
	}
	e.log.Infow("order_filled", "order", o.ID, "consumer", consumer, "qty", qty,
		"price", o.Price, "remaining", o.Amount, "status", o.Status)
	return fill, nil
}

// CancelOrder refunds the remaining reservation to the creator and cancels
// the order. Only the creator may cancel.
func (e *Engine) CancelOrder(requester, orderID uuid.UUID) error {
	o, err := e.orders.Find(orderID)
	if err != nil {
		return err
	}

	lock := e.objLock(o.ObjectID)
	lock.Lock()
	defer lock.Unlock()

	o, err = e.orders.Find(orderID)
	if err != nil {
		return err
	}
	if o.Creator != requester {
		return fmt.Errorf("%w: order %s", exchange.ErrNotOrderOwner, o.ID)
	}
	if !o.Active() {
		return fmt.Errorf("%w: order %s is %s", exchange.ErrOrderNotActive, o.ID, o.Status)
	}

	if err := e.accounts.ReleaseReservation(o.Creator, o.Side, o.ObjectID, o.Amount, o.ReservedMoney()); err != nil {
		return err
	}
	if err := o.Cancel(e.clock.Now()); err != nil {
		return err
	}
	if err := e.orders.Update(o); err != nil {
		return fmt.Errorf("persist order cancel: %w", err)
	}

	e.log.Infow("order_canceled", "order", o.ID, "account", requester, "refund_qty", o.Amount)
	return nil
}

// RecentTrades returns up to limit trades for the object, newest first.
func (e *Engine) RecentTrades(objectID uuid.UUID, limit int) ([]*Trade, error) {
	return e.trades.RecentTrades(objectID, limit)
}

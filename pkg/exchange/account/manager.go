package account

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/FabienLariviere/trading-simulation/pkg/exchange"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/order"
	"github.com/FabienLariviere/trading-simulation/pkg/util"
)

// Manager owns every account ledger. A single mutex serializes all mutations
// so two concurrent debits can never both pass a balance check against a
// stale snapshot. Every composite operation validates all of its
// preconditions before touching a ledger (check-then-act) and persists the
// touched accounts in one atomic store batch.
//
// Uses an in-memory cache + store persistence for durability.
type Manager struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*Account
	store    Store
	clock    util.Clock
	log      *zap.SugaredLogger
}

// NewManager creates an account manager on top of the given record store.
func NewManager(store Store, clock util.Clock, log *zap.SugaredLogger) *Manager {
	return &Manager{
		accounts: make(map[uuid.UUID]*Account),
		store:    store,
		clock:    clock,
		log:      log,
	}
}

// Create registers a new account with an empty ledger and persists it.
func (m *Manager) Create(name string) (*Account, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: account name must not be empty", exchange.ErrInvalidParameters)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc := New(name, m.clock.Now())
	if err := m.store.SaveAccounts(acc); err != nil {
		return nil, fmt.Errorf("persist account: %w", err)
	}
	m.accounts[acc.ID] = acc

	m.log.Infow("account_created", "account", acc.ID, "name", name)
	return snapshot(acc), nil
}

// Get returns a copy of the account aggregate (identity + fully resolved
// ledger). Callers never receive the live ledger; mutations go through the
// Manager's operations only.
func (m *Manager) Get(id uuid.UUID) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, err := m.getLocked(id)
	if err != nil {
		return nil, err
	}
	return snapshot(acc), nil
}

// getLocked resolves an account from cache or store. Assumes the lock is
// held.
func (m *Manager) getLocked(id uuid.UUID) (*Account, error) {
	if acc, ok := m.accounts[id]; ok {
		return acc, nil
	}

	acc, err := m.store.LoadAccount(id)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: account %s", exchange.ErrNotFound, id)
	}
	if acc.Ledger == nil {
		acc.Ledger = NewLedger()
	}
	if acc.Ledger.Holdings == nil {
		acc.Ledger.Holdings = make(map[uuid.UUID]int64)
	}

	m.accounts[id] = acc
	return acc, nil
}

// Deposit adds money to an account from outside the system.
func (m *Manager) Deposit(id uuid.UUID, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, err := m.getLocked(id)
	if err != nil {
		return err
	}
	if err := acc.Ledger.CreditMoney(amount); err != nil {
		return err
	}

	m.log.Infow("deposit", "account", id, "amount", amount)
	return m.store.SaveAccounts(acc)
}

// Withdraw removes money from an account. Fails with ErrInsufficientFunds
// when the balance does not cover the amount.
func (m *Manager) Withdraw(id uuid.UUID, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, err := m.getLocked(id)
	if err != nil {
		return err
	}
	if err := acc.Ledger.DebitMoney(amount); err != nil {
		return err
	}

	m.log.Infow("withdraw", "account", id, "amount", amount)
	return m.store.SaveAccounts(acc)
}

// DepositHolding adds object inventory to an account from outside the
// system.
func (m *Manager) DepositHolding(id, objectID uuid.UUID, qty int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, err := m.getLocked(id)
	if err != nil {
		return err
	}
	if err := acc.Ledger.CreditHolding(objectID, qty); err != nil {
		return err
	}

	m.log.Infow("deposit_holding", "account", id, "object", objectID, "qty", qty)
	return m.store.SaveAccounts(acc)
}

// Transfer moves money between two accounts with no fee. Both ledgers are
// persisted atomically.
func (m *Manager) Transfer(from, to uuid.UUID, amount decimal.Decimal) error {
	if from == to {
		return fmt.Errorf("%w: cannot transfer to self", exchange.ErrInvalidParameters)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: transfer amount must be positive, got %s", exchange.ErrInvalidParameters, amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.getLocked(from)
	if err != nil {
		return err
	}
	dst, err := m.getLocked(to)
	if err != nil {
		return err
	}

	if err := src.Ledger.DebitMoney(amount); err != nil {
		return err
	}
	if err := dst.Ledger.CreditMoney(amount); err != nil {
		return err
	}

	m.log.Infow("transfer", "from", from, "to", to, "amount", amount)
	return m.store.SaveAccounts(src, dst)
}

// ReserveForOrder sets aside what a new resting order locks up: for BUY the
// notional in money, for SELL qty units of the object; the trading fee is
// debited from money on both sides. All checks run before any mutation.
func (m *Manager) ReserveForOrder(creator uuid.UUID, side order.Side, objectID uuid.UUID, qty int64, notional, fee decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, err := m.getLocked(creator)
	if err != nil {
		return err
	}
	led := acc.Ledger

	switch side {
	case order.Buy:
		need := notional.Add(fee)
		if led.Money.LessThan(need) {
			return fmt.Errorf("%w: have %s, need %s (notional %s + fee %s)",
				exchange.ErrInsufficientFunds, led.Money, need, notional, fee)
		}
		if err := led.DebitMoney(need); err != nil {
			return err
		}
	case order.Sell:
		if led.Holding(objectID) < qty {
			return fmt.Errorf("%w: have %d of %s, need %d",
				exchange.ErrInsufficientHoldings, led.Holding(objectID), objectID, qty)
		}
		if fee.IsPositive() && led.Money.LessThan(fee) {
			return fmt.Errorf("%w: have %s, need fee %s", exchange.ErrInsufficientFunds, led.Money, fee)
		}
		if err := led.DebitHolding(objectID, qty); err != nil {
			return err
		}
		if fee.IsPositive() {
			if err := led.DebitMoney(fee); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown side %q", exchange.ErrInvalidParameters, side)
	}

	m.log.Infow("order_reserved", "account", creator, "side", side, "object", objectID,
		"qty", qty, "notional", notional, "fee", fee)
	return m.store.SaveAccounts(acc)
}

// ReleaseReservation refunds the remaining reservation of a canceled order:
// money for BUY, object units for SELL. The creation fee is not refunded.
func (m *Manager) ReleaseReservation(creator uuid.UUID, side order.Side, objectID uuid.UUID, qty int64, refund decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, err := m.getLocked(creator)
	if err != nil {
		return err
	}

	switch side {
	case order.Buy:
		if err := acc.Ledger.CreditMoney(refund); err != nil {
			return err
		}
	case order.Sell:
		if err := acc.Ledger.CreditHolding(objectID, qty); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown side %q", exchange.ErrInvalidParameters, side)
	}

	m.log.Infow("reservation_released", "account", creator, "side", side, "object", objectID,
		"qty", qty, "refund", refund)
	return m.store.SaveAccounts(acc)
}

// SettleFill exchanges money and object quantity between the consumer of an
// order and its creator. side is the side of the resting order being
// consumed:
//
//	BUY order:  consumer gives qty units, receives notional money;
//	            creator receives qty units (money left at reservation time).
//	SELL order: consumer gives notional money, receives qty units;
//	            creator receives notional money (units left at reservation).
//
// The consumer's side is validated before any ledger is touched; both
// accounts persist in one atomic batch.
func (m *Manager) SettleFill(consumer, creator uuid.UUID, side order.Side, objectID uuid.UUID, qty int64, notional decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cons, err := m.getLocked(consumer)
	if err != nil {
		return err
	}
	crea, err := m.getLocked(creator)
	if err != nil {
		return err
	}

	switch side {
	case order.Buy:
		if cons.Ledger.Holding(objectID) < qty {
			return fmt.Errorf("%w: have %d of %s, need %d",
				exchange.ErrInsufficientHoldings, cons.Ledger.Holding(objectID), objectID, qty)
		}
		if err := cons.Ledger.DebitHolding(objectID, qty); err != nil {
			return err
		}
		if err := cons.Ledger.CreditMoney(notional); err != nil {
			return err
		}
		if err := crea.Ledger.CreditHolding(objectID, qty); err != nil {
			return err
		}
	case order.Sell:
		if !cons.Ledger.CanDebitMoney(notional) {
			return fmt.Errorf("%w: have %s, need %s",
				exchange.ErrInsufficientFunds, cons.Ledger.Money, notional)
		}
		if err := cons.Ledger.DebitMoney(notional); err != nil {
			return err
		}
		if err := cons.Ledger.CreditHolding(objectID, qty); err != nil {
			return err
		}
		if err := crea.Ledger.CreditMoney(notional); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown side %q", exchange.ErrInvalidParameters, side)
	}

	m.log.Infow("fill_settled", "consumer", consumer, "creator", creator, "side", side,
		"object", objectID, "qty", qty, "notional", notional)
	return m.store.SaveAccounts(cons, crea)
}

// snapshot deep-copies an account so readers never share the live ledger.
func snapshot(acc *Account) *Account {
	holdings := make(map[uuid.UUID]int64, len(acc.Ledger.Holdings))
	for id, qty := range acc.Ledger.Holdings {
		holdings[id] = qty
	}
	return &Account{
		ID:        acc.ID,
		Name:      acc.Name,
		CreatedAt: acc.CreatedAt,
		Ledger: &Ledger{
			Money:    acc.Ledger.Money,
			Holdings: holdings,
		},
	}
}

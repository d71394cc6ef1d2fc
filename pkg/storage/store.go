// Package storage provides the Pebble-backed record store behind the
// exchange core. One Store implements the account.Store, object.Store,
// order.Repository and engine.TradeStore interfaces, so a settlement's
// writes share a single database and batch semantics.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/FabienLariviere/trading-simulation/pkg/exchange"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/account"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/engine"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/object"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/order"
)

// Store is a Pebble database holding accounts, tradable objects, orders,
// book/creator indexes and trade history.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(128 << 20), // 128MB cache
		MemTableSize:             64 << 20,                   // 64MB memtable
		MaxConcurrentCompactions: func() int { return 3 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) setJSON(key []byte, v any, sync *pebble.WriteOptions) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.db.Set(key, data, sync)
}

// getJSON loads key into v. Returns (false, nil) when the key is absent.
func (s *Store) getJSON(key []byte, v any) (bool, error) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal record: %w", err)
	}
	return true, nil
}

// ---- account.Store ----

// SaveAccounts persists every passed account in one atomic batch, so no
// reader ever observes one half of a transfer or settlement.
func (s *Store) SaveAccounts(accs ...*account.Account) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, acc := range accs {
		data, err := json.Marshal(acc)
		if err != nil {
			return fmt.Errorf("marshal account %s: %w", acc.ID, err)
		}
		if err := batch.Set(accountKey(acc.ID), data, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

// LoadAccount returns (nil, nil) when the account does not exist.
func (s *Store) LoadAccount(id uuid.UUID) (*account.Account, error) {
	var acc account.Account
	ok, err := s.getJSON(accountKey(id), &acc)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return &acc, nil
}

// ---- object.Store ----

func (s *Store) SaveObject(obj *object.TradableObject) error {
	return s.setJSON(objectKey(obj.ID), obj, pebble.Sync)
}

func (s *Store) LoadObject(id uuid.UUID) (*object.TradableObject, error) {
	var obj object.TradableObject
	ok, err := s.getJSON(objectKey(id), &obj)
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return &obj, nil
}

func (s *Store) ListObjects() ([]*object.TradableObject, error) {
	prefix := []byte(prefixObject)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var objs []*object.TradableObject
	for iter.First(); iter.Valid(); iter.Next() {
		var obj object.TradableObject
		if err := json.Unmarshal(iter.Value(), &obj); err != nil {
			return nil, fmt.Errorf("unmarshal object at %q: %w", iter.Key(), err)
		}
		objs = append(objs, &obj)
	}
	return objs, nil
}

// ---- order.Repository ----

// Insert stores a new order together with its book and creator index
// entries, atomically.
func (s *Store) Insert(o *order.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.ID, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(orderKey(o.ID), data, nil); err != nil {
		return err
	}
	if o.Active() {
		if err := batch.Set(bookKey(o), []byte(o.ID.String()), nil); err != nil {
			return err
		}
	}
	if err := batch.Set(creatorKey(o.Creator, o.ID), []byte(o.ID.String()), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// Update persists a fill or cancel transition. Terminal orders leave the
// book index in the same batch.
func (s *Store) Update(o *order.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.ID, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(orderKey(o.ID), data, nil); err != nil {
		return err
	}
	if !o.Active() {
		if err := batch.Delete(bookKey(o), nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

// Find returns the order or exchange.ErrNotFound.
func (s *Store) Find(id uuid.UUID) (*order.Order, error) {
	var o order.Order
	ok, err := s.getJSON(orderKey(id), &o)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: order %s", exchange.ErrNotFound, id)
	}
	return &o, nil
}

// BestResting returns the best-priced ACTIVE order of the side: the book
// index keys sort best-first (price, then creation time), so the answer is
// the first key of the range.
func (s *Store) BestResting(objectID uuid.UUID, side order.Side) (*order.Order, error) {
	prefix := bookPrefix(objectID, side)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	if !iter.First() {
		return nil, nil
	}
	id, err := orderIDFromIndexKey(iter.Key())
	if err != nil {
		return nil, err
	}
	return s.Find(id)
}

// ActiveOrders lists all ACTIVE orders of the side, best price first.
func (s *Store) ActiveOrders(objectID uuid.UUID, side order.Side) ([]*order.Order, error) {
	prefix := bookPrefix(objectID, side)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []*order.Order
	for iter.First(); iter.Valid(); iter.Next() {
		id, err := orderIDFromIndexKey(iter.Key())
		if err != nil {
			return nil, err
		}
		o, err := s.Find(id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// OrdersByCreator lists every order the account ever created, via the
// creator index.
func (s *Store) OrdersByCreator(creator uuid.UUID) ([]*order.Order, error) {
	prefix := creatorPrefix(creator)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []*order.Order
	for iter.First(); iter.Valid(); iter.Next() {
		id, err := orderIDFromIndexKey(iter.Key())
		if err != nil {
			return nil, err
		}
		o, err := s.Find(id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// ---- engine.TradeStore ----

func (s *Store) SaveTrade(t *engine.Trade) error {
	return s.setJSON(tradeKey(t.ObjectID, t.Timestamp, t.ID), t, pebble.NoSync)
}

// RecentTrades returns up to limit trades for the object, newest first.
func (s *Store) RecentTrades(objectID uuid.UUID, limit int) ([]*engine.Trade, error) {
	prefix := tradePrefix(objectID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var trades []*engine.Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t engine.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("unmarshal trade at %q: %w", iter.Key(), err)
		}
		trades = append(trades, &t)
	}
	return trades, nil
}

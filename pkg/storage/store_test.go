package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FabienLariviere/trading-simulation/pkg/exchange"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/account"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/engine"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/object"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/order"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "exchange.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustOrder(t *testing.T, creator, obj uuid.UUID, side order.Side, amount int64, price string, at time.Time) *order.Order {
	t.Helper()
	o, err := order.New(creator, obj, side, amount, dec(price), at)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func TestAccountRoundTrip(t *testing.T) {
	s := newTestStore(t)
	obj := uuid.New()

	acc := account.New("alice", time.Now())
	if err := acc.Ledger.CreditMoney(dec("12.5")); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := acc.Ledger.CreditHolding(obj, 3); err != nil {
		t.Fatalf("credit holding: %v", err)
	}

	if err := s.SaveAccounts(acc); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadAccount(acc.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Name != "alice" || !got.Ledger.Money.Equal(dec("12.5")) || got.Ledger.Holding(obj) != 3 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	missing, err := s.LoadAccount(uuid.New())
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing account")
	}
}

func TestSaveAccountsBatch(t *testing.T) {
	s := newTestStore(t)

	a := account.New("a", time.Now())
	b := account.New("b", time.Now())
	if err := s.SaveAccounts(a, b); err != nil {
		t.Fatalf("save batch: %v", err)
	}

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		got, err := s.LoadAccount(id)
		if err != nil || got == nil {
			t.Errorf("account %s missing after batch save: %v", id, err)
		}
	}
}

func TestObjectRoundTripAndList(t *testing.T) {
	s := newTestStore(t)

	gold := object.New("gold", dec("0.05"), time.Now())
	oil := object.New("oil", dec("0.1"), time.Now())
	for _, obj := range []*object.TradableObject{gold, oil} {
		if err := s.SaveObject(obj); err != nil {
			t.Fatalf("save object: %v", err)
		}
	}

	got, err := s.LoadObject(gold.ID)
	if err != nil {
		t.Fatalf("load object: %v", err)
	}
	if got.Name != "gold" || !got.Fee.Equal(dec("0.05")) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	objs, err := s.ListObjects()
	if err != nil {
		t.Fatalf("list objects: %v", err)
	}
	if len(objs) != 2 {
		t.Errorf("expected 2 objects, got %d", len(objs))
	}
}

func TestFindNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Find(uuid.New()); !errors.Is(err, exchange.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBestRestingSellSide(t *testing.T) {
	s := newTestStore(t)
	obj, creator := uuid.New(), uuid.New()
	t0 := time.UnixMilli(1_700_000_000_000)

	// Inserted out of price order on purpose.
	for _, price := range []string{"105", "101", "103"} {
		o := mustOrder(t, creator, obj, order.Sell, 1, price, t0)
		if err := s.Insert(o); err != nil {
			t.Fatalf("insert: %v", err)
		}
		t0 = t0.Add(time.Millisecond)
	}

	best, err := s.BestResting(obj, order.Sell)
	if err != nil {
		t.Fatalf("best resting: %v", err)
	}
	if best == nil || !best.Price.Equal(dec("101")) {
		t.Fatalf("expected lowest ask 101, got %+v", best)
	}
}

func TestBestRestingBuySide(t *testing.T) {
	s := newTestStore(t)
	obj, creator := uuid.New(), uuid.New()
	t0 := time.UnixMilli(1_700_000_000_000)

	for _, price := range []string{"95", "99", "97"} {
		o := mustOrder(t, creator, obj, order.Buy, 1, price, t0)
		if err := s.Insert(o); err != nil {
			t.Fatalf("insert: %v", err)
		}
		t0 = t0.Add(time.Millisecond)
	}

	best, err := s.BestResting(obj, order.Buy)
	if err != nil {
		t.Fatalf("best resting: %v", err)
	}
	if best == nil || !best.Price.Equal(dec("99")) {
		t.Fatalf("expected highest bid 99, got %+v", best)
	}
}

func TestBestRestingTimePriorityOnTies(t *testing.T) {
	s := newTestStore(t)
	obj, creator := uuid.New(), uuid.New()
	t0 := time.UnixMilli(1_700_000_000_000)

	first := mustOrder(t, creator, obj, order.Sell, 1, "100", t0)
	second := mustOrder(t, creator, obj, order.Sell, 1, "100", t0.Add(time.Second))
	// Insert newest first; the index still ranks by creation time.
	for _, o := range []*order.Order{second, first} {
		if err := s.Insert(o); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	best, err := s.BestResting(obj, order.Sell)
	if err != nil {
		t.Fatalf("best resting: %v", err)
	}
	if best == nil || best.ID != first.ID {
		t.Errorf("expected the earlier order to rank first")
	}
}

func TestBestRestingEmptyAndSideIsolation(t *testing.T) {
	s := newTestStore(t)
	obj, creator := uuid.New(), uuid.New()

	best, err := s.BestResting(obj, order.Sell)
	if err != nil {
		t.Fatalf("best resting: %v", err)
	}
	if best != nil {
		t.Errorf("expected nil on empty book, got %+v", best)
	}

	o := mustOrder(t, creator, obj, order.Buy, 1, "100", time.Now())
	if err := s.Insert(o); err != nil {
		t.Fatalf("insert: %v", err)
	}
	best, err = s.BestResting(obj, order.Sell)
	if err != nil {
		t.Fatalf("best resting: %v", err)
	}
	if best != nil {
		t.Error("buy order leaked into the sell book")
	}
}

func TestUpdateRemovesTerminalOrderFromBook(t *testing.T) {
	s := newTestStore(t)
	obj, creator := uuid.New(), uuid.New()
	now := time.Now()

	o := mustOrder(t, creator, obj, order.Sell, 5, "100", now)
	if err := s.Insert(o); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := o.Cancel(now); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := s.Update(o); err != nil {
		t.Fatalf("update: %v", err)
	}

	best, err := s.BestResting(obj, order.Sell)
	if err != nil {
		t.Fatalf("best resting: %v", err)
	}
	if best != nil {
		t.Error("canceled order still in the book index")
	}

	// The record itself survives for history queries.
	got, err := s.Find(o.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != order.StatusCanceled {
		t.Errorf("expected CANCELED, got %s", got.Status)
	}
}

func TestOrdersByCreatorKeepsTerminalOrders(t *testing.T) {
	s := newTestStore(t)
	obj, creator, other := uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	kept := mustOrder(t, creator, obj, order.Sell, 5, "100", now)
	canceled := mustOrder(t, creator, obj, order.Sell, 5, "110", now)
	foreign := mustOrder(t, other, obj, order.Sell, 5, "120", now)
	for _, o := range []*order.Order{kept, canceled, foreign} {
		if err := s.Insert(o); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := canceled.Cancel(now); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := s.Update(canceled); err != nil {
		t.Fatalf("update: %v", err)
	}

	mine, err := s.OrdersByCreator(creator)
	if err != nil {
		t.Fatalf("orders by creator: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(mine))
	}
	for _, o := range mine {
		if o.Creator != creator {
			t.Errorf("foreign order in creator listing: %+v", o)
		}
	}
}

func TestActiveOrdersSortedBestFirst(t *testing.T) {
	s := newTestStore(t)
	obj, creator := uuid.New(), uuid.New()
	t0 := time.UnixMilli(1_700_000_000_000)

	for _, price := range []string{"103", "101", "102"} {
		o := mustOrder(t, creator, obj, order.Sell, 1, price, t0)
		if err := s.Insert(o); err != nil {
			t.Fatalf("insert: %v", err)
		}
		t0 = t0.Add(time.Millisecond)
	}

	active, err := s.ActiveOrders(obj, order.Sell)
	if err != nil {
		t.Fatalf("active orders: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(active))
	}
	for i, want := range []string{"101", "102", "103"} {
		if !active[i].Price.Equal(dec(want)) {
			t.Errorf("position %d: expected %s, got %s", i, want, active[i].Price)
		}
	}
}

func TestRecentTradesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	obj := uuid.New()
	base := time.UnixMilli(1_700_000_000_000)

	for i := int64(0); i < 3; i++ {
		tr := &engine.Trade{
			ID:        uuid.New(),
			OrderID:   uuid.New(),
			ObjectID:  obj,
			Price:     dec("100"),
			Qty:       i + 1,
			TakerSide: order.Buy,
			Buyer:     uuid.New(),
			Seller:    uuid.New(),
			Timestamp: base.Add(time.Duration(i) * time.Second).UnixMilli(),
		}
		if err := s.SaveTrade(tr); err != nil {
			t.Fatalf("save trade: %v", err)
		}
	}

	trades, err := s.RecentTrades(obj, 2)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(trades))
	}
	if trades[0].Qty != 3 || trades[1].Qty != 2 {
		t.Errorf("expected newest first, got qty %d then %d", trades[0].Qty, trades[1].Qty)
	}

	other, err := s.RecentTrades(uuid.New(), 10)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("trades leaked across objects: %d", len(other))
	}
}

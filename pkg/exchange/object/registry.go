package object

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

// Store is the persistent record store for tradable objects.
type Store interface {
	SaveObject(obj *TradableObject) error

	// LoadObject returns (nil, nil) when the object does not exist.
	LoadObject(id uuid.UUID) (*TradableObject, error)

	ListObjects() ([]*TradableObject, error)
}

// Registry manages tradable objects in a thread-safe manner and answers
// price statistics queries against the order repository.
type Registry struct {
	mu      sync.RWMutex
	objects map[uuid.UUID]*TradableObject
	store   Store
	orders  order.Repository
	clock   util.Clock
	log     *zap.SugaredLogger
}

// NewRegistry creates a registry backed by the given store. Existing objects
// are loaded eagerly so lookups never hit the store on the hot path.
func NewRegistry(store Store, orders order.Repository, clock util.Clock, log *zap.SugaredLogger) (*Registry, error) {
	objs, err := store.ListObjects()
	if err != nil {
		return nil, fmt.Errorf("load objects: %w", err)
	}

	byID := make(map[uuid.UUID]*TradableObject, len(objs))
	for _, obj := range objs {
		byID[obj.ID] = obj
	}

	return &Registry{
		objects: byID,
		store:   store,
		orders:  orders,
		clock:   clock,
		log:     log,
	}, nil
}

// Register adds a new tradable object. Fee must be a fraction in [0,1).
func (r *Registry) Register(name string, fee decimal.Decimal) (*TradableObject, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: object name must not be empty", exchange.ErrInvalidParameters)
	}
	if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: fee must be in [0,1), got %s", exchange.ErrInvalidParameters, fee)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	obj := New(name, fee, r.clock.Now())
	if err := r.store.SaveObject(obj); err != nil {
		return nil, fmt.Errorf("persist object: %w", err)
	}
	r.objects[obj.ID] = obj

	r.log.Infow("object_registered", "object", obj.ID, "name", name, "fee", fee)
	return obj, nil
}

// Get retrieves a tradable object by ID.
func (r *Registry) Get(id uuid.UUID) (*TradableObject, error) {
	r.mu.RLock()
	obj, ok := r.objects[id]
	r.mu.RUnlock()
	if ok {
		return obj, nil
	}

	obj, err := r.store.LoadObject(id)
	if err != nil {
		return nil, fmt.Errorf("load object %s: %w", id, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: object %s", exchange.ErrNotFound, id)
	}

	r.mu.Lock()
	r.objects[id] = obj
	r.mu.Unlock()
	return obj, nil
}

// List returns all registered objects.
func (r *Registry) List() []*TradableObject {
	r.mu.RLock()
	defer r.mu.RUnlock()

	objs := make([]*TradableObject, 0, len(r.objects))
	for _, obj := range r.objects {
		objs = append(objs, obj)
	}
	return objs
}

// AveragePrice returns the arithmetic mean of price over all ACTIVE orders
// of the given side for the object. ok is false when no such order exists;
// an empty book is not an error.
func (r *Registry) AveragePrice(objectID uuid.UUID, side order.Side) (avg decimal.Decimal, ok bool, err error) {
	active, err := r.orders.ActiveOrders(objectID, side)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("query active orders: %w", err)
	}
	if len(active) == 0 {
		return decimal.Zero, false, nil
	}

	sum := decimal.Zero
	for _, o := range active {
		sum = sum.Add(o.Price)
	}
	return sum.Div(decimal.NewFromInt(int64(len(active)))), true, nil
}

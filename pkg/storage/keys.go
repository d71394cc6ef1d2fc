package storage

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FabienLariviere/trading-simulation/pkg/exchange/order"
)

// Pebble key schema. Design principles:
// 1. Prefix-based for range scans (all ACTIVE orders of an object+side).
// 2. Zero-padded numeric components so lexicographic order is price-time
//    priority and the best candidate is the first key of its range.
// 3. Secondary indexes for "orders created by account" instead of a
//    collection owned by the account record.

const (
	prefixAccount = "acc:"
	prefixObject  = "obj:"
	prefixOrder   = "ord:"
	prefixBook    = "idx:obj:"  // ACTIVE orders per (object, side)
	prefixCreator = "idx:acct:" // orders per creator
	prefixTrade   = "trade:"
)

// priceScale converts a decimal price to fixed-point for key encoding.
// 1e8 keeps eight fractional digits, enough for every price the engine
// accepts.
var priceScale = decimal.NewFromInt(100_000_000)

// accountKey: "acc:{accountID}"
func accountKey(id uuid.UUID) []byte {
	return []byte(prefixAccount + id.String())
}

// objectKey: "obj:{objectID}"
func objectKey(id uuid.UUID) []byte {
	return []byte(prefixObject + id.String())
}

// orderKey: "ord:{orderID}"
func orderKey(id uuid.UUID) []byte {
	return []byte(prefixOrder + id.String())
}

// bookKey indexes an ACTIVE order inside its (object, side) book.
// Format: "idx:obj:{objectID}:{side}:{price:020d}:{createdAt:020d}:{orderID}"
//
// For SELL the raw fixed-point price sorts ascending, so the first key of
// the range is the lowest-priced (best) ask. For BUY the price component is
// inverted (MaxInt64 - scaled) so the first key is the highest-priced bid;
// either way ties resolve to the earliest CreatedAt.
func bookKey(o *order.Order) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d:%020d:%s",
		prefixBook, o.ObjectID, o.Side, sortablePrice(o.Side, o.Price), o.CreatedAt, o.ID))
}

// bookPrefix: "idx:obj:{objectID}:{side}:"
func bookPrefix(objectID uuid.UUID, side order.Side) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixBook, objectID, side))
}

func sortablePrice(side order.Side, price decimal.Decimal) int64 {
	scaled := price.Mul(priceScale).IntPart()
	if side == order.Buy {
		return math.MaxInt64 - scaled
	}
	return scaled
}

// creatorKey: "idx:acct:{accountID}:{orderID}"
func creatorKey(creator, orderID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixCreator, creator, orderID))
}

// creatorPrefix: "idx:acct:{accountID}:"
func creatorPrefix(creator uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixCreator, creator))
}

// tradeKey: "trade:{objectID}:{timestamp:020d}:{tradeID}"
// Zero-padded timestamps keep trades in chronological key order; a reverse
// scan yields newest-first.
func tradeKey(objectID uuid.UUID, timestamp int64, tradeID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTrade, objectID, timestamp, tradeID))
}

// tradePrefix: "trade:{objectID}:"
func tradePrefix(objectID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, objectID))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// orderIDFromIndexKey extracts the trailing order ID of an index key.
func orderIDFromIndexKey(key []byte) (uuid.UUID, error) {
	s := string(key)
	i := strings.LastIndexByte(s, ':')
	if i < 0 || i+1 >= len(s) {
		return uuid.Nil, fmt.Errorf("malformed index key: %q", s)
	}
	return uuid.Parse(s[i+1:])
}

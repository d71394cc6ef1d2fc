package api

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request and response types for REST endpoints and WebSocket messages.
// Money and price fields ride as JSON strings to keep decimal precision.

// ==============================
// Requests
// ==============================

type CreateAccountRequest struct {
	Name string `json:"name"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type DepositHoldingRequest struct {
	ObjectID uuid.UUID `json:"objectId"`
	Qty      int64     `json:"qty"`
}

type TransferRequest struct {
	From   uuid.UUID       `json:"from"`
	To     uuid.UUID       `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type RegisterObjectRequest struct {
	Name string `json:"name"`
	// Fee is optional; the configured default applies when omitted.
	Fee *decimal.Decimal `json:"fee,omitempty"`
}

type PlaceOrderRequest struct {
	AccountID uuid.UUID       `json:"accountId"`
	ObjectID  uuid.UUID       `json:"objectId"`
	Amount    int64           `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Side      string          `json:"side"` // "BUY" or "SELL"
}

type ConsumeOrderRequest struct {
	AccountID uuid.UUID `json:"accountId"`
	Qty       int64     `json:"qty,omitempty"` // 0 = full remaining amount
}

type CancelOrderRequest struct {
	AccountID uuid.UUID `json:"accountId"`
}

// ==============================
// Responses
// ==============================

type ErrorResponse struct {
	Error string `json:"error"`
}

type ObjectStats struct {
	ObjectID     uuid.UUID        `json:"objectId"`
	AvgBuyPrice  *decimal.Decimal `json:"avgBuyPrice"`  // null when no ACTIVE buy orders
	AvgSellPrice *decimal.Decimal `json:"avgSellPrice"` // null when no ACTIVE sell orders
}

// ==============================
// WebSocket messages
// ==============================

type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type WSTradeMessage struct {
	Channel   string          `json:"channel"` // "trades:{objectID}"
	TradeID   uuid.UUID       `json:"tradeId"`
	ObjectID  uuid.UUID       `json:"objectId"`
	Price     decimal.Decimal `json:"price"`
	Qty       int64           `json:"qty"`
	TakerSide string          `json:"takerSide"`
	Timestamp int64           `json:"timestamp"`
}

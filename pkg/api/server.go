// Package api exposes the exchange core over REST (gorilla/mux) and a
// WebSocket trade feed. It is a thin outer layer: every operation maps
// one-to-one onto the account manager, object registry or matching engine.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/FabienLariviere/trading-simulation/pkg/exchange"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/account"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/engine"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/object"
	"github.com/FabienLariviere/trading-simulation/pkg/exchange/order"
)

// Server handles REST API and WebSocket connections.
type Server struct {
	engine   *engine.Engine
	accounts *account.Manager
	objects  *object.Registry
	orders   order.Repository

	router     *mux.Router
	hub        *Hub
	log        *zap.SugaredLogger
	defaultFee decimal.Decimal
}

// NewServer creates the API server and wires the engine's trade hook to the
// WebSocket hub.
func NewServer(eng *engine.Engine, accounts *account.Manager, objects *object.Registry, orders order.Repository, defaultFee decimal.Decimal, log *zap.SugaredLogger) *Server {
	s := &Server{
		engine:     eng,
		accounts:   accounts,
		objects:    objects,
		orders:     orders,
		router:     mux.NewRouter(),
		hub:        NewHub(log),
		log:        log,
		defaultFee: defaultFee,
	}

	eng.OnTrade = s.broadcastTrade
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Account endpoints
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods("POST")
	api.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{id}/orders", s.handleGetAccountOrders).Methods("GET")
	api.HandleFunc("/accounts/{id}/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/accounts/{id}/withdraw", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/accounts/{id}/holdings", s.handleDepositHolding).Methods("POST")

	// Peer transfer
	api.HandleFunc("/transfers", s.handleTransfer).Methods("POST")

	// Tradable object endpoints
	api.HandleFunc("/objects", s.handleRegisterObject).Methods("POST")
	api.HandleFunc("/objects", s.handleListObjects).Methods("GET")
	api.HandleFunc("/objects/{id}/stats", s.handleObjectStats).Methods("GET")
	api.HandleFunc("/objects/{id}/trades", s.handleObjectTrades).Methods("GET")

	// Order endpoints
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/consume", s.handleConsumeOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// HTTPServer starts the WebSocket hub and returns the configured HTTP
// server; the caller runs ListenAndServe and owns shutdown.
func (s *Server) HTTPServer(addr string) *http.Server {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	s.log.Infow("api_server_configured", "addr", addr)
	return &http.Server{
		Addr:         addr,
		Handler:      c.Handler(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

// Handler exposes the routed handler; used by httptest in integration tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) broadcastTrade(t *engine.Trade) {
	channel := fmt.Sprintf("trades:%s", t.ObjectID)
	s.hub.BroadcastToChannel(channel, WSTradeMessage{
		Channel:   channel,
		TradeID:   t.ID,
		ObjectID:  t.ObjectID,
		Price:     t.Price,
		Qty:       t.Qty,
		TakerSide: string(t.TakerSide),
		Timestamp: t.Timestamp,
	})
}

// ==============================
// Handlers
// ==============================

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	acc, err := s.accounts.Create(req.Name)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	acc, err := s.accounts.Get(id)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleGetAccountOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	orders, err := s.orders.OrdersByCreator(id)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.accounts.Deposit(id, req.Amount); err != nil {
		writeBusinessError(w, err)
		return
	}
	s.writeAccount(w, id)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.accounts.Withdraw(id, req.Amount); err != nil {
		writeBusinessError(w, err)
		return
	}
	s.writeAccount(w, id)
}

func (s *Server) handleDepositHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req DepositHoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.accounts.DepositHolding(id, req.ObjectID, req.Qty); err != nil {
		writeBusinessError(w, err)
		return
	}
	s.writeAccount(w, id)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.accounts.Transfer(req.From, req.To, req.Amount); err != nil {
		writeBusinessError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegisterObject(w http.ResponseWriter, r *http.Request) {
	var req RegisterObjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	fee := s.defaultFee
	if req.Fee != nil {
		fee = *req.Fee
	}

	obj, err := s.objects.Register(req.Name, fee)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.objects.List())
}

func (s *Server) handleObjectStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.objects.Get(id); err != nil {
		writeBusinessError(w, err)
		return
	}

	stats := ObjectStats{ObjectID: id}
	if avg, ok, err := s.objects.AveragePrice(id, order.Buy); err != nil {
		writeBusinessError(w, err)
		return
	} else if ok {
		stats.AvgBuyPrice = &avg
	}
	if avg, ok, err := s.objects.AveragePrice(id, order.Sell); err != nil {
		writeBusinessError(w, err)
		return
	} else if ok {
		stats.AvgSellPrice = &avg
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleObjectTrades(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	trades, err := s.engine.RecentTrades(id, limit)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	if trades == nil {
		trades = []*engine.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	placement, err := s.engine.PlaceOrder(req.AccountID, req.ObjectID, req.Amount, req.Price, order.Side(req.Side))
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	status := http.StatusCreated
	if placement.Matched != nil {
		status = http.StatusOK
	}
	writeJSON(w, status, placement)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	o, err := s.orders.Find(id)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleConsumeOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ConsumeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	fill, err := s.engine.ConsumeOrder(req.AccountID, id, req.Qty)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fill)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.engine.CancelOrder(req.AccountID, id); err != nil {
		writeBusinessError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func (s *Server) writeAccount(w http.ResponseWriter, id uuid.UUID) {
	acc, err := s.accounts.Get(id)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s: %w", name, err))
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// writeBusinessError maps the exchange error kinds onto HTTP statuses:
// invalid input 400, unknown entity 404, every other business rule 409.
func writeBusinessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exchange.ErrInvalidParameters):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, exchange.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, exchange.ErrInsufficientFunds),
		errors.Is(err, exchange.ErrInsufficientHoldings),
		errors.Is(err, exchange.ErrOrderIntersection),
		errors.Is(err, exchange.ErrOrderNotActive),
		errors.Is(err, exchange.ErrSelfTrade),
		errors.Is(err, exchange.ErrNotOrderOwner):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

// Package trade provides the HTTP handlers and business logic for executing
// BUY/SELL trades against the platform inventory and querying holdings and
// the transaction ledger.
//
// All quantities and rates use shopspring/decimal, never float64.
package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Sreeharicse/Metal-management-system/internal/api"
	"github.com/Sreeharicse/Metal-management-system/internal/auth"
	"github.com/Sreeharicse/Metal-management-system/internal/keymutex"
	"github.com/Sreeharicse/Metal-management-system/internal/metrics"
	"github.com/Sreeharicse/Metal-management-system/internal/model"
	"github.com/Sreeharicse/Metal-management-system/internal/store"
)

// Service handles trade execution. Trades on the same metal serialize under
// the per-metal lock arena; trades on distinct metals run concurrently.
type Service struct {
	store store.Store
	locks *keymutex.Arena
	wsHub *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, locks *keymutex.Arena, hub *WSHub) *Service {
	return &Service{
		store: st,
		locks: locks,
		wsHub: hub,
	}
}

// --- Request/Response types ---

// TradeRequest is the JSON body for POST /trade. UserID defaults to the
// caller; only admins may trade on behalf of another user.
type TradeRequest struct {
	UserID   string          `json:"user_id"`
	MetalID  string          `json:"metal_id"`
	Action   string          `json:"action"` // "BUY" or "SELL"
	Quantity decimal.Decimal `json:"quantity"`
}

// TradeResponse is the JSON body returned from POST /trade: the immutable
// ledger entry plus the post-trade holding and platform stock, so callers
// need not refetch.
type TradeResponse struct {
	Transaction   model.Transaction `json:"transaction"`
	Holding       decimal.Decimal   `json:"holding"`
	PlatformStock decimal.Decimal   `json:"platform_stock"`
}

// --- HTTP handlers ---

// ExecuteTrade handles POST /api/v1/trade.
//
// BUY requires an access grant for (user, metal) unless the caller is an
// admin; SELL requires only that the user holds enough units. The
// read-check-write triple runs under the metal's exclusive lock and the
// store applies it atomically, so concurrent trades on one metal serialize
// first-come-first-served and no oversell is possible.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.Caller(w, r)
	if !ok {
		return
	}

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.UserID == "" {
		req.UserID = identity.UserID
	}
	if !identity.CanActFor(req.UserID) {
		metrics.TradeRejections.WithLabelValues(metrics.ReasonUnauthorized).Inc()
		api.WriteError(w, "cannot trade for another user", http.StatusForbidden)
		return
	}
	action, err := model.ParseTradeAction(req.Action)
	if err != nil {
		api.WriteError(w, "action must be BUY or SELL", http.StatusBadRequest)
		return
	}
	if !req.Quantity.IsPositive() {
		metrics.TradeRejections.WithLabelValues(metrics.ReasonInvalidQuantity).Inc()
		api.WriteError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}
	if req.MetalID == "" {
		api.WriteError(w, "metal_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	start := time.Now()

	// Serialize against other trades and stock mutations on this metal.
	unlock, err := s.locks.Lock(ctx, req.MetalID)
	if err != nil {
		if errors.Is(err, keymutex.ErrTimeout) {
			metrics.TradeRejections.WithLabelValues(metrics.ReasonLockTimeout).Inc()
		}
		api.Error(w, err)
		return
	}
	defer unlock()

	metal, err := s.store.GetMetal(ctx, req.MetalID)
	if err != nil {
		api.Error(w, err)
		return
	}

	// --- Authorization precheck ---
	// BUY needs a grant (admin override allowed). SELL does not: divesting
	// must not be blocked by a later-revoked grant.
	if action == model.ActionBuy && !identity.IsAdmin() {
		granted, err := s.store.HasGrant(ctx, req.UserID, req.MetalID)
		if err != nil {
			api.Error(w, err)
			return
		}
		if !granted {
			metrics.TradeRejections.WithLabelValues(metrics.ReasonUnauthorized).Inc()
			api.WriteError(w, "no access grant for this metal", http.StatusForbidden)
			return
		}
	}

	// Create the immutable ledger entry with the rate snapshot; the store
	// applies the inventory/holding/ledger triple in one atomic unit.
	entry := &model.Transaction{
		ID:       uuid.New().String(),
		UserID:   req.UserID,
		MetalID:  req.MetalID,
		Action:   action,
		Quantity: req.Quantity,
		Rate:     metal.Rate,
		Executed: time.Now().UTC(),
	}

	if err := s.store.ApplyTrade(ctx, entry); err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientStock):
			metrics.TradeRejections.WithLabelValues(metrics.ReasonInsufficientStock).Inc()
		case errors.Is(err, store.ErrInsufficientHoldings):
			metrics.TradeRejections.WithLabelValues(metrics.ReasonInsufficientHoldings).Inc()
		}
		api.Error(w, err)
		return
	}

	// Post-trade snapshot for the response, still under the metal lock.
	holding, err := s.store.GetHolding(ctx, req.UserID, req.MetalID)
	if err != nil {
		api.Error(w, err)
		return
	}
	stock, err := s.store.GetStock(ctx, req.MetalID)
	if err != nil {
		api.Error(w, err)
		return
	}

	metrics.TradesTotal.WithLabelValues(string(action)).Inc()
	metrics.TradeLatency.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"transaction_id", entry.ID,
		"user", req.UserID,
		"metal", metal.Name,
		"action", string(action),
		"qty", req.Quantity.String(),
		"rate", entry.Rate.String(),
		"platform_stock", stock.String(),
	)

	// Broadcast the execution via WebSocket.
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:          "trade_executed",
			MetalID:       req.MetalID,
			MetalName:     metal.Name,
			Action:        string(action),
			Quantity:      req.Quantity.String(),
			Rate:          entry.Rate.String(),
			PlatformStock: stock.String(),
		})
	}

	api.WriteJSON(w, http.StatusOK, TradeResponse{
		Transaction:   *entry,
		Holding:       holding,
		PlatformStock: stock,
	})
}

// ListHoldings handles GET /api/v1/holdings/{userID}.
// Users may list their own holdings; admins anyone's.
func (s *Service) ListHoldings(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.Caller(w, r)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "userID")
	if !identity.CanActFor(userID) {
		api.WriteError(w, "cannot list holdings for another user", http.StatusForbidden)
		return
	}

	holdings, err := s.store.ListHoldings(r.Context(), userID)
	if err != nil {
		api.Error(w, err)
		return
	}
	if holdings == nil {
		holdings = []model.UserHolding{}
	}
	api.WriteJSON(w, http.StatusOK, holdings)
}

// ListTransactions handles GET /api/v1/transactions?user={userID|all}.
// Omitting the parameter returns the caller's own ledger entries; "all"
// returns the full ledger and is admin only.
func (s *Service) ListTransactions(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.Caller(w, r)
	if !ok {
		return
	}

	target := r.URL.Query().Get("user")
	ctx := r.Context()

	var (
		entries []model.Transaction
		err     error
	)
	switch {
	case target == "all":
		if identity.Role != auth.RoleAdmin {
			api.WriteError(w, "admin role required", http.StatusForbidden)
			return
		}
		entries, err = s.store.ListTransactions(ctx)
	case target == "" || target == identity.UserID:
		entries, err = s.store.ListTransactionsByUser(ctx, identity.UserID)
	default:
		if !identity.CanActFor(target) {
			api.WriteError(w, "cannot list transactions for another user", http.StatusForbidden)
			return
		}
		entries, err = s.store.ListTransactionsByUser(ctx, target)
	}
	if err != nil {
		api.Error(w, err)
		return
	}
	if entries == nil {
		entries = []model.Transaction{}
	}
	api.WriteJSON(w, http.StatusOK, entries)
}

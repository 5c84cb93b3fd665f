// Package catalog provides the HTTP handlers for the authoritative metal
// records and the platform inventory they carry: admin-only creation,
// editing, deletion and stock-setting, plus public listing.
package catalog

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Sreeharicse/Metal-management-system/internal/api"
	"github.com/Sreeharicse/Metal-management-system/internal/keymutex"
	"github.com/Sreeharicse/Metal-management-system/internal/metrics"
	"github.com/Sreeharicse/Metal-management-system/internal/model"
	"github.com/Sreeharicse/Metal-management-system/internal/store"
)

// Service handles catalog operations. Stock mutations and deletion take the
// per-metal lock so they serialize against in-flight trades on the same
// metal.
type Service struct {
	store store.Store
	locks *keymutex.Arena
}

// NewService creates a new catalog service.
func NewService(st store.Store, locks *keymutex.Arena) *Service {
	return &Service{store: st, locks: locks}
}

// --- Request types ---

// CreateMetalRequest is the JSON body for POST /metals.
type CreateMetalRequest struct {
	Name         string          `json:"name"`
	Rate         decimal.Decimal `json:"rate"`
	ChangePct    decimal.Decimal `json:"change_pct"`
	Type         string          `json:"type"`
	InitialStock decimal.Decimal `json:"initial_stock"` // default 0
}

// UpdateMetalRequest is the JSON body for PATCH /metals/{metalID}.
// Nil fields are left unchanged.
type UpdateMetalRequest struct {
	Name      *string          `json:"name"`
	Rate      *decimal.Decimal `json:"rate"`
	ChangePct *decimal.Decimal `json:"change_pct"`
	Type      *string          `json:"type"`
}

// SetStockRequest is the JSON body for PUT /metals/{metalID}/stock.
type SetStockRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

// --- HTTP handlers ---

// CreateMetal handles POST /api/v1/metals (admin only).
// Atomically creates the metal and its platform inventory row.
func (s *Service) CreateMetal(w http.ResponseWriter, r *http.Request) {
	if _, ok := api.AdminCaller(w, r); !ok {
		return
	}

	var req CreateMetalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		api.WriteError(w, "name is required", http.StatusBadRequest)
		return
	}
	if req.Rate.IsNegative() {
		api.WriteError(w, "rate must not be negative", http.StatusBadRequest)
		return
	}
	if req.InitialStock.IsNegative() {
		api.WriteError(w, "initial_stock must not be negative", http.StatusBadRequest)
		return
	}
	metalType, err := model.ParseMetalType(req.Type)
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	metal := &model.Metal{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Rate:      req.Rate,
		ChangePct: req.ChangePct,
		Type:      metalType,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateMetal(r.Context(), metal, req.InitialStock); err != nil {
		api.Error(w, err)
		return
	}

	metrics.ListedMetals.Inc()
	slog.Info("metal created",
		"id", metal.ID,
		"name", metal.Name,
		"rate", metal.Rate.String(),
		"initial_stock", req.InitialStock.String(),
	)

	api.WriteJSON(w, http.StatusCreated, metal)
}

// GetMetal handles GET /api/v1/metals/{metalID}.
func (s *Service) GetMetal(w http.ResponseWriter, r *http.Request) {
	metal, err := s.store.GetMetal(r.Context(), chi.URLParam(r, "metalID"))
	if err != nil {
		api.Error(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, metal)
}

// ListMetals handles GET /api/v1/metals. Returns all metals ordered by name.
func (s *Service) ListMetals(w http.ResponseWriter, r *http.Request) {
	metals, err := s.store.ListMetals(r.Context())
	if err != nil {
		api.Error(w, err)
		return
	}
	if metals == nil {
		metals = []model.Metal{}
	}
	api.WriteJSON(w, http.StatusOK, metals)
}

// UpdateMetal handles PATCH /api/v1/metals/{metalID} (admin only).
// Returns the updated metal directly; callers need not refetch.
func (s *Service) UpdateMetal(w http.ResponseWriter, r *http.Request) {
	if _, ok := api.AdminCaller(w, r); !ok {
		return
	}

	var req UpdateMetalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	metalID := chi.URLParam(r, "metalID")

	metal, err := s.store.GetMetal(ctx, metalID)
	if err != nil {
		api.Error(w, err)
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			api.WriteError(w, "name must not be empty", http.StatusBadRequest)
			return
		}
		metal.Name = *req.Name
	}
	if req.Rate != nil {
		if req.Rate.IsNegative() {
			api.WriteError(w, "rate must not be negative", http.StatusBadRequest)
			return
		}
		metal.Rate = *req.Rate
	}
	if req.ChangePct != nil {
		metal.ChangePct = *req.ChangePct
	}
	if req.Type != nil {
		metalType, err := model.ParseMetalType(*req.Type)
		if err != nil {
			api.WriteError(w, err.Error(), http.StatusBadRequest)
			return
		}
		metal.Type = metalType
	}

	if err := s.store.UpdateMetal(ctx, metal); err != nil {
		api.Error(w, err)
		return
	}

	slog.Info("metal updated", "id", metal.ID, "name", metal.Name, "rate", metal.Rate.String())
	api.WriteJSON(w, http.StatusOK, metal)
}

// DeleteMetal handles DELETE /api/v1/metals/{metalID} (admin only).
// Blocked with 409 while any user still holds units of the metal; the
// transaction ledger keeps its entries either way.
func (s *Service) DeleteMetal(w http.ResponseWriter, r *http.Request) {
	if _, ok := api.AdminCaller(w, r); !ok {
		return
	}

	ctx := r.Context()
	metalID := chi.URLParam(r, "metalID")

	unlock, err := s.locks.Lock(ctx, metalID)
	if err != nil {
		api.Error(w, err)
		return
	}
	defer unlock()

	if err := s.store.DeleteMetal(ctx, metalID); err != nil {
		api.Error(w, err)
		return
	}

	metrics.ListedMetals.Dec()
	slog.Info("metal deleted", "id", metalID)
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// SetStock handles PUT /api/v1/metals/{metalID}/stock (admin only).
// This is the one operation besides deletion allowed to break the
// conservation of platform stock plus user holdings.
func (s *Service) SetStock(w http.ResponseWriter, r *http.Request) {
	if _, ok := api.AdminCaller(w, r); !ok {
		return
	}

	var req SetStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Quantity.IsNegative() {
		api.WriteError(w, "quantity must not be negative", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	metalID := chi.URLParam(r, "metalID")

	unlock, err := s.locks.Lock(ctx, metalID)
	if err != nil {
		api.Error(w, err)
		return
	}
	defer unlock()

	if err := s.store.SetStock(ctx, metalID, req.Quantity); err != nil {
		api.Error(w, err)
		return
	}

	slog.Info("platform stock set", "metal_id", metalID, "quantity", req.Quantity.String())
	api.WriteJSON(w, http.StatusOK, model.PlatformInventory{MetalID: metalID, Quantity: req.Quantity})
}

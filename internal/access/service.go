// Package access implements the access-grant workflow: users request
// permission to trade a metal, admins approve or reject, and grants can be
// revoked later. Approval and grant insertion happen in one atomic unit so
// a resolved request never leaves the pair half-updated.
package access

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Sreeharicse/Metal-management-system/internal/api"
	"github.com/Sreeharicse/Metal-management-system/internal/model"
	"github.com/Sreeharicse/Metal-management-system/internal/store"
)

// Service handles access request and grant operations.
type Service struct {
	store store.Store
}

// NewService creates a new access service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// RequestAccessRequest is the JSON body for POST /access/requests.
// UserID defaults to the caller; only admins may request for someone else.
type RequestAccessRequest struct {
	UserID  string `json:"user_id"`
	MetalID string `json:"metal_id"`
}

// RevokeRequest is the JSON body for DELETE /access/grants.
type RevokeRequest struct {
	UserID  string `json:"user_id"`
	MetalID string `json:"metal_id"`
}

// RequestAccess handles POST /api/v1/access/requests.
// Fails 409 when the pair already holds a grant or a pending request.
func (s *Service) RequestAccess(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.Caller(w, r)
	if !ok {
		return
	}

	var req RequestAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = identity.UserID
	}
	if !identity.CanActFor(req.UserID) {
		api.WriteError(w, "cannot request access for another user", http.StatusForbidden)
		return
	}
	if req.MetalID == "" {
		api.WriteError(w, "metal_id is required", http.StatusBadRequest)
		return
	}

	request := &model.AccessRequest{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		MetalID:   req.MetalID,
		Status:    model.RequestPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateAccessRequest(r.Context(), request); err != nil {
		api.Error(w, err)
		return
	}

	slog.Info("access requested", "request_id", request.ID, "user", req.UserID, "metal_id", req.MetalID)
	api.WriteJSON(w, http.StatusCreated, request)
}

// ApproveRequest handles POST /api/v1/access/requests/{requestID}/approve
// (admin only). Fails 404 unless the request is still pending; the grant
// upsert is idempotent, so racing a directly issued grant is not an error.
func (s *Service) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	if _, ok := api.AdminCaller(w, r); !ok {
		return
	}

	requestID := chi.URLParam(r, "requestID")
	request, err := s.store.ResolveAccessRequest(r.Context(), requestID, true)
	if err != nil {
		api.Error(w, err)
		return
	}

	slog.Info("access request approved",
		"request_id", requestID,
		"user", request.UserID,
		"metal_id", request.MetalID,
	)
	api.WriteJSON(w, http.StatusOK, request)
}

// RejectRequest handles POST /api/v1/access/requests/{requestID}/reject
// (admin only). Fails 404 unless the request is still pending.
func (s *Service) RejectRequest(w http.ResponseWriter, r *http.Request) {
	if _, ok := api.AdminCaller(w, r); !ok {
		return
	}

	requestID := chi.URLParam(r, "requestID")
	request, err := s.store.ResolveAccessRequest(r.Context(), requestID, false)
	if err != nil {
		api.Error(w, err)
		return
	}

	slog.Info("access request rejected",
		"request_id", requestID,
		"user", request.UserID,
		"metal_id", request.MetalID,
	)
	api.WriteJSON(w, http.StatusOK, request)
}

// ListPendingRequests handles GET /api/v1/access/requests (admin only).
func (s *Service) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	if _, ok := api.AdminCaller(w, r); !ok {
		return
	}

	requests, err := s.store.ListPendingRequests(r.Context())
	if err != nil {
		api.Error(w, err)
		return
	}
	if requests == nil {
		requests = []model.AccessRequest{}
	}
	api.WriteJSON(w, http.StatusOK, requests)
}

// RevokeAccess handles DELETE /api/v1/access/grants (admin only).
// Removing an absent grant is a no-op. Existing holdings are untouched: a
// revoked user keeps bought units and may still sell them.
func (s *Service) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	if _, ok := api.AdminCaller(w, r); !ok {
		return
	}

	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.MetalID == "" {
		api.WriteError(w, "user_id and metal_id are required", http.StatusBadRequest)
		return
	}

	if err := s.store.DeleteGrant(r.Context(), req.UserID, req.MetalID); err != nil {
		api.Error(w, err)
		return
	}

	slog.Info("access revoked", "user", req.UserID, "metal_id", req.MetalID)
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// ListGrants handles GET /api/v1/access/grants/{userID}. Users may list
// their own grants; admins anyone's.
func (s *Service) ListGrants(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.Caller(w, r)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "userID")
	if !identity.CanActFor(userID) {
		api.WriteError(w, "cannot list grants for another user", http.StatusForbidden)
		return
	}

	grants, err := s.store.ListGrants(r.Context(), userID)
	if err != nil {
		api.Error(w, err)
		return
	}
	if grants == nil {
		grants = []model.AccessGrant{}
	}
	api.WriteJSON(w, http.StatusOK, grants)
}

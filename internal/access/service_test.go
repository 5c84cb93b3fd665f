package access_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Sreeharicse/Metal-management-system/internal/access"
	"github.com/Sreeharicse/Metal-management-system/internal/auth"
	"github.com/Sreeharicse/Metal-management-system/internal/model"
	"github.com/Sreeharicse/Metal-management-system/internal/store"
)

const testSecret = "test-secret"

func newTestEnv(t *testing.T) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := access.NewService(ms)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(testSecret))
		r.Post("/api/v1/access/requests", svc.RequestAccess)
		r.Get("/api/v1/access/requests", svc.ListPendingRequests)
		r.Post("/api/v1/access/requests/{requestID}/approve", svc.ApproveRequest)
		r.Post("/api/v1/access/requests/{requestID}/reject", svc.RejectRequest)
		r.Delete("/api/v1/access/grants", svc.RevokeAccess)
		r.Get("/api/v1/access/grants/{userID}", svc.ListGrants)
	})
	return ms, r
}

func token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	tok, err := auth.MintToken(userID, role, testSecret, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	return tok
}

func seedMetal(t *testing.T, ms *store.MemoryStore, name string) *model.Metal {
	t.Helper()
	metal := &model.Metal{
		ID:        "test-metal-" + name,
		Name:      name,
		Rate:      decimal.NewFromInt(10),
		Type:      model.MetalIndustrial,
		CreatedAt: time.Now().UTC(),
	}
	if err := ms.CreateMetal(context.Background(), metal, decimal.Zero); err != nil {
		t.Fatalf("failed to seed metal: %v", err)
	}
	return metal
}

func do(t *testing.T, router chi.Router, bearer, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func requestAccess(t *testing.T, router chi.Router, bearer, metalID string) *model.AccessRequest {
	t.Helper()
	w := do(t, router, bearer, "POST", "/api/v1/access/requests", access.RequestAccessRequest{MetalID: metalID})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating request, got %d: %s", w.Code, w.Body.String())
	}
	var req model.AccessRequest
	json.Unmarshal(w.Body.Bytes(), &req)
	return &req
}

func TestAccessRequestLifecycle_Approve(t *testing.T) {
	ms, router := newTestEnv(t)
	metal := seedMetal(t, ms, "Gold")
	userTok := token(t, "user1", auth.RoleUser)
	adminTok := token(t, "admin1", auth.RoleAdmin)

	req := requestAccess(t, router, userTok, metal.ID)
	if req.Status != model.RequestPending {
		t.Fatalf("fresh request should be pending, got %s", req.Status)
	}

	// Admin sees it in the queue.
	w := do(t, router, adminTok, "GET", "/api/v1/access/requests", nil)
	var pending []model.AccessRequest
	json.Unmarshal(w.Body.Bytes(), &pending)
	if len(pending) != 1 || pending[0].ID != req.ID {
		t.Fatalf("expected the request in the pending queue, got %+v", pending)
	}

	w = do(t, router, adminTok, "POST", "/api/v1/access/requests/"+req.ID+"/approve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 approving, got %d: %s", w.Code, w.Body.String())
	}
	var resolved model.AccessRequest
	json.Unmarshal(w.Body.Bytes(), &resolved)
	if resolved.Status != model.RequestApproved {
		t.Errorf("expected approved status, got %s", resolved.Status)
	}

	granted, err := ms.HasGrant(context.Background(), "user1", metal.ID)
	if err != nil || !granted {
		t.Errorf("approval must create the grant (granted=%v, err=%v)", granted, err)
	}

	// Terminal requests cannot be resolved again.
	w = do(t, router, adminTok, "POST", "/api/v1/access/requests/"+req.ID+"/approve", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("double approve should 404, got %d", w.Code)
	}
}

func TestAccessRequestLifecycle_Reject(t *testing.T) {
	ms, router := newTestEnv(t)
	metal := seedMetal(t, ms, "Gold")
	userTok := token(t, "user1", auth.RoleUser)
	adminTok := token(t, "admin1", auth.RoleAdmin)

	req := requestAccess(t, router, userTok, metal.ID)

	w := do(t, router, adminTok, "POST", "/api/v1/access/requests/"+req.ID+"/reject", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 rejecting, got %d", w.Code)
	}

	granted, _ := ms.HasGrant(context.Background(), "user1", metal.ID)
	if granted {
		t.Error("rejection must not create a grant")
	}

	// A rejected request does not block a fresh one.
	requestAccess(t, router, userTok, metal.ID)
}

func TestRequestAccess_DuplicatePending(t *testing.T) {
	ms, router := newTestEnv(t)
	metal := seedMetal(t, ms, "Gold")
	userTok := token(t, "user1", auth.RoleUser)

	requestAccess(t, router, userTok, metal.ID)
	w := do(t, router, userTok, "POST", "/api/v1/access/requests", access.RequestAccessRequest{MetalID: metal.ID})
	if w.Code != http.StatusConflict {
		t.Fatalf("second pending request should 409, got %d", w.Code)
	}
}

func TestRequestAccess_AlreadyGranted(t *testing.T) {
	ms, router := newTestEnv(t)
	metal := seedMetal(t, ms, "Gold")
	userTok := token(t, "user1", auth.RoleUser)

	if err := ms.UpsertGrant(context.Background(), "user1", metal.ID); err != nil {
		t.Fatalf("failed to seed grant: %v", err)
	}

	w := do(t, router, userTok, "POST", "/api/v1/access/requests", access.RequestAccessRequest{MetalID: metal.ID})
	if w.Code != http.StatusConflict {
		t.Fatalf("request against an existing grant should 409, got %d", w.Code)
	}
}

func TestRequestAccess_UnknownMetal(t *testing.T) {
	_, router := newTestEnv(t)
	w := do(t, router, token(t, "user1", auth.RoleUser), "POST", "/api/v1/access/requests",
		access.RequestAccessRequest{MetalID: "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown metal, got %d", w.Code)
	}
}

func TestRequestAccess_ForAnotherUserForbidden(t *testing.T) {
	ms, router := newTestEnv(t)
	metal := seedMetal(t, ms, "Gold")

	w := do(t, router, token(t, "user1", auth.RoleUser), "POST", "/api/v1/access/requests",
		access.RequestAccessRequest{UserID: "user2", MetalID: metal.ID})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 requesting for another user, got %d", w.Code)
	}
}

func TestResolve_AdminOnly(t *testing.T) {
	ms, router := newTestEnv(t)
	metal := seedMetal(t, ms, "Gold")
	userTok := token(t, "user1", auth.RoleUser)

	req := requestAccess(t, router, userTok, metal.ID)

	w := do(t, router, userTok, "POST", "/api/v1/access/requests/"+req.ID+"/approve", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("user approve should 403, got %d", w.Code)
	}
	w = do(t, router, userTok, "GET", "/api/v1/access/requests", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("user queue listing should 403, got %d", w.Code)
	}
}

func TestRevokeAccess(t *testing.T) {
	ms, router := newTestEnv(t)
	metal := seedMetal(t, ms, "Gold")
	adminTok := token(t, "admin1", auth.RoleAdmin)

	if err := ms.UpsertGrant(context.Background(), "user1", metal.ID); err != nil {
		t.Fatalf("failed to seed grant: %v", err)
	}

	w := do(t, router, adminTok, "DELETE", "/api/v1/access/grants", access.RevokeRequest{
		UserID: "user1", MetalID: metal.ID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 revoking, got %d", w.Code)
	}

	granted, _ := ms.HasGrant(context.Background(), "user1", metal.ID)
	if granted {
		t.Error("grant should be gone after revocation")
	}

	// Revoking an absent grant is a no-op, not an error.
	w = do(t, router, adminTok, "DELETE", "/api/v1/access/grants", access.RevokeRequest{
		UserID: "user1", MetalID: metal.ID,
	})
	if w.Code != http.StatusOK {
		t.Errorf("revoking an absent grant should still 200, got %d", w.Code)
	}
}

func TestListGrants(t *testing.T) {
	ms, router := newTestEnv(t)
	metal := seedMetal(t, ms, "Gold")

	if err := ms.UpsertGrant(context.Background(), "user1", metal.ID); err != nil {
		t.Fatalf("failed to seed grant: %v", err)
	}

	w := do(t, router, token(t, "user1", auth.RoleUser), "GET", "/api/v1/access/grants/user1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var grants []model.AccessGrant
	json.Unmarshal(w.Body.Bytes(), &grants)
	if len(grants) != 1 || grants[0].MetalID != metal.ID {
		t.Fatalf("expected one grant for the metal, got %+v", grants)
	}

	w = do(t, router, token(t, "user2", auth.RoleUser), "GET", "/api/v1/access/grants/user1", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 reading another user's grants, got %d", w.Code)
	}

	w = do(t, router, token(t, "admin1", auth.RoleAdmin), "GET", "/api/v1/access/grants/user1", nil)
	if w.Code != http.StatusOK {
		t.Errorf("admin read should succeed, got %d", w.Code)
	}
}

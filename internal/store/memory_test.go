package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sreeharicse/Metal-management-system/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func seedMetal(t *testing.T, ms *MemoryStore, name string, stock float64) *model.Metal {
	t.Helper()
	metal := &model.Metal{
		ID:        "metal-" + name,
		Name:      name,
		Rate:      d(10),
		Type:      model.MetalOther,
		CreatedAt: time.Now().UTC(),
	}
	if err := ms.CreateMetal(context.Background(), metal, d(stock)); err != nil {
		t.Fatalf("failed to seed metal: %v", err)
	}
	return metal
}

func trade(userID, metalID string, action model.TradeAction, qty float64) *model.Transaction {
	return &model.Transaction{
		ID:       userID + "-" + metalID + "-" + string(action),
		UserID:   userID,
		MetalID:  metalID,
		Action:   action,
		Quantity: d(qty),
		Rate:     d(10),
		Executed: time.Now().UTC(),
	}
}

func TestCreateMetal_DuplicateName(t *testing.T) {
	ms := NewMemoryStore()
	seedMetal(t, ms, "Gold", 0)

	dup := &model.Metal{ID: "other-id", Name: "Gold", Rate: d(1), Type: model.MetalOther}
	if err := ms.CreateMetal(context.Background(), dup, decimal.Zero); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
	}
}

func TestUpsertGrant_Idempotent(t *testing.T) {
	ms := NewMemoryStore()
	metal := seedMetal(t, ms, "Gold", 0)
	ctx := context.Background()

	if err := ms.UpsertGrant(ctx, "user1", metal.ID); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if err := ms.UpsertGrant(ctx, "user1", metal.ID); err != nil {
		t.Fatalf("second upsert should be a no-op, got %v", err)
	}

	grants, err := ms.ListGrants(ctx, "user1")
	if err != nil {
		t.Fatalf("list grants failed: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("expected exactly one grant, got %d", len(grants))
	}
}

func TestCreateAccessRequest_PendingUniqueness(t *testing.T) {
	ms := NewMemoryStore()
	metal := seedMetal(t, ms, "Gold", 0)
	ctx := context.Background()

	first := &model.AccessRequest{
		ID: "r1", UserID: "user1", MetalID: metal.ID,
		Status: model.RequestPending, CreatedAt: time.Now().UTC(),
	}
	if err := ms.CreateAccessRequest(ctx, first); err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	second := &model.AccessRequest{
		ID: "r2", UserID: "user1", MetalID: metal.ID,
		Status: model.RequestPending, CreatedAt: time.Now().UTC(),
	}
	if err := ms.CreateAccessRequest(ctx, second); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate pending request, got %v", err)
	}

	// Resolution frees the pair for a new request.
	if _, err := ms.ResolveAccessRequest(ctx, "r1", false); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if err := ms.CreateAccessRequest(ctx, second); err != nil {
		t.Fatalf("request after rejection should succeed, got %v", err)
	}
}

func TestCreateAccessRequest_GrantBlocks(t *testing.T) {
	ms := NewMemoryStore()
	metal := seedMetal(t, ms, "Gold", 0)
	ctx := context.Background()

	if err := ms.UpsertGrant(ctx, "user1", metal.ID); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	req := &model.AccessRequest{
		ID: "r1", UserID: "user1", MetalID: metal.ID,
		Status: model.RequestPending, CreatedAt: time.Now().UTC(),
	}
	if err := ms.CreateAccessRequest(ctx, req); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict against existing grant, got %v", err)
	}
}

func TestResolveAccessRequest_ApproveGrants(t *testing.T) {
	ms := NewMemoryStore()
	metal := seedMetal(t, ms, "Gold", 0)
	ctx := context.Background()

	req := &model.AccessRequest{
		ID: "r1", UserID: "user1", MetalID: metal.ID,
		Status: model.RequestPending, CreatedAt: time.Now().UTC(),
	}
	if err := ms.CreateAccessRequest(ctx, req); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	resolved, err := ms.ResolveAccessRequest(ctx, "r1", true)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if resolved.Status != model.RequestApproved {
		t.Errorf("expected approved, got %s", resolved.Status)
	}

	granted, _ := ms.HasGrant(ctx, "user1", metal.ID)
	if !granted {
		t.Error("approval must upsert the grant")
	}

	if _, err := ms.ResolveAccessRequest(ctx, "r1", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("resolving a terminal request should ErrNotFound, got %v", err)
	}
}

func TestApplyTrade_Conservation(t *testing.T) {
	ms := NewMemoryStore()
	metal := seedMetal(t, ms, "Gold", 100)
	ctx := context.Background()

	if err := ms.ApplyTrade(ctx, trade("user1", metal.ID, model.ActionBuy, 30)); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if err := ms.ApplyTrade(ctx, trade("user2", metal.ID, model.ActionBuy, 20)); err != nil {
		t.Fatalf("second buy failed: %v", err)
	}

	stock, _ := ms.GetStock(ctx, metal.ID)
	h1, _ := ms.GetHolding(ctx, "user1", metal.ID)
	h2, _ := ms.GetHolding(ctx, "user2", metal.ID)
	if !stock.Add(h1).Add(h2).Equal(d(100)) {
		t.Fatalf("conservation violated: stock %s + %s + %s != 100", stock, h1, h2)
	}
}

func TestApplyTrade_InsufficientStock(t *testing.T) {
	ms := NewMemoryStore()
	metal := seedMetal(t, ms, "Gold", 10)
	ctx := context.Background()

	err := ms.ApplyTrade(ctx, trade("user1", metal.ID, model.ActionBuy, 11))
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// Refused trades leave nothing behind.
	stock, _ := ms.GetStock(ctx, metal.ID)
	if !stock.Equal(d(10)) {
		t.Errorf("stock should be unchanged, got %s", stock)
	}
	entries, _ := ms.ListTransactionsByUser(ctx, "user1")
	if len(entries) != 0 {
		t.Errorf("no ledger entry should exist, got %d", len(entries))
	}
}

func TestApplyTrade_InsufficientHoldings(t *testing.T) {
	ms := NewMemoryStore()
	metal := seedMetal(t, ms, "Gold", 100)
	ctx := context.Background()

	if err := ms.ApplyTrade(ctx, trade("user1", metal.ID, model.ActionBuy, 5)); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	err := ms.ApplyTrade(ctx, trade("user1", metal.ID, model.ActionSell, 6))
	if !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("expected ErrInsufficientHoldings, got %v", err)
	}
}

func TestDeleteMetal_BlockedThenAllowed(t *testing.T) {
	ms := NewMemoryStore()
	metal := seedMetal(t, ms, "Gold", 100)
	ctx := context.Background()

	if err := ms.ApplyTrade(ctx, trade("user1", metal.ID, model.ActionBuy, 10)); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	if err := ms.DeleteMetal(ctx, metal.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("deletion with outstanding holdings should conflict, got %v", err)
	}

	if err := ms.ApplyTrade(ctx, trade("user1", metal.ID, model.ActionSell, 10)); err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if err := ms.DeleteMetal(ctx, metal.ID); err != nil {
		t.Fatalf("deletion after divestment failed: %v", err)
	}

	// The ledger outlives the metal.
	entries, _ := ms.ListTransactionsByUser(ctx, "user1")
	if len(entries) != 2 {
		t.Errorf("ledger must survive metal deletion, got %d entries", len(entries))
	}

	// Grants and requests for the metal are gone.
	granted, _ := ms.HasGrant(ctx, "user1", metal.ID)
	if granted {
		t.Error("grants must not survive metal deletion")
	}
}

func TestGetHolding_ZeroWhenAbsent(t *testing.T) {
	ms := NewMemoryStore()
	metal := seedMetal(t, ms, "Gold", 0)

	h, err := ms.GetHolding(context.Background(), "nobody", metal.ID)
	if err != nil {
		t.Fatalf("absent holding should not error: %v", err)
	}
	if !h.IsZero() {
		t.Errorf("absent holding should be zero, got %s", h)
	}
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Sreeharicse/Metal-management-system/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for metal records and holding lists. Writes go to the primary store
// and invalidate the cache; reads check Redis first then fall back to the
// primary. Inventory quantities are never cached: trades need the primary's
// answer.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Catalog (read-through on single metals) ---

func (s *CachedStore) CreateMetal(ctx context.Context, m *model.Metal, initialStock decimal.Decimal) error {
	if err := s.primary.CreateMetal(ctx, m, initialStock); err != nil {
		return err
	}
	s.cacheMetal(ctx, m)
	return nil
}

func (s *CachedStore) GetMetal(ctx context.Context, id string) (*model.Metal, error) {
	data, err := s.rdb.Get(ctx, metalKey(id)).Bytes()
	if err == nil {
		var m model.Metal
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	// Cache miss: read from primary.
	m, err := s.primary.GetMetal(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMetal(ctx, m)
	return m, nil
}

func (s *CachedStore) ListMetals(ctx context.Context) ([]model.Metal, error) {
	return s.primary.ListMetals(ctx)
}

func (s *CachedStore) UpdateMetal(ctx context.Context, m *model.Metal) error {
	if err := s.primary.UpdateMetal(ctx, m); err != nil {
		return err
	}
	// Invalidate; next read will re-populate.
	s.rdb.Del(ctx, metalKey(m.ID))
	return nil
}

func (s *CachedStore) DeleteMetal(ctx context.Context, id string) error {
	if err := s.primary.DeleteMetal(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, metalKey(id))
	return nil
}

// --- Platform inventory (never cached) ---

func (s *CachedStore) GetStock(ctx context.Context, metalID string) (decimal.Decimal, error) {
	return s.primary.GetStock(ctx, metalID)
}

func (s *CachedStore) SetStock(ctx context.Context, metalID string, quantity decimal.Decimal) error {
	return s.primary.SetStock(ctx, metalID, quantity)
}

// --- User holdings (read-through on the per-user list) ---

func (s *CachedStore) GetHolding(ctx context.Context, userID, metalID string) (decimal.Decimal, error) {
	return s.primary.GetHolding(ctx, userID, metalID)
}

func (s *CachedStore) ListHoldings(ctx context.Context, userID string) ([]model.UserHolding, error) {
	data, err := s.rdb.Get(ctx, holdingsKey(userID)).Bytes()
	if err == nil {
		var holdings []model.UserHolding
		if json.Unmarshal(data, &holdings) == nil {
			return holdings, nil
		}
	}

	holdings, err := s.primary.ListHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(holdings); err == nil {
		s.rdb.Set(ctx, holdingsKey(userID), data, s.ttl)
	}
	return holdings, nil
}

// --- Access grants / requests (passthrough, low contention) ---

func (s *CachedStore) UpsertGrant(ctx context.Context, userID, metalID string) error {
	return s.primary.UpsertGrant(ctx, userID, metalID)
}

func (s *CachedStore) DeleteGrant(ctx context.Context, userID, metalID string) error {
	return s.primary.DeleteGrant(ctx, userID, metalID)
}

func (s *CachedStore) HasGrant(ctx context.Context, userID, metalID string) (bool, error) {
	return s.primary.HasGrant(ctx, userID, metalID)
}

func (s *CachedStore) ListGrants(ctx context.Context, userID string) ([]model.AccessGrant, error) {
	return s.primary.ListGrants(ctx, userID)
}

func (s *CachedStore) CreateAccessRequest(ctx context.Context, r *model.AccessRequest) error {
	return s.primary.CreateAccessRequest(ctx, r)
}

func (s *CachedStore) ResolveAccessRequest(ctx context.Context, id string, approve bool) (*model.AccessRequest, error) {
	return s.primary.ResolveAccessRequest(ctx, id, approve)
}

func (s *CachedStore) ListPendingRequests(ctx context.Context) ([]model.AccessRequest, error) {
	return s.primary.ListPendingRequests(ctx)
}

// --- Trades ---

func (s *CachedStore) ApplyTrade(ctx context.Context, t *model.Transaction) error {
	if err := s.primary.ApplyTrade(ctx, t); err != nil {
		return err
	}
	// Invalidate the holdings cache for this user.
	s.rdb.Del(ctx, holdingsKey(t.UserID))
	return nil
}

func (s *CachedStore) ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.primary.ListTransactionsByUser(ctx, userID)
}

func (s *CachedStore) ListTransactions(ctx context.Context) ([]model.Transaction, error) {
	return s.primary.ListTransactions(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMetal(ctx context.Context, m *model.Metal) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, metalKey(m.ID), data, s.ttl)
	}
}

func metalKey(id string) string       { return fmt.Sprintf("metal:%s", id) }
func holdingsKey(uid string) string   { return fmt.Sprintf("holdings:%s", uid) }

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sreeharicse/Metal-management-system/internal/model"
)

func nowUTC() time.Time { return time.Now().UTC() }

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	metals   map[string]*model.Metal
	stock    map[string]decimal.Decimal             // metalID → platform quantity
	holdings map[string]map[string]decimal.Decimal  // userID → metalID → quantity
	grants   map[string]map[string]model.AccessGrant // userID → metalID → grant
	requests map[string]*model.AccessRequest
	ledger   []model.Transaction
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		metals:   make(map[string]*model.Metal),
		stock:    make(map[string]decimal.Decimal),
		holdings: make(map[string]map[string]decimal.Decimal),
		grants:   make(map[string]map[string]model.AccessGrant),
		requests: make(map[string]*model.AccessRequest),
	}
}

// --- Catalog ---

func (s *MemoryStore) CreateMetal(_ context.Context, m *model.Metal, initialStock decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.metals {
		if existing.Name == m.Name {
			return ErrConflict
		}
	}

	// Store a copy to avoid external mutation.
	cp := *m
	s.metals[m.ID] = &cp
	s.stock[m.ID] = initialStock
	return nil
}

func (s *MemoryStore) GetMetal(_ context.Context, id string) (*model.Metal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.metals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMetals(_ context.Context) ([]model.Metal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metals := make([]model.Metal, 0, len(s.metals))
	for _, m := range s.metals {
		metals = append(metals, *m)
	}
	sort.Slice(metals, func(i, j int) bool { return metals[i].Name < metals[j].Name })
	return metals, nil
}

func (s *MemoryStore) UpdateMetal(_ context.Context, m *model.Metal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.metals[m.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range s.metals {
		if id != m.ID && existing.Name == m.Name {
			return ErrConflict
		}
	}
	cp := *m
	s.metals[m.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteMetal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.metals[id]; !ok {
		return ErrNotFound
	}
	for _, byMetal := range s.holdings {
		if qty, ok := byMetal[id]; ok && qty.IsPositive() {
			return ErrConflict
		}
	}

	delete(s.metals, id)
	delete(s.stock, id)
	for _, byMetal := range s.holdings {
		delete(byMetal, id)
	}
	for _, byMetal := range s.grants {
		delete(byMetal, id)
	}
	for reqID, r := range s.requests {
		if r.MetalID == id {
			delete(s.requests, reqID)
		}
	}
	// Ledger entries are retained: the transaction history survives the metal.
	return nil
}

// --- Platform inventory ---

func (s *MemoryStore) GetStock(_ context.Context, metalID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qty, ok := s.stock[metalID]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	return qty, nil
}

func (s *MemoryStore) SetStock(_ context.Context, metalID string, quantity decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.metals[metalID]; !ok {
		return ErrNotFound
	}
	s.stock[metalID] = quantity
	return nil
}

// --- User holdings ---

func (s *MemoryStore) GetHolding(_ context.Context, userID, metalID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.holdings[userID][metalID], nil
}

func (s *MemoryStore) ListHoldings(_ context.Context, userID string) ([]model.UserHolding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.UserHolding
	for metalID, qty := range s.holdings[userID] {
		if qty.IsZero() {
			continue
		}
		result = append(result, model.UserHolding{UserID: userID, MetalID: metalID, Quantity: qty})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MetalID < result[j].MetalID })
	return result, nil
}

// --- Access grants ---

func (s *MemoryStore) UpsertGrant(_ context.Context, userID, metalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertGrantLocked(userID, metalID)
	return nil
}

func (s *MemoryStore) upsertGrantLocked(userID, metalID string) {
	byMetal, ok := s.grants[userID]
	if !ok {
		byMetal = make(map[string]model.AccessGrant)
		s.grants[userID] = byMetal
	}
	if _, exists := byMetal[metalID]; exists {
		return // idempotent
	}
	byMetal[metalID] = model.AccessGrant{UserID: userID, MetalID: metalID, GrantedAt: nowUTC()}
}

func (s *MemoryStore) DeleteGrant(_ context.Context, userID, metalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.grants[userID], metalID)
	return nil
}

func (s *MemoryStore) HasGrant(_ context.Context, userID, metalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.grants[userID][metalID]
	return ok, nil
}

func (s *MemoryStore) ListGrants(_ context.Context, userID string) ([]model.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.AccessGrant
	for _, g := range s.grants[userID] {
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MetalID < result[j].MetalID })
	return result, nil
}

// --- Access requests ---

func (s *MemoryStore) CreateAccessRequest(_ context.Context, r *model.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.metals[r.MetalID]; !ok {
		return ErrNotFound
	}
	if _, granted := s.grants[r.UserID][r.MetalID]; granted {
		return ErrConflict
	}
	for _, existing := range s.requests {
		if existing.UserID == r.UserID && existing.MetalID == r.MetalID &&
			existing.Status == model.RequestPending {
			return ErrConflict
		}
	}

	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

func (s *MemoryStore) ResolveAccessRequest(_ context.Context, id string, approve bool) (*model.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok || r.Status != model.RequestPending {
		return nil, ErrNotFound
	}

	if approve {
		r.Status = model.RequestApproved
		s.upsertGrantLocked(r.UserID, r.MetalID)
	} else {
		r.Status = model.RequestRejected
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListPendingRequests(_ context.Context) ([]model.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.AccessRequest
	for _, r := range s.requests {
		if r.Status == model.RequestPending {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- Trades / immutable ledger ---

func (s *MemoryStore) ApplyTrade(_ context.Context, t *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stock, ok := s.stock[t.MetalID]
	if !ok {
		return ErrNotFound
	}
	holding := s.holdings[t.UserID][t.MetalID]

	switch t.Action {
	case model.ActionBuy:
		if stock.LessThan(t.Quantity) {
			return ErrInsufficientStock
		}
		s.stock[t.MetalID] = stock.Sub(t.Quantity)
		s.setHoldingLocked(t.UserID, t.MetalID, holding.Add(t.Quantity))
	case model.ActionSell:
		if holding.LessThan(t.Quantity) {
			return ErrInsufficientHoldings
		}
		s.setHoldingLocked(t.UserID, t.MetalID, holding.Sub(t.Quantity))
		s.stock[t.MetalID] = stock.Add(t.Quantity)
	}

	s.ledger = append(s.ledger, *t)
	return nil
}

func (s *MemoryStore) setHoldingLocked(userID, metalID string, qty decimal.Decimal) {
	if qty.IsZero() {
		delete(s.holdings[userID], metalID)
		return
	}
	byMetal, ok := s.holdings[userID]
	if !ok {
		byMetal = make(map[string]decimal.Decimal)
		s.holdings[userID] = byMetal
	}
	byMetal[metalID] = qty
}

func (s *MemoryStore) ListTransactionsByUser(_ context.Context, userID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if s.ledger[i].UserID == userID {
			result = append(result, s.ledger[i])
		}
	}
	return result, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Transaction, 0, len(s.ledger))
	for i := len(s.ledger) - 1; i >= 0; i-- {
		result = append(result, s.ledger[i])
	}
	return result, nil
}

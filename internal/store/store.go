// Package store defines the persistence interface for the metal management
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Sreeharicse/Metal-management-system/internal/model"
)

var (
	// ErrNotFound is returned when a referenced entity is absent or an
	// access request is already terminal.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned for duplicate names, duplicate pending
	// requests, requests against an existing grant, and metal deletion
	// blocked by outstanding holdings.
	ErrConflict = errors.New("store: conflict")

	// ErrInsufficientStock is returned when a BUY exceeds the platform
	// inventory for the metal. No partial fill occurs.
	ErrInsufficientStock = errors.New("store: insufficient platform stock")

	// ErrInsufficientHoldings is returned when a SELL exceeds the user's
	// holding for the metal.
	ErrInsufficientHoldings = errors.New("store: insufficient holdings")
)

// Store is the persistence interface. Multi-row mutations (metal creation,
// trade application, request resolution) are atomic within each
// implementation: either every write lands or none do.
type Store interface {
	// --- Catalog ---

	// CreateMetal persists a new metal together with its platform
	// inventory row. Returns ErrConflict if the name is taken.
	CreateMetal(ctx context.Context, m *model.Metal, initialStock decimal.Decimal) error

	// GetMetal retrieves a metal by its ID.
	GetMetal(ctx context.Context, id string) (*model.Metal, error)

	// ListMetals returns all metals ordered by name.
	ListMetals(ctx context.Context) ([]model.Metal, error)

	// UpdateMetal overwrites the mutable fields of a metal.
	// Returns ErrConflict if the new name collides with another metal.
	UpdateMetal(ctx context.Context, m *model.Metal) error

	// DeleteMetal removes a metal, its inventory row, its grants and its
	// requests. Returns ErrConflict while any non-zero holding exists.
	// Ledger entries referencing the metal are retained.
	DeleteMetal(ctx context.Context, id string) error

	// --- Platform inventory ---

	// GetStock returns the platform-owned quantity for a metal.
	GetStock(ctx context.Context, metalID string) (decimal.Decimal, error)

	// SetStock overwrites the platform-owned quantity for a metal.
	SetStock(ctx context.Context, metalID string, quantity decimal.Decimal) error

	// --- User holdings ---

	// GetHolding returns the user's quantity for a metal; zero when the
	// user holds none.
	GetHolding(ctx context.Context, userID, metalID string) (decimal.Decimal, error)

	// ListHoldings returns all non-zero holdings for a user.
	ListHoldings(ctx context.Context, userID string) ([]model.UserHolding, error)

	// --- Access grants ---

	// UpsertGrant records a grant for (user, metal). Idempotent: a
	// pre-existing grant is a no-op, not an error.
	UpsertGrant(ctx context.Context, userID, metalID string) error

	// DeleteGrant removes a grant if present; no-op if absent.
	DeleteGrant(ctx context.Context, userID, metalID string) error

	// HasGrant reports whether (user, metal) holds a grant.
	HasGrant(ctx context.Context, userID, metalID string) (bool, error)

	// ListGrants returns all grants for a user.
	ListGrants(ctx context.Context, userID string) ([]model.AccessGrant, error)

	// --- Access requests ---

	// CreateAccessRequest records a pending request. Returns ErrConflict
	// if a grant or another pending request already exists for the pair,
	// and ErrNotFound if the metal does not exist.
	CreateAccessRequest(ctx context.Context, r *model.AccessRequest) error

	// ResolveAccessRequest transitions a pending request to approved or
	// rejected. Approval also upserts the grant in the same atomic unit.
	// Returns ErrNotFound unless the request exists and is pending.
	ResolveAccessRequest(ctx context.Context, id string, approve bool) (*model.AccessRequest, error)

	// ListPendingRequests returns all pending requests, oldest first.
	ListPendingRequests(ctx context.Context) ([]model.AccessRequest, error)

	// --- Trades / immutable ledger ---

	// ApplyTrade atomically applies the inventory and holding deltas for
	// a validated trade and appends the ledger entry. BUY moves quantity
	// from platform inventory to the user's holding; SELL moves it back
	// and deletes the holding row when it reaches zero. Returns
	// ErrInsufficientStock or ErrInsufficientHoldings without mutating
	// anything when the source side cannot cover the quantity.
	ApplyTrade(ctx context.Context, t *model.Transaction) error

	// ListTransactionsByUser returns a user's ledger entries, newest first.
	ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error)

	// ListTransactions returns the full ledger, newest first.
	ListTransactions(ctx context.Context) ([]model.Transaction, error)
}

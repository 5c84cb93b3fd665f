package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Sreeharicse/Metal-management-system/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All quantities and rates are stored as NUMERIC for exact decimal precision.
//
// Expected schema:
//
//	CREATE TABLE metals (
//	    id         UUID PRIMARY KEY,
//	    name       TEXT NOT NULL UNIQUE,
//	    rate       NUMERIC NOT NULL CHECK (rate >= 0),
//	    change_pct NUMERIC NOT NULL DEFAULT 0,
//	    type       TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE platform_inventory (
//	    metal_id UUID PRIMARY KEY REFERENCES metals ON DELETE CASCADE,
//	    quantity NUMERIC NOT NULL CHECK (quantity >= 0)
//	);
//	CREATE TABLE user_holdings (
//	    user_id  TEXT NOT NULL,
//	    metal_id UUID NOT NULL,
//	    quantity NUMERIC NOT NULL CHECK (quantity >= 0),
//	    PRIMARY KEY (user_id, metal_id)
//	);
//	CREATE TABLE access_grants (
//	    user_id    TEXT NOT NULL,
//	    metal_id   UUID NOT NULL,
//	    granted_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (user_id, metal_id)
//	);
//	CREATE TABLE access_requests (
//	    id         UUID PRIMARY KEY,
//	    user_id    TEXT NOT NULL,
//	    metal_id   UUID NOT NULL,
//	    status     TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE UNIQUE INDEX access_requests_pending_unique
//	    ON access_requests (user_id, metal_id) WHERE status = 'pending';
//	CREATE TABLE transactions (
//	    id          UUID PRIMARY KEY,
//	    user_id     TEXT NOT NULL,
//	    metal_id    UUID NOT NULL,
//	    action      TEXT NOT NULL,
//	    quantity    NUMERIC NOT NULL CHECK (quantity > 0),
//	    rate        NUMERIC NOT NULL,
//	    executed_at TIMESTAMPTZ NOT NULL
//	);
//
// transactions has no foreign key on metal_id: the ledger outlives metals.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Catalog ---

func (s *PostgresStore) CreateMetal(ctx context.Context, m *model.Metal, initialStock decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO metals (id, name, rate, change_pct, type, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6)`,
		m.ID, m.Name, m.Rate.String(), m.ChangePct.String(), string(m.Type), m.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO platform_inventory (metal_id, quantity) VALUES ($1, $2::NUMERIC)`,
		m.ID, initialStock.String(),
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetMetal(ctx context.Context, id string) (*model.Metal, error) {
	return scanMetal(s.pool.QueryRow(ctx,
		`SELECT id, name, rate::TEXT, change_pct::TEXT, type, created_at
		 FROM metals WHERE id = $1`, id))
}

func (s *PostgresStore) ListMetals(ctx context.Context) ([]model.Metal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, rate::TEXT, change_pct::TEXT, type, created_at
		 FROM metals ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metals []model.Metal
	for rows.Next() {
		m, err := scanMetal(rows)
		if err != nil {
			return nil, err
		}
		metals = append(metals, *m)
	}
	return metals, rows.Err()
}

func (s *PostgresStore) UpdateMetal(ctx context.Context, m *model.Metal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE metals
		 SET name = $2, rate = $3::NUMERIC, change_pct = $4::NUMERIC, type = $5
		 WHERE id = $1`,
		m.ID, m.Name, m.Rate.String(), m.ChangePct.String(), string(m.Type),
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteMetal(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var held bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_holdings WHERE metal_id = $1 AND quantity > 0)`,
		id).Scan(&held)
	if err != nil {
		return err
	}
	if held {
		return ErrConflict
	}

	tag, err := tx.Exec(ctx, `DELETE FROM metals WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	// Inventory cascades with the metal; grants, requests and zero-quantity
	// holdings are cleaned up here. The ledger keeps its entries.
	if _, err := tx.Exec(ctx, `DELETE FROM user_holdings WHERE metal_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM access_grants WHERE metal_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM access_requests WHERE metal_id = $1`, id); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// --- Platform inventory ---

func (s *PostgresStore) GetStock(ctx context.Context, metalID string) (decimal.Decimal, error) {
	var qtyS string
	err := s.pool.QueryRow(ctx,
		`SELECT quantity::TEXT FROM platform_inventory WHERE metal_id = $1`, metalID).
		Scan(&qtyS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(qtyS)
}

func (s *PostgresStore) SetStock(ctx context.Context, metalID string, quantity decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE platform_inventory SET quantity = $2::NUMERIC WHERE metal_id = $1`,
		metalID, quantity.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- User holdings ---

func (s *PostgresStore) GetHolding(ctx context.Context, userID, metalID string) (decimal.Decimal, error) {
	var qtyS string
	err := s.pool.QueryRow(ctx,
		`SELECT quantity::TEXT FROM user_holdings WHERE user_id = $1 AND metal_id = $2`,
		userID, metalID).Scan(&qtyS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(qtyS)
}

func (s *PostgresStore) ListHoldings(ctx context.Context, userID string) ([]model.UserHolding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, metal_id, quantity::TEXT
		 FROM user_holdings WHERE user_id = $1 AND quantity > 0 ORDER BY metal_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.UserHolding
	for rows.Next() {
		var h model.UserHolding
		var qtyS string
		if err := rows.Scan(&h.UserID, &h.MetalID, &qtyS); err != nil {
			return nil, err
		}
		h.Quantity, _ = decimal.NewFromString(qtyS)
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// --- Access grants ---

func (s *PostgresStore) UpsertGrant(ctx context.Context, userID, metalID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO access_grants (user_id, metal_id, granted_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id, metal_id) DO NOTHING`,
		userID, metalID,
	)
	return err
}

func (s *PostgresStore) DeleteGrant(ctx context.Context, userID, metalID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM access_grants WHERE user_id = $1 AND metal_id = $2`,
		userID, metalID,
	)
	return err
}

func (s *PostgresStore) HasGrant(ctx context.Context, userID, metalID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM access_grants WHERE user_id = $1 AND metal_id = $2)`,
		userID, metalID).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) ListGrants(ctx context.Context, userID string) ([]model.AccessGrant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, metal_id, granted_at
		 FROM access_grants WHERE user_id = $1 ORDER BY metal_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []model.AccessGrant
	for rows.Next() {
		var g model.AccessGrant
		if err := rows.Scan(&g.UserID, &g.MetalID, &g.GrantedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// --- Access requests ---

func (s *PostgresStore) CreateAccessRequest(ctx context.Context, r *model.AccessRequest) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var metalExists, granted bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM metals WHERE id = $2),
		        EXISTS (SELECT 1 FROM access_grants WHERE user_id = $1 AND metal_id = $2)`,
		r.UserID, r.MetalID).Scan(&metalExists, &granted)
	if err != nil {
		return err
	}
	if !metalExists {
		return ErrNotFound
	}
	if granted {
		return ErrConflict
	}

	// The partial unique index on pending requests makes double submission
	// race-safe regardless of the check above.
	_, err = tx.Exec(ctx,
		`INSERT INTO access_requests (id, user_id, metal_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.UserID, r.MetalID, string(r.Status), r.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ResolveAccessRequest(ctx context.Context, id string, approve bool) (*model.AccessRequest, error) {
	status := model.RequestRejected
	if approve {
		status = model.RequestApproved
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var r model.AccessRequest
	var statusS string
	err = tx.QueryRow(ctx,
		`UPDATE access_requests SET status = $2
		 WHERE id = $1 AND status = 'pending'
		 RETURNING id, user_id, metal_id, status, created_at`,
		id, string(status)).
		Scan(&r.ID, &r.UserID, &r.MetalID, &statusS, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = model.RequestStatus(statusS)

	if approve {
		_, err = tx.Exec(ctx,
			`INSERT INTO access_grants (user_id, metal_id, granted_at)
			 VALUES ($1, $2, now())
			 ON CONFLICT (user_id, metal_id) DO NOTHING`,
			r.UserID, r.MetalID,
		)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) ListPendingRequests(ctx context.Context) ([]model.AccessRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, metal_id, status, created_at
		 FROM access_requests WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []model.AccessRequest
	for rows.Next() {
		var r model.AccessRequest
		var statusS string
		if err := rows.Scan(&r.ID, &r.UserID, &r.MetalID, &statusS, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Status = model.RequestStatus(statusS)
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// --- Trades / immutable ledger ---

func (s *PostgresStore) ApplyTrade(ctx context.Context, t *model.Transaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	switch t.Action {
	case model.ActionBuy:
		// Guarded decrement: the WHERE clause makes overselling impossible
		// even if another instance raced past the engine's lock.
		tag, err := tx.Exec(ctx,
			`UPDATE platform_inventory
			 SET quantity = quantity - $2::NUMERIC
			 WHERE metal_id = $1 AND quantity >= $2::NUMERIC`,
			t.MetalID, t.Quantity.String(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			if exists, eerr := rowExists(ctx, tx, `SELECT 1 FROM platform_inventory WHERE metal_id = $1`, t.MetalID); eerr != nil {
				return eerr
			} else if !exists {
				return ErrNotFound
			}
			return ErrInsufficientStock
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO user_holdings (user_id, metal_id, quantity)
			 VALUES ($1, $2, $3::NUMERIC)
			 ON CONFLICT (user_id, metal_id)
			 DO UPDATE SET quantity = user_holdings.quantity + EXCLUDED.quantity`,
			t.UserID, t.MetalID, t.Quantity.String(),
		)
		if err != nil {
			return err
		}

	case model.ActionSell:
		tag, err := tx.Exec(ctx,
			`UPDATE user_holdings
			 SET quantity = quantity - $3::NUMERIC
			 WHERE user_id = $1 AND metal_id = $2 AND quantity >= $3::NUMERIC`,
			t.UserID, t.MetalID, t.Quantity.String(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientHoldings
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM user_holdings
			 WHERE user_id = $1 AND metal_id = $2 AND quantity = 0`,
			t.UserID, t.MetalID,
		); err != nil {
			return err
		}

		tag, err = tx.Exec(ctx,
			`UPDATE platform_inventory
			 SET quantity = quantity + $2::NUMERIC
			 WHERE metal_id = $1`,
			t.MetalID, t.Quantity.String(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, metal_id, action, quantity, rate, executed_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)`,
		t.ID, t.UserID, t.MetalID, string(t.Action),
		t.Quantity.String(), t.Rate.String(), t.Executed,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, metal_id, action, quantity::TEXT, rate::TEXT, executed_at
		 FROM transactions WHERE user_id = $1 ORDER BY executed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (s *PostgresStore) ListTransactions(ctx context.Context) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, metal_id, action, quantity::TEXT, rate::TEXT, executed_at
		 FROM transactions ORDER BY executed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// --- Scan helpers ---

type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanMetal(row pgxRow) (*model.Metal, error) {
	var m model.Metal
	var rateS, changeS, typeS string

	err := row.Scan(&m.ID, &m.Name, &rateS, &changeS, &typeS, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan metal: %w", err)
	}

	m.Rate, _ = decimal.NewFromString(rateS)
	m.ChangePct, _ = decimal.NewFromString(changeS)
	m.Type = model.MetalType(typeS)
	return &m, nil
}

func scanTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	var entries []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var actionS, qtyS, rateS string

		if err := rows.Scan(&t.ID, &t.UserID, &t.MetalID, &actionS,
			&qtyS, &rateS, &t.Executed); err != nil {
			return nil, err
		}

		t.Action = model.TradeAction(actionS)
		t.Quantity, _ = decimal.NewFromString(qtyS)
		t.Rate, _ = decimal.NewFromString(rateS)

		entries = append(entries, t)
	}
	return entries, rows.Err()
}

func rowExists(ctx context.Context, tx pgx.Tx, query string, args ...interface{}) (bool, error) {
	var one int
	err := tx.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

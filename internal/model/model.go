// Package model defines the core domain types shared across the metal
// management engine. All quantities and rates use shopspring/decimal,
// never float64.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MetalType classifies a tradable metal.
type MetalType string

const (
	MetalPrecious   MetalType = "precious"
	MetalIndustrial MetalType = "industrial"
	MetalOther      MetalType = "other"
)

// ParseMetalType validates a metal type string against the closed set.
func ParseMetalType(s string) (MetalType, error) {
	switch MetalType(s) {
	case MetalPrecious, MetalIndustrial, MetalOther:
		return MetalType(s), nil
	}
	return "", fmt.Errorf("invalid metal type %q", s)
}

// Metal is a tradable commodity asset record. Created, edited and deleted
// only by admin-authorized callers.
type Metal struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"` // unique, non-empty
	Rate      decimal.Decimal `json:"rate" db:"rate"` // current price, >= 0
	ChangePct decimal.Decimal `json:"change_pct" db:"change_pct"`
	Type      MetalType       `json:"type" db:"type"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// PlatformInventory is the platform-owned tradable quantity for one metal.
// One row per metal, created alongside the metal record.
type PlatformInventory struct {
	MetalID  string          `json:"metal_id" db:"metal_id"`
	Quantity decimal.Decimal `json:"quantity" db:"quantity"` // >= 0, always
}

// UserHolding is a user's owned quantity of one metal. Created on first
// successful BUY, removed when it reaches zero.
type UserHolding struct {
	UserID   string          `json:"user_id" db:"user_id"`
	MetalID  string          `json:"metal_id" db:"metal_id"`
	Quantity decimal.Decimal `json:"quantity" db:"quantity"` // >= 0, always
}

// AccessGrant authorizes one user to BUY one metal. At most one per
// (user, metal) pair; insertion via the approval path is idempotent.
type AccessGrant struct {
	UserID    string    `json:"user_id" db:"user_id"`
	MetalID   string    `json:"metal_id" db:"metal_id"`
	GrantedAt time.Time `json:"granted_at" db:"granted_at"`
}

// RequestStatus is the state of an access request. Pending is the only
// non-terminal state; approved and rejected are final.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// AccessRequest is a user's pending ask for an AccessGrant, awaiting an
// admin decision. At most one pending request per (user, metal).
type AccessRequest struct {
	ID        string        `json:"id" db:"id"`
	UserID    string        `json:"user_id" db:"user_id"`
	MetalID   string        `json:"metal_id" db:"metal_id"`
	Status    RequestStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// TradeAction is the direction of a trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// ParseTradeAction validates an action string against the closed set.
func ParseTradeAction(s string) (TradeAction, error) {
	switch TradeAction(s) {
	case ActionBuy, ActionSell:
		return TradeAction(s), nil
	}
	return "", fmt.Errorf("invalid trade action %q", s)
}

// Transaction is an immutable record of an executed trade. Once created,
// these are never modified or deleted, and they survive metal deletion.
type Transaction struct {
	ID       string          `json:"id" db:"id"`
	UserID   string          `json:"user_id" db:"user_id"`
	MetalID  string          `json:"metal_id" db:"metal_id"`
	Action   TradeAction     `json:"action" db:"action"`
	Quantity decimal.Decimal `json:"quantity" db:"quantity"` // > 0
	Rate     decimal.Decimal `json:"rate" db:"rate"`         // metal rate snapshot at execution
	Executed time.Time       `json:"executed_at" db:"executed_at"`
}

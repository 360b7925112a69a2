// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the operator service — trade
// decisions, payment authorizations, instrument metadata, pool snapshots,
// and activity records. It has no dependencies on internal packages, so it
// can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// OrderType enumerates the supported order types on the exchange.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// SignalStatus is the market view produced by the AI signal provider.
type SignalStatus string

const (
	StatusBullish SignalStatus = "BULLISH"
	StatusBearish SignalStatus = "BEARISH"
	StatusNeutral SignalStatus = "NEUTRAL"
)

// Action is what the AI decision tells the operator to do.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Role identifies who an activity record belongs to.
//
// Taker capital bears trading PnL directly; Absorber capital provides a
// loss-absorbing buffer in exchange for priority yield. The vault contract
// encodes these as an enum — the indices below mirror the deployed contract
// and must be used at every call site.
type Role string

const (
	RoleTaker    Role = "taker"
	RoleAbsorber Role = "absorber"
	RoleOperator Role = "operator"
)

// ParticipantIndex returns the contract enum index for a participant role.
// Taker = 0, Absorber = 1.
func (r Role) ParticipantIndex() (int, bool) {
	switch r {
	case RoleTaker:
		return 0, true
	case RoleAbsorber:
		return 1, true
	default:
		return 0, false
	}
}

// ActivityType classifies entries in the append-only activity trail.
type ActivityType string

const (
	ActivityDeposit    ActivityType = "DEPOSIT"
	ActivityWithdraw   ActivityType = "WITHDRAW"
	ActivityOpenTrade  ActivityType = "OPEN_TRADE"
	ActivityCloseTrade ActivityType = "CLOSE_TRADE"
)

// ————————————————————————————————————————————————————————————————————————
// Payment authorization (x402 header)
// ————————————————————————————————————————————————————————————————————————

// PaymentRequirements describes what a caller must pay to start a lock
// workflow. Generated fresh per attempt, returned with HTTP 402, and never
// persisted.
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	PayTo             string `json:"payTo"`
	Asset             string `json:"asset"`
	MaxAmountRequired string `json:"maxAmountRequired"` // smallest unit, decimal string
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
	Description       string `json:"description"`
}

// PaymentAuthorization is the EIP-3009-style transfer authorization signed
// off-chain by the payer's wallet. Consumed exactly once by the verifier.
type PaymentAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"` // uint256 as decimal string
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"` // 32-byte hex, single-use per signature
	Signature   string `json:"signature"`
	Asset       string `json:"asset"`
}

// PaymentHeader is the decoded wire format of the X-Payment header
// (base64 of this JSON).
type PaymentHeader struct {
	X402Version int                  `json:"x402Version"`
	Scheme      string               `json:"scheme"`
	Network     string               `json:"network"`
	Payload     PaymentAuthorization `json:"payload"`
}

// ————————————————————————————————————————————————————————————————————————
// Market + pool data
// ————————————————————————————————————————————————————————————————————————

// InstrumentSpec holds the venue constraints for one instrument. Read fresh
// from the exchange per workflow invocation — never cached across calls,
// since the venue may change it.
type InstrumentSpec struct {
	Instrument       string
	QuantityDecimals int32
	QuoteDecimals    int32
	MinQuantity      decimal.Decimal
	QtyTickSize      decimal.Decimal
}

// Ticker is a top-of-book snapshot for one instrument.
type Ticker struct {
	Instrument string
	BestBid    decimal.Decimal
	BestAsk    decimal.Decimal
	LastPrice  decimal.Decimal
}

// PoolSnapshot holds the vault's capital split as read from the contract.
// Both values are converted from 18-decimal fixed point. Their sum is the
// pool NAV — on-chain truth, not re-derived locally.
type PoolSnapshot struct {
	TotalAvailable  decimal.Decimal
	TotalInPosition decimal.Decimal
}

// Total returns totalAvailable + totalInPosition.
func (p PoolSnapshot) Total() decimal.Decimal {
	return p.TotalAvailable.Add(p.TotalInPosition)
}

// MarketContext is the market and pool state handed to the AI signal
// provider for a single decision.
type MarketContext struct {
	Instrument string
	BestBid    decimal.Decimal
	BestAsk    decimal.Decimal
	LastPrice  decimal.Decimal
	PoolTotal  decimal.Decimal
}

// ————————————————————————————————————————————————————————————————————————
// AI decision
// ————————————————————————————————————————————————————————————————————————

// AIDecision is the trade decision derived once per lock attempt.
//
// Invariant (enforced by signal.Normalize): a NEUTRAL status forces
// Action=HOLD, PositionSizePercent=0 and Leverage=1 regardless of what the
// model returned.
type AIDecision struct {
	Status              SignalStatus `json:"status"`
	Action              Action       `json:"action"`
	PositionSizePercent float64      `json:"positionSizePercent"` // 0–100
	Leverage            int          `json:"leverage"`            // 1–5
	Reasoning           string       `json:"reasoning"`
}

// Hold reports whether the decision means "do not trade".
func (d AIDecision) Hold() bool {
	return d.Action == ActionHold || d.Status == StatusNeutral
}

// ————————————————————————————————————————————————————————————————————————
// Orders + positions
// ————————————————————————————————————————————————————————————————————————

// OrderRequest is a venue-compliant order ready for submission. Quantity
// and Price are pre-rounded to the instrument's constraints; an
// OrderRequest is never built with Quantity = 0.
type OrderRequest struct {
	Instrument string
	Side       Side
	Type       OrderType
	Price      decimal.Decimal
	Quantity   decimal.Decimal
}

// OrderResult is the outcome of an order placement or close attempt.
// Error is populated (instead of failing the workflow) when the exchange
// call failed but the orchestration policy is to continue.
type OrderResult struct {
	OrderID string `json:"orderId,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ExchangePosition is one open position as reported by the exchange.
// Quantity is signed: positive = long, negative = short.
type ExchangePosition struct {
	Instrument    string
	Quantity      decimal.Decimal
	AvgEntryPrice decimal.Decimal
	MarkPrice     decimal.Decimal
}

// ————————————————————————————————————————————————————————————————————————
// Activity trail
// ————————————————————————————————————————————————————————————————————————

// ActivityRecord is one entry in the append-only audit trail, created after
// each state-changing operation succeeds on-chain.
type ActivityRecord struct {
	ID           int64            `json:"id,omitempty"`
	ActivityType ActivityType     `json:"activity_type"`
	Role         Role             `json:"role"`
	Amount       decimal.Decimal  `json:"amount"`
	Asset        string           `json:"asset"`
	TxHash       string           `json:"tx_hash"`
	Description  string           `json:"description"`
	PnL          *decimal.Decimal `json:"pnl,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

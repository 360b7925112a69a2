// Package workflow contains the lock and close orchestrators, the state
// machines at the center of the operator service.
//
// Dependency policy: payment verification, the operator identity check and
// the contract lock/unlock calls are hard (any failure aborts). Market
// data, the pool snapshot, the AI decision, order placement and activity
// recording are soft (degrade with a logged warning).
package workflow

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"vault-operator/pkg/types"
)

// ExchangeAPI is the venue surface the orchestrators consume.
type ExchangeAPI interface {
	CreateOrder(ctx context.Context, order types.OrderRequest) (*types.OrderResult, error)
	CancelAllOrders(ctx context.Context, instrument string) error
	GetPositions(ctx context.Context, instrument string) ([]types.ExchangePosition, error)
	ClosePosition(ctx context.Context, instrument string) (string, error)
	GetTicker(ctx context.Context, instrument string) (*types.Ticker, error)
	GetInstrument(ctx context.Context, instrument string) (*types.InstrumentSpec, error)
}

// PaymentVerifier gatekeeps the lock workflow.
type PaymentVerifier interface {
	Requirements() types.PaymentRequirements
	Verify(header string, now time.Time) (*types.PaymentAuthorization, error)
}

// SignalProvider produces one trade decision per lock attempt.
type SignalProvider interface {
	Decide(ctx context.Context, mc types.MarketContext) (*types.AIDecision, error)
}

// VaultContract is the on-chain surface the orchestrators consume.
type VaultContract interface {
	Operator(ctx context.Context) (common.Address, error)
	Snapshot(ctx context.Context) (*types.PoolSnapshot, error)
	LockGlobal(ctx context.Context) (common.Hash, error)
	UnlockGlobal(ctx context.Context) (common.Hash, error)
	ReportProfit(ctx context.Context, profitCRO decimal.Decimal) (common.Hash, error)
	ReportLoss(ctx context.Context, lossCRO decimal.Decimal) (common.Hash, error)
	SignerAddress() common.Address
}

// Recorder persists the audit trail and AI status, best-effort.
type Recorder interface {
	Record(ctx context.Context, rec types.ActivityRecord) (*types.ActivityRecord, error)
	SetAIStatus(ctx context.Context, d types.AIDecision) error
}

// checkOperator verifies the vault recognizes our signer as its operator.
// Mandatory immediately before any state-mutating contract call.
func checkOperator(ctx context.Context, contract VaultContract) error {
	operator, err := contract.Operator(ctx)
	if err != nil {
		return err
	}
	if operator != contract.SignerAddress() {
		return &types.ConfigurationError{
			Reason: "configured wallet is not the vault operator",
		}
	}
	return nil
}

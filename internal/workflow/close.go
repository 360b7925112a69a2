package workflow

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"vault-operator/internal/sizing"
	"vault-operator/pkg/types"
)

// CloseResult is the outcome of one close attempt.
type CloseResult struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message"`
	TxHash      string             `json:"txHash,omitempty"`
	OrderResult *types.OrderResult `json:"closeResult,omitempty"`
	PnL         *decimal.Decimal   `json:"pnl,omitempty"`
}

// CloseOrchestrator unwinds the exchange position and unlocks the pool.
type CloseOrchestrator struct {
	exchange      ExchangeAPI
	contract      VaultContract
	recorder      Recorder
	instrument    string
	fallbackPrice decimal.Decimal
	logger        *slog.Logger
}

// NewCloseOrchestrator wires a close orchestrator. fallbackPrice is the
// static quote-per-CRO price used when the live ticker is unavailable.
func NewCloseOrchestrator(
	exchange ExchangeAPI,
	contract VaultContract,
	recorder Recorder,
	instrument string,
	fallbackPrice decimal.Decimal,
	logger *slog.Logger,
) *CloseOrchestrator {
	return &CloseOrchestrator{
		exchange:      exchange,
		contract:      contract,
		recorder:      recorder,
		instrument:    instrument,
		fallbackPrice: fallbackPrice,
		logger:        logger.With("component", "close"),
	}
}

// Close executes one close attempt.
//
// Exchange steps are soft. The operator check and unlockGlobal are hard.
// PnL reporting failure is logged but never blocks the unlock: a stuck
// report must not strand the pool locked.
func (o *CloseOrchestrator) Close(ctx context.Context) (*CloseResult, error) {
	if err := o.exchange.CancelAllOrders(ctx, o.instrument); err != nil {
		o.logger.Warn("cancel-all failed", "error", err)
	}

	pnlCRO := o.realizedPnL(ctx)
	result := &CloseResult{}
	if pnlCRO != nil {
		result.PnL = pnlCRO
	}

	result.OrderResult = o.closePosition(ctx)

	if err := checkOperator(ctx, o.contract); err != nil {
		return nil, err
	}

	if pnlCRO != nil && !pnlCRO.IsZero() {
		o.reportPnL(ctx, *pnlCRO)
	}

	txHash, err := o.contract.UnlockGlobal(ctx)
	if err != nil {
		return nil, err
	}
	result.Success = true
	result.TxHash = txHash.Hex()
	result.Message = "pool unlocked"
	o.logger.Info("pool unlocked", "tx", result.TxHash)

	o.recordClose(ctx, result)
	return result, nil
}

// realizedPnL fetches the open position and converts its PnL to CRO.
// Returns nil when the position cannot be read.
func (o *CloseOrchestrator) realizedPnL(ctx context.Context) *decimal.Decimal {
	positions, err := o.exchange.GetPositions(ctx, o.instrument)
	if err != nil {
		o.logger.Warn("position fetch failed", "error", err)
		return nil
	}
	if len(positions) == 0 {
		zero := decimal.Zero
		return &zero
	}

	quotePnL := decimal.Zero
	for i := range positions {
		quotePnL = quotePnL.Add(sizing.PositionPnL(&positions[i]))
	}

	lastPrice := decimal.Zero
	if ticker, err := o.exchange.GetTicker(ctx, o.instrument); err != nil {
		o.logger.Warn("ticker fetch failed, using fallback price", "error", err)
	} else {
		lastPrice = ticker.LastPrice
	}

	pnl := sizing.QuoteToCRO(quotePnL, lastPrice, o.fallbackPrice)
	o.logger.Info("realized pnl computed", "quote", quotePnL, "cro", pnl)
	return &pnl
}

func (o *CloseOrchestrator) closePosition(ctx context.Context) *types.OrderResult {
	orderID, err := o.exchange.ClosePosition(ctx, o.instrument)
	if err != nil {
		o.logger.Warn("position close failed", "error", err)
		return &types.OrderResult{Status: "REJECTED", Error: types.Humanize(err)}
	}
	o.logger.Info("position closed", "order_id", orderID)
	return &types.OrderResult{OrderID: orderID, Status: "FILLED"}
}

// reportPnL sends profit or loss to the vault. Failure never propagates.
func (o *CloseOrchestrator) reportPnL(ctx context.Context, pnl decimal.Decimal) {
	var err error
	if pnl.IsPositive() {
		_, err = o.contract.ReportProfit(ctx, pnl)
	} else {
		_, err = o.contract.ReportLoss(ctx, pnl.Abs())
	}
	if err != nil {
		o.logger.Warn("pnl report failed, continuing to unlock", "pnl", pnl, "error", err)
		return
	}
	o.logger.Info("pnl reported", "pnl", pnl)
}

func (o *CloseOrchestrator) recordClose(ctx context.Context, result *CloseResult) {
	amount := decimal.Zero
	if result.PnL != nil {
		amount = result.PnL.Abs()
	}
	if _, err := o.recorder.Record(ctx, types.ActivityRecord{
		ActivityType: types.ActivityCloseTrade,
		Role:         types.RoleOperator,
		Amount:       amount,
		Asset:        "CRO",
		TxHash:       result.TxHash,
		Description:  "closed position and unlocked pool",
		PnL:          result.PnL,
	}); err != nil {
		o.logger.Warn("activity not recorded", "error", err)
	}
}

package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"vault-operator/internal/sizing"
	"vault-operator/pkg/types"
)

// LockResult is the outcome of one lock attempt.
type LockResult struct {
	Success      bool                       `json:"success"`
	Message      string                     `json:"message"`
	TxHash       string                     `json:"txHash,omitempty"`
	AIAnalysis   *types.AIDecision          `json:"aiAnalysis,omitempty"`
	OrderResult  *types.OrderResult         `json:"orderResult,omitempty"`
	Requirements *types.PaymentRequirements `json:"paymentRequirements,omitempty"`

	// PaymentRequired marks the no-header case; the HTTP layer turns it
	// into a 402.
	PaymentRequired bool `json:"-"`
}

// LockOrchestrator runs the payment → decision → order → lock pipeline.
// Single attempt per invocation; no state survives past it except activity
// records.
type LockOrchestrator struct {
	exchange   ExchangeAPI
	verifier   PaymentVerifier
	signals    SignalProvider
	contract   VaultContract
	recorder   Recorder
	instrument string
	logger     *slog.Logger
}

// NewLockOrchestrator wires a lock orchestrator.
func NewLockOrchestrator(
	exchange ExchangeAPI,
	verifier PaymentVerifier,
	signals SignalProvider,
	contract VaultContract,
	recorder Recorder,
	instrument string,
	logger *slog.Logger,
) *LockOrchestrator {
	return &LockOrchestrator{
		exchange:   exchange,
		verifier:   verifier,
		signals:    signals,
		contract:   contract,
		recorder:   recorder,
		instrument: instrument,
		logger:     logger.With("component", "lock"),
	}
}

// Lock executes one lock attempt.
//
// An empty paymentHeader terminates early with PaymentRequired set and a
// nil error. A rejected header returns the ValidationError unwrapped so
// the HTTP layer can map it to a 400. Hard-dependency failures return an
// error; everything else degrades.
func (o *LockOrchestrator) Lock(ctx context.Context, paymentHeader string) (*LockResult, error) {
	if paymentHeader == "" {
		req := o.verifier.Requirements()
		return &LockResult{
			Message:         "payment required",
			Requirements:    &req,
			PaymentRequired: true,
		}, nil
	}

	auth, err := o.verifier.Verify(paymentHeader, time.Now())
	if err != nil {
		return nil, err
	}
	o.logger.Info("payment verified", "payer", auth.From)

	ticker, spec := o.fetchMarketData(ctx)
	pool := o.fetchPool(ctx)

	decision := o.decide(ctx, ticker, pool)
	o.recordStatus(ctx, decision)

	result := &LockResult{AIAnalysis: decision}

	if decision.Hold() {
		result.Success = true
		result.Message = "pool remains open: decision is HOLD"
		o.logger.Info("lock skipped", "reason", "hold decision")
		return result, nil
	}

	order, skipReason := sizing.Size(decision, pool, spec, ticker)
	if order == nil {
		// Pool still locks: the decision to trade stands even when no
		// order can express it right now.
		o.logger.Warn("order skipped", "reason", skipReason)
	} else {
		result.OrderResult = o.placeOrder(ctx, order)
	}

	if err := checkOperator(ctx, o.contract); err != nil {
		return nil, err
	}

	txHash, err := o.contract.LockGlobal(ctx)
	if err != nil {
		return nil, err
	}
	result.Success = true
	result.TxHash = txHash.Hex()
	result.Message = "pool locked"
	o.logger.Info("pool locked", "tx", result.TxHash)

	o.recordOpen(ctx, result, order)
	return result, nil
}

// fetchMarketData pulls the ticker and instrument constraints in parallel.
// Both are soft; a failure returns nil for that piece.
func (o *LockOrchestrator) fetchMarketData(ctx context.Context) (*types.Ticker, *types.InstrumentSpec) {
	var (
		ticker *types.Ticker
		spec   *types.InstrumentSpec
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := o.exchange.GetTicker(gctx, o.instrument)
		if err != nil {
			o.logger.Warn("ticker fetch failed", "error", err)
			return nil
		}
		ticker = t
		return nil
	})
	g.Go(func() error {
		s, err := o.exchange.GetInstrument(gctx, o.instrument)
		if err != nil {
			o.logger.Warn("instrument fetch failed", "error", err)
			return nil
		}
		spec = s
		return nil
	})
	// Both goroutines swallow their errors, so Wait cannot fail.
	_ = g.Wait()
	return ticker, spec
}

func (o *LockOrchestrator) fetchPool(ctx context.Context) *types.PoolSnapshot {
	pool, err := o.contract.Snapshot(ctx)
	if err != nil {
		o.logger.Warn("pool snapshot failed", "error", err)
		return nil
	}
	return pool
}

// decide asks the signal provider, falling back to NEUTRAL/HOLD.
func (o *LockOrchestrator) decide(ctx context.Context, ticker *types.Ticker, pool *types.PoolSnapshot) *types.AIDecision {
	mc := types.MarketContext{Instrument: o.instrument}
	if ticker != nil {
		mc.BestBid = ticker.BestBid
		mc.BestAsk = ticker.BestAsk
		mc.LastPrice = ticker.LastPrice
	}
	if pool != nil {
		mc.PoolTotal = pool.Total()
	}

	decision, err := o.signals.Decide(ctx, mc)
	if err != nil {
		o.logger.Warn("signal unavailable, defaulting to HOLD", "error", err)
		return defaultDecision()
	}
	return decision
}

func defaultDecision() *types.AIDecision {
	return &types.AIDecision{
		Status:    types.StatusNeutral,
		Action:    types.ActionHold,
		Leverage:  1,
		Reasoning: "signal unavailable",
	}
}

// placeOrder submits the sized order. Failure is captured in the result,
// never propagated; the pool may still lock with no order.
func (o *LockOrchestrator) placeOrder(ctx context.Context, order *types.OrderRequest) *types.OrderResult {
	result, err := o.exchange.CreateOrder(ctx, *order)
	if err != nil {
		o.logger.Warn("order placement failed", "error", err)
		return &types.OrderResult{Status: "REJECTED", Error: types.Humanize(err)}
	}
	o.logger.Info("order placed",
		"order_id", result.OrderID,
		"side", order.Side,
		"quantity", order.Quantity,
		"price", order.Price,
	)
	return result
}

func (o *LockOrchestrator) recordStatus(ctx context.Context, d *types.AIDecision) {
	if err := o.recorder.SetAIStatus(ctx, *d); err != nil {
		o.logger.Warn("ai status not recorded", "error", err)
	}
}

func (o *LockOrchestrator) recordOpen(ctx context.Context, result *LockResult, order *types.OrderRequest) {
	amount := decimal.Zero
	description := "pool locked without order"
	if order != nil {
		amount = order.Quantity
		description = "opened " + string(order.Side) + " " + order.Quantity.String() + " " + order.Instrument
	}
	if _, err := o.recorder.Record(ctx, types.ActivityRecord{
		ActivityType: types.ActivityOpenTrade,
		Role:         types.RoleOperator,
		Amount:       amount,
		Asset:        "CRO",
		TxHash:       result.TxHash,
		Description:  description,
	}); err != nil {
		o.logger.Warn("activity not recorded", "error", err)
	}
}

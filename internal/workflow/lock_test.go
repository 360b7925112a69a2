package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"vault-operator/pkg/types"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func healthyExchange(t *testing.T) *fakeExchange {
	t.Helper()
	return &fakeExchange{
		ticker: &types.Ticker{
			Instrument: "CROUSD-PERP",
			BestBid:    mustDecimal(t, "0.0841"),
			BestAsk:    mustDecimal(t, "0.0843"),
			LastPrice:  mustDecimal(t, "0.0842"),
		},
		spec: &types.InstrumentSpec{
			Instrument:       "CROUSD-PERP",
			QuantityDecimals: 1,
			QuoteDecimals:    4,
			MinQuantity:      mustDecimal(t, "1"),
			QtyTickSize:      mustDecimal(t, "0.1"),
		},
	}
}

func bullishSignals(pct float64) *fakeSignals {
	return &fakeSignals{decision: &types.AIDecision{
		Status:              types.StatusBullish,
		Action:              types.ActionBuy,
		PositionSizePercent: pct,
		Leverage:            2,
		Reasoning:           "momentum",
	}}
}

func newLock(exchange *fakeExchange, verifier *fakeVerifier, signals *fakeSignals, contract *fakeContract, recorder *fakeRecorder) *LockOrchestrator {
	return NewLockOrchestrator(exchange, verifier, signals, contract, recorder, "CROUSD-PERP", testLogger())
}

func TestLockWithoutHeaderRequiresPayment(t *testing.T) {
	t.Parallel()

	o := newLock(healthyExchange(t), &fakeVerifier{}, bullishSignals(30), &fakeContract{}, &fakeRecorder{})

	result, err := o.Lock(context.Background(), "")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !result.PaymentRequired || result.Requirements == nil {
		t.Errorf("result = %+v, want payment required", result)
	}
}

func TestLockRejectedPaymentPropagates(t *testing.T) {
	t.Parallel()

	verifier := &fakeVerifier{err: types.NewValidationError("authorization expired")}
	contract := &fakeContract{}
	o := newLock(healthyExchange(t), verifier, bullishSignals(30), contract, &fakeRecorder{})

	_, err := o.Lock(context.Background(), "header")
	if !types.IsValidation(err) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if contract.lockCalls != 0 {
		t.Error("rejected payment must not lock")
	}
}

func TestLockHappyPath(t *testing.T) {
	t.Parallel()

	exchange := healthyExchange(t)
	contract := &fakeContract{snapshot: &types.PoolSnapshot{
		TotalAvailable:  mustDecimal(t, "60"),
		TotalInPosition: mustDecimal(t, "40"),
	}}
	recorder := &fakeRecorder{}
	o := newLock(exchange, &fakeVerifier{}, bullishSignals(30), contract, recorder)

	result, err := o.Lock(context.Background(), "header")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !result.Success || result.TxHash != lockTxHash.Hex() {
		t.Errorf("result = %+v", result)
	}
	if contract.lockCalls != 1 {
		t.Errorf("lockGlobal calls = %d, want 1", contract.lockCalls)
	}
	if len(exchange.createdOrders) != 1 {
		t.Fatalf("orders placed = %d, want 1", len(exchange.createdOrders))
	}
	if !exchange.createdOrders[0].Quantity.Equal(mustDecimal(t, "30")) {
		t.Errorf("quantity = %s, want 30", exchange.createdOrders[0].Quantity)
	}
	if len(recorder.records) != 1 || recorder.records[0].ActivityType != types.ActivityOpenTrade {
		t.Errorf("records = %+v", recorder.records)
	}
	if len(recorder.statuses) != 1 || recorder.statuses[0] != types.StatusBullish {
		t.Errorf("statuses = %v", recorder.statuses)
	}
}

func TestLockHoldNeverPlacesOrLocks(t *testing.T) {
	t.Parallel()

	cases := []*types.AIDecision{
		{Status: types.StatusNeutral, Action: types.ActionHold},
		{Status: types.StatusNeutral, Action: types.ActionBuy, PositionSizePercent: 50},
		{Status: types.StatusBullish, Action: types.ActionHold},
	}
	for _, decision := range cases {
		exchange := healthyExchange(t)
		contract := &fakeContract{snapshot: &types.PoolSnapshot{TotalAvailable: mustDecimal(t, "100")}}
		o := newLock(exchange, &fakeVerifier{}, &fakeSignals{decision: decision}, contract, &fakeRecorder{})

		result, err := o.Lock(context.Background(), "header")
		if err != nil {
			t.Fatalf("Lock(%+v): %v", decision, err)
		}
		if !result.Success {
			t.Errorf("hold result should succeed: %+v", result)
		}
		if len(exchange.createdOrders) != 0 {
			t.Errorf("decision %+v placed an order", decision)
		}
		if contract.lockCalls != 0 {
			t.Errorf("decision %+v locked the pool", decision)
		}
	}
}

func TestLockSignalFailureDefaultsToHold(t *testing.T) {
	t.Parallel()

	exchange := healthyExchange(t)
	contract := &fakeContract{snapshot: &types.PoolSnapshot{TotalAvailable: mustDecimal(t, "100")}}
	signals := &fakeSignals{err: errors.New("model timeout")}
	o := newLock(exchange, &fakeVerifier{}, signals, contract, &fakeRecorder{})

	result, err := o.Lock(context.Background(), "header")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !result.Success || contract.lockCalls != 0 || len(exchange.createdOrders) != 0 {
		t.Errorf("signal failure should degrade to HOLD, got %+v (locks=%d)", result, contract.lockCalls)
	}
}

func TestLockMarketDataFailureStillLocks(t *testing.T) {
	t.Parallel()

	// Ticker and instrument unavailable: the order is skipped but the
	// trade decision still locks the pool.
	exchange := &fakeExchange{
		tickerErr: errors.New("connection refused"),
		specErr:   errors.New("connection refused"),
	}
	contract := &fakeContract{snapshot: &types.PoolSnapshot{TotalAvailable: mustDecimal(t, "100")}}
	o := newLock(exchange, &fakeVerifier{}, bullishSignals(30), contract, &fakeRecorder{})

	result, err := o.Lock(context.Background(), "header")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !result.Success || contract.lockCalls != 1 {
		t.Errorf("lock should proceed without market data: %+v", result)
	}
	if len(exchange.createdOrders) != 0 {
		t.Error("no order should be placed without market data")
	}
}

func TestLockOrderFailureStillLocks(t *testing.T) {
	t.Parallel()

	exchange := healthyExchange(t)
	exchange.createOrderErr = &types.ExchangeError{Method: "private/create-order", Code: 213, Message: "Invalid instrument"}
	contract := &fakeContract{snapshot: &types.PoolSnapshot{TotalAvailable: mustDecimal(t, "100")}}
	o := newLock(exchange, &fakeVerifier{}, bullishSignals(30), contract, &fakeRecorder{})

	result, err := o.Lock(context.Background(), "header")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if contract.lockCalls != 1 {
		t.Error("order failure must not block the lock")
	}
	if result.OrderResult == nil || result.OrderResult.Error == "" {
		t.Errorf("order failure should be captured: %+v", result.OrderResult)
	}
}

func TestLockWrongOperatorAborts(t *testing.T) {
	t.Parallel()

	contract := &fakeContract{
		operator: strangerAddr,
		snapshot: &types.PoolSnapshot{TotalAvailable: mustDecimal(t, "100")},
	}
	o := newLock(healthyExchange(t), &fakeVerifier{}, bullishSignals(30), contract, &fakeRecorder{})

	_, err := o.Lock(context.Background(), "header")
	var cfgErr *types.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
	if contract.lockCalls != 0 {
		t.Error("wrong operator must never lock")
	}
}

func TestLockContractRevertSurfaces(t *testing.T) {
	t.Parallel()

	contract := &fakeContract{
		snapshot: &types.PoolSnapshot{TotalAvailable: mustDecimal(t, "100")},
		lockErr:  errors.New("execution reverted: already locked"),
	}
	o := newLock(healthyExchange(t), &fakeVerifier{}, bullishSignals(30), contract, &fakeRecorder{})

	_, err := o.Lock(context.Background(), "header")
	if err == nil {
		t.Fatal("lock revert must surface")
	}
	if contract.lockCalls != 1 {
		t.Errorf("lockGlobal calls = %d, want 1 (no retry)", contract.lockCalls)
	}
}

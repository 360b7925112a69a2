package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"vault-operator/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	operatorAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	strangerAddr = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	lockTxHash   = common.HexToHash("0x11")
	unlockTxHash = common.HexToHash("0x22")
)

type fakeExchange struct {
	ticker    *types.Ticker
	tickerErr error
	spec      *types.InstrumentSpec
	specErr   error

	positions    []types.ExchangePosition
	positionsErr error

	createOrderErr error
	createdOrders  []types.OrderRequest

	cancelErr   error
	cancelCalls int

	closeErr   error
	closeCalls int
}

func (f *fakeExchange) CreateOrder(ctx context.Context, order types.OrderRequest) (*types.OrderResult, error) {
	f.createdOrders = append(f.createdOrders, order)
	if f.createOrderErr != nil {
		return nil, f.createOrderErr
	}
	return &types.OrderResult{OrderID: "o-1", Status: "FILLED"}, nil
}

func (f *fakeExchange) CancelAllOrders(ctx context.Context, instrument string) error {
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeExchange) GetPositions(ctx context.Context, instrument string) ([]types.ExchangePosition, error) {
	return f.positions, f.positionsErr
}

func (f *fakeExchange) ClosePosition(ctx context.Context, instrument string) (string, error) {
	f.closeCalls++
	if f.closeErr != nil {
		return "", f.closeErr
	}
	return "c-1", nil
}

func (f *fakeExchange) GetTicker(ctx context.Context, instrument string) (*types.Ticker, error) {
	return f.ticker, f.tickerErr
}

func (f *fakeExchange) GetInstrument(ctx context.Context, instrument string) (*types.InstrumentSpec, error) {
	return f.spec, f.specErr
}

type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) Requirements() types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            "exact",
		Network:           "cronos-testnet",
		Asset:             "0x5C7F8A570d578ED84E63fdFA7b1eE72dEae1AE23",
		MaxAmountRequired: "1000000000000000000",
	}
}

func (f *fakeVerifier) Verify(header string, now time.Time) (*types.PaymentAuthorization, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.PaymentAuthorization{From: "0xpayer"}, nil
}

type fakeSignals struct {
	decision *types.AIDecision
	err      error
}

func (f *fakeSignals) Decide(ctx context.Context, mc types.MarketContext) (*types.AIDecision, error) {
	return f.decision, f.err
}

type fakeContract struct {
	operator common.Address
	opErr    error

	snapshot    *types.PoolSnapshot
	snapshotErr error

	lockCalls int
	lockErr   error

	unlockCalls int
	unlockErr   error

	profitCalls  int
	profitErr    error
	lastProfit   decimal.Decimal
	lossCalls    int
	lossErr      error
	lastLoss     decimal.Decimal
	reportBroken bool
}

func (f *fakeContract) Operator(ctx context.Context) (common.Address, error) {
	if f.opErr != nil {
		return common.Address{}, f.opErr
	}
	if f.operator == (common.Address{}) {
		return operatorAddr, nil
	}
	return f.operator, nil
}

func (f *fakeContract) Snapshot(ctx context.Context) (*types.PoolSnapshot, error) {
	return f.snapshot, f.snapshotErr
}

func (f *fakeContract) LockGlobal(ctx context.Context) (common.Hash, error) {
	f.lockCalls++
	if f.lockErr != nil {
		return common.Hash{}, f.lockErr
	}
	return lockTxHash, nil
}

func (f *fakeContract) UnlockGlobal(ctx context.Context) (common.Hash, error) {
	f.unlockCalls++
	if f.unlockErr != nil {
		return common.Hash{}, f.unlockErr
	}
	return unlockTxHash, nil
}

func (f *fakeContract) ReportProfit(ctx context.Context, profitCRO decimal.Decimal) (common.Hash, error) {
	f.profitCalls++
	f.lastProfit = profitCRO
	if f.reportBroken || f.profitErr != nil {
		return common.Hash{}, errors.New("execution reverted")
	}
	return common.HexToHash("0x33"), nil
}

func (f *fakeContract) ReportLoss(ctx context.Context, lossCRO decimal.Decimal) (common.Hash, error) {
	f.lossCalls++
	f.lastLoss = lossCRO
	if f.reportBroken || f.lossErr != nil {
		return common.Hash{}, errors.New("execution reverted")
	}
	return common.HexToHash("0x44"), nil
}

func (f *fakeContract) SignerAddress() common.Address {
	return operatorAddr
}

type fakeRecorder struct {
	records  []types.ActivityRecord
	statuses []types.SignalStatus
	err      error
}

func (f *fakeRecorder) Record(ctx context.Context, rec types.ActivityRecord) (*types.ActivityRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.records = append(f.records, rec)
	return &rec, nil
}

func (f *fakeRecorder) SetAIStatus(ctx context.Context, d types.AIDecision) error {
	if f.err != nil {
		return f.err
	}
	f.statuses = append(f.statuses, d.Status)
	return nil
}

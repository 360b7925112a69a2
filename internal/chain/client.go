// Package chain talks to the pool vault contract on Cronos.
//
// All pool-level state transitions (lock, unlock, profit/loss reporting)
// go through here. Transactions are serialized on a single mutex because
// they share one operator account nonce.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"vault-operator/internal/config"
	"vault-operator/pkg/types"
)

// Minimal ABI surface of the pool vault. Kept by hand rather than
// generated because only six functions are used.
const vaultABI = `[
	{"name":"operator","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"address"}]},
	{"name":"totalAvailable","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"name":"totalInPosition","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"name":"lockGlobal","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"name":"unlockGlobal","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"name":"reportProfit","type":"function","stateMutability":"payable","inputs":[],"outputs":[]},
	{"name":"reportLoss","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// weiPerCRO is the 10^18 scaling between CRO amounts and wei.
var weiPerCRO = decimal.New(1, 18)

// Client wraps the vault contract with typed read and transact methods.
type Client struct {
	eth     *ethclient.Client
	abi     abi.ABI
	vault   common.Address
	key     *ecdsa.PrivateKey
	signer  common.Address
	chainID *big.Int
	logger  *slog.Logger

	// txMu serializes transactions; they share the operator account nonce.
	txMu sync.Mutex
}

// NewClient dials the RPC endpoint and prepares the vault binding.
func NewClient(cfg config.WalletConfig, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", cfg.RPCURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Client{
		eth:     eth,
		abi:     parsed,
		vault:   common.HexToAddress(cfg.VaultAddress),
		key:     key,
		signer:  crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(cfg.ChainID),
		logger:  logger.With("component", "chain"),
	}, nil
}

// SignerAddress returns the operator account this client signs with.
func (c *Client) SignerAddress() common.Address {
	return c.signer
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ————————————————————————————————————————————————————————————————————————
// Reads
// ————————————————————————————————————————————————————————————————————————

func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, &types.ContractError{Op: method, Err: err}
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.vault, Data: data}, nil)
	if err != nil {
		return nil, &types.ContractError{Op: method, Err: err}
	}
	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, &types.ContractError{Op: method, Err: err}
	}
	return out, nil
}

// Operator returns the address the vault recognizes as its operator.
func (c *Client) Operator(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, "operator")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// TotalAvailable returns the unlocked pool capital in CRO.
func (c *Client) TotalAvailable(ctx context.Context) (decimal.Decimal, error) {
	return c.readCRO(ctx, "totalAvailable")
}

// TotalInPosition returns the pool capital currently deployed, in CRO.
func (c *Client) TotalInPosition(ctx context.Context) (decimal.Decimal, error) {
	return c.readCRO(ctx, "totalInPosition")
}

func (c *Client) readCRO(ctx context.Context, method string) (decimal.Decimal, error) {
	out, err := c.call(ctx, method)
	if err != nil {
		return decimal.Zero, err
	}
	wei, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, &types.ContractError{Op: method, Err: fmt.Errorf("unexpected return type %T", out[0])}
	}
	return decimal.NewFromBigInt(wei, -18), nil
}

// Snapshot fetches both pool balances concurrently.
func (c *Client) Snapshot(ctx context.Context) (*types.PoolSnapshot, error) {
	var snap types.PoolSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		avail, err := c.TotalAvailable(gctx)
		if err != nil {
			return err
		}
		snap.TotalAvailable = avail
		return nil
	})
	g.Go(func() error {
		inPos, err := c.TotalInPosition(gctx)
		if err != nil {
			return err
		}
		snap.TotalInPosition = inPos
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ————————————————————————————————————————————————————————————————————————
// Transactions
// ————————————————————————————————————————————————————————————————————————

// transact sends one vault transaction and waits for its receipt.
func (c *Client) transact(ctx context.Context, method string, value *big.Int, args ...any) (common.Hash, error) {
	c.txMu.Lock()
	defer c.txMu.Unlock()

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, &types.ContractError{Op: method, Err: err}
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.signer)
	if err != nil {
		return common.Hash{}, &types.ContractError{Op: method, Err: fmt.Errorf("pending nonce: %w", err)}
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, &types.ContractError{Op: method, Err: fmt.Errorf("gas price: %w", err)}
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.signer,
		To:       &c.vault,
		Value:    value,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		return common.Hash{}, &types.ContractError{Op: method, Err: fmt.Errorf("estimate gas: %w", err)}
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &c.vault,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, &types.ContractError{Op: method, Err: fmt.Errorf("sign tx: %w", err)}
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, &types.ContractError{Op: method, Err: fmt.Errorf("send tx: %w", err)}
	}

	c.logger.Info("transaction sent", "method", method, "tx", signed.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return signed.Hash(), &types.ContractError{Op: method, Err: fmt.Errorf("wait mined: %w", err)}
	}
	if receipt.Status == ethtypes.ReceiptStatusFailed {
		return signed.Hash(), &types.ContractError{Op: method, Err: fmt.Errorf("execution reverted (tx %s)", signed.Hash().Hex())}
	}

	c.logger.Info("transaction mined",
		"method", method,
		"tx", signed.Hash().Hex(),
		"block", receipt.BlockNumber.Uint64(),
		"gas_used", receipt.GasUsed,
	)
	return signed.Hash(), nil
}

// LockGlobal moves the pool into the locked state.
func (c *Client) LockGlobal(ctx context.Context) (common.Hash, error) {
	return c.transact(ctx, "lockGlobal", nil)
}

// UnlockGlobal releases the pool back to accepting deposits and withdrawals.
func (c *Client) UnlockGlobal(ctx context.Context) (common.Hash, error) {
	return c.transact(ctx, "unlockGlobal", nil)
}

// ReportProfit returns trading profit to the pool. The profit itself rides
// as the transaction value, so the operator account must hold it.
func (c *Client) ReportProfit(ctx context.Context, profitCRO decimal.Decimal) (common.Hash, error) {
	wei, err := CROToWei(profitCRO)
	if err != nil {
		return common.Hash{}, &types.ContractError{Op: "reportProfit", Err: err}
	}
	return c.transact(ctx, "reportProfit", wei)
}

// ReportLoss debits the pool by the realized loss.
func (c *Client) ReportLoss(ctx context.Context, lossCRO decimal.Decimal) (common.Hash, error) {
	wei, err := CROToWei(lossCRO)
	if err != nil {
		return common.Hash{}, &types.ContractError{Op: "reportLoss", Err: err}
	}
	return c.transact(ctx, "reportLoss", nil, wei)
}

// CROToWei converts a positive CRO amount to wei, truncating sub-wei dust.
func CROToWei(amount decimal.Decimal) (*big.Int, error) {
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %s", amount)
	}
	return amount.Mul(weiPerCRO).BigInt(), nil
}

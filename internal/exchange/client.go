// Package exchange implements the signed REST client for the derivatives
// exchange holding the vault's trading account.
//
// The client talks to a Crypto.com Exchange-style API:
//   - CreateOrder:      POST private/create-order      — place a limit order
//   - CancelAllOrders:  POST private/cancel-all-orders — pull every open order
//   - GetPositions:     POST private/get-positions     — open positions
//   - ClosePosition:    POST private/close-position    — market-close a position
//   - GetTicker:        GET  public/get-tickers        — top of book
//   - GetInstrument:    GET  public/get-instruments    — venue constraints
//
// Private calls are authenticated by an HMAC signature over the canonical
// request payload (see sign.go) and are never retried automatically — a
// blind retry after an ambiguous failure could double-place or double-close.
// Public market-data reads are retried on 5xx since they are idempotent.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"vault-operator/internal/config"
	"vault-operator/pkg/types"
)

// API method names. Private methods are signed; public methods are not.
const (
	MethodCreateOrder     = "private/create-order"
	MethodCancelAllOrders = "private/cancel-all-orders"
	MethodGetPositions    = "private/get-positions"
	MethodClosePosition   = "private/close-position"
	MethodGetTickers      = "public/get-tickers"
	MethodGetInstruments  = "public/get-instruments"
)

// Client is the exchange REST API client. It wraps a resty HTTP client with
// per-category rate limiting and one shared decode/error path for every
// private method.
type Client struct {
	http   *resty.Client
	market *resty.Client // separate client: public reads retry on 5xx, private calls never do
	apiKey string
	secret string
	rl     *RateLimiter
	logger *slog.Logger
	idSeq  atomic.Int64
}

// NewClient creates an exchange client from config.
func NewClient(cfg config.ExchangeConfig, logger *slog.Logger) *Client {
	private := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")

	market := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &Client{
		http:   private,
		market: market,
		apiKey: cfg.APIKey,
		secret: cfg.Secret,
		rl:     NewRateLimiter(),
		logger: logger.With("component", "exchange"),
	}
}

// apiRequest is the signed POST body every private method sends.
type apiRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	APIKey string         `json:"api_key"`
	Params map[string]any `json:"params,omitempty"`
	Nonce  int64          `json:"nonce"`
	Sig    string         `json:"sig"`
}

// apiResponse is the envelope every method answers with. Code != 0 means
// the call was rejected; Result is only meaningful when Code == 0.
type apiResponse struct {
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Code    int64           `json:"code"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Call issues one signed private POST and decodes the response envelope.
// Code != 0 surfaces as *types.ExchangeError; transport failures surface as
// *types.NetworkError. Callers decide whether a failure is fatal.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if err := c.rl.bucketFor(method).Wait(ctx); err != nil {
		return nil, err
	}

	id := c.idSeq.Add(1)
	nonce := time.Now().UnixMilli()

	req := apiRequest{
		ID:     id,
		Method: method,
		APIKey: c.apiKey,
		Params: params,
		Nonce:  nonce,
		Sig:    Sign(method, id, c.apiKey, params, nonce, c.secret),
	}

	var result apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&result).
		Post("/" + method)
	if err != nil {
		return nil, &types.NetworkError{Op: method, Err: err}
	}
	if result.Code != 0 {
		return nil, &types.ExchangeError{Method: method, Code: result.Code, Message: result.Message}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &types.NetworkError{Op: method, Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	}
	return result.Result, nil
}

// ————————————————————————————————————————————————————————————————————————
// Private methods
// ————————————————————————————————————————————————————————————————————————

// createOrderResult is the result payload of private/create-order.
type createOrderResult struct {
	OrderID   string `json:"order_id"`
	ClientOID string `json:"client_oid"`
}

// CreateOrder places a pre-sized, pre-rounded order.
func (c *Client) CreateOrder(ctx context.Context, order types.OrderRequest) (*types.OrderResult, error) {
	params := map[string]any{
		"instrument_name": order.Instrument,
		"side":            string(order.Side),
		"type":            string(order.Type),
		"quantity":        order.Quantity.String(),
	}
	if order.Type == types.OrderTypeLimit {
		params["price"] = order.Price.String()
	}

	raw, err := c.Call(ctx, MethodCreateOrder, params)
	if err != nil {
		return nil, err
	}

	var result createOrderResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode create-order result: %w", err)
	}

	c.logger.Info("order placed",
		"instrument", order.Instrument,
		"side", order.Side,
		"quantity", order.Quantity.String(),
		"price", order.Price.String(),
		"order_id", result.OrderID,
	)
	return &types.OrderResult{OrderID: result.OrderID, Status: "submitted"}, nil
}

// CancelAllOrders pulls every open order for the instrument.
func (c *Client) CancelAllOrders(ctx context.Context, instrument string) error {
	_, err := c.Call(ctx, MethodCancelAllOrders, map[string]any{
		"instrument_name": instrument,
	})
	if err != nil {
		return err
	}
	c.logger.Info("open orders cancelled", "instrument", instrument)
	return nil
}

// positionData is one entry of the private/get-positions result. Numeric
// fields arrive as strings to preserve decimal precision.
type positionData struct {
	InstrumentName string `json:"instrument_name"`
	Quantity       string `json:"quantity"`
	OpenPositionPx string `json:"open_position_px"`
	MarkPrice      string `json:"mark_price"`
}

type positionsResult struct {
	Data []positionData `json:"data"`
}

// GetPositions fetches open positions, optionally filtered by instrument
// (empty = all).
func (c *Client) GetPositions(ctx context.Context, instrument string) ([]types.ExchangePosition, error) {
	params := map[string]any{}
	if instrument != "" {
		params["instrument_name"] = instrument
	}

	raw, err := c.Call(ctx, MethodGetPositions, params)
	if err != nil {
		return nil, err
	}

	var result positionsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode positions result: %w", err)
	}

	positions := make([]types.ExchangePosition, 0, len(result.Data))
	for _, p := range result.Data {
		qty, err := decimal.NewFromString(p.Quantity)
		if err != nil {
			return nil, fmt.Errorf("parse position quantity %q: %w", p.Quantity, err)
		}
		entry, err := decimal.NewFromString(p.OpenPositionPx)
		if err != nil {
			return nil, fmt.Errorf("parse position entry price %q: %w", p.OpenPositionPx, err)
		}
		mark, err := decimal.NewFromString(p.MarkPrice)
		if err != nil {
			return nil, fmt.Errorf("parse position mark price %q: %w", p.MarkPrice, err)
		}
		positions = append(positions, types.ExchangePosition{
			Instrument:    p.InstrumentName,
			Quantity:      qty,
			AvgEntryPrice: entry,
			MarkPrice:     mark,
		})
	}
	return positions, nil
}

// ClosePosition market-closes the whole position for the instrument and
// returns the close order ID. Never retried: a duplicate close would open
// an opposite position.
func (c *Client) ClosePosition(ctx context.Context, instrument string) (string, error) {
	raw, err := c.Call(ctx, MethodClosePosition, map[string]any{
		"instrument_name": instrument,
		"type":            string(types.OrderTypeMarket),
	})
	if err != nil {
		return "", err
	}

	var result createOrderResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode close-position result: %w", err)
	}

	c.logger.Info("position close submitted", "instrument", instrument, "order_id", result.OrderID)
	return result.OrderID, nil
}

// ————————————————————————————————————————————————————————————————————————
// Public market data
// ————————————————————————————————————————————————————————————————————————

// tickerData is one entry of the public/get-tickers result. The exchange
// uses single-letter field names: b = best bid, k = best ask, a = last.
type tickerData struct {
	InstrumentName string `json:"i"`
	BestBid        string `json:"b"`
	BestAsk        string `json:"k"`
	LastTrade      string `json:"a"`
}

type tickersResult struct {
	Data []tickerData `json:"data"`
}

// GetTicker fetches the top of book for one instrument.
func (c *Client) GetTicker(ctx context.Context, instrument string) (*types.Ticker, error) {
	if err := c.rl.Market.Wait(ctx); err != nil {
		return nil, err
	}

	var envelope struct {
		Code    int64         `json:"code"`
		Message string        `json:"message,omitempty"`
		Result  tickersResult `json:"result"`
	}
	resp, err := c.market.R().
		SetContext(ctx).
		SetQueryParam("instrument_name", instrument).
		SetResult(&envelope).
		Get("/" + MethodGetTickers)
	if err != nil {
		return nil, &types.NetworkError{Op: MethodGetTickers, Err: err}
	}
	if envelope.Code != 0 {
		return nil, &types.ExchangeError{Method: MethodGetTickers, Code: envelope.Code, Message: envelope.Message}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &types.NetworkError{Op: MethodGetTickers, Err: fmt.Errorf("status %d", resp.StatusCode())}
	}
	if len(envelope.Result.Data) == 0 {
		return nil, fmt.Errorf("no ticker for %s", instrument)
	}

	d := envelope.Result.Data[0]
	bid, err := decimal.NewFromString(d.BestBid)
	if err != nil {
		return nil, fmt.Errorf("parse best bid %q: %w", d.BestBid, err)
	}
	ask, err := decimal.NewFromString(d.BestAsk)
	if err != nil {
		return nil, fmt.Errorf("parse best ask %q: %w", d.BestAsk, err)
	}
	last, err := decimal.NewFromString(d.LastTrade)
	if err != nil {
		return nil, fmt.Errorf("parse last trade %q: %w", d.LastTrade, err)
	}

	return &types.Ticker{
		Instrument: instrument,
		BestBid:    bid,
		BestAsk:    ask,
		LastPrice:  last,
	}, nil
}

// instrumentData is one entry of the public/get-instruments result.
type instrumentData struct {
	InstrumentName   string `json:"instrument_name"`
	QuantityDecimals int32  `json:"quantity_decimals"`
	QuoteDecimals    int32  `json:"quote_decimals"`
	MinQuantity      string `json:"min_quantity"`
	QtyTickSize      string `json:"qty_tick_size"`
}

type instrumentsResult struct {
	Instruments []instrumentData `json:"instruments"`
}

// GetInstrument fetches the venue constraints for one instrument. Callers
// must re-read per workflow invocation — constraints can change.
func (c *Client) GetInstrument(ctx context.Context, instrument string) (*types.InstrumentSpec, error) {
	if err := c.rl.Market.Wait(ctx); err != nil {
		return nil, err
	}

	var envelope struct {
		Code    int64             `json:"code"`
		Message string            `json:"message,omitempty"`
		Result  instrumentsResult `json:"result"`
	}
	resp, err := c.market.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get("/" + MethodGetInstruments)
	if err != nil {
		return nil, &types.NetworkError{Op: MethodGetInstruments, Err: err}
	}
	if envelope.Code != 0 {
		return nil, &types.ExchangeError{Method: MethodGetInstruments, Code: envelope.Code, Message: envelope.Message}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &types.NetworkError{Op: MethodGetInstruments, Err: fmt.Errorf("status %d", resp.StatusCode())}
	}

	for _, inst := range envelope.Result.Instruments {
		if inst.InstrumentName != instrument {
			continue
		}
		minQty, err := decimal.NewFromString(inst.MinQuantity)
		if err != nil {
			return nil, fmt.Errorf("parse min quantity %q: %w", inst.MinQuantity, err)
		}
		tick, err := decimal.NewFromString(inst.QtyTickSize)
		if err != nil {
			return nil, fmt.Errorf("parse qty tick size %q: %w", inst.QtyTickSize, err)
		}
		return &types.InstrumentSpec{
			Instrument:       inst.InstrumentName,
			QuantityDecimals: inst.QuantityDecimals,
			QuoteDecimals:    inst.QuoteDecimals,
			MinQuantity:      minQty,
			QtyTickSize:      tick,
		}, nil
	}
	return nil, fmt.Errorf("instrument %s not listed", instrument)
}

// Package signal obtains a trade decision from an AI model.
//
// The client speaks a chat-completions style HTTP API and asks the model
// for a single strict-JSON object. Everything the model returns is
// normalized before use so malformed or out-of-range output can never
// reach the order path.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"

	"vault-operator/internal/config"
	"vault-operator/pkg/types"
)

const systemPrompt = `You are a disciplined perpetual-futures trading analyst.
Respond with a single JSON object and nothing else:
{"status":"BULLISH|BEARISH|NEUTRAL","action":"BUY|SELL|HOLD","positionSizePercent":<0-100>,"leverage":<1-5>,"reasoning":"<one sentence>"}`

// Client requests one decision per pool lock attempt.
type Client struct {
	http   *resty.Client
	model  string
	logger *slog.Logger
}

// NewClient builds a signal client from AI config.
func NewClient(cfg config.AIConfig, logger *slog.Logger) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.APIKey)

	return &Client{
		http:   http,
		model:  cfg.Model,
		logger: logger.With("component", "signal"),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Decide asks the model for a trade decision given current market and pool
// state. The returned decision is always normalized.
func (c *Client) Decide(ctx context.Context, mc types.MarketContext) (*types.AIDecision, error) {
	user := fmt.Sprintf(
		"Instrument: %s\nBest bid: %s\nBest ask: %s\nLast price: %s\nPool capital (CRO): %s\nDecide now.",
		mc.Instrument, mc.BestBid, mc.BestAsk, mc.LastPrice, mc.PoolTotal,
	)

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: user},
			},
		}).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, &types.NetworkError{Op: "ai decide", Err: err}
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return nil, &types.NetworkError{Op: "ai decide", Err: fmt.Errorf("model endpoint: %s", msg)}
	}
	if len(out.Choices) == 0 {
		return nil, &types.NetworkError{Op: "ai decide", Err: fmt.Errorf("empty completion")}
	}

	decision, err := parseDecision(out.Choices[0].Message.Content)
	if err != nil {
		c.logger.Warn("unparseable model output", "error", err)
		return nil, err
	}
	Normalize(decision)

	c.logger.Info("decision received",
		"status", decision.Status,
		"action", decision.Action,
		"size_pct", decision.PositionSizePercent,
		"leverage", decision.Leverage,
	)
	return decision, nil
}

// parseDecision extracts the JSON object from the completion text. Models
// occasionally wrap the object in code fences or prose, so the parse is
// anchored on the outermost braces.
func parseDecision(content string) (*types.AIDecision, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in completion: %q", truncate(content, 80))
	}

	var d types.AIDecision
	if err := json.Unmarshal([]byte(content[start:end+1]), &d); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	return &d, nil
}

// Normalize clamps a decision into its documented ranges in place. An
// unknown status becomes NEUTRAL; NEUTRAL (or HOLD) zeroes the sizing
// fields so no order can be built from it.
func Normalize(d *types.AIDecision) {
	switch d.Status {
	case types.StatusBullish, types.StatusBearish, types.StatusNeutral:
	default:
		d.Status = types.StatusNeutral
	}
	switch d.Action {
	case types.ActionBuy, types.ActionSell, types.ActionHold:
	default:
		d.Action = types.ActionHold
	}

	if d.Status == types.StatusNeutral || d.Action == types.ActionHold {
		d.Action = types.ActionHold
		d.PositionSizePercent = 0
		d.Leverage = 1
		return
	}

	if d.PositionSizePercent < 0 {
		d.PositionSizePercent = 0
	}
	if d.PositionSizePercent > 100 {
		d.PositionSizePercent = 100
	}
	if d.Leverage < 1 {
		d.Leverage = 1
	}
	if d.Leverage > 5 {
		d.Leverage = 5
	}
}

// DefaultDecision is the stand-in used when no signal can be obtained.
func DefaultDecision() *types.AIDecision {
	return &types.AIDecision{
		Status:    types.StatusNeutral,
		Action:    types.ActionHold,
		Leverage:  1,
		Reasoning: "signal unavailable",
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

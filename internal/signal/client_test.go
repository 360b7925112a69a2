package signal

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vault-operator/internal/config"
	"vault-operator/pkg/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.AIConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}
	return NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func completion(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func TestDecideParsesStrictJSON(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion(
			`{"status":"BULLISH","action":"BUY","positionSizePercent":30,"leverage":2,"reasoning":"momentum"}`,
		))
	})

	d, err := client.Decide(context.Background(), types.MarketContext{Instrument: "CROUSD-PERP"})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Status != types.StatusBullish || d.Action != types.ActionBuy {
		t.Errorf("decision = %+v", d)
	}
	if d.PositionSizePercent != 30 || d.Leverage != 2 {
		t.Errorf("sizing = %v%% %dx", d.PositionSizePercent, d.Leverage)
	}
}

func TestDecideExtractsFencedJSON(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion(
			"Here is my analysis:\n```json\n{\"status\":\"BEARISH\",\"action\":\"SELL\",\"positionSizePercent\":10,\"leverage\":1,\"reasoning\":\"weak\"}\n```",
		))
	})

	d, err := client.Decide(context.Background(), types.MarketContext{})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != types.ActionSell {
		t.Errorf("action = %q", d.Action)
	}
}

func TestDecideRejectsProseOnly(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion("I think the market looks good today."))
	})

	if _, err := client.Decide(context.Background(), types.MarketContext{}); err == nil {
		t.Error("prose-only completion should error")
	}
}

func TestDecideEndpointError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "rate limited"}})
	})

	_, err := client.Decide(context.Background(), types.MarketContext{})
	if err == nil {
		t.Fatal("endpoint error should propagate")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   types.AIDecision
		want types.AIDecision
	}{
		{
			name: "neutral zeroes sizing",
			in:   types.AIDecision{Status: types.StatusNeutral, Action: types.ActionBuy, PositionSizePercent: 50, Leverage: 3},
			want: types.AIDecision{Status: types.StatusNeutral, Action: types.ActionHold, PositionSizePercent: 0, Leverage: 1},
		},
		{
			name: "unknown status becomes neutral",
			in:   types.AIDecision{Status: "MOON", Action: types.ActionBuy, PositionSizePercent: 50, Leverage: 3},
			want: types.AIDecision{Status: types.StatusNeutral, Action: types.ActionHold, PositionSizePercent: 0, Leverage: 1},
		},
		{
			name: "percent clamped high",
			in:   types.AIDecision{Status: types.StatusBullish, Action: types.ActionBuy, PositionSizePercent: 250, Leverage: 2},
			want: types.AIDecision{Status: types.StatusBullish, Action: types.ActionBuy, PositionSizePercent: 100, Leverage: 2},
		},
		{
			name: "leverage clamped both ends",
			in:   types.AIDecision{Status: types.StatusBearish, Action: types.ActionSell, PositionSizePercent: 10, Leverage: 9},
			want: types.AIDecision{Status: types.StatusBearish, Action: types.ActionSell, PositionSizePercent: 10, Leverage: 5},
		},
		{
			name: "zero leverage raised to one",
			in:   types.AIDecision{Status: types.StatusBullish, Action: types.ActionBuy, PositionSizePercent: 10, Leverage: 0},
			want: types.AIDecision{Status: types.StatusBullish, Action: types.ActionBuy, PositionSizePercent: 10, Leverage: 1},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := tc.in
			Normalize(&d)
			d.Reasoning = ""
			if d != tc.want {
				t.Errorf("Normalize(%+v) = %+v, want %+v", tc.in, d, tc.want)
			}
		})
	}
}

func TestDefaultDecisionHolds(t *testing.T) {
	t.Parallel()

	if !DefaultDecision().Hold() {
		t.Error("default decision must hold")
	}
}

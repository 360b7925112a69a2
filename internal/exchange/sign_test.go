package exchange

import (
	"testing"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	t.Parallel()

	// Two insertion orders of an equivalent mapping must canonicalize
	// identically — map iteration order must never leak into the payload.
	a := map[string]any{
		"instrument_name": "CROUSD-PERP",
		"side":            "BUY",
		"price":           "0.085",
		"quantity":        "100",
	}
	b := map[string]any{
		"quantity":        "100",
		"price":           "0.085",
		"side":            "BUY",
		"instrument_name": "CROUSD-PERP",
	}

	got := Canonicalize(a)
	want := "instrument_nameCROUSD-PERPprice0.085quantity100sideBUY"
	if got != want {
		t.Errorf("Canonicalize = %q, want %q", got, want)
	}
	if Canonicalize(b) != got {
		t.Errorf("key ordering changed output: %q vs %q", Canonicalize(b), got)
	}
}

func TestCanonicalizeNested(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{
			name: "nested mapping recursed in key order",
			params: map[string]any{
				"outer": map[string]any{"b": "2", "a": "1"},
				"top":   "x",
			},
			want: "outera1b2topx",
		},
		{
			name: "array elements positional without key prefix",
			params: map[string]any{
				"legs": []any{
					map[string]any{"sym": "A", "qty": "1"},
					map[string]any{"sym": "B", "qty": "2"},
				},
			},
			want: "legsqty1symAqty2symB",
		},
		{
			name:   "nil values skipped entirely",
			params: map[string]any{"a": "1", "b": nil, "c": "3"},
			want:   "a1c3",
		},
		{
			name:   "nil inside array skipped",
			params: map[string]any{"xs": []any{"1", nil, "3"}},
			want:   "xs13",
		},
		{
			name:   "empty params",
			params: nil,
			want:   "",
		},
		{
			name:   "mixed scalar types",
			params: map[string]any{"b": true, "n": int64(42), "f": 0.5},
			want:   "btruef0.5n42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Canonicalize(tt.params); got != tt.want {
				t.Errorf("Canonicalize = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSignIsPure(t *testing.T) {
	t.Parallel()

	params := map[string]any{"instrument_name": "CROUSD-PERP", "type": "MARKET"}
	first := Sign("private/close-position", 7, "key-1", params, 1700000000000, "secret-1")

	for i := 0; i < 10; i++ {
		if got := Sign("private/close-position", 7, "key-1", params, 1700000000000, "secret-1"); got != first {
			t.Fatalf("Sign not deterministic: %q vs %q", got, first)
		}
	}
}

func TestSignKnownVector(t *testing.T) {
	t.Parallel()

	// payload = "private/get-positions" + "1" + "key" + "instrument_nameX" + "2"
	// Pinned so any change to payload assembly or hex casing fails loudly.
	got := Sign("private/get-positions", 1, "key", map[string]any{"instrument_name": "X"}, 2, "secret")
	want := "1ab37e17643775bd13146728794bdaf60fbfaee12436fb9070170eb0d8eb0d0f"
	if got != want {
		t.Errorf("Sign = %q, want %q", got, want)
	}
	if got != "" && got != sanitizeLower(got) {
		t.Errorf("signature not lowercase hex: %q", got)
	}
}

func TestSignDiffersPerField(t *testing.T) {
	t.Parallel()

	base := Sign("m", 1, "k", map[string]any{"a": "1"}, 2, "s")

	if Sign("m2", 1, "k", map[string]any{"a": "1"}, 2, "s") == base {
		t.Error("method change did not change signature")
	}
	if Sign("m", 9, "k", map[string]any{"a": "1"}, 2, "s") == base {
		t.Error("id change did not change signature")
	}
	if Sign("m", 1, "k", map[string]any{"a": "2"}, 2, "s") == base {
		t.Error("param change did not change signature")
	}
	if Sign("m", 1, "k", map[string]any{"a": "1"}, 3, "s") == base {
		t.Error("nonce change did not change signature")
	}
	if Sign("m", 1, "k", map[string]any{"a": "1"}, 2, "s2") == base {
		t.Error("secret change did not change signature")
	}
}

func sanitizeLower(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + ('a' - 'A')
		}
	}
	return string(out)
}

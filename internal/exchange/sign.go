// sign.go implements request signing for the exchange REST API.
//
// Every private call carries sig = HMAC-SHA256(secret, payload) rendered as
// lowercase hex, where
//
//	payload = method + id + apiKey + canonicalize(params) + nonce
//
// canonicalize must be byte-for-byte deterministic: the exchange recomputes
// the same string server-side, so any key-ordering or null-handling
// divergence invalidates the signature.
package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
)

// Sign computes the request signature for a private API call.
// Same inputs always produce the same signature.
func Sign(method string, id int64, apiKey string, params map[string]any, nonce int64, secret string) string {
	payload := method +
		strconv.FormatInt(id, 10) +
		apiKey +
		Canonicalize(params) +
		strconv.FormatInt(nonce, 10)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Canonicalize flattens a parameter mapping into the exchange's canonical
// string form: keys sorted lexicographically at every nesting level, each
// scalar rendered as key+value, nested mappings recursed in key order,
// array elements appended positionally with no key prefix, and nil values
// skipped entirely.
func Canonicalize(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []byte
	for _, k := range keys {
		v := params[k]
		if v == nil {
			continue
		}
		out = append(out, k...)
		out = append(out, canonicalValue(v)...)
	}
	return string(out)
}

// canonicalValue renders one value (scalar, mapping, or sequence) without a
// key prefix.
func canonicalValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case json.Number:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		// Shortest representation that round-trips, matching JSON encoding.
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any:
		return Canonicalize(val)
	case []any:
		var out []byte
		for _, elem := range val {
			if elem == nil {
				continue
			}
			out = append(out, canonicalValue(elem)...)
		}
		return string(out)
	default:
		// Unknown scalar types fall back to their JSON encoding.
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

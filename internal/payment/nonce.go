package payment

import (
	"strings"
	"sync"
	"time"
)

// nonceLedger tracks consumed authorization nonces so a captured header
// cannot be replayed within its validity window. Entries expire at the
// authorization's validBefore; after that the window check rejects the
// header anyway, so the entry is no longer needed.
//
// The ledger is in-process only. A restart forgets consumed nonces, which
// is acceptable because authorizations are short-lived.
type nonceLedger struct {
	mu   sync.Mutex
	seen map[string]time.Time // nonce -> expiry
}

func newNonceLedger() *nonceLedger {
	return &nonceLedger{seen: make(map[string]time.Time)}
}

// consume marks a nonce as used. Returns false if the nonce was already
// consumed and has not yet expired.
func (l *nonceLedger) consume(nonce string, expiry, now time.Time) bool {
	key := strings.ToLower(nonce)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, exp := range l.seen {
		if exp.Before(now) {
			delete(l.seen, k)
		}
	}

	if exp, ok := l.seen[key]; ok && !exp.Before(now) {
		return false
	}
	l.seen[key] = expiry
	return true
}

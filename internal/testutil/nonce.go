package testutil

import (
	"fmt"
	"sync"
)

// SequenceNonce generates predictable secret nonces ("nonce-0001", "nonce-0002", ...).
//
// Replaces the random nonce so scenario traces and golden files stay
// byte-identical across runs.
//
// Thread-safety: safe for concurrent use.
type SequenceNonce struct {
	mu sync.Mutex
	n  int
}

// NewSequenceNonce creates a generator whose first nonce is "nonce-0001".
func NewSequenceNonce() *SequenceNonce {
	return &SequenceNonce{}
}

// Next returns the next nonce. Its signature matches ledger.WithNonce.
func (g *SequenceNonce) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("nonce-%04d", g.n)
}

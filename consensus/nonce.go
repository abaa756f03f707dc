package consensus

// NonceTracker maintains the per-address monotonically increasing counter
// used to prevent replay of account-model transactions. It is not
// goroutine-safe; callers mutating chain state hold the engine's single
// writer lock.
type NonceTracker struct {
	current map[Address]uint64
}

// NewNonceTracker returns an empty tracker; every address starts unseen.
func NewNonceTracker() *NonceTracker {
	return &NonceTracker{current: make(map[Address]uint64)}
}

// Current returns the last-accepted nonce for sender, or 0 if never seen.
func (t *NonceTracker) Current(sender Address) uint64 {
	return t.current[sender]
}

// Expected returns the nonce a transaction from sender must carry to be
// admitted: one greater than the last accepted nonce.
func (t *NonceTracker) Expected(sender Address) uint64 {
	return t.current[sender] + 1
}

// Advance records that nonce has been accepted for sender. Callers must have
// already validated nonce == Expected(sender).
func (t *NonceTracker) Advance(sender Address, nonce uint64) {
	t.current[sender] = nonce
}

// Rewind restores sender's last-accepted nonce to nonce, used when rolling
// back a block during reorg.
func (t *NonceTracker) Rewind(sender Address, nonce uint64) {
	if nonce == 0 {
		delete(t.current, sender)
		return
	}
	t.current[sender] = nonce
}

// Snapshot returns a copy of the tracker's state for rollback bookkeeping.
func (t *NonceTracker) Snapshot() map[Address]uint64 {
	out := make(map[Address]uint64, len(t.current))
	for k, v := range t.current {
		out[k] = v
	}
	return out
}

// Restore replaces the tracker's state wholesale, used to revert to a prior
// snapshot during reorg.
func (t *NonceTracker) Restore(snapshot map[Address]uint64) {
	t.current = make(map[Address]uint64, len(snapshot))
	for k, v := range snapshot {
		t.current[k] = v
	}
}

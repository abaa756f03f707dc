package consensus

// UTXOSet is the authoritative map of spendable outputs. It is not
// goroutine-safe; callers mutating chain state hold the engine's single
// writer lock.
type UTXOSet struct {
	entries map[OutPoint]UTXOEntry
}

// NewUTXOSet returns an empty set.
func NewUTXOSet() *UTXOSet {
	return &UTXOSet{entries: make(map[OutPoint]UTXOEntry)}
}

// Lookup returns the entry for op, if unspent.
func (s *UTXOSet) Lookup(op OutPoint) (UTXOEntry, bool) {
	e, ok := s.entries[op]
	return e, ok
}

// Create installs a new unspent entry, used both for genesis allocation and
// for outputs produced by an applied transaction.
func (s *UTXOSet) Create(op OutPoint, entry UTXOEntry) {
	s.entries[op] = entry
}

// Spend removes an entry, returning it for undo-log bookkeeping. The caller
// must have already confirmed the entry exists and is spendable.
func (s *UTXOSet) Spend(op OutPoint) (UTXOEntry, bool) {
	e, ok := s.entries[op]
	if ok {
		delete(s.entries, op)
	}
	return e, ok
}

// Balance sums every unspent output's amount for addr. This is a diagnostic
// helper (e.g. for RPC/tests), not a hot consensus path.
func (s *UTXOSet) Balance(addr Address) Amount {
	var total Amount
	for _, e := range s.entries {
		if e.Address == addr {
			total += e.Amount
		}
	}
	return total
}

// Len reports the number of live unspent outputs.
func (s *UTXOSet) Len() int {
	return len(s.entries)
}

// Snapshot returns a deep copy of the set's state for reorg rollback.
func (s *UTXOSet) Snapshot() map[OutPoint]UTXOEntry {
	out := make(map[OutPoint]UTXOEntry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Restore replaces the set's state wholesale from a prior snapshot.
func (s *UTXOSet) Restore(snapshot map[OutPoint]UTXOEntry) {
	s.entries = make(map[OutPoint]UTXOEntry, len(snapshot))
	for k, v := range snapshot {
		s.entries[k] = v
	}
}

// ApplyResult reports the fee implied by a transaction's input/output
// balance, computed during stateful validation and application.
type ApplyResult struct {
	Fee Amount
}

// ApplyTransferLike spends tx's inputs and creates its outputs against the
// set, returning the implied fee (sum of inputs minus sum of outputs). The
// caller (ValidateStateful) must have already confirmed every input exists,
// is unspent, and is owned by tx.Sender, and that sumOut+fee == sumIn is
// consistent with tx.Amount/tx.Fee.
func (s *UTXOSet) ApplyTransferLike(tx *Transaction, txid [32]byte, height uint64) (*ApplyResult, error) {
	var sumIn Amount
	spent := make([]OutPoint, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		op := OutPoint{Txid: in.PrevTxid, Index: in.PrevOut}
		entry, ok := s.entries[op]
		if !ok {
			return nil, coreErr(ErrCodeDoubleSpend, "input %x:%d not found or already spent", op.Txid, op.Index)
		}
		if entry.Address != tx.Sender {
			return nil, coreErr(ErrCodeInvalidSignature, "input %x:%d not owned by sender", op.Txid, op.Index)
		}
		sumIn += entry.Amount
		spent = append(spent, op)
	}

	var sumOut Amount
	for _, o := range tx.Outputs {
		sumOut += o.Amount
	}
	if sumOut > sumIn {
		return nil, coreErr(ErrCodeInsufficientFunds, "outputs %d exceed inputs %d", sumOut, sumIn)
	}

	for _, op := range spent {
		delete(s.entries, op)
	}
	for i, o := range tx.Outputs {
		s.entries[OutPoint{Txid: txid, Index: uint32(i)}] = UTXOEntry{
			Address: o.Address,
			Amount:  o.Amount,
			Height:  height,
		}
	}

	return &ApplyResult{Fee: sumIn - sumOut}, nil
}

// ApplyCoinbase creates a coinbase transaction's outputs unconditionally; a
// coinbase has no inputs to spend.
func (s *UTXOSet) ApplyCoinbase(tx *Transaction, txid [32]byte, height uint64) {
	for i, o := range tx.Outputs {
		s.entries[OutPoint{Txid: txid, Index: uint32(i)}] = UTXOEntry{
			Address:    o.Address,
			Amount:     o.Amount,
			Height:     height,
			IsCoinbase: true,
		}
	}
}

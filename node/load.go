package node

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"ledgerforge.dev/node/consensus"
	"ledgerforge.dev/node/node/store"
)

// LoadFromStore rebuilds a freshly constructed engine's in-memory state
// (chain index, UTXO set, nonce tracker, cumulative emission, checkpoint
// floor) from a previously populated store, per the persisted-state-layout
// requirement that restart must not require re-syncing from genesis. It
// must be called instead of InitGenesis, on an engine that has not yet been
// initialized.
func (e *Engine) LoadFromStore() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db == nil {
		return fmt.Errorf("node: load: no store attached")
	}
	if len(e.links) != 0 {
		return fmt.Errorf("node: load: engine already initialized")
	}
	m := e.db.Manifest()
	if m == nil {
		return fmt.Errorf("node: load: store has no manifest; run init first")
	}

	tipRaw, err := hex.DecodeString(m.TipHashHex)
	if err != nil || len(tipRaw) != 32 {
		return fmt.Errorf("node: load: malformed manifest tip hash")
	}
	var tipHash [32]byte
	copy(tipHash[:], tipRaw)

	type step struct {
		hash [32]byte
		idx  store.BlockIndexEntry
	}
	var path []step
	cur := tipHash
	for {
		idx, ok, err := e.db.GetIndex(cur)
		if err != nil {
			return fmt.Errorf("node: load: read index %x: %w", cur, err)
		}
		if !ok {
			return fmt.Errorf("node: load: missing index entry for %x", cur)
		}
		path = append(path, step{hash: cur, idx: *idx})
		if idx.Height == 0 {
			break
		}
		cur = idx.PrevHash
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	utxo, err := e.db.LoadUTXOSet()
	if err != nil {
		return fmt.Errorf("node: load: utxo set: %w", err)
	}
	nonces := consensus.NewNonceTracker()
	var alreadyMined uint64

	for _, st := range path {
		block, ok, err := e.db.GetBlock(st.hash)
		if err != nil {
			return fmt.Errorf("node: load: read block %x: %w", st.hash, err)
		}
		if !ok {
			return fmt.Errorf("node: load: missing block body for %x", st.hash)
		}
		work := st.idx.CumulativeWork
		if work == nil {
			work = big.NewInt(0)
		}
		e.links[st.hash] = &chainLink{header: block.Header, prev: block.Header.PreviousHash, height: st.idx.Height, work: work}
		e.heightToHash[st.idx.Height] = st.hash

		if st.idx.Height == 0 {
			continue // genesis allocations are already reflected in the loaded UTXO set
		}
		for i := range block.Transactions {
			tx := &block.Transactions[i]
			if tx.TxType == consensus.TxCoinbase {
				continue
			}
			nonces.Advance(tx.Sender, tx.Nonce)
		}
		alreadyMined += consensus.BlockSubsidy(st.idx.Height, alreadyMined)
	}

	tipLink, ok := e.links[tipHash]
	if !ok {
		return fmt.Errorf("node: load: tip %x not indexed", tipHash)
	}

	e.utxo = utxo
	e.nonces = nonces
	e.alreadyMined = alreadyMined
	e.tipHash = tipHash
	e.tipHeight = m.TipHeight
	e.tipWork = new(big.Int).Set(tipLink.work)
	e.checkpointHeight = m.CheckpointHeight
	return nil
}

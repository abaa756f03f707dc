package node

import (
	"fmt"

	"ledgerforge.dev/node/consensus"
	"ledgerforge.dev/node/node/store"
)

// tryReorgLocked compares the branch ending at candidateHash against the
// current tip and, if it is preferred, disconnects the current chain down
// to their common ancestor and replays the candidate branch forward. A
// failure anywhere in the replay restores the original tip exactly, per the
// abort-and-restore rule: a reorg either fully completes or has no visible
// effect.
func (e *Engine) tryReorgLocked(candidateHash [32]byte) error {
	candidate, ok := e.links[candidateHash]
	if !ok {
		return fmt.Errorf("node: reorg: unknown candidate %x", candidateHash)
	}
	currentSummary := consensus.ChainSummary{Work: e.tipWork, Height: e.tipHeight, Hash: e.tipHash}
	candidateSummary := consensus.ChainSummary{Work: candidate.work, Height: candidate.height, Hash: candidateHash}
	if !consensus.Preferred(candidateSummary, currentSummary) {
		return nil
	}

	ancestorHash, disconnect, connect, err := e.findForkPointLocked(e.tipHash, candidateHash)
	if err != nil {
		return err
	}
	ancestor, ok := e.links[ancestorHash]
	if !ok {
		return fmt.Errorf("node: reorg: ancestor %x not indexed", ancestorHash)
	}
	if ancestor.height < e.checkpointHeight {
		return coreBlockErr("reorg would rewrite a block at or below the trusted checkpoint height")
	}

	// Snapshot everything a failed replay must restore.
	savedUTXO := e.utxo.Snapshot()
	savedNonces := e.nonces.Snapshot()
	savedTipHash, savedTipHeight, savedTipWork := e.tipHash, e.tipHeight, e.tipWork
	savedAlreadyMined := e.alreadyMined
	savedHeights := make(map[uint64][32]byte, len(disconnect))
	for _, h := range disconnect {
		if link, ok := e.links[h]; ok {
			savedHeights[link.height] = e.heightToHash[link.height]
		}
	}

	restore := func() {
		e.utxo.Restore(savedUTXO)
		e.nonces.Restore(savedNonces)
		e.tipHash, e.tipHeight, e.tipWork = savedTipHash, savedTipHeight, savedTipWork
		e.alreadyMined = savedAlreadyMined
		for height, hash := range savedHeights {
			e.heightToHash[height] = hash
		}
	}

	var disconnectedTxs []*consensus.Transaction

	// Disconnect: unwind from the current tip down to (but not including)
	// the ancestor, in descending height order.
	for _, hash := range disconnect {
		link := e.links[hash]
		undo, ok, err := e.dbGetUndo(hash)
		if err != nil {
			restore()
			return fmt.Errorf("node: reorg: load undo for %x: %w", hash, err)
		}
		if !ok {
			restore()
			return fmt.Errorf("node: reorg: no undo record for %x", hash)
		}
		for _, spent := range undo.Spent {
			e.utxo.Create(spent.OutPoint, spent.RestoredEntry)
		}
		for _, op := range undo.Created {
			e.utxo.Spend(op)
		}
		for _, r := range undo.NonceRewinds {
			e.nonces.Rewind(r.Sender, r.PreviousNonce)
		}
		delete(e.heightToHash, link.height)
		e.alreadyMined -= uint64(consensus.BlockSubsidy(link.height, e.alreadyMined))

		block, ok, err := e.dbGetBlock(hash)
		if err != nil {
			restore()
			return fmt.Errorf("node: reorg: load disconnected block %x: %w", hash, err)
		}
		if ok {
			for i := range block.Transactions {
				if block.Transactions[i].TxType != consensus.TxCoinbase {
					disconnectedTxs = append(disconnectedTxs, &block.Transactions[i])
				}
			}
		}
	}

	e.tipHash = ancestorHash
	e.tipHeight = ancestor.height
	e.tipWork = ancestor.work

	// Connect: replay the candidate branch forward from the ancestor.
	var connectedCount int
	for _, hash := range connect {
		link := e.links[hash]
		block, ok, err := e.dbGetBlock(hash)
		if err != nil || !ok {
			restore()
			return fmt.Errorf("node: reorg: load candidate block %x: %w", hash, err)
		}
		txids := make([][32]byte, len(block.Transactions))
		for i := range block.Transactions {
			txids[i] = block.Transactions[i].Txid
		}
		undo, created, spend, newAlreadyMined, err := e.applyTxsLocked(block, link.height, e.utxo, e.nonces, e.alreadyMined)
		if err != nil {
			restore()
			return fmt.Errorf("node: reorg: replay %x: %w", hash, err)
		}
		e.alreadyMined = newAlreadyMined
		e.undoCache[hash] = undo
		e.heightToHash[link.height] = hash
		e.tipHash = hash
		e.tipHeight = link.height
		e.tipWork = link.work
		connectedCount++

		if e.db != nil {
			if err := e.db.ApplyBlockAtomic(block, store.BlockIndexEntry{
				Height: link.height, PrevHash: block.Header.PreviousHash, CumulativeWork: link.work, Status: store.BlockStatusValid,
			}, spend, created, undo); err != nil {
				restore()
				return fmt.Errorf("node: reorg: persist %x: %w", hash, err)
			}
		}
		e.pool.OnBlockApplied(txids)
	}

	if e.db != nil {
		if err := e.persistManifestLocked(); err != nil {
			restore()
			return fmt.Errorf("node: reorg: persist manifest: %w", err)
		}
	}

	for _, tx := range disconnectedTxs {
		_ = e.pool.Add(tx, e.utxo, e.nonces, e.now())
	}
	for _, obs := range e.observers {
		obs.OnReorg(ancestor.height, len(disconnect), connectedCount)
	}
	return nil
}

// findForkPointLocked walks both branches back to equal height, then
// together until the hashes match, returning the common ancestor hash and
// the two divergent segments (each ordered from tip down to, but excluding,
// the ancestor).
func (e *Engine) findForkPointLocked(aHash, bHash [32]byte) (ancestor [32]byte, aSide, bSide [][32]byte, err error) {
	a, ok := e.links[aHash]
	if !ok {
		return ancestor, nil, nil, fmt.Errorf("node: reorg: unknown branch head %x", aHash)
	}
	b, ok := e.links[bHash]
	if !ok {
		return ancestor, nil, nil, fmt.Errorf("node: reorg: unknown branch head %x", bHash)
	}

	curA, curB := aHash, bHash
	for a.height > b.height {
		aSide = append(aSide, curA)
		curA = a.prev
		a = e.links[curA]
	}
	for b.height > a.height {
		bSide = append(bSide, curB)
		curB = b.prev
		b = e.links[curB]
	}
	for curA != curB {
		aSide = append(aSide, curA)
		bSide = append(bSide, curB)
		curA, curB = a.prev, b.prev
		a, ok = e.links[curA]
		if !ok {
			return ancestor, nil, nil, fmt.Errorf("node: reorg: ancestry walk ran off known chain")
		}
		b, ok = e.links[curB]
		if !ok {
			return ancestor, nil, nil, fmt.Errorf("node: reorg: ancestry walk ran off known chain")
		}
	}

	// bSide was collected tip-to-ancestor; replay must run ancestor-to-tip.
	for i, j := 0, len(bSide)-1; i < j; i, j = i+1, j-1 {
		bSide[i], bSide[j] = bSide[j], bSide[i]
	}
	return curA, aSide, bSide, nil
}

func (e *Engine) dbGetUndo(hash [32]byte) (store.UndoRecord, bool, error) {
	if u, ok := e.undoCache[hash]; ok {
		return u, true, nil
	}
	if e.db == nil {
		return store.UndoRecord{}, false, nil
	}
	u, ok, err := e.db.GetUndo(hash)
	if err != nil || !ok {
		return store.UndoRecord{}, ok, err
	}
	return *u, true, nil
}

func (e *Engine) dbGetBlock(hash [32]byte) (*consensus.Block, bool, error) {
	if block, ok := e.blockCache[hash]; ok {
		return block, true, nil
	}
	if e.db == nil {
		return nil, false, nil
	}
	return e.db.GetBlock(hash)
}

package node

import (
	"fmt"
	"math/big"

	"ledgerforge.dev/node/consensus"
)

// HeaderAtHeight returns the header of the canonical block at height, if
// known.
func (e *Engine) HeaderAtHeight(height uint64) (consensus.BlockHeader, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	hash, ok := e.heightToHash[height]
	if !ok {
		return consensus.BlockHeader{}, false
	}
	link, ok := e.links[hash]
	if !ok {
		return consensus.BlockHeader{}, false
	}
	return link.header, true
}

// TipHeader returns the current tip's header.
func (e *Engine) TipHeader() (consensus.BlockHeader, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	link, ok := e.links[e.tipHash]
	if !ok {
		return consensus.BlockHeader{}, false
	}
	return link.header, true
}

// CumulativeWorkAt returns the total chain work accumulated through the
// block identified by hash, if the engine knows it.
func (e *Engine) CumulativeWorkAt(hash [32]byte) (*big.Int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	link, ok := e.links[hash]
	if !ok {
		return nil, false
	}
	return link.work, true
}

// AlreadyMined returns the cumulative subsidy issued so far, used to compute
// the next block's reward.
func (e *Engine) AlreadyMined() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.alreadyMined
}

// NextDifficulty returns the difficulty_bits the next block must satisfy:
// unchanged within a retarget window, recomputed from elapsed wall-clock
// time at each window boundary.
func (e *Engine) NextDifficulty() (uint32, error) {
	e.mu.RLock()
	tipLink, ok := e.links[e.tipHash]
	e.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("node: no tip")
	}
	return e.expectedDifficultyLocked(tipLink)
}

// expectedDifficultyLocked computes the difficulty_bits the block extending
// parent must declare, per the same retarget schedule NextDifficulty uses
// for the canonical tip. It walks parent's own ancestry via the in-memory
// link graph rather than the canonical height index, so a side-branch
// candidate is checked against its own history rather than the canonical
// chain's. Must be called with mu held (for reading or writing).
func (e *Engine) expectedDifficultyLocked(parent *chainLink) (uint32, error) {
	nextHeight := parent.height + 1
	if nextHeight%consensus.RetargetWindow != 0 {
		return parent.header.Difficulty, nil
	}

	windowStart := nextHeight - consensus.RetargetWindow
	steps := parent.height - windowStart
	node := parent
	for i := uint64(0); i < steps; i++ {
		prevLink, ok := e.links[node.prev]
		if !ok {
			// Insufficient ancestry (e.g. near genesis on a short chain):
			// leave difficulty unchanged, mirroring the canonical-tip case.
			return parent.header.Difficulty, nil
		}
		node = prevLink
	}
	return consensus.Retarget(parent.header.Difficulty, node.header.Timestamp, parent.header.Timestamp)
}

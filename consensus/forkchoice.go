package consensus

import (
	"bytes"
	"math/big"
)

// ChainSummary is the minimal branch-tip information fork choice compares.
type ChainSummary struct {
	Work   *big.Int
	Height uint64
	Hash   [32]byte
}

// Preferred reports whether candidate should replace current as the
// canonical tip: greater cumulative work wins; on an exact work tie, the
// longer chain by block count wins; on a further tie, the lexicographically
// smaller tip hash wins, purely for determinism.
func Preferred(candidate, current ChainSummary) bool {
	switch candidate.Work.Cmp(current.Work) {
	case 1:
		return true
	case -1:
		return false
	}
	if candidate.Height != current.Height {
		return candidate.Height > current.Height
	}
	return bytes.Compare(candidate.Hash[:], current.Hash[:]) < 0
}

package consensus

import "ledgerforge.dev/node/crypto"

// MerkleRoot builds a binary tree of SHA-256 concatenations from the ordered
// txid list. If a level has an odd node count, the last node is duplicated
// before pairing. The root is the single remaining 32-byte node.
func MerkleRoot(txids [][32]byte) ([32]byte, error) {
	if len(txids) == 0 {
		return [32]byte{}, coreErr(ErrCodeInvalidBlock, "merkle: empty txid list")
	}

	level := make([][32]byte, len(txids))
	copy(level, txids)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, 0, len(level)/2)
		var pair [64]byte
		for i := 0; i < len(level); i += 2 {
			copy(pair[:32], level[i][:])
			copy(pair[32:], level[i+1][:])
			next = append(next, crypto.SHA256(pair[:]))
		}
		level = next
	}

	return level[0], nil
}

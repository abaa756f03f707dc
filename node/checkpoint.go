package node

import (
	"fmt"
	"math/big"

	"ledgerforge.dev/node/crypto"
	"ledgerforge.dev/node/node/store"
)

// CheckpointCommittee is the pinned set of keys authorized to attest to a
// trusted checkpoint, and the number of distinct signatures required.
type CheckpointCommittee struct {
	Threshold int
	Members   []*crypto.PublicKey
}

// CheckpointClaim is what a committee attests to: a specific block at a
// specific height carries at least CumulativeWork and its post-application
// UTXO state hashes to StateRoot. Signatures is one DER signature per
// attesting member, over the claim's canonical payload.
type CheckpointClaim struct {
	Height         uint64
	Hash           [32]byte
	CumulativeWork *big.Int
	StateRoot      [32]byte
	Signatures     [][]byte
}

func encodeCheckpointClaimPayload(c CheckpointClaim) []byte {
	out := make([]byte, 0, 8+32+32)
	var u64 [8]byte
	for i := 0; i < 8; i++ {
		u64[i] = byte(c.Height >> (8 * i))
	}
	out = append(out, u64[:]...)
	out = append(out, c.Hash[:]...)
	out = append(out, c.StateRoot[:]...)
	work := c.CumulativeWork.Bytes()
	out = append(out, byte(len(work)))
	out = append(out, work...)
	return out
}

// verifyCheckpointClaim reports whether at least committee.Threshold
// distinct committee members' signatures validate over claim, and that
// peerEchoCount (how many independent peers reported seeing the same
// claim) meets minPeerEchoes. Both conditions must hold: a checkpoint
// signed by the committee but echoed by no peers could be a committee-only
// claim the network never actually saw; a quorum of peer echoes without
// valid signatures could be a coordinated lie.
func verifyCheckpointClaim(committee CheckpointCommittee, claim CheckpointClaim, peerEchoCount, minPeerEchoes int) error {
	if claim.CumulativeWork == nil || claim.CumulativeWork.Sign() < 0 {
		return fmt.Errorf("node: checkpoint: missing cumulative_work")
	}
	if peerEchoCount < minPeerEchoes {
		return fmt.Errorf("node: checkpoint: only %d peer echoes, need %d", peerEchoCount, minPeerEchoes)
	}

	payload := encodeCheckpointClaimPayload(claim)
	digest := crypto.SHA256(payload)

	usedMember := make(map[int]bool, len(committee.Members))
	valid := 0
	for _, sig := range claim.Signatures {
		for i, member := range committee.Members {
			if usedMember[i] {
				continue
			}
			if crypto.Verify(member, digest, sig) {
				usedMember[i] = true
				valid++
				break
			}
		}
	}
	if valid < committee.Threshold {
		return fmt.Errorf("node: checkpoint: %d valid committee signatures, need %d", valid, committee.Threshold)
	}
	return nil
}

// AdoptCheckpoint verifies claim against committee and peer-echo evidence,
// confirms it binds to a block the engine already knows at least as much
// work for, and then raises the reorg floor to claim.Height: no later reorg
// may rewrite that block or any of its ancestors.
func (e *Engine) AdoptCheckpoint(committee CheckpointCommittee, claim CheckpointClaim, peerEchoCount, minPeerEchoes int) error {
	if err := verifyCheckpointClaim(committee, claim, peerEchoCount, minPeerEchoes); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	link, ok := e.links[claim.Hash]
	if !ok {
		return fmt.Errorf("node: checkpoint: block %x not known to this engine", claim.Hash)
	}
	if link.height != claim.Height {
		return fmt.Errorf("node: checkpoint: height mismatch: claim says %d, engine has %d", claim.Height, link.height)
	}
	if link.work.Cmp(claim.CumulativeWork) < 0 {
		return fmt.Errorf("node: checkpoint: engine's cumulative_work for this block is less than the claim")
	}
	if link.height <= e.checkpointHeight {
		return nil // already covered by an equal-or-later checkpoint
	}

	e.checkpointHeight = link.height
	if e.db != nil {
		if err := e.db.PutCheckpoint(store.CheckpointRecord{
			Height:         claim.Height,
			Hash:           claim.Hash,
			CumulativeWork: new(big.Int).Set(claim.CumulativeWork),
			StateRoot:      claim.StateRoot,
			Provenance:     "committee-attested",
		}); err != nil {
			return fmt.Errorf("node: checkpoint: persist: %w", err)
		}
		if err := e.persistManifestLocked(); err != nil {
			return fmt.Errorf("node: checkpoint: persist manifest: %w", err)
		}
	}
	return nil
}

// CheckpointHeight returns the height at or below which no reorg is
// permitted.
func (e *Engine) CheckpointHeight() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.checkpointHeight
}

package store

import (
	"encoding/binary"
	"fmt"
	"math/big"

	bolt "go.etcd.io/bbolt"
)

var checkpointKey = []byte("trusted")

// CheckpointRecord is the persisted trusted-checkpoint tuple: height, hash,
// cumulative work, and a state-root/snapshot hash binding the checkpoint to
// a specific UTXO state.
type CheckpointRecord struct {
	Height         uint64
	Hash           [32]byte
	CumulativeWork *big.Int
	StateRoot      [32]byte
	Provenance     string
}

func (d *DB) PutCheckpoint(c CheckpointRecord) error {
	b, err := encodeCheckpoint(c)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCheckpoint).Put(checkpointKey, b)
	})
}

func (d *DB) GetCheckpoint() (*CheckpointRecord, bool, error) {
	var out *CheckpointRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCheckpoint).Get(checkpointKey)
		if v == nil {
			return nil
		}
		c, err := decodeCheckpoint(v)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func encodeCheckpoint(c CheckpointRecord) ([]byte, error) {
	work := c.CumulativeWork.Bytes()
	if len(work) > 0xffff {
		return nil, fmt.Errorf("store: checkpoint: cumulative_work too large")
	}
	prov := []byte(c.Provenance)
	if len(prov) > 0xffff {
		return nil, fmt.Errorf("store: checkpoint: provenance too large")
	}
	out := make([]byte, 0, 8+32+2+len(work)+32+2+len(prov))
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], c.Height)
	out = append(out, u64[:]...)
	out = append(out, c.Hash[:]...)

	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], uint16(len(work)))
	out = append(out, u16[:]...)
	out = append(out, work...)

	out = append(out, c.StateRoot[:]...)

	binary.LittleEndian.PutUint16(u16[:], uint16(len(prov)))
	out = append(out, u16[:]...)
	out = append(out, prov...)
	return out, nil
}

func decodeCheckpoint(b []byte) (*CheckpointRecord, error) {
	if len(b) < 8+32+2 {
		return nil, fmt.Errorf("store: checkpoint: truncated")
	}
	off := 0
	height := binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	var hash [32]byte
	copy(hash[:], b[off:off+32])
	off += 32

	workLen := int(binary.LittleEndian.Uint16(b[off : off+2]))
	off += 2
	if off+workLen > len(b) {
		return nil, fmt.Errorf("store: checkpoint: truncated work")
	}
	work := new(big.Int).SetBytes(b[off : off+workLen])
	off += workLen

	if off+32+2 > len(b) {
		return nil, fmt.Errorf("store: checkpoint: truncated state root")
	}
	var stateRoot [32]byte
	copy(stateRoot[:], b[off:off+32])
	off += 32

	provLen := int(binary.LittleEndian.Uint16(b[off : off+2]))
	off += 2
	if off+provLen != len(b) {
		return nil, fmt.Errorf("store: checkpoint: trailing bytes")
	}
	provenance := string(b[off : off+provLen])

	return &CheckpointRecord{Height: height, Hash: hash, CumulativeWork: work, StateRoot: stateRoot, Provenance: provenance}, nil
}

// Package store persists chain state in an embedded bbolt database plus a
// crash-safe JSON manifest recording the canonical tip.
package store

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"ledgerforge.dev/node/consensus"
)

var (
	bucketHeaders    = []byte("headers_by_hash")
	bucketBlocks     = []byte("blocks_by_hash")
	bucketIndex      = []byte("block_index_by_hash")
	bucketUtxo       = []byte("utxo_by_outpoint")
	bucketUndo       = []byte("undo_by_block_hash")
	bucketCheckpoint = []byte("checkpoint")
)

// BlockStatus is the validation state of an indexed block.
type BlockStatus byte

const (
	BlockStatusUnknown  BlockStatus = 0
	BlockStatusValid    BlockStatus = 1
	BlockStatusInvalid  BlockStatus = 2
	BlockStatusOrphaned BlockStatus = 3
)

// BlockIndexEntry is the lightweight per-hash record used for fork choice
// and ancestry walks without deserializing the full block.
type BlockIndexEntry struct {
	Height         uint64
	PrevHash       [32]byte
	CumulativeWork *big.Int
	Status         BlockStatus
}

// DB wraps a bbolt database holding one network's chain state.
type DB struct {
	chainDir string
	network  string
	db       *bolt.DB
	manifest *Manifest
}

// Open opens (creating if absent) the chain database for network under
// datadir.
func Open(datadir string, network string) (*DB, error) {
	if datadir == "" {
		return nil, fmt.Errorf("store: datadir required")
	}
	if network == "" {
		return nil, fmt.Errorf("store: network required")
	}

	chainDir := ChainDir(datadir, network)
	if err := ensureDir(chainDir); err != nil {
		return nil, err
	}
	if err := ensureDir(filepath.Join(chainDir, "db")); err != nil {
		return nil, err
	}

	path := filepath.Join(chainDir, "db", "kv.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt: %w", err)
	}

	d := &DB{chainDir: chainDir, db: bdb, network: network}
	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketHeaders, bucketBlocks, bucketIndex, bucketUtxo, bucketUndo, bucketCheckpoint} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("store: create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	m, err := readManifest(chainDir, network)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		_ = bdb.Close()
		return nil, fmt.Errorf("store: read manifest: %w", err)
	}
	d.manifest = m
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) ChainDir() string { return d.chainDir }

func (d *DB) Manifest() *Manifest {
	if d == nil {
		return nil
	}
	return d.manifest
}

func (d *DB) SetManifest(m *Manifest) error {
	if d == nil {
		return fmt.Errorf("store: nil db")
	}
	if err := writeManifestAtomic(d.chainDir, d.network, m); err != nil {
		return err
	}
	d.manifest = m
	return nil
}

func (d *DB) PutHeader(hash [32]byte, headerBytes []byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHeaders).Put(hash[:], headerBytes)
	})
}

func (d *DB) PutBlock(block *consensus.Block) error {
	blockBytes, err := consensus.EncodeBlock(block)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketHeaders).Put(block.Hash[:], consensus.EncodeBlockHeader(block.Header)); err != nil {
			return err
		}
		return tx.Bucket(bucketBlocks).Put(block.Hash[:], blockBytes)
	})
}

func (d *DB) GetBlock(hash [32]byte) (*consensus.Block, bool, error) {
	var raw []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get(hash[:])
		if v == nil {
			return nil
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	block, err := consensus.DecodeBlock(raw)
	if err != nil {
		return nil, false, err
	}
	return block, true, nil
}

func (d *DB) PutIndex(hash [32]byte, e BlockIndexEntry) error {
	b, err := encodeIndexEntry(e)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndex).Put(hash[:], b)
	})
}

func (d *DB) GetIndex(hash [32]byte) (*BlockIndexEntry, bool, error) {
	var out *BlockIndexEntry
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketIndex).Get(hash[:])
		if v == nil {
			return nil
		}
		e, err := decodeIndexEntry(v)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (d *DB) GetUTXO(op consensus.OutPoint) (consensus.UTXOEntry, bool, error) {
	var out consensus.UTXOEntry
	var ok bool
	key := encodeOutpointKey(op)
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketUtxo).Get(key)
		if v == nil {
			return nil
		}
		e, err := decodeUTXOEntry(v)
		if err != nil {
			return err
		}
		out, ok = e, true
		return nil
	})
	return out, ok, err
}

func (d *DB) PutUTXO(op consensus.OutPoint, e consensus.UTXOEntry) error {
	key := encodeOutpointKey(op)
	val, err := encodeUTXOEntry(e)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUtxo).Put(key, val)
	})
}

func (d *DB) DeleteUTXO(op consensus.OutPoint) error {
	key := encodeOutpointKey(op)
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUtxo).Delete(key)
	})
}

// LoadUTXOSet reads every persisted entry into an in-memory UTXOSet, used at
// startup to rebuild the engine's working set from the durable store.
func (d *DB) LoadUTXOSet() (*consensus.UTXOSet, error) {
	set := consensus.NewUTXOSet()
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUtxo).ForEach(func(k, v []byte) error {
			op, err := decodeOutpointKey(k)
			if err != nil {
				return err
			}
			entry, err := decodeUTXOEntry(v)
			if err != nil {
				return err
			}
			set.Create(op, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// ApplyBlockAtomic persists a block's bbolt-side effects in one transaction:
// the block itself, its index entry, its UTXO deltas, and its undo record.
// The manifest is updated separately, after this commits, per the
// write-ahead ordering that makes crash recovery replay-from-manifest safe.
func (d *DB) ApplyBlockAtomic(block *consensus.Block, index BlockIndexEntry, spend []consensus.OutPoint, create map[consensus.OutPoint]consensus.UTXOEntry, undo UndoRecord) error {
	blockBytes, err := consensus.EncodeBlock(block)
	if err != nil {
		return err
	}
	indexBytes, err := encodeIndexEntry(index)
	if err != nil {
		return err
	}
	undoBytes, err := encodeUndoRecord(undo)
	if err != nil {
		return err
	}

	return d.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketHeaders).Put(block.Hash[:], consensus.EncodeBlockHeader(block.Header)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketBlocks).Put(block.Hash[:], blockBytes); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIndex).Put(block.Hash[:], indexBytes); err != nil {
			return err
		}
		utxoBucket := tx.Bucket(bucketUtxo)
		for _, op := range spend {
			if err := utxoBucket.Delete(encodeOutpointKey(op)); err != nil {
				return err
			}
		}
		for op, entry := range create {
			val, err := encodeUTXOEntry(entry)
			if err != nil {
				return err
			}
			if err := utxoBucket.Put(encodeOutpointKey(op), val); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketUndo).Put(block.Hash[:], undoBytes)
	})
}

func (d *DB) GetUndo(blockHash [32]byte) (*UndoRecord, bool, error) {
	var out *UndoRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketUndo).Get(blockHash[:])
		if v == nil {
			return nil
		}
		u, err := decodeUndoRecord(v)
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func encodeIndexEntry(e BlockIndexEntry) ([]byte, error) {
	if e.CumulativeWork == nil || e.CumulativeWork.Sign() < 0 {
		return nil, fmt.Errorf("store: index: cumulative_work required")
	}
	work := e.CumulativeWork.Bytes()
	if len(work) > 0xffff {
		return nil, fmt.Errorf("store: index: cumulative_work too large")
	}
	out := make([]byte, 8+32+1+2+len(work))
	binary.LittleEndian.PutUint64(out[0:8], e.Height)
	copy(out[8:40], e.PrevHash[:])
	out[40] = byte(e.Status)
	binary.LittleEndian.PutUint16(out[41:43], uint16(len(work)))
	copy(out[43:], work)
	return out, nil
}

func decodeIndexEntry(b []byte) (*BlockIndexEntry, error) {
	if len(b) < 8+32+1+2 {
		return nil, fmt.Errorf("store: index: truncated")
	}
	height := binary.LittleEndian.Uint64(b[0:8])
	var prev [32]byte
	copy(prev[:], b[8:40])
	status := BlockStatus(b[40])
	workLen := int(binary.LittleEndian.Uint16(b[41:43]))
	if 43+workLen != len(b) {
		return nil, fmt.Errorf("store: index: bad work length")
	}
	work := new(big.Int).SetBytes(b[43:])
	return &BlockIndexEntry{Height: height, PrevHash: prev, CumulativeWork: work, Status: status}, nil
}

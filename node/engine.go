package node

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"

	"ledgerforge.dev/node/consensus"
	"ledgerforge.dev/node/crypto"
	"ledgerforge.dev/node/mempool"
	"ledgerforge.dev/node/node/store"
)

// chainLink is the in-memory ancestry/work record the engine keeps for
// every known block, mirroring store.BlockIndexEntry but kept resident for
// fast fork-choice and ancestor walks.
type chainLink struct {
	header consensus.BlockHeader
	prev   [32]byte
	height uint64
	work   *big.Int
}

// Engine owns the single mutable tuple (chain, utxo, nonce_tracker,
// mempool) behind one writer lock, per the concurrency model: any operation
// that mutates more than one of those four takes the lock exclusively;
// read-only queries may take it for reading concurrently with other
// readers.
type Engine struct {
	mu sync.RWMutex

	net       crypto.Network
	db        *store.DB
	validator *consensus.Validator
	protected *consensus.ProtectedPolicy
	hook      consensus.ContractHook
	log       *logrus.Entry
	now       func() uint64

	utxo   *consensus.UTXOSet
	nonces *consensus.NonceTracker
	pool   *mempool.Pool

	links        map[[32]byte]*chainLink
	heightToHash map[uint64][32]byte
	tipHash      [32]byte
	tipHeight    uint64
	tipWork      *big.Int
	alreadyMined uint64 // cumulative subsidy (excluding fees) minted so far

	// undoCache and blockCache mirror recent store writes in memory, so
	// reorg replay works identically whether or not a persistent store is
	// attached (tests and devnets may run with db == nil).
	undoCache  map[[32]byte]store.UndoRecord
	blockCache map[[32]byte]*consensus.Block

	orphans map[[32]byte][]*consensus.Block // keyed by previous_hash

	checkpointHeight uint64 // blocks at or below this height are never reorged

	observers []Observer
}

// NewEngine builds an engine over an opened store; callers must still call
// InitGenesis or LoadFromStore before the engine is usable.
func NewEngine(net crypto.Network, db *store.DB, policy *consensus.ProtectedPolicy, hook consensus.ContractHook, now func() uint64, log *logrus.Entry) *Engine {
	if hook == nil {
		hook = consensus.NoopContractHook{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Engine{
		net:          net,
		db:           db,
		protected:    policy,
		hook:         hook,
		log:          log.WithField("component", "engine"),
		now:          now,
		utxo:         consensus.NewUTXOSet(),
		nonces:       consensus.NewNonceTracker(),
		links:        make(map[[32]byte]*chainLink),
		heightToHash: make(map[uint64][32]byte),
		tipWork:      big.NewInt(0),
		undoCache:    make(map[[32]byte]store.UndoRecord),
		blockCache:   make(map[[32]byte]*consensus.Block),
		orphans:      make(map[[32]byte][]*consensus.Block),
	}
	e.validator = consensus.NewValidator(net, policy, now)
	e.pool = mempool.New(e.validator, mempool.DefaultLimits(), log)
	return e
}

// AddObserver registers an observer for block/tx/reorg notifications.
func (e *Engine) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Mempool exposes the pool for submission and block assembly.
func (e *Engine) Mempool() *mempool.Pool { return e.pool }

// Tip returns the current canonical tip's hash, height, and cumulative work.
func (e *Engine) Tip() ([32]byte, uint64, *big.Int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tipHash, e.tipHeight, new(big.Int).Set(e.tipWork)
}

// InitGenesis installs genesis as height 0 with no predecessor and becomes
// the tip. genesis must already carry a valid hash and merkle root; its
// coinbase outputs are applied unconditionally.
func (e *Engine) InitGenesis(genesis *consensus.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.links) != 0 {
		return fmt.Errorf("node: engine already initialized")
	}
	if len(genesis.Transactions) == 0 || genesis.Transactions[0].TxType != consensus.TxCoinbase {
		return fmt.Errorf("node: genesis must start with a coinbase transaction")
	}

	coinbase := &genesis.Transactions[0]
	e.utxo.ApplyCoinbase(coinbase, genesis.Hash, 0)
	for _, tx := range genesis.Transactions[1:] {
		// Genesis may pre-allocate further UTXOs directly as additional
		// coinbase-shaped entries (pre-mine reserves); they are not
		// validated against a nonce tracker since there is no prior state.
		txid, err := consensus.Txid(&tx)
		if err != nil {
			return fmt.Errorf("node: genesis allocation txid: %w", err)
		}
		e.utxo.ApplyCoinbase(&tx, txid, 0)
	}

	work := consensus.WorkFromDifficultyBits(genesis.Header.Difficulty)
	e.links[genesis.Hash] = &chainLink{header: genesis.Header, height: 0, work: work}
	e.heightToHash[0] = genesis.Hash
	e.tipHash = genesis.Hash
	e.tipHeight = 0
	e.tipWork = work

	if e.db != nil {
		if err := e.db.PutBlock(genesis); err != nil {
			return err
		}
		if err := e.db.PutIndex(genesis.Hash, store.BlockIndexEntry{Height: 0, CumulativeWork: work, Status: store.BlockStatusValid}); err != nil {
			return err
		}
		if err := e.persistManifestLocked(); err != nil {
			return err
		}
	}
	return nil
}

// persistManifestLocked writes the crash-safe tip pointer after the bbolt
// side of a tip change has already committed, per
// ApplyBlockAtomic's write-ahead ordering contract. Called with mu held.
func (e *Engine) persistManifestLocked() error {
	if e.db == nil {
		return nil
	}
	m := &store.Manifest{
		SchemaVersion:        store.SchemaVersionV1,
		Network:              e.net.String(),
		TipHashHex:           fmt.Sprintf("%x", e.tipHash),
		TipHeight:            e.tipHeight,
		TipCumulativeWorkDec: e.tipWork.String(),
	}
	if e.checkpointHeight > 0 {
		if ckpt, ok, err := e.db.GetCheckpoint(); err == nil && ok {
			m.CheckpointHashHex = fmt.Sprintf("%x", ckpt.Hash)
			m.CheckpointHeight = ckpt.Height
			m.CheckpointProvenance = ckpt.Provenance
		}
	}
	return e.db.SetManifest(m)
}

// ApplyBlock runs the 9-step admission procedure against a received block.
// On success the block becomes the new tip (or triggers a reorg if a
// heavier sibling chain now exists); it is the caller's responsibility to
// invoke TryReorg afterward for cross-branch comparison if block does not
// extend the current tip directly.
func (e *Engine) ApplyBlock(block *consensus.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyBlockLocked(block)
}

func (e *Engine) applyBlockLocked(block *consensus.Block) error {
	// Step 1: hash correctness and PoW.
	wantHash := consensus.BlockHash(block.Header)
	if block.Hash != wantHash {
		return coreBlockErr("computed hash mismatch")
	}
	if err := consensus.PowCheck(block.Hash, block.Header.Difficulty); err != nil {
		return err
	}

	// Step 2: known parent, else orphan.
	parent, ok := e.links[block.Header.PreviousHash]
	if !ok {
		e.orphans[block.Header.PreviousHash] = append(e.orphans[block.Header.PreviousHash], block)
		return coreBlockErr("parent unknown, orphaned")
	}

	// Step 2.5: difficulty must match the retarget schedule computed from
	// the block's own ancestry, not merely be self-consistent with its hash
	// (PowCheck only confirms the hash meets whatever difficulty the block
	// claims, so a block claiming an easier-than-scheduled difficulty would
	// otherwise pass).
	wantDifficulty, err := e.expectedDifficultyLocked(parent)
	if err != nil {
		return err
	}
	if block.Header.Difficulty != wantDifficulty {
		return coreBlockErr(fmt.Sprintf("difficulty_bits %d does not match scheduled %d", block.Header.Difficulty, wantDifficulty))
	}

	// Step 3: timestamp bounds.
	if block.Header.Timestamp <= parent.header.Timestamp {
		return coreBlockErr("timestamp not strictly greater than parent")
	}
	if block.Header.Timestamp > e.now()+consensus.MaxFutureDrift {
		return coreBlockErr("timestamp too far in the future")
	}

	// Step 4: merkle root.
	if len(block.Transactions) == 0 || len(block.Transactions) > consensus.MaxBlockTransactions {
		return coreBlockErr("transaction count out of bounds")
	}
	txids := make([][32]byte, len(block.Transactions))
	for i := range block.Transactions {
		txid, err := consensus.Txid(&block.Transactions[i])
		if err != nil {
			return coreBlockErr("transaction encoding failed: " + err.Error())
		}
		block.Transactions[i].Txid = txid
		txids[i] = txid
	}
	merkleRoot, err := consensus.MerkleRoot(txids)
	if err != nil {
		return coreBlockErr("merkle computation failed: " + err.Error())
	}
	if merkleRoot != block.Header.MerkleRoot {
		return coreBlockErr("merkle_root mismatch")
	}

	height := parent.height + 1
	work := new(big.Int).Add(parent.work, consensus.WorkFromDifficultyBits(block.Header.Difficulty))
	link := &chainLink{header: block.Header, prev: block.Header.PreviousHash, height: height, work: work}

	if block.Header.PreviousHash == e.tipHash {
		// Common case: block extends the canonical tip directly.
		if err := e.extendTipLocked(block, link, txids); err != nil {
			return err
		}
		e.drainOrphansLocked(block.Hash)
		return nil
	}

	// Side-branch arrival: index it without touching canonical state, then
	// let fork choice decide whether this (or some other known leaf) should
	// become the new tip.
	e.links[block.Hash] = link
	e.blockCache[block.Hash] = block
	if e.db != nil {
		if err := e.db.PutBlock(block); err != nil {
			return fmt.Errorf("node: persist side-branch block: %w", err)
		}
		if err := e.db.PutIndex(block.Hash, store.BlockIndexEntry{
			Height: height, PrevHash: block.Header.PreviousHash, CumulativeWork: work, Status: store.BlockStatusValid,
		}); err != nil {
			return fmt.Errorf("node: persist side-branch index: %w", err)
		}
	}
	if err := e.tryReorgLocked(block.Hash); err != nil {
		return err
	}
	e.drainOrphansLocked(block.Hash)
	return nil
}

// extendTipLocked runs steps 5-9 against the committed tip state and, on
// success, advances the tip to block.
func (e *Engine) extendTipLocked(block *consensus.Block, link *chainLink, txids [][32]byte) error {
	scratchUTXO := cloneUTXOSnapshot(e.utxo)
	scratchNonces := cloneNonceSnapshot(e.nonces)

	undo, created, spend, newAlreadyMined, err := e.applyTxsLocked(block, link.height, scratchUTXO, scratchNonces, e.alreadyMined)
	if err != nil {
		return err
	}

	e.utxo = scratchUTXO
	e.nonces = scratchNonces
	e.alreadyMined = newAlreadyMined
	e.links[block.Hash] = link
	e.undoCache[block.Hash] = undo
	e.blockCache[block.Hash] = block
	e.heightToHash[link.height] = block.Hash
	e.tipHash = block.Hash
	e.tipHeight = link.height
	e.tipWork = link.work

	if e.db != nil {
		if err := e.db.ApplyBlockAtomic(block, store.BlockIndexEntry{
			Height: link.height, PrevHash: block.Header.PreviousHash, CumulativeWork: link.work, Status: store.BlockStatusValid,
		}, spend, created, undo); err != nil {
			return fmt.Errorf("node: persist block: %w", err)
		}
		if err := e.persistManifestLocked(); err != nil {
			return fmt.Errorf("node: persist manifest: %w", err)
		}
	}

	// Step 8: drain mempool of included txids.
	e.pool.OnBlockApplied(txids)
	for _, obs := range e.observers {
		obs.OnBlockApplied(block)
	}
	return nil
}

// applyTxsLocked runs steps 5-6 (per-transaction validation, coinbase
// verification) against the given scratch state, mutating it and returning
// the undo/delta bookkeeping a caller needs to persist or to roll back.
// It never touches engine-resident state directly, so it is safe to call
// during both direct tip extension and reorg replay.
func (e *Engine) applyTxsLocked(block *consensus.Block, height uint64, utxo *consensus.UTXOSet, nonces *consensus.NonceTracker, alreadyMined uint64) (store.UndoRecord, map[consensus.OutPoint]consensus.UTXOEntry, []consensus.OutPoint, uint64, error) {
	var undo store.UndoRecord
	created := make(map[consensus.OutPoint]consensus.UTXOEntry)
	var spend []consensus.OutPoint
	var totalFees consensus.Amount
	rewoundSenders := make(map[consensus.Address]struct{})

	if block.Transactions[0].TxType != consensus.TxCoinbase {
		return undo, nil, nil, alreadyMined, coreBlockErr("first transaction must be coinbase")
	}
	for i := 1; i < len(block.Transactions); i++ {
		if block.Transactions[i].TxType == consensus.TxCoinbase {
			return undo, nil, nil, alreadyMined, coreBlockErr("coinbase must be the only the first transaction")
		}
	}

	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if tx.TxType == consensus.TxCoinbase {
			continue
		}
		if err := e.validator.ValidateAll(tx, utxo, nonces); err != nil {
			return undo, nil, nil, alreadyMined, err
		}
		for _, in := range tx.Inputs {
			op := consensus.OutPoint{Txid: in.PrevTxid, Index: in.PrevOut}
			entry, _ := utxo.Lookup(op)
			undo.Spent = append(undo.Spent, store.UndoSpent{OutPoint: op, RestoredEntry: entry})
			spend = append(spend, op)
		}
		res, err := utxo.ApplyTransferLike(tx, tx.Txid, height)
		if err != nil {
			return undo, nil, nil, alreadyMined, err
		}
		totalFees += res.Fee
		for idx := range tx.Outputs {
			op := consensus.OutPoint{Txid: tx.Txid, Index: uint32(idx)}
			entry, _ := utxo.Lookup(op)
			created[op] = entry
			undo.Created = append(undo.Created, op)
		}
		if _, already := rewoundSenders[tx.Sender]; !already {
			undo.NonceRewinds = append(undo.NonceRewinds, store.NonceRewind{Sender: tx.Sender, PreviousNonce: nonces.Current(tx.Sender)})
			rewoundSenders[tx.Sender] = struct{}{}
		}
		nonces.Advance(tx.Sender, tx.Nonce)
		if tx.TxType == consensus.TxContractInvoke {
			if err := e.hook.Execute(tx, height, utxo); err != nil {
				return undo, nil, nil, alreadyMined, &consensus.CoreError{Code: consensus.ErrCodeMalformedTx, Detail: "contract hook: " + err.Error()}
			}
		}
	}

	coinbase := &block.Transactions[0]
	subsidy := consensus.BlockSubsidy(height, alreadyMined)
	wantReward := consensus.Amount(subsidy) + totalFees
	var coinbaseTotal consensus.Amount
	for _, o := range coinbase.Outputs {
		coinbaseTotal += o.Amount
	}
	if coinbaseTotal != wantReward {
		return undo, nil, nil, alreadyMined, coreBlockErr(fmt.Sprintf("coinbase total %d != reward+fees %d", coinbaseTotal, wantReward))
	}
	utxo.ApplyCoinbase(coinbase, coinbase.Txid, height)
	for idx := range coinbase.Outputs {
		op := consensus.OutPoint{Txid: coinbase.Txid, Index: uint32(idx)}
		entry, _ := utxo.Lookup(op)
		created[op] = entry
		undo.Created = append(undo.Created, op)
	}

	return undo, created, spend, alreadyMined + subsidy, nil
}

func (e *Engine) drainOrphansLocked(parentHash [32]byte) {
	pending, ok := e.orphans[parentHash]
	if !ok {
		return
	}
	delete(e.orphans, parentHash)
	for _, child := range pending {
		_ = e.applyBlockLocked(child)
	}
}

func cloneUTXOSnapshot(u *consensus.UTXOSet) *consensus.UTXOSet {
	clone := consensus.NewUTXOSet()
	clone.Restore(u.Snapshot())
	return clone
}

func cloneNonceSnapshot(n *consensus.NonceTracker) *consensus.NonceTracker {
	clone := consensus.NewNonceTracker()
	clone.Restore(n.Snapshot())
	return clone
}

func coreBlockErr(detail string) error {
	return &consensus.CoreError{Code: consensus.ErrCodeInvalidBlock, Detail: detail}
}

// SubmitTransaction runs the full validator and mempool admission
// (including step 8's replay/conflict check) against the engine's current
// committed state.
func (e *Engine) SubmitTransaction(tx *consensus.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.pool.Add(tx, e.utxo, e.nonces, e.now()); err != nil {
		return err
	}
	for _, obs := range e.observers {
		obs.OnTxAccepted(tx)
	}
	return nil
}

package node

import (
	"testing"

	"github.com/sirupsen/logrus"

	"ledgerforge.dev/node/consensus"
	"ledgerforge.dev/node/crypto"
	"ledgerforge.dev/node/node/store"
)

// newStoreBackedEngine builds a bbolt-backed engine under a fresh temp
// datadir and initializes it with a genesis block paying minerAddr the
// initial reward, mirroring newTestEngine but with persistence wired.
func newStoreBackedEngine(t *testing.T, datadir string, minerAddr consensus.Address, now func() uint64) (*Engine, *store.DB) {
	t.Helper()
	db, err := store.Open(datadir, "testnet")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	e := NewEngine(crypto.Testnet, db, nil, nil, now, logrus.NewEntry(logrus.New()))

	coinbase := consensus.Transaction{
		Sender:    consensus.CoinbaseSender,
		Recipient: minerAddr,
		TxType:    consensus.TxCoinbase,
		Timestamp: now(),
		Outputs:   []consensus.TxOutput{{Address: minerAddr, Amount: consensus.InitialReward}},
	}
	txid, err := consensus.Txid(&coinbase)
	if err != nil {
		t.Fatalf("txid: %v", err)
	}
	coinbase.Txid = txid
	merkleRoot, err := consensus.MerkleRoot([][32]byte{txid})
	if err != nil {
		t.Fatalf("merkle root: %v", err)
	}
	header := consensus.BlockHeader{Index: 0, Timestamp: now(), Difficulty: 1, MerkleRoot: merkleRoot}
	genesis := &consensus.Block{Header: header, Hash: consensus.BlockHash(header), Miner: minerAddr, Transactions: []consensus.Transaction{coinbase}}
	if err := e.InitGenesis(genesis); err != nil {
		t.Fatalf("init genesis: %v", err)
	}
	return e, db
}

func TestLoadFromStoreRebuildsStateAfterRestart(t *testing.T) {
	datadir := t.TempDir()
	now := fixedNow(1_700_000_000)
	minerPriv, minerAddr := testKey(t)
	_ = minerPriv

	engine, db := newStoreBackedEngine(t, datadir, minerAddr, now)
	miner, err := NewMiner(engine, minerAddr, DefaultMinerConfig())
	if err != nil {
		t.Fatalf("new miner: %v", err)
	}
	blocks, err := miner.MineN(backgroundCtx, 3)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}

	wantTipHash, wantTipHeight, wantTipWork := engine.Tip()
	wantBalance := engine.utxo.Balance(minerAddr)
	wantAlreadyMined := engine.AlreadyMined()

	if err := db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	reopened, err := store.Open(datadir, "testnet")
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	restored := NewEngine(crypto.Testnet, reopened, nil, nil, now, logrus.NewEntry(logrus.New()))
	if err := restored.LoadFromStore(); err != nil {
		t.Fatalf("LoadFromStore: %v", err)
	}

	gotTipHash, gotTipHeight, gotTipWork := restored.Tip()
	if gotTipHash != wantTipHash || gotTipHeight != wantTipHeight || gotTipWork.Cmp(wantTipWork) != 0 {
		t.Fatalf("tip mismatch: got (%x,%d,%s) want (%x,%d,%s)", gotTipHash, gotTipHeight, gotTipWork, wantTipHash, wantTipHeight, wantTipWork)
	}
	if got := restored.utxo.Balance(minerAddr); got != wantBalance {
		t.Fatalf("balance mismatch: got %d want %d", got, wantBalance)
	}
	if got := restored.AlreadyMined(); got != wantAlreadyMined {
		t.Fatalf("already_mined mismatch: got %d want %d", got, wantAlreadyMined)
	}

	// A node that has restored from store can keep mining on top of the
	// restored tip without re-syncing from genesis.
	restoredMiner, err := NewMiner(restored, minerAddr, DefaultMinerConfig())
	if err != nil {
		t.Fatalf("new miner on restored engine: %v", err)
	}
	if _, err := restoredMiner.MineOne(backgroundCtx); err != nil {
		t.Fatalf("mine on restored engine: %v", err)
	}
}

func TestLoadFromStoreRequiresExistingManifest(t *testing.T) {
	datadir := t.TempDir()
	db, err := store.Open(datadir, "testnet")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	e := NewEngine(crypto.Testnet, db, nil, nil, fixedNow(1), logrus.NewEntry(logrus.New()))
	if err := e.LoadFromStore(); err == nil {
		t.Fatalf("expected error loading from a store with no manifest")
	}
}

package node

import (
	"testing"

	"ledgerforge.dev/node/consensus"
)

func TestMinerMineOneExtendsTip(t *testing.T) {
	_, minerAddr := testKey(t)
	e := newTestEngine(t, minerAddr, fixedNow(1000))

	m, err := NewMiner(e, minerAddr, DefaultMinerConfig())
	if err != nil {
		t.Fatalf("new miner: %v", err)
	}
	m.cfg.TimestampSource = fixedNow(1001)

	block, err := m.MineOne(backgroundCtx)
	if err != nil {
		t.Fatalf("mine one: %v", err)
	}
	if block.Header.Index != 1 {
		t.Fatalf("mined block index = %d, want 1", block.Header.Index)
	}
	_, height, _ := e.Tip()
	if height != 1 {
		t.Fatalf("tip height = %d, want 1", height)
	}
}

func TestMinerMineNAdvancesChain(t *testing.T) {
	_, minerAddr := testKey(t)
	e := newTestEngine(t, minerAddr, fixedNow(1000))

	cfg := DefaultMinerConfig()
	seq := uint64(1001)
	cfg.TimestampSource = func() uint64 { seq++; return seq }

	m, err := NewMiner(e, minerAddr, cfg)
	if err != nil {
		t.Fatalf("new miner: %v", err)
	}

	blocks, err := m.MineN(backgroundCtx, 3)
	if err != nil {
		t.Fatalf("mine n: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("mined %d blocks, want 3", len(blocks))
	}
	_, height, _ := e.Tip()
	if height != 3 {
		t.Fatalf("tip height = %d, want 3", height)
	}
}

func TestMinerDrainsMempoolIntoMinedBlock(t *testing.T) {
	priv, minerAddr := testKey(t)
	e := newTestEngine(t, minerAddr, fixedNow(1000))

	genesisTxid, _ := consensus.Txid(&consensus.Transaction{
		Sender: consensus.CoinbaseSender, Recipient: minerAddr, TxType: consensus.TxCoinbase, Timestamp: 1000,
		Outputs: []consensus.TxOutput{{Address: minerAddr, Amount: consensus.InitialReward}},
	})
	input := consensus.OutPoint{Txid: genesisTxid, Index: 0}

	_, recipientAddr := testKey(t)
	tx := mustSignTransfer(t, priv, minerAddr, recipientAddr, input, consensus.InitialReward, 100, 1, 1, 1000)
	if err := e.SubmitTransaction(tx); err != nil {
		t.Fatalf("submit transaction: %v", err)
	}

	m, err := NewMiner(e, minerAddr, DefaultMinerConfig())
	if err != nil {
		t.Fatalf("new miner: %v", err)
	}
	m.cfg.TimestampSource = fixedNow(1001)

	if _, err := m.MineOne(backgroundCtx); err != nil {
		t.Fatalf("mine one: %v", err)
	}
	if e.Mempool().Has(tx.Txid) {
		t.Fatalf("expected mined transaction to be drained from mempool")
	}
	if e.utxo.Balance(recipientAddr) != 100 {
		t.Fatalf("recipient balance = %d, want 100", e.utxo.Balance(recipientAddr))
	}
}

package consensus

import "testing"

func TestUTXOSetCreateSpendLookup(t *testing.T) {
	s := NewUTXOSet()
	op := OutPoint{Txid: id(1), Index: 0}
	s.Create(op, UTXOEntry{Address: "alice", Amount: 100})

	entry, ok := s.Lookup(op)
	if !ok || entry.Amount != 100 {
		t.Fatalf("lookup did not find created entry")
	}

	spent, ok := s.Spend(op)
	if !ok || spent.Amount != 100 {
		t.Fatalf("spend did not return the entry")
	}
	if _, ok := s.Lookup(op); ok {
		t.Fatalf("spent entry must no longer be lookup-able")
	}
}

func TestUTXOSetBalanceSumsAddress(t *testing.T) {
	s := NewUTXOSet()
	s.Create(OutPoint{Txid: id(1), Index: 0}, UTXOEntry{Address: "alice", Amount: 60})
	s.Create(OutPoint{Txid: id(2), Index: 0}, UTXOEntry{Address: "alice", Amount: 40})
	s.Create(OutPoint{Txid: id(3), Index: 0}, UTXOEntry{Address: "bob", Amount: 5})

	if got := s.Balance("alice"); got != 100 {
		t.Fatalf("alice balance = %d, want 100", got)
	}
}

func TestUTXOSetSnapshotRestore(t *testing.T) {
	s := NewUTXOSet()
	op := OutPoint{Txid: id(1), Index: 0}
	s.Create(op, UTXOEntry{Address: "alice", Amount: 100})
	snap := s.Snapshot()

	s.Spend(op)
	s.Create(OutPoint{Txid: id(2), Index: 0}, UTXOEntry{Address: "bob", Amount: 50})

	s.Restore(snap)
	if _, ok := s.Lookup(op); !ok {
		t.Fatalf("restore must bring back the spent entry")
	}
	if s.Len() != 1 {
		t.Fatalf("restore must drop entries created after the snapshot, len = %d", s.Len())
	}
}

func TestApplyTransferLikeSpendsAndCreates(t *testing.T) {
	s := NewUTXOSet()
	src := OutPoint{Txid: id(9), Index: 0}
	s.Create(src, UTXOEntry{Address: "alice", Amount: 100})

	tx := &Transaction{
		Sender: "alice",
		Amount: 90,
		Fee:    1,
		Inputs: []TxInput{{PrevTxid: id(9), PrevOut: 0}},
		Outputs: []TxOutput{
			{Address: "bob", Amount: 90},
			{Address: "alice", Amount: 9}, // change
		},
	}
	txid := id(42)
	res, err := s.ApplyTransferLike(tx, txid, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Fee != 1 {
		t.Fatalf("fee = %d, want 1", res.Fee)
	}
	if _, ok := s.Lookup(src); ok {
		t.Fatalf("spent input must be removed")
	}
	if s.Balance("bob") != 90 {
		t.Fatalf("bob balance = %d, want 90", s.Balance("bob"))
	}
	if s.Balance("alice") != 9 {
		t.Fatalf("alice change balance = %d, want 9", s.Balance("alice"))
	}
}

func TestApplyTransferLikeRejectsMissingInput(t *testing.T) {
	s := NewUTXOSet()
	tx := &Transaction{
		Sender: "alice",
		Inputs: []TxInput{{PrevTxid: id(9), PrevOut: 0}},
	}
	if _, err := s.ApplyTransferLike(tx, id(1), 1); err == nil {
		t.Fatalf("expected error for missing input")
	}
}

func TestApplyTransferLikeRejectsOutputsExceedingInputs(t *testing.T) {
	s := NewUTXOSet()
	src := OutPoint{Txid: id(9), Index: 0}
	s.Create(src, UTXOEntry{Address: "alice", Amount: 10})
	tx := &Transaction{
		Sender:  "alice",
		Inputs:  []TxInput{{PrevTxid: id(9), PrevOut: 0}},
		Outputs: []TxOutput{{Address: "bob", Amount: 20}},
	}
	if _, err := s.ApplyTransferLike(tx, id(1), 1); err == nil {
		t.Fatalf("expected error for outputs exceeding inputs")
	}
}

func TestApplyCoinbaseCreatesOutputsUnconditionally(t *testing.T) {
	s := NewUTXOSet()
	tx := &Transaction{
		TxType:  TxCoinbase,
		Sender:  CoinbaseSender,
		Outputs: []TxOutput{{Address: "miner", Amount: 1200000000}},
	}
	s.ApplyCoinbase(tx, id(1), 1)
	entry, ok := s.Lookup(OutPoint{Txid: id(1), Index: 0})
	if !ok {
		t.Fatalf("coinbase output must be created")
	}
	if !entry.IsCoinbase {
		t.Fatalf("coinbase output must be flagged IsCoinbase")
	}
}

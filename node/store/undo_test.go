package store

import (
	"testing"

	"ledgerforge.dev/node/consensus"
)

func TestUndoRecordEncodeDecodeRoundTrip(t *testing.T) {
	var txid, spentTxid [32]byte
	txid[0], spentTxid[0] = 1, 2

	u := UndoRecord{
		Spent: []UndoSpent{
			{
				OutPoint:      consensus.OutPoint{Txid: spentTxid, Index: 1},
				RestoredEntry: consensus.UTXOEntry{Address: "alice", Amount: 50, Height: 10},
			},
		},
		Created: []consensus.OutPoint{
			{Txid: txid, Index: 0},
			{Txid: txid, Index: 1},
		},
		NonceRewinds: []NonceRewind{
			{Sender: "alice", PreviousNonce: 4},
			{Sender: "bob", PreviousNonce: 0},
		},
	}

	b, err := encodeUndoRecord(u)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := decodeUndoRecord(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(dec.Spent) != 1 || dec.Spent[0].RestoredEntry.Amount != 50 {
		t.Fatalf("spent mismatch: %+v", dec.Spent)
	}
	if len(dec.Created) != 2 {
		t.Fatalf("created mismatch: %+v", dec.Created)
	}
	if len(dec.NonceRewinds) != 2 || dec.NonceRewinds[0].Sender != "alice" || dec.NonceRewinds[0].PreviousNonce != 4 {
		t.Fatalf("nonce rewinds mismatch: %+v", dec.NonceRewinds)
	}
}

func TestUndoRecordDecodeRejectsTrailingBytes(t *testing.T) {
	u := UndoRecord{}
	b, err := encodeUndoRecord(u)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b = append(b, 0xff)
	if _, err := decodeUndoRecord(b); err == nil {
		t.Fatalf("expected error for trailing bytes")
	}
}

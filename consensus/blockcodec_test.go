package consensus

import "testing"

func sampleBlock() *Block {
	tx := Transaction{
		Sender:    CoinbaseSender,
		Recipient: "miner",
		Amount:    0,
		Fee:       0,
		TxType:    TxCoinbase,
		Outputs:   []TxOutput{{Address: "miner", Amount: 1200000000}},
		Metadata:  map[string]string{"note": "genesis"},
	}
	txid, _ := Txid(&tx)
	tx.Txid = txid

	header := BlockHeader{
		Index:        1,
		Timestamp:    1000,
		PreviousHash: id(0),
		MerkleRoot:   txid,
		Difficulty:   10,
		Nonce:        7,
	}
	return &Block{
		Header:       header,
		Hash:         BlockHash(header),
		Miner:        "miner",
		Transactions: []Transaction{tx},
	}
}

func TestEncodeDecodeTransactionFullRoundTrip(t *testing.T) {
	tx := sampleBlock().Transactions[0]
	b, err := EncodeTransactionFull(&tx)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := DecodeTransactionFull(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.Txid != tx.Txid || dec.Sender != tx.Sender || dec.Outputs[0].Amount != tx.Outputs[0].Amount {
		t.Fatalf("round trip mismatch: got %+v want %+v", dec, tx)
	}
	if dec.Metadata["note"] != "genesis" {
		t.Fatalf("metadata not preserved: %+v", dec.Metadata)
	}
}

func TestEncodeDecodeBlockRoundTrip(t *testing.T) {
	block := sampleBlock()
	b, err := EncodeBlock(block)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := DecodeBlock(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.Hash != block.Hash || dec.Header.Index != block.Header.Index || len(dec.Transactions) != 1 {
		t.Fatalf("round trip mismatch: got %+v want %+v", dec, block)
	}
}

func TestDecodeTransactionFullRejectsUnrecognizedType(t *testing.T) {
	tx := sampleBlock().Transactions[0]
	tx.TxType = "bogus"
	b, err := EncodeTransactionFull(&tx)
	if err == nil {
		t.Fatalf("expected encode error for unrecognized tx_type")
	}
	_ = b
}

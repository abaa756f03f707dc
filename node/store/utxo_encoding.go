package store

import (
	"encoding/binary"
	"fmt"

	"ledgerforge.dev/node/consensus"
)

// encodeOutpointKey produces the fixed 36-byte bbolt key for an OutPoint:
// txid(32) || index_be(4). Big-endian index keeps keys for the same txid
// adjacent and ordered, useful for range scans during debugging.
func encodeOutpointKey(op consensus.OutPoint) []byte {
	key := make([]byte, 36)
	copy(key[:32], op.Txid[:])
	binary.BigEndian.PutUint32(key[32:], op.Index)
	return key
}

func decodeOutpointKey(b []byte) (consensus.OutPoint, error) {
	if len(b) != 36 {
		return consensus.OutPoint{}, fmt.Errorf("outpoint key: want 36 bytes, got %d", len(b))
	}
	var op consensus.OutPoint
	copy(op.Txid[:], b[:32])
	op.Index = binary.BigEndian.Uint32(b[32:])
	return op, nil
}

// encodeUTXOEntry lays out a UTXOEntry as:
// address_len u16le | address_bytes | amount u64le | height u64le | is_coinbase u8
func encodeUTXOEntry(e consensus.UTXOEntry) ([]byte, error) {
	addr := []byte(e.Address)
	if len(addr) > 0xffff {
		return nil, fmt.Errorf("utxo entry: address too long")
	}
	out := make([]byte, 0, 2+len(addr)+8+8+1)
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(addr)))
	out = append(out, lenBuf[:]...)
	out = append(out, addr...)

	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(e.Amount))
	out = append(out, u64[:]...)
	binary.LittleEndian.PutUint64(u64[:], e.Height)
	out = append(out, u64[:]...)

	var coinbaseByte byte
	if e.IsCoinbase {
		coinbaseByte = 1
	}
	out = append(out, coinbaseByte)
	return out, nil
}

func decodeUTXOEntry(b []byte) (consensus.UTXOEntry, error) {
	var e consensus.UTXOEntry
	if len(b) < 2 {
		return e, fmt.Errorf("utxo entry: truncated address length")
	}
	addrLen := int(binary.LittleEndian.Uint16(b[:2]))
	off := 2
	if off+addrLen+8+8+1 != len(b) {
		return e, fmt.Errorf("utxo entry: length mismatch")
	}
	e.Address = consensus.Address(b[off : off+addrLen])
	off += addrLen
	e.Amount = consensus.Amount(binary.LittleEndian.Uint64(b[off : off+8]))
	off += 8
	e.Height = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	e.IsCoinbase = b[off] == 1
	return e, nil
}

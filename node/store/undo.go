package store

import (
	"encoding/binary"
	"fmt"

	"ledgerforge.dev/node/consensus"
)

// UndoSpent records a UTXO that a block's application spent, along with the
// entry that must be restored if the block is later rolled back.
type UndoSpent struct {
	OutPoint      consensus.OutPoint
	RestoredEntry consensus.UTXOEntry
}

// NonceRewind records a sender's pre-block nonce, so a rollback can restore
// exactly that value (0 meaning the sender was previously unseen).
type NonceRewind struct {
	Sender        consensus.Address
	PreviousNonce uint64
}

// UndoRecord captures everything needed to reverse one block's state
// mutation: outputs it spent (to be restored), outputs it created (to be
// deleted), and each sender's nonce immediately before the block applied.
type UndoRecord struct {
	Spent        []UndoSpent
	Created      []consensus.OutPoint
	NonceRewinds []NonceRewind
}

func encodeUndoRecord(u UndoRecord) ([]byte, error) {
	out := make([]byte, 0, 4+len(u.Spent)*64+4+len(u.Created)*36)
	var tmp4 [4]byte

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(u.Spent)))
	out = append(out, tmp4[:]...)
	for _, s := range u.Spent {
		out = append(out, encodeOutpointKey(s.OutPoint)...)
		entryBytes, err := encodeUTXOEntry(s.RestoredEntry)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(tmp4[:], uint32(len(entryBytes)))
		out = append(out, tmp4[:]...)
		out = append(out, entryBytes...)
	}

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(u.Created)))
	out = append(out, tmp4[:]...)
	for _, p := range u.Created {
		out = append(out, encodeOutpointKey(p)...)
	}

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(u.NonceRewinds)))
	out = append(out, tmp4[:]...)
	for _, r := range u.NonceRewinds {
		sender := []byte(r.Sender)
		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(sender)))
		out = append(out, lenBuf[:]...)
		out = append(out, sender...)
		var nonceBuf [8]byte
		binary.LittleEndian.PutUint64(nonceBuf[:], r.PreviousNonce)
		out = append(out, nonceBuf[:]...)
	}
	return out, nil
}

func decodeUndoRecord(b []byte) (*UndoRecord, error) {
	off := 0
	readU32 := func() (uint32, error) {
		if off+4 > len(b) {
			return 0, fmt.Errorf("undo: truncated u32")
		}
		v := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
		return v, nil
	}

	spentN, err := readU32()
	if err != nil {
		return nil, err
	}
	spent := make([]UndoSpent, 0, spentN)
	for i := uint32(0); i < spentN; i++ {
		if off+36 > len(b) {
			return nil, fmt.Errorf("undo: truncated outpoint")
		}
		op, err := decodeOutpointKey(b[off : off+36])
		if err != nil {
			return nil, err
		}
		off += 36
		entryLen, err := readU32()
		if err != nil {
			return nil, err
		}
		if int(entryLen) > len(b)-off {
			return nil, fmt.Errorf("undo: truncated entry bytes")
		}
		entry, err := decodeUTXOEntry(b[off : off+int(entryLen)])
		if err != nil {
			return nil, err
		}
		off += int(entryLen)
		spent = append(spent, UndoSpent{OutPoint: op, RestoredEntry: entry})
	}

	createdN, err := readU32()
	if err != nil {
		return nil, err
	}
	created := make([]consensus.OutPoint, 0, createdN)
	for i := uint32(0); i < createdN; i++ {
		if off+36 > len(b) {
			return nil, fmt.Errorf("undo: truncated created outpoint")
		}
		op, err := decodeOutpointKey(b[off : off+36])
		if err != nil {
			return nil, err
		}
		off += 36
		created = append(created, op)
	}

	rewindN, err := readU32()
	if err != nil {
		return nil, err
	}
	rewinds := make([]NonceRewind, 0, rewindN)
	for i := uint32(0); i < rewindN; i++ {
		if off+2 > len(b) {
			return nil, fmt.Errorf("undo: truncated nonce rewind sender length")
		}
		senderLen := int(binary.LittleEndian.Uint16(b[off : off+2]))
		off += 2
		if off+senderLen+8 > len(b) {
			return nil, fmt.Errorf("undo: truncated nonce rewind")
		}
		sender := consensus.Address(b[off : off+senderLen])
		off += senderLen
		nonce := binary.LittleEndian.Uint64(b[off : off+8])
		off += 8
		rewinds = append(rewinds, NonceRewind{Sender: sender, PreviousNonce: nonce})
	}

	if off != len(b) {
		return nil, fmt.Errorf("undo: trailing bytes")
	}
	return &UndoRecord{Spent: spent, Created: created, NonceRewinds: rewinds}, nil
}

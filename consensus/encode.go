package consensus

import (
	"sort"

	"ledgerforge.dev/node/crypto"
)

// EncodeTxSigningPayload returns the canonical byte encoding of tx with
// Txid and Signature excluded, per spec.md §4.2: the same bytes are used to
// derive the txid (by hashing) and to produce the signature (by signing),
// and the only difference between those two uses is that both the txid and
// signature fields are themselves excluded from the encoded form.
//
// Map keys (metadata) are sorted lexicographically, amounts are fixed
// 8-decimal integers (never floats), strings are length-prefixed UTF-8, and
// tx_type is encoded as its stable string tag.
func EncodeTxSigningPayload(tx *Transaction) ([]byte, error) {
	if tx == nil {
		return nil, coreErr(ErrCodeInvalidEncoding, "nil transaction")
	}
	if _, ok := recognizedTxTypes[tx.TxType]; !ok {
		return nil, coreErr(ErrCodeInvalidEncoding, "unrecognized tx_type %q", tx.TxType)
	}

	out := make([]byte, 0, 256)
	out = appendString(out, string(tx.Sender))
	out = appendString(out, string(tx.Recipient))
	out = appendU64le(out, uint64(tx.Amount))
	out = appendU64le(out, uint64(tx.Fee))
	out = appendU64le(out, tx.Nonce)
	out = appendU64le(out, tx.Timestamp)
	out = appendString(out, string(tx.TxType))

	out = appendCompactSize(out, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		out = append(out, in.PrevTxid[:]...)
		out = appendU32le(out, in.PrevOut)
	}

	out = appendCompactSize(out, uint64(len(tx.Outputs)))
	for _, o := range tx.Outputs {
		out = appendString(out, string(o.Address))
		out = appendU64le(out, uint64(o.Amount))
	}

	out = appendBytes(out, tx.PublicKey)

	keys := make([]string, 0, len(tx.Metadata))
	for k := range tx.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out = appendCompactSize(out, uint64(len(keys)))
	for _, k := range keys {
		out = appendString(out, k)
		out = appendString(out, tx.Metadata[k])
	}

	return out, nil
}

// Txid computes the transaction's identifier: SHA256 of its canonical
// signing payload.
func Txid(tx *Transaction) ([32]byte, error) {
	payload, err := EncodeTxSigningPayload(tx)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.SHA256(payload), nil
}

// EncodeBlockHeader returns the canonical byte encoding of a block header,
// excluding the derived Hash field.
func EncodeBlockHeader(h BlockHeader) []byte {
	out := make([]byte, 0, 8+8+32+32+4+8)
	out = appendU64le(out, h.Index)
	out = appendU64le(out, h.Timestamp)
	out = append(out, h.PreviousHash[:]...)
	out = append(out, h.MerkleRoot[:]...)
	out = appendU32le(out, h.Difficulty)
	out = appendU64le(out, h.Nonce)
	return out
}

// BlockHash computes the block's hash: SHA256 of its canonical header
// encoding.
func BlockHash(h BlockHeader) [32]byte {
	return crypto.SHA256(EncodeBlockHeader(h))
}

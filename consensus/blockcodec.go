package consensus

import "sort"

// EncodeTransactionFull serializes tx in full, including Txid and Signature,
// for on-disk block storage. This is distinct from EncodeTxSigningPayload,
// which deliberately excludes those two fields.
func EncodeTransactionFull(tx *Transaction) ([]byte, error) {
	if tx == nil {
		return nil, coreErr(ErrCodeInvalidEncoding, "nil transaction")
	}
	if _, ok := recognizedTxTypes[tx.TxType]; !ok {
		return nil, coreErr(ErrCodeInvalidEncoding, "unrecognized tx_type %q", tx.TxType)
	}

	out := make([]byte, 0, 320)
	out = append(out, tx.Txid[:]...)
	out = appendString(out, string(tx.Sender))
	out = appendString(out, string(tx.Recipient))
	out = appendU64le(out, uint64(tx.Amount))
	out = appendU64le(out, uint64(tx.Fee))
	out = appendU64le(out, tx.Nonce)
	out = appendU64le(out, tx.Timestamp)
	out = appendBytes(out, tx.PublicKey)
	out = appendBytes(out, tx.Signature)
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

// DecodeTransactionFull parses the output of EncodeTransactionFull.
func DecodeTransactionFull(b []byte) (*Transaction, error) {
	r := &byteReader{b: b}
	tx := &Transaction{}

	txidBytes, err := r.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(tx.Txid[:], txidBytes)

	sender, err := r.readString(MaxStringFieldLen)
	if err != nil {
		return nil, err
	}
	tx.Sender = Address(sender)

	recipient, err := r.readString(MaxStringFieldLen)
	if err != nil {
		return nil, err
	}
	tx.Recipient = Address(recipient)

	amount, err := r.readU64le()
	if err != nil {
		return nil, err
	}
	tx.Amount = Amount(amount)

	fee, err := r.readU64le()
	if err != nil {
		return nil, err
	}
	tx.Fee = Amount(fee)

	if tx.Nonce, err = r.readU64le(); err != nil {
		return nil, err
	}
	if tx.Timestamp, err = r.readU64le(); err != nil {
		return nil, err
	}
	if tx.PublicKey, err = r.readBytes(128); err != nil {
		return nil, err
	}
	if tx.Signature, err = r.readBytes(128); err != nil {
		return nil, err
	}
	txType, err := r.readString(64)
	if err != nil {
		return nil, err
	}
	tx.TxType = TxType(txType)
	if _, ok := recognizedTxTypes[tx.TxType]; !ok {
		return nil, coreErr(ErrCodeInvalidEncoding, "unrecognized tx_type %q", tx.TxType)
	}

	inCount, err := r.readCompactSize()
	if err != nil {
		return nil, err
	}
	tx.Inputs = make([]TxInput, 0, inCount)
	for i := uint64(0); i < inCount; i++ {
		prevTxid, err := r.readFixed(32)
		if err != nil {
			return nil, err
		}
		prevOut, err := r.readU32le()
		if err != nil {
			return nil, err
		}
		var in TxInput
		copy(in.PrevTxid[:], prevTxid)
		in.PrevOut = prevOut
		tx.Inputs = append(tx.Inputs, in)
	}

	outCount, err := r.readCompactSize()
	if err != nil {
		return nil, err
	}
	tx.Outputs = make([]TxOutput, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		addr, err := r.readString(MaxStringFieldLen)
		if err != nil {
			return nil, err
		}
		amt, err := r.readU64le()
		if err != nil {
			return nil, err
		}
		tx.Outputs = append(tx.Outputs, TxOutput{Address: Address(addr), Amount: Amount(amt)})
	}

	metaCount, err := r.readCompactSize()
	if err != nil {
		return nil, err
	}
	if metaCount > MaxMetadataEntries {
		return nil, coreErr(ErrCodeInvalidEncoding, "too many metadata entries")
	}
	if metaCount > 0 {
		tx.Metadata = make(map[string]string, metaCount)
	}
	for i := uint64(0); i < metaCount; i++ {
		k, err := r.readString(MaxStringFieldLen)
		if err != nil {
			return nil, err
		}
		v, err := r.readString(MaxStringFieldLen)
		if err != nil {
			return nil, err
		}
		tx.Metadata[k] = v
	}

	return tx, nil
}

// EncodeBlock serializes a full block (header, hash, miner, transactions)
// for on-disk storage.
func EncodeBlock(b *Block) ([]byte, error) {
	if b == nil {
		return nil, coreErr(ErrCodeInvalidBlock, "nil block")
	}
	out := EncodeBlockHeader(b.Header)
	out = append(out, b.Hash[:]...)
	out = appendString(out, string(b.Miner))
	out = appendCompactSize(out, uint64(len(b.Transactions)))
	for i := range b.Transactions {
		txBytes, err := EncodeTransactionFull(&b.Transactions[i])
		if err != nil {
			return nil, err
		}
		out = appendBytes(out, txBytes)
	}
	return out, nil
}

// DecodeBlock parses the output of EncodeBlock.
func DecodeBlock(raw []byte) (*Block, error) {
	const headerLen = 8 + 8 + 32 + 32 + 4 + 8
	if len(raw) < headerLen {
		return nil, coreErr(ErrCodeInvalidEncoding, "truncated block header")
	}
	r := &byteReader{b: raw}

	b := &Block{}
	var err error
	if b.Header.Index, err = r.readU64le(); err != nil {
		return nil, err
	}
	if b.Header.Timestamp, err = r.readU64le(); err != nil {
		return nil, err
	}
	prevHash, err := r.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(b.Header.PreviousHash[:], prevHash)
	merkleRoot, err := r.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(b.Header.MerkleRoot[:], merkleRoot)
	if b.Header.Difficulty, err = r.readU32le(); err != nil {
		return nil, err
	}
	if b.Header.Nonce, err = r.readU64le(); err != nil {
		return nil, err
	}
	hash, err := r.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(b.Hash[:], hash)

	miner, err := r.readString(MaxStringFieldLen)
	if err != nil {
		return nil, err
	}
	b.Miner = Address(miner)

	txCount, err := r.readCompactSize()
	if err != nil {
		return nil, err
	}
	if txCount > MaxBlockTransactions {
		return nil, coreErr(ErrCodeInvalidBlock, "block transaction count exceeds max")
	}
	b.Transactions = make([]Transaction, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		txBytes, err := r.readBytes(1 << 24)
		if err != nil {
			return nil, err
		}
		tx, err := DecodeTransactionFull(txBytes)
		if err != nil {
			return nil, err
		}
		b.Transactions = append(b.Transactions, *tx)
	}
	return b, nil
}

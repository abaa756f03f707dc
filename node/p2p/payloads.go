package p2p

import (
	"fmt"
	"math/big"
)

func appendU32le(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendU64le(dst []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

func appendBytes(dst []byte, b []byte) []byte {
	dst = appendU32le(dst, uint32(len(b)))
	return append(dst, b...)
}

func appendString(dst []byte, s string) []byte {
	return appendBytes(dst, []byte(s))
}

type byteReader struct {
	b []byte
	i int
}

func (r *byteReader) u32le() (uint32, error) {
	if r.i+4 > len(r.b) {
		return 0, fmt.Errorf("p2p: truncated u32")
	}
	v := uint32(r.b[r.i]) | uint32(r.b[r.i+1])<<8 | uint32(r.b[r.i+2])<<16 | uint32(r.b[r.i+3])<<24
	r.i += 4
	return v, nil
}

func (r *byteReader) u64le() (uint64, error) {
	if r.i+8 > len(r.b) {
		return 0, fmt.Errorf("p2p: truncated u64")
	}
	var v uint64
	for j := 0; j < 8; j++ {
		v |= uint64(r.b[r.i+j]) << (8 * j)
	}
	r.i += 8
	return v, nil
}

func (r *byteReader) bytes(maxLen uint32) ([]byte, error) {
	n, err := r.u32le()
	if err != nil {
		return nil, err
	}
	if n > maxLen {
		return nil, fmt.Errorf("p2p: length %d exceeds max %d", n, maxLen)
	}
	if r.i+int(n) > len(r.b) {
		return nil, fmt.Errorf("p2p: truncated bytes")
	}
	out := make([]byte, n)
	copy(out, r.b[r.i:r.i+int(n)])
	r.i += int(n)
	return out, nil
}

func (r *byteReader) str(maxLen uint32) (string, error) {
	b, err := r.bytes(maxLen)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *byteReader) done() error {
	if r.i != len(r.b) {
		return fmt.Errorf("p2p: trailing bytes")
	}
	return nil
}

const maxEndpointLen = 256

// GetBlocksPayload requests a contiguous range of canonical blocks starting
// just after SinceHeight, up to Limit of them.
type GetBlocksPayload struct {
	SinceHeight uint64
	Limit       uint32
}

func EncodeGetBlocksPayload(p GetBlocksPayload) []byte {
	out := make([]byte, 0, 12)
	out = appendU64le(out, p.SinceHeight)
	out = appendU32le(out, p.Limit)
	return out
}

func DecodeGetBlocksPayload(b []byte) (GetBlocksPayload, error) {
	r := &byteReader{b: b}
	since, err := r.u64le()
	if err != nil {
		return GetBlocksPayload{}, err
	}
	limit, err := r.u32le()
	if err != nil {
		return GetBlocksPayload{}, err
	}
	if err := r.done(); err != nil {
		return GetBlocksPayload{}, err
	}
	if limit > MaxBlocksPerRange {
		return GetBlocksPayload{}, fmt.Errorf("p2p: get_blocks limit %d exceeds max %d", limit, MaxBlocksPerRange)
	}
	return GetBlocksPayload{SinceHeight: since, Limit: limit}, nil
}

// BlocksPayload carries a sequence of canonically-encoded blocks (each an
// opaque consensus.EncodeBlock output) answering a get_blocks request.
type BlocksPayload struct {
	Blocks [][]byte
}

func EncodeBlocksPayload(p BlocksPayload) ([]byte, error) {
	if len(p.Blocks) > MaxBlocksPerRange {
		return nil, fmt.Errorf("p2p: %d blocks exceeds max %d", len(p.Blocks), MaxBlocksPerRange)
	}
	out := appendU32le(nil, uint32(len(p.Blocks)))
	for _, blk := range p.Blocks {
		out = appendBytes(out, blk)
	}
	return out, nil
}

func DecodeBlocksPayload(b []byte) (BlocksPayload, error) {
	r := &byteReader{b: b}
	n, err := r.u32le()
	if err != nil {
		return BlocksPayload{}, err
	}
	if n > MaxBlocksPerRange {
		return BlocksPayload{}, fmt.Errorf("p2p: %d blocks exceeds max %d", n, MaxBlocksPerRange)
	}
	out := make([][]byte, n)
	for i := range out {
		blk, err := r.bytes(MaxRelayMsgBytes)
		if err != nil {
			return BlocksPayload{}, err
		}
		out[i] = blk
	}
	if err := r.done(); err != nil {
		return BlocksPayload{}, err
	}
	return BlocksPayload{Blocks: out}, nil
}

// PeersPayload answers a get_peers request with known endpoints.
type PeersPayload struct {
	Endpoints []string
}

func EncodePeersPayload(p PeersPayload) ([]byte, error) {
	if len(p.Endpoints) > MaxPeersPerResponse {
		return nil, fmt.Errorf("p2p: %d peers exceeds max %d", len(p.Endpoints), MaxPeersPerResponse)
	}
	out := appendU32le(nil, uint32(len(p.Endpoints)))
	for _, ep := range p.Endpoints {
		out = appendString(out, ep)
	}
	return out, nil
}

func DecodePeersPayload(b []byte) (PeersPayload, error) {
	r := &byteReader{b: b}
	n, err := r.u32le()
	if err != nil {
		return PeersPayload{}, err
	}
	if n > MaxPeersPerResponse {
		return PeersPayload{}, fmt.Errorf("p2p: %d peers exceeds max %d", n, MaxPeersPerResponse)
	}
	out := make([]string, n)
	for i := range out {
		ep, err := r.str(maxEndpointLen)
		if err != nil {
			return PeersPayload{}, err
		}
		out[i] = ep
	}
	if err := r.done(); err != nil {
		return PeersPayload{}, err
	}
	return PeersPayload{Endpoints: out}, nil
}

// AnnouncePayload advertises a newly discovered peer endpoint.
type AnnouncePayload struct {
	Endpoint string
}

func EncodeAnnouncePayload(p AnnouncePayload) []byte {
	return appendString(nil, p.Endpoint)
}

func DecodeAnnouncePayload(b []byte) (AnnouncePayload, error) {
	r := &byteReader{b: b}
	ep, err := r.str(maxEndpointLen)
	if err != nil {
		return AnnouncePayload{}, err
	}
	if err := r.done(); err != nil {
		return AnnouncePayload{}, err
	}
	return AnnouncePayload{Endpoint: ep}, nil
}

// GetCheckpointPayload requests the checkpoint tuple a peer holds at or
// below Height (0 means "your latest").
type GetCheckpointPayload struct {
	Height uint64
}

func EncodeGetCheckpointPayload(p GetCheckpointPayload) []byte {
	return appendU64le(nil, p.Height)
}

func DecodeGetCheckpointPayload(b []byte) (GetCheckpointPayload, error) {
	r := &byteReader{b: b}
	h, err := r.u64le()
	if err != nil {
		return GetCheckpointPayload{}, err
	}
	if err := r.done(); err != nil {
		return GetCheckpointPayload{}, err
	}
	return GetCheckpointPayload{Height: h}, nil
}

const maxCheckpointWorkBytes = 64
const maxCheckpointSigs = 32
const maxCheckpointSigBytes = 128

// CheckpointPayload is the wire form of a committee-attested checkpoint
// claim: height, block hash, cumulative work, state root, and one
// signature per attesting committee member.
type CheckpointPayload struct {
	Height         uint64
	Hash           [32]byte
	CumulativeWork *big.Int
	StateRoot      [32]byte
	Signatures     [][]byte
}

func EncodeCheckpointPayload(p CheckpointPayload) ([]byte, error) {
	if len(p.Signatures) > maxCheckpointSigs {
		return nil, fmt.Errorf("p2p: %d signatures exceeds max %d", len(p.Signatures), maxCheckpointSigs)
	}
	work := big.NewInt(0)
	if p.CumulativeWork != nil {
		work = p.CumulativeWork
	}
	workBytes := work.Bytes()
	if len(workBytes) > maxCheckpointWorkBytes {
		return nil, fmt.Errorf("p2p: cumulative_work too large")
	}
	out := make([]byte, 0, 8+32+32+4)
	out = appendU64le(out, p.Height)
	out = append(out, p.Hash[:]...)
	out = append(out, p.StateRoot[:]...)
	out = appendBytes(out, workBytes)
	out = appendU32le(out, uint32(len(p.Signatures)))
	for _, sig := range p.Signatures {
		if len(sig) > maxCheckpointSigBytes {
			return nil, fmt.Errorf("p2p: signature too large")
		}
		out = appendBytes(out, sig)
	}
	return out, nil
}

func DecodeCheckpointPayload(b []byte) (CheckpointPayload, error) {
	r := &byteReader{b: b}
	height, err := r.u64le()
	if err != nil {
		return CheckpointPayload{}, err
	}
	var hash, stateRoot [32]byte
	if r.i+64 > len(r.b) {
		return CheckpointPayload{}, fmt.Errorf("p2p: truncated checkpoint payload")
	}
	copy(hash[:], r.b[r.i:r.i+32])
	r.i += 32
	copy(stateRoot[:], r.b[r.i:r.i+32])
	r.i += 32

	workBytes, err := r.bytes(maxCheckpointWorkBytes)
	if err != nil {
		return CheckpointPayload{}, err
	}
	n, err := r.u32le()
	if err != nil {
		return CheckpointPayload{}, err
	}
	if n > maxCheckpointSigs {
		return CheckpointPayload{}, fmt.Errorf("p2p: %d signatures exceeds max %d", n, maxCheckpointSigs)
	}
	sigs := make([][]byte, n)
	for i := range sigs {
		sig, err := r.bytes(maxCheckpointSigBytes)
		if err != nil {
			return CheckpointPayload{}, err
		}
		sigs[i] = sig
	}
	if err := r.done(); err != nil {
		return CheckpointPayload{}, err
	}
	return CheckpointPayload{
		Height:         height,
		Hash:           hash,
		CumulativeWork: new(big.Int).SetBytes(workBytes),
		StateRoot:      stateRoot,
		Signatures:     sigs,
	}, nil
}

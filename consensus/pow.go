package consensus

import (
	"bytes"
	"math/big"
)

// Target computes 2^(256-difficultyBits) as a 32-byte big-endian value.
// difficultyBits must be in (0, DifficultyBitsMax]; a value of 0 would mean
// "any hash passes" and is rejected by callers before reaching this function.
func Target(difficultyBits uint32) ([32]byte, error) {
	var zero [32]byte
	if difficultyBits == 0 || difficultyBits > DifficultyBitsMax {
		return zero, coreErr(ErrCodeInvalidBlock, "difficulty_bits %d out of range", difficultyBits)
	}
	t := new(big.Int).Lsh(big.NewInt(1), uint(256-difficultyBits))
	return bigIntToBytes32(t)
}

// PowCheck reports whether hash, interpreted as a big-endian 256-bit integer,
// is strictly less than the target implied by difficultyBits.
func PowCheck(hash [32]byte, difficultyBits uint32) error {
	target, err := Target(difficultyBits)
	if err != nil {
		return err
	}
	if bytes.Compare(hash[:], target[:]) >= 0 {
		return coreErr(ErrCodeInvalidBlock, "hash does not meet target for difficulty_bits %d", difficultyBits)
	}
	return nil
}

// WorkFromDifficultyBits returns the per-block work contribution 2^difficultyBits
// used by cumulative-work fork choice.
func WorkFromDifficultyBits(difficultyBits uint32) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(difficultyBits))
}

// CumulativeWork sums WorkFromDifficultyBits over every block on a branch,
// from genesis to tip.
func CumulativeWork(difficultyBitsPerBlock []uint32) *big.Int {
	total := new(big.Int)
	for _, bits := range difficultyBitsPerBlock {
		total.Add(total, WorkFromDifficultyBits(bits))
	}
	return total
}

// Retarget recomputes difficulty_bits for the next window given the elapsed
// wall-clock time across RetargetWindow blocks, per spec: adjust so the
// median time per block matches TargetBlockInterval, clamped to a factor of
// RetargetClamp per window in either direction.
func Retarget(oldDifficultyBits uint32, firstTimestamp, lastTimestamp uint64) (uint32, error) {
	oldTarget, err := Target(oldDifficultyBits)
	if err != nil {
		return 0, err
	}
	tOld := new(big.Int).SetBytes(oldTarget[:])

	var actual uint64
	if lastTimestamp <= firstTimestamp {
		actual = 1
	} else {
		actual = lastTimestamp - firstTimestamp
	}
	expected := uint64(TargetBlockInterval) * uint64(RetargetWindow)

	num := new(big.Int).Mul(tOld, new(big.Int).SetUint64(actual))
	den := new(big.Int).SetUint64(expected)
	tNew := new(big.Int).Div(num, den)

	lower := new(big.Int).Div(tOld, big.NewInt(RetargetClamp))
	if lower.Sign() < 1 {
		lower.SetInt64(1)
	}
	upper := new(big.Int).Mul(tOld, big.NewInt(RetargetClamp))

	if tNew.Cmp(lower) < 0 {
		tNew = lower
	}
	if tNew.Cmp(upper) > 0 {
		tNew = upper
	}

	return bitsFromTarget(tNew)
}

// bitsFromTarget recovers the smallest difficulty_bits whose implied target
// is >= tNew, i.e. rounds to the nearest valid power-of-two target no easier
// than the computed one.
func bitsFromTarget(t *big.Int) (uint32, error) {
	if t.Sign() <= 0 {
		return 0, coreErr(ErrCodeInvalidBlock, "retarget: non-positive target")
	}
	bitLen := t.BitLen()
	bits := 256 - (bitLen - 1)
	if bits < 1 {
		bits = 1
	}
	if bits > DifficultyBitsMax {
		bits = DifficultyBitsMax
	}
	return uint32(bits), nil
}

func bigIntToBytes32(x *big.Int) ([32]byte, error) {
	var out [32]byte
	if x.Sign() < 0 {
		return out, coreErr(ErrCodeInvalidEncoding, "u256: negative value")
	}
	b := x.Bytes()
	if len(b) > 32 {
		return out, coreErr(ErrCodeInvalidEncoding, "u256: overflow")
	}
	copy(out[32-len(b):], b)
	return out, nil
}

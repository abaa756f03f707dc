package consensus

import "testing"

func TestTargetMonotonicWithDifficulty(t *testing.T) {
	low, err := Target(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	high, err := Target(32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Higher difficulty_bits implies a smaller (harder) target.
	if bytesCompare(high[:], low[:]) >= 0 {
		t.Fatalf("higher difficulty must produce a smaller target")
	}
}

func TestTargetRejectsOutOfRange(t *testing.T) {
	if _, err := Target(0); err == nil {
		t.Fatalf("expected error for difficulty_bits=0")
	}
	if _, err := Target(DifficultyBitsMax + 1); err == nil {
		t.Fatalf("expected error for difficulty_bits beyond max")
	}
}

func TestPowCheckAcceptsAndRejects(t *testing.T) {
	var easy [32]byte
	easy[0] = 0x00
	easy[31] = 0x01
	if err := PowCheck(easy, 8); err != nil {
		t.Fatalf("expected hash below easy target to pass: %v", err)
	}

	var hard [32]byte
	for i := range hard {
		hard[i] = 0xff
	}
	if err := PowCheck(hard, 8); err == nil {
		t.Fatalf("expected all-0xff hash to fail an easy target")
	}
}

func TestWorkFromDifficultyBitsIncreasesWithBits(t *testing.T) {
	w1 := WorkFromDifficultyBits(10)
	w2 := WorkFromDifficultyBits(20)
	if w2.Cmp(w1) <= 0 {
		t.Fatalf("work must increase with difficulty_bits")
	}
}

func TestCumulativeWorkSums(t *testing.T) {
	total := CumulativeWork([]uint32{1, 1, 1})
	want := WorkFromDifficultyBits(1)
	want.Add(want, WorkFromDifficultyBits(1))
	want.Add(want, WorkFromDifficultyBits(1))
	if total.Cmp(want) != 0 {
		t.Fatalf("cumulative work mismatch: got %s want %s", total, want)
	}
}

func TestRetargetClampedToFactorOfFour(t *testing.T) {
	// A window that took 100x longer than expected must clamp to a 4x easier
	// target (i.e. roughly 2 fewer difficulty_bits since each bit halves/
	// doubles the target).
	oldBits := uint32(20)
	first := uint64(0)
	last := uint64(TargetBlockInterval) * uint64(RetargetWindow) * 100
	newBits, err := Retarget(oldBits, first, last)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newBits >= oldBits {
		t.Fatalf("slow window must ease difficulty: old=%d new=%d", oldBits, newBits)
	}
	if oldBits-newBits > 3 {
		t.Fatalf("retarget exceeded the clamp: old=%d new=%d", oldBits, newBits)
	}
}

func TestRetargetFastWindowTightensDifficulty(t *testing.T) {
	oldBits := uint32(20)
	first := uint64(0)
	last := uint64(TargetBlockInterval) * uint64(RetargetWindow) / 100
	newBits, err := Retarget(oldBits, first, last)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newBits <= oldBits {
		t.Fatalf("fast window must tighten difficulty: old=%d new=%d", oldBits, newBits)
	}
}

func bytesCompare(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

package difficulty

import (
	"math/big"
	"testing"
)

// TestBigToCompact ensures BigToCompact converts big integers to the
// expected compact representation.
func TestBigToCompact(t *testing.T) {
	tests := []struct {
		in  int64
		out uint32
	}{
		{0, 0},
		{-1, 25231360},
		{1, 0x01010000},
		{0x12, 0x01120000},
		{0x1234, 0x02123400},
		{0x123456, 0x03123456},
		{0x12345600, 0x04123456},
	}

	for x, test := range tests {
		n := big.NewInt(test.in)
		r := BigToCompact(n)
		if r != test.out {
			t.Errorf("TestBigToCompact test #%d failed: got %08x want %08x",
				x, r, test.out)
		}
	}
}

// TestCompactToBig ensures CompactToBig converts numbers using the compact
// representation to the expected big integers.
func TestCompactToBig(t *testing.T) {
	tests := []struct {
		in  uint32
		out int64
	}{
		{0x00000000, 0},
		{0x01123456, 0x12},
		{0x02123456, 0x1234},
		{0x03123456, 0x123456},
		{0x04123456, 0x12345600},
		{0x04923456, -0x12345600},
		{0x05009234, 0x92340000},
	}

	for x, test := range tests {
		n := CompactToBig(test.in)
		want := big.NewInt(test.out)
		if n.Cmp(want) != 0 {
			t.Errorf("TestCompactToBig test #%d failed: got %d want %d",
				x, n, want)
		}
	}
}

// TestCompactRoundTrip ensures the network's actual difficulty values
// survive a CompactToBig/BigToCompact round trip.
func TestCompactRoundTrip(t *testing.T) {
	for _, bits := range []uint32{0x1e0fffff, 0x207fffff, 0x1d00ffff, 0x1a44b9f2} {
		roundTripped := BigToCompact(CompactToBig(bits))
		if roundTripped != bits {
			t.Errorf("compact bits %08x round tripped to %08x", bits, roundTripped)
		}
	}
}

// TestCalcWork checks the work values of the bootstrap difficulties and
// that harder targets are worth more work.
func TestCalcWork(t *testing.T) {
	if CalcWork(0).Sign() != 0 {
		t.Error("CalcWork(0) should be zero")
	}
	// The trivial simnet target admits roughly half of all hashes.
	if got := CalcWork(0x207fffff); got.Cmp(big.NewInt(2)) != 0 {
		t.Errorf("CalcWork(0x207fffff) = %d, want 2", got)
	}

	bootstrapWork := CalcWork(0x1e0fffff)
	trivialWork := CalcWork(0x207fffff)
	if bootstrapWork.Cmp(trivialWork) <= 0 {
		t.Errorf("the bootstrap difficulty must be worth more work than the trivial one: %d <= %d",
			bootstrapWork, trivialWork)
	}

	// A smaller target is worth strictly more work.
	harder := CalcWork(0x1d00ffff)
	easier := CalcWork(0x1d01ffff)
	if harder.Cmp(easier) <= 0 {
		t.Errorf("a smaller target must be worth more work: %d <= %d", harder, easier)
	}
}

package pow

import (
	"testing"

	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/constants"
)

const (
	testCacheItems   = 256
	testDatasetItems = 1024
)

func testSeed() *externalapi.DomainHash {
	return externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{0x01, 0x02, 0x03})
}

func testHeader() *externalapi.DomainBlockHeader {
	return &externalapi.DomainBlockHeader{
		Version:        constants.BlockVersion,
		ParentHash:     externalapi.NewZeroHash(),
		HashMerkleRoot: externalapi.NewZeroHash(),
		TimeInSeconds:  1718000123,
		Bits:           0x207fffff,
	}
}

func TestInitializeLifecycle(t *testing.T) {
	state := NewState(testSeed(), testCacheItems, testDatasetItems, ModeLight)
	if state.IsInitialized() {
		t.Fatal("a fresh state must not report initialized")
	}

	err := state.Initialize()
	if err != nil {
		t.Fatalf("Initialize: %+v", err)
	}
	if !state.IsInitialized() {
		t.Fatal("the state must report initialized after Initialize")
	}

	// Initialize must be idempotent.
	err = state.Initialize()
	if err != nil {
		t.Fatalf("repeated Initialize: %+v", err)
	}
}

func TestInitializeRejectsEmptyDimensions(t *testing.T) {
	state := NewState(testSeed(), 0, 0, ModeLight)
	if err := state.Initialize(); err == nil {
		t.Fatal("Initialize should fail for empty dimensions")
	}
}

func TestCalcPowHashPanicsOnUninitializedState(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("CalcPowHash must panic when the state was never initialized")
		}
	}()
	CalcPowHash(NewState(testSeed(), testCacheItems, testDatasetItems, ModeLight), testHeader())
}

// TestFastAndLightModesAgree is the core property of the two verification
// modes: identical hashes, identical verdicts.
func TestFastAndLightModesAgree(t *testing.T) {
	light := NewState(testSeed(), testCacheItems, testDatasetItems, ModeLight)
	fast := NewState(testSeed(), testCacheItems, testDatasetItems, ModeFast)
	if err := light.Initialize(); err != nil {
		t.Fatalf("light Initialize: %+v", err)
	}
	if err := fast.Initialize(); err != nil {
		t.Fatalf("fast Initialize: %+v", err)
	}

	header := testHeader()
	for nonce := uint64(0); nonce < 16; nonce++ {
		header.Nonce = nonce
		lightHash := CalcPowHash(light, header)
		fastHash := CalcPowHash(fast, header)
		if !lightHash.Equal(fastHash) {
			t.Fatalf("nonce %d: light mode hashed %s, fast mode hashed %s",
				nonce, lightHash, fastHash)
		}
	}
}

func TestSolveAndCheckRoundTrip(t *testing.T) {
	state := NewState(testSeed(), testCacheItems, testDatasetItems, ModeFast)
	if err := state.Initialize(); err != nil {
		t.Fatalf("Initialize: %+v", err)
	}

	header := testHeader()
	err := SolveHeader(state, header, 1_000_000)
	if err != nil {
		t.Fatalf("SolveHeader: %+v", err)
	}
	if !CheckProofOfWorkByBits(state, header) {
		t.Fatal("a solved header must verify")
	}

	// A solved header must verify in the other mode too.
	light := NewState(testSeed(), testCacheItems, testDatasetItems, ModeLight)
	if err := light.Initialize(); err != nil {
		t.Fatalf("light Initialize: %+v", err)
	}
	if !CheckProofOfWorkByBits(light, header) {
		t.Fatal("a solved header must verify in light mode")
	}
}

func TestCheckRejectsTamperedSolution(t *testing.T) {
	state := NewState(testSeed(), testCacheItems, testDatasetItems, ModeFast)
	if err := state.Initialize(); err != nil {
		t.Fatalf("Initialize: %+v", err)
	}

	header := testHeader()
	if err := SolveHeader(state, header, 1_000_000); err != nil {
		t.Fatalf("SolveHeader: %+v", err)
	}

	// Flipping a solution byte must invalidate the header even though the
	// underlying hash still meets the target.
	header.Solution[0] ^= 0xff
	if CheckProofOfWorkByBits(state, header) {
		t.Fatal("a tampered solution must not verify")
	}
	header.Solution[0] ^= 0xff

	// Changing the nonce invalidates the recorded solution.
	header.Nonce++
	if CheckProofOfWorkByBits(state, header) {
		t.Fatal("a header whose nonce changed after solving must not verify")
	}
}

func TestSolveHonorsMaxAttempts(t *testing.T) {
	state := NewState(testSeed(), testCacheItems, testDatasetItems, ModeLight)
	if err := state.Initialize(); err != nil {
		t.Fatalf("Initialize: %+v", err)
	}

	header := testHeader()
	// An impossible target: only the all-zero hash satisfies compact 1.
	header.Bits = 0x01000001
	err := SolveHeader(state, header, 10)
	if err == nil {
		t.Fatal("SolveHeader should give up after maxAttempts")
	}
}

func TestParseMode(t *testing.T) {
	if mode, ok := ParseMode("fast"); !ok || mode != ModeFast {
		t.Errorf(`ParseMode("fast") = %v, %t`, mode, ok)
	}
	if mode, ok := ParseMode("light"); !ok || mode != ModeLight {
		t.Errorf(`ParseMode("light") = %v, %t`, mode, ok)
	}
	if _, ok := ParseMode("turbo"); ok {
		t.Error(`ParseMode("turbo") should not parse`)
	}
}

func TestSeedSeparation(t *testing.T) {
	stateA := NewState(testSeed(), testCacheItems, testDatasetItems, ModeLight)
	seedB := externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{0xaa})
	stateB := NewState(seedB, testCacheItems, testDatasetItems, ModeLight)
	if err := stateA.Initialize(); err != nil {
		t.Fatalf("Initialize: %+v", err)
	}
	if err := stateB.Initialize(); err != nil {
		t.Fatalf("Initialize: %+v", err)
	}

	header := testHeader()
	if CalcPowHash(stateA, header).Equal(CalcPowHash(stateB, header)) {
		t.Fatal("different seeds must produce different proof-of-work hashes")
	}
}

package pow

import (
	"bytes"
	"math/big"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/consensushashing"
	"github.com/ringnet/ringd/domain/consensus/utils/difficulty"
	"github.com/ringnet/ringd/domain/consensus/utils/hashes"
	"github.com/ringnet/ringd/domain/consensus/utils/serialization"
)

// CalcPowHash computes the memory-hard proof-of-work hash of the given
// header. The state must be initialized. The header's nonce and time
// participate in the hash; its solution does not.
func CalcPowHash(state *State, header *externalapi.DomainBlockHeader) *externalapi.DomainHash {
	if !state.IsInitialized() {
		panic(errors.New("attempt to evaluate proof-of-work with an uninitialized state"))
	}

	prePowHash := calcPrePowHash(header)

	// PRE_POW_HASH || TIME || 32 zero byte padding || NONCE
	writer := hashes.NewHashWriter()
	_, err := writer.Write(prePowHash.ByteSlice())
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
	}
	err = serialization.WriteElement(writer, header.TimeInSeconds)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
	}
	zeroes := [32]byte{}
	_, err = writer.Write(zeroes[:])
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
	}
	err = serialization.WriteElement(writer, header.Nonce)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
	}
	mix := writer.Finalize()

	// Walk the dataset, folding one item into the mix per access.
	generator := newxoShiRo256PlusPlus(mix)
	for access := 0; access < datasetAccesses; access++ {
		item := state.datasetItem(generator.Uint64() % state.datasetItems)
		itemWriter := hashes.NewHashWriter()
		_, err = itemWriter.Write(mix.ByteSlice())
		if err != nil {
			panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
		}
		_, err = itemWriter.Write(item)
		if err != nil {
			panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
		}
		mix = itemWriter.Finalize()
	}
	return mix
}

// calcPrePowHash hashes the header with its nonce, time and solution zeroed
// out, so the heavy part of the hash is not recomputed per nonce attempt.
func calcPrePowHash(header *externalapi.DomainBlockHeader) *externalapi.DomainHash {
	timestamp, nonce, solution := header.TimeInSeconds, header.Nonce, header.Solution
	header.TimeInSeconds, header.Nonce, header.Solution = 0, 0, nil

	prePowHash := consensushashing.HeaderHash(header)
	header.TimeInSeconds, header.Nonce, header.Solution = timestamp, nonce, solution

	return prePowHash
}

// CheckProofOfWorkWithTarget checks if the header has a valid PoW according
// to the provided target. The header's solution must match the recomputed
// proof-of-work hash exactly, and that hash must not exceed the target. It
// does not check that the difficulty encoded in the header is itself the
// required one.
func CheckProofOfWorkWithTarget(state *State, header *externalapi.DomainBlockHeader, target *big.Int) bool {
	powHash := CalcPowHash(state, header)
	if !bytes.Equal(header.Solution, powHash.ByteSlice()) {
		return false
	}

	// The proof-of-work value must be less than or equal to the claimed target.
	return hashes.ToBig(powHash).Cmp(target) <= 0
}

// CheckProofOfWorkByBits checks if the header has a valid PoW according to
// its Bits field.
func CheckProofOfWorkByBits(state *State, header *externalapi.DomainBlockHeader) bool {
	return CheckProofOfWorkWithTarget(state, header, difficulty.CompactToBig(header.Bits))
}

// SolveHeader searches the nonce space until the header's proof-of-work
// value satisfies the target derived from the header's own bits, filling in
// the nonce and solution. maxAttempts of zero means unbounded.
func SolveHeader(state *State, header *externalapi.DomainBlockHeader, maxAttempts uint64) error {
	target := difficulty.CompactToBig(header.Bits)

	for attempt := uint64(0); maxAttempts == 0 || attempt < maxAttempts; attempt++ {
		header.Nonce = attempt
		powHash := CalcPowHash(state, header)
		if hashes.ToBig(powHash).Cmp(target) <= 0 {
			header.Solution = powHash.ByteSlice()
			return nil
		}
	}
	return errors.Errorf("no valid nonce found in %d attempts", maxAttempts)
}

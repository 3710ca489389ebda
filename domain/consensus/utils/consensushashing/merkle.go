package consensushashing

import (
	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/hashes"
)

// CalculateHashMerkleRoot computes the merkle root over the IDs of the given
// transactions. When the number of hashes at some level is odd, the last one
// is paired with itself, as in bitcoind.
func CalculateHashMerkleRoot(transactions []*externalapi.DomainTransaction) *externalapi.DomainHash {
	if len(transactions) == 0 {
		return externalapi.NewZeroHash()
	}

	level := make([]*externalapi.DomainHash, len(transactions))
	for i, tx := range transactions {
		level[i] = (*externalapi.DomainHash)(TransactionID(tx))
	}

	for len(level) > 1 {
		nextLevel := make([]*externalapi.DomainHash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			nextLevel = append(nextLevel, hashMerkleBranches(left, right))
		}
		level = nextLevel
	}
	return level[0]
}

func hashMerkleBranches(left, right *externalapi.DomainHash) *externalapi.DomainHash {
	writer := hashes.NewHashWriter()
	_, err := writer.Write(left.ByteSlice())
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
	}
	_, err = writer.Write(right.ByteSlice())
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
	}
	return writer.Finalize()
}

package consensushashing

import (
	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/hashes"
	"github.com/ringnet/ringd/domain/consensus/utils/serialization"
)

// HeaderHash returns the hash of the given block header. This hash identifies
// the block.
func HeaderHash(header *externalapi.DomainBlockHeader) *externalapi.DomainHash {
	writer := hashes.NewHashWriter()
	err := serializeHeader(writer, header)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
	}
	return writer.Finalize()
}

// BlockHash returns the hash of the given block. A block is identified by
// its header alone.
func BlockHash(block *externalapi.DomainBlock) *externalapi.DomainHash {
	return HeaderHash(block.Header)
}

func serializeHeader(writer *hashes.HashWriter, header *externalapi.DomainBlockHeader) error {
	parentHash := header.ParentHash
	if parentHash == nil {
		parentHash = externalapi.NewZeroHash()
	}
	err := serialization.WriteElements(writer,
		header.Version, parentHash, header.HashMerkleRoot,
		header.TimeInSeconds, header.Bits, header.Nonce)
	if err != nil {
		return err
	}
	return serialization.WriteVarBytes(writer, header.Solution)
}

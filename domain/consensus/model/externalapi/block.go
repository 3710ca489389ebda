package externalapi

// DomainBlockHeader represents the header part of a ringd block.
//
// Once a block is accepted its header is immutable.
type DomainBlockHeader struct {
	Version int32

	// ParentHash is the hash of the block this block extends. It is the
	// zero hash for the genesis block.
	ParentHash *DomainHash

	// HashMerkleRoot is the merkle root of the block's transaction IDs.
	HashMerkleRoot *DomainHash

	// TimeInSeconds is the block time in Unix seconds.
	TimeInSeconds int64

	// Bits is the compact encoding of the proof-of-work target this
	// block's proof-of-work value must not exceed.
	Bits uint32

	Nonce uint64

	// Solution is the memory-hard proof-of-work value found by the
	// solver. Validation recomputes it and requires an exact match.
	// It is empty for the genesis block.
	Solution []byte
}

// Clone returns a clone of DomainBlockHeader
func (header *DomainBlockHeader) Clone() *DomainBlockHeader {
	solutionClone := make([]byte, len(header.Solution))
	copy(solutionClone, header.Solution)

	return &DomainBlockHeader{
		Version:        header.Version,
		ParentHash:     header.ParentHash,
		HashMerkleRoot: header.HashMerkleRoot,
		TimeInSeconds:  header.TimeInSeconds,
		Bits:           header.Bits,
		Nonce:          header.Nonce,
		Solution:       solutionClone,
	}
}

// DomainBlock represents a ringd block.
//
// The first transaction is required to be the coinbase transaction.
type DomainBlock struct {
	Header       *DomainBlockHeader
	Transactions []*DomainTransaction
}

// Clone returns a clone of DomainBlock
func (block *DomainBlock) Clone() *DomainBlock {
	transactionsClone := make([]*DomainTransaction, len(block.Transactions))
	for i, tx := range block.Transactions {
		transactionsClone[i] = tx.Clone()
	}

	return &DomainBlock{
		Header:       block.Header.Clone(),
		Transactions: transactionsClone,
	}
}

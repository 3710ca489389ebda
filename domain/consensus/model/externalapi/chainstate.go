package externalapi

// ChainStateSnapshot is a consistent, read-only view of the chain state as
// of some accepted block. Concurrent readers always observe a fully applied
// block, never a partial one.
type ChainStateSnapshot struct {
	// Height is the height of the current best block.
	Height uint64

	// BestBlockHash is the hash of the current best block.
	BestBlockHash *DomainHash

	// TotalSupply is the cumulative amount of rings issued by coinbase
	// transactions up to and including the best block. It never exceeds
	// constants.MaxSupply.
	TotalSupply uint64

	// Bits is the difficulty bits the best block was accepted with.
	Bits uint32

	// UTXOCommitment is the ECMH multiset commitment over the current
	// UTXO set.
	UTXOCommitment *DomainHash

	// UTXOCount is the number of entries in the current UTXO set.
	UTXOCount uint64
}

// BlockInfo contains the information of an accepted block, as held by the
// chain state tracker.
type BlockInfo struct {
	Hash   *DomainHash
	Height uint64
	Header *DomainBlockHeader

	// Reward is the coinbase amount actually paid by the block.
	Reward uint64

	// ChildHash is the hash of the accepted block that extends this one.
	// nil for the current tip.
	ChildHash *DomainHash
}

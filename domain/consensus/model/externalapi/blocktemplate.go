package externalapi

// DomainBlockTemplate is an unsolved candidate block assembled for an
// external proof-of-work solver. It is advisory only: a solved block built
// from it re-enters full validation on submission.
type DomainBlockTemplate struct {
	Block *DomainBlock

	// Height is the height the solved block would be accepted at.
	Height uint64

	// MinTime is the earliest timestamp the solved block may carry,
	// derived from the same tip the template was built on.
	MinTime int64

	// TotalFees is the sum of fees paid by the non-coinbase transactions
	// selected into the template.
	TotalFees uint64

	// TotalWeight is the block weight of the template, including the
	// weight reserved for the coinbase transaction.
	TotalWeight uint64
}

// Clone returns a clone of DomainBlockTemplate
func (bt *DomainBlockTemplate) Clone() *DomainBlockTemplate {
	return &DomainBlockTemplate{
		Block:       bt.Block.Clone(),
		Height:      bt.Height,
		MinTime:     bt.MinTime,
		TotalFees:   bt.TotalFees,
		TotalWeight: bt.TotalWeight,
	}
}

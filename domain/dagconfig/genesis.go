package dagconfig

import (
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/consensushashing"
	"github.com/ringnet/ringd/domain/consensus/utils/constants"
	"github.com/ringnet/ringd/domain/consensus/utils/transactionhelper"
)

// Genesis blocks are not mined: their proof-of-work is never checked, their
// coinbase pays the scheduled height-0 reward to an unspendable script, and
// their hash is derived from the header like any other block's.

func newGenesisBlock(timeInSeconds int64, bits uint32) externalapi.DomainBlock {
	coinbase := transactionhelper.NewCoinbaseTransaction(
		0, transactionhelper.UnspendableScriptPublicKey, constants.BlockRewardAmount)
	return externalapi.DomainBlock{
		Header: &externalapi.DomainBlockHeader{
			Version:        constants.BlockVersion,
			ParentHash:     externalapi.NewZeroHash(),
			HashMerkleRoot: consensushashing.CalculateHashMerkleRoot([]*externalapi.DomainTransaction{coinbase}),
			TimeInSeconds:  timeInSeconds,
			Bits:           bits,
			Nonce:          0,
		},
		Transactions: []*externalapi.DomainTransaction{coinbase},
	}
}

var (
	genesisBlock        = newGenesisBlock(1718000000, constants.InitialBits)
	testnetGenesisBlock = newGenesisBlock(1718000001, constants.InitialBits)
	simnetGenesisBlock  = newGenesisBlock(1718000002, 0x207fffff)
)

// GenesisHash returns the hash of the network's genesis block.
func (p *Params) GenesisHash() *externalapi.DomainHash {
	if p.genesisHash == nil {
		p.genesisHash = consensushashing.BlockHash(p.GenesisBlock)
	}
	return p.genesisHash
}

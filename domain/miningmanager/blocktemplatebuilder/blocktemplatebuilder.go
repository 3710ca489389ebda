package blocktemplatebuilder

import (
	"github.com/ringnet/ringd/domain/consensus"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/consensushashing"
	"github.com/ringnet/ringd/domain/consensus/utils/constants"
	"github.com/ringnet/ringd/domain/consensus/utils/transactionhelper"
	"github.com/ringnet/ringd/domain/dagconfig"
)

// txSource supplies candidate transactions for block templates.
type txSource interface {
	Transactions() []*externalapi.DomainTransaction
}

// BlockTemplateBuilder assembles unsolved blocks on top of the current
// selected tip: a coinbase paying the scheduled reward plus as many
// non-conflicting mempool transactions as fit the weight limit.
type BlockTemplateBuilder struct {
	params    *dagconfig.Params
	consensus *consensus.Consensus
	source    txSource
}

// New instantiates a new BlockTemplateBuilder.
func New(params *dagconfig.Params, consensusInstance *consensus.Consensus, source txSource) *BlockTemplateBuilder {
	return &BlockTemplateBuilder{
		params:    params,
		consensus: consensusInstance,
		source:    source,
	}
}

// BuildBlockTemplate assembles a template whose coinbase pays
// coinbaseScript. The returned block carries no proof-of-work solution yet.
func (btb *BlockTemplateBuilder) BuildBlockTemplate(coinbaseScript []byte) (*externalapi.DomainBlockTemplate, error) {
	info, err := btb.consensus.NextBlockTemplateInfo()
	if err != nil {
		return nil, err
	}

	coinbase := transactionhelper.NewCoinbaseTransaction(info.Height, coinbaseScript,
		btb.consensus.BlockReward(info.Height))
	transactions := []*externalapi.DomainTransaction{coinbase}

	totalWeight := uint64(constants.CoinbaseReservedWeight)
	var totalFees uint64
	spent := make(map[externalapi.DomainOutpoint]struct{})
	for _, tx := range btb.source.Transactions() {
		weight := TransactionWeight(tx)
		if totalWeight+weight > constants.MaxBlockWeight {
			continue
		}
		if conflicts(tx, spent) {
			continue
		}
		fee, err := btb.consensus.CheckTransactionInputsAndCalculateFee(tx)
		if err != nil {
			log.Debugf("Skipping transaction %s while building a template: %s",
				consensushashing.TransactionID(tx), err)
			continue
		}
		for _, input := range tx.Inputs {
			spent[*input.PreviousOutpoint] = struct{}{}
		}
		transactions = append(transactions, tx)
		totalWeight += weight
		totalFees += fee
	}

	header := &externalapi.DomainBlockHeader{
		Version:        constants.BlockVersion,
		ParentHash:     info.ParentHash,
		HashMerkleRoot: consensushashing.CalculateHashMerkleRoot(transactions),
		TimeInSeconds:  info.CurrentTime,
		Bits:           info.Bits,
	}
	template := &externalapi.DomainBlockTemplate{
		Block:       &externalapi.DomainBlock{Header: header, Transactions: transactions},
		Height:      info.Height,
		MinTime:     info.MinTime,
		TotalFees:   totalFees,
		TotalWeight: totalWeight,
	}
	log.Debugf("Built a template at height %d with %d transactions and weight %d",
		info.Height, len(transactions), totalWeight)
	return template, nil
}

func conflicts(tx *externalapi.DomainTransaction, spent map[externalapi.DomainOutpoint]struct{}) bool {
	for _, input := range tx.Inputs {
		if _, ok := spent[*input.PreviousOutpoint]; ok {
			return true
		}
	}
	return false
}

// TransactionWeight estimates the block weight a transaction occupies,
// proportional to its serialized size.
func TransactionWeight(tx *externalapi.DomainTransaction) uint64 {
	size := uint64(8 + 8 + 8 + 8 + len(tx.Payload))
	for _, input := range tx.Inputs {
		size += externalapi.DomainHashSize + 4 + 8 + 8 + uint64(len(input.SignatureScript))
	}
	for _, output := range tx.Outputs {
		size += 8 + 8 + uint64(len(output.ScriptPublicKey))
	}
	return size * 4
}

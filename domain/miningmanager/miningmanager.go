package miningmanager

import (
	"github.com/ringnet/ringd/domain/consensus"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/dagconfig"
	"github.com/ringnet/ringd/domain/miningmanager/blocktemplatebuilder"
	"github.com/ringnet/ringd/domain/miningmanager/mempool"
)

// MiningManager exposes the mining-side services: the mempool and the
// block template builder.
type MiningManager struct {
	mempool         *mempool.Mempool
	templateBuilder *blocktemplatebuilder.BlockTemplateBuilder
}

// New instantiates a mining manager against the given consensus.
func New(params *dagconfig.Params, consensusInstance *consensus.Consensus) *MiningManager {
	pool := mempool.New(params, consensusInstance)
	return &MiningManager{
		mempool:         pool,
		templateBuilder: blocktemplatebuilder.New(params, consensusInstance, pool),
	}
}

// GetBlockTemplate assembles an unsolved block template whose coinbase
// pays coinbaseScript.
func (mm *MiningManager) GetBlockTemplate(coinbaseScript []byte) (*externalapi.DomainBlockTemplate, error) {
	return mm.templateBuilder.BuildBlockTemplate(coinbaseScript)
}

// ValidateAndInsertTransaction admits the given transaction to the
// mempool.
func (mm *MiningManager) ValidateAndInsertTransaction(tx *externalapi.DomainTransaction) error {
	return mm.mempool.ValidateAndInsertTransaction(tx)
}

// BurnAsset builds and admits a transaction that burns the given amount,
// paying change to changeScript.
func (mm *MiningManager) BurnAsset(amount uint64, changeScript []byte) (*externalapi.DomainTransaction, error) {
	return mm.mempool.BurnAsset(amount, changeScript)
}

// HandleNewBlockTransactions evicts from the mempool everything the given
// block transactions made redundant or unspendable.
func (mm *MiningManager) HandleNewBlockTransactions(transactions []*externalapi.DomainTransaction) {
	mm.mempool.HandleNewBlockTransactions(transactions)
}

// MempoolTransactionIDs returns the IDs of every pooled transaction.
func (mm *MiningManager) MempoolTransactionIDs() []*externalapi.DomainTransactionID {
	return mm.mempool.TransactionIDs()
}

// MempoolTransactionByID returns the pooled transaction with the given ID.
func (mm *MiningManager) MempoolTransactionByID(txID *externalapi.DomainTransactionID) (*externalapi.DomainTransaction, bool) {
	return mm.mempool.TransactionByID(txID)
}

// MempoolSize returns the number of pooled transactions.
func (mm *MiningManager) MempoolSize() int {
	return mm.mempool.Len()
}

package domain

import (
	"github.com/ringnet/ringd/domain/burnindex"
	"github.com/ringnet/ringd/domain/consensus"
	"github.com/ringnet/ringd/domain/consensus/utils/pow"
	"github.com/ringnet/ringd/domain/dagconfig"
	"github.com/ringnet/ringd/domain/miningmanager"
	"github.com/ringnet/ringd/infrastructure/db/database"
)

// Domain is the complete node core: consensus, the burn-to-vote ledger and
// the mining services, wired together over a single database.
type Domain struct {
	consensus     *consensus.Consensus
	burnIndex     *burnindex.BurnIndex
	miningManager *miningmanager.MiningManager
}

// New instantiates the node core over the given database. The burn index
// is registered as a chain observer before any block can flow, so it can
// never miss a chain change.
func New(params *dagconfig.Params, db database.Database, powMode pow.Mode) (*Domain, error) {
	consensusInstance, err := consensus.New(params, db, powMode)
	if err != nil {
		return nil, err
	}
	burnIndex, err := burnindex.New(params, db, consensusInstance)
	if err != nil {
		return nil, err
	}
	consensusInstance.AddChainObserver(burnIndex)

	return &Domain{
		consensus:     consensusInstance,
		burnIndex:     burnIndex,
		miningManager: miningmanager.New(params, consensusInstance),
	}, nil
}

// Consensus returns the consensus core.
func (d *Domain) Consensus() *consensus.Consensus {
	return d.consensus
}

// BurnIndex returns the burn-to-vote ledger.
func (d *Domain) BurnIndex() *burnindex.BurnIndex {
	return d.burnIndex
}

// MiningManager returns the mining services.
func (d *Domain) MiningManager() *miningmanager.MiningManager {
	return d.miningManager
}

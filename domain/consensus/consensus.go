package consensus

import (
	"sync"
	"time"

	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/processes/blockprocessor"
	"github.com/ringnet/ringd/domain/consensus/processes/blockvalidator"
	"github.com/ringnet/ringd/domain/consensus/processes/coinbasemanager"
	"github.com/ringnet/ringd/domain/consensus/processes/consensusstatemanager"
	"github.com/ringnet/ringd/domain/consensus/processes/difficultymanager"
	"github.com/ringnet/ringd/domain/consensus/utils/pow"
	"github.com/ringnet/ringd/domain/dagconfig"
	"github.com/ringnet/ringd/infrastructure/db/database"
)

// TemplateInfo carries everything a block builder needs to assemble the
// next block on top of the current selected tip.
type TemplateInfo struct {
	Height        uint64
	ParentHash    *externalapi.DomainHash
	Bits          uint32
	MinTime       int64
	CurrentTime   int64
	CurrentSupply uint64
}

// Consensus is the entry point to the consensus core: a single-writer
// facade over the chain state tracker, the validators and the block
// processor. Block insertion is serialized; queries may run concurrently
// and always observe a fully applied block.
type Consensus struct {
	writeLock sync.Mutex

	params            *dagconfig.Params
	stateManager      *consensusstatemanager.ConsensusStateManager
	difficultyManager *difficultymanager.DifficultyManager
	coinbaseManager   *coinbasemanager.CoinbaseManager
	blockProcessor    *blockprocessor.BlockProcessor
}

// New instantiates the consensus core over the given database.
func New(params *dagconfig.Params, db database.Database, powMode pow.Mode) (*Consensus, error) {
	stateManager, err := consensusstatemanager.New(params, db)
	if err != nil {
		return nil, err
	}
	difficultyManager := difficultymanager.New(params, stateManager)
	coinbaseManager := coinbasemanager.New(params)
	validator := blockvalidator.New(params, difficultyManager, coinbaseManager)
	blockProcessor := blockprocessor.New(params, stateManager, validator, coinbaseManager, powMode)

	// The node reports its proof-of-work state as part of mining info, so
	// the state for the next block is built up front rather than on the
	// first solve.
	err = blockProcessor.InitializePowState()
	if err != nil {
		return nil, err
	}

	return &Consensus{
		params:            params,
		stateManager:      stateManager,
		difficultyManager: difficultyManager,
		coinbaseManager:   coinbaseManager,
		blockProcessor:    blockProcessor,
	}, nil
}

// Params returns the network parameters this consensus instance runs with.
func (c *Consensus) Params() *dagconfig.Params {
	return c.params
}

// AddChainObserver registers an observer for selected-chain changes. Call
// before any block is inserted.
func (c *Consensus) AddChainObserver(observer blockprocessor.ChainObserver) {
	c.blockProcessor.AddObserver(observer)
}

// ValidateAndInsertBlock validates the given block and inserts it into the
// chain state. Insertions are serialized and atomic.
func (c *Consensus) ValidateAndInsertBlock(block *externalapi.DomainBlock) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	return c.blockProcessor.ValidateAndInsertBlock(block)
}

// Snapshot returns a consistent view of the current chain state.
func (c *Consensus) Snapshot() *externalapi.ChainStateSnapshot {
	return c.stateManager.Snapshot()
}

// Height returns the height of the selected chain's tip.
func (c *Consensus) Height() uint64 {
	return c.stateManager.Height()
}

// BestBlockHash returns the hash of the selected chain's tip.
func (c *Consensus) BestBlockHash() *externalapi.DomainHash {
	return c.stateManager.BestBlockHash()
}

// BlockInfoByHash returns the tracked details of the given block.
func (c *Consensus) BlockInfoByHash(hash *externalapi.DomainHash) (*externalapi.BlockInfo, bool) {
	return c.stateManager.BlockInfoByHash(hash)
}

// BlockByHash returns the full block with the given hash.
func (c *Consensus) BlockByHash(hash *externalapi.DomainHash) (*externalapi.DomainBlock, bool) {
	return c.stateManager.BlockByHash(hash)
}

// BlockHashByHeight returns the hash of the selected-chain block at the
// given height.
func (c *Consensus) BlockHashByHeight(height uint64) (*externalapi.DomainHash, bool) {
	return c.stateManager.BlockHashByHeight(height)
}

// TransactionConfirmations returns how many selected-chain blocks confirm
// the given transaction: 1 for a transaction in the tip block, 0 if it was
// never accepted or its accepting block was reorganized away.
func (c *Consensus) TransactionConfirmations(txID *externalapi.DomainTransactionID) (uint64, bool) {
	acceptanceHeight, ok := c.stateManager.TransactionAcceptanceHeight(txID)
	if !ok {
		return 0, false
	}
	return c.stateManager.Height() - acceptanceHeight + 1, true
}

// UTXOEntryByOutpoint returns the unspent output the given outpoint refers
// to, if it is indeed unspent.
func (c *Consensus) UTXOEntryByOutpoint(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool) {
	return c.stateManager.UTXOEntryByOutpoint(outpoint)
}

// CollectSpendableUTXOs gathers mature, spendable unspent outputs worth at
// least the given amount, skipping excluded outpoints.
func (c *Consensus) CollectSpendableUTXOs(amount uint64,
	isExcluded func(*externalapi.DomainOutpoint) bool) ([]*externalapi.OutpointAndUTXOEntryPair, uint64) {

	return c.stateManager.CollectSpendableUTXOs(amount, isExcluded)
}

// CheckTransactionInputsAndCalculateFee validates the given transaction's
// inputs against the current UTXO set, as if it were included in the next
// block, and returns the implied fee.
func (c *Consensus) CheckTransactionInputsAndCalculateFee(tx *externalapi.DomainTransaction) (uint64, error) {
	return c.stateManager.CheckTransactionInputsAndCalculateFee(tx, c.stateManager.Height()+1)
}

// BlockReward returns the scheduled coinbase reward for the given height.
func (c *Consensus) BlockReward(height uint64) uint64 {
	return c.coinbaseManager.BlockReward(height)
}

// NextBlockTemplateInfo returns the parameters the next block must be
// built with: its height, parent, required difficulty and timestamp
// bounds.
func (c *Consensus) NextBlockTemplateInfo() (*TemplateInfo, error) {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	snapshot := c.stateManager.Snapshot()
	medianTimePast, err := c.stateManager.MedianTimePast(snapshot.BestBlockHash)
	if err != nil {
		return nil, err
	}
	bits, err := c.difficultyManager.RequiredDifficulty(snapshot.BestBlockHash)
	if err != nil {
		return nil, err
	}

	minTime := medianTimePast + 1
	currentTime := time.Now().Unix()
	if currentTime < minTime {
		currentTime = minTime
	}
	return &TemplateInfo{
		Height:        snapshot.Height + 1,
		ParentHash:    snapshot.BestBlockHash,
		Bits:          bits,
		MinTime:       minTime,
		CurrentTime:   currentTime,
		CurrentSupply: snapshot.TotalSupply,
	}, nil
}

// SolveHeader grinds nonces for the given header until its proof-of-work
// solution satisfies its difficulty bits or maxAttempts nonces were tried.
func (c *Consensus) SolveHeader(header *externalapi.DomainBlockHeader, height uint64, maxAttempts uint64) error {
	state, err := c.blockProcessor.PowStateForHeight(header.ParentHash, height)
	if err != nil {
		return err
	}
	return pow.SolveHeader(state, header, maxAttempts)
}

// PowMode returns the dataset mode proof-of-work runs with.
func (c *Consensus) PowMode() pow.Mode {
	return c.blockProcessor.PowMode()
}

// IsPowInitialized returns whether the proof-of-work state for the next
// block is ready.
func (c *Consensus) IsPowInitialized() bool {
	return c.blockProcessor.IsPowInitialized()
}

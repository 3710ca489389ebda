package blockprocessor

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/processes/blockvalidator"
	"github.com/ringnet/ringd/domain/consensus/processes/coinbasemanager"
	"github.com/ringnet/ringd/domain/consensus/processes/consensusstatemanager"
	"github.com/ringnet/ringd/domain/consensus/ruleerrors"
	"github.com/ringnet/ringd/domain/consensus/utils/consensushashing"
	"github.com/ringnet/ringd/domain/consensus/utils/pow"
	"github.com/ringnet/ringd/domain/dagconfig"
)

// ChainObserver is notified of every selected-chain change, in order,
// within the same atomic boundary that applies the change. An observer
// therefore never sees the chain state and its own state disagree.
type ChainObserver interface {
	BlockConnected(block *externalapi.DomainBlock, hash *externalapi.DomainHash, height uint64)
	BlockDisconnected(block *externalapi.DomainBlock, hash *externalapi.DomainHash, height uint64)
}

// BlockProcessor drives a block through the validation pipeline and, when
// it passes, into the chain state: extending the selected chain, sitting
// aside as a side-chain block, or triggering a reorganization if its branch
// accumulated more work than the selected chain.
type BlockProcessor struct {
	params          *dagconfig.Params
	stateManager    *consensusstatemanager.ConsensusStateManager
	validator       *blockvalidator.BlockValidator
	coinbaseManager *coinbasemanager.CoinbaseManager

	// powStatesLock guards powStates. Solving and mining-info queries
	// reach the map without holding the consensus write lock.
	powStatesLock sync.Mutex
	powStates     map[externalapi.DomainHash]*pow.State
	powMode       pow.Mode

	observers []ChainObserver
}

// New instantiates a new BlockProcessor.
func New(params *dagconfig.Params, stateManager *consensusstatemanager.ConsensusStateManager,
	validator *blockvalidator.BlockValidator, coinbaseManager *coinbasemanager.CoinbaseManager,
	powMode pow.Mode) *BlockProcessor {

	return &BlockProcessor{
		params:          params,
		stateManager:    stateManager,
		validator:       validator,
		coinbaseManager: coinbaseManager,
		powStates:       make(map[externalapi.DomainHash]*pow.State),
		powMode:         powMode,
	}
}

// AddObserver registers an observer for selected-chain changes. Not safe
// for concurrent use with block insertion.
func (bp *BlockProcessor) AddObserver(observer ChainObserver) {
	bp.observers = append(bp.observers, observer)
}

// ValidateAndInsertBlock runs the full pipeline on the given block. On
// success the block is part of the block index, and the selected chain has
// been extended or reorganized if the block's branch won. The insertion is
// atomic: a failed block changes nothing.
func (bp *BlockProcessor) ValidateAndInsertBlock(block *externalapi.DomainBlock) error {
	hash := consensushashing.BlockHash(block)

	if bp.stateManager.HasBlock(hash) {
		return errors.Wrapf(ruleerrors.ErrDuplicateBlock, "block %s was already submitted", hash)
	}

	err := bp.validator.ValidateBlockInIsolation(block)
	if err != nil {
		return err
	}

	parentHash := block.Header.ParentHash
	_, parentHeight, ok := bp.stateManager.HeaderByHash(parentHash)
	if !ok {
		return errors.Wrapf(ruleerrors.ErrMissingParent, "parent %s of block %s is not known",
			parentHash, hash)
	}
	if bp.stateManager.IsInvalid(parentHash) {
		bp.stateManager.MarkInvalid(hash)
		return errors.Wrapf(ruleerrors.ErrMissingParent, "parent %s of block %s failed validation",
			parentHash, hash)
	}
	blockHeight := parentHeight + 1

	medianTimePast, err := bp.stateManager.MedianTimePast(parentHash)
	if err != nil {
		return err
	}
	supplyBefore := bp.coinbaseManager.SupplyBeforeHeight(blockHeight)
	err = bp.validator.ValidateBlockInContext(block, blockHeight, medianTimePast, supplyBefore, time.Now())
	if err != nil {
		return err
	}

	powState, err := bp.PowStateForHeight(parentHash, blockHeight)
	if err != nil {
		return err
	}
	if !pow.CheckProofOfWorkByBits(powState, block.Header) {
		return errors.Wrapf(ruleerrors.ErrInvalidPoW, "block %s carries an invalid proof-of-work solution", hash)
	}

	err = bp.stateManager.AddBlockEntry(block)
	if err != nil {
		return err
	}

	return bp.updateSelectedChain(block, hash)
}

// updateSelectedChain extends the chain with the freshly inserted block,
// reorganizes to its branch, or leaves it aside, depending on cumulative
// work.
func (bp *BlockProcessor) updateSelectedChain(block *externalapi.DomainBlock, hash *externalapi.DomainHash) error {
	tipHash := bp.stateManager.BestBlockHash()

	if block.Header.ParentHash.Equal(tipHash) {
		_, height, _ := bp.stateManager.HeaderByHash(hash)
		err := bp.stateManager.ConnectTip(hash)
		if err != nil {
			bp.stateManager.MarkInvalid(hash)
			return err
		}
		bp.notifyConnected(block, hash, height)
		return nil
	}

	newWork, _ := bp.stateManager.CumulativeWork(hash)
	tipWork, _ := bp.stateManager.CumulativeWork(tipHash)
	if newWork.Cmp(tipWork) <= 0 {
		log.Infof("Block %s was accepted as a side-chain block", hash)
		return nil
	}

	log.Infof("Block %s has more cumulative work than the current tip %s. Reorganizing", hash, tipHash)
	return bp.reorganizeTo(hash)
}

// reorganizeTo rewinds the selected chain to the fork point between the
// current tip and newTipHash, then connects newTipHash's branch. If a
// branch block turns out to be invalid the previous chain is restored, so
// the chain state never ends up between two chains.
func (bp *BlockProcessor) reorganizeTo(newTipHash *externalapi.DomainHash) error {
	// Collect the new branch, child-to-parent, down to the fork point.
	var branch []*externalapi.DomainHash
	current := newTipHash
	for !bp.stateManager.IsOnSelectedChain(current) {
		branch = append(branch, current)
		header, _, ok := bp.stateManager.HeaderByHash(current)
		if !ok {
			return errors.Errorf("missing ancestor %s while tracing a reorganization", current)
		}
		current = header.ParentHash
	}
	forkHash := current

	// Rewind to the fork point, remembering the disconnected blocks so
	// the old chain can be restored if the new branch fails.
	var disconnected []*externalapi.DomainHash
	for !bp.stateManager.BestBlockHash().Equal(forkHash) {
		tipHash := bp.stateManager.BestBlockHash()
		_, tipHeight, _ := bp.stateManager.HeaderByHash(tipHash)
		block, err := bp.stateManager.DisconnectTip()
		if err != nil {
			return err
		}
		disconnected = append(disconnected, tipHash)
		bp.notifyDisconnected(block, tipHash, tipHeight)
	}

	// Connect the new branch, parent-to-child.
	for i := len(branch) - 1; i >= 0; i-- {
		branchHash := branch[i]
		branchBlock, _ := bp.stateManager.BlockByHash(branchHash)
		_, branchHeight, _ := bp.stateManager.HeaderByHash(branchHash)
		err := bp.stateManager.ConnectTip(branchHash)
		if err != nil {
			log.Warnf("Block %s of the winning branch failed to connect: %s. Restoring the previous chain",
				branchHash, err)
			bp.stateManager.MarkInvalid(branchHash)
			restoreErr := bp.restoreChain(forkHash, disconnected)
			if restoreErr != nil {
				return restoreErr
			}
			return err
		}
		bp.notifyConnected(branchBlock, branchHash, branchHeight)
	}

	log.Infof("Reorganized to new tip %s at height %d", newTipHash, bp.stateManager.Height())
	return nil
}

// restoreChain puts the previously selected chain back after a failed
// reorganization. disconnected holds the old chain's blocks tip-first.
func (bp *BlockProcessor) restoreChain(forkHash *externalapi.DomainHash, disconnected []*externalapi.DomainHash) error {
	for !bp.stateManager.BestBlockHash().Equal(forkHash) {
		tipHash := bp.stateManager.BestBlockHash()
		_, tipHeight, _ := bp.stateManager.HeaderByHash(tipHash)
		block, err := bp.stateManager.DisconnectTip()
		if err != nil {
			return err
		}
		bp.notifyDisconnected(block, tipHash, tipHeight)
	}
	for i := len(disconnected) - 1; i >= 0; i-- {
		restoredHash := disconnected[i]
		block, _ := bp.stateManager.BlockByHash(restoredHash)
		_, height, _ := bp.stateManager.HeaderByHash(restoredHash)
		err := bp.stateManager.ConnectTip(restoredHash)
		if err != nil {
			return errors.Wrapf(err, "failed restoring block %s of the previous chain", restoredHash)
		}
		bp.notifyConnected(block, restoredHash, height)
	}
	return nil
}

func (bp *BlockProcessor) notifyConnected(block *externalapi.DomainBlock, hash *externalapi.DomainHash, height uint64) {
	for _, observer := range bp.observers {
		observer.BlockConnected(block, hash, height)
	}
}

func (bp *BlockProcessor) notifyDisconnected(block *externalapi.DomainBlock, hash *externalapi.DomainHash, height uint64) {
	for _, observer := range bp.observers {
		observer.BlockDisconnected(block, hash, height)
	}
}

package blockprocessor

import (
	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/pow"
)

// PowStateForHeight returns the initialized proof-of-work state for a block
// at the given height whose parent is parentHash. States are cached per
// seed, so within a seed epoch the expensive initialization happens once.
func (bp *BlockProcessor) PowStateForHeight(parentHash *externalapi.DomainHash, height uint64) (*pow.State, error) {
	seed, err := bp.seedForHeight(parentHash, height)
	if err != nil {
		return nil, err
	}

	bp.powStatesLock.Lock()
	state, ok := bp.powStates[*seed]
	if !ok {
		state = pow.NewState(seed, bp.params.PowCacheItems, bp.params.PowDatasetItems, bp.powMode)
		bp.powStates[*seed] = state
	}
	bp.powStatesLock.Unlock()

	// Initialize runs outside the map lock: it can take seconds, and
	// concurrent callers coalesce on the state's own once-guard.
	err = state.Initialize()
	if err != nil {
		return nil, errors.Wrapf(err, "failed initializing the proof-of-work state for seed %s", seed)
	}
	return state, nil
}

// seedForHeight derives the proof-of-work seed for a block at the given
// height: the hash of the last block of the previous seed epoch, or the
// genesis hash during the first epoch. The seed block is found by walking
// the block's own ancestry, so side-chain blocks resolve their seed on
// their own branch.
func (bp *BlockProcessor) seedForHeight(parentHash *externalapi.DomainHash, height uint64) (*externalapi.DomainHash, error) {
	epoch := height / bp.params.PowEpochLength
	if epoch == 0 {
		return bp.params.GenesisHash(), nil
	}
	seedHeight := epoch*bp.params.PowEpochLength - 1

	currentHash := parentHash
	currentHeader, currentHeight, ok := bp.stateManager.HeaderByHash(currentHash)
	if !ok {
		return nil, errors.Errorf("block %s not found while deriving a proof-of-work seed", currentHash)
	}
	for currentHeight > seedHeight {
		currentHash = currentHeader.ParentHash
		currentHeader, currentHeight, ok = bp.stateManager.HeaderByHash(currentHash)
		if !ok {
			return nil, errors.Errorf("missing ancestor %s while deriving a proof-of-work seed", currentHash)
		}
	}
	return currentHash, nil
}

// PowMode returns the dataset mode the processor verifies with.
func (bp *BlockProcessor) PowMode() pow.Mode {
	return bp.powMode
}

// IsPowInitialized returns whether the proof-of-work state for the next
// block is ready, without triggering its initialization.
func (bp *BlockProcessor) IsPowInitialized() bool {
	tipHash := bp.stateManager.BestBlockHash()
	nextHeight := bp.stateManager.Height() + 1
	seed, err := bp.seedForHeight(tipHash, nextHeight)
	if err != nil {
		return false
	}
	bp.powStatesLock.Lock()
	state, ok := bp.powStates[*seed]
	bp.powStatesLock.Unlock()
	return ok && state.IsInitialized()
}

// InitializePowState eagerly builds the proof-of-work state for the next
// block. Called at startup so a freshly booted node reports an initialized
// state and the first solve or verification does not pay the
// initialization cost.
func (bp *BlockProcessor) InitializePowState() error {
	tipHash := bp.stateManager.BestBlockHash()
	_, err := bp.PowStateForHeight(tipHash, bp.stateManager.Height()+1)
	return err
}

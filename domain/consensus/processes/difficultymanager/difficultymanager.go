package difficultymanager

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/difficulty"
	"github.com/ringnet/ringd/domain/dagconfig"
)

// HeaderByHashGetter provides read access to accepted block headers and
// their heights.
type HeaderByHashGetter interface {
	HeaderByHash(hash *externalapi.DomainHash) (*externalapi.DomainBlockHeader, uint64, bool)
}

// DifficultyManager resolves the difficulty a block is required to carry.
//
// The chain bootstraps at the network's pow limit bits. At every retarget
// boundary (a fixed block interval) the target is rescaled by the ratio of
// the observed time span of the preceding interval to the expected span.
// The observed span is clamped to a bounded adjustment factor per retarget,
// which keeps a single retarget from moving the target more than that factor
// in either direction and blunts time-warp manipulation. Between boundaries
// the previous block's bits carry forward unchanged.
type DifficultyManager struct {
	params  *dagconfig.Params
	headers HeaderByHashGetter
}

// New instantiates a new DifficultyManager
func New(params *dagconfig.Params, headers HeaderByHashGetter) *DifficultyManager {
	return &DifficultyManager{
		params:  params,
		headers: headers,
	}
}

// RequiredDifficulty returns the difficulty bits required for the block
// whose parent is parentHash.
func (d *DifficultyManager) RequiredDifficulty(parentHash *externalapi.DomainHash) (uint32, error) {
	// Genesis block.
	if parentHash == nil || parentHash.Equal(externalapi.NewZeroHash()) {
		return d.params.PowLimitBits, nil
	}

	parentHeader, parentHeight, ok := d.headers.HeaderByHash(parentHash)
	if !ok {
		return 0, errors.Errorf("parent block %s not found", parentHash)
	}

	nextHeight := parentHeight + 1
	if nextHeight%d.params.RetargetInterval != 0 {
		return parentHeader.Bits, nil
	}
	return d.retarget(parentHeader, parentHeight)
}

// retarget computes the bits for the first block after a retarget boundary
// from the time span observed over the preceding interval.
func (d *DifficultyManager) retarget(parentHeader *externalapi.DomainBlockHeader, parentHeight uint64) (uint32, error) {
	firstHeader, err := d.windowFirstHeader(parentHeader, parentHeight)
	if err != nil {
		return 0, err
	}

	expectedTimespan := int64(d.params.RetargetInterval) * int64(d.params.TargetTimePerBlock.Seconds())
	if expectedTimespan == 0 {
		// Sub-second block targets round to a zero expected span. There
		// is nothing meaningful to retarget against, so keep the bits.
		return parentHeader.Bits, nil
	}

	actualTimespan := parentHeader.TimeInSeconds - firstHeader.TimeInSeconds
	minTimespan := expectedTimespan / d.params.RetargetAdjustmentFactor
	maxTimespan := expectedTimespan * d.params.RetargetAdjustmentFactor
	if actualTimespan < minTimespan {
		actualTimespan = minTimespan
	} else if actualTimespan > maxTimespan {
		actualTimespan = maxTimespan
	}

	// newTarget = oldTarget * actualTimespan / expectedTimespan, using
	// integer division, so it is slightly rounded down.
	newTarget := difficulty.CompactToBig(parentHeader.Bits)
	newTarget.Mul(newTarget, big.NewInt(actualTimespan))
	newTarget.Div(newTarget, big.NewInt(expectedTimespan))
	if newTarget.Cmp(d.params.PowLimit) > 0 {
		return d.params.PowLimitBits, nil
	}
	return difficulty.BigToCompact(newTarget), nil
}

// windowFirstHeader walks back RetargetInterval blocks from the parent and
// returns the header opening the retarget window.
func (d *DifficultyManager) windowFirstHeader(parentHeader *externalapi.DomainBlockHeader,
	parentHeight uint64) (*externalapi.DomainBlockHeader, error) {

	current := parentHeader
	currentHeight := parentHeight
	for steps := uint64(0); steps < d.params.RetargetInterval-1 && currentHeight > 0; steps++ {
		previous, previousHeight, ok := d.headers.HeaderByHash(current.ParentHash)
		if !ok {
			return nil, errors.Errorf("missing ancestor block %s in the retarget window",
				current.ParentHash)
		}
		current = previous
		currentHeight = previousHeight
	}
	return current, nil
}

package dagconfig

import (
	"math/big"
	"time"

	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/constants"
	"github.com/ringnet/ringd/domain/consensus/utils/difficulty"
)

// These variables are the chain proof-of-work limit parameters for each
// default network.
var (
	// mainPowLimit is the highest proof of work value a ringd block can
	// have for the main network: the value the initial bits decode to.
	mainPowLimit = difficulty.CompactToBig(constants.InitialBits)

	// simnetPowLimit is the highest proof of work value a ringd block can
	// have for the simulation test network. It is deliberately trivial so
	// simnet blocks can be solved in a handful of attempts.
	simnetPowLimit = difficulty.CompactToBig(0x207fffff)
)

// Params defines a ringd network by its parameters. These parameters may be
// used by ringd applications to differentiate networks as well as data
// intended for one network from data intended for another network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// PowLimit defines the highest allowed proof of work value for a
	// block as a big.Int.
	PowLimit *big.Int

	// PowLimitBits defines the highest allowed proof of work value for a
	// block in compact form. It is also the chain's bootstrap difficulty:
	// every freshly bootstrapped chain starts at these bits.
	PowLimitBits uint32

	// PowCacheItems and PowDatasetItems size the memory of the
	// proof-of-work function. Light verification allocates the cache
	// only; fast verification additionally precomputes the dataset.
	PowCacheItems   uint64
	PowDatasetItems uint64

	// PowEpochLength is the number of blocks a proof-of-work seed stays
	// in force before it rotates.
	PowEpochLength uint64

	// TargetTimePerBlock is the desired time between blocks.
	TargetTimePerBlock time.Duration

	// RetargetInterval is the number of blocks between difficulty
	// retargets.
	RetargetInterval uint64

	// RetargetAdjustmentFactor bounds a single retarget: the observed
	// timespan is clamped to expected/factor..expected*factor before the
	// new target is derived from it.
	RetargetAdjustmentFactor int64

	// MaxTimeOffset is how far a block's timestamp may be in the future
	// relative to the validating node's clock.
	MaxTimeOffset time.Duration

	// MedianTimeBlocks is the number of previous blocks whose median time
	// a new block's timestamp must exceed.
	MedianTimeBlocks int

	// BlockRewardInterval and BlockRewardAmount define the emission
	// schedule: BlockRewardAmount is paid at every height that is a
	// multiple of BlockRewardInterval, zero is paid everywhere else.
	BlockRewardInterval uint64
	BlockRewardAmount   uint64

	// MaxSupply is the hard cap on cumulative issuance.
	MaxSupply uint64

	// CoinbaseMaturity is the number of blocks a coinbase output must
	// wait before it may be spent.
	CoinbaseMaturity uint64

	// MinBurnAmount is the smallest amount a burn transaction may burn.
	MinBurnAmount uint64

	// VoteWeightUnit is the amount of burned rings worth a single vote.
	VoteWeightUnit uint64

	// BurnConfirmationDepth is the number of confirmations a burn needs
	// before its vote weight is final.
	BurnConfirmationDepth uint64

	// GenesisBlock is the first block of the chain.
	GenesisBlock *externalapi.DomainBlock

	genesisHash *externalapi.DomainHash
}

// MainnetParams defines the network parameters for the main ringd network.
var MainnetParams = Params{
	Name:         "ringd-mainnet",
	PowLimit:     mainPowLimit,
	PowLimitBits: constants.InitialBits,

	PowCacheItems:   262_144,   // 16 MiB
	PowDatasetItems: 4_194_304, // 256 MiB
	PowEpochLength:  constants.PowEpochLength,

	TargetTimePerBlock:       time.Minute,
	RetargetInterval:         60,
	RetargetAdjustmentFactor: 4,
	MaxTimeOffset:            2 * time.Hour,
	MedianTimeBlocks:         11,

	BlockRewardInterval: constants.BlockRewardInterval,
	BlockRewardAmount:   constants.BlockRewardAmount,
	MaxSupply:           constants.MaxSupply,
	CoinbaseMaturity:    constants.CoinbaseMaturity,

	MinBurnAmount:         constants.MinBurnAmount,
	VoteWeightUnit:        constants.VoteWeightUnit,
	BurnConfirmationDepth: constants.BurnConfirmationDepth,

	GenesisBlock: &genesisBlock,
}

// TestnetParams defines the network parameters for the test ringd network.
var TestnetParams = Params{
	Name:         "ringd-testnet",
	PowLimit:     mainPowLimit,
	PowLimitBits: constants.InitialBits,

	PowCacheItems:   65_536,  // 4 MiB
	PowDatasetItems: 524_288, // 32 MiB
	PowEpochLength:  constants.PowEpochLength,

	TargetTimePerBlock:       time.Minute,
	RetargetInterval:         60,
	RetargetAdjustmentFactor: 4,
	MaxTimeOffset:            2 * time.Hour,
	MedianTimeBlocks:         11,

	BlockRewardInterval: constants.BlockRewardInterval,
	BlockRewardAmount:   constants.BlockRewardAmount,
	MaxSupply:           constants.MaxSupply,
	CoinbaseMaturity:    constants.CoinbaseMaturity,

	MinBurnAmount:         constants.MinBurnAmount,
	VoteWeightUnit:        constants.VoteWeightUnit,
	BurnConfirmationDepth: constants.BurnConfirmationDepth,

	GenesisBlock: &testnetGenesisBlock,
}

// SimnetParams defines the network parameters for the simulation test
// network. This network is similar to the main network in most aspects, but
// its difficulty is trivial and its proof-of-work memory small, so blocks
// can be mined instantly in tests and simulations.
var SimnetParams = Params{
	Name:         "ringd-simnet",
	PowLimit:     simnetPowLimit,
	PowLimitBits: 0x207fffff,

	PowCacheItems:   1024,  // 64 KiB
	PowDatasetItems: 4096,  // 256 KiB
	PowEpochLength:  constants.PowEpochLength,

	TargetTimePerBlock:       time.Millisecond,
	RetargetInterval:         60,
	RetargetAdjustmentFactor: 4,
	MaxTimeOffset:            2 * time.Hour,
	MedianTimeBlocks:         11,

	BlockRewardInterval: constants.BlockRewardInterval,
	BlockRewardAmount:   constants.BlockRewardAmount,
	MaxSupply:           constants.MaxSupply,
	CoinbaseMaturity:    constants.CoinbaseMaturity,

	MinBurnAmount:         constants.MinBurnAmount,
	VoteWeightUnit:        constants.VoteWeightUnit,
	BurnConfirmationDepth: constants.BurnConfirmationDepth,

	GenesisBlock: &simnetGenesisBlock,
}

package constants

// BlockVersion is the current version of a ringd block.
const BlockVersion int32 = 1

// TransactionVersion is the current version of a ringd transaction.
const TransactionVersion int32 = 1

const (
	// RingsPerRNG is the number of rings in one RNG.
	RingsPerRNG = 100_000_000

	// MaxSupply is the hard cap on cumulative issuance: 9,000,000 RNG. No
	// coinbase may ever bring the total supply above this amount.
	MaxSupply = 9_000_000 * RingsPerRNG

	// BlockRewardInterval is the cadence of non-zero coinbase rewards.
	// Only heights that are a multiple of this interval carry a reward.
	BlockRewardInterval = 5

	// BlockRewardAmount is the coinbase reward paid at reward heights.
	BlockRewardAmount = 1 * RingsPerRNG

	// MinBurnAmount is the smallest burn that a burn transaction may carry.
	MinBurnAmount = 1 * RingsPerRNG

	// VoteWeightUnit is the amount of burned rings that is worth a single
	// governance vote: 0.01 RNG, i.e. 100 votes per burned RNG.
	VoteWeightUnit = RingsPerRNG / 100

	// BurnConfirmationDepth is the number of confirmations a burn must
	// accumulate before its vote weight becomes final.
	BurnConfirmationDepth = 5

	// CoinbaseMaturity is the number of blocks a coinbase output must wait
	// before it may be spent.
	CoinbaseMaturity = 100
)

const (
	// InitialBits is the compact target every chain bootstraps at:
	// mantissa 0x0fffff, exponent 0x1e, i.e. "1e0fffff".
	InitialBits uint32 = 0x1e0fffff

	// PowEpochLength is the number of blocks between proof-of-work cache
	// seed rotations. The seed for an epoch is the hash of the last block
	// of the previous epoch, and the genesis hash for the first epoch.
	PowEpochLength = 2048
)

const (
	// CoinbaseReservedWeight is the block weight reserved for the coinbase
	// transaction and header overhead in every block template.
	CoinbaseReservedWeight = 4000

	// MaxBlockWeight is the largest weight a block template may reach,
	// coinbase reservation included.
	MaxBlockWeight = 4_000_000
)

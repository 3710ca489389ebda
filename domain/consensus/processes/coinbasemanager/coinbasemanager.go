package coinbasemanager

import (
	"github.com/btcsuite/btcutil"
	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/ruleerrors"
	"github.com/ringnet/ringd/domain/consensus/utils/transactionhelper"
	"github.com/ringnet/ringd/domain/dagconfig"
)

// CoinbaseManager implements the emission schedule: it knows the scheduled
// reward for every height, enforces the hard supply cap, and validates that
// a block's coinbase pays exactly what the schedule allows.
type CoinbaseManager struct {
	params *dagconfig.Params
}

// New instantiates a new CoinbaseManager
func New(params *dagconfig.Params) *CoinbaseManager {
	return &CoinbaseManager{params: params}
}

// BlockReward returns the scheduled coinbase reward for the given height.
// It is a pure function of height: the full reward at every height that is
// a multiple of the reward interval, zero everywhere else.
func (c *CoinbaseManager) BlockReward(height uint64) uint64 {
	if height%c.params.BlockRewardInterval == 0 {
		return c.params.BlockRewardAmount
	}
	return 0
}

// WouldExceedCap returns whether paying the given reward on top of the
// given cumulative supply would breach the hard supply cap.
func (c *CoinbaseManager) WouldExceedCap(currentSupply, reward uint64) bool {
	return currentSupply+reward > c.params.MaxSupply
}

// SupplyBeforeHeight returns the cumulative issuance of every block below
// the given height. Rewards are an exact function of height, so the supply
// along any branch is too.
func (c *CoinbaseManager) SupplyBeforeHeight(height uint64) uint64 {
	if height == 0 {
		return 0
	}
	rewardedBlocks := (height-1)/c.params.BlockRewardInterval + 1
	return rewardedBlocks * c.params.BlockRewardAmount
}

// ValidateCoinbaseTransaction checks that the given coinbase transaction is
// well formed for the given height and that paying it on top of
// currentSupply honors the schedule and the cap. Minting past the cap is a
// fatal consensus violation, so the reward is never clamped: the whole block
// is rejected with ErrSupplyCapExceeded instead.
func (c *CoinbaseManager) ValidateCoinbaseTransaction(coinbaseTx *externalapi.DomainTransaction,
	height uint64, currentSupply uint64) error {

	if !transactionhelper.IsCoinBase(coinbaseTx) {
		return errors.Wrap(ruleerrors.ErrFirstTxNotCoinbase, "expected a coinbase transaction")
	}

	payloadHeight, err := transactionhelper.CoinbasePayloadHeight(coinbaseTx.Payload)
	if err != nil {
		return errors.Wrap(ruleerrors.ErrBadCoinbasePayload, err.Error())
	}
	if payloadHeight != height {
		return errors.Wrapf(ruleerrors.ErrBadCoinbasePayload,
			"coinbase payload commits to height %d while the block connects at height %d",
			payloadHeight, height)
	}

	expectedReward := c.BlockReward(height)
	paid := transactionhelper.CoinbaseValue(coinbaseTx)
	if paid != expectedReward {
		return errors.Wrapf(ruleerrors.ErrBadCoinbaseValue,
			"coinbase pays %v RNG while exactly %v RNG is scheduled for height %d",
			btcutil.Amount(paid).ToBTC(), btcutil.Amount(expectedReward).ToBTC(), height)
	}

	if c.WouldExceedCap(currentSupply, paid) {
		return errors.Wrapf(ruleerrors.ErrSupplyCapExceeded,
			"paying %v RNG on top of a supply of %v RNG would exceed the %v RNG cap",
			btcutil.Amount(paid).ToBTC(), btcutil.Amount(currentSupply).ToBTC(),
			btcutil.Amount(c.params.MaxSupply).ToBTC())
	}
	return nil
}

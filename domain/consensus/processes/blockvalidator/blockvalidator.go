package blockvalidator

import (
	"time"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/processes/coinbasemanager"
	"github.com/ringnet/ringd/domain/consensus/processes/difficultymanager"
	"github.com/ringnet/ringd/domain/consensus/ruleerrors"
	"github.com/ringnet/ringd/domain/consensus/utils/consensushashing"
	"github.com/ringnet/ringd/domain/consensus/utils/constants"
	"github.com/ringnet/ringd/domain/consensus/utils/difficulty"
	"github.com/ringnet/ringd/domain/consensus/utils/transactionhelper"
	"github.com/ringnet/ringd/domain/dagconfig"
)

// BlockValidator exposes the structural and contextual block rules. It
// never touches the UTXO set: spend checking is the chain state tracker's
// job, performed while a block is being connected.
type BlockValidator struct {
	params            *dagconfig.Params
	difficultyManager *difficultymanager.DifficultyManager
	coinbaseManager   *coinbasemanager.CoinbaseManager
}

// New instantiates a new BlockValidator.
func New(params *dagconfig.Params, difficultyManager *difficultymanager.DifficultyManager,
	coinbaseManager *coinbasemanager.CoinbaseManager) *BlockValidator {

	return &BlockValidator{
		params:            params,
		difficultyManager: difficultyManager,
		coinbaseManager:   coinbaseManager,
	}
}

// ValidateBlockInIsolation runs every check that needs nothing but the
// block itself: structure, merkle root, transaction sanity and the coinbase
// placement rules.
func (v *BlockValidator) ValidateBlockInIsolation(block *externalapi.DomainBlock) error {
	header := block.Header

	if header.Version != constants.BlockVersion {
		return errors.Wrapf(ruleerrors.ErrBlockVersionTooOld,
			"block version %d is not %d", header.Version, constants.BlockVersion)
	}
	if len(block.Transactions) == 0 {
		return errors.Wrap(ruleerrors.ErrNoTransactions, "a block must carry at least a coinbase transaction")
	}
	if !transactionhelper.IsCoinBase(block.Transactions[0]) {
		return errors.Wrap(ruleerrors.ErrFirstTxNotCoinbase, "the first transaction of a block must be its coinbase")
	}
	for i, tx := range block.Transactions[1:] {
		if transactionhelper.IsCoinBase(tx) {
			return errors.Wrapf(ruleerrors.ErrMultipleCoinbases,
				"transaction at index %d has no inputs, which is reserved for the coinbase", i+1)
		}
	}

	err := v.checkNoDuplicateSpends(block)
	if err != nil {
		return err
	}

	merkleRoot := consensushashing.CalculateHashMerkleRoot(block.Transactions)
	if !header.HashMerkleRoot.Equal(merkleRoot) {
		return errors.Wrapf(ruleerrors.ErrBadMerkleRoot,
			"the header commits to merkle root %s but the transactions hash to %s",
			header.HashMerkleRoot, merkleRoot)
	}

	target := difficulty.CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		return errors.Wrapf(ruleerrors.ErrNegativeTarget,
			"difficulty bits %08x denote a non-positive target", header.Bits)
	}
	if target.Cmp(v.params.PowLimit) > 0 {
		return errors.Wrapf(ruleerrors.ErrTargetTooHigh,
			"difficulty bits %08x denote a target above the proof-of-work limit", header.Bits)
	}

	return nil
}

// checkNoDuplicateSpends rejects a transaction spending the same outpoint
// twice, and two transactions within the block spending the same outpoint.
func (v *BlockValidator) checkNoDuplicateSpends(block *externalapi.DomainBlock) error {
	spentInBlock := make(map[externalapi.DomainOutpoint]struct{})
	for _, tx := range block.Transactions {
		spentInTx := make(map[externalapi.DomainOutpoint]struct{}, len(tx.Inputs))
		for _, input := range tx.Inputs {
			outpoint := *input.PreviousOutpoint
			if _, ok := spentInTx[outpoint]; ok {
				return errors.Wrapf(ruleerrors.ErrDuplicateTxInputs,
					"transaction %s spends outpoint %s more than once",
					consensushashing.TransactionID(tx), input.PreviousOutpoint)
			}
			spentInTx[outpoint] = struct{}{}
			if _, ok := spentInBlock[outpoint]; ok {
				return errors.Wrapf(ruleerrors.ErrDoubleSpendInSameBlock,
					"outpoint %s is spent by two transactions in the same block", input.PreviousOutpoint)
			}
			spentInBlock[outpoint] = struct{}{}
		}
	}
	return nil
}

// ValidateBlockInContext runs every check that needs the block's ancestry:
// the difficulty schedule, the timestamp rules and the coinbase value
// against the emission schedule and the supply cap. The parent must already
// be known.
func (v *BlockValidator) ValidateBlockInContext(block *externalapi.DomainBlock,
	blockHeight uint64, medianTimePast int64, currentSupply uint64, now time.Time) error {

	header := block.Header

	expectedBits, err := v.difficultyManager.RequiredDifficulty(header.ParentHash)
	if err != nil {
		return err
	}
	if header.Bits != expectedBits {
		return errors.Wrapf(ruleerrors.ErrUnexpectedDifficulty,
			"block carries difficulty bits %08x but the difficulty schedule requires %08x",
			header.Bits, expectedBits)
	}

	if header.TimeInSeconds <= medianTimePast {
		return errors.Wrapf(ruleerrors.ErrTimeTooOld,
			"block timestamp %d is not after the median time past %d",
			header.TimeInSeconds, medianTimePast)
	}
	maxTimestamp := now.Add(v.params.MaxTimeOffset).Unix()
	if header.TimeInSeconds > maxTimestamp {
		return errors.Wrapf(ruleerrors.ErrTimeTooMuchInTheFuture,
			"block timestamp %d is more than %s in the future",
			header.TimeInSeconds, v.params.MaxTimeOffset)
	}

	return v.coinbaseManager.ValidateCoinbaseTransaction(block.Transactions[0], blockHeight, currentSupply)
}

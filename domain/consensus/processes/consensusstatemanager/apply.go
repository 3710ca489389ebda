package consensusstatemanager

import (
	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/ruleerrors"
	"github.com/ringnet/ringd/domain/consensus/utils/consensushashing"
	"github.com/ringnet/ringd/domain/consensus/utils/transactionhelper"
)

// ConnectTip applies the given block on top of the current selected tip.
// The block must already be registered via AddBlockEntry and must name the
// current tip as its parent. The UTXO set, the supply, the transaction
// index and the persisted state are all updated in one go; on any error
// nothing is changed.
func (csm *ConsensusStateManager) ConnectTip(hash *externalapi.DomainHash) error {
	csm.mutex.Lock()
	defer csm.mutex.Unlock()

	entry, ok := csm.blocks[*hash]
	if !ok {
		return errors.Errorf("block %s not found", hash)
	}
	tip := csm.tipEntry()
	if !entry.block.Header.ParentHash.Equal(tip.hash) {
		return errors.Errorf("block %s does not extend the current tip %s", hash, tip.hash)
	}
	return csm.connect(entry)
}

// DisconnectTip rewinds the current selected tip, restoring the exact state
// that preceded it. The genesis block cannot be disconnected. Returns the
// block that was disconnected.
func (csm *ConsensusStateManager) DisconnectTip() (*externalapi.DomainBlock, error) {
	csm.mutex.Lock()
	defer csm.mutex.Unlock()

	if len(csm.chain) <= 1 {
		return nil, errors.New("cannot disconnect the genesis block")
	}
	tip := csm.tipEntry()
	err := csm.disconnect(tip)
	if err != nil {
		return nil, err
	}
	return tip.block, nil
}

// CheckTransactionInputsAndCalculateFee validates that every input of the
// given transaction spends an existing, mature unspent output and that the
// outputs do not overspend the inputs. Returns the implied fee.
func (csm *ConsensusStateManager) CheckTransactionInputsAndCalculateFee(
	tx *externalapi.DomainTransaction, atHeight uint64) (uint64, error) {

	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	return csm.checkTransactionInputs(tx, atHeight, csm.utxoSet)
}

func (csm *ConsensusStateManager) checkTransactionInputs(tx *externalapi.DomainTransaction,
	atHeight uint64, utxoSet map[externalapi.DomainOutpoint]*externalapi.UTXOEntry) (uint64, error) {

	var totalIn uint64
	var missing []*externalapi.DomainOutpoint
	for _, input := range tx.Inputs {
		utxoEntry, ok := utxoSet[*input.PreviousOutpoint]
		if !ok {
			missing = append(missing, input.PreviousOutpoint.Clone())
			continue
		}
		if utxoEntry.IsCoinbase {
			confirmations := atHeight - utxoEntry.BlockHeight
			if confirmations < csm.params.CoinbaseMaturity {
				return 0, errors.Wrapf(ruleerrors.ErrImmatureSpend,
					"output %s is a coinbase output with only %d of %d required confirmations",
					input.PreviousOutpoint, confirmations, csm.params.CoinbaseMaturity)
			}
		}
		totalIn += utxoEntry.Amount
	}
	if len(missing) > 0 {
		return 0, ruleerrors.NewErrMissingTxOut(missing)
	}

	var totalOut uint64
	for _, output := range tx.Outputs {
		totalOut += output.Value
	}
	if totalOut > totalIn {
		return 0, errors.Wrapf(ruleerrors.ErrSpendTooHigh,
			"transaction spends %d rings but its inputs are only worth %d", totalOut, totalIn)
	}
	return totalIn - totalOut, nil
}

// connect applies entry on top of the in-memory state and persists the
// result. The caller holds the write lock.
func (csm *ConsensusStateManager) connect(entry *blockEntry) error {
	block := entry.block
	undo := &undoData{}

	// Stage every mutation against a copy of the UTXO set, so a missing
	// or double-spent input leaves the live state untouched. The op list
	// is ordered; replaying it in reverse unwinds spend chains that form
	// within a single block.
	staged := make(map[externalapi.DomainOutpoint]*externalapi.UTXOEntry, len(csm.utxoSet)+len(block.Transactions))
	for outpoint, utxoEntry := range csm.utxoSet {
		staged[outpoint] = utxoEntry
	}

	for i, tx := range block.Transactions {
		if !transactionhelper.IsCoinBase(tx) {
			_, err := csm.checkTransactionInputs(tx, entry.height, staged)
			if err != nil {
				return err
			}
			for _, input := range tx.Inputs {
				undo.ops = append(undo.ops, utxoOp{
					spend:     true,
					outpoint:  *input.PreviousOutpoint,
					utxoEntry: staged[*input.PreviousOutpoint],
				})
				delete(staged, *input.PreviousOutpoint)
			}
		}

		txID := consensushashing.TransactionID(tx)
		for j, output := range tx.Outputs {
			outpoint := externalapi.DomainOutpoint{TransactionID: *txID, Index: uint32(j)}
			utxoEntry := &externalapi.UTXOEntry{
				Amount:          output.Value,
				ScriptPublicKey: output.ScriptPublicKey,
				BlockHeight:     entry.height,
				IsCoinbase:      i == 0,
			}
			staged[outpoint] = utxoEntry
			undo.ops = append(undo.ops, utxoOp{outpoint: outpoint, utxoEntry: utxoEntry})
		}
		undo.acceptedTxIDs = append(undo.acceptedTxIDs, txID)
	}

	// Commit. The multiset is a group, so applying the ops in any order
	// yields the same commitment.
	csm.utxoSet = staged
	for _, op := range undo.ops {
		serialized := serializeUTXOForCommitment(&op.outpoint, op.utxoEntry)
		if op.spend {
			csm.utxoMultiset.Remove(serialized)
		} else {
			csm.utxoMultiset.Add(serialized)
		}
	}
	for _, txID := range undo.acceptedTxIDs {
		csm.txIndex[*txID] = entry.height
	}
	entry.reward = transactionhelper.CoinbaseValue(block.Transactions[0])
	csm.totalSupply += entry.reward
	entry.onChain = true
	csm.chain = append(csm.chain, entry.hash)
	csm.undo[*entry.hash] = undo

	err := csm.persistConnect(entry, undo)
	if err != nil {
		return errors.Wrapf(err, "failed persisting block %s", entry.hash)
	}

	log.Debugf("Connected block %s at height %d (%d transactions, %d rings minted)",
		entry.hash, entry.height, len(block.Transactions), entry.reward)
	return nil
}

// disconnect rewinds entry, which must be the current tip. The caller holds
// the write lock.
func (csm *ConsensusStateManager) disconnect(entry *blockEntry) error {
	undo, ok := csm.undo[*entry.hash]
	if !ok {
		return errors.Errorf("no undo data for block %s", entry.hash)
	}

	for i := len(undo.ops) - 1; i >= 0; i-- {
		op := undo.ops[i]
		serialized := serializeUTXOForCommitment(&op.outpoint, op.utxoEntry)
		if op.spend {
			csm.utxoSet[op.outpoint] = op.utxoEntry
			csm.utxoMultiset.Add(serialized)
		} else {
			delete(csm.utxoSet, op.outpoint)
			csm.utxoMultiset.Remove(serialized)
		}
	}
	for _, txID := range undo.acceptedTxIDs {
		delete(csm.txIndex, *txID)
	}
	csm.totalSupply -= entry.reward
	entry.onChain = false
	csm.chain = csm.chain[:len(csm.chain)-1]
	delete(csm.undo, *entry.hash)

	err := csm.persistDisconnect(entry, undo)
	if err != nil {
		return errors.Wrapf(err, "failed persisting the rewind of block %s", entry.hash)
	}

	log.Debugf("Disconnected block %s at height %d", entry.hash, entry.height)
	return nil
}

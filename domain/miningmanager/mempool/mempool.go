package mempool

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/ruleerrors"
	"github.com/ringnet/ringd/domain/consensus/utils/consensushashing"
	"github.com/ringnet/ringd/domain/consensus/utils/constants"
	"github.com/ringnet/ringd/domain/consensus/utils/transactionhelper"
	"github.com/ringnet/ringd/domain/dagconfig"
)

// mempoolTransaction is a transaction waiting for inclusion, along with
// what the pool learned about it on entry.
type mempoolTransaction struct {
	tx   *externalapi.DomainTransaction
	txID *externalapi.DomainTransactionID
	fee  uint64
}

// Mempool holds the transactions that passed validation against the
// current chain state and wait to be mined. Pooled transactions never
// conflict: no two of them spend the same outpoint.
type Mempool struct {
	mutex sync.RWMutex

	params    *dagconfig.Params
	consensus *consensus.Consensus

	pool map[externalapi.DomainTransactionID]*mempoolTransaction

	// spentOutpoints maps every outpoint some pooled transaction spends
	// to that transaction, for conflict detection.
	spentOutpoints map[externalapi.DomainOutpoint]*externalapi.DomainTransactionID

	// order preserves insertion order, so block building and the raw
	// mempool listing are deterministic.
	order []*externalapi.DomainTransactionID
}

// New instantiates an empty mempool against the given consensus.
func New(params *dagconfig.Params, consensusInstance *consensus.Consensus) *Mempool {
	return &Mempool{
		params:         params,
		consensus:      consensusInstance,
		pool:           make(map[externalapi.DomainTransactionID]*mempoolTransaction),
		spentOutpoints: make(map[externalapi.DomainOutpoint]*externalapi.DomainTransactionID),
	}
}

// ValidateAndInsertTransaction validates the given transaction against the
// current chain state and the pool, and admits it on success.
func (mp *Mempool) ValidateAndInsertTransaction(tx *externalapi.DomainTransaction) error {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()

	return mp.validateAndInsertTransaction(tx)
}

func (mp *Mempool) validateAndInsertTransaction(tx *externalapi.DomainTransaction) error {
	if len(tx.Inputs) == 0 {
		return errors.Wrap(ruleerrors.ErrNoTxInputs, "a mempool transaction must spend something")
	}
	txID := consensushashing.TransactionID(tx)
	if _, ok := mp.pool[*txID]; ok {
		return errors.Errorf("transaction %s is already in the mempool", txID)
	}

	seen := make(map[externalapi.DomainOutpoint]struct{}, len(tx.Inputs))
	for _, input := range tx.Inputs {
		outpoint := *input.PreviousOutpoint
		if _, ok := seen[outpoint]; ok {
			return errors.Wrapf(ruleerrors.ErrDuplicateTxInputs,
				"transaction %s spends outpoint %s more than once", txID, input.PreviousOutpoint)
		}
		seen[outpoint] = struct{}{}
		if conflictingTxID, ok := mp.spentOutpoints[outpoint]; ok {
			return errors.Wrapf(ruleerrors.ErrDoubleSpend,
				"outpoint %s is already spent by mempool transaction %s",
				input.PreviousOutpoint, conflictingTxID)
		}
	}

	// A transaction that burns anything at all must burn at least the
	// minimum, otherwise its destroyed value could never vote.
	if transactionhelper.IsBurn(tx) {
		burned := transactionhelper.BurnValue(tx)
		if burned < mp.params.MinBurnAmount {
			return errors.Wrapf(ruleerrors.ErrBelowMinimumBurn,
				"transaction %s burns %d rings, below the minimum of %d",
				txID, burned, mp.params.MinBurnAmount)
		}
	}

	fee, err := mp.consensus.CheckTransactionInputsAndCalculateFee(tx)
	if err != nil {
		return err
	}

	mp.pool[*txID] = &mempoolTransaction{tx: tx, txID: txID, fee: fee}
	for _, input := range tx.Inputs {
		mp.spentOutpoints[*input.PreviousOutpoint] = txID
	}
	mp.order = append(mp.order, txID)
	log.Debugf("Admitted transaction %s (fee %d). Mempool size: %d", txID, fee, len(mp.pool))
	return nil
}

// BurnAsset builds, validates and admits a transaction that destroys the
// given amount by paying it to the provably unspendable script. Change, if
// any, is paid back to changeScript. Returns the admitted transaction.
func (mp *Mempool) BurnAsset(amount uint64, changeScript []byte) (*externalapi.DomainTransaction, error) {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()

	if amount < mp.params.MinBurnAmount {
		return nil, errors.Wrapf(ruleerrors.ErrBelowMinimumBurn,
			"cannot burn %d rings: the minimum burn is %d", amount, mp.params.MinBurnAmount)
	}

	selected, total := mp.consensus.CollectSpendableUTXOs(amount, func(outpoint *externalapi.DomainOutpoint) bool {
		_, spent := mp.spentOutpoints[*outpoint]
		return spent
	})
	if total < amount {
		return nil, errors.Errorf("insufficient funds: %d spendable rings, %d required", total, amount)
	}

	inputs := make([]*externalapi.DomainTransactionInput, 0, len(selected))
	for _, pair := range selected {
		inputs = append(inputs, &externalapi.DomainTransactionInput{
			PreviousOutpoint: pair.Outpoint,
			SignatureScript:  []byte{},
			Sequence:         0,
		})
	}
	outputs := []*externalapi.DomainTransactionOutput{{
		Value:           amount,
		ScriptPublicKey: transactionhelper.UnspendableScriptPublicKey,
	}}
	if change := total - amount; change > 0 {
		outputs = append(outputs, &externalapi.DomainTransactionOutput{
			Value:           change,
			ScriptPublicKey: changeScript,
		})
	}
	tx := &externalapi.DomainTransaction{
		Version: constants.TransactionVersion,
		Inputs:  inputs,
		Outputs: outputs,
	}

	err := mp.validateAndInsertTransaction(tx)
	if err != nil {
		return nil, err
	}
	log.Infof("Burned %d rings in transaction %s", amount, consensushashing.TransactionID(tx))
	return tx, nil
}

// HandleNewBlockTransactions evicts every pooled transaction the new block
// included, and every pooled transaction the block made unspendable by
// spending one of its inputs.
func (mp *Mempool) HandleNewBlockTransactions(transactions []*externalapi.DomainTransaction) {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()

	for _, tx := range transactions {
		if transactionhelper.IsCoinBase(tx) {
			continue
		}
		txID := consensushashing.TransactionID(tx)
		mp.remove(txID)
		for _, input := range tx.Inputs {
			if conflictingTxID, ok := mp.spentOutpoints[*input.PreviousOutpoint]; ok {
				log.Debugf("Evicting transaction %s: its input %s was spent on-chain",
					conflictingTxID, input.PreviousOutpoint)
				mp.remove(conflictingTxID)
			}
		}
	}
}

func (mp *Mempool) remove(txID *externalapi.DomainTransactionID) {
	entry, ok := mp.pool[*txID]
	if !ok {
		return
	}
	for _, input := range entry.tx.Inputs {
		delete(mp.spentOutpoints, *input.PreviousOutpoint)
	}
	delete(mp.pool, *txID)
	for i, orderedID := range mp.order {
		if orderedID.Equal(txID) {
			mp.order = append(mp.order[:i], mp.order[i+1:]...)
			break
		}
	}
}

// Transactions returns the pooled transactions in insertion order.
func (mp *Mempool) Transactions() []*externalapi.DomainTransaction {
	mp.mutex.RLock()
	defer mp.mutex.RUnlock()

	transactions := make([]*externalapi.DomainTransaction, 0, len(mp.order))
	for _, txID := range mp.order {
		transactions = append(transactions, mp.pool[*txID].tx)
	}
	return transactions
}

// TransactionIDs returns the pooled transaction IDs in insertion order.
func (mp *Mempool) TransactionIDs() []*externalapi.DomainTransactionID {
	mp.mutex.RLock()
	defer mp.mutex.RUnlock()

	ids := make([]*externalapi.DomainTransactionID, len(mp.order))
	copy(ids, mp.order)
	return ids
}

// TransactionByID returns the pooled transaction with the given ID.
func (mp *Mempool) TransactionByID(txID *externalapi.DomainTransactionID) (*externalapi.DomainTransaction, bool) {
	mp.mutex.RLock()
	defer mp.mutex.RUnlock()

	entry, ok := mp.pool[*txID]
	if !ok {
		return nil, false
	}
	return entry.tx, true
}

// Len returns the number of pooled transactions.
func (mp *Mempool) Len() int {
	mp.mutex.RLock()
	defer mp.mutex.RUnlock()
	return len(mp.pool)
}

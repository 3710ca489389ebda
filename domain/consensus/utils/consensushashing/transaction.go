package consensushashing

import (
	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/hashes"
	"github.com/ringnet/ringd/domain/consensus/utils/serialization"
)

// TransactionID computes the ID of the given transaction.
func TransactionID(transaction *externalapi.DomainTransaction) *externalapi.DomainTransactionID {
	writer := hashes.NewHashWriter()
	err := serializeTransaction(writer, transaction)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
	}
	return (*externalapi.DomainTransactionID)(writer.Finalize())
}

// TransactionIDs converts the given slice of DomainTransactions to a
// corresponding slice of DomainTransactionIDs.
func TransactionIDs(txs []*externalapi.DomainTransaction) []*externalapi.DomainTransactionID {
	txIDs := make([]*externalapi.DomainTransactionID, len(txs))
	for i, tx := range txs {
		txIDs[i] = TransactionID(tx)
	}
	return txIDs
}

func serializeTransaction(writer *hashes.HashWriter, tx *externalapi.DomainTransaction) error {
	err := serialization.WriteElements(writer, tx.Version, uint64(len(tx.Inputs)))
	if err != nil {
		return err
	}
	for _, input := range tx.Inputs {
		err := serialization.WriteElements(writer,
			&input.PreviousOutpoint.TransactionID, input.PreviousOutpoint.Index,
			input.Sequence)
		if err != nil {
			return err
		}
		err = serialization.WriteVarBytes(writer, input.SignatureScript)
		if err != nil {
			return err
		}
	}
	err = serialization.WriteElement(writer, uint64(len(tx.Outputs)))
	if err != nil {
		return err
	}
	for _, output := range tx.Outputs {
		err := serialization.WriteElement(writer, output.Value)
		if err != nil {
			return err
		}
		err = serialization.WriteVarBytes(writer, output.ScriptPublicKey)
		if err != nil {
			return err
		}
	}
	err = serialization.WriteElement(writer, tx.LockTime)
	if err != nil {
		return err
	}
	return serialization.WriteVarBytes(writer, tx.Payload)
}

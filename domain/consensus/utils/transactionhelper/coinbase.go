package transactionhelper

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/constants"
)

// IsCoinBase determines whether or not a transaction is a coinbase
// transaction. A coinbase is the reward-paying transaction at the start of a
// block; it is identified by having no inputs.
func IsCoinBase(tx *externalapi.DomainTransaction) bool {
	return len(tx.Inputs) == 0
}

// NewCoinbaseTransaction builds the coinbase transaction for the given
// height, paying the given amount to scriptPublicKey. A zero amount produces
// a coinbase with no outputs, since reward-less heights still require a
// coinbase transaction.
func NewCoinbaseTransaction(height uint64, scriptPublicKey []byte, amount uint64) *externalapi.DomainTransaction {
	var outputs []*externalapi.DomainTransactionOutput
	if amount > 0 {
		outputs = []*externalapi.DomainTransactionOutput{{
			Value:           amount,
			ScriptPublicKey: scriptPublicKey,
		}}
	}
	return &externalapi.DomainTransaction{
		Version:  constants.TransactionVersion,
		Outputs:  outputs,
		Payload:  SerializeCoinbasePayload(height, scriptPublicKey),
		LockTime: 0,
	}
}

// SerializeCoinbasePayload commits the accepting height and the beneficiary
// script into a coinbase payload.
func SerializeCoinbasePayload(height uint64, scriptPublicKey []byte) []byte {
	payload := make([]byte, 8, 8+len(scriptPublicKey))
	binary.LittleEndian.PutUint64(payload, height)
	return append(payload, scriptPublicKey...)
}

// CoinbasePayloadHeight extracts the committed height from a coinbase
// payload.
func CoinbasePayloadHeight(payload []byte) (uint64, error) {
	if len(payload) < 8 {
		return 0, errors.Errorf("coinbase payload is %d bytes, while it should be at least 8", len(payload))
	}
	return binary.LittleEndian.Uint64(payload[:8]), nil
}

// CoinbaseValue sums the outputs of a coinbase transaction: the amount the
// block actually pays out.
func CoinbaseValue(tx *externalapi.DomainTransaction) uint64 {
	var value uint64
	for _, output := range tx.Outputs {
		value += output.Value
	}
	return value
}

// UnspendableScriptPublicKey is a script that provably cannot be spent. It
// is used for genesis and template coinbases with no specified beneficiary,
// and as the prefix that classifies burn outputs.
var UnspendableScriptPublicKey = []byte{opReturn}

const opReturn = 0x6a

// IsUnspendable returns whether the given script provably cannot be spent.
func IsUnspendable(scriptPublicKey []byte) bool {
	return len(scriptPublicKey) > 0 && scriptPublicKey[0] == opReturn
}

// BurnValue returns the total amount carried by the transaction's
// provably-unspendable outputs, which is the transaction's burn amount.
func BurnValue(tx *externalapi.DomainTransaction) uint64 {
	var value uint64
	for _, output := range tx.Outputs {
		if IsUnspendable(output.ScriptPublicKey) {
			value += output.Value
		}
	}
	return value
}

// IsBurn returns whether the transaction carries any provably-unspendable
// output, making it a burn transaction. Coinbase transactions are never
// burns, even when they pay to an unspendable script.
func IsBurn(tx *externalapi.DomainTransaction) bool {
	if IsCoinBase(tx) {
		return false
	}
	for _, output := range tx.Outputs {
		if IsUnspendable(output.ScriptPublicKey) {
			return true
		}
	}
	return false
}

// ScriptsEqual returns whether the two scripts are byte-for-byte identical.
func ScriptsEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}

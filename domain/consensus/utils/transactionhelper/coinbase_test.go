package transactionhelper

import (
	"testing"

	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/constants"
)

func TestCoinbasePayloadRoundTrip(t *testing.T) {
	script := []byte{0x51, 0x52, 0x53}
	for _, height := range []uint64{0, 1, 5, 1_000_000} {
		payload := SerializeCoinbasePayload(height, script)
		gotHeight, err := CoinbasePayloadHeight(payload)
		if err != nil {
			t.Fatalf("CoinbasePayloadHeight: %+v", err)
		}
		if gotHeight != height {
			t.Errorf("height %d round tripped to %d", height, gotHeight)
		}
	}

	if _, err := CoinbasePayloadHeight([]byte{0x01}); err == nil {
		t.Error("a truncated payload should not parse")
	}
}

func TestNewCoinbaseTransaction(t *testing.T) {
	script := []byte{0x51}

	rewarded := NewCoinbaseTransaction(5, script, constants.BlockRewardAmount)
	if !IsCoinBase(rewarded) {
		t.Fatal("a coinbase transaction must classify as coinbase")
	}
	if CoinbaseValue(rewarded) != constants.BlockRewardAmount {
		t.Errorf("coinbase pays %d, want %d", CoinbaseValue(rewarded), constants.BlockRewardAmount)
	}

	// A reward-less height still gets a coinbase, just with no outputs.
	empty := NewCoinbaseTransaction(6, script, 0)
	if !IsCoinBase(empty) {
		t.Fatal("an empty coinbase must still classify as coinbase")
	}
	if len(empty.Outputs) != 0 {
		t.Errorf("a zero-amount coinbase should have no outputs, got %d", len(empty.Outputs))
	}
	if CoinbaseValue(empty) != 0 {
		t.Errorf("an empty coinbase pays %d, want 0", CoinbaseValue(empty))
	}
}

func TestBurnClassification(t *testing.T) {
	spendableScript := []byte{0x51}
	input := &externalapi.DomainTransactionInput{
		PreviousOutpoint: &externalapi.DomainOutpoint{Index: 0},
	}

	burn := &externalapi.DomainTransaction{
		Version: constants.TransactionVersion,
		Inputs:  []*externalapi.DomainTransactionInput{input},
		Outputs: []*externalapi.DomainTransactionOutput{
			{Value: constants.MinBurnAmount, ScriptPublicKey: UnspendableScriptPublicKey},
			{Value: 42, ScriptPublicKey: spendableScript},
		},
	}
	if !IsBurn(burn) {
		t.Fatal("a transaction with an unspendable output must classify as a burn")
	}
	if BurnValue(burn) != constants.MinBurnAmount {
		t.Errorf("BurnValue = %d, want %d: change must not count", BurnValue(burn), constants.MinBurnAmount)
	}

	plain := &externalapi.DomainTransaction{
		Version: constants.TransactionVersion,
		Inputs:  []*externalapi.DomainTransactionInput{input},
		Outputs: []*externalapi.DomainTransactionOutput{
			{Value: 42, ScriptPublicKey: spendableScript},
		},
	}
	if IsBurn(plain) {
		t.Fatal("a transaction without unspendable outputs is not a burn")
	}
	if BurnValue(plain) != 0 {
		t.Errorf("BurnValue of a plain transaction = %d, want 0", BurnValue(plain))
	}

	// The genesis coinbase pays to the unspendable script but is not a
	// burn.
	coinbase := NewCoinbaseTransaction(0, UnspendableScriptPublicKey, constants.BlockRewardAmount)
	if IsBurn(coinbase) {
		t.Fatal("a coinbase is never a burn")
	}
}

func TestIsUnspendable(t *testing.T) {
	if !IsUnspendable([]byte{0x6a}) {
		t.Error("a bare OP_RETURN script must be unspendable")
	}
	if !IsUnspendable([]byte{0x6a, 0x01, 0x02}) {
		t.Error("an OP_RETURN-prefixed script must be unspendable")
	}
	if IsUnspendable([]byte{0x51}) {
		t.Error("a non-OP_RETURN script must be spendable")
	}
	if IsUnspendable(nil) {
		t.Error("an empty script is not classified unspendable")
	}
}

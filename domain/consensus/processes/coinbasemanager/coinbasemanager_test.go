package coinbasemanager

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/ruleerrors"
	"github.com/ringnet/ringd/domain/consensus/utils/constants"
	"github.com/ringnet/ringd/domain/consensus/utils/transactionhelper"
	"github.com/ringnet/ringd/domain/dagconfig"
)

func TestBlockReward(t *testing.T) {
	manager := New(&dagconfig.MainnetParams)

	tests := []struct {
		height uint64
		reward uint64
	}{
		{0, constants.BlockRewardAmount},
		{1, 0},
		{2, 0},
		{4, 0},
		{5, constants.BlockRewardAmount},
		{6, 0},
		{10, constants.BlockRewardAmount},
		{999_995, constants.BlockRewardAmount},
		{999_999, 0},
	}
	for _, test := range tests {
		if got := manager.BlockReward(test.height); got != test.reward {
			t.Errorf("BlockReward(%d) = %d, want %d", test.height, got, test.reward)
		}
	}
}

func TestSupplyBeforeHeight(t *testing.T) {
	manager := New(&dagconfig.MainnetParams)

	unit := uint64(constants.BlockRewardAmount)
	tests := []struct {
		height uint64
		supply uint64
	}{
		{0, 0},
		{1, unit},      // genesis paid
		{5, unit},      // heights 1..4 pay nothing
		{6, 2 * unit},  // height 5 paid
		{11, 3 * unit}, // heights 0, 5, 10 paid
	}
	for _, test := range tests {
		if got := manager.SupplyBeforeHeight(test.height); got != test.supply {
			t.Errorf("SupplyBeforeHeight(%d) = %d, want %d", test.height, got, test.supply)
		}
	}
}

func TestValidateCoinbaseTransaction(t *testing.T) {
	manager := New(&dagconfig.MainnetParams)
	script := []byte{0x51}

	valid := transactionhelper.NewCoinbaseTransaction(5, script, constants.BlockRewardAmount)
	if err := manager.ValidateCoinbaseTransaction(valid, 5, 0); err != nil {
		t.Fatalf("a correct coinbase should validate, got: %+v", err)
	}

	// The committed height must match the connection height.
	wrongHeight := transactionhelper.NewCoinbaseTransaction(6, script, constants.BlockRewardAmount)
	err := manager.ValidateCoinbaseTransaction(wrongHeight, 5, 0)
	if !errors.Is(err, ruleerrors.ErrBadCoinbasePayload) {
		t.Errorf("wrong payload height: got %+v, want ErrBadCoinbasePayload", err)
	}

	// Paying on a reward-less height is a violation.
	overpaying := transactionhelper.NewCoinbaseTransaction(6, script, constants.BlockRewardAmount)
	err = manager.ValidateCoinbaseTransaction(overpaying, 6, 0)
	if !errors.Is(err, ruleerrors.ErrBadCoinbaseValue) {
		t.Errorf("overpaying coinbase: got %+v, want ErrBadCoinbaseValue", err)
	}

	// Underpaying a reward height is a violation too: rewards are exact.
	underpaying := transactionhelper.NewCoinbaseTransaction(5, script, constants.BlockRewardAmount-1)
	err = manager.ValidateCoinbaseTransaction(underpaying, 5, 0)
	if !errors.Is(err, ruleerrors.ErrBadCoinbaseValue) {
		t.Errorf("underpaying coinbase: got %+v, want ErrBadCoinbaseValue", err)
	}
}

// TestSupplyCapEnforcement checks that a reward which would push the
// cumulative supply past the hard cap is rejected as fatal rather than
// clamped.
func TestSupplyCapEnforcement(t *testing.T) {
	params := dagconfig.MainnetParams
	params.MaxSupply = 2 * constants.BlockRewardAmount
	manager := New(&params)
	script := []byte{0x51}

	atCap := transactionhelper.NewCoinbaseTransaction(5, script, constants.BlockRewardAmount)
	if err := manager.ValidateCoinbaseTransaction(atCap, 5, constants.BlockRewardAmount); err != nil {
		t.Fatalf("reaching the cap exactly is allowed, got: %+v", err)
	}

	overCap := transactionhelper.NewCoinbaseTransaction(10, script, constants.BlockRewardAmount)
	err := manager.ValidateCoinbaseTransaction(overCap, 10, 2*constants.BlockRewardAmount)
	if !errors.Is(err, ruleerrors.ErrSupplyCapExceeded) {
		t.Errorf("minting past the cap: got %+v, want ErrSupplyCapExceeded", err)
	}

	if !manager.WouldExceedCap(2*constants.BlockRewardAmount, constants.BlockRewardAmount) {
		t.Error("WouldExceedCap must flag a reward past the cap")
	}
	if manager.WouldExceedCap(constants.BlockRewardAmount, constants.BlockRewardAmount) {
		t.Error("WouldExceedCap must allow reaching the cap exactly")
	}
}

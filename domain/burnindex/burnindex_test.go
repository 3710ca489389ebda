package burnindex

import (
	"path/filepath"
	"testing"

	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/consensushashing"
	"github.com/ringnet/ringd/domain/consensus/utils/constants"
	"github.com/ringnet/ringd/domain/consensus/utils/transactionhelper"
	"github.com/ringnet/ringd/domain/dagconfig"
	"github.com/ringnet/ringd/infrastructure/db/database/ldb"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	height uint64
}

func (f *fakeChain) Height() uint64 { return f.height }

func setupBurnIndex(t *testing.T) (*BurnIndex, *fakeChain) {
	t.Helper()

	db, err := ldb.NewLevelDB(filepath.Join(t.TempDir(), "db"), 8)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	chain := &fakeChain{}
	index, err := New(&dagconfig.SimnetParams, db, chain)
	require.NoError(t, err)
	return index, chain
}

// burnTransaction builds a transaction destroying the given amount. The
// input outpoint varies with seed so every transaction has a distinct ID.
func burnTransaction(seed byte, amount uint64) *externalapi.DomainTransaction {
	outpointID := externalapi.NewDomainTransactionIDFromByteArray(
		&[externalapi.DomainHashSize]byte{seed})
	return &externalapi.DomainTransaction{
		Version: constants.TransactionVersion,
		Inputs: []*externalapi.DomainTransactionInput{{
			PreviousOutpoint: externalapi.NewDomainOutpoint(outpointID, 0),
		}},
		Outputs: []*externalapi.DomainTransactionOutput{{
			Value:           amount,
			ScriptPublicKey: transactionhelper.UnspendableScriptPublicKey,
		}},
	}
}

// blockWithTransactions wraps transactions in a block shell. The index only
// looks at the transaction list.
func blockWithTransactions(txs ...*externalapi.DomainTransaction) *externalapi.DomainBlock {
	return &externalapi.DomainBlock{
		Header:       &externalapi.DomainBlockHeader{Version: constants.BlockVersion},
		Transactions: txs,
	}
}

func TestIndexesQualifyingBurns(t *testing.T) {
	index, chain := setupBurnIndex(t)
	params := &dagconfig.SimnetParams

	qualifying := burnTransaction(1, params.MinBurnAmount)
	belowMinimum := burnTransaction(2, params.MinBurnAmount-1)
	regular := &externalapi.DomainTransaction{
		Version: constants.TransactionVersion,
		Inputs: []*externalapi.DomainTransactionInput{{
			PreviousOutpoint: &externalapi.DomainOutpoint{Index: 3},
		}},
		Outputs: []*externalapi.DomainTransactionOutput{{
			Value:           params.MinBurnAmount,
			ScriptPublicKey: []byte{0x51},
		}},
	}

	chain.height = 10
	block := blockWithTransactions(qualifying, belowMinimum, regular)
	index.BlockConnected(block, externalapi.NewZeroHash(), 10)

	result := index.VoteWeight(consensushashing.TransactionID(qualifying))
	require.NotEqual(t, StatusNotFound, result.Status)
	require.Equal(t, params.MinBurnAmount, result.Amount)

	require.Equal(t, StatusNotFound,
		index.VoteWeight(consensushashing.TransactionID(belowMinimum)).Status,
		"a burn below the minimum must not be indexed")
	require.Equal(t, StatusNotFound,
		index.VoteWeight(consensushashing.TransactionID(regular)).Status,
		"a transaction paying a spendable script is not a burn")
}

func TestVoteWeightConfirmationGating(t *testing.T) {
	index, chain := setupBurnIndex(t)
	params := &dagconfig.SimnetParams

	burn := burnTransaction(1, 3*params.MinBurnAmount)
	txID := consensushashing.TransactionID(burn)

	chain.height = 10
	index.BlockConnected(blockWithTransactions(burn), externalapi.NewZeroHash(), 10)

	// In the tip block: 1 confirmation, weight withheld.
	result := index.VoteWeight(txID)
	require.Equal(t, StatusUnconfirmed, result.Status)
	require.Equal(t, uint64(1), result.Confirmations)
	require.Zero(t, result.Weight)

	// One block short of the depth.
	chain.height = 10 + params.BurnConfirmationDepth - 2
	result = index.VoteWeight(txID)
	require.Equal(t, StatusUnconfirmed, result.Status)
	require.Equal(t, params.BurnConfirmationDepth-1, result.Confirmations)
	require.Zero(t, result.Weight)

	// At the depth the weight becomes final: 100 votes per full ring
	// burned.
	chain.height = 10 + params.BurnConfirmationDepth - 1
	result = index.VoteWeight(txID)
	require.Equal(t, StatusFinal, result.Status)
	require.Equal(t, params.BurnConfirmationDepth, result.Confirmations)
	require.Equal(t, 3*params.MinBurnAmount/params.VoteWeightUnit, result.Weight)
	require.Equal(t, uint64(300), result.Weight)
}

func TestVoteWeightDuringRewind(t *testing.T) {
	index, chain := setupBurnIndex(t)
	params := &dagconfig.SimnetParams

	burn := burnTransaction(1, params.MinBurnAmount)
	txID := consensushashing.TransactionID(burn)

	chain.height = 10
	index.BlockConnected(blockWithTransactions(burn), externalapi.NewZeroHash(), 10)

	// A reorganization can rewind the chain below the burn's height
	// before the disconnect notification removes the record. The count
	// must not wrap around.
	chain.height = 8
	result := index.VoteWeight(txID)
	require.Equal(t, StatusUnconfirmed, result.Status)
	require.Zero(t, result.Confirmations)
	require.Zero(t, result.Weight)
	require.Equal(t, params.MinBurnAmount, result.Amount)
}

func TestDisconnectInvalidatesBurn(t *testing.T) {
	index, chain := setupBurnIndex(t)
	params := &dagconfig.SimnetParams

	burn := burnTransaction(1, params.MinBurnAmount)
	txID := consensushashing.TransactionID(burn)
	block := blockWithTransactions(burn)

	chain.height = 20
	index.BlockConnected(block, externalapi.NewZeroHash(), 20)
	require.NotEqual(t, StatusNotFound, index.VoteWeight(txID).Status)

	// A reorganization rewinds the block: the burn loses its weight
	// entirely, even if it was already final.
	index.BlockDisconnected(block, externalapi.NewZeroHash(), 20)
	require.Equal(t, StatusNotFound, index.VoteWeight(txID).Status)

	// Re-inclusion at a new height starts the confirmation count over.
	chain.height = 25
	index.BlockConnected(block, externalapi.NewZeroHash(), 25)
	result := index.VoteWeight(txID)
	require.Equal(t, StatusUnconfirmed, result.Status)
	require.Equal(t, uint64(1), result.Confirmations)
}

func TestBurnIndexPersistence(t *testing.T) {
	params := &dagconfig.SimnetParams
	dbPath := filepath.Join(t.TempDir(), "db")
	chain := &fakeChain{height: 10}

	db, err := ldb.NewLevelDB(dbPath, 8)
	require.NoError(t, err)
	index, err := New(params, db, chain)
	require.NoError(t, err)

	burn := burnTransaction(1, 2*params.MinBurnAmount)
	txID := consensushashing.TransactionID(burn)
	index.BlockConnected(blockWithTransactions(burn), externalapi.NewZeroHash(), 10)
	require.NoError(t, db.Close())

	db, err = ldb.NewLevelDB(dbPath, 8)
	require.NoError(t, err)
	defer db.Close()
	reloaded, err := New(params, db, chain)
	require.NoError(t, err)

	chain.height = 10 + params.BurnConfirmationDepth - 1
	result := reloaded.VoteWeight(txID)
	require.Equal(t, StatusFinal, result.Status)
	require.Equal(t, 2*params.MinBurnAmount, result.Amount)
	require.Equal(t, uint64(200), result.Weight)
}

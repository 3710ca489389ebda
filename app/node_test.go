package app

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain"
	"github.com/ringnet/ringd/domain/consensus/ruleerrors"
	"github.com/ringnet/ringd/domain/consensus/utils/constants"
	"github.com/ringnet/ringd/domain/consensus/utils/pow"
	"github.com/ringnet/ringd/domain/dagconfig"
	"github.com/ringnet/ringd/infrastructure/db/database/ldb"
)

func setupNode(t *testing.T) *Node {
	t.Helper()

	db, err := ldb.NewLevelDB(filepath.Join(t.TempDir(), "db"), 8)
	if err != nil {
		t.Fatalf("opening the test database: %+v", err)
	}
	t.Cleanup(func() { db.Close() })

	params := &dagconfig.SimnetParams
	domainInstance, err := domain.New(params, db, pow.ModeLight)
	if err != nil {
		t.Fatalf("creating the node core: %+v", err)
	}
	return NewNode(params, domainInstance, []byte{0x51})
}

func TestGenerateAdvancesChain(t *testing.T) {
	node := setupNode(t)

	hashes, err := node.Generate(3)
	if err != nil {
		t.Fatalf("Generate: %+v", err)
	}
	if len(hashes) != 3 {
		t.Fatalf("generated %d blocks, want 3", len(hashes))
	}
	if best := node.GetBestBlockHash(); best != hashes[2] {
		t.Errorf("best block = %s, want the last generated %s", best, hashes[2])
	}

	block, err := node.GetBlock(hashes[1])
	if err != nil {
		t.Fatalf("GetBlock: %+v", err)
	}
	if block.Height != 2 {
		t.Errorf("block height = %d, want 2", block.Height)
	}
	if block.NextBlockHash != hashes[2] {
		t.Errorf("next block = %s, want %s", block.NextBlockHash, hashes[2])
	}
	if block.PreviousBlockHash != hashes[0] {
		t.Errorf("previous block = %s, want %s", block.PreviousBlockHash, hashes[0])
	}
	if block.Confirmations != 2 {
		t.Errorf("confirmations = %d, want 2", block.Confirmations)
	}
	if block.Reward != 0 {
		t.Errorf("height-2 reward = %f RNG, want 0", block.Reward)
	}

	// Height 5 pays a full ring.
	if _, err := node.Generate(2); err != nil {
		t.Fatalf("Generate: %+v", err)
	}
	rewarded, err := node.GetBlock(node.GetBestBlockHash())
	if err != nil {
		t.Fatalf("GetBlock: %+v", err)
	}
	if rewarded.Reward != 1.0 {
		t.Errorf("height-5 reward = %f RNG, want 1", rewarded.Reward)
	}
}

func TestGetBlockTemplateShape(t *testing.T) {
	node := setupNode(t)

	template, err := node.GetBlockTemplate()
	if err != nil {
		t.Fatalf("GetBlockTemplate: %+v", err)
	}
	if template.Height != 1 {
		t.Errorf("template height = %d, want 1", template.Height)
	}
	if template.Bits != "207fffff" {
		t.Errorf("template bits = %q, want \"207fffff\"", template.Bits)
	}
	if template.PreviousBlockHash != node.GetBestBlockHash() {
		t.Error("the template must reference the current tip")
	}
	if len(template.Transactions) != 0 {
		t.Errorf("a fresh node's template lists %d transactions, want none", len(template.Transactions))
	}
	if template.CurTime < template.MinTime {
		t.Errorf("template time %d is below the minimum %d", template.CurTime, template.MinTime)
	}
}

func TestSubmitBlockReportsRuleViolations(t *testing.T) {
	node := setupNode(t)

	block := node.params.GenesisBlock.Clone()
	err := node.SubmitBlock(block)
	if err == nil {
		t.Fatal("resubmitting the genesis block must fail")
	}
	if !errors.Is(err, ruleerrors.ErrDuplicateBlock) {
		t.Errorf("got %+v, want ErrDuplicateBlock", err)
	}
}

func TestGetTxOutSetInfo(t *testing.T) {
	node := setupNode(t)

	if _, err := node.Generate(5); err != nil {
		t.Fatalf("Generate: %+v", err)
	}
	info := node.GetTxOutSetInfo()
	if info.Height != 5 {
		t.Errorf("height = %d, want 5", info.Height)
	}
	if info.BestBlock != node.GetBestBlockHash() {
		t.Error("best block mismatch")
	}
	// Genesis and height 5 each created one output.
	if info.TxOuts != 2 {
		t.Errorf("UTXO count = %d, want 2", info.TxOuts)
	}
	if info.TotalAmount != 2.0 {
		t.Errorf("total amount = %f RNG, want 2", info.TotalAmount)
	}
	if len(info.UTXOCommitment) != 64 {
		t.Errorf("UTXO commitment %q is not a 32-byte hex hash", info.UTXOCommitment)
	}
}

func TestGetMiningInfo(t *testing.T) {
	node := setupNode(t)

	info, err := node.GetMiningInfo()
	if err != nil {
		t.Fatalf("GetMiningInfo: %+v", err)
	}
	if info.PowAlgo != "randomx" {
		t.Errorf("pow algo = %q, want \"randomx\"", info.PowAlgo)
	}
	if info.RandomxMode != "light" {
		t.Errorf("pow mode = %q, want \"light\"", info.RandomxMode)
	}
	if info.Blocks != 0 {
		t.Errorf("blocks = %d, want 0 on a fresh chain", info.Blocks)
	}
	if info.CurrentBlockTx != 0 {
		t.Errorf("current block tx = %d, want 0", info.CurrentBlockTx)
	}
	if info.CurrentBlockWeight != constants.CoinbaseReservedWeight {
		t.Errorf("current block weight = %d, want the coinbase reserve %d",
			info.CurrentBlockWeight, constants.CoinbaseReservedWeight)
	}
	// Simnet difficulty sits at the pow limit.
	if info.Difficulty != 1.0 {
		t.Errorf("difficulty = %f, want 1 at the pow limit", info.Difficulty)
	}
	// The pow state is built at startup, so a fresh chain already
	// reports it initialized.
	if !info.RandomxInit {
		t.Error("the pow state must read initialized on a fresh chain")
	}

	if _, err := node.Generate(1); err != nil {
		t.Fatalf("Generate: %+v", err)
	}
	info, err = node.GetMiningInfo()
	if err != nil {
		t.Fatalf("GetMiningInfo: %+v", err)
	}
	if !info.RandomxInit {
		t.Error("the pow state must read initialized after mining")
	}
}

func TestGetMiningInfoDuringGenerate(t *testing.T) {
	node := setupNode(t)

	// Mining-info queries run concurrently with mining. The race
	// detector covers the shared pow state here.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if _, err := node.GetMiningInfo(); err != nil {
				t.Errorf("GetMiningInfo: %+v", err)
				return
			}
		}
	}()

	if _, err := node.Generate(3); err != nil {
		t.Fatalf("Generate: %+v", err)
	}
	close(done)
	wg.Wait()

	if node.GetTxOutSetInfo().Height != 3 {
		t.Errorf("height = %d, want 3", node.GetTxOutSetInfo().Height)
	}
}

// TestBurnVoteLifecycle drives the whole §burn-to-vote flow through the
// command surface: mature funds, burn, confirm, vote.
func TestBurnVoteLifecycle(t *testing.T) {
	node := setupNode(t)
	params := node.params

	// Mature the first scheduled reward.
	if _, err := node.Generate(params.CoinbaseMaturity + params.BlockRewardInterval); err != nil {
		t.Fatalf("Generate: %+v", err)
	}

	// An undersized burn is refused.
	if _, err := node.BurnAsset(0.5); err == nil {
		t.Fatal("burning below the minimum must fail")
	}

	txID, err := node.BurnAsset(1.0)
	if err != nil {
		t.Fatalf("BurnAsset: %+v", err)
	}

	// The burn waits in the mempool.
	if mempool := node.GetRawMempool(); len(mempool) != 1 || mempool[0] != txID {
		t.Fatalf("raw mempool = %v, want just %s", mempool, txID)
	}
	tx, err := node.GetTransaction(txID)
	if err != nil {
		t.Fatalf("GetTransaction: %+v", err)
	}
	if !tx.InMempool || tx.Confirmations != 0 {
		t.Errorf("pooled transaction reads (inMempool=%t, confirmations=%d), want (true, 0)",
			tx.InMempool, tx.Confirmations)
	}
	if tx.BurnAmount != 1.0 {
		t.Errorf("burn amount = %f RNG, want 1", tx.BurnAmount)
	}
	vote, err := node.GetVoteWeight(txID)
	if err != nil {
		t.Fatalf("GetVoteWeight: %+v", err)
	}
	if vote.Status != "not_found" {
		t.Errorf("unmined burn vote status = %q, want \"not_found\"", vote.Status)
	}

	// Mining includes the burn and starts its confirmation count.
	if _, err := node.Generate(1); err != nil {
		t.Fatalf("Generate: %+v", err)
	}
	if mempool := node.GetRawMempool(); len(mempool) != 0 {
		t.Fatalf("raw mempool = %v, want empty after inclusion", mempool)
	}
	vote, err = node.GetVoteWeight(txID)
	if err != nil {
		t.Fatalf("GetVoteWeight: %+v", err)
	}
	if vote.Status != "unconfirmed" || vote.Confirmations != 1 {
		t.Errorf("fresh burn vote = (%q, %d confirmations), want (\"unconfirmed\", 1)",
			vote.Status, vote.Confirmations)
	}
	if vote.Weight != 0 {
		t.Errorf("unconfirmed weight = %d, want 0", vote.Weight)
	}

	// Burying the burn under the confirmation depth finalizes its weight:
	// 100 votes per burned ring.
	if _, err := node.Generate(params.BurnConfirmationDepth - 1); err != nil {
		t.Fatalf("Generate: %+v", err)
	}
	vote, err = node.GetVoteWeight(txID)
	if err != nil {
		t.Fatalf("GetVoteWeight: %+v", err)
	}
	if vote.Status != "final" {
		t.Errorf("buried burn vote status = %q, want \"final\"", vote.Status)
	}
	if vote.Confirmations != params.BurnConfirmationDepth {
		t.Errorf("confirmations = %d, want %d", vote.Confirmations, params.BurnConfirmationDepth)
	}
	if vote.Weight != 100 {
		t.Errorf("weight = %d, want 100 votes for a 1 RNG burn", vote.Weight)
	}
	if vote.BurnAmount != 1.0 {
		t.Errorf("burn amount = %f RNG, want 1", vote.BurnAmount)
	}

	tx, err = node.GetTransaction(txID)
	if err != nil {
		t.Fatalf("GetTransaction: %+v", err)
	}
	if tx.Confirmations != params.BurnConfirmationDepth || tx.InMempool {
		t.Errorf("mined burn reads (inMempool=%t, confirmations=%d), want (false, %d)",
			tx.InMempool, tx.Confirmations, params.BurnConfirmationDepth)
	}
	if tx.BurnAmount != 1.0 {
		t.Errorf("mined burn amount = %f RNG, want 1", tx.BurnAmount)
	}
}

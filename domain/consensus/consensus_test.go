package consensus

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/ruleerrors"
	"github.com/ringnet/ringd/domain/consensus/utils/consensushashing"
	"github.com/ringnet/ringd/domain/consensus/utils/constants"
	"github.com/ringnet/ringd/domain/consensus/utils/pow"
	"github.com/ringnet/ringd/domain/consensus/utils/transactionhelper"
	"github.com/ringnet/ringd/domain/dagconfig"
	"github.com/ringnet/ringd/infrastructure/db/database/ldb"
)

var testMiningScript = []byte{0x51}

func setupConsensus(t *testing.T, params *dagconfig.Params) *Consensus {
	t.Helper()

	db, err := ldb.NewLevelDB(filepath.Join(t.TempDir(), "db"), 8)
	if err != nil {
		t.Fatalf("opening the test database: %+v", err)
	}
	t.Cleanup(func() { db.Close() })

	consensus, err := New(params, db, pow.ModeLight)
	if err != nil {
		t.Fatalf("creating the consensus: %+v", err)
	}
	return consensus
}

// buildBlock assembles an unsolved block extending the given parent. Block
// times advance one second per height off the parent, which keeps them above
// the median time past and far below the future limit.
func buildBlock(t *testing.T, c *Consensus, parentHash *externalapi.DomainHash,
	timeOffset int64, extraTxs ...*externalapi.DomainTransaction) *externalapi.DomainBlock {

	t.Helper()

	parent, ok := c.BlockInfoByHash(parentHash)
	if !ok {
		t.Fatalf("parent block %s not found", parentHash)
	}
	height := parent.Height + 1

	coinbase := transactionhelper.NewCoinbaseTransaction(height, testMiningScript, c.BlockReward(height))
	transactions := append([]*externalapi.DomainTransaction{coinbase}, extraTxs...)

	return &externalapi.DomainBlock{
		Header: &externalapi.DomainBlockHeader{
			Version:        constants.BlockVersion,
			ParentHash:     parentHash,
			HashMerkleRoot: consensushashing.CalculateHashMerkleRoot(transactions),
			TimeInSeconds:  parent.Header.TimeInSeconds + 1 + timeOffset,
			Bits:           parent.Header.Bits,
		},
		Transactions: transactions,
	}
}

// mineBlock builds, solves and submits a block extending the given parent,
// and returns its hash.
func mineBlock(t *testing.T, c *Consensus, parentHash *externalapi.DomainHash,
	timeOffset int64, extraTxs ...*externalapi.DomainTransaction) *externalapi.DomainHash {

	t.Helper()

	block := buildBlock(t, c, parentHash, timeOffset, extraTxs...)
	parent, _ := c.BlockInfoByHash(parentHash)
	if err := c.SolveHeader(block.Header, parent.Height+1, 0); err != nil {
		t.Fatalf("solving block at height %d: %+v", parent.Height+1, err)
	}
	if err := c.ValidateAndInsertBlock(block); err != nil {
		t.Fatalf("inserting block at height %d: %+v", parent.Height+1, err)
	}
	return consensushashing.BlockHash(block)
}

func TestMineAndConnect(t *testing.T) {
	params := &dagconfig.SimnetParams
	c := setupConsensus(t, params)

	tip := c.BestBlockHash()
	for i := 0; i < 6; i++ {
		tip = mineBlock(t, c, tip, 0)
	}

	if height := c.Height(); height != 6 {
		t.Errorf("height = %d, want 6", height)
	}
	if !c.BestBlockHash().Equal(tip) {
		t.Errorf("best block = %s, want the last mined block %s", c.BestBlockHash(), tip)
	}

	// Heights 0 and 5 paid a reward.
	snapshot := c.Snapshot()
	if want := 2 * params.BlockRewardAmount; snapshot.TotalSupply != want {
		t.Errorf("supply = %d, want %d", snapshot.TotalSupply, want)
	}

	genesisCoinbaseID := consensushashing.TransactionID(params.GenesisBlock.Transactions[0])
	confirmations, ok := c.TransactionConfirmations(genesisCoinbaseID)
	if !ok || confirmations != 7 {
		t.Errorf("genesis coinbase confirmations = (%d, %t), want (7, true)", confirmations, ok)
	}
}

func TestRejectsDuplicateBlock(t *testing.T) {
	c := setupConsensus(t, &dagconfig.SimnetParams)

	hash := mineBlock(t, c, c.BestBlockHash(), 0)
	block, _ := c.BlockByHash(hash)
	err := c.ValidateAndInsertBlock(block)
	if !errors.Is(err, ruleerrors.ErrDuplicateBlock) {
		t.Fatalf("resubmitting a block: got %+v, want ErrDuplicateBlock", err)
	}
}

func TestRejectsInvalidPow(t *testing.T) {
	c := setupConsensus(t, &dagconfig.SimnetParams)

	// Unsolved: no solution at all.
	block := buildBlock(t, c, c.BestBlockHash(), 0)
	err := c.ValidateAndInsertBlock(block)
	if !errors.Is(err, ruleerrors.ErrInvalidPoW) {
		t.Fatalf("submitting an unsolved block: got %+v, want ErrInvalidPoW", err)
	}

	// Solved, then tampered: the solution no longer matches the header.
	block = buildBlock(t, c, c.BestBlockHash(), 0)
	if err := c.SolveHeader(block.Header, 1, 0); err != nil {
		t.Fatalf("solving: %+v", err)
	}
	block.Header.Nonce++
	err = c.ValidateAndInsertBlock(block)
	if !errors.Is(err, ruleerrors.ErrInvalidPoW) {
		t.Fatalf("submitting a tampered block: got %+v, want ErrInvalidPoW", err)
	}
}

func TestRejectsUnexpectedDifficulty(t *testing.T) {
	c := setupConsensus(t, &dagconfig.SimnetParams)

	block := buildBlock(t, c, c.BestBlockHash(), 0)
	block.Header.Bits = 0x207ffffe
	err := c.ValidateAndInsertBlock(block)
	if !errors.Is(err, ruleerrors.ErrUnexpectedDifficulty) {
		t.Fatalf("submitting off-schedule bits: got %+v, want ErrUnexpectedDifficulty", err)
	}
}

func TestRejectsMissingParent(t *testing.T) {
	c := setupConsensus(t, &dagconfig.SimnetParams)

	block := buildBlock(t, c, c.BestBlockHash(), 0)
	unknownParent := externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{0xaa})
	block.Header.ParentHash = unknownParent
	err := c.ValidateAndInsertBlock(block)
	if !errors.Is(err, ruleerrors.ErrMissingParent) {
		t.Fatalf("submitting an orphan: got %+v, want ErrMissingParent", err)
	}
}

func TestRejectsTimeTooOld(t *testing.T) {
	c := setupConsensus(t, &dagconfig.SimnetParams)

	// A block whose time does not exceed its parent's median time past.
	block := buildBlock(t, c, c.BestBlockHash(), 0)
	block.Header.TimeInSeconds = c.Params().GenesisBlock.Header.TimeInSeconds
	err := c.ValidateAndInsertBlock(block)
	if !errors.Is(err, ruleerrors.ErrTimeTooOld) {
		t.Fatalf("submitting a stale timestamp: got %+v, want ErrTimeTooOld", err)
	}
}

func TestRejectsWrongCoinbaseValue(t *testing.T) {
	c := setupConsensus(t, &dagconfig.SimnetParams)
	params := c.Params()

	// Height 1 is scheduled to pay nothing.
	coinbase := transactionhelper.NewCoinbaseTransaction(1, testMiningScript, params.BlockRewardAmount)
	transactions := []*externalapi.DomainTransaction{coinbase}
	genesis, _ := c.BlockInfoByHash(c.BestBlockHash())
	block := &externalapi.DomainBlock{
		Header: &externalapi.DomainBlockHeader{
			Version:        constants.BlockVersion,
			ParentHash:     genesis.Hash,
			HashMerkleRoot: consensushashing.CalculateHashMerkleRoot(transactions),
			TimeInSeconds:  genesis.Header.TimeInSeconds + 1,
			Bits:           genesis.Header.Bits,
		},
		Transactions: transactions,
	}
	err := c.ValidateAndInsertBlock(block)
	if !errors.Is(err, ruleerrors.ErrBadCoinbaseValue) {
		t.Fatalf("submitting an overpaying coinbase: got %+v, want ErrBadCoinbaseValue", err)
	}
}

func TestRejectsBadMerkleRoot(t *testing.T) {
	c := setupConsensus(t, &dagconfig.SimnetParams)

	block := buildBlock(t, c, c.BestBlockHash(), 0)
	block.Header.HashMerkleRoot = externalapi.NewZeroHash()
	err := c.ValidateAndInsertBlock(block)
	if !errors.Is(err, ruleerrors.ErrBadMerkleRoot) {
		t.Fatalf("submitting a bad merkle root: got %+v, want ErrBadMerkleRoot", err)
	}
}

// chainRecorder records selected-chain changes in the order they are
// delivered.
type chainRecorder struct {
	events []string
}

func (r *chainRecorder) BlockConnected(_ *externalapi.DomainBlock, hash *externalapi.DomainHash, _ uint64) {
	r.events = append(r.events, "connect "+hash.String()[:8])
}

func (r *chainRecorder) BlockDisconnected(_ *externalapi.DomainBlock, hash *externalapi.DomainHash, _ uint64) {
	r.events = append(r.events, "disconnect "+hash.String()[:8])
}

func TestReorganization(t *testing.T) {
	c := setupConsensus(t, &dagconfig.SimnetParams)
	recorder := &chainRecorder{}
	c.AddChainObserver(recorder)

	genesisHash := c.BestBlockHash()
	mainHash := mineBlock(t, c, genesisHash, 0)

	// A sibling with equal cumulative work stays a side-chain block.
	sideHash := mineBlock(t, c, genesisHash, 1)
	if !c.BestBlockHash().Equal(mainHash) {
		t.Fatal("an equal-work branch must not displace the selected chain")
	}

	// Extending the side branch gives it more work and triggers a
	// reorganization.
	sideChildHash := mineBlock(t, c, sideHash, 0)
	if !c.BestBlockHash().Equal(sideChildHash) {
		t.Fatal("the heavier branch must become the selected chain")
	}
	if height := c.Height(); height != 2 {
		t.Errorf("height after the reorganization = %d, want 2", height)
	}
	atOne, _ := c.BlockHashByHeight(1)
	if !atOne.Equal(sideHash) {
		t.Errorf("height 1 = %s, want the former side block %s", atOne, sideHash)
	}

	// The displaced block's coinbase is no longer confirmed.
	mainBlock, _ := c.BlockByHash(mainHash)
	if _, ok := c.TransactionConfirmations(consensushashing.TransactionID(mainBlock.Transactions[0])); ok {
		t.Error("a reorganized-away transaction must lose its confirmations")
	}

	want := []string{
		"connect " + mainHash.String()[:8],
		"disconnect " + mainHash.String()[:8],
		"connect " + sideHash.String()[:8],
		"connect " + sideChildHash.String()[:8],
	}
	if len(recorder.events) != len(want) {
		t.Fatalf("observer events = %v, want %v", recorder.events, want)
	}
	for i := range want {
		if recorder.events[i] != want[i] {
			t.Fatalf("observer events = %v, want %v", recorder.events, want)
		}
	}
}

// TestSupplyCapHaltsEmission shrinks the cap so the chain hits it early, and
// checks that the block crossing it is rejected outright.
func TestSupplyCapHaltsEmission(t *testing.T) {
	params := dagconfig.SimnetParams
	params.MaxSupply = 2 * params.BlockRewardAmount
	c := setupConsensus(t, &params)

	// Genesis and height 5 fill the cap exactly.
	tip := c.BestBlockHash()
	for i := 0; i < 9; i++ {
		tip = mineBlock(t, c, tip, 0)
	}
	if supply := c.Snapshot().TotalSupply; supply != params.MaxSupply {
		t.Fatalf("supply = %d, want the cap %d", supply, params.MaxSupply)
	}

	// Height 10 is scheduled to pay, which would cross the cap.
	block := buildBlock(t, c, tip, 0)
	if err := c.SolveHeader(block.Header, 10, 0); err != nil {
		t.Fatalf("solving: %+v", err)
	}
	err := c.ValidateAndInsertBlock(block)
	if !errors.Is(err, ruleerrors.ErrSupplyCapExceeded) {
		t.Fatalf("minting past the cap: got %+v, want ErrSupplyCapExceeded", err)
	}
	if height := c.Height(); height != 9 {
		t.Errorf("height after the rejected block = %d, want 9", height)
	}
}

func TestNextBlockTemplateInfo(t *testing.T) {
	params := &dagconfig.SimnetParams
	c := setupConsensus(t, params)

	tip := c.BestBlockHash()
	for i := 0; i < 3; i++ {
		tip = mineBlock(t, c, tip, 0)
	}

	info, err := c.NextBlockTemplateInfo()
	if err != nil {
		t.Fatalf("NextBlockTemplateInfo: %+v", err)
	}
	if info.Height != 4 {
		t.Errorf("template height = %d, want 4", info.Height)
	}
	if !info.ParentHash.Equal(tip) {
		t.Errorf("template parent = %s, want the tip %s", info.ParentHash, tip)
	}
	if info.Bits != params.PowLimitBits {
		t.Errorf("template bits = %08x, want %08x", info.Bits, params.PowLimitBits)
	}
	if info.CurrentTime < info.MinTime {
		t.Errorf("template time %d is below the minimum %d", info.CurrentTime, info.MinTime)
	}
	if info.CurrentSupply != c.Snapshot().TotalSupply {
		t.Errorf("template supply = %d, want %d", info.CurrentSupply, c.Snapshot().TotalSupply)
	}
}

func TestSolveHeaderHonorsMaxAttempts(t *testing.T) {
	c := setupConsensus(t, &dagconfig.SimnetParams)

	block := buildBlock(t, c, c.BestBlockHash(), 0)
	// A nonsense target nothing can satisfy.
	block.Header.Bits = 0x01000001
	if err := c.SolveHeader(block.Header, 1, 4); err == nil {
		t.Fatal("solving against an impossible target must give up after maxAttempts")
	}
}

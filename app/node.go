package app

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcutil"
	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain"
	"github.com/ringnet/ringd/domain/burnindex"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/ruleerrors"
	"github.com/ringnet/ringd/domain/consensus/utils/consensushashing"
	"github.com/ringnet/ringd/domain/consensus/utils/difficulty"
	"github.com/ringnet/ringd/domain/consensus/utils/transactionhelper"
	"github.com/ringnet/ringd/domain/dagconfig"
)

// Node is the command surface of a running ringd instance. Every method
// maps to one node command and speaks in terms of the caller: heights,
// hex-encoded hashes and RNG-denominated amounts.
type Node struct {
	params *dagconfig.Params
	domain *domain.Domain

	// miningScript receives coinbase rewards and change. Settable via
	// the --miningscript configuration flag.
	miningScript []byte
}

// NewNode instantiates the command surface over the given node core.
func NewNode(params *dagconfig.Params, domainInstance *domain.Domain, miningScript []byte) *Node {
	return &Node{
		params:       params,
		domain:       domainInstance,
		miningScript: miningScript,
	}
}

// GetBlockTemplateResult is the answer to the get-block-template command.
type GetBlockTemplateResult struct {
	Version           int32
	PreviousBlockHash string
	CurTime           int64
	MinTime           int64
	Height            uint64
	Bits              string
	Transactions      []string
	TotalFees         uint64
	TotalWeight       uint64
}

// GetBlockTemplate assembles an unsolved block template on top of the
// current tip.
func (n *Node) GetBlockTemplate() (*GetBlockTemplateResult, error) {
	template, err := n.domain.MiningManager().GetBlockTemplate(n.miningScript)
	if err != nil {
		return nil, err
	}

	header := template.Block.Header
	txIDs := make([]string, 0, len(template.Block.Transactions)-1)
	for _, tx := range template.Block.Transactions[1:] {
		txIDs = append(txIDs, consensushashing.TransactionID(tx).String())
	}
	return &GetBlockTemplateResult{
		Version:           header.Version,
		PreviousBlockHash: header.ParentHash.String(),
		CurTime:           header.TimeInSeconds,
		MinTime:           template.MinTime,
		Height:            template.Height,
		Bits:              fmt.Sprintf("%08x", header.Bits),
		Transactions:      txIDs,
		TotalFees:         template.TotalFees,
		TotalWeight:       template.TotalWeight,
	}, nil
}

// SubmitBlock validates the given solved block and inserts it into the
// chain. A consensus rule violation is reported as a rejection with the
// violated rule as the reason.
func (n *Node) SubmitBlock(block *externalapi.DomainBlock) error {
	err := n.domain.Consensus().ValidateAndInsertBlock(block)
	if err != nil {
		var ruleErr ruleerrors.RuleError
		if errors.As(err, &ruleErr) {
			return errors.Wrapf(err, "block rejected: %s", ruleErr.Message())
		}
		return err
	}
	n.domain.MiningManager().HandleNewBlockTransactions(block.Transactions)
	return nil
}

// Generate mines numBlocks blocks on top of the current tip, paying the
// rewards to the node's mining script, and returns their hashes in
// acceptance order.
func (n *Node) Generate(numBlocks uint64) ([]string, error) {
	hashes := make([]string, 0, numBlocks)
	for i := uint64(0); i < numBlocks; i++ {
		template, err := n.domain.MiningManager().GetBlockTemplate(n.miningScript)
		if err != nil {
			return hashes, err
		}
		block := template.Block
		err = n.domain.Consensus().SolveHeader(block.Header, template.Height, 0)
		if err != nil {
			return hashes, err
		}
		err = n.SubmitBlock(block)
		if err != nil {
			return hashes, err
		}
		hashes = append(hashes, consensushashing.BlockHash(block).String())
	}
	return hashes, nil
}

// GetBestBlockHash returns the hash of the selected chain's tip.
func (n *Node) GetBestBlockHash() string {
	return n.domain.Consensus().BestBlockHash().String()
}

// GetBlockResult is the answer to the get-block command.
type GetBlockResult struct {
	Hash              string
	Height            uint64
	Version           int32
	PreviousBlockHash string
	NextBlockHash     string
	MerkleRoot        string
	Time              int64
	Bits              string
	Nonce             uint64
	Confirmations     uint64
	TxIDs             []string

	// Reward is the coinbase amount the block paid, in RNG.
	Reward float64
}

// GetBlock returns the details of the block with the given hex-encoded
// hash.
func (n *Node) GetBlock(hashString string) (*GetBlockResult, error) {
	hash, err := externalapi.NewDomainHashFromString(hashString)
	if err != nil {
		return nil, err
	}
	info, ok := n.domain.Consensus().BlockInfoByHash(hash)
	if !ok {
		return nil, errors.Errorf("block %s not found", hashString)
	}
	block, _ := n.domain.Consensus().BlockByHash(hash)

	result := &GetBlockResult{
		Hash:              hashString,
		Height:            info.Height,
		Version:           info.Header.Version,
		PreviousBlockHash: info.Header.ParentHash.String(),
		MerkleRoot:        info.Header.HashMerkleRoot.String(),
		Time:              info.Header.TimeInSeconds,
		Bits:              fmt.Sprintf("%08x", info.Header.Bits),
		Nonce:             info.Header.Nonce,
		Reward:            btcutil.Amount(info.Reward).ToBTC(),
	}
	if info.ChildHash != nil {
		result.NextBlockHash = info.ChildHash.String()
	}
	for _, tx := range block.Transactions {
		result.TxIDs = append(result.TxIDs, consensushashing.TransactionID(tx).String())
	}
	if chainHash, onChain := n.domain.Consensus().BlockHashByHeight(info.Height); onChain && chainHash.Equal(hash) {
		result.Confirmations = n.domain.Consensus().Height() - info.Height + 1
	}
	return result, nil
}

// GetTxOutSetInfoResult is the answer to the get-tx-out-set-info command.
type GetTxOutSetInfoResult struct {
	Height         uint64
	BestBlock      string
	TxOuts         uint64
	UTXOCommitment string

	// TotalAmount is the cumulative issued supply in RNG. It can never
	// exceed 9,000,000.
	TotalAmount float64
}

// GetTxOutSetInfo returns statistics about the current UTXO set.
func (n *Node) GetTxOutSetInfo() *GetTxOutSetInfoResult {
	snapshot := n.domain.Consensus().Snapshot()
	return &GetTxOutSetInfoResult{
		Height:         snapshot.Height,
		BestBlock:      snapshot.BestBlockHash.String(),
		TxOuts:         snapshot.UTXOCount,
		UTXOCommitment: snapshot.UTXOCommitment.String(),
		TotalAmount:    btcutil.Amount(snapshot.TotalSupply).ToBTC(),
	}
}

// GetMiningInfoResult is the answer to the get-mining-info command.
type GetMiningInfoResult struct {
	Blocks             uint64
	CurrentBlockTx     uint64
	CurrentBlockWeight uint64
	Difficulty         float64
	PowAlgo            string
	RandomxInit        bool
	RandomxMode        string
}

// GetMiningInfo returns the node's view of the mining state. The current
// block figures describe a template freshly built on the tip.
func (n *Node) GetMiningInfo() (*GetMiningInfoResult, error) {
	template, err := n.domain.MiningManager().GetBlockTemplate(n.miningScript)
	if err != nil {
		return nil, err
	}
	snapshot := n.domain.Consensus().Snapshot()
	return &GetMiningInfoResult{
		Blocks:             snapshot.Height,
		CurrentBlockTx:     uint64(len(template.Block.Transactions) - 1),
		CurrentBlockWeight: template.TotalWeight,
		Difficulty:         difficultyRatio(snapshot.Bits, n.params),
		PowAlgo:            "randomx",
		RandomxInit:        n.domain.Consensus().IsPowInitialized(),
		RandomxMode:        n.domain.Consensus().PowMode().String(),
	}, nil
}

// BurnAsset destroys the given RNG amount from the node's spendable funds
// and returns the burn transaction's ID. The burn becomes eligible for
// voting once buried under the confirmation depth.
func (n *Node) BurnAsset(amountRNG float64) (string, error) {
	amount, err := btcutil.NewAmount(amountRNG)
	if err != nil || amount < 0 {
		return "", errors.Errorf("invalid burn amount %f", amountRNG)
	}
	tx, err := n.domain.MiningManager().BurnAsset(uint64(amount), n.miningScript)
	if err != nil {
		return "", err
	}
	return consensushashing.TransactionID(tx).String(), nil
}

// GetTransactionResult is the answer to the get-transaction command.
type GetTransactionResult struct {
	TxID          string
	Confirmations uint64
	InMempool     bool

	// BurnAmount is the amount this transaction burned, in RNG. Zero
	// for a transaction that burns nothing.
	BurnAmount float64
}

// GetTransaction reports what the node knows about the given transaction:
// its selected-chain confirmation count, or its mempool presence.
func (n *Node) GetTransaction(txIDString string) (*GetTransactionResult, error) {
	txID, err := externalapi.NewDomainTransactionIDFromString(txIDString)
	if err != nil {
		return nil, err
	}

	result := &GetTransactionResult{TxID: txIDString}
	if confirmations, ok := n.domain.Consensus().TransactionConfirmations(txID); ok {
		result.Confirmations = confirmations
	} else if _, inMempool := n.domain.MiningManager().MempoolTransactionByID(txID); inMempool {
		result.InMempool = true
	} else {
		return nil, errors.Errorf("transaction %s not found", txIDString)
	}

	if tx, ok := n.domain.MiningManager().MempoolTransactionByID(txID); ok {
		result.BurnAmount = btcutil.Amount(transactionhelper.BurnValue(tx)).ToBTC()
	} else if voteWeight := n.domain.BurnIndex().VoteWeight(txID); voteWeight.Status != burnindex.StatusNotFound {
		result.BurnAmount = btcutil.Amount(voteWeight.Amount).ToBTC()
	}
	return result, nil
}

// GetVoteWeightResult is the answer to the get-vote-weight command.
type GetVoteWeightResult struct {
	TxID          string
	Status        string
	Confirmations uint64
	BurnAmount    float64
	Weight        uint64
}

// GetVoteWeight returns the governance vote weight of the given burn
// transaction. The weight is zero until the burn is buried under the
// confirmation depth.
func (n *Node) GetVoteWeight(txIDString string) (*GetVoteWeightResult, error) {
	txID, err := externalapi.NewDomainTransactionIDFromString(txIDString)
	if err != nil {
		return nil, err
	}
	voteWeight := n.domain.BurnIndex().VoteWeight(txID)

	result := &GetVoteWeightResult{
		TxID:          txIDString,
		Confirmations: voteWeight.Confirmations,
		BurnAmount:    btcutil.Amount(voteWeight.Amount).ToBTC(),
		Weight:        voteWeight.Weight,
	}
	switch voteWeight.Status {
	case burnindex.StatusNotFound:
		result.Status = "not_found"
	case burnindex.StatusUnconfirmed:
		result.Status = "unconfirmed"
	case burnindex.StatusFinal:
		result.Status = "final"
	}
	return result, nil
}

// GetRawMempool returns the IDs of every transaction waiting in the
// mempool.
func (n *Node) GetRawMempool() []string {
	ids := n.domain.MiningManager().MempoolTransactionIDs()
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		result = append(result, id.String())
	}
	return result
}

// difficultyRatio expresses compact bits as the ratio of the proof-of-work
// limit to the target they denote, so the limit itself reads as 1.
func difficultyRatio(bits uint32, params *dagconfig.Params) float64 {
	target := difficulty.CompactToBig(bits)
	if target.Sign() <= 0 {
		return 0
	}
	ratio, _ := new(big.Rat).SetFrac(params.PowLimit, target).Float64()
	return ratio
}

// MiningScriptFromHex decodes a hex-encoded mining script.
func MiningScriptFromHex(scriptHex string) ([]byte, error) {
	script, err := hex.DecodeString(scriptHex)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid mining script %q", scriptHex)
	}
	return script, nil
}

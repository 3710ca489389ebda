package consensusstatemanager

import (
	"math/big"
	"sync"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/consensushashing"
	"github.com/ringnet/ringd/domain/consensus/utils/difficulty"
	"github.com/ringnet/ringd/domain/consensus/utils/multiset"
	"github.com/ringnet/ringd/domain/consensus/utils/transactionhelper"
	"github.com/ringnet/ringd/domain/dagconfig"
	"github.com/ringnet/ringd/infrastructure/db/database"
)

// blockEntry is what the tracker holds for every known block, connected or
// not.
type blockEntry struct {
	block  *externalapi.DomainBlock
	hash   *externalapi.DomainHash
	height uint64

	// work is the cumulative chain work up to and including this block.
	work *big.Int

	// reward is the coinbase amount the block pays. It counts toward the
	// supply only while the block is on the selected chain.
	reward uint64

	// onChain is whether the block is currently part of the selected
	// chain.
	onChain bool

	// invalid marks a block that failed contextual validation while
	// being connected, so reorganizations never retry it.
	invalid bool
}

// utxoOp is a single UTXO set mutation a block performed: either a spend of
// an existing entry or the creation of a new one.
type utxoOp struct {
	spend     bool
	outpoint  externalapi.DomainOutpoint
	utxoEntry *externalapi.UTXOEntry
}

// undoData records the ordered effects of a connected block, so the block
// can be disconnected exactly.
type undoData struct {
	ops           []utxoOp
	acceptedTxIDs []*externalapi.DomainTransactionID
}

// ConsensusStateManager is the chain state tracker: the single authoritative
// instance of height, best block, cumulative supply and the UTXO set.
//
// Mutation is single-writer: only the block processor applies and rewinds
// blocks, under the consensus lock. Queries take a read lock and always
// observe a fully applied block, never a partial one.
type ConsensusStateManager struct {
	mutex sync.RWMutex

	params *dagconfig.Params
	db     database.Database

	blocks  map[externalapi.DomainHash]*blockEntry
	chain   []*externalapi.DomainHash
	utxoSet map[externalapi.DomainOutpoint]*externalapi.UTXOEntry

	// txIndex maps every transaction accepted on the selected chain to
	// its acceptance height.
	txIndex map[externalapi.DomainTransactionID]uint64

	undo map[externalapi.DomainHash]*undoData

	totalSupply  uint64
	utxoMultiset *multiset.Multiset

	// replaying suppresses persistence while the persisted chain is
	// being replayed at startup.
	replaying bool
}

// New instantiates a chain state tracker over the given database. A fresh
// database gets bootstrapped with the network's genesis block; otherwise the
// persisted state is loaded back.
func New(params *dagconfig.Params, db database.Database) (*ConsensusStateManager, error) {
	csm := &ConsensusStateManager{
		params:       params,
		db:           db,
		blocks:       make(map[externalapi.DomainHash]*blockEntry),
		chain:        nil,
		utxoSet:      make(map[externalapi.DomainOutpoint]*externalapi.UTXOEntry),
		txIndex:      make(map[externalapi.DomainTransactionID]uint64),
		undo:         make(map[externalapi.DomainHash]*undoData),
		utxoMultiset: multiset.New(),
	}

	loaded, err := csm.loadFromDB()
	if err != nil {
		return nil, err
	}
	if loaded {
		log.Infof("Loaded chain state at height %d with a supply of %d rings",
			csm.height(), csm.totalSupply)
		return csm, nil
	}

	err = csm.bootstrapGenesis()
	if err != nil {
		return nil, err
	}
	return csm, nil
}

func (csm *ConsensusStateManager) bootstrapGenesis() error {
	genesis := csm.params.GenesisBlock
	genesisHash := csm.params.GenesisHash()

	entry := &blockEntry{
		block:  genesis,
		hash:   genesisHash,
		height: 0,
		work:   difficulty.CalcWork(genesis.Header.Bits),
	}
	csm.blocks[*genesisHash] = entry

	err := csm.connect(entry)
	if err != nil {
		return errors.Wrap(err, "failed connecting the genesis block")
	}
	log.Infof("Bootstrapped a fresh chain with genesis %s", genesisHash)
	return nil
}

// Snapshot returns a consistent view of the current chain state.
func (csm *ConsensusStateManager) Snapshot() *externalapi.ChainStateSnapshot {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	tip := csm.tipEntry()
	return &externalapi.ChainStateSnapshot{
		Height:         tip.height,
		BestBlockHash:  tip.hash,
		TotalSupply:    csm.totalSupply,
		Bits:           tip.block.Header.Bits,
		UTXOCommitment: csm.utxoMultiset.Hash(),
		UTXOCount:      uint64(len(csm.utxoSet)),
	}
}

// Height returns the height of the selected chain's tip.
func (csm *ConsensusStateManager) Height() uint64 {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()
	return csm.height()
}

func (csm *ConsensusStateManager) height() uint64 {
	return uint64(len(csm.chain) - 1)
}

// BestBlockHash returns the hash of the selected chain's tip.
func (csm *ConsensusStateManager) BestBlockHash() *externalapi.DomainHash {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()
	return csm.tipEntry().hash
}

func (csm *ConsensusStateManager) tipEntry() *blockEntry {
	return csm.blocks[*csm.chain[len(csm.chain)-1]]
}

// HeaderByHash returns the header and height of the given block, connected
// or not.
func (csm *ConsensusStateManager) HeaderByHash(hash *externalapi.DomainHash) (*externalapi.DomainBlockHeader, uint64, bool) {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	entry, ok := csm.blocks[*hash]
	if !ok {
		return nil, 0, false
	}
	return entry.block.Header, entry.height, true
}

// BlockByHash returns the full block with the given hash.
func (csm *ConsensusStateManager) BlockByHash(hash *externalapi.DomainHash) (*externalapi.DomainBlock, bool) {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	entry, ok := csm.blocks[*hash]
	if !ok {
		return nil, false
	}
	return entry.block, true
}

// BlockInfoByHash returns the tracked details of the given block.
func (csm *ConsensusStateManager) BlockInfoByHash(hash *externalapi.DomainHash) (*externalapi.BlockInfo, bool) {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	entry, ok := csm.blocks[*hash]
	if !ok {
		return nil, false
	}
	info := &externalapi.BlockInfo{
		Hash:   entry.hash,
		Height: entry.height,
		Header: entry.block.Header,
		Reward: transactionhelper.CoinbaseValue(entry.block.Transactions[0]),
	}
	if entry.onChain && entry.height < csm.height() {
		info.ChildHash = csm.chain[entry.height+1]
	}
	return info, true
}

// BlockHashByHeight returns the hash of the selected-chain block at the
// given height.
func (csm *ConsensusStateManager) BlockHashByHeight(height uint64) (*externalapi.DomainHash, bool) {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	if height >= uint64(len(csm.chain)) {
		return nil, false
	}
	return csm.chain[height], true
}

// HasBlock returns whether the given block is known, connected or not.
func (csm *ConsensusStateManager) HasBlock(hash *externalapi.DomainHash) bool {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	_, ok := csm.blocks[*hash]
	return ok
}

// IsOnSelectedChain returns whether the given block is currently part of
// the selected chain.
func (csm *ConsensusStateManager) IsOnSelectedChain(hash *externalapi.DomainHash) bool {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	entry, ok := csm.blocks[*hash]
	return ok && entry.onChain
}

// CumulativeWork returns the cumulative chain work up to and including the
// given block.
func (csm *ConsensusStateManager) CumulativeWork(hash *externalapi.DomainHash) (*big.Int, bool) {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	entry, ok := csm.blocks[*hash]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(entry.work), true
}

// UTXOEntryByOutpoint returns the unspent output the given outpoint refers
// to, if it is indeed unspent.
func (csm *ConsensusStateManager) UTXOEntryByOutpoint(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool) {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	entry, ok := csm.utxoSet[*outpoint]
	return entry, ok
}

// TransactionAcceptanceHeight returns the selected-chain height the given
// transaction was accepted at.
func (csm *ConsensusStateManager) TransactionAcceptanceHeight(txID *externalapi.DomainTransactionID) (uint64, bool) {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	height, ok := csm.txIndex[*txID]
	return height, ok
}

// MedianTimePast returns the median timestamp of the MedianTimeBlocks
// selected-chain blocks ending at the given block.
func (csm *ConsensusStateManager) MedianTimePast(hash *externalapi.DomainHash) (int64, error) {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	entry, ok := csm.blocks[*hash]
	if !ok {
		return 0, errors.Errorf("block %s not found", hash)
	}

	timestamps := make([]int64, 0, csm.params.MedianTimeBlocks)
	for i := 0; i < csm.params.MedianTimeBlocks; i++ {
		timestamps = append(timestamps, entry.block.Header.TimeInSeconds)
		if entry.height == 0 {
			break
		}
		parent, ok := csm.blocks[*entry.block.Header.ParentHash]
		if !ok {
			return 0, errors.Errorf("missing ancestor %s", entry.block.Header.ParentHash)
		}
		entry = parent
	}

	// Insertion sort: the window is tiny.
	for i := 1; i < len(timestamps); i++ {
		for j := i; j > 0 && timestamps[j] < timestamps[j-1]; j-- {
			timestamps[j], timestamps[j-1] = timestamps[j-1], timestamps[j]
		}
	}
	return timestamps[len(timestamps)/2], nil
}

// CollectSpendableUTXOs gathers mature, spendable unspent outputs until
// their sum reaches the given amount. Outpoints for which isExcluded
// returns true are skipped.
func (csm *ConsensusStateManager) CollectSpendableUTXOs(amount uint64,
	isExcluded func(*externalapi.DomainOutpoint) bool) ([]*externalapi.OutpointAndUTXOEntryPair, uint64) {

	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	currentHeight := csm.height()
	var collected []*externalapi.OutpointAndUTXOEntryPair
	var total uint64
	for outpoint, entry := range csm.utxoSet {
		if total >= amount {
			break
		}
		if transactionhelper.IsUnspendable(entry.ScriptPublicKey) {
			continue
		}
		if entry.IsCoinbase && currentHeight-entry.BlockHeight < csm.params.CoinbaseMaturity {
			continue
		}
		outpointCopy := outpoint
		if isExcluded != nil && isExcluded(&outpointCopy) {
			continue
		}
		collected = append(collected, &externalapi.OutpointAndUTXOEntryPair{
			Outpoint:  &outpointCopy,
			UTXOEntry: entry,
		})
		total += entry.Amount
	}
	return collected, total
}

// MarkInvalid marks a block as having failed contextual validation so it is
// never connected again.
func (csm *ConsensusStateManager) MarkInvalid(hash *externalapi.DomainHash) {
	csm.mutex.Lock()
	defer csm.mutex.Unlock()

	if entry, ok := csm.blocks[*hash]; ok {
		entry.invalid = true
	}
}

// IsInvalid returns whether the block previously failed contextual
// validation.
func (csm *ConsensusStateManager) IsInvalid(hash *externalapi.DomainHash) bool {
	csm.mutex.RLock()
	defer csm.mutex.RUnlock()

	entry, ok := csm.blocks[*hash]
	return ok && entry.invalid
}

// AddBlockEntry registers a block that passed stateless validation but is
// not (or not yet) part of the selected chain. Its height and cumulative
// work are derived from its parent.
func (csm *ConsensusStateManager) AddBlockEntry(block *externalapi.DomainBlock) error {
	csm.mutex.Lock()
	defer csm.mutex.Unlock()

	hash := consensushashing.BlockHash(block)
	if _, ok := csm.blocks[*hash]; ok {
		return nil
	}
	parent, ok := csm.blocks[*block.Header.ParentHash]
	if !ok {
		return errors.Errorf("parent %s of block %s not found", block.Header.ParentHash, hash)
	}

	work := new(big.Int).Add(parent.work, difficulty.CalcWork(block.Header.Bits))
	csm.blocks[*hash] = &blockEntry{
		block:  block,
		hash:   hash,
		height: parent.height + 1,
		work:   work,
	}
	return csm.storeBlock(hash, block)
}

package burnindex

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/consensushashing"
	"github.com/ringnet/ringd/domain/consensus/utils/transactionhelper"
	"github.com/ringnet/ringd/domain/dagconfig"
	"github.com/ringnet/ringd/infrastructure/db/database"
)

var burnIndexBucket = database.MakeBucket([]byte("burn-index"))

// BurnRecord is a single qualifying burn the index tracks: a transaction
// that destroyed at least the minimum burn amount by paying it to the
// unspendable script.
type BurnRecord struct {
	TxID   *externalapi.DomainTransactionID
	Amount uint64
	Height uint64
}

// VoteStatus is the lifecycle stage of a burn's voting weight.
type VoteStatus int

const (
	// StatusNotFound means no qualifying burn is known for the queried
	// transaction.
	StatusNotFound VoteStatus = iota

	// StatusUnconfirmed means the burn is on the selected chain but has
	// not yet reached the confirmation depth, so its weight is not
	// usable.
	StatusUnconfirmed

	// StatusFinal means the burn is buried deep enough and its weight
	// counts.
	StatusFinal
)

// VoteWeightResult is the answer to a vote weight query.
type VoteWeightResult struct {
	Status        VoteStatus
	Confirmations uint64
	Amount        uint64
	Weight        uint64
}

// HeightGetter supplies the current selected-chain height for confirmation
// counting.
type HeightGetter interface {
	Height() uint64
}

// BurnIndex is the burn-to-vote ledger. It observes selected-chain changes
// within the consensus atomic boundary: a burn appears when its block
// connects and vanishes when its block is reorganized away, so the index
// and the chain state never disagree.
type BurnIndex struct {
	mutex sync.RWMutex

	params *dagconfig.Params
	db     database.Database
	chain  HeightGetter

	burns map[externalapi.DomainTransactionID]*BurnRecord
}

// New instantiates a burn index over the given database, loading whatever
// the previous run persisted.
func New(params *dagconfig.Params, db database.Database, chain HeightGetter) (*BurnIndex, error) {
	bi := &BurnIndex{
		params: params,
		db:     db,
		chain:  chain,
		burns:  make(map[externalapi.DomainTransactionID]*BurnRecord),
	}
	err := bi.loadFromDB()
	if err != nil {
		return nil, err
	}
	if len(bi.burns) > 0 {
		log.Infof("Loaded %d burn records", len(bi.burns))
	}
	return bi, nil
}

// BlockConnected indexes every qualifying burn the connected block carries.
// Part of the consensus chain observer contract.
func (bi *BurnIndex) BlockConnected(block *externalapi.DomainBlock, _ *externalapi.DomainHash, height uint64) {
	bi.mutex.Lock()
	defer bi.mutex.Unlock()

	for _, tx := range block.Transactions {
		if !transactionhelper.IsBurn(tx) {
			continue
		}
		amount := transactionhelper.BurnValue(tx)
		if amount < bi.params.MinBurnAmount {
			continue
		}
		txID := consensushashing.TransactionID(tx)
		record := &BurnRecord{TxID: txID, Amount: amount, Height: height}
		bi.burns[*txID] = record
		err := bi.db.Put(burnIndexBucket.Key(txID.ByteSlice()), serializeBurnRecord(record))
		if err != nil {
			log.Errorf("Failed persisting burn record %s: %s", txID, err)
		}
		log.Debugf("Indexed burn %s of %d rings at height %d", txID, amount, height)
	}
}

// BlockDisconnected drops every burn the disconnected block carried. A
// reorganized-away burn loses its weight entirely until its transaction is
// included again.
func (bi *BurnIndex) BlockDisconnected(block *externalapi.DomainBlock, _ *externalapi.DomainHash, _ uint64) {
	bi.mutex.Lock()
	defer bi.mutex.Unlock()

	for _, tx := range block.Transactions {
		if !transactionhelper.IsBurn(tx) {
			continue
		}
		txID := consensushashing.TransactionID(tx)
		if _, ok := bi.burns[*txID]; !ok {
			continue
		}
		delete(bi.burns, *txID)
		err := bi.db.Delete(burnIndexBucket.Key(txID.ByteSlice()))
		if err != nil {
			log.Errorf("Failed deleting burn record %s: %s", txID, err)
		}
		log.Debugf("Dropped burn %s: its block was disconnected", txID)
	}
}

// VoteWeight returns the voting weight of the given burn transaction. The
// weight becomes final only once the burn is buried under the confirmation
// depth; before that the weight reads as zero.
func (bi *BurnIndex) VoteWeight(txID *externalapi.DomainTransactionID) *VoteWeightResult {
	bi.mutex.RLock()
	defer bi.mutex.RUnlock()

	record, ok := bi.burns[*txID]
	if !ok {
		return &VoteWeightResult{Status: StatusNotFound}
	}
	// The chain can momentarily sit below the record's height while a
	// reorganization rewinds it, before the disconnect notification
	// removes the record. Such a burn has no confirmations.
	chainHeight := bi.chain.Height()
	if chainHeight < record.Height {
		return &VoteWeightResult{
			Status: StatusUnconfirmed,
			Amount: record.Amount,
		}
	}
	confirmations := chainHeight - record.Height + 1
	if confirmations < bi.params.BurnConfirmationDepth {
		return &VoteWeightResult{
			Status:        StatusUnconfirmed,
			Confirmations: confirmations,
			Amount:        record.Amount,
		}
	}
	return &VoteWeightResult{
		Status:        StatusFinal,
		Confirmations: confirmations,
		Amount:        record.Amount,
		Weight:        record.Amount / bi.params.VoteWeightUnit,
	}
}

func (bi *BurnIndex) loadFromDB() error {
	cursor, err := bi.db.Cursor(burnIndexBucket)
	if err != nil {
		return err
	}
	defer cursor.Close()

	for cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			return err
		}
		txID, err := externalapi.NewDomainTransactionIDFromByteSlice(key.Suffix())
		if err != nil {
			return err
		}
		value, err := cursor.Value()
		if err != nil {
			return err
		}
		record, err := deserializeBurnRecord(txID, value)
		if err != nil {
			return errors.Wrapf(err, "failed deserializing burn record %s", txID)
		}
		bi.burns[*txID] = record
	}
	return nil
}

func serializeBurnRecord(record *BurnRecord) []byte {
	w := &bytes.Buffer{}
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], record.Amount)
	w.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], record.Height)
	w.Write(scratch[:])
	return w.Bytes()
}

func deserializeBurnRecord(txID *externalapi.DomainTransactionID, serialized []byte) (*BurnRecord, error) {
	if len(serialized) != 16 {
		return nil, errors.Errorf("expected 16 bytes, got %d", len(serialized))
	}
	return &BurnRecord{
		TxID:   txID,
		Amount: binary.LittleEndian.Uint64(serialized[:8]),
		Height: binary.LittleEndian.Uint64(serialized[8:]),
	}, nil
}

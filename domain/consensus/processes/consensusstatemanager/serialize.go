package consensusstatemanager

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/big"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/domain/consensus/utils/constants"
	"github.com/ringnet/ringd/domain/consensus/utils/difficulty"
	"github.com/ringnet/ringd/domain/consensus/utils/serialization"
	"github.com/ringnet/ringd/infrastructure/db/database"
)

// maxVarBytesLength bounds any length-prefixed field read back from the
// database. No valid field exceeds the maximum block weight, so a larger
// prefix means the stored data is corrupt, and allocating for it would be
// a mistake.
const maxVarBytesLength = constants.MaxBlockWeight

var (
	blocksBucket = database.MakeBucket([]byte("blocks"))
	chainBucket  = database.MakeBucket([]byte("chain"))
)

func blockKey(hash *externalapi.DomainHash) *database.Key {
	return blocksBucket.Key(hash.ByteSlice())
}

// chainKey encodes the height big-endian so cursors yield the chain in
// ascending height order.
func chainKey(height uint64) *database.Key {
	var heightBytes [8]byte
	binary.BigEndian.PutUint64(heightBytes[:], height)
	return chainBucket.Key(heightBytes[:])
}

func (csm *ConsensusStateManager) storeBlock(hash *externalapi.DomainHash, block *externalapi.DomainBlock) error {
	serialized, err := serializeBlock(block)
	if err != nil {
		return err
	}
	return csm.db.Put(blockKey(hash), serialized)
}

func (csm *ConsensusStateManager) persistConnect(entry *blockEntry, _ *undoData) error {
	if csm.replaying {
		return nil
	}

	dbTx, err := csm.db.Begin()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	serialized, err := serializeBlock(entry.block)
	if err != nil {
		return err
	}
	err = dbTx.Put(blockKey(entry.hash), serialized)
	if err != nil {
		return err
	}
	err = dbTx.Put(chainKey(entry.height), entry.hash.ByteSlice())
	if err != nil {
		return err
	}
	return dbTx.Commit()
}

func (csm *ConsensusStateManager) persistDisconnect(entry *blockEntry, _ *undoData) error {
	// The block itself stays stored: it may come back in a future
	// reorganization. Only its chain membership is removed.
	return csm.db.Delete(chainKey(entry.height))
}

// loadFromDB rebuilds the in-memory state by replaying the persisted chain
// from genesis. Returns false on a fresh database.
func (csm *ConsensusStateManager) loadFromDB() (bool, error) {
	cursor, err := csm.db.Cursor(chainBucket)
	if err != nil {
		return false, err
	}
	defer cursor.Close()

	csm.replaying = true
	defer func() { csm.replaying = false }()

	var height uint64
	for cursor.Next() {
		hashBytes, err := cursor.Value()
		if err != nil {
			return false, err
		}
		hash, err := externalapi.NewDomainHashFromByteSlice(hashBytes)
		if err != nil {
			return false, err
		}
		serialized, err := csm.db.Get(blockKey(hash))
		if err != nil {
			return false, errors.Wrapf(err, "chain block %s at height %d is missing", hash, height)
		}
		block, err := deserializeBlock(serialized)
		if err != nil {
			return false, errors.Wrapf(err, "failed deserializing block %s", hash)
		}

		if height == 0 {
			if !hash.Equal(csm.params.GenesisHash()) {
				return false, errors.Errorf("the database belongs to a different "+
					"network: its genesis is %s, expected %s", hash, csm.params.GenesisHash())
			}
			csm.blocks[*hash] = &blockEntry{
				block:  block,
				hash:   hash,
				height: 0,
				work:   difficulty.CalcWork(block.Header.Bits),
			}
		} else {
			parent, ok := csm.blocks[*block.Header.ParentHash]
			if !ok {
				return false, errors.Errorf("chain block %s at height %d does not "+
					"extend its predecessor", hash, height)
			}
			csm.blocks[*hash] = &blockEntry{
				block:  block,
				hash:   hash,
				height: parent.height + 1,
				work:   new(big.Int).Add(parent.work, difficulty.CalcWork(block.Header.Bits)),
			}
		}
		err = csm.connect(csm.blocks[*hash])
		if err != nil {
			return false, errors.Wrapf(err, "failed replaying block %s at height %d", hash, height)
		}
		height++
	}
	return height > 0, nil
}

// serializeUTXOForCommitment encodes an outpoint and its entry into the
// canonical form that is hashed into the ECMH UTXO commitment.
func serializeUTXOForCommitment(outpoint *externalapi.DomainOutpoint, utxoEntry *externalapi.UTXOEntry) []byte {
	w := &bytes.Buffer{}
	err := serialization.WriteElements(w, outpoint.TransactionID, outpoint.Index,
		utxoEntry.Amount, utxoEntry.BlockHeight, utxoEntry.IsCoinbase)
	if err == nil {
		err = serialization.WriteVarBytes(w, utxoEntry.ScriptPublicKey)
	}
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Writes to a bytes.Buffer never fail"))
	}
	return w.Bytes()
}

func serializeBlock(block *externalapi.DomainBlock) ([]byte, error) {
	w := &bytes.Buffer{}
	header := block.Header
	err := serialization.WriteElements(w, header.Version, header.ParentHash,
		header.HashMerkleRoot, header.TimeInSeconds, header.Bits, header.Nonce)
	if err != nil {
		return nil, err
	}
	err = serialization.WriteVarBytes(w, header.Solution)
	if err != nil {
		return nil, err
	}

	err = serialization.WriteElement(w, uint64(len(block.Transactions)))
	if err != nil {
		return nil, err
	}
	for _, tx := range block.Transactions {
		err = serializeTransaction(w, tx)
		if err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func serializeTransaction(w io.Writer, tx *externalapi.DomainTransaction) error {
	err := serialization.WriteElements(w, tx.Version, uint64(len(tx.Inputs)))
	if err != nil {
		return err
	}
	for _, input := range tx.Inputs {
		err = serialization.WriteElements(w, input.PreviousOutpoint.TransactionID,
			input.PreviousOutpoint.Index)
		if err != nil {
			return err
		}
		err = serialization.WriteVarBytes(w, input.SignatureScript)
		if err != nil {
			return err
		}
		err = serialization.WriteElement(w, input.Sequence)
		if err != nil {
			return err
		}
	}
	err = serialization.WriteElement(w, uint64(len(tx.Outputs)))
	if err != nil {
		return err
	}
	for _, output := range tx.Outputs {
		err = serialization.WriteElement(w, output.Value)
		if err != nil {
			return err
		}
		err = serialization.WriteVarBytes(w, output.ScriptPublicKey)
		if err != nil {
			return err
		}
	}
	err = serialization.WriteElement(w, tx.LockTime)
	if err != nil {
		return err
	}
	return serialization.WriteVarBytes(w, tx.Payload)
}

func deserializeBlock(serialized []byte) (*externalapi.DomainBlock, error) {
	r := bytes.NewReader(serialized)

	var version uint32
	err := readElements(r, &version)
	if err != nil {
		return nil, err
	}
	parentHash, err := readHash(r)
	if err != nil {
		return nil, err
	}
	merkleRoot, err := readHash(r)
	if err != nil {
		return nil, err
	}
	var timeInSeconds, nonce uint64
	var bits uint32
	err = readElements(r, &timeInSeconds, &bits, &nonce)
	if err != nil {
		return nil, err
	}
	solution, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}

	var txCount uint64
	err = readElements(r, &txCount)
	if err != nil {
		return nil, err
	}
	transactions := make([]*externalapi.DomainTransaction, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		tx, err := deserializeTransaction(r)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return &externalapi.DomainBlock{
		Header: &externalapi.DomainBlockHeader{
			Version:        int32(version),
			ParentHash:     parentHash,
			HashMerkleRoot: merkleRoot,
			TimeInSeconds:  int64(timeInSeconds),
			Bits:           bits,
			Nonce:          nonce,
			Solution:       solution,
		},
		Transactions: transactions,
	}, nil
}

func deserializeTransaction(r io.Reader) (*externalapi.DomainTransaction, error) {
	var version uint32
	var inputCount uint64
	err := readElements(r, &version, &inputCount)
	if err != nil {
		return nil, err
	}
	inputs := make([]*externalapi.DomainTransactionInput, 0, inputCount)
	for i := uint64(0); i < inputCount; i++ {
		txIDHash, err := readHash(r)
		if err != nil {
			return nil, err
		}
		var index uint32
		err = readElements(r, &index)
		if err != nil {
			return nil, err
		}
		signatureScript, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		var sequence uint64
		err = readElements(r, &sequence)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, &externalapi.DomainTransactionInput{
			PreviousOutpoint: &externalapi.DomainOutpoint{
				TransactionID: *externalapi.NewDomainTransactionIDFromByteArray(txIDHash.ByteArray()),
				Index:         index,
			},
			SignatureScript: signatureScript,
			Sequence:        sequence,
		})
	}

	var outputCount uint64
	err = readElements(r, &outputCount)
	if err != nil {
		return nil, err
	}
	outputs := make([]*externalapi.DomainTransactionOutput, 0, outputCount)
	for i := uint64(0); i < outputCount; i++ {
		var value uint64
		err = readElements(r, &value)
		if err != nil {
			return nil, err
		}
		scriptPublicKey, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, &externalapi.DomainTransactionOutput{
			Value:           value,
			ScriptPublicKey: scriptPublicKey,
		})
	}

	var lockTime uint64
	err = readElements(r, &lockTime)
	if err != nil {
		return nil, err
	}
	payload, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}

	return &externalapi.DomainTransaction{
		Version:  int32(version),
		Inputs:   inputs,
		Outputs:  outputs,
		LockTime: lockTime,
		Payload:  payload,
	}, nil
}

func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		var err error
		switch e := element.(type) {
		case *uint32:
			var scratch [4]byte
			_, err = io.ReadFull(r, scratch[:])
			*e = binary.LittleEndian.Uint32(scratch[:])
		case *uint64:
			var scratch [8]byte
			_, err = io.ReadFull(r, scratch[:])
			*e = binary.LittleEndian.Uint64(scratch[:])
		default:
			return errors.Errorf("there is no decoding for %T type", element)
		}
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func readHash(r io.Reader) (*externalapi.DomainHash, error) {
	var hashBytes [externalapi.DomainHashSize]byte
	_, err := io.ReadFull(r, hashBytes[:])
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return externalapi.NewDomainHashFromByteArray(&hashBytes), nil
}

func readVarBytes(r io.Reader) ([]byte, error) {
	var length uint64
	err := readElements(r, &length)
	if err != nil {
		return nil, err
	}
	if length > maxVarBytesLength {
		return nil, errors.Errorf("variable-length field of %d bytes is larger than the %d-byte maximum",
			length, uint64(maxVarBytesLength))
	}
	data := make([]byte, length)
	_, err = io.ReadFull(r, data)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

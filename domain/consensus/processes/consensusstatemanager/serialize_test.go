package consensusstatemanager

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ringnet/ringd/domain/dagconfig"
)

func TestBlockSerializationRoundTrip(t *testing.T) {
	params := &dagconfig.SimnetParams
	block := params.GenesisBlock

	serialized, err := serializeBlock(block)
	if err != nil {
		t.Fatalf("serializeBlock: %+v", err)
	}
	deserialized, err := deserializeBlock(serialized)
	if err != nil {
		t.Fatalf("deserializeBlock: %+v", err)
	}

	reserialized, err := serializeBlock(deserialized)
	if err != nil {
		t.Fatalf("serializeBlock after a round trip: %+v", err)
	}
	if !bytes.Equal(serialized, reserialized) {
		t.Fatal("a deserialized block must serialize back to the same bytes")
	}
}

func TestReadVarBytesRejectsOversizedLength(t *testing.T) {
	// A corrupted database entry must not translate into an arbitrarily
	// large allocation.
	var prefix [8]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(maxVarBytesLength)+1)

	_, err := readVarBytes(bytes.NewReader(prefix[:]))
	if err == nil {
		t.Fatal("readVarBytes should reject a length prefix beyond the maximum")
	}
}

func TestDeserializeBlockRejectsCorruptLengthPrefix(t *testing.T) {
	params := &dagconfig.SimnetParams
	serialized, err := serializeBlock(params.GenesisBlock)
	if err != nil {
		t.Fatalf("serializeBlock: %+v", err)
	}

	// The solution's length prefix sits right after the fixed header
	// fields: version (4) + two hashes (64) + time (8) + bits (4) +
	// nonce (8).
	solutionLengthOffset := 4 + 64 + 8 + 4 + 8
	corrupted := make([]byte, len(serialized))
	copy(corrupted, serialized)
	binary.LittleEndian.PutUint64(corrupted[solutionLengthOffset:], 1<<40)

	_, err = deserializeBlock(corrupted)
	if err == nil {
		t.Fatal("deserializeBlock should reject a corrupt length prefix")
	}
}

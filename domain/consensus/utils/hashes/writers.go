package hashes

import (
	"hash"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"golang.org/x/crypto/blake2b"
)

// HashWriter is used to incrementally hash data with blake2b-256.
type HashWriter struct {
	hash.Hash
}

// NewHashWriter returns a new HashWriter.
func NewHashWriter() *HashWriter {
	blake, err := blake2b.New256(nil)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. blake2b.New256 with no key should never return an error"))
	}
	return &HashWriter{blake}
}

// NewKeyedHashWriter returns a HashWriter keyed with the given key. The key
// length must be between 1 and 64 bytes.
func NewKeyedHashWriter(key []byte) (*HashWriter, error) {
	blake, err := blake2b.New256(key)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &HashWriter{blake}, nil
}

// Finalize returns the resulting hash.
func (hw *HashWriter) Finalize() *externalapi.DomainHash {
	var sum [externalapi.DomainHashSize]byte
	// Given that the blake2b digest is exactly DomainHashSize bytes,
	// appending into the stack array avoids an allocation.
	copy(sum[:], hw.Sum(sum[:0]))
	return externalapi.NewDomainHashFromByteArray(&sum)
}

// HashData hashes the given data with a one-off blake2b-256 writer.
func HashData(data []byte) *externalapi.DomainHash {
	sum := blake2b.Sum256(data)
	return externalapi.NewDomainHashFromByteArray(&sum)
}

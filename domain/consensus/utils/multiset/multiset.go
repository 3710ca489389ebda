package multiset

import (
	"github.com/kaspanet/go-muhash"
	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
)

// Multiset is an incremental ECMH multiset commitment over the UTXO set.
// Adding and removing elements commute, so the commitment of a set does not
// depend on the order its members were applied in.
type Multiset struct {
	ms *muhash.MuHash
}

// Add adds the given data to the multiset.
func (m *Multiset) Add(data []byte) {
	m.ms.Add(data)
}

// Remove removes the given data from the multiset.
func (m *Multiset) Remove(data []byte) {
	m.ms.Remove(data)
}

// Hash returns the commitment of the multiset.
func (m *Multiset) Hash() *externalapi.DomainHash {
	finalizedHash := m.ms.Finalize()
	return externalapi.NewDomainHashFromByteArray(finalizedHash.AsArray())
}

// Serialize serializes the multiset.
func (m *Multiset) Serialize() []byte {
	return m.ms.Serialize()[:]
}

// Clone returns a deep clone of the multiset.
func (m *Multiset) Clone() *Multiset {
	return &Multiset{ms: m.ms.Clone()}
}

// FromBytes deserializes the given bytes slice and returns a multiset.
func FromBytes(multisetBytes []byte) (*Multiset, error) {
	serialized := &muhash.SerializedMuHash{}
	if len(serialized) != len(multisetBytes) {
		return nil, errors.Errorf("mutliset bytes expected to be in length of %d but got %d",
			len(serialized), len(multisetBytes))
	}
	copy(serialized[:], multisetBytes)
	ms, err := muhash.DeserializeMuHash(serialized)
	if err != nil {
		return nil, err
	}

	return &Multiset{ms: ms}, nil
}

// New returns a new empty Multiset.
func New() *Multiset {
	return &Multiset{ms: muhash.NewMuHash()}
}

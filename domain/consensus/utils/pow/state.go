package pow

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/model/externalapi"
	"github.com/ringnet/ringd/infrastructure/logger"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
)

// Mode selects how proof-of-work values get evaluated.
type Mode int

const (
	// ModeLight evaluates hashes against the cache only. It has a small
	// memory footprint and a higher per-hash latency.
	ModeLight Mode = iota

	// ModeFast precomputes the full dataset once and then serves every
	// dataset access from memory. High memory footprint, low per-hash
	// latency. Fast and light modes always agree on accept/reject.
	ModeFast
)

func (mode Mode) String() string {
	if mode == ModeFast {
		return "fast"
	}
	return "light"
}

// ParseMode parses a mode name as reported by mining info.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "fast":
		return ModeFast, true
	case "light":
		return ModeLight, true
	}
	return ModeLight, false
}

const (
	// itemSize is the size in bytes of a single cache or dataset item.
	itemSize = 64

	// datasetParents is the number of cache items mixed into each dataset
	// item.
	datasetParents = 4

	// datasetAccesses is the number of dataset items mixed into every
	// proof-of-work value.
	datasetAccesses = 8

	// Argon2id parameters for deriving the cache seed material. The
	// memory cost is what makes light verification memory-hard as well.
	argonTime    = 1
	argonMemory  = 8 * 1024 // KiB
	argonThreads = 4
)

var argonSalt = []byte("ringx/cache/v1")

// State is the initialized memory of the proof-of-work function for a single
// seed epoch. It is read-only after Initialize returns and may be shared
// across goroutines without synchronization.
type State struct {
	mode         Mode
	seed         *externalapi.DomainHash
	cacheItems   uint64
	datasetItems uint64

	cache   []byte
	dataset []byte

	initOnce sync.Once
	initErr  error

	// initialized is read by status queries concurrent with Initialize,
	// so it is accessed atomically.
	initialized uint32
}

// NewState creates an empty proof-of-work state for the given seed. The
// state is unusable until Initialize completes.
func NewState(seed *externalapi.DomainHash, cacheItems, datasetItems uint64, mode Mode) *State {
	return &State{
		mode:         mode,
		seed:         seed,
		cacheItems:   cacheItems,
		datasetItems: datasetItems,
	}
}

// Mode returns the evaluation mode of this state.
func (s *State) Mode() Mode {
	return s.mode
}

// Seed returns the seed this state was built for.
func (s *State) Seed() *externalapi.DomainHash {
	return s.seed
}

// IsInitialized returns whether Initialize has completed successfully.
func (s *State) IsInitialized() bool {
	return atomic.LoadUint32(&s.initialized) == 1
}

// Initialize builds the cache, and in fast mode the full dataset. This is a
// one-time, exclusive, potentially multi-second operation: it must complete
// before any hash evaluation using this state proceeds. Calling Initialize
// again is a no-op returning the first result.
func (s *State) Initialize() error {
	s.initOnce.Do(func() {
		onEnd := logger.LogAndMeasureExecutionTime(log, "pow.State.Initialize")
		defer onEnd()

		if s.cacheItems == 0 || s.datasetItems == 0 {
			s.initErr = errors.Errorf("invalid pow state dimensions: %d cache items, %d dataset items",
				s.cacheItems, s.datasetItems)
			return
		}

		s.buildCache()
		if s.mode == ModeFast {
			s.buildDataset()
		}
		atomic.StoreUint32(&s.initialized, 1)

		log.Debugf("Proof-of-work state for seed %s initialized in %s mode "+
			"(%d cache items, %d dataset items)", s.seed, s.mode, s.cacheItems, s.datasetItems)
	})
	return s.initErr
}

// buildCache fills the cache with items chained from memory-hard seed
// material.
func (s *State) buildCache() {
	s.cache = make([]byte, s.cacheItems*itemSize)

	// Argon2id stretches the epoch seed into the first item.
	item := argon2.IDKey(s.seed.ByteSlice(), argonSalt, argonTime, argonMemory, argonThreads, itemSize)
	copy(s.cache[:itemSize], item)

	for i := uint64(1); i < s.cacheItems; i++ {
		sum := blake2b.Sum512(s.cache[(i-1)*itemSize : i*itemSize])
		copy(s.cache[i*itemSize:(i+1)*itemSize], sum[:])
	}
}

// buildDataset precomputes every dataset item.
func (s *State) buildDataset() {
	s.dataset = make([]byte, s.datasetItems*itemSize)
	for i := uint64(0); i < s.datasetItems; i++ {
		item := s.computeDatasetItem(i)
		copy(s.dataset[i*itemSize:(i+1)*itemSize], item)
	}
}

// computeDatasetItem derives a single dataset item from the cache. Fast and
// light modes share this exact derivation, which is what guarantees both
// modes produce identical verdicts.
func (s *State) computeDatasetItem(index uint64) []byte {
	var indexBytes [8]byte
	binary.LittleEndian.PutUint64(indexBytes[:], index)

	cacheItem := s.cacheItem(index % s.cacheItems)
	mix := blake2b.Sum512(append(indexBytes[:], cacheItem...))

	generator := newxoShiRo256PlusPlus(hashFromSum(mix))
	for parent := 0; parent < datasetParents; parent++ {
		parentItem := s.cacheItem(generator.Uint64() % s.cacheItems)
		mix = blake2b.Sum512(append(mix[:], parentItem...))
	}
	return mix[:]
}

// datasetItem returns the dataset item at the given index: from memory in
// fast mode, recomputed from the cache in light mode.
func (s *State) datasetItem(index uint64) []byte {
	if s.mode == ModeFast {
		return s.dataset[index*itemSize : (index+1)*itemSize]
	}
	return s.computeDatasetItem(index)
}

func (s *State) cacheItem(index uint64) []byte {
	return s.cache[index*itemSize : (index+1)*itemSize]
}

// hashFromSum builds a DomainHash out of the first 32 bytes of a blake2b-512
// sum.
func hashFromSum(sum [64]byte) *externalapi.DomainHash {
	var hashBytes [externalapi.DomainHashSize]byte
	copy(hashBytes[:], sum[:externalapi.DomainHashSize])
	return externalapi.NewDomainHashFromByteArray(&hashBytes)
}

package externalapi

// UTXOEntry houses details about an individual unspent transaction output,
// such as whether or not it was contained in a coinbase transaction, the
// height of the block that accepted it, its amount and its spending
// condition.
type UTXOEntry struct {
	Amount          uint64
	ScriptPublicKey []byte
	BlockHeight     uint64
	IsCoinbase      bool
}

// Clone returns a clone of UTXOEntry
func (entry *UTXOEntry) Clone() *UTXOEntry {
	scriptPublicKeyClone := make([]byte, len(entry.ScriptPublicKey))
	copy(scriptPublicKeyClone, entry.ScriptPublicKey)

	return &UTXOEntry{
		Amount:          entry.Amount,
		ScriptPublicKey: scriptPublicKeyClone,
		BlockHeight:     entry.BlockHeight,
		IsCoinbase:      entry.IsCoinbase,
	}
}

// Equal returns whether entry equals to other
func (entry *UTXOEntry) Equal(other *UTXOEntry) bool {
	if entry == nil || other == nil {
		return entry == other
	}
	if entry.Amount != other.Amount ||
		entry.BlockHeight != other.BlockHeight ||
		entry.IsCoinbase != other.IsCoinbase ||
		len(entry.ScriptPublicKey) != len(other.ScriptPublicKey) {
		return false
	}
	for i, b := range entry.ScriptPublicKey {
		if other.ScriptPublicKey[i] != b {
			return false
		}
	}
	return true
}

// OutpointAndUTXOEntryPair is an outpoint along with its respective UTXO entry.
type OutpointAndUTXOEntryPair struct {
	Outpoint  *DomainOutpoint
	UTXOEntry *UTXOEntry
}

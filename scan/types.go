// Package scan implements the incremental balance-recovery scan state
// machine: it drives a ledger-side scanning context and an application-side
// chunk consumer through repeated chunk fetches, handling reorgs via
// exponentially-backed-off full rescans and fixed-depth partial rescans.
package scan

// BlockID is an opaque 32-byte block hash.
type BlockID [32]byte

// TxID is an opaque 32-byte transaction identifier.
type TxID [32]byte

// KeyImage is an opaque 32-byte one-time spend tag.
type KeyImage [32]byte

// Record is a single owned-enote candidate found in a transaction. Its
// BlockIndex must lie within the chunk it was reported in; the record
// payload itself (view-tag checks, amount decryption, and the rest of the
// Seraphis enote format) is out of scope here.
type Record struct {
	BlockIndex int64
	Payload    []byte
}

// KeyImageSet is the key images spent by a single transaction.
type KeyImageSet struct {
	TxID       TxID
	KeyImages  []KeyImage
}

// ChunkContext is the structural metadata of a chunk: where it starts, what
// anchors it to the chain below it, and which block ids it covers. An empty
// BlockIDs slice is a termination marker: "top of chain reached at height
// StartIndex-1".
type ChunkContext struct {
	StartIndex    int64
	PrefixBlockID *BlockID
	BlockIDs      []BlockID
}

// IsTermination reports whether this context represents the empty
// termination marker.
func (c ChunkContext) IsTermination() bool { return len(c.BlockIDs) == 0 }

// ChunkData is the payload of a chunk: the candidate records and key images
// found within it. Every key image set must reference a tx id present as a
// key in BasicRecordsPerTx (possibly with an empty record list).
type ChunkData struct {
	BasicRecordsPerTx     map[TxID][]Record
	ContextualKeyImages   []KeyImageSet
}

// SubconsumerID selects which logical consumer's view of a lazily-produced
// chunk to materialize (e.g. one per scanned subaddress account).
type SubconsumerID uint32

// LedgerChunk is a lazy container: its context may be available before its
// data, which permits asynchronous scanning back-ends that fetch block
// headers well before they finish decrypting candidate records.
type LedgerChunk interface {
	Context() ChunkContext
	TryGetData(id SubconsumerID) (ChunkData, bool)
	SubconsumerIDs() []SubconsumerID
}

// ContiguityMarker represents the scanner's belief that the chain up to
// BlockIndex has id BlockID. A nil BlockID means "index known, id not
// enforced" -- this asymmetry lets the scanner correctly treat a chain tip
// below its desired start index as trivially contiguous.
type ContiguityMarker struct {
	BlockIndex int64
	BlockID    *BlockID
}

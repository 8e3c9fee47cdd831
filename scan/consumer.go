package scan

// ChunkConsumer is the external, application-side interface the state
// machine drives. Implementations are expected to atomically roll back any
// of their own state at or above firstNewIndex before applying newBlockIDs.
type ChunkConsumer interface {
	// RefreshIndex is the lowest block index the consumer will accept.
	RefreshIndex() int64
	// DesiredFirstBlock is where the scanner should resume from.
	DesiredFirstBlock() int64
	// TryGetBlockID returns the id the consumer already has recorded for
	// index, if any.
	TryGetBlockID(index int64) (BlockID, bool)
	// ConsumeOnchainChunk applies a (possibly empty) cropped chunk. An empty
	// newBlockIDs with a zero ChunkData still carries roll-back information
	// via firstNewIndex/alignmentBlockID.
	ConsumeOnchainChunk(data ChunkData, firstNewIndex int64, alignmentBlockID BlockID, newBlockIDs []BlockID) error
}

// ScanningContextLedger is the input-side external interface: the source of
// chunks. GetOnchainChunk blocks until a chunk is ready or the context
// reports termination (an empty chunk). TerminateScanning must be idempotent
// and non-failing.
type ScanningContextLedger interface {
	BeginScanningFromIndex(startIndex int64, maxChunkSize uint32) error
	GetOnchainChunk() (LedgerChunk, error)
	TerminateScanning()
	IsAborted() bool
}

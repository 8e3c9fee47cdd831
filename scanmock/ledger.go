// Package scanmock provides an in-memory ledger and consumer pair for
// exercising the scan state machine without a real blockchain: a test
// double, not a production backend, grounded on the reference
// implementation's own synchronous "simple" scanning context.
package scanmock

import (
	"sync"

	"github.com/Rucknium/monero-tx-performance-sub000/scan"
)

// Block is a single block as the mock chain stores it: its own id, and the
// records/key images it contains.
type Block struct {
	ID                  scan.BlockID
	BasicRecordsPerTx   map[scan.TxID][]scan.Record
	ContextualKeyImages []scan.KeyImageSet
}

// Ledger is a goroutine-safe, append-and-reorg-capable in-memory chain. It
// implements scan.ScanningContextLedger directly: GetOnchainChunk
// synchronously slices the current chain, mirroring the reference
// implementation's EnoteScanningContextLedgerSimple.
type Ledger struct {
	mu sync.Mutex

	blocks        []Block // blocks[i] has block index i
	nextStart     int64
	maxChunkSize  uint32
	aborted       bool
	terminated    bool
}

// NewLedger returns an empty ledger starting at block index 0.
func NewLedger() *Ledger {
	return &Ledger{}
}

// chunk is the concrete scan.LedgerChunk this ledger produces: eagerly
// materialized, since the mock has no async fetch latency to hide.
type chunk struct {
	ctx  scan.ChunkContext
	data scan.ChunkData
}

func (c *chunk) Context() scan.ChunkContext { return c.ctx }

func (c *chunk) TryGetData(id scan.SubconsumerID) (scan.ChunkData, bool) {
	if id != 0 {
		return scan.ChunkData{}, false
	}
	return c.data, true
}

func (c *chunk) SubconsumerIDs() []scan.SubconsumerID { return []scan.SubconsumerID{0} }

// AppendBlock adds a new tip block. Not safe to call concurrently with a
// scan in progress past this block's index; callers orchestrate their own
// timing.
func (l *Ledger) AppendBlock(b Block) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocks = append(l.blocks, b)
}

// Reorg truncates the chain back to length keepLength (discarding
// blocks at index >= keepLength), simulating a reorg.
func (l *Ledger) Reorg(keepLength int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if keepLength < len(l.blocks) {
		l.blocks = l.blocks[:keepLength]
	}
}

// Abort marks the ledger as aborted; the next empty-chunk observation will
// be reported to the state machine as Aborted rather than Success.
func (l *Ledger) Abort() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.aborted = true
}

func (l *Ledger) BeginScanningFromIndex(startIndex int64, maxChunkSize uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextStart = startIndex
	l.maxChunkSize = maxChunkSize
	l.terminated = false
	return nil
}

func (l *Ledger) GetOnchainChunk() (scan.LedgerChunk, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.nextStart
	top := int64(len(l.blocks))

	if start >= top || l.maxChunkSize == 0 {
		var prefix *scan.BlockID
		if start > 0 && start-1 < top {
			id := l.blocks[start-1].ID
			prefix = &id
		}
		return &chunk{ctx: scan.ChunkContext{StartIndex: start, PrefixBlockID: prefix}}, nil
	}

	end := start + int64(l.maxChunkSize)
	if end > top {
		end = top
	}

	var prefix *scan.BlockID
	if start > 0 {
		id := l.blocks[start-1].ID
		prefix = &id
	}

	ids := make([]scan.BlockID, 0, end-start)
	data := scan.ChunkData{BasicRecordsPerTx: map[scan.TxID][]scan.Record{}}
	for i := start; i < end; i++ {
		b := l.blocks[i]
		ids = append(ids, b.ID)
		for tx, recs := range b.BasicRecordsPerTx {
			data.BasicRecordsPerTx[tx] = append(data.BasicRecordsPerTx[tx], recs...)
		}
		data.ContextualKeyImages = append(data.ContextualKeyImages, b.ContextualKeyImages...)
	}

	l.nextStart = end

	return &chunk{
		ctx:  scan.ChunkContext{StartIndex: start, PrefixBlockID: prefix, BlockIDs: ids},
		data: data,
	}, nil
}

func (l *Ledger) TerminateScanning() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.terminated = true
}

func (l *Ledger) IsAborted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.aborted
}

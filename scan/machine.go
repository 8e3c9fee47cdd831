package scan

import (
	"fmt"

	"github.com/Rucknium/monero-tx-performance-sub000/internal/xlog"
	"github.com/Rucknium/monero-tx-performance-sub000/internal/xmath"
)

// Status is the scan state machine's current state.
type Status uint8

const (
	NeedFullscan Status = iota
	NeedPartialscan
	StartScan
	DoScan
	Success
	Fail
	Aborted
)

func (s Status) String() string {
	switch s {
	case NeedFullscan:
		return `NeedFullscan`
	case NeedPartialscan:
		return `NeedPartialscan`
	case StartScan:
		return `StartScan`
	case DoScan:
		return `DoScan`
	case Success:
		return `Success`
	case Fail:
		return `Fail`
	case Aborted:
		return `Aborted`
	default:
		return `Unknown`
	}
}

// Terminal reports whether s is one of Success, Fail, Aborted.
func (s Status) Terminal() bool {
	return s == Success || s == Fail || s == Aborted
}

// Config parameterizes a scan: how far to back off on reorgs, how large a
// chunk to request, and how many partial rescans to attempt before the scan
// fails.
type Config struct {
	ReorgAvoidanceIncrement int64
	MaxChunkSize            uint32
	MaxPartialscanAttempts  int
}

// Metadata is the scan state machine's owned, caller-held state.
type Metadata struct {
	Config               Config
	Status               Status
	PartialscanAttempts  int
	FullscanAttempts     int
	ContiguityMarker     ContiguityMarker
	FirstContiguityIndex int64

	// SubconsumerID selects which consumer's data to pull out of each
	// lazily-produced LedgerChunk.
	SubconsumerID SubconsumerID
}

// NewMetadata constructs metadata ready to begin with a full scan.
func NewMetadata(config Config, subconsumer SubconsumerID) *Metadata {
	return &Metadata{
		Config:        config,
		Status:        NeedFullscan,
		SubconsumerID: subconsumer,
	}
}

func uintPow(base, exp int64) int64 {
	r := int64(1)
	for i := int64(0); i < exp; i++ {
		r *= base
	}
	return r
}

// getReorgAvoidanceDepth is the number of extra blocks to scan below the
// desired start index, in case of a reorg lower than that index. Zero on the
// first attempt (cheap optimistic path); exponential back-off afterward,
// because a failed fullscan means the true divergence point is unknown and
// could be arbitrarily deep.
func getReorgAvoidanceDepth(reorgAvoidanceIncrement int64, completedFullscanAttempts int) int64 {
	if completedFullscanAttempts == 0 {
		return 0
	}
	return uintPow(10, int64(completedFullscanAttempts-1)) * reorgAvoidanceIncrement
}

func getStartScanIndex(reorgAvoidanceIncrement int64, completedFullscanAttempts int, lowestScannableIndex, desiredStartIndex int64) int64 {
	depth := getReorgAvoidanceDepth(reorgAvoidanceIncrement, completedFullscanAttempts)
	return xmath.Max(desiredStartIndex-depth, lowestScannableIndex)
}

// setInitialContiguityMarker anchors the marker to the block immediately
// before initialRefreshIndex, looking up its id from the consumer unless
// that block is the consumer's own prefix (in which case the id is left
// unspecified: the consumer doesn't know it either).
func setInitialContiguityMarker(consumer ChunkConsumer, initialRefreshIndex int64) (ContiguityMarker, error) {
	marker := ContiguityMarker{BlockIndex: initialRefreshIndex - 1}
	if marker.BlockIndex != consumer.RefreshIndex()-1 {
		id, ok := consumer.TryGetBlockID(marker.BlockIndex)
		if !ok {
			return marker, fmt.Errorf(`scan: no block id for index %d at start of scanning (expected one)`, marker.BlockIndex)
		}
		marker.BlockID = &id
	}
	return marker, nil
}

// contiguityCheck implements the asymmetric "odd rule": a marker with an
// unspecified block id is contiguous with all markers at or below its index,
// not just markers at the same index. This is preserved verbatim from the
// reference implementation's own tests and comments, including the `<=`
// rather than `==` comparison the original calls out as a debatable but
// load-bearing design point.
func contiguityCheck(a, b ContiguityMarker) bool {
	if a.BlockID == nil && b.BlockIndex <= a.BlockIndex {
		return true
	}
	if b.BlockID == nil && a.BlockIndex <= b.BlockIndex {
		return true
	}
	if a.BlockIndex != b.BlockIndex {
		return false
	}
	if a.BlockID != nil && b.BlockID != nil && *a.BlockID != *b.BlockID {
		return false
	}
	return true
}

func newChunkScanStatus(marker ContiguityMarker, chunkContext ChunkContext, firstContiguityIndex, fullDiscontinuityTestIndex int64) Status {
	if contiguityCheck(marker, ContiguityMarker{BlockIndex: chunkContext.StartIndex - 1, BlockID: chunkContext.PrefixBlockID}) {
		return Success
	}
	if firstContiguityIndex+1 >= fullDiscontinuityTestIndex+1 {
		return NeedFullscan
	}
	return NeedPartialscan
}

// updateAlignmentMarker walks a chunk's block ids and advances marker as
// long as they keep matching the consumer's own recorded ids, stopping at
// the first mismatch or the first index the consumer has no opinion on.
func updateAlignmentMarker(consumer ChunkConsumer, startIndex int64, blockIDs []BlockID, marker *ContiguityMarker) {
	for i, id := range blockIDs {
		known, ok := consumer.TryGetBlockID(startIndex + int64(i))
		if !ok || known != id {
			return
		}
		idx := startIndex + int64(i)
		marker.BlockIndex = idx
		knownCopy := known
		marker.BlockID = &knownCopy
	}
}

// alignBlockIds advances the alignment marker then crops the chunk's block
// ids down to the strict suffix the consumer doesn't already know about.
// Handing the consumer only that suffix (rather than the whole chunk) is
// what avoids redundant rollback work when the chunk overlaps ids the
// consumer already has.
func alignBlockIds(consumer ChunkConsumer, chunkCtx ChunkContext, marker *ContiguityMarker) []BlockID {
	updateAlignmentMarker(consumer, chunkCtx.StartIndex, chunkCtx.BlockIDs, marker)
	cropFrom := xmath.Clamp(marker.BlockIndex+1-chunkCtx.StartIndex, 0, int64(len(chunkCtx.BlockIDs)))
	return chunkCtx.BlockIDs[cropFrom:]
}

func checkChunkSemantics(chunkCtx ChunkContext, data ChunkData, markerBlockIndex int64) error {
	if chunkCtx.StartIndex-1 != markerBlockIndex {
		return fmt.Errorf(`scan: chunk start index %d does not continue from marker at %d`, chunkCtx.StartIndex, markerBlockIndex)
	}
	last := chunkCtx.StartIndex + int64(len(chunkCtx.BlockIDs)) - 1
	for tx, records := range data.BasicRecordsPerTx {
		for _, r := range records {
			if r.BlockIndex < chunkCtx.StartIndex || r.BlockIndex > last {
				return fmt.Errorf(`scan: record for tx %x at block %d outside chunk range [%d,%d]`, tx, r.BlockIndex, chunkCtx.StartIndex, last)
			}
		}
	}
	for _, ks := range data.ContextualKeyImages {
		if _, ok := data.BasicRecordsPerTx[ks.TxID]; !ok {
			return fmt.Errorf(`scan: key image set references tx %x absent from basic records`, ks.TxID)
		}
	}
	return nil
}

func handleNonemptyLedgerChunk(firstContiguityIndex int64, chunkCtx ChunkContext, data ChunkData, consumer ChunkConsumer, marker *ContiguityMarker) Status {
	if len(chunkCtx.BlockIDs) == 0 {
		return Fail
	}
	if err := checkChunkSemantics(chunkCtx, data, marker.BlockIndex); err != nil {
		xlog.Get().Err().Str(`err`, err.Error()).Log(`chunk failed semantic check`)
		return Fail
	}

	status := newChunkScanStatus(*marker, chunkCtx, firstContiguityIndex, marker.BlockIndex)
	if status != Success {
		return status
	}

	alignment := *marker
	cropped := alignBlockIds(consumer, chunkCtx, &alignment)

	if len(cropped) > 0 {
		var alignmentID BlockID
		if alignment.BlockID != nil {
			alignmentID = *alignment.BlockID
		}
		if err := consumer.ConsumeOnchainChunk(data, alignment.BlockIndex+1, alignmentID, cropped); err != nil {
			xlog.Get().Err().Str(`err`, err.Error()).Log(`consumer rejected onchain chunk`)
			return Fail
		}
	}

	marker.BlockIndex = chunkCtx.StartIndex + int64(len(chunkCtx.BlockIDs)) - 1
	last := chunkCtx.BlockIDs[len(chunkCtx.BlockIDs)-1]
	marker.BlockID = &last
	return DoScan
}

func handleEmptyLedgerChunk(firstContiguityIndex int64, chunkCtx ChunkContext, ledger ScanningContextLedger, consumer ChunkConsumer, marker *ContiguityMarker) Status {
	if !chunkCtx.IsTermination() {
		return Fail
	}
	if ledger.IsAborted() {
		return Aborted
	}

	status := newChunkScanStatus(*marker, chunkCtx, firstContiguityIndex, chunkCtx.StartIndex-1)
	if status != Success {
		return status
	}

	var alignmentID BlockID
	if marker.BlockID != nil {
		alignmentID = *marker.BlockID
	}
	if err := consumer.ConsumeOnchainChunk(ChunkData{}, marker.BlockIndex+1, alignmentID, nil); err != nil {
		xlog.Get().Err().Str(`err`, err.Error()).Log(`consumer rejected termination chunk`)
		return Fail
	}
	return Success
}

func processLedgerOnchainPass(firstContiguityIndex int64, ledger ScanningContextLedger, consumer ChunkConsumer, subconsumer SubconsumerID, marker *ContiguityMarker) Status {
	chunk, err := ledger.GetOnchainChunk()
	if err != nil {
		xlog.Get().Err().Str(`err`, err.Error()).Log(`get onchain chunk failed`)
		return Fail
	}

	chunkCtx := chunk.Context()
	if !chunkCtx.IsTermination() {
		data, _ := chunk.TryGetData(subconsumer)
		return handleNonemptyLedgerChunk(firstContiguityIndex, chunkCtx, data, consumer, marker)
	}
	return handleEmptyLedgerChunk(firstContiguityIndex, chunkCtx, ledger, consumer, marker)
}

func tryHandleNeedFullscan(m *Metadata, consumer ChunkConsumer) bool {
	if m.Status != NeedFullscan {
		return false
	}

	startScanIndex := getStartScanIndex(m.Config.ReorgAvoidanceIncrement, m.FullscanAttempts, consumer.RefreshIndex(), consumer.DesiredFirstBlock())

	marker, err := setInitialContiguityMarker(consumer, startScanIndex)
	if err != nil {
		xlog.Get().Err().Str(`err`, err.Error()).Log(`could not set initial contiguity marker`)
		m.Status = Fail
		return true
	}
	m.ContiguityMarker = marker

	m.FullscanAttempts++
	if m.FullscanAttempts > 50 {
		xlog.Get().Err().Log(`fullscan attempts exceeded 50`)
		m.Status = Fail
		return true
	}

	m.Status = StartScan
	return true
}

func tryHandleNeedPartialscan(m *Metadata, consumer ChunkConsumer) bool {
	if m.Status != NeedPartialscan {
		return false
	}

	// partial scans always back off by exactly one reorg avoidance
	// increment, never exponentially.
	startScanIndex := getStartScanIndex(m.Config.ReorgAvoidanceIncrement, 1, consumer.RefreshIndex(), consumer.DesiredFirstBlock())

	marker, err := setInitialContiguityMarker(consumer, startScanIndex)
	if err != nil {
		xlog.Get().Err().Str(`err`, err.Error()).Log(`could not set initial contiguity marker`)
		m.Status = Fail
		return true
	}
	m.ContiguityMarker = marker

	m.PartialscanAttempts++
	if m.PartialscanAttempts > m.Config.MaxPartialscanAttempts {
		m.Status = Fail
	} else {
		m.Status = StartScan
	}
	return true
}

func tryHandleStartScan(m *Metadata, ledger ScanningContextLedger) bool {
	if m.Status != StartScan {
		return false
	}

	if err := ledger.BeginScanningFromIndex(m.ContiguityMarker.BlockIndex+1, m.Config.MaxChunkSize); err != nil {
		xlog.Get().Err().Str(`err`, err.Error()).Log(`failed to begin scanning`)
		m.Status = Fail
		return true
	}

	m.Status = DoScan
	m.FirstContiguityIndex = m.ContiguityMarker.BlockIndex
	return true
}

func tryHandleDoScan(m *Metadata, ledger ScanningContextLedger, consumer ChunkConsumer) bool {
	if m.Status != DoScan {
		return false
	}

	m.Status = processLedgerOnchainPass(m.FirstContiguityIndex, ledger, consumer, m.SubconsumerID, &m.ContiguityMarker)

	if m.Status != DoScan {
		ledger.TerminateScanning()
	}
	return true
}

// TryAdvanceStateMachine performs exactly one transition and reports
// whether the resulting state is non-terminal (false once the machine is in
// Success, Fail or Aborted, including when it was already terminal and
// nothing happened). It never panics out: any panic raised by the ledger or
// consumer is recovered, logged, mapped to Fail, and followed by a
// best-effort TerminateScanning call.
func TryAdvanceStateMachine(m *Metadata, ledger ScanningContextLedger, consumer ChunkConsumer) (advanced bool) {
	defer func() {
		if r := recover(); r != nil {
			xlog.Get().Err().Str(`panic`, fmt.Sprint(r)).Log(`scan state machine panicked`)
			m.Status = Fail
			func() {
				defer func() { _ = recover() }()
				ledger.TerminateScanning()
			}()
			advanced = false
		}
	}()

	if tryHandleNeedFullscan(m, consumer) ||
		tryHandleNeedPartialscan(m, consumer) ||
		tryHandleStartScan(m, ledger) ||
		tryHandleDoScan(m, ledger, consumer) {
		if !m.Status.Terminal() {
			return true
		}
	}

	switch m.Status {
	case Fail:
		xlog.Get().Err().Log(`scan failed`)
	case Aborted:
		xlog.Get().Err().Log(`scan aborted`)
	case Success:
	default:
		xlog.Get().Err().Log(`scan state machine reached unknown terminal status`)
	}
	return false
}

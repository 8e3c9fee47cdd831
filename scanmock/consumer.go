package scanmock

import (
	"sync"

	"github.com/Rucknium/monero-tx-performance-sub000/scan"
)

// EnoteStore is a minimal in-memory wallet-side consumer: it records which
// block id it has for each index it has seen, plus the raw records and key
// images consumed so far. Grounded on the reference implementation's enote
// store, reduced to only what the state machine's contract requires.
type EnoteStore struct {
	mu sync.Mutex

	refreshIndex int64
	desiredFirst int64

	knownBlockIDs map[int64]scan.BlockID

	records   map[scan.TxID][]scan.Record
	keyImages map[scan.TxID][]scan.KeyImage
}

// NewEnoteStore returns a store that starts scanning from desiredFirst and
// will never roll back below refreshIndex.
func NewEnoteStore(refreshIndex, desiredFirst int64) *EnoteStore {
	return &EnoteStore{
		refreshIndex:  refreshIndex,
		desiredFirst:  desiredFirst,
		knownBlockIDs: map[int64]scan.BlockID{},
		records:       map[scan.TxID][]scan.Record{},
		keyImages:     map[scan.TxID][]scan.KeyImage{},
	}
}

func (s *EnoteStore) RefreshIndex() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshIndex
}

func (s *EnoteStore) DesiredFirstBlock() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desiredFirst
}

func (s *EnoteStore) TryGetBlockID(index int64) (scan.BlockID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.knownBlockIDs[index]
	return id, ok
}

// ConsumeOnchainChunk rolls back any recorded state at or above
// firstNewIndex, then records the alignment block id and the chunk's new
// records/key images/block ids. A tx whose records all lie at or above
// firstNewIndex is dropped together with its key images.
//
// data carries the chunk's full, uncropped payload: the state machine always
// passes every record the ledger reported for the chunk, even though
// newBlockIDs is cropped down to the suffix the consumer doesn't already
// know. Blocks below firstNewIndex were already folded in by an earlier
// call, so only records at or above firstNewIndex are new here; a tx's key
// images ride along only when that tx actually gained a new record, since
// KeyImageSet carries no block index of its own to filter on directly.
func (s *EnoteStore) ConsumeOnchainChunk(data scan.ChunkData, firstNewIndex int64, alignmentBlockID scan.BlockID, newBlockIDs []scan.BlockID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for idx := range s.knownBlockIDs {
		if idx >= firstNewIndex {
			delete(s.knownBlockIDs, idx)
		}
	}
	for tx, recs := range s.records {
		var kept []scan.Record
		for _, r := range recs {
			if r.BlockIndex < firstNewIndex {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			s.records[tx] = kept
			continue
		}
		delete(s.records, tx)
		delete(s.keyImages, tx)
	}
	if firstNewIndex > 0 {
		s.knownBlockIDs[firstNewIndex-1] = alignmentBlockID
	}

	freshTx := make(map[scan.TxID]bool, len(data.BasicRecordsPerTx))
	for tx, recs := range data.BasicRecordsPerTx {
		var fresh []scan.Record
		for _, r := range recs {
			if r.BlockIndex >= firstNewIndex {
				fresh = append(fresh, r)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		s.records[tx] = append(s.records[tx], fresh...)
		freshTx[tx] = true
	}
	for _, ks := range data.ContextualKeyImages {
		if !freshTx[ks.TxID] {
			continue
		}
		s.keyImages[ks.TxID] = append(s.keyImages[ks.TxID], ks.KeyImages...)
	}

	for i, id := range newBlockIDs {
		s.knownBlockIDs[firstNewIndex+int64(i)] = id
	}

	s.desiredFirst = firstNewIndex + int64(len(newBlockIDs))
	return nil
}

// Records returns a snapshot of all records consumed so far, keyed by tx id.
func (s *EnoteStore) Records() map[scan.TxID][]scan.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[scan.TxID][]scan.Record, len(s.records))
	for k, v := range s.records {
		cp := make([]scan.Record, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

package scanmock_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Rucknium/monero-tx-performance-sub000/scan"
	"github.com/Rucknium/monero-tx-performance-sub000/scanmock"
)

func TestLedgerProducesTerminationChunkAtTip(t *testing.T) {
	l := scanmock.NewLedger()
	l.AppendBlock(scanmock.Block{ID: scan.BlockID{1}})
	l.AppendBlock(scanmock.Block{ID: scan.BlockID{2}})

	require.NoError(t, l.BeginScanningFromIndex(0, 10))

	chunk, err := l.GetOnchainChunk()
	require.NoError(t, err)
	ctx := chunk.Context()
	require.False(t, ctx.IsTermination(), "first chunk should be non-empty")
	require.Len(t, ctx.BlockIDs, 2)

	chunk2, err := l.GetOnchainChunk()
	require.NoError(t, err)
	require.True(t, chunk2.Context().IsTermination(), "second chunk should be the termination marker")
}

func TestLedgerRespectsMaxChunkSize(t *testing.T) {
	l := scanmock.NewLedger()
	for i := 0; i < 5; i++ {
		l.AppendBlock(scanmock.Block{ID: scan.BlockID{byte(i)}})
	}
	require.NoError(t, l.BeginScanningFromIndex(0, 2))

	chunk, err := l.GetOnchainChunk()
	require.NoError(t, err)
	require.Len(t, chunk.Context().BlockIDs, 2)
}

func TestEnoteStoreConsumeOnchainChunkRollsBackOnReorg(t *testing.T) {
	s := scanmock.NewEnoteStore(0, 0)

	tx := scan.TxID{1}
	data := scan.ChunkData{BasicRecordsPerTx: map[scan.TxID][]scan.Record{tx: {{BlockIndex: 2}}}}
	require.NoError(t, s.ConsumeOnchainChunk(data, 0, scan.BlockID{}, []scan.BlockID{{1}, {2}, {3}}))
	require.EqualValues(t, 3, s.DesiredFirstBlock())
	_, ok := s.TryGetBlockID(2)
	require.True(t, ok, "expected block id at index 2 to be recorded")

	// a reorg at index 1 should discard everything at or above it.
	require.NoError(t, s.ConsumeOnchainChunk(scan.ChunkData{}, 1, scan.BlockID{1}, []scan.BlockID{{9}}))

	_, ok = s.TryGetBlockID(2)
	require.False(t, ok, "block id at index 2 should have been rolled back")

	id, ok := s.TryGetBlockID(1)
	require.True(t, ok)
	require.Equal(t, scan.BlockID{9}, id)
}

func TestEnoteStoreConsumeOnchainChunkDoesNotDuplicateOverlappingRecords(t *testing.T) {
	s := scanmock.NewEnoteStore(0, 0)

	tx := scan.TxID{1}
	first := scan.ChunkData{BasicRecordsPerTx: map[scan.TxID][]scan.Record{tx: {{BlockIndex: 2}}}}
	require.NoError(t, s.ConsumeOnchainChunk(first, 0, scan.BlockID{}, []scan.BlockID{{1}, {2}, {3}}))
	require.Len(t, s.Records()[tx], 1)

	// a rescan re-fetches from index 1 onward (no actual reorg: ids at 1 and
	// 2 are unchanged) and reports the full, uncropped chunk data, which
	// repeats the already-recorded record at index 2 alongside one genuinely
	// new record at index 3.
	second := scan.ChunkData{BasicRecordsPerTx: map[scan.TxID][]scan.Record{tx: {
		{BlockIndex: 2},
		{BlockIndex: 3},
	}}}
	require.NoError(t, s.ConsumeOnchainChunk(second, 1, scan.BlockID{2}, []scan.BlockID{{2}, {3}, {4}}))

	recs := s.Records()[tx]
	require.Len(t, recs, 2, "the already-recorded block-2 record must not be re-appended")
	require.Equal(t, int64(2), recs[0].BlockIndex)
	require.Equal(t, int64(3), recs[1].BlockIndex)
}

func TestEnoteStoreConsumeOnchainChunkDoesNotDuplicateKeyImagesWithoutNewRecords(t *testing.T) {
	s := scanmock.NewEnoteStore(0, 0)

	tx := scan.TxID{1}
	ki := scan.KeyImage{7}
	first := scan.ChunkData{
		BasicRecordsPerTx:   map[scan.TxID][]scan.Record{tx: {{BlockIndex: 0}}},
		ContextualKeyImages: []scan.KeyImageSet{{TxID: tx, KeyImages: []scan.KeyImage{ki}}},
	}
	require.NoError(t, s.ConsumeOnchainChunk(first, 0, scan.BlockID{}, []scan.BlockID{{1}}))

	// a later overlapping call from index 0 repeats the same record and key
	// image set for tx: the store rolls back tx's earlier record and key
	// images, then applies them once more.
	second := scan.ChunkData{
		BasicRecordsPerTx:   map[scan.TxID][]scan.Record{tx: {{BlockIndex: 0}}},
		ContextualKeyImages: []scan.KeyImageSet{{TxID: tx, KeyImages: []scan.KeyImage{ki}}},
	}
	require.NoError(t, s.ConsumeOnchainChunk(second, 0, scan.BlockID{}, []scan.BlockID{{1}}))

	require.Len(t, s.Records()[tx], 1)
}

// Command seraphisscan drives a mock Seraphis balance-recovery scan against
// an in-memory ledger, demonstrating the scan state machine running on the
// work-stealing thread pool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/Rucknium/monero-tx-performance-sub000/driver"
	"github.com/Rucknium/monero-tx-performance-sub000/engine"
	"github.com/Rucknium/monero-tx-performance-sub000/internal/xlog"
	"github.com/Rucknium/monero-tx-performance-sub000/scan"
	"github.com/Rucknium/monero-tx-performance-sub000/scanmock"
)

func main() {
	workers := flag.Int(`workers`, 0, `worker goroutines (0 = GOMAXPROCS)`)
	chunkSize := flag.Uint(`chunk-size`, 20, `max blocks requested per chunk`)
	blocks := flag.Uint(`blocks`, 200, `number of blocks to seed the mock ledger with`)
	reorgAt := flag.Int(`reorg-at`, -1, `if >= 0, truncate and replace the chain at this height after the first scan completes`)
	increment := flag.Int64(`reorg-avoidance-increment`, 10, `reorg avoidance increment, in blocks`)
	maxPartialscan := flag.Int(`max-partialscan-attempts`, 5, `partial rescans attempted before the scan fails`)
	flag.Parse()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		xlog.Get().Info().Logf(format, args...)
	})); err != nil {
		xlog.Get().Warning().Str(`err`, err.Error()).Log(`failed to set GOMAXPROCS from cgroup limits`)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool := engine.NewThreadPool(engine.Config{NumWorkers: *workers})
	defer pool.ShutDown()

	ledger := scanmock.NewLedger()
	for i := uint(0); i < *blocks; i++ {
		ledger.AppendBlock(scanmock.Block{ID: scan.BlockID{byte(i), byte(i >> 8), byte(i >> 16)}})
	}
	consumer := scanmock.NewEnoteStore(0, 0)

	cfg := scan.Config{
		ReorgAvoidanceIncrement: *increment,
		MaxChunkSize:            uint32(*chunkSize),
		MaxPartialscanAttempts:  *maxPartialscan,
	}

	runScan := func(ctx context.Context) {
		metadata := scan.NewMetadata(cfg, 0)
		d := driver.New(pool, 0, metadata, ledger, consumer)
		d.Start(ctx)
		select {
		case <-d.Done():
			xlog.Get().Info().Str(`status`, d.Status().String()).Log(`scan finished`)
		case <-ctx.Done():
			<-d.Done()
		}
	}

	runScan(ctx)

	if *reorgAt >= 0 {
		ledger.Reorg(*reorgAt)
		for i := 0; i < 5; i++ {
			ledger.AppendBlock(scanmock.Block{ID: scan.BlockID{0xff, byte(i)}})
		}
		runScan(ctx)
	}

	fmt.Printf("consumed %d distinct tx ids\n", len(consumer.Records()))
}

package driver_test

import (
	"context"
	"testing"
	"time"

	"github.com/Rucknium/monero-tx-performance-sub000/driver"
	"github.com/Rucknium/monero-tx-performance-sub000/engine"
	"github.com/Rucknium/monero-tx-performance-sub000/scan"
	"github.com/Rucknium/monero-tx-performance-sub000/scanmock"
)

func TestScanDriverRunsToSuccess(t *testing.T) {
	pool := engine.NewThreadPool(engine.Config{NumWorkers: 2})
	defer pool.ShutDown()

	ledger := scanmock.NewLedger()
	for i := 0; i < 30; i++ {
		ledger.AppendBlock(scanmock.Block{ID: scan.BlockID{byte(i)}})
	}
	consumer := scanmock.NewEnoteStore(0, 0)
	metadata := scan.NewMetadata(scan.Config{ReorgAvoidanceIncrement: 5, MaxChunkSize: 7, MaxPartialscanAttempts: 3}, 0)

	d := driver.New(pool, 0, metadata, ledger, consumer)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not finish in time")
	}

	if got := d.Status(); got != scan.Success {
		t.Fatalf("status = %v, want Success", got)
	}
	if got := consumer.DesiredFirstBlock(); got != 30 {
		t.Fatalf("desired first block = %d, want 30", got)
	}
}

func TestWaitAllJoinsSeveralConcurrentScans(t *testing.T) {
	pool := engine.NewThreadPool(engine.Config{NumWorkers: 4})
	defer pool.ShutDown()

	const subconsumers = 3
	drivers := make([]*driver.ScanDriver, subconsumers)
	consumers := make([]*scanmock.EnoteStore, subconsumers)
	for i := range drivers {
		ledger := scanmock.NewLedger()
		for b := 0; b < 15; b++ {
			ledger.AppendBlock(scanmock.Block{ID: scan.BlockID{byte(i), byte(b)}})
		}
		consumers[i] = scanmock.NewEnoteStore(0, 0)
		metadata := scan.NewMetadata(scan.Config{ReorgAvoidanceIncrement: 3, MaxChunkSize: 4, MaxPartialscanAttempts: 2}, 0)
		drivers[i] = driver.New(pool, 0, metadata, ledger, consumers[i])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := driver.WaitAll(ctx, drivers...); err != nil {
		t.Fatalf("WaitAll returned error: %v", err)
	}

	for i, d := range drivers {
		if got := d.Status(); got != scan.Success {
			t.Fatalf("driver %d status = %v, want Success", i, got)
		}
		if got := consumers[i].DesiredFirstBlock(); got != 15 {
			t.Fatalf("driver %d desired first block = %d, want 15", i, got)
		}
	}
}

func TestScanDriverContextCancelTerminatesScanning(t *testing.T) {
	pool := engine.NewThreadPool(engine.Config{NumWorkers: 1})
	defer pool.ShutDown()

	ledger := scanmock.NewLedger()
	consumer := scanmock.NewEnoteStore(0, 0)
	metadata := scan.NewMetadata(scan.Config{ReorgAvoidanceIncrement: 1, MaxChunkSize: 10, MaxPartialscanAttempts: 1}, 0)

	d := driver.New(pool, 0, metadata, ledger, consumer)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()

	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cancellation did not end the scan in time")
	}
}

// Package driver ties the engine's thread pool to the scan state machine:
// it resubmits one state transition at a time as a continuation, so a scan
// never monopolizes a worker, and cooperates with context cancellation.
package driver

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Rucknium/monero-tx-performance-sub000/engine"
	"github.com/Rucknium/monero-tx-performance-sub000/internal/xlog"
	"github.com/Rucknium/monero-tx-performance-sub000/scan"
)

// ScanDriver drives one scan.Metadata to a terminal state on a shared
// engine.ThreadPool, one TryAdvanceStateMachine call per submitted task.
type ScanDriver struct {
	pool     *engine.ThreadPool
	priority uint8

	ledger   scan.ScanningContextLedger
	consumer scan.ChunkConsumer

	mu       sync.Mutex
	metadata *scan.Metadata

	done chan struct{}
}

// New returns a driver for metadata, not yet started.
func New(pool *engine.ThreadPool, priority uint8, metadata *scan.Metadata, ledger scan.ScanningContextLedger, consumer scan.ChunkConsumer) *ScanDriver {
	return &ScanDriver{
		pool:     pool,
		priority: priority,
		ledger:   ledger,
		consumer: consumer,
		metadata: metadata,
		done:     make(chan struct{}),
	}
}

// Start submits the first state transition and begins watching ctx: if ctx
// is cancelled before the scan reaches a terminal state, the ledger's
// TerminateScanning is invoked so any in-flight GetOnchainChunk call can
// return promptly.
func (d *ScanDriver) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			d.ledger.TerminateScanning()
		case <-d.done:
		}
	}()

	d.pool.Submit(engine.SimpleTask{Priority: d.priority, Run: d.step})
}

// Done returns a channel closed once the scan reaches a terminal state.
func (d *ScanDriver) Done() <-chan struct{} { return d.done }

// Status returns the current (possibly still in-progress) status.
func (d *ScanDriver) Status() scan.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metadata.Status
}

func (d *ScanDriver) step() engine.TaskResult {
	d.mu.Lock()
	advanced := scan.TryAdvanceStateMachine(d.metadata, d.ledger, d.consumer)
	status := d.metadata.Status
	d.mu.Unlock()

	if advanced {
		return engine.Continue(engine.SimpleTask{Priority: d.priority, Run: d.step})
	}

	xlog.Get().Info().Str(`status`, status.String()).Log(`scan reached terminal state`)
	return engine.Notify(engine.NewScopedNotification(func() { close(d.done) }))
}

// WaitAll starts every driver on pool and blocks until each reaches a
// terminal state or ctx is cancelled, whichever comes first. A scanner
// driving several subconsumers over a shared ledger and thread pool uses
// this to join on the whole batch instead of unrolling the select loop
// for each one by hand.
func WaitAll(ctx context.Context, drivers ...*ScanDriver) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, d := range drivers {
		d := d
		d.Start(ctx)
		g.Go(func() error {
			select {
			case <-d.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

package engine

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Rucknium/monero-tx-performance-sub000/internal/xlog"
	"github.com/Rucknium/monero-tx-performance-sub000/internal/xmath"
)

// Config configures a ThreadPool. Zero fields fall back to the defaults
// applied by setDefaults.
type Config struct {
	NumPriorityLevels   uint8
	NumWorkers          int
	MaxQueueSize        uint32
	SubmitCycleAttempts int
	MaxWaitDuration     time.Duration
}

func (c *Config) setDefaults() {
	if c.NumPriorityLevels == 0 {
		c.NumPriorityLevels = 1
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = runtime.GOMAXPROCS(0)
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = 1024
	}
	if c.SubmitCycleAttempts <= 0 {
		c.SubmitCycleAttempts = 4
	}
	if c.MaxWaitDuration <= 0 {
		c.MaxWaitDuration = 50 * time.Millisecond
	}
}

// ThreadPool is a work-stealing, priority-aware pool of worker goroutines
// with deferred-task support. Copying is forbidden by convention: always
// hold a ThreadPool by pointer, obtained from NewThreadPool.
type ThreadPool struct {
	cfg Config

	queues [][]*TokenQueue[SimpleTask] // [priority][owner]
	sleepy []*SleepyTaskQueue          // [owner]

	submitCursor atomic.Uint32
	waiters      *WaiterManager

	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewThreadPool constructs a pool and immediately starts cfg.NumWorkers
// worker goroutines.
func NewThreadPool(cfg Config) *ThreadPool {
	cfg.setDefaults()

	p := &ThreadPool{cfg: cfg}
	p.queues = make([][]*TokenQueue[SimpleTask], cfg.NumPriorityLevels)
	for pr := range p.queues {
		row := make([]*TokenQueue[SimpleTask], cfg.NumWorkers)
		for w := range row {
			row[w] = NewTokenQueue[SimpleTask](cfg.MaxQueueSize)
		}
		p.queues[pr] = row
	}
	p.sleepy = make([]*SleepyTaskQueue, cfg.NumWorkers)
	for w := range p.sleepy {
		p.sleepy[w] = NewSleepyTaskQueue()
	}
	p.waiters = NewWaiterManager(uint16(cfg.NumWorkers))

	p.wg.Add(cfg.NumWorkers)
	for w := 0; w < cfg.NumWorkers; w++ {
		go func(idx int) {
			defer p.wg.Done()
			p.run(idx)
		}(w)
	}
	return p
}

// NumWorkers returns the number of worker goroutines the pool was started
// with.
func (p *ThreadPool) NumWorkers() int { return p.cfg.NumWorkers }

func (p *ThreadPool) priorityIndex(priority uint8) int {
	return xmath.Min(int(priority), len(p.queues)-1)
}

// Submit enqueues t via the round-robin submission path: try_push is
// attempted on up to SubmitCycleAttempts successive owners starting from the
// shared cursor, falling back to force_push on the cursor's current owner.
func (p *ThreadPool) Submit(t SimpleTask) {
	pr := p.priorityIndex(t.Priority)
	row := p.queues[pr]
	n := len(row)
	start := int(p.submitCursor.Add(1)-1) % n

	for i := 0; i < p.cfg.SubmitCycleAttempts && i < n; i++ {
		owner := (start + i) % n
		if row[owner].TryPush(t) == Success {
			p.waiters.NotifyOne()
			return
		}
	}
	row[start].ForcePush(t)
	p.waiters.NotifyOne()
}

// ShutDown stops accepting the premise of further progress and joins every
// worker. Idempotent; safe to call more than once.
func (p *ThreadPool) ShutDown() {
	p.shutdownOnce.Do(func() {
		p.waiters.ShutDown()
		p.wg.Wait()
	})
}

func (p *ThreadPool) run(idx int) {
	for {
		if p.runOnce(idx) {
			continue
		}

		awakened := p.sleepy[idx].tryPerformMaintenance(time.Now())
		if len(awakened) > 0 {
			for _, t := range awakened {
				p.queues[p.priorityIndex(t.Priority)][idx].ForcePush(t)
			}
			continue
		}

		if p.waiters.WaitFor(p.cfg.MaxWaitDuration, ExitEarly) == ShuttingDown {
			return
		}
	}
}

// runOnce performs one dispatch attempt: own queue first (descending
// priority), then stealing from peers in round-robin order at the same
// priority level. Returns whether a task was found and executed.
func (p *ThreadPool) runOnce(idx int) bool {
	for pr := range p.queues {
		row := p.queues[pr]
		if t, res := row[idx].TryPop(); res == Success {
			p.execute(idx, t)
			return true
		}
		n := len(row)
		for off := 1; off < n; off++ {
			owner := (idx + off) % n
			if t, res := row[owner].TryPop(); res == Success {
				p.execute(idx, t)
				return true
			}
		}
	}
	return false
}

func (p *ThreadPool) execute(idx int, t SimpleTask) {
	result := p.safeRun(t.Run)
	switch result.Kind {
	case ResultEmpty:
	case ResultSimple:
		p.Submit(result.Simple)
	case ResultSleepy:
		p.sleepy[idx].ForcePush(result.Sleepy, time.Now())
	case ResultNotify:
		result.Notify.Fire()
	}
}

// safeRun executes fn, recovering a panic so one failing task never poisons
// a worker. Its continuation (if any) is discarded on panic; any
// notification captured in the task's own state is the task author's
// responsibility to fire via defer.
func (p *ThreadPool) safeRun(fn TaskFunc) (result TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			xlog.Get().Warning().Str(`panic`, fmt.Sprint(r)).Log(`task panicked, continuation discarded`)
			result = Empty()
		}
	}()
	return fn()
}

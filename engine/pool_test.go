package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestThreadPoolRunsSubmittedTasks(t *testing.T) {
	p := NewThreadPool(Config{NumWorkers: 4})
	defer p.ShutDown()

	var n int64
	var wg sync.WaitGroup
	const total = 200
	wg.Add(total)
	for i := 0; i < total; i++ {
		p.Submit(SimpleTask{Priority: uint8(i % 3), Run: func() TaskResult {
			atomic.AddInt64(&n, 1)
			wg.Done()
			return Empty()
		}})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("only %d/%d tasks ran", atomic.LoadInt64(&n), int64(total))
	}
}

func TestThreadPoolSleepyTaskDoesNotRunEarly(t *testing.T) {
	p := NewThreadPool(Config{NumWorkers: 2, MaxWaitDuration: time.Millisecond})
	defer p.ShutDown()

	start := time.Now()
	ranAt := make(chan time.Time, 1)
	p.Submit(SimpleTask{Run: func() TaskResult {
		return Sleep(SleepyTask{
			Task: SimpleTask{Run: func() TaskResult {
				ranAt <- time.Now()
				return Empty()
			}},
			Wake: WakeTime{Duration: 40 * time.Millisecond},
		})
	}})

	select {
	case when := <-ranAt:
		if when.Sub(start) < 40*time.Millisecond {
			t.Fatalf("sleepy task ran after %s, want >= 40ms", when.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sleepy task never ran")
	}
}

func TestThreadPoolShutdownIsIdempotent(t *testing.T) {
	p := NewThreadPool(Config{NumWorkers: 2})
	p.ShutDown()
	p.ShutDown()
}

func TestThreadPoolPanicDoesNotPoisonWorker(t *testing.T) {
	p := NewThreadPool(Config{NumWorkers: 1})
	defer p.ShutDown()

	p.Submit(SimpleTask{Run: func() TaskResult { panic("boom") }})

	done := make(chan struct{})
	p.Submit(SimpleTask{Run: func() TaskResult { close(done); return Empty() }})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not process tasks after a panicking one")
	}
}

func TestThreadPoolNotificationFiresOnDrop(t *testing.T) {
	p := NewThreadPool(Config{NumWorkers: 1})
	defer p.ShutDown()

	fired := make(chan struct{})
	p.Submit(SimpleTask{Run: func() TaskResult {
		return Notify(NewScopedNotification(func() { close(fired) }))
	}})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("notification never fired")
	}
}

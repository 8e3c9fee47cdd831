package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Rucknium/monero-tx-performance-sub000/internal/xmath"
)

// ShutdownPolicy controls how a waiter reacts to a shutdown already in
// progress before it parks.
type ShutdownPolicy uint8

const (
	// Wait parks regardless, but still returns ShuttingDown if woken by a
	// shutdown.
	Wait ShutdownPolicy = iota
	// ExitEarly returns ShuttingDown immediately without parking if
	// shutdown has already been requested.
	ExitEarly
)

// Result is the outcome of a wait on the WaiterManager.
type Result uint8

const (
	ConditionTriggered Result = iota
	ShuttingDown
	Timeout
	DoneWaiting
)

type conditionalSlot struct {
	numWaiting atomic.Int32
	mu         sync.Mutex
	cond       *sync.Cond
}

// WaiterManager manages three classes of parked goroutines: normal (no
// timeout), sleepy (timeout or deadline), and conditional (indexed slots
// parked on a user predicate). notify_one prefers a normal waiter, then a
// sleepy one, then a conditional one in index order. Shutdown is sticky:
// once requested, all current waiters wake and future ExitEarly waiters
// return immediately.
//
// The source design pairs a shared_mutex (so many waiters can park under a
// read lock while shutdown briefly escalates to a write lock) with
// condition_variable_any. Go's sync.Cond only binds to a plain Locker, so
// this replaces the reader/writer split with one plain mutex shared by the
// normal and sleepy classes, plus one mutex per conditional slot; the
// fencing guarantee shutdown relies on (no waiter parks after observing
// a clear flag yet before the flag and wake are both visible) still holds
// because parking and the flag check happen under the same lock shutdown
// takes to fence.
type WaiterManager struct {
	mu           sync.Mutex
	normalCond   *sync.Cond
	sleepyCond   *sync.Cond
	numNormal    atomic.Int32
	numSleepy    atomic.Int32
	shuttingDown atomic.Bool

	conditional []*conditionalSlot
}

// NewWaiterManager constructs a manager with numConditionalWaiters
// conditional slots (clamped to at least 1, so the interface has no
// undefined behavior for a caller that passes 0).
func NewWaiterManager(numConditionalWaiters uint16) *WaiterManager {
	if numConditionalWaiters == 0 {
		numConditionalWaiters = 1
	}
	m := &WaiterManager{}
	m.normalCond = sync.NewCond(&m.mu)
	m.sleepyCond = sync.NewCond(&m.mu)
	m.conditional = make([]*conditionalSlot, numConditionalWaiters)
	for i := range m.conditional {
		s := &conditionalSlot{}
		s.cond = sync.NewCond(&s.mu)
		m.conditional[i] = s
	}
	return m
}

func (m *WaiterManager) clampIndex(i uint16) uint16 {
	return xmath.Min(i, uint16(len(m.conditional)-1))
}

// NotifyOne wakes a normal waiter if any is parked, else a sleepy waiter,
// else the first conditional slot with a parked waiter.
func (m *WaiterManager) NotifyOne() {
	m.mu.Lock()
	if m.numNormal.Load() > 0 {
		m.normalCond.Signal()
		m.mu.Unlock()
		return
	}
	if m.numSleepy.Load() > 0 {
		m.sleepyCond.Signal()
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	for _, slot := range m.conditional {
		if slot.numWaiting.Load() > 0 {
			slot.mu.Lock()
			slot.cond.Signal()
			slot.mu.Unlock()
			return
		}
	}
}

// NotifyAll wakes every parked waiter in every class.
func (m *WaiterManager) NotifyAll() {
	m.mu.Lock()
	m.normalCond.Broadcast()
	m.sleepyCond.Broadcast()
	m.mu.Unlock()
	for _, slot := range m.conditional {
		slot.mu.Lock()
		slot.cond.Broadcast()
		slot.mu.Unlock()
	}
}

// NotifyConditionalWaiter runs setter (if non-nil, swallowing any panic) then
// wakes every waiter parked on the given slot. The lock/unlock around the
// broadcast is the synchronization fence pairing with the lock a waiter
// holds across its predicate test, guaranteeing no waiter sleeps after its
// condition has been set via a conditional notify.
func (m *WaiterManager) NotifyConditionalWaiter(index uint16, setter func()) {
	slot := m.conditional[m.clampIndex(index)]
	if setter != nil {
		func() {
			defer func() { _ = recover() }()
			setter()
		}()
	}
	slot.mu.Lock()
	slot.cond.Broadcast()
	slot.mu.Unlock()
}

// ShutDown sets the shutdown flag, fences all in-flight waits, then wakes
// every parked waiter. Idempotent.
func (m *WaiterManager) ShutDown() {
	m.shuttingDown.Store(true)
	m.mu.Lock()
	m.mu.Unlock()
	for _, slot := range m.conditional {
		slot.mu.Lock()
		slot.mu.Unlock()
	}
	m.NotifyAll()
}

// IsShuttingDown reports whether ShutDown has been called.
func (m *WaiterManager) IsShuttingDown() bool { return m.shuttingDown.Load() }

// WaitNormal parks as a normal waiter with no timeout.
func (m *WaiterManager) WaitNormal(policy ShutdownPolicy) Result {
	return m.waitClass(&m.numNormal, m.normalCond, time.Time{}, false, policy)
}

// WaitFor parks as a sleepy waiter for up to duration.
func (m *WaiterManager) WaitFor(duration time.Duration, policy ShutdownPolicy) Result {
	return m.waitClass(&m.numSleepy, m.sleepyCond, time.Now().Add(duration), true, policy)
}

// WaitUntil parks as a sleepy waiter until the given deadline.
func (m *WaiterManager) WaitUntil(deadline time.Time, policy ShutdownPolicy) Result {
	return m.waitClass(&m.numSleepy, m.sleepyCond, deadline, true, policy)
}

func (m *WaiterManager) waitClass(counter *atomic.Int32, cond *sync.Cond, deadline time.Time, hasDeadline bool, policy ShutdownPolicy) Result {
	m.mu.Lock()
	if policy == ExitEarly && m.shuttingDown.Load() {
		m.mu.Unlock()
		return ShuttingDown
	}

	var timer *time.Timer
	if hasDeadline {
		d := time.Until(deadline)
		if d < 0 {
			d = 0
		}
		timer = time.AfterFunc(d, func() {
			m.mu.Lock()
			cond.Broadcast()
			m.mu.Unlock()
		})
	}

	counter.Add(1)
	cond.Wait()
	counter.Add(-1)
	if timer != nil {
		timer.Stop()
	}
	m.mu.Unlock()

	if m.shuttingDown.Load() {
		return ShuttingDown
	}
	if hasDeadline && !time.Now().Before(deadline) {
		return Timeout
	}
	return DoneWaiting
}

// ConditionalWait parks on slot index until predicate returns true, the
// manager shuts down, or (depending on the caller) a timeout elapses. A
// panicking predicate is treated as satisfied (fail-safe wake), matching the
// source's "predicate throws means true" rule.
func (m *WaiterManager) ConditionalWait(index uint16, predicate func() bool, policy ShutdownPolicy) Result {
	return m.conditionalWaitImpl(index, predicate, time.Time{}, false, policy)
}

// ConditionalWaitFor is ConditionalWait bounded by duration.
func (m *WaiterManager) ConditionalWaitFor(index uint16, predicate func() bool, duration time.Duration, policy ShutdownPolicy) Result {
	return m.conditionalWaitImpl(index, predicate, time.Now().Add(duration), true, policy)
}

// ConditionalWaitUntil is ConditionalWait bounded by an absolute deadline.
func (m *WaiterManager) ConditionalWaitUntil(index uint16, predicate func() bool, deadline time.Time, policy ShutdownPolicy) Result {
	return m.conditionalWaitImpl(index, predicate, deadline, true, policy)
}

func safePredicate(predicate func() bool) (triggered bool) {
	defer func() {
		if recover() != nil {
			triggered = true
		}
	}()
	return predicate()
}

func (m *WaiterManager) conditionalWaitImpl(index uint16, predicate func() bool, deadline time.Time, hasDeadline bool, policy ShutdownPolicy) Result {
	slot := m.conditional[m.clampIndex(index)]
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if safePredicate(predicate) {
		return ConditionTriggered
	}
	if policy == ExitEarly && m.shuttingDown.Load() {
		return ShuttingDown
	}

	var timer *time.Timer
	if hasDeadline {
		d := time.Until(deadline)
		if d < 0 {
			d = 0
		}
		timer = time.AfterFunc(d, func() {
			slot.mu.Lock()
			slot.cond.Broadcast()
			slot.mu.Unlock()
		})
	}

	slot.numWaiting.Add(1)
	slot.cond.Wait()
	slot.numWaiting.Add(-1)
	if timer != nil {
		timer.Stop()
	}

	if safePredicate(predicate) {
		return ConditionTriggered
	}
	if m.shuttingDown.Load() {
		return ShuttingDown
	}
	if hasDeadline && !time.Now().Before(deadline) {
		return Timeout
	}
	return DoneWaiting
}

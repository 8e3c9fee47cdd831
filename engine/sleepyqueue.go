package engine

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SleepyTaskStatus is the lifecycle state of a task parked in a
// SleepyTaskQueue. A holder of a Reserved reference may only transition it
// to Dead (after moving its contents out) or back to Unclaimed (leaving it
// valid); any other transition breaks the queue's invariants.
type SleepyTaskStatus int32

const (
	Unclaimed SleepyTaskStatus = iota
	Reserved
	Dead
)

type sleepyNode struct {
	task   SimpleTask
	wake   time.Time
	status atomic.Int32
}

func (n *sleepyNode) loadStatus() SleepyTaskStatus { return SleepyTaskStatus(n.status.Load()) }

// unclaim returns a Reserved node to Unclaimed. It is the caller's
// responsibility to only call this on a node it currently holds Reserved.
func (n *sleepyNode) unclaim() { n.status.Store(int32(Unclaimed)) }

// kill marks a Reserved node Dead so maintenance will erase it.
func (n *sleepyNode) kill() { n.status.Store(int32(Dead)) }

// SleepyTaskQueue is a time-indexed multiset of sleepy tasks ordered by wake
// time. All operations serialize on a single mutex; try-variants surface
// contention instead of blocking.
type SleepyTaskQueue struct {
	mu    sync.Mutex
	nodes []*sleepyNode
}

// NewSleepyTaskQueue constructs an empty queue.
func NewSleepyTaskQueue() *SleepyTaskQueue {
	return &SleepyTaskQueue{}
}

func (q *SleepyTaskQueue) insertLocked(task SleepyTask, now time.Time) *sleepyNode {
	resolved, wake := task.Wake.resolve(now)
	task.Wake = resolved
	n := &sleepyNode{task: task.Task, wake: wake}
	i := sort.Search(len(q.nodes), func(i int) bool { return q.nodes[i].wake.After(wake) })
	q.nodes = append(q.nodes, nil)
	copy(q.nodes[i+1:], q.nodes[i:])
	q.nodes[i] = n
	return n
}

// ForcePush inserts task with Unclaimed status, always succeeding.
func (q *SleepyTaskQueue) ForcePush(task SleepyTask, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.insertLocked(task, now)
}

// TryPush inserts task with Unclaimed status unless the queue is contended.
func (q *SleepyTaskQueue) TryPush(task SleepyTask, now time.Time) bool {
	if !q.mu.TryLock() {
		return false
	}
	defer q.mu.Unlock()
	q.insertLocked(task, now)
	return true
}

// trySwap finds the Unclaimed task with the lowest wake time and, if it
// wakes strictly sooner than current (nil meaning "no current task"),
// atomically reserves it and releases current back to Unclaimed. Returns
// the (possibly unchanged) current handle and whether a swap happened.
func (q *SleepyTaskQueue) trySwap(current *sleepyNode) (*sleepyNode, bool) {
	currentWake := int64(math.MaxInt64)
	if current != nil {
		currentWake = current.wake.UnixNano()
	}
	if !q.mu.TryLock() {
		return current, false
	}
	defer q.mu.Unlock()
	for _, cand := range q.nodes {
		switch cand.loadStatus() {
		case Reserved, Dead:
			continue
		}
		if currentWake <= cand.wake.UnixNano() {
			return current, false
		}
		if current != nil {
			current.unclaim()
		}
		cand.status.Store(int32(Reserved))
		return cand, true
	}
	return current, false
}

// tryPerformMaintenance erases Dead entries, skips Reserved ones, and
// extracts every awake Unclaimed entry (in ascending wake-time order),
// stopping at the first Unclaimed entry still asleep.
func (q *SleepyTaskQueue) tryPerformMaintenance(now time.Time) []SimpleTask {
	if !q.mu.TryLock() {
		return nil
	}
	defer q.mu.Unlock()
	var awakened []SimpleTask
	i := 0
	for i < len(q.nodes) {
		n := q.nodes[i]
		switch n.loadStatus() {
		case Reserved:
			i++
			continue
		case Dead:
			q.nodes = append(q.nodes[:i], q.nodes[i+1:]...)
			continue
		}
		if !n.wake.After(now) {
			awakened = append(awakened, n.task)
			q.nodes = append(q.nodes[:i], q.nodes[i+1:]...)
			continue
		}
		break
	}
	return awakened
}

// Package engine implements a work-stealing, priority-aware thread pool with
// deferred ("sleepy") task support. Workers prefer their own queue, fall back
// to stealing from peers at the same priority, then park in a shared waiter
// manager when there is nothing to do.
//
// Priority 0 is the highest. Submission is round-robin across worker-owned
// queues and is biased for cache locality rather than strict fairness.
package engine

package engine

import (
	"time"
)

// ResultKind tags the variant held by a TaskResult.
type ResultKind uint8

const (
	// ResultEmpty means the task produced no continuation.
	ResultEmpty ResultKind = iota
	// ResultSimple means the task produced a SimpleTask continuation.
	ResultSimple
	// ResultSleepy means the task produced a SleepyTask continuation.
	ResultSleepy
	// ResultNotify means the task produced a ScopedNotification to be fired
	// immediately (there is no destructor to defer it to).
	ResultNotify
)

// TaskFunc is the callable body of a task. It must return promptly: the
// worker loop is cooperative and non-preemptive.
type TaskFunc func() TaskResult

// SimpleTask is ready to run as soon as a worker dequeues it.
type SimpleTask struct {
	Priority uint8
	Run      TaskFunc
}

// WakeTime is start_time + duration. A zero StartTime is the "unset"
// sentinel: the engine assigns it to the submission instant the first time
// the sleepy task is observed, so continuations can be built well before
// they are submitted and still express "N from now".
type WakeTime struct {
	StartTime time.Time
	Duration  time.Duration
}

// resolve returns w with StartTime populated (to now, if unset) and the
// absolute instant at which the task becomes eligible to run.
func (w WakeTime) resolve(now time.Time) (resolved WakeTime, wake time.Time) {
	if w.StartTime.IsZero() {
		w.StartTime = now
	}
	return w, w.StartTime.Add(w.Duration)
}

// SleepyTask is eligible to run only once its WakeTime has elapsed.
type SleepyTask struct {
	Task SimpleTask
	Wake WakeTime
}

// TaskResult is the tagged union a task returns: its continuation. The zero
// value is ResultEmpty (no continuation).
type TaskResult struct {
	Kind   ResultKind
	Simple SimpleTask
	Sleepy SleepyTask
	Notify *ScopedNotification
}

// Empty returns the "no continuation" result.
func Empty() TaskResult { return TaskResult{Kind: ResultEmpty} }

// Continue returns a SimpleTask continuation.
func Continue(t SimpleTask) TaskResult { return TaskResult{Kind: ResultSimple, Simple: t} }

// Sleep returns a SleepyTask continuation.
func Sleep(t SleepyTask) TaskResult { return TaskResult{Kind: ResultSleepy, Sleepy: t} }

// Notify returns a ScopedNotification continuation; the engine fires and
// discards it rather than resubmitting anything.
func Notify(n *ScopedNotification) TaskResult { return TaskResult{Kind: ResultNotify, Notify: n} }

// ScopedNotification holds a notifier callable that fires exactly once.
// Go has no destructors, so the "fires on destruction" contract from the
// source design is replaced with an explicit Fire, called by the engine the
// moment a ResultNotify continuation is observed, and available for task
// authors to call directly (e.g. via defer) when a task panics and never
// returns a continuation at all. Take transfers ownership of the notifier
// out of the receiver the way a move would: after Take, the receiver is
// inert and will not fire.
type ScopedNotification struct {
	fn func()
}

// NewScopedNotification wraps fn so it fires at most once.
func NewScopedNotification(fn func()) *ScopedNotification {
	return &ScopedNotification{fn: fn}
}

// Fire invokes the notifier if it has not already fired (or been taken),
// swallowing any panic the notifier raises. Safe to call on a nil receiver.
func (s *ScopedNotification) Fire() {
	if s == nil {
		return
	}
	fn := s.fn
	s.fn = nil
	if fn == nil {
		return
	}
	defer func() { _ = recover() }()
	fn()
}

// Take moves the notifier out of s into a new ScopedNotification, leaving s
// inert (it will not fire).
func (s *ScopedNotification) Take() *ScopedNotification {
	if s == nil {
		return nil
	}
	fn := s.fn
	s.fn = nil
	return &ScopedNotification{fn: fn}
}

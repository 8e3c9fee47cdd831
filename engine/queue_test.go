package engine

import "testing"

func TestTokenQueueForcePushPopEmpty(t *testing.T) {
	q := NewTokenQueue[int](4)
	got := q.ForcePushPop(7)
	if got != 7 {
		t.Fatalf("ForcePushPop on empty queue = %d, want 7", got)
	}
}

func TestTokenQueueForcePushPopNonEmpty(t *testing.T) {
	q := NewTokenQueue[int](4)
	q.ForcePush(1)
	q.ForcePush(2)
	got := q.ForcePushPop(3)
	if got != 1 {
		t.Fatalf("ForcePushPop front = %d, want 1", got)
	}
	for _, want := range []int{2, 3} {
		v, res := q.TryPop()
		if res != Success || v != want {
			t.Fatalf("TryPop = (%d, %v), want (%d, Success)", v, res, want)
		}
	}
}

func TestTokenQueueTryPushFull(t *testing.T) {
	q := NewTokenQueue[int](2)
	if q.TryPush(1) != Success {
		t.Fatal("expected first push to succeed")
	}
	if q.TryPush(2) != Success {
		t.Fatal("expected second push to succeed")
	}
	if q.TryPush(3) != Full {
		t.Fatal("expected third push to report Full")
	}
}

func TestTokenQueueTryPopEmpty(t *testing.T) {
	q := NewTokenQueue[int](2)
	if _, res := q.TryPop(); res != QueueEmpty {
		t.Fatalf("TryPop on empty queue = %v, want QueueEmpty", res)
	}
}

func TestTokenQueueFIFOOrder(t *testing.T) {
	q := NewTokenQueue[int](8)
	for i := 0; i < 5; i++ {
		q.ForcePush(i)
	}
	for i := 0; i < 5; i++ {
		v, res := q.TryPop()
		if res != Success || v != i {
			t.Fatalf("pop %d: got (%d, %v)", i, v, res)
		}
	}
}

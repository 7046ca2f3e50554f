package reqcoord

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestThrottledWithinInterval(t *testing.T) {
	c, mock := newTestCoordinator(t)
	ctx := context.Background()
	op, calls := counter()

	first, err := Throttled(ctx, c, "save", op, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Allowed || first.Value != 1 {
		t.Fatalf("first call = %+v, want allowed with value 1", first)
	}

	mock.Add(1999 * time.Millisecond)
	second, err := Throttled(ctx, c, "save", op, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if second.Allowed {
		t.Errorf("second call allowed within interval")
	}
	if second.Value != 0 {
		t.Errorf("throttled value = %d, want zero value", second.Value)
	}
	if calls() != 1 {
		t.Errorf("op ran %d times, want 1", calls())
	}
}

func TestThrottledAtInterval(t *testing.T) {
	c, mock := newTestCoordinator(t)
	ctx := context.Background()
	op, calls := counter()

	_, _ = Throttled(ctx, c, "save", op, 2*time.Second)
	mock.Add(2 * time.Second)
	res, err := Throttled(ctx, c, "save", op, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if !res.Allowed || res.Value != 2 {
		t.Errorf("call at interval = %+v, want allowed with value 2", res)
	}
	if calls() != 2 {
		t.Errorf("op ran %d times, want 2", calls())
	}
}

func TestThrottledSuppressedCallKeepsWindow(t *testing.T) {
	c, mock := newTestCoordinator(t)
	ctx := context.Background()
	op, _ := counter()

	_, _ = Throttled(ctx, c, "k", op, 2*time.Second) // t=0 allowed
	mock.Add(1500 * time.Millisecond)
	res, _ := Throttled(ctx, c, "k", op, 2*time.Second) // t=1.5 throttled
	if res.Allowed {
		t.Fatal("t=1.5s should be throttled")
	}

	mock.Add(500 * time.Millisecond)
	res, _ = Throttled(ctx, c, "k", op, 2*time.Second) // t=2.0 measured from t=0
	if !res.Allowed {
		t.Error("t=2s should be allowed; the throttled call must not move the window")
	}
}

func TestThrottledFailureConsumesWindow(t *testing.T) {
	c, mock := newTestCoordinator(t)
	ctx := context.Background()
	boom := errors.New("save failed")

	res, err := Throttled(ctx, c, "k", func(context.Context) (int, error) { return 0, boom }, time.Second)
	if err != boom {
		t.Fatalf("error = %v, want op error unchanged", err)
	}
	if res.Allowed {
		t.Error("failed call reported Allowed")
	}

	mock.Add(500 * time.Millisecond)
	res, err = Throttled(ctx, c, "k", func(context.Context) (int, error) { return 1, nil }, time.Second)
	if err != nil || res.Allowed {
		t.Errorf("call after failure got (%+v, %v), want throttled", res, err)
	}
}

func TestThrottledKeysAreIndependent(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	op, calls := counter()

	a, _ := Throttled(ctx, c, "a", op, time.Hour)
	b, _ := Throttled(ctx, c, "b", op, time.Hour)

	if !a.Allowed || !b.Allowed || calls() != 2 {
		t.Errorf("distinct keys should both be allowed: a=%+v b=%+v", a, b)
	}
}

func TestThrottledDefaultInterval(t *testing.T) {
	c, mock := newTestCoordinator(t, WithDefaultInterval(time.Second))
	ctx := context.Background()
	op, _ := counter()

	_, _ = Throttled(ctx, c, "k", op, 0)
	mock.Add(999 * time.Millisecond)
	if res, _ := Throttled(ctx, c, "k", op, 0); res.Allowed {
		t.Error("allowed inside default interval")
	}
	mock.Add(time.Millisecond)
	if res, _ := Throttled(ctx, c, "k", op, -1); !res.Allowed {
		t.Error("throttled after default interval")
	}
}

func TestThrottledConcurrentCallersOnlyOnePasses(t *testing.T) {
	c, _ := newTestCoordinator(t)
	var calls int32
	op := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 1, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Throttled(context.Background(), c, "k", op, time.Hour)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("op ran %d times, want 1", got)
	}
}

func TestResetThrottle(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	op, _ := counter()

	_, _ = Throttled(ctx, c, "a", op, time.Hour)
	_, _ = Throttled(ctx, c, "b", op, time.Hour)

	c.ResetThrottle("a")
	if res, _ := Throttled(ctx, c, "a", op, time.Hour); !res.Allowed {
		t.Error("reset key still throttled")
	}
	if res, _ := Throttled(ctx, c, "b", op, time.Hour); res.Allowed {
		t.Error("other key lost its window")
	}

	c.ClearThrottles()
	if n := c.throttle.len(); n != 0 {
		t.Errorf("throttle table has %d keys after clear, want 0", n)
	}
}

func TestThrottledInvalidInput(t *testing.T) {
	c, _ := newTestCoordinator(t)

	if _, err := Throttled(context.Background(), c, "", func(context.Context) (int, error) { return 0, nil }, time.Second); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("empty key error = %v", err)
	}
	if _, err := Throttled[int](context.Background(), c, "k", nil, time.Second); !errors.Is(err, ErrNilOperation) {
		t.Errorf("nil op error = %v", err)
	}
}

package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLimiterEnforcesWindow(t *testing.T) {
	const n, period = 5, 100 * time.Millisecond
	l := NewLimiter(n, period)
	start := time.Now()
	var admitted []time.Time
	for i := 0; i < 2*n; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		admitted = append(admitted, time.Now())
	}
	if elapsed := admitted[0].Sub(start); elapsed > 20*time.Millisecond {
		t.Fatalf("first call waited %v", elapsed)
	}
	if elapsed := admitted[n].Sub(start); elapsed < 90*time.Millisecond {
		t.Fatalf("call %d admitted after %v, want >= window", n+1, elapsed)
	}
	for i := 0; i+n < len(admitted); i++ {
		if gap := admitted[i+n].Sub(admitted[i]); gap < 80*time.Millisecond {
			t.Fatalf("%d calls within %v starting at call %d", n+1, gap, i)
		}
	}
}

func TestLimiterConcurrentCallers(t *testing.T) {
	l := NewLimiter(3, 50*time.Millisecond)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var admitted []time.Time
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Wait(context.Background()); err != nil {
				t.Errorf("Wait: %v", err)
				return
			}
			mu.Lock()
			admitted = append(admitted, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(admitted) != 9 {
		t.Fatalf("admitted %d calls, want 9", len(admitted))
	}
	first, last := admitted[0], admitted[0]
	for _, a := range admitted {
		if a.Before(first) {
			first = a
		}
		if a.After(last) {
			last = a
		}
	}
	if last.Sub(first) < 90*time.Millisecond {
		t.Fatalf("9 calls at 3/50ms finished within %v", last.Sub(first))
	}
}

func TestLimiterCancel(t *testing.T) {
	l := NewLimiter(1, time.Hour)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}
}

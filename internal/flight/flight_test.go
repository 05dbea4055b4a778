package flight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCache(t *testing.T) {
	t.Run("concurrent calls share one execution", func(t *testing.T) {
		var cache Cache[string]
		var calls atomic.Int32
		release := make(chan struct{})

		const waiters = 8
		results := make([]string, waiters)
		errs := make([]error, waiters)

		var wg sync.WaitGroup
		for i := 0; i < waiters; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, _, err := cache.Do(context.Background(), "icon:abc", func(ctx context.Context) (string, error) {
					calls.Add(1)
					<-release
					return "payload", nil
				})
				results[i] = v
				errs[i] = err
			}(i)
		}

		// Give every goroutine a chance to join the in-flight entry.
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		if got := calls.Load(); got != 1 {
			t.Errorf("expected 1 execution, got %d", got)
		}
		for i := 0; i < waiters; i++ {
			if errs[i] != nil {
				t.Errorf("waiter %d: unexpected error %v", i, errs[i])
			}
			if results[i] != "payload" {
				t.Errorf("waiter %d: expected payload, got %q", i, results[i])
			}
		}
	})

	t.Run("errors fan out to every waiter", func(t *testing.T) {
		var cache Cache[int]
		wantErr := errors.New("fetch failed")
		release := make(chan struct{})

		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, err := cache.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
					<-release
					return 0, wantErr
				})
				errs[i] = err
			}(i)
		}

		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		for i, err := range errs {
			if !errors.Is(err, wantErr) {
				t.Errorf("waiter %d: expected fetch error, got %v", i, err)
			}
		}
	})

	t.Run("entry is removed after resolution", func(t *testing.T) {
		var cache Cache[int]
		var calls atomic.Int32

		for i := 0; i < 3; i++ {
			v, _, err := cache.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
				return int(calls.Add(1)), nil
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v != i+1 {
				t.Errorf("call %d: expected fresh execution result %d, got %d", i, i+1, v)
			}
		}
	})

	t.Run("unrelated keys run in parallel", func(t *testing.T) {
		var cache Cache[string]
		blockA := make(chan struct{})

		go cache.Do(context.Background(), "a", func(ctx context.Context) (string, error) {
			<-blockA
			return "a", nil
		})

		done := make(chan struct{})
		go func() {
			defer close(done)
			cache.Do(context.Background(), "b", func(ctx context.Context) (string, error) {
				return "b", nil
			})
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("key b blocked behind key a")
		}
		close(blockA)
	})

	t.Run("caller context bounds the wait", func(t *testing.T) {
		var cache Cache[string]
		release := make(chan struct{})
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, _, err := cache.Do(ctx, "slow", func(ctx context.Context) (string, error) {
			<-release
			return "", nil
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

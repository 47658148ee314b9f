package concurrency

import (
	"context"
	"sync"
)

type WorkerFn func(ctx context.Context, index int)

// FanOut runs fn over indices [0, tasks) with at most concurrency goroutines
// and waits for all of them. Used for per-item applicability checks.
func FanOut(ctx context.Context, concurrency, tasks int, fn WorkerFn) {
	if tasks <= 0 {
		return
	}
	if concurrency > tasks {
		concurrency = tasks
	}
	if concurrency < 1 {
		concurrency = 1
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indices {
				fn(ctx, idx)
			}
		}()
	}

	for i := 0; i < tasks; i++ {
		select {
		case indices <- i:
		case <-ctx.Done():
			close(indices)
			wg.Wait()
			return
		}
	}
	close(indices)
	wg.Wait()
}

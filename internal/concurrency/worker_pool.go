package concurrency

import (
	"context"
	"sync"
)

// ForEach fans n index-addressed tasks out across at most workers goroutines
// and waits for all of them. fn must not write to shared state beyond its own
// index. A cancelled context stops the remaining tasks from being dispatched.
func ForEach(ctx context.Context, workers, n int, fn func(ctx context.Context, i int)) {
	if n == 0 {
		return
	}
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				fn(ctx, i)
			}
		}()
	}

	for i := 0; i < n; i++ {
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

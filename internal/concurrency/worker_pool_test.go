package concurrency

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForEachVisitsEveryIndexOnce(t *testing.T) {
	const n = 100
	var visits [n]int32

	ForEach(context.Background(), 4, n, func(_ context.Context, i int) {
		atomic.AddInt32(&visits[i], 1)
	})

	for i, v := range visits {
		assert.Equal(t, int32(1), v, "index %d", i)
	}
}

func TestForEachZeroTasks(t *testing.T) {
	called := false
	ForEach(context.Background(), 4, 0, func(_ context.Context, _ int) {
		called = true
	})
	assert.False(t, called)
}

func TestForEachMoreWorkersThanTasks(t *testing.T) {
	var count int32
	ForEach(context.Background(), 16, 3, func(_ context.Context, _ int) {
		atomic.AddInt32(&count, 1)
	})
	assert.Equal(t, int32(3), count)
}

func TestForEachCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var count int32
	ForEach(ctx, 2, 1000, func(_ context.Context, _ int) {
		atomic.AddInt32(&count, 1)
	})
	assert.Less(t, count, int32(1000))
}

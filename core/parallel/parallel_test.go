package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelize_CoversAllItems(t *testing.T) {
	const n = 1000
	hits := make([]int32, n)
	Parallelize(n, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	})
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("item %d visited %d times", i, h)
		}
	}
}

func TestParallelize_Empty(t *testing.T) {
	called := false
	Parallelize(0, func(start, end int) { called = true })
	assert.False(t, called)
}

func TestForEach(t *testing.T) {
	out := make([]int, 64)
	err := ForEach(context.Background(), len(out), func(i int) error {
		out[i] = i * i
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 63*63, out[63])
}

func TestForEach_ReturnsLowestError(t *testing.T) {
	boom := errors.New("boom")
	err := ForEach(context.Background(), 10, func(i int) error {
		if i == 7 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestForEach_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ForEach(ctx, 3, func(i int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

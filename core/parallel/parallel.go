package parallel

import (
	"context"
	"runtime"
	"sync"
)

// Workers returns the number of workers used for the given item count.
func Workers(items int) int {
	n := runtime.NumCPU()
	if n > items {
		n = items // No need for more workers than items
	}
	return n
}

// Parallelize divides the specified total number (items) according to the number of CPU cores,
// and executes the specified function (fn) in parallel for each range (start, end)
func Parallelize(items int, fn func(start, end int)) {
	if items <= 0 {
		return
	}

	numWorkers := Workers(items)

	// Calculate the number of items each worker handles (ceiling division)
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}

// ForEach calls fn for every index in [0, items) using Parallelize and returns
// the error of the lowest failing index. Remaining indices in a chunk are
// skipped once ctx is cancelled or that chunk has failed.
func ForEach(ctx context.Context, items int, fn func(i int) error) error {
	errs := make([]error, items)
	Parallelize(items, func(start, end int) {
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			if err := fn(i); err != nil {
				errs[i] = err
				return
			}
		}
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

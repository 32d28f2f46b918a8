package convolve

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// rowRange is a half-open range of output rows owned by one worker.
type rowRange struct {
	start, end int
}

// numWorkers resolves the configured worker count.
func numWorkers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// partitionRows splits [0, rows) into min(workers, rows) contiguous chunks
// whose sizes differ by at most one.
func partitionRows(rows, workers int) []rowRange {
	n := min(numWorkers(workers), rows)
	if n <= 0 {
		return nil
	}
	chunks := make([]rowRange, n)
	size, extra := rows/n, rows%n
	start := 0
	for k := range chunks {
		end := start + size
		if k < extra {
			end++
		}
		chunks[k] = rowRange{start, end}
		start = end
	}
	return chunks
}

// runChunks calls fn for every chunk with at most workers calls in flight.
// The first error, or a panic inside fn, fails the whole run.
func runChunks(chunks []rowRange, workers int, fn func(k int, c rowRange) error) error {
	var g errgroup.Group
	g.SetLimit(numWorkers(workers))
	for k, c := range chunks {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &WorkerError{Start: c.start, End: c.end, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			if err := fn(k, c); err != nil {
				return &WorkerError{Start: c.start, End: c.end, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

// Package parallel provides a small bulk-synchronous fork-join helper used
// to shard data-parallel loops (BVH energy/gradient accumulation and the
// BCT's inadmissible-pair sum) across a fixed worker count,
// following the chunk-and-WaitGroup pattern common to particle-tree codes.
package parallel

import (
	"runtime"
	"sync"
)

// Range splits [0, n) into contiguous chunks, one per worker, and calls fn
// on each chunk concurrently. It blocks until every chunk has completed.
// When workers <= 1 the loop runs sequentially on the calling goroutine so
// callers get single-threaded determinism on demand.
func Range(n, workers int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	if workers <= 1 {
		fn(0, n)
		return
	}
	if workers > n {
		workers = n
	}

	chunkSize := (n + workers - 1) / workers
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		lo := w * chunkSize
		hi := lo + chunkSize
		if hi > n {
			hi = n
		}
		if lo >= hi {
			wg.Done()
			continue
		}
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

// Chunk splits [0, n) into `workers` contiguous chunks and calls fn with
// each chunk's worker index and [lo, hi) bounds concurrently, blocking
// until all chunks finish. Unlike Range, the worker index is handed to
// fn directly so callers can index per-worker scratch state (e.g. a
// gradient shadow buffer) without recomputing Range's chunking scheme.
func Chunk(n, workers int, fn func(worker, lo, hi int)) {
	if n <= 0 {
		return
	}
	if workers <= 1 {
		fn(0, 0, n)
		return
	}
	if workers > n {
		workers = n
	}

	chunkSize := (n + workers - 1) / workers
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		lo := w * chunkSize
		hi := lo + chunkSize
		if hi > n {
			hi = n
		}
		if lo >= hi {
			wg.Done()
			continue
		}
		go func(worker, lo, hi int) {
			defer wg.Done()
			fn(worker, lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()
}

// Workers returns the default worker count for a Range call, honoring the
// caller's override (parallel=false forces sequential execution).
func Workers(parallel bool) int {
	if !parallel {
		return 1
	}
	return runtime.GOMAXPROCS(0)
}

// ReduceFloat64 runs fn over n items sharded across workers, accumulating a
// per-chunk partial into a shared slice indexed by chunk, then folds the
// partials serially. This keeps the reduction associative-but-not-ordered,
// matching the determinism contract described for BVH energy accumulation.
func ReduceFloat64(n, workers int, fn func(lo, hi int) float64) float64 {
	if n <= 0 {
		return 0
	}
	if workers <= 1 {
		return fn(0, n)
	}
	if workers > n {
		workers = n
	}
	partials := make([]float64, workers)
	chunkSize := (n + workers - 1) / workers
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		lo := w * chunkSize
		hi := lo + chunkSize
		if hi > n {
			hi = n
		}
		if lo >= hi {
			wg.Done()
			continue
		}
		go func(idx, lo, hi int) {
			defer wg.Done()
			partials[idx] = fn(lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()

	total := 0.0
	for _, p := range partials {
		total += p
	}
	return total
}

// GradientBuffers allocates one (n,3)-shaped shadow buffer per worker for
// gradient accumulation, so each goroutine writes to thread-local memory
// and the caller reduces serially afterward instead of using atomics.
type GradientBuffers struct {
	buffers [][][3]float64
	n       int
}

// NewGradientBuffers allocates workers shadow buffers of shape (n, 3).
func NewGradientBuffers(n, workers int) *GradientBuffers {
	if workers < 1 {
		workers = 1
	}
	gb := &GradientBuffers{n: n, buffers: make([][][3]float64, workers)}
	for i := range gb.buffers {
		gb.buffers[i] = make([][3]float64, n)
	}
	return gb
}

// Buffer returns the shadow buffer owned by worker index w.
func (gb *GradientBuffers) Buffer(w int) [][3]float64 {
	return gb.buffers[w]
}

// Reduce sums all shadow buffers into a single (n,3) slice.
func (gb *GradientBuffers) Reduce() [][3]float64 {
	out := make([][3]float64, gb.n)
	for _, buf := range gb.buffers {
		for i, row := range buf {
			out[i][0] += row[0]
			out[i][1] += row[1]
			out[i][2] += row[2]
		}
	}
	return out
}

package classifier

import "sync"

// clampWorkers normalizes a requested worker count against a batch
// size: at least one, at most one per sequence.
func clampWorkers(workers, n int) int {

	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	return workers
}

// runChunks partitions [0, n) into workers contiguous chunks whose
// sizes differ by at most one, and runs fn on each chunk in its own
// goroutine.  Each chunk writes only its own output range, so
// concatenation in chunk order reproduces serial order regardless of
// completion order.  The first chunk error aborts the whole call.
func runChunks(n, workers int, fn func(lo, hi int) error) error {

	if workers <= 1 {
		return fn(0, n)
	}

	errs := make([]error, workers)
	base, rem := n/workers, n%workers

	var wg sync.WaitGroup
	lo := 0
	for w := 0; w < workers; w++ {
		size := base
		if w < rem {
			size++
		}
		hi := lo + size

		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			errs[w] = fn(lo, hi)
		}(w, lo, hi)

		lo = hi
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

package entropy

import (
	"context"
	"log/slog"
	"sync"
)

// Skip records a path that could not be scored.
type Skip struct {
	Path string
	Err  error
}

// CollectResult is the outcome of scoring a list of paths.
// Entropies follows input order with failures removed.
type CollectResult struct {
	Entropies []FileEntropy
	Skipped   []Skip
}

// Collect scores every path with c and drops the ones that fail.
//
// workers <= 1 scores sequentially. Larger values spread the work over a
// bounded pool; the result order is the input order either way. Once ctx is
// cancelled no further files are started and the unscored remainder is
// reported as skipped with ctx.Err().
func Collect(ctx context.Context, c *Calculator, paths []string, workers int) CollectResult {
	type outcome struct {
		fe  FileEntropy
		err error
	}
	outcomes := make([]outcome, len(paths))

	if workers <= 1 {
		for i, p := range paths {
			if err := ctx.Err(); err != nil {
				outcomes[i].err = err
				continue
			}
			outcomes[i].fe, outcomes[i].err = c.Calculate(p)
		}
	} else {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					outcomes[i].fe, outcomes[i].err = c.Calculate(paths[i])
				}
			}()
		}

		for i := range paths {
			if ctx.Err() == nil {
				select {
				case <-ctx.Done():
				case jobs <- i:
					continue
				}
			}
			for j := i; j < len(paths); j++ {
				outcomes[j].err = ctx.Err()
			}
			break
		}
		close(jobs)
		wg.Wait()
	}

	res := CollectResult{Entropies: make([]FileEntropy, 0, len(paths))}
	for i, o := range outcomes {
		if o.err != nil {
			slog.Debug("entropy: skipping file", "path", paths[i], "err", o.err)
			res.Skipped = append(res.Skipped, Skip{Path: paths[i], Err: o.err})
			continue
		}
		res.Entropies = append(res.Entropies, o.fe)
	}
	return res
}

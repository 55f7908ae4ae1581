package scanner

import (
	"context"
	"sync"

	"github.com/netaudit/shapeaudit/internal/audit"
)

// WorkerConfig holds options for the worker pool.
type WorkerConfig struct {
	Threads   int
	Throttler *Throttler // nil = no pacing
	Pauser    *Pauser    // nil = no pause support
}

// RunWorkerPool audits addresses across a fixed number of workers and
// returns a channel of records. Exactly one record is sent per address,
// including addresses left undispatched when ctx is canceled. The channel is
// closed once every record has been sent.
func RunWorkerPool(
	ctx context.Context,
	auditor *Auditor,
	addresses []string,
	cfg WorkerConfig,
) <-chan *audit.Record {
	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}
	addrCh := make(chan string, threads*2)
	resultsCh := make(chan *audit.Record, threads*2)

	var wg sync.WaitGroup

	// Producer: feed addresses; on cancel, settle the rest without dialing.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(addrCh)
		for i, addr := range addresses {
			select {
			case addrCh <- addr:
			case <-ctx.Done():
				for _, rest := range addresses[i:] {
					resultsCh <- auditor.Canceled(rest)
				}
				return
			}
		}
	}()

	// Workers: one device session at a time each.
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range addrCh {
				if err := waitTurn(ctx, cfg); err != nil {
					resultsCh <- auditor.Canceled(addr)
					continue
				}
				resultsCh <- auditor.Audit(ctx, addr, cfg.Throttler)
			}
		}()
	}

	// Closer: when producer and workers finish, close the results channel.
	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	return resultsCh
}

// waitTurn blocks while paused and until the throttler admits a new
// connection.
func waitTurn(ctx context.Context, cfg WorkerConfig) error {
	if cfg.Pauser != nil {
		if err := cfg.Pauser.Wait(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return cfg.Throttler.Wait(ctx)
}

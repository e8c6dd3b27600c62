package proxyfetch

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Race defaults.
const (
	// DefaultConcurrency is the worker pool size when RaceSpec.Concurrency
	// is unset.
	DefaultConcurrency = 15

	// DefaultAttemptTimeout bounds a single attempt when RaceSpec.Timeout
	// is unset.
	DefaultAttemptTimeout = 3 * time.Second
)

// RaceSpec describes one race: a target URL and the candidate proxies to
// try concurrently.
type RaceSpec struct {
	// URL is the target resource.
	URL string

	// Proxies are the candidate proxy addresses. An empty list makes the
	// race return (nil, nil) immediately.
	Proxies []string

	// Headers are merged over the fetcher's HeaderSource defaults,
	// caller values winning on key conflict.
	Headers http.Header

	// Method is the HTTP method for every attempt. Default: GET.
	Method string

	// Concurrency is the worker pool size. The pool is bounded: workers
	// share a queue rather than spawning one goroutine per proxy, which
	// caps resource usage on large proxy lists. Default: 15, clamped to
	// the proxy count.
	Concurrency int

	// Timeout bounds each individual attempt. Default: 3s.
	Timeout time.Duration
}

// RaceFetcher tries many unknown proxies concurrently and returns the
// first success. It optimizes for speed via parallelism: no ordering is
// guaranteed among proxies, and the winner is simply whichever attempt
// completes first with a response.
//
//	fetcher := proxyfetch.NewRaceFetcher(
//	    proxyfetch.WithLogger(logger),
//	)
//
//	res, err := fetcher.Race(ctx, proxyfetch.RaceSpec{
//	    URL:     "https://example.com/page",
//	    Proxies: proxies,
//	})
//	if err != nil {
//	    return err // misuse only
//	}
//	if res == nil {
//	    // every proxy failed — a normal outcome, not an error
//	}
//
// All race state (queue, winner slot) lives only for the duration of one
// Race call; nothing is retained between calls.
type RaceFetcher struct {
	cfg  *internalConfig
	exec *Executor
}

// NewRaceFetcher creates a RaceFetcher with the given options.
func NewRaceFetcher(opts ...Option) *RaceFetcher {
	cfg := newConfig(opts...)
	return &RaceFetcher{cfg: cfg, exec: &Executor{cfg: cfg}}
}

// Race runs a bounded pool of concurrent attempts and returns the first
// success, or nil once every proxy has failed.
//
// The winner claim is exactly-once: a single compare-and-set slot decides
// which success survives; later successes are discarded. Once a winner is
// claimed the shared context is canceled and Race returns only after every
// worker has observably stopped, so no attempt goroutine outlives the call.
//
// Per-proxy failures — including unclassifiable addresses — are logged and
// consumed; they never abort the race.
func (f *RaceFetcher) Race(ctx context.Context, spec RaceSpec) (*Result, error) {
	if len(spec.Proxies) == 0 {
		f.cfg.logger.Warn().Str("url", spec.URL).Msg("no proxies provided to race")
		return nil, nil
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	concurrency := spec.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > len(spec.Proxies) {
		concurrency = len(spec.Proxies)
	}

	headers := mergeHeaders(f.cfg.headerSource(), spec.Headers)

	queue := make(chan string, len(spec.Proxies))
	for _, p := range spec.Proxies {
		queue <- p
	}
	close(queue)

	f.cfg.logger.Debug().
		Str("url", spec.URL).
		Int("proxies", len(spec.Proxies)).
		Int("concurrency", concurrency).
		Msg("starting race")

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var winner atomic.Pointer[Result]

	g := new(errgroup.Group)
	for range concurrency {
		g.Go(func() error {
			f.worker(raceCtx, cancel, &winner, queue, spec.URL, method, headers, timeout)
			return nil
		})
	}
	// Join every worker before returning; a claimed winner cancels the
	// rest, but their goroutines must still be observed to completion.
	_ = g.Wait()

	if res := winner.Load(); res != nil {
		f.cfg.metrics.recordWin("race")
		f.cfg.logger.Info().
			Str("url", spec.URL).
			Str("proxy", res.ProxyUsed.Redacted()).
			Int("status", res.Status).
			Msg("race won")
		return res, nil
	}

	f.cfg.metrics.recordExhausted("race")
	f.cfg.logger.Warn().Str("url", spec.URL).Msg("race failed: no proxy succeeded")
	return nil, nil
}

// worker drains the proxy queue until it is empty, the context is
// canceled, or a winner has been recorded.
func (f *RaceFetcher) worker(
	ctx context.Context,
	cancel context.CancelFunc,
	winner *atomic.Pointer[Result],
	queue <-chan string,
	targetURL, method string,
	headers http.Header,
	timeout time.Duration,
) {
	for {
		if winner.Load() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case addr, ok := <-queue:
			if !ok {
				return
			}

			desc, err := Classify(addr)
			if err != nil {
				f.cfg.logger.Debug().Err(err).Str("proxy", addr).
					Msg("skipping unclassifiable proxy")
				continue
			}

			out, err := f.exec.Execute(ctx, method, targetURL, desc, headers, timeout)
			if err != nil {
				// Even misuse-level errors are scoped to this one
				// proxy; they never abort the race.
				f.cfg.logger.Debug().Err(err).
					Str("proxy", desc.Redacted()).
					Msg("proxy attempt errored")
				continue
			}
			if !out.OK() {
				continue
			}

			res := resultFrom(out.Success, desc, 0, method, method)
			if winner.CompareAndSwap(nil, res) {
				f.cfg.logger.Debug().
					Str("proxy", desc.Redacted()).
					Msg("winner claimed, cancelling remaining attempts")
				cancel()
			} else {
				f.cfg.logger.Debug().
					Str("proxy", desc.Redacted()).
					Msg("discarding success, winner already recorded")
			}
			return
		}
	}
}

package proxyfetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Staged fetch defaults.
const (
	// DefaultStageRetries is the per-stage retry count when unset.
	DefaultStageRetries = 3

	// DefaultInitTimeout seeds the elongated GET fallback timeout.
	DefaultInitTimeout = 3 * time.Second
)

// FetchSpec describes one staged fetch: a target URL and up to two
// distinguished proxies, one per transport family.
type FetchSpec struct {
	// URL is the target resource.
	URL string

	// Method is the requested HTTP method. Default: GET. A HEAD request
	// may degrade to GET; Result.FinalMethod records what actually ran.
	Method string

	// HTTPProxy is an optional HTTP-family proxy address.
	HTTPProxy string

	// SOCKSProxy is an optional SOCKS-family proxy address.
	// At least one of HTTPProxy and SOCKSProxy must be set.
	SOCKSProxy string

	// HTTPRetries bounds the HEAD retry stage and scales the elongated
	// GET fallback timeout. Default: 3.
	HTTPRetries int

	// SOCKSRetries bounds the SOCKS GET retry stage. Default: 3.
	SOCKSRetries int

	// Headers are merged over the fetcher's HeaderSource defaults,
	// caller values winning on key conflict.
	Headers http.Header

	// InitTimeout seeds the elongated GET fallback: that single attempt
	// gets InitTimeout × HTTPRetries. Default: 3s.
	InitTimeout time.Duration
}

// StagedFetcher tries a small, ordered set of known proxies with typed
// retry/backoff policies per stage. Use it when you have one or two
// trusted proxies and want resilience through retries rather than speed
// through parallelism.
//
// Stage order, stopping at the first success:
//
//  1. Probe the HTTP proxy against a known test endpoint; an unreachable
//     HTTP proxy is discarded for the rest of the call.
//  2. If the method is HEAD: retry HEAD through the HTTP proxy up to
//     HTTPRetries times, each attempt's timeout computed by the backoff
//     policy and with backoff sleeps between attempts.
//  3. One elongated GET through the HTTP proxy with a timeout of
//     InitTimeout × HTTPRetries — a single long attempt, not a loop.
//  4. Retry GET through the SOCKS proxy up to SOCKSRetries times with the
//     same backoff discipline as stage 2.
//
// Unlike the race fetcher there is no cancellation between stages: once a
// stage is entered it runs to completion or success. Ordering is strict
// and deterministic.
type StagedFetcher struct {
	cfg    *internalConfig
	exec   *Executor
	prober Prober
}

// NewStagedFetcher creates a StagedFetcher with the given options.
func NewStagedFetcher(opts ...Option) *StagedFetcher {
	cfg := newConfig(opts...)
	f := &StagedFetcher{cfg: cfg, exec: &Executor{cfg: cfg}}
	f.prober = cfg.prober
	if f.prober == nil {
		f.prober = &httpProber{cfg: cfg}
	}
	return f
}

// Fetch runs the staged strategy and returns the first success, or nil
// once every stage is exhausted.
//
// Only configuration mistakes produce an error: ErrNoProxy when neither
// proxy is set, or an *UnsupportedSchemeError when a supplied proxy
// address cannot be classified. Timeouts and transport failures within a
// stage are logged and consumed.
func (f *StagedFetcher) Fetch(ctx context.Context, spec FetchSpec) (*Result, error) {
	if spec.HTTPProxy == "" && spec.SOCKSProxy == "" {
		return nil, ErrNoProxy
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	httpRetries := spec.HTTPRetries
	if httpRetries <= 0 {
		httpRetries = DefaultStageRetries
	}
	socksRetries := spec.SOCKSRetries
	if socksRetries <= 0 {
		socksRetries = DefaultStageRetries
	}
	initTimeout := spec.InitTimeout
	if initTimeout <= 0 {
		initTimeout = DefaultInitTimeout
	}

	headers := mergeHeaders(f.cfg.headerSource(), spec.Headers)

	var httpProxy *ProxyDescriptor
	if spec.HTTPProxy != "" {
		desc, err := Classify(spec.HTTPProxy)
		if err != nil {
			return nil, err
		}
		if f.prober.Probe(ctx, desc, f.cfg.probeURL, f.cfg.probeTimeout) {
			httpProxy = &desc
		} else {
			// Demoted for the rest of this call, never revisited.
			f.cfg.logger.Debug().
				Str("proxy", desc.Redacted()).
				Msg("HTTP proxy failed validation, discarding for this fetch")
		}
	}

	var socksProxy *ProxyDescriptor
	if spec.SOCKSProxy != "" {
		desc, err := Classify(spec.SOCKSProxy)
		if err != nil {
			return nil, err
		}
		socksProxy = &desc
	}

	// Stage 2: HEAD retries through the HTTP proxy.
	if httpProxy != nil && method == http.MethodHead {
		if res := f.retryStage(ctx, stageArgs{
			name:          "http-head",
			method:        http.MethodHead,
			proxy:         *httpProxy,
			url:           spec.URL,
			headers:       headers,
			retries:       httpRetries,
			initialMethod: method,
		}); res != nil {
			f.cfg.metrics.recordWin("staged")
			return res, nil
		}
	}

	// Stage 3: one elongated GET through the HTTP proxy, covering both
	// the HEAD→GET degradation path and plain GET requests.
	if httpProxy != nil {
		timeout := initTimeout * time.Duration(httpRetries)
		out, err := f.exec.Execute(ctx, http.MethodGet, spec.URL, *httpProxy, headers, timeout)
		switch {
		case err != nil:
			f.cfg.logger.Error().Err(err).
				Str("proxy", httpProxy.Redacted()).
				Msg("unexpected error during HTTP GET fallback")
		case out.OK():
			f.cfg.metrics.recordWin("staged")
			f.cfg.logger.Info().
				Str("url", spec.URL).
				Str("proxy", httpProxy.Redacted()).
				Msg("fetched via HTTP GET fallback")
			return resultFrom(out.Success, *httpProxy, 0, method, http.MethodGet), nil
		}
	}

	// Stage 4: SOCKS GET retries.
	if socksProxy != nil {
		if res := f.retryStage(ctx, stageArgs{
			name:          "socks-get",
			method:        http.MethodGet,
			proxy:         *socksProxy,
			url:           spec.URL,
			headers:       headers,
			retries:       socksRetries,
			initialMethod: method,
		}); res != nil {
			f.cfg.metrics.recordWin("staged")
			return res, nil
		}
	}

	f.cfg.metrics.recordExhausted("staged")
	f.cfg.logger.Warn().Str("url", spec.URL).Msg("staged fetch failed: every stage exhausted")
	return nil, nil
}

// stageArgs bundles the parameters of one retry stage.
type stageArgs struct {
	name          string
	method        string
	proxy         ProxyDescriptor
	url           string
	headers       http.Header
	retries       int
	initialMethod string
}

// retryStage runs up to retries attempts of one method through one proxy,
// with per-attempt timeouts and inter-attempt sleeps both drawn from the
// backoff policy. Returns nil when the stage is exhausted or aborted.
func (f *StagedFetcher) retryStage(ctx context.Context, args stageArgs) *Result {
	policy := f.cfg.backoff.Clone()
	attempt := 0

	operation := func() (*Result, error) {
		timeout := policy.DelayFor(attempt)

		out, err := f.exec.Execute(ctx, args.method, args.url, args.proxy, args.headers, timeout)
		if err != nil {
			// Transport construction or request building broke; more
			// attempts through the same proxy cannot help.
			return nil, backoff.Permanent(err)
		}
		if out.Failure != nil {
			f.cfg.logger.Debug().
				Str("stage", args.name).
				Int("attempt", attempt).
				Str("proxy", args.proxy.Redacted()).
				Stringer("kind", out.Failure.Kind).
				Msg("stage attempt failed")
			failed := attempt
			attempt++
			return nil, fmt.Errorf("%s attempt %d: %s", args.name, failed, out.Failure.Message)
		}

		return resultFrom(out.Success, args.proxy, attempt, args.initialMethod, args.method), nil
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(args.retries)),
	)
	if err != nil {
		f.cfg.logger.Debug().
			Str("stage", args.name).
			Err(err).
			Msg("stage exhausted")
		return nil
	}

	f.cfg.logger.Info().
		Str("stage", args.name).
		Str("url", args.url).
		Str("proxy", args.proxy.Redacted()).
		Int("attempt", res.Attempts).
		Msg("stage succeeded")
	return res
}

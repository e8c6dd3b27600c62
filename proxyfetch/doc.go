// Package proxyfetch fetches a single target resource over HTTP through an
// untrusted pool of forward proxies, tolerating proxy failure, proxy
// misbehavior and network instability.
//
// # Features
//
//   - Two complementary strategies: a concurrent race over many unknown
//     proxies, and a staged fallback over one or two trusted proxies
//   - One shared request executor with per-family transports (HTTP tunnel
//     vs. SOCKS) and normalized success/failure outcomes
//   - Redirect-origin integrity checking against proxy hijacking
//   - Exponential backoff with jitter, pluggable into cenkalti/backoff
//   - Randomized browser header profiles
//   - zerolog logging, optional Prometheus metrics, per-attempt OTel spans
//
// # Racing many unknown proxies
//
// Use RaceFetcher when you have a large list of proxies of unknown quality
// and want the first good response fast:
//
//	fetcher := proxyfetch.NewRaceFetcher(
//	    proxyfetch.WithLogger(logger),
//	)
//
//	res, err := fetcher.Race(ctx, proxyfetch.RaceSpec{
//	    URL:         "https://example.com/page",
//	    Proxies:     proxies,
//	    Concurrency: 20,
//	    Timeout:     3 * time.Second,
//	})
//
// A nil result with a nil error means every proxy failed; that is a normal
// outcome, not an exceptional one.
//
// # Staged fallback over trusted proxies
//
// Use StagedFetcher when you have one HTTP-family and/or one SOCKS-family
// proxy you mostly trust, and want resilience through ordered retries:
//
//	fetcher := proxyfetch.NewStagedFetcher(
//	    proxyfetch.WithLogger(logger),
//	)
//
//	res, err := fetcher.Fetch(ctx, proxyfetch.FetchSpec{
//	    URL:        "https://example.com/doc.pdf",
//	    Method:     http.MethodHead,
//	    HTTPProxy:  "http://10.0.0.1:8080",
//	    SOCKSProxy: "socks5://10.0.0.2:1080",
//	})
//
// When a HEAD request degrades to GET, Result.FinalMethod records it.
//
// # Origin verification
//
// A misbehaving proxy can answer with content from a different host than
// the one requested. With ExecutorConfig.VerifyOrigin enabled (the
// default), any attempt whose final response hostname differs from the
// requested hostname fails with KindOriginMismatch instead of surfacing
// the hijacked content.
//
// No state outlives a fetch call: proxy descriptors, queues and winner
// slots are all call-scoped, and no proxy health is tracked between calls.
package proxyfetch

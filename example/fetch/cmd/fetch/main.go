// Command fetch demonstrates both fetch strategies against a live target.
//
// Race a list of unvetted proxies:
//
//	fetch -url https://example.com/ -proxies http://1.2.3.4:8080,socks5://5.6.7.8:1080
//
// Staged fetch through known proxies:
//
//	fetch -mode staged -url https://example.com/ \
//	    -http-proxy http://1.2.3.4:8080 -socks-proxy socks5://5.6.7.8:1080 -method HEAD
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tea-kettles/scrapelib-proxy/example/fetch/internal/config"
	"github.com/tea-kettles/scrapelib-proxy/example/fetch/internal/telemetry"
	"github.com/tea-kettles/scrapelib-proxy/proxyfetch"
)

func main() {
	var (
		mode       = flag.String("mode", "race", "fetch strategy: race or staged")
		targetURL  = flag.String("url", config.DefaultTargetURL, "target URL to fetch")
		proxyList  = flag.String("proxies", "", "comma-separated proxy URLs (race mode)")
		httpProxy  = flag.String("http-proxy", "", "HTTP proxy URL (staged mode)")
		socksProxy = flag.String("socks-proxy", "", "SOCKS proxy URL (staged mode)")
		method     = flag.String("method", http.MethodGet, "HTTP method")
		timeout    = flag.Duration("timeout", config.DefaultAttemptTimeout*time.Second, "per-attempt timeout")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().Level(zerolog.DebugLevel)

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up OTel")
	}
	defer shutdownTracing(ctx)

	// Serve the fetch metrics alongside the run.
	registry := prometheus.NewRegistry()
	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		logger.Info().Str("addr", config.MetricsPort).Msg("serving Prometheus metrics")
		if err := http.ListenAndServe(config.MetricsPort, nil); err != nil {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	opts := []proxyfetch.Option{
		proxyfetch.WithLogger(logger),
		proxyfetch.WithMetrics(registry),
	}

	var res *proxyfetch.Result

	switch *mode {
	case "race":
		proxies := splitProxies(*proxyList)
		if len(proxies) == 0 {
			logger.Fatal().Msg("race mode needs -proxies")
		}

		fetcher := proxyfetch.NewRaceFetcher(opts...)
		res, err = fetcher.Race(ctx, proxyfetch.RaceSpec{
			URL:         *targetURL,
			Proxies:     proxies,
			Method:      *method,
			Concurrency: config.DefaultConcurrency,
			Timeout:     *timeout,
		})

	case "staged":
		fetcher := proxyfetch.NewStagedFetcher(opts...)
		res, err = fetcher.Fetch(ctx, proxyfetch.FetchSpec{
			URL:         *targetURL,
			Method:      *method,
			HTTPProxy:   *httpProxy,
			SOCKSProxy:  *socksProxy,
			InitTimeout: *timeout,
		})

	default:
		logger.Fatal().Str("mode", *mode).Msg("unknown mode")
	}

	if err != nil {
		logger.Fatal().Err(err).Msg("fetch misconfigured")
	}
	if res == nil {
		logger.Error().Msg("every proxy failed")
		os.Exit(1)
	}

	fmt.Printf("fetched %s\n", res.FinalURL)
	fmt.Printf("  status:  %d\n", res.Status)
	fmt.Printf("  proxy:   %s (%s)\n", res.ProxyUsed.Redacted(), res.ProxyUsed.Family)
	fmt.Printf("  method:  %s (requested %s)\n", res.FinalMethod, res.InitialMethod)
	fmt.Printf("  retries: %d\n", res.Attempts)
	if res.IsText {
		preview := res.Text
		if len(preview) > 200 {
			preview = preview[:200] + "…"
		}
		fmt.Printf("  body:    %s\n", preview)
	} else {
		fmt.Printf("  body:    %d raw bytes\n", len(res.Body))
	}
}

func splitProxies(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

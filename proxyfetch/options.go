package proxyfetch

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/tea-kettles/scrapelib-proxy/proxyfetch"
)

// ExecutorConfig bundles the per-executor request behavior knobs.
// Use DefaultExecutorConfig() to get a properly initialized configuration,
// then modify specific fields as needed; the zero value disables everything,
// including TLS verification, which is almost never what you want.
//
// Example:
//
//	cfg := proxyfetch.DefaultExecutorConfig()
//	cfg.VerifyTLS = false // intentionally targeting an untrusted host
//
//	exec := proxyfetch.NewExecutor(
//	    proxyfetch.WithExecutorConfig(cfg),
//	)
type ExecutorConfig struct {
	// VerifyTLS enables TLS certificate verification on the target
	// connection. Disable only when intentionally fetching from hosts
	// with broken or self-signed certificates.
	//
	// Default: true
	VerifyTLS bool

	// FollowRedirects enables following redirect responses. When false,
	// the first redirect response is returned as-is.
	//
	// Default: true
	FollowRedirects bool

	// MaxRedirects caps the redirect hop count when FollowRedirects is
	// enabled. Exceeding it fails the attempt.
	//
	// Default: 10
	MaxRedirects int

	// VerifyOrigin enables the post-redirect origin integrity check:
	// if the final response hostname differs from the requested hostname
	// the attempt fails with KindOriginMismatch. This defends against a
	// proxy silently serving content from a different origin.
	//
	// Default: true
	VerifyOrigin bool

	// DialTimeout is the maximum time to establish the TCP connection
	// to the proxy.
	//
	// Default: 5s
	DialTimeout time.Duration
}

// DefaultExecutorConfig returns the production defaults: TLS verification
// on, redirects followed up to 10 hops, origin verification on.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		VerifyTLS:       true,
		FollowRedirects: true,
		MaxRedirects:    10,
		VerifyOrigin:    true,
		DialTimeout:     5 * time.Second,
	}
}

// HeaderSource supplies the default header set merged under caller-supplied
// headers. The package default is RandomHeaders.
type HeaderSource func() http.Header

// TransportFactory builds the http.RoundTripper used for one attempt
// through the given proxy. Tests substitute this to avoid real network I/O.
type TransportFactory func(proxy ProxyDescriptor, cfg ExecutorConfig) (http.RoundTripper, error)

// internalConfig holds all configuration shared by the executor and the
// two fetchers.
type internalConfig struct {
	execCfg ExecutorConfig

	logger zerolog.Logger

	headerSource HeaderSource

	prober Prober

	transportFactory TransportFactory

	tracerProvider trace.TracerProvider
	tracer         trace.Tracer

	metrics *fetchMetrics

	backoff *BackoffPolicy

	probeURL     string
	probeTimeout time.Duration
}

// newConfig creates an internal config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		execCfg:        DefaultExecutorConfig(),
		logger:         zerolog.Nop(),
		headerSource:   RandomHeaders,
		tracerProvider: otel.GetTracerProvider(),
		backoff:        NewBackoffPolicy(),
		probeURL:       DefaultProbeURL,
		probeTimeout:   DefaultProbeTimeout,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.transportFactory == nil {
		cfg.transportFactory = proxyTransport
	}
	cfg.tracer = cfg.tracerProvider.Tracer(scope)

	return cfg
}

// Option configures the executor and fetchers.
type Option func(*internalConfig)

// WithExecutorConfig sets the request behavior configuration.
// Start from DefaultExecutorConfig() and customize as needed.
func WithExecutorConfig(c ExecutorConfig) Option {
	return func(cfg *internalConfig) {
		cfg.execCfg = c
	}
}

// WithLogger sets the zerolog logger used for attempt and lifecycle events.
//
// The default is a no-op logger. Per-attempt outcomes log at debug level,
// winner claims at info, total exhaustion at warn.
//
// Example:
//
//	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
//	fetcher := proxyfetch.NewRaceFetcher(
//	    proxyfetch.WithLogger(logger),
//	)
func WithLogger(l zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.logger = l
	}
}

// WithHeaderSource sets the supplier of default request headers.
// Caller-supplied headers always win over the source's on key conflict.
//
// The default is RandomHeaders, which produces a randomized plausible
// browser header profile per call.
func WithHeaderSource(s HeaderSource) Option {
	return func(cfg *internalConfig) {
		cfg.headerSource = s
	}
}

// WithProber sets the reachability prober used by the staged fetcher's
// HTTP-proxy validation stage. The default probes DefaultProbeURL through
// the proxy and accepts a 200 response.
func WithProber(p Prober) Option {
	return func(cfg *internalConfig) {
		cfg.prober = p
	}
}

// WithProbeEndpoint overrides the test URL and timeout used by the default
// prober.
func WithProbeEndpoint(url string, timeout time.Duration) Option {
	return func(cfg *internalConfig) {
		cfg.probeURL = url
		cfg.probeTimeout = timeout
	}
}

// WithTransportFactory replaces the per-proxy transport construction.
//
// Use this to stub network behavior in tests:
//
//	mock := proxyfetch.NewMockTransport().StubResponse(200, "ok")
//	exec := proxyfetch.NewExecutor(
//	    proxyfetch.WithTransportFactory(
//	        func(proxyfetch.ProxyDescriptor, proxyfetch.ExecutorConfig) (http.RoundTripper, error) {
//	            return mock, nil
//	        },
//	    ),
//	)
func WithTransportFactory(f TransportFactory) Option {
	return func(cfg *internalConfig) {
		cfg.transportFactory = f
	}
}

// WithBackoffPolicy sets the retry delay policy used by the staged fetcher.
// The default is NewBackoffPolicy().
func WithBackoffPolicy(p *BackoffPolicy) Option {
	return func(cfg *internalConfig) {
		cfg.backoff = p
	}
}

// WithMetrics registers Prometheus counters for attempts, failures by kind,
// race wins and exhaustions on the given registerer.
//
// Example:
//
//	fetcher := proxyfetch.NewRaceFetcher(
//	    proxyfetch.WithMetrics(prometheus.DefaultRegisterer),
//	)
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *internalConfig) {
		cfg.metrics = newFetchMetrics(reg)
	}
}

// WithTracerProvider sets a custom OpenTelemetry TracerProvider for the
// per-attempt spans. If not called, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.tracerProvider = tp
	}
}

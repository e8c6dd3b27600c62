package config

const (
	// Fetch configuration
	DefaultTargetURL      = "https://example.com/"
	DefaultConcurrency    = 10
	DefaultAttemptTimeout = 5 // seconds

	// Server configuration
	MetricsPort = ":2112"

	// OpenTelemetry configuration
	OTLPEndpoint   = "localhost:4317"
	ServiceName    = "scrapelib-fetch-example"
	ServiceVersion = "0.1.0"
)

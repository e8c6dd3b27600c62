package proxyfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Executor performs exactly one proxy-routed HTTP attempt and normalizes
// the result into an Outcome. It holds no retry logic; retries are the
// callers' responsibility.
//
// Create an Executor with NewExecutor():
//
//	exec := proxyfetch.NewExecutor(
//	    proxyfetch.WithLogger(logger),
//	)
//
//	desc, _ := proxyfetch.Classify("http://10.0.0.1:8080")
//	out, err := exec.Execute(ctx, http.MethodGet,
//	    "https://example.com/page", desc, nil, 3*time.Second)
//
// The returned error is non-nil only for misuse: an unbuildable request or
// a proxy address no transport can be constructed for. Every expected
// network failure — timeout, refused connection, TLS breakage, origin
// mismatch — comes back as Outcome.Failure with a nil error, so callers can
// treat them as data rather than control flow.
type Executor struct {
	cfg *internalConfig
}

// NewExecutor creates an Executor with the given options applied over
// DefaultExecutorConfig().
func NewExecutor(opts ...Option) *Executor {
	return &Executor{cfg: newConfig(opts...)}
}

// Execute performs one HTTP attempt through the given proxy.
//
// The timeout is a hard wall-clock bound on the whole attempt: connect,
// TLS, response headers and body read. A timeout of zero means no bound
// beyond ctx.
//
// When headers is nil the executor's HeaderSource supplies a default set.
// A Success outcome with a 4xx/5xx Status means the proxy worked and the
// target itself errored; callers must not conflate that with a Failure.
func (e *Executor) Execute(
	ctx context.Context,
	method string,
	targetURL string,
	proxy ProxyDescriptor,
	headers http.Header,
	timeout time.Duration,
) (Outcome, error) {
	if method == "" {
		method = http.MethodGet
	}
	if headers == nil {
		headers = e.cfg.headerSource()
	}

	transport, err := e.cfg.transportFactory(proxy, e.cfg.execCfg)
	if err != nil {
		return Outcome{}, err
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("proxyfetch: build request for %q: %w", targetURL, err)
	}
	req.Header = headers.Clone()

	client := &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: e.redirectPolicy(),
	}

	ctx, span := e.cfg.tracer.Start(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("server.address", req.URL.Hostname()),
			attribute.String("proxy.family", proxy.Family.String()),
			attribute.String("proxy.address", proxy.Redacted()),
		),
	)
	defer span.End()

	e.cfg.logger.Debug().
		Str("method", method).
		Str("url", targetURL).
		Str("proxy", proxy.Redacted()).
		Stringer("family", proxy.Family).
		Dur("timeout", timeout).
		Msg("submitting request through proxy")

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	e.cfg.metrics.recordAttempt(proxy.Family, method, elapsed)

	if err != nil {
		return e.failure(span, method, targetURL, proxy, err), nil
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL

	if e.cfg.execCfg.VerifyOrigin {
		if mismatch := checkOrigin(req.URL, finalURL); mismatch != nil {
			io.Copy(io.Discard, resp.Body)
			e.cfg.logger.Warn().
				Str("expected_host", mismatch.ExpectedHost).
				Str("actual_host", mismatch.ActualHost).
				Str("final_url", mismatch.FinalURL).
				Str("proxy", proxy.Redacted()).
				Msg("origin mismatch after redirects")
			span.RecordError(mismatch)
			span.SetStatus(codes.Error, mismatch.Error())
			e.cfg.metrics.recordFailure(proxy.Family, KindOriginMismatch)
			return Outcome{Failure: &Failure{
				Kind:    KindOriginMismatch,
				Message: mismatch.Error(),
				URL:     targetURL,
				Proxy:   proxy.Address,
			}}, nil
		}
	}

	if e.cfg.execCfg.FollowRedirects && finalURL.String() != targetURL {
		e.cfg.logger.Debug().
			Str("url", targetURL).
			Str("final_url", finalURL.String()).
			Msg("redirects followed")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return e.failure(span, method, targetURL, proxy, err), nil
	}

	contentType := resp.Header.Get("Content-Type")
	payload := materialize(body, contentType, finalURL.String(), resp.StatusCode, resp.Header.Clone())
	if isTextContentType(contentType) && !payload.IsText {
		e.cfg.logger.Warn().
			Str("url", finalURL.String()).
			Msg("text content-type but body is not valid UTF-8, keeping raw bytes")
	}

	e.cfg.logger.Debug().
		Str("method", method).
		Str("url", finalURL.String()).
		Int("status", resp.StatusCode).
		Str("content_type", contentType).
		Dur("elapsed", elapsed).
		Int("bytes", len(body)).
		Msg("response received")

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	return Outcome{Success: payload}, nil
}

// failure classifies a transport-level error into a Failure outcome,
// logging TLS certificate problems distinctly from other breakage.
func (e *Executor) failure(
	span trace.Span,
	method, targetURL string,
	proxy ProxyDescriptor,
	err error,
) Outcome {
	kind := classifyError(err)

	if kind == KindTLS {
		e.cfg.logger.Info().
			Err(err).
			Str("url", targetURL).
			Str("proxy", proxy.Redacted()).
			Msg("TLS verification failed; set ExecutorConfig.VerifyTLS=false " +
				"when intentionally targeting an untrusted host")
	} else {
		e.cfg.logger.Debug().
			Err(err).
			Str("method", method).
			Str("url", targetURL).
			Str("proxy", proxy.Redacted()).
			Stringer("kind", kind).
			Msg("attempt failed")
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.cfg.metrics.recordFailure(proxy.Family, kind)

	return Outcome{Failure: &Failure{
		Kind:    kind,
		Message: err.Error(),
		URL:     targetURL,
		Proxy:   proxy.Address,
	}}
}

// redirectPolicy returns the CheckRedirect hook matching the executor's
// configuration.
func (e *Executor) redirectPolicy() func(*http.Request, []*http.Request) error {
	cfg := e.cfg.execCfg
	return func(req *http.Request, via []*http.Request) error {
		if !cfg.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= cfg.MaxRedirects {
			return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
		}
		return nil
	}
}

// checkOrigin compares request and final-response hostnames, returning a
// mismatch error when they differ.
func checkOrigin(requested, final *url.URL) *OriginMismatchError {
	expected := requested.Hostname()
	actual := final.Hostname()
	if expected == actual {
		return nil
	}
	return &OriginMismatchError{
		ExpectedHost: expected,
		ActualHost:   actual,
		FinalURL:     final.String(),
	}
}

package proxyfetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrNoProxy is returned by the staged fetcher when neither an HTTP nor a
// SOCKS proxy was supplied. It is a configuration error, not a fetch failure.
var ErrNoProxy = errors.New("proxyfetch: at least one of HTTPProxy or SOCKSProxy must be provided")

// OriginMismatchError reports that the hostname of the final response URL
// differs from the hostname of the requested URL. A proxy silently serving
// content from a different origin is a hijack signal, not a normal redirect,
// so origin-verifying executors surface this as a failure regardless of the
// HTTP status.
type OriginMismatchError struct {
	// ExpectedHost is the hostname of the original request URL.
	ExpectedHost string

	// ActualHost is the hostname of the final response URL.
	ActualHost string

	// FinalURL is the full final response URL.
	FinalURL string
}

// Error implements the error interface.
func (e *OriginMismatchError) Error() string {
	return fmt.Sprintf(
		"proxyfetch: expected host %q but got %q from response URL %q; possible proxy hijack",
		e.ExpectedHost,
		e.ActualHost,
		e.FinalURL,
	)
}

// classifyError maps a transport-level error to a FailureKind.
//
// Classification order matters: context cancellation is checked before the
// generic net.Error timeout test because a canceled request often surfaces
// as a timeout-flavored url.Error.
func classifyError(err error) FailureKind {
	if err == nil {
		return KindOther
	}

	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}

	if isTLSError(err) {
		return KindTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return KindConnection
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return KindMalformed
	}

	// Fallback for wrapped errors from third-party dialers where the
	// typed checks above do not reach the root cause.
	return classifyByPattern(err)
}

// classifyByPattern is a string-matching fallback for errors whose chains
// hide the underlying cause from errors.Is/As.
func classifyByPattern(err error) FailureKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "timeout awaiting"),
		strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "no route to host"):
		return KindConnection
	case strings.Contains(msg, "x509:"),
		strings.Contains(msg, "tls:"),
		strings.Contains(msg, "certificate"):
		return KindTLS
	case strings.Contains(msg, "malformed"),
		strings.Contains(msg, "bad response"),
		strings.Contains(msg, "invalid header"):
		return KindMalformed
	default:
		return KindOther
	}
}

// isTLSError reports whether err stems from TLS handshake or certificate
// verification, which gets a distinct log line from the executor.
func isTLSError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return true
	}
	var recordErr tls.RecordHeaderError
	return errors.As(err, &recordErr)
}

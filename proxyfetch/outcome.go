package proxyfetch

import (
	"net/http"
	"strings"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

// FailureKind categorizes a failed fetch attempt.
//
// Kinds let callers distinguish "the proxy or network broke" (retry with a
// different proxy) from "the proxy hijacked us" (drop the proxy) without
// string-matching error messages.
type FailureKind int

const (
	// KindTimeout means the attempt exceeded its wall-clock timeout.
	KindTimeout FailureKind = iota + 1

	// KindConnection means the connection was refused, reset or aborted.
	KindConnection

	// KindTLS means the TLS handshake or certificate verification failed.
	KindTLS

	// KindMalformed means the peer sent an unparseable HTTP response.
	KindMalformed

	// KindOriginMismatch means the final response came from a different
	// host than requested. See OriginMismatchError.
	KindOriginMismatch

	// KindCanceled means the attempt's context was canceled, typically
	// because another racing attempt already won.
	KindCanceled

	// KindOther covers any remaining transport-level failure.
	KindOther
)

// String returns the kind name for logging and metrics labels.
func (k FailureKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindTLS:
		return "tls"
	case KindMalformed:
		return "malformed"
	case KindOriginMismatch:
		return "origin_mismatch"
	case KindCanceled:
		return "canceled"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Payload is the materialized response of a successful attempt.
//
// A Payload with a 4xx or 5xx Status is still a success at this layer: the
// proxy was reachable and relayed a real response from the target. Only
// transport-level breakage produces a Failure instead.
type Payload struct {
	// Body is the raw response body.
	Body []byte

	// Text is the body decoded as text. Only set when IsText is true.
	Text string

	// IsText reports whether the Content-Type indicated text-like content
	// (text/*, JSON or XML families) and the body decoded cleanly as UTF-8.
	IsText bool

	// FinalURL is the URL of the final response after any redirects.
	FinalURL string

	// Status is the HTTP status code of the final response.
	Status int

	// Header holds the final response headers.
	Header http.Header
}

// DecodeJSON unmarshals the payload body into target.
func (p *Payload) DecodeJSON(target any) error {
	return json.Unmarshal(p.Body, target)
}

// Failure describes a failed attempt: transport breakage, timeout, or an
// origin mismatch. It carries the raw target URL and proxy address so a
// caller aggregating many attempts can still tell them apart.
type Failure struct {
	// Kind categorizes the failure.
	Kind FailureKind

	// Message is the underlying error text.
	Message string

	// URL is the target URL of the attempt (the requested one, not a
	// final URL — there is no final URL on failure).
	URL string

	// Proxy is the address of the proxy used for the attempt.
	Proxy string
}

// Outcome is the normalized result of exactly one proxy-routed attempt.
// Exactly one of Success and Failure is set; an attempt never produces both.
type Outcome struct {
	Success *Payload
	Failure *Failure
}

// OK reports whether the attempt produced a response.
func (o Outcome) OK() bool {
	return o.Success != nil
}

// Result is what the fetchers hand back to their caller on success.
type Result struct {
	// Body, Text, IsText, FinalURL, Status and Header mirror the winning
	// attempt's Payload.
	Body     []byte
	Text     string
	IsText   bool
	FinalURL string
	Status   int
	Header   http.Header

	// ProxyUsed identifies the proxy that produced the response.
	ProxyUsed ProxyDescriptor

	// Attempts is the zero-based retry index at which the winning attempt
	// ran. The staged fetcher resets it per stage; the race fetcher always
	// reports 0 since each proxy is attempted at most once.
	Attempts int

	// InitialMethod is the method the caller asked for.
	InitialMethod string

	// FinalMethod is the method that actually produced the response. It
	// differs from InitialMethod only on the staged fetcher's HEAD→GET
	// degradation path.
	FinalMethod string
}

// resultFrom builds a Result from a successful attempt payload.
func resultFrom(
	p *Payload,
	proxy ProxyDescriptor,
	attempts int,
	initialMethod, finalMethod string,
) *Result {
	return &Result{
		Body:          p.Body,
		Text:          p.Text,
		IsText:        p.IsText,
		FinalURL:      p.FinalURL,
		Status:        p.Status,
		Header:        p.Header,
		ProxyUsed:     proxy,
		Attempts:      attempts,
		InitialMethod: initialMethod,
		FinalMethod:   finalMethod,
	}
}

// isTextContentType reports whether a Content-Type header value indicates
// text-like content that is safe to expose as a decoded string.
func isTextContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text") ||
		strings.Contains(ct, "json") ||
		strings.Contains(ct, "xml")
}

// materialize builds a Payload from a body and its Content-Type, decoding
// text-like content and falling back to raw bytes when decoding fails.
func materialize(body []byte, contentType, finalURL string, status int, header http.Header) *Payload {
	p := &Payload{
		Body:     body,
		FinalURL: finalURL,
		Status:   status,
		Header:   header,
	}
	if isTextContentType(contentType) && utf8.Valid(body) {
		p.Text = string(body)
		p.IsText = true
	}
	return p
}

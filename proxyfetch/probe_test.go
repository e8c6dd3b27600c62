package proxyfetch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProber_Probe(t *testing.T) {
	tests := []struct {
		name string
		mock *MockTransport
		want bool
	}{
		{
			name: "given a 200 from the test endpoint, then reachable",
			mock: NewMockTransport().StubResponse(200, `{"ip":"203.0.113.7"}`),
			want: true,
		},
		{
			name: "given a non-200 status, then unreachable",
			mock: NewMockTransport().StubResponse(403, "forbidden"),
			want: false,
		},
		{
			name: "given a transport error, then unreachable",
			mock: NewMockTransport().StubError(errors.New("connection refused")),
			want: false,
		},
		{
			name: "given a 200 with a non-JSON body, then still reachable",
			mock: NewMockTransport().StubResponse(200, "<html>captive portal</html>"),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(WithTransportFactory(fixedFactory(tt.mock)))
			prober := &httpProber{cfg: cfg}

			got := prober.Probe(
				context.Background(),
				mustClassify(t, "http://10.0.0.1:8080"),
				DefaultProbeURL,
				time.Second,
			)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPProber_Probe_TransportFactoryFailure(t *testing.T) {
	cfg := newConfig(WithTransportFactory(
		func(ProxyDescriptor, ExecutorConfig) (http.RoundTripper, error) {
			return nil, errors.New("no transport")
		},
	))
	prober := &httpProber{cfg: cfg}

	got := prober.Probe(
		context.Background(),
		mustClassify(t, "http://10.0.0.1:8080"),
		DefaultProbeURL,
		time.Second,
	)

	assert.False(t, got)
}

func TestHTTPProber_Probe_DisablesTLSVerification(t *testing.T) {
	var seen *ExecutorConfig
	mock := NewMockTransport().StubResponse(200, "ok")
	cfg := newConfig(WithTransportFactory(
		func(_ ProxyDescriptor, c ExecutorConfig) (http.RoundTripper, error) {
			seen = &c
			return mock, nil
		},
	))
	prober := &httpProber{cfg: cfg}

	prober.Probe(
		context.Background(),
		mustClassify(t, "http://10.0.0.1:8080"),
		DefaultProbeURL,
		time.Second,
	)

	require.NotNil(t, seen)
	assert.False(t, seen.VerifyTLS, "probes measure reachability, not certificate trust")
}

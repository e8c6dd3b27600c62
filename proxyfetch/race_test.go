package proxyfetch

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaceFetcher_Race_EmptyProxyList(t *testing.T) {
	fetcher := NewRaceFetcher()

	res, err := fetcher.Race(context.Background(), RaceSpec{
		URL: "https://example.com/",
	})

	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestRaceFetcher_Race_SingleWinnerAmongFailures(t *testing.T) {
	transports := map[string]http.RoundTripper{
		"http://10.0.0.1:8080": NewMockTransport().StubError(errors.New("connection refused")),
		"http://10.0.0.2:8080": NewMockTransport().StubResponse(200, "winner body"),
		"http://10.0.0.3:8080": NewMockTransport().StubError(context.DeadlineExceeded),
	}

	fetcher := NewRaceFetcher(WithTransportFactory(perProxyFactory(transports)))

	res, err := fetcher.Race(context.Background(), RaceSpec{
		URL: "https://example.com/",
		Proxies: []string{
			"http://10.0.0.1:8080",
			"http://10.0.0.2:8080",
			"http://10.0.0.3:8080",
		},
	})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "http://10.0.0.2:8080", res.ProxyUsed.Address)
	assert.Equal(t, FamilyHTTP, res.ProxyUsed.Family)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, []byte("winner body"), res.Body)
	assert.Equal(t, 0, res.Attempts)
	assert.Equal(t, http.MethodGet, res.InitialMethod)
	assert.Equal(t, http.MethodGet, res.FinalMethod)
}

func TestRaceFetcher_Race_AllFailEachProxyTriedOnce(t *testing.T) {
	mocks := map[string]*MockTransport{
		"http://10.0.0.1:8080":   NewMockTransport().StubError(errors.New("connection refused")),
		"socks5://10.0.0.2:9050": NewMockTransport().StubError(errors.New("connection reset by peer")),
		"http://10.0.0.3:8080":   NewMockTransport().StubError(context.DeadlineExceeded),
	}
	transports := make(map[string]http.RoundTripper, len(mocks))
	for addr, m := range mocks {
		transports[addr] = m
	}

	fetcher := NewRaceFetcher(WithTransportFactory(perProxyFactory(transports)))

	res, err := fetcher.Race(context.Background(), RaceSpec{
		URL: "https://example.com/",
		Proxies: []string{
			"http://10.0.0.1:8080",
			"socks5://10.0.0.2:9050",
			"http://10.0.0.3:8080",
		},
	})

	require.NoError(t, err)
	assert.Nil(t, res, "all proxies failing is a nil result, not an error")
	for addr, m := range mocks {
		assert.Equal(t, 1, m.RequestCount(), "proxy %s should be attempted exactly once", addr)
	}
}

func TestRaceFetcher_Race_UnclassifiableProxiesAreSkipped(t *testing.T) {
	good := NewMockTransport().StubResponse(200, "ok")
	transports := map[string]http.RoundTripper{
		"http://10.0.0.1:8080": good,
	}

	fetcher := NewRaceFetcher(WithTransportFactory(perProxyFactory(transports)))

	res, err := fetcher.Race(context.Background(), RaceSpec{
		URL: "https://example.com/",
		Proxies: []string{
			"ftp://10.0.0.9:21",
			"",
			"http://10.0.0.1:8080",
		},
		Concurrency: 1,
	})

	require.NoError(t, err)
	require.NotNil(t, res, "bad addresses must not abort the race")
	assert.Equal(t, "http://10.0.0.1:8080", res.ProxyUsed.Address)
}

func TestRaceFetcher_Race_WinnerCancelsSlowAttempts(t *testing.T) {
	var slowCanceled atomic.Bool
	slowStarted := make(chan struct{})
	slow := NewMockTransport().
		Delay(10 * time.Second).
		StubResponse(200, "too late").
		OnRequest(func(*http.Request) { close(slowStarted) })
	slowWrapped := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := slow.RoundTrip(req)
		if errors.Is(err, context.Canceled) {
			slowCanceled.Store(true)
		}
		return resp, err
	})

	fast := NewMockTransport().StubResponse(200, "fast")
	fastWrapped := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		// Hold the fast response until the slow attempt is in flight, so
		// the cancellation path is exercised deterministically.
		select {
		case <-slowStarted:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
		return fast.RoundTrip(req)
	})

	transports := map[string]http.RoundTripper{
		"http://10.0.0.1:8080": slowWrapped,
		"http://10.0.0.2:8080": fastWrapped,
	}

	fetcher := NewRaceFetcher(WithTransportFactory(perProxyFactory(transports)))

	start := time.Now()
	res, err := fetcher.Race(context.Background(), RaceSpec{
		URL: "https://example.com/",
		Proxies: []string{
			"http://10.0.0.1:8080",
			"http://10.0.0.2:8080",
		},
		Concurrency: 2,
		Timeout:     30 * time.Second,
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "http://10.0.0.2:8080", res.ProxyUsed.Address)
	assert.Less(t, elapsed, 5*time.Second,
		"the winner must cancel the slow attempt rather than wait it out")
	assert.True(t, slowCanceled.Load(), "slow attempt should observe cancellation")
}

func TestRaceFetcher_Race_ConcurrentSuccessesYieldOneWinner(t *testing.T) {
	proxies := []string{
		"http://10.0.0.1:8080",
		"http://10.0.0.2:8080",
		"http://10.0.0.3:8080",
		"http://10.0.0.4:8080",
		"http://10.0.0.5:8080",
	}
	transports := make(map[string]http.RoundTripper, len(proxies))
	for _, p := range proxies {
		transports[p] = NewMockTransport().StubResponse(200, "ok")
	}

	fetcher := NewRaceFetcher(WithTransportFactory(perProxyFactory(transports)))

	res, err := fetcher.Race(context.Background(), RaceSpec{
		URL:         "https://example.com/",
		Proxies:     proxies,
		Concurrency: len(proxies),
	})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Contains(t, proxies, res.ProxyUsed.Address)
	assert.Equal(t, 200, res.Status)
}

func TestRaceFetcher_Race_TargetErrorStatusStillWins(t *testing.T) {
	transports := map[string]http.RoundTripper{
		"http://10.0.0.1:8080": NewMockTransport().StubResponse(404, "not found"),
	}

	fetcher := NewRaceFetcher(WithTransportFactory(perProxyFactory(transports)))

	res, err := fetcher.Race(context.Background(), RaceSpec{
		URL:     "https://example.com/missing",
		Proxies: []string{"http://10.0.0.1:8080"},
	})

	require.NoError(t, err)
	require.NotNil(t, res, "a 404 proves the proxy works; it wins the race")
	assert.Equal(t, 404, res.Status)
}

func TestRaceFetcher_Race_HeadersMergedOverDefaults(t *testing.T) {
	mock := NewMockTransport().StubResponse(200, "ok")
	transports := map[string]http.RoundTripper{
		"http://10.0.0.1:8080": mock,
	}

	base := make(http.Header)
	base.Set("User-Agent", "base-agent")
	base.Set("Accept", "text/html")

	fetcher := NewRaceFetcher(
		WithTransportFactory(perProxyFactory(transports)),
		WithHeaderSource(func() http.Header { return base }),
	)

	overrides := make(http.Header)
	overrides.Set("User-Agent", "override-agent")

	res, err := fetcher.Race(context.Background(), RaceSpec{
		URL:     "https://example.com/",
		Proxies: []string{"http://10.0.0.1:8080"},
		Headers: overrides,
	})

	require.NoError(t, err)
	require.NotNil(t, res)
	req := mock.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "override-agent", req.Header.Get("User-Agent"))
	assert.Equal(t, "text/html", req.Header.Get("Accept"))
}

// roundTripFunc adapts a function to http.RoundTripper for test wrapping.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

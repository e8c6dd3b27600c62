package proxyfetch

import (
	"context"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// Probe endpoint defaults.
const (
	// DefaultProbeURL is the known test endpoint the default prober
	// fetches through a candidate proxy.
	DefaultProbeURL = "https://api.ipify.org?format=json"

	// DefaultProbeTimeout bounds one reachability probe.
	DefaultProbeTimeout = 5 * time.Second
)

// Prober checks whether a proxy can relay a simple request at all. It is
// consumed only by the staged fetcher's HTTP-proxy validation stage; the
// race fetcher skips probing and lets attempts speak for themselves.
type Prober interface {
	// Probe reports whether the proxy relayed a 200 response from
	// testURL within the timeout.
	Probe(ctx context.Context, proxy ProxyDescriptor, testURL string, timeout time.Duration) bool
}

// httpProber is the default Prober: one GET through the proxy against the
// configured test endpoint. TLS verification is off for the probe — it
// measures reachability, not trust.
type httpProber struct {
	cfg *internalConfig
}

func (p *httpProber) Probe(
	ctx context.Context,
	proxy ProxyDescriptor,
	testURL string,
	timeout time.Duration,
) bool {
	execCfg := p.cfg.execCfg
	execCfg.VerifyTLS = false

	transport, err := p.cfg.transportFactory(proxy, execCfg)
	if err != nil {
		p.cfg.logger.Debug().Err(err).
			Str("proxy", proxy.Redacted()).
			Msg("probe transport construction failed")
		return false
	}

	client := &http.Client{Transport: transport, Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, testURL, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		p.cfg.logger.Debug().Err(err).
			Str("proxy", proxy.Redacted()).
			Stringer("family", proxy.Family).
			Msg("proxy probe failed")
		return false
	}
	defer resp.Body.Close()

	// The default endpoint echoes the egress IP; log it when present.
	var echo struct {
		IP string `json:"ip"`
	}
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10)); err == nil {
		_ = json.Unmarshal(body, &echo)
	}

	p.cfg.logger.Debug().
		Str("proxy", proxy.Redacted()).
		Int("status", resp.StatusCode).
		Str("egress_ip", echo.IP).
		Msg("proxy probe completed")

	return resp.StatusCode == http.StatusOK
}

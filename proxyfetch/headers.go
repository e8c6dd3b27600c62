package proxyfetch

import (
	"math/rand/v2"
	"net/http"
)

// browserProfile is one plausible browser identity.
type browserProfile struct {
	userAgent string
	accept    string
	extra     map[string]string
}

var chromeWindows = browserProfile{
	userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	accept: "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	extra: map[string]string{
		"Sec-CH-UA":                 `"Chromium";v="124", "Google Chrome";v="124", "Not.A/Brand";v="99"`,
		"Sec-CH-UA-Mobile":          "?0",
		"Sec-CH-UA-Platform":        `"Windows"`,
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-User":            "?1",
		"Sec-Fetch-Dest":            "document",
		"Upgrade-Insecure-Requests": "1",
	},
}

var chromeMac = browserProfile{
	userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	accept: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	extra: map[string]string{
		"Sec-CH-UA":                 `"Google Chrome";v="124", "Chromium";v="124", "Not=A?Brand";v="24"`,
		"Sec-CH-UA-Mobile":          "?0",
		"Sec-CH-UA-Platform":        `"macOS"`,
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-User":            "?1",
		"Sec-Fetch-Dest":            "document",
		"Upgrade-Insecure-Requests": "1",
	},
}

var firefoxWindows = browserProfile{
	userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	accept:    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
}

var firefoxMac = browserProfile{
	userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
	accept:    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
}

var safariMac = browserProfile{
	userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 13_4_1) AppleWebKit/605.1.15 " +
		"(KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	accept: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
}

var profiles = []browserProfile{
	chromeWindows,
	chromeMac,
	firefoxWindows,
	firefoxMac,
	safariMac,
}

var acceptLanguages = []string{"en-US,en;q=0.9", "en-GB,en;q=0.8"}

var referers = []string{
	"https://www.google.com/",
	"https://www.bing.com/",
	"https://duckduckgo.com/",
	"https://news.ycombinator.com/",
	"", // no referer
}

var cacheControls = []string{"max-age=0", "no-cache", "no-store", "private", ""}

// RandomHeaders returns a randomized, plausible browser header set. Each
// call picks one of several Chrome/Firefox/Safari profiles and randomizes
// the Accept-Language, Referer, Cache-Control and DNT values.
//
// RandomHeaders is the package's default HeaderSource; both fetchers merge
// caller-supplied headers on top of it, caller values winning on conflict.
func RandomHeaders() http.Header {
	//nolint:gosec // intentional weak rand for header variety (not cryptographic)
	profile := profiles[rand.IntN(len(profiles))]

	h := make(http.Header)
	h.Set("User-Agent", profile.userAgent)
	h.Set("Accept", profile.accept)
	h.Set("Accept-Language", acceptLanguages[rand.IntN(len(acceptLanguages))])
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Connection", "keep-alive")
	h.Set("DNT", []string{"1", "0"}[rand.IntN(2)])
	for k, v := range profile.extra {
		h.Set(k, v)
	}

	if ref := referers[rand.IntN(len(referers))]; ref != "" {
		h.Set("Referer", ref)
	}
	if cc := cacheControls[rand.IntN(len(cacheControls))]; cc != "" {
		h.Set("Cache-Control", cc)
	}

	return h
}

// mergeHeaders layers caller overrides on top of a base header set.
// Keys present in overrides fully replace the base values for that key.
func mergeHeaders(base, overrides http.Header) http.Header {
	merged := make(http.Header, len(base)+len(overrides))
	for k, vs := range base {
		merged[k] = append([]string(nil), vs...)
	}
	for k, vs := range overrides {
		merged[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	return merged
}

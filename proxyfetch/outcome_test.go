package proxyfetch

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTextContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        bool
	}{
		{"given text/html, then text", "text/html; charset=utf-8", true},
		{"given text/plain, then text", "text/plain", true},
		{"given application/json, then text", "application/json", true},
		{"given vendor json suffix, then text", "application/vnd.api+json", true},
		{"given application/xml, then text", "application/xml", true},
		{"given rss xml, then text", "application/rss+xml", true},
		{"given image/png, then binary", "image/png", false},
		{"given octet-stream, then binary", "application/octet-stream", false},
		{"given empty content type, then binary", "", false},
		{"given uppercase type, then text", "Text/HTML", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTextContentType(tt.contentType))
		})
	}
}

func TestMaterialize(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		contentType string
		wantIsText  bool
		wantText    string
	}{
		{
			name:        "given valid utf-8 text body, then decoded",
			body:        []byte("hello world"),
			contentType: "text/plain",
			wantIsText:  true,
			wantText:    "hello world",
		},
		{
			name:        "given json body, then decoded",
			body:        []byte(`{"ok":true}`),
			contentType: "application/json",
			wantIsText:  true,
			wantText:    `{"ok":true}`,
		},
		{
			name:        "given binary content type, then raw only",
			body:        []byte{0x89, 0x50, 0x4e, 0x47},
			contentType: "image/png",
			wantIsText:  false,
		},
		{
			name:        "given text content type with invalid utf-8, then raw only",
			body:        []byte{0xff, 0xfe},
			contentType: "text/plain",
			wantIsText:  false,
		},
		{
			name:        "given empty text body, then decoded as empty string",
			body:        []byte{},
			contentType: "text/html",
			wantIsText:  true,
			wantText:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := materialize(tt.body, tt.contentType, "https://example.com/", 200, make(http.Header))

			assert.Equal(t, tt.body, p.Body)
			assert.Equal(t, tt.wantIsText, p.IsText)
			assert.Equal(t, tt.wantText, p.Text)
			assert.Equal(t, "https://example.com/", p.FinalURL)
			assert.Equal(t, 200, p.Status)
		})
	}
}

func TestPayload_DecodeJSON(t *testing.T) {
	p := &Payload{Body: []byte(`{"ip":"203.0.113.7","count":3}`)}

	var decoded struct {
		IP    string `json:"ip"`
		Count int    `json:"count"`
	}
	require.NoError(t, p.DecodeJSON(&decoded))
	assert.Equal(t, "203.0.113.7", decoded.IP)
	assert.Equal(t, 3, decoded.Count)

	p.Body = []byte("not json")
	assert.Error(t, p.DecodeJSON(&decoded))
}

func TestOutcome_OK(t *testing.T) {
	assert.True(t, Outcome{Success: &Payload{}}.OK())
	assert.False(t, Outcome{Failure: &Failure{}}.OK())
	assert.False(t, Outcome{}.OK())
}

func TestFailureKind_String(t *testing.T) {
	tests := []struct {
		kind FailureKind
		want string
	}{
		{KindTimeout, "timeout"},
		{KindConnection, "connection"},
		{KindTLS, "tls"},
		{KindMalformed, "malformed"},
		{KindOriginMismatch, "origin_mismatch"},
		{KindCanceled, "canceled"},
		{KindOther, "other"},
		{FailureKind(0), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestResultFrom(t *testing.T) {
	payload := &Payload{
		Body:     []byte("body"),
		Text:     "body",
		IsText:   true,
		FinalURL: "https://example.com/final",
		Status:   200,
		Header:   http.Header{"Content-Type": {"text/plain"}},
	}
	proxy := ProxyDescriptor{Address: "http://10.0.0.1:8080", Family: FamilyHTTP}

	res := resultFrom(payload, proxy, 2, http.MethodHead, http.MethodGet)

	assert.Equal(t, payload.Body, res.Body)
	assert.Equal(t, payload.Text, res.Text)
	assert.True(t, res.IsText)
	assert.Equal(t, payload.FinalURL, res.FinalURL)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, proxy, res.ProxyUsed)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, http.MethodHead, res.InitialMethod)
	assert.Equal(t, http.MethodGet, res.FinalMethod)
}

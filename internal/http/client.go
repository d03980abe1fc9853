// Package http builds the HTTP clients shared by the store backends.
package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/rescale/photoup/internal/config"
	"github.com/rescale/photoup/internal/constants"
)

// CreateOptimizedClient creates an HTTP client for store uploads with proxy support.
//
// Key features:
//   - Proxy support (uses ConfigureHTTPClient as base)
//   - Connection pool sized for the maximum worker count
//   - HTTP/2 with runtime toggle (DISABLE_HTTP2 env var)
//   - Disabled compression (base64 of compressed images gains nothing)
//
// A nil cfg yields a client without proxy configuration.
func CreateOptimizedClient(cfg *config.Config) (*nethttp.Client, error) {
	proxyCfg := config.ProxyConfig{}
	if cfg != nil {
		proxyCfg = cfg.Proxy
	}

	baseClient, err := ConfigureHTTPClient(proxyCfg)
	if err != nil {
		return nil, err
	}

	if cfg != nil {
		baseClient.Timeout = cfg.Timeout()
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM mode wraps the transport in ntlmssp.Negotiator; leave it as is.
		return baseClient, nil
	}

	tr.IdleConnTimeout = constants.HTTPIdleConnTimeout
	tr.TLSHandshakeTimeout = constants.HTTPTLSHandshakeTimeout
	tr.ExpectContinueTimeout = constants.HTTPExpectContinueTimeout
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true

	_ = http2.ConfigureTransport(tr)

	// Set DISABLE_HTTP2=true to force HTTP/1.1
	if os.Getenv("DISABLE_HTTP2") == "true" {
		disableHTTP2(tr)
	}

	// Proxies often break HTTP/2 multiplexing mid-transfer. FORCE_HTTP2=true overrides.
	if ProxyActive(proxyCfg, os.Getenv) && os.Getenv("FORCE_HTTP2") != "true" {
		disableHTTP2(tr)
	}

	baseClient.Transport = tr
	return baseClient, nil
}

func disableHTTP2(tr *nethttp.Transport) {
	tr.ForceAttemptHTTP2 = false
	tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
}

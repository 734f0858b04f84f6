package utils

import (
	"net/http"
	"net/url"
	"time"
)

type HTTPClientConfig struct {
	Timeout       time.Duration
	KATimeout     time.Duration
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	UserAgent     string
	Headers       map[string]string
}

// NewTransport builds the shared transport for a session. Compression is
// disabled so that bytes are written to disk exactly as served.
func NewTransport(cfg HTTPClientConfig) *http.Transport {
	kaTimeout := cfg.KATimeout
	if kaTimeout == 0 {
		kaTimeout = 60 * time.Second
	}
	transport := &http.Transport{
		IdleConnTimeout:     kaTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		DisableCompression:  true,
		MaxConnsPerHost:     0,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return transport
}

// ApplyHeaders sets the configured user agent and custom headers on an
// outgoing request.
func (cfg HTTPClientConfig) ApplyHeaders(req *http.Request) {
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
}

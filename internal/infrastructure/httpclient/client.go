package httpclient

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"account_orchestrator/config"
)

// HTTPClient provides pooled HTTP clients, one per egress proxy, so each
// account's requests leave through the proxy bound to its session.
type HTTPClient struct {
	config *config.Config
	direct *http.Client

	mu      sync.Mutex
	proxied map[string]*http.Client
}

// NewHTTPClient creates the client set
func NewHTTPClient(cfg *config.Config) *HTTPClient {
	return &HTTPClient{
		config:  cfg,
		direct:  &http.Client{Transport: newTransport(cfg, nil), Timeout: cfg.HTTPClientTimeout},
		proxied: make(map[string]*http.Client),
	}
}

func newTransport(cfg *config.Config, proxy *url.URL) *http.Transport {
	transport := &http.Transport{
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2: true,
	}
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}
	return transport
}

// ForProxy returns the client that routes through proxyURL; "" means direct.
func (c *HTTPClient) ForProxy(proxyURL string) (*http.Client, error) {
	if proxyURL == "" {
		return c.direct, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.proxied[proxyURL]; ok {
		return client, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q", proxyURL)
	}
	client := &http.Client{Transport: newTransport(c.config, u), Timeout: c.config.HTTPClientTimeout}
	c.proxied[proxyURL] = client
	return client, nil
}

// Do performs req without a proxy
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.direct.Do(req)
}

// CloseIdleConnections releases pooled connections of every client
func (c *HTTPClient) CloseIdleConnections() {
	c.direct.CloseIdleConnections()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, client := range c.proxied {
		client.CloseIdleConnections()
	}
}

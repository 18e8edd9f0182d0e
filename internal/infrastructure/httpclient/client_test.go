package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account_orchestrator/config"
)

func TestHTTPClient_ForProxyCachesPerProxy(t *testing.T) {
	c := NewHTTPClient(config.Default())

	direct, err := c.ForProxy("")
	require.NoError(t, err)

	a, err := c.ForProxy("http://10.0.0.1:3128")
	require.NoError(t, err)
	b, err := c.ForProxy("http://10.0.0.1:3128")
	require.NoError(t, err)
	other, err := c.ForProxy("socks5://10.0.0.2:1080")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
	assert.NotSame(t, a, direct)

	_, err = c.ForProxy("not a proxy")
	assert.Error(t, err)
	c.CloseIdleConnections()
}

func TestHTTPClient_RoutesThroughProxy(t *testing.T) {
	var sawAbsoluteURI bool
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A forward proxy receives the absolute target URL.
		sawAbsoluteURI = r.URL.IsAbs()
		io.WriteString(w, "via proxy")
	}))
	defer proxy.Close()

	c := NewHTTPClient(config.Default())
	client, err := c.ForProxy(proxy.URL)
	require.NoError(t, err)

	resp, err := client.Get("http://upstream.invalid/resource")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, "via proxy", string(body))
	assert.True(t, sawAbsoluteURI)
}

package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ForwardsToOrigin(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pricing", r.URL.Path)
		assert.Equal(t, "site.example", r.Host)
		assert.NotEmpty(t, r.Header.Get("X-Forwarded-For"))
		_, _ = io.WriteString(w, "origin page")
	}))
	defer origin.Close()

	target, err := url.Parse(origin.URL)
	require.NoError(t, err)

	front := httptest.NewServer(Handler(target, NewHTTPTransport(), time.Second))
	defer front.Close()

	req, err := http.NewRequest(http.MethodGet, front.URL+"/pricing", nil)
	require.NoError(t, err)
	req.Host = "site.example"

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "origin page", string(body))
}

func TestHandler_UpstreamDown(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	target, _ := url.Parse(origin.URL)
	origin.Close()

	rec := httptest.NewRecorder()
	Handler(target, NewHTTPTransport(), time.Second).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad_gateway")
}

package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexKimmel/WebShield/internal/gatekeeper"
	"github.com/AlexKimmel/WebShield/internal/routing"
)

func TestNewLogger_Level(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, NewLogger(&bytes.Buffer{}, "WARN").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, NewLogger(&bytes.Buffer{}, "chatty").GetLevel())
}

func TestLogger_AccessLogAndContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug")

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Debug().Msg("inside")
		w.WriteHeader(http.StatusFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var access map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &access))
	assert.Equal(t, "req", access["message"])
	assert.Equal(t, "/x", access["path"])
	assert.Equal(t, float64(http.StatusFound), access["status"])
	assert.Equal(t, "webshield", access["service"])
}

func TestMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	h := m.Middleware(map[string]struct{}{"/metrics": {}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))

	req := routing.WithRoute(httptest.NewRequest(http.MethodGet, "/checkout", nil), &routing.Route{ID: "checkout"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("checkout", "GET", "302")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
}

func TestMetrics_Observers(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveOutcome("default", gatekeeper.HighRisk)
	m.ObserveOutcome("default", gatekeeper.HighRisk)
	m.ObserveLookup("reputation", "ok", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("default", "high_risk")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LookupDuration))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "webshield_gatekeeper_outcomes_total")
}

package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/aipo/dbopen"
	"github.com/hazyhaar/aipo/trace"
)

// indexedFixture runs every stage for en so the index is populated.
func indexedFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, true)
	_, err := f.svc.Run(context.Background(), StageDetails, "en")
	require.NoError(t, err)
	return f
}

func get(t *testing.T, srv *httptest.Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestAPI_Patent(t *testing.T) {
	f := indexedFixture(t)
	srv := httptest.NewServer(f.svc.Handler())
	defer srv.Close()

	code, body := get(t, srv, "/api/en/patents/4")
	require.Equal(t, http.StatusOK, code, string(body))
	var p struct {
		CertificateID int             `json:"certificate_id"`
		Title         string          `json:"title"`
		Details       json.RawMessage `json:"details"`
	}
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, 4, p.CertificateID)
	assert.Equal(t, "Design 4", p.Title)
	assert.Contains(t, string(p.Details), `"ICID_codes"`)

	code, _ = get(t, srv, "/api/en/patents/3")
	assert.Equal(t, http.StatusNotFound, code, "gap ids are not records")

	code, _ = get(t, srv, "/api/en/patents/abc")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = get(t, srv, "/api/fr/patents/1")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_SearchGapsStats(t *testing.T) {
	f := indexedFixture(t)
	srv := httptest.NewServer(f.svc.Handler())
	defer srv.Close()

	code, body := get(t, srv, "/api/en/patents?q=desig&limit=2")
	require.Equal(t, http.StatusOK, code, string(body))
	var results []map[string]any
	require.NoError(t, json.Unmarshal(body, &results))
	assert.Len(t, results, 2)

	code, _ = get(t, srv, "/api/en/patents")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = get(t, srv, "/api/en/gaps")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"gaps":[3]}`, string(body))

	code, body = get(t, srv, "/api/en/stats")
	require.Equal(t, http.StatusOK, code)
	var st IndexStats
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 4, st.Patents)
	assert.Equal(t, 5, st.LastID)

	code, body = get(t, srv, "/api/ru/stats")
	require.Equal(t, http.StatusOK, code, string(body))
}

func TestAPI_HealthRunsMetrics(t *testing.T) {
	f := indexedFixture(t)
	srv := httptest.NewServer(f.svc.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	code, body := get(t, srv, "/api/runs?stage=canonical")
	require.Equal(t, http.StatusOK, code)
	var runs []StageRun
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "ok", runs[0].Status)
	assert.Contains(t, string(runs[0].Stats), `"gaps":1`)

	code, body = get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, code)
	text := string(body)
	assert.True(t, strings.Contains(text, `aipo_upstream_queries_total{kind="group",outcome="match"} 2`), text)
	assert.Contains(t, text, `route="/api/runs",status="200"`)
}

func TestAPI_NoIndex(t *testing.T) {
	svc, err := New(nil, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	code, _ := get(t, srv, "/api/en/stats")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, body := get(t, srv, "/api/runs")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))
	code, body = get(t, srv, "/api/audit")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))
	code, body = get(t, srv, "/api/metrics/history")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))
	code, body = get(t, srv, "/api/traces/slow")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))
}

func TestAPI_MetricHistoryAndSlowQueries(t *testing.T) {
	// WHAT: Stage metrics and the slowest traced statements are readable over the API.
	// WHY: An operator looks at stage counters and slow index queries without opening the databases.
	traces := trace.NewStore(dbopen.OpenMemory(t))
	require.NoError(t, traces.Init())
	for i, id := range []string{"req_a", "req_a", "req_b"} {
		traces.RecordAsync(&trace.Entry{TraceID: id, Op: "Query", Query: "SELECT 1", DurationUs: int64(100 * (i + 1))})
	}
	require.NoError(t, traces.Close())

	f := newFixture(t, true, WithTraces(traces))
	_, err := f.svc.Run(context.Background(), StageCanonical, "en")
	require.NoError(t, err)
	srv := httptest.NewServer(f.svc.Handler())
	defer srv.Close()

	code, body := get(t, srv, "/api/metrics/history?name=canonical_records")
	require.Equal(t, http.StatusOK, code, string(body))
	var history []Metric
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history, 1)
	assert.Equal(t, float64(4), history[0].Value)
	assert.Equal(t, "en", history[0].Labels["locale"])

	code, body = get(t, srv, "/api/traces/slow?trace_id=req_a")
	require.Equal(t, http.StatusOK, code, string(body))
	var slow []TraceEntry
	require.NoError(t, json.Unmarshal(body, &slow))
	require.Len(t, slow, 2)
	assert.Equal(t, int64(200), slow[0].DurationUs)

	code, _ = get(t, srv, "/api/traces/slow?trace_id=a%20b")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = get(t, srv, "/api/audit?action=x%3Bdrop")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = get(t, srv, "/api/metrics/history?name=%2Fetc")
	assert.Equal(t, http.StatusBadRequest, code)
}

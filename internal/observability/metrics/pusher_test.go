package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cdrbill_test_job_runs_total",
	}, []string{"job_name"})
	reg.MustRegister(runs)
	runs.WithLabelValues("cdr_monthly").Add(3)

	latency := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "cdrbill_test_latency_seconds"})
	reg.MustRegister(latency)
	latency.Observe(0.2)
	return reg
}

func TestNewPusherSelectsExporter(t *testing.T) {
	log := zap.NewNop()

	assert.Nil(t, NewPusher(PushConfig{}, log))
	assert.Nil(t, NewPusher(PushConfig{Exporter: ExporterPushgateway}, log))
	assert.Nil(t, NewPusher(PushConfig{Exporter: "statsd", Endpoint: "http://x"}, log))
	assert.Nil(t, NewPusher(PushConfig{Exporter: ExporterRemoteWrite, Endpoint: "not a url"}, log))

	assert.IsType(t, &PushgatewayPusher{}, NewPusher(PushConfig{Exporter: ExporterPushgateway, Endpoint: "http://gw:9091"}, log))
	assert.IsType(t, &RemoteWritePusher{}, NewPusher(PushConfig{Exporter: ExporterRemoteWrite, Endpoint: "http://prom/api/v1/write"}, log))
}

func TestRemoteWritePusherSendsCountersOnly(t *testing.T) {
	var got prompb.WriteRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, got.Unmarshal(raw))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewRemoteWritePusher(srv.URL, "tok")
	p.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	require.NoError(t, p.Push(context.Background(), testRegistry(t)))
	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	assert.Equal(t, "Bearer tok", headers.Get("Authorization"))

	require.Len(t, got.Timeseries, 1)
	ts := got.Timeseries[0]
	labels := make(map[string]string, len(ts.Labels))
	names := make([]string, 0, len(ts.Labels))
	for _, l := range ts.Labels {
		labels[l.Name] = l.Value
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"__name__", "job_name"}, names)
	assert.Equal(t, "cdrbill_test_job_runs_total", labels["__name__"])
	assert.Equal(t, "cdr_monthly", labels["job_name"])
	require.Len(t, ts.Samples, 1)
	assert.Equal(t, 3.0, ts.Samples[0].Value)
	assert.Equal(t, int64(1_700_000_000_000), ts.Samples[0].Timestamp)
}

func TestRemoteWritePusherReportsRejectedWrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), testRegistry(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestPushgatewayPusherUsesJobAndGrouping(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPushgatewayPusher(srv.URL, "cdrbill", map[string]string{"environment": "test", "blank": ""})
	require.NoError(t, p.Push(context.Background(), testRegistry(t)))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/cdrbill/environment/test", path)
}

func TestPushgatewayPusherAcceptsSchedulerMetrics(t *testing.T) {
	var pushed int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushed++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "cdrbill", Environment: "test"})
	m.IncJobRun("cdr_monthly")
	m.ObserveJobDuration("cdr_monthly", 2*time.Second)
	m.IncJobSkipped("cdr_monthly", "not_due")
	m.MarkJobSuccess("cdr_monthly", time.Unix(1_706_752_800, 0))

	p := NewPushgatewayPusher(srv.URL, "cdrbill", map[string]string{"environment": "test"})
	require.NoError(t, p.Push(context.Background(), registry))
	assert.Equal(t, 1, pushed)
}

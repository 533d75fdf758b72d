package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	rec := NewPrometheusRecorder(nil)

	rec.ObserveBuild(BuildFull, OutcomeSuccess, 20*time.Millisecond)
	rec.ObserveBuild(BuildFull, OutcomeFailed, 5*time.Millisecond)
	rec.ObserveBuild(BuildIncremental, OutcomeSuccess, time.Millisecond)
	rec.IncReloadBroadcast()
	rec.IncReloadBroadcast()
	rec.SetConnectedClients(3)
	rec.IncWatchEvent("ignore")

	families, err := rec.Registry().Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, l := range m.GetLabel() {
				key += "," + l.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				values[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}

	assert.Equal(t, 1.0, values["vei_builds_total,full,success"])
	assert.Equal(t, 1.0, values["vei_builds_total,full,failed"])
	assert.Equal(t, 1.0, values["vei_builds_total,incremental,success"])
	assert.Equal(t, 2.0, values["vei_build_duration_seconds,full"])
	assert.Equal(t, 2.0, values["vei_reload_broadcasts_total"])
	assert.Equal(t, 3.0, values["vei_connected_clients"])
	assert.Equal(t, 1.0, values["vei_watch_events_total,ignore"])

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := new(bytes.Buffer)
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "vei_builds_total")
	assert.Contains(t, body.String(), "vei_reload_broadcasts_total")
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, OutcomeOf(nil))
	assert.Equal(t, OutcomeFailed, OutcomeOf(errors.New("boom")))
}

func TestHealthMonitor(t *testing.T) {
	check := func(name string, critical bool, status HealthStatus) HealthChecker {
		return NewHealthCheckFunc(name, critical, func(context.Context) HealthCheck {
			return HealthCheck{Status: status}
		})
	}

	tests := []struct {
		name   string
		checks []HealthChecker
		want   HealthStatus
		code   int
	}{
		{name: "no checks", want: HealthStatusHealthy, code: http.StatusOK},
		{
			name:   "all healthy",
			checks: []HealthChecker{check("build", true, HealthStatusHealthy), check("clients", false, HealthStatusHealthy)},
			want:   HealthStatusHealthy,
			code:   http.StatusOK,
		},
		{
			name:   "non critical failure",
			checks: []HealthChecker{check("build", true, HealthStatusHealthy), check("clients", false, HealthStatusUnhealthy)},
			want:   HealthStatusDegraded,
			code:   http.StatusOK,
		},
		{
			name:   "critical failure",
			checks: []HealthChecker{check("build", true, HealthStatusUnhealthy), check("clients", false, HealthStatusHealthy)},
			want:   HealthStatusUnhealthy,
			code:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm := NewHealthMonitor(nil, "test")
			for _, c := range tt.checks {
				hm.RegisterCheck(c)
			}

			health := hm.Check(context.Background())
			assert.Equal(t, tt.want, health.Status)
			assert.Len(t, health.Checks, len(tt.checks))

			rr := httptest.NewRecorder()
			hm.HTTPHandler()(rr, httptest.NewRequest(http.MethodGet, "/__vei/health", nil))
			assert.Equal(t, tt.code, rr.Code)

			var decoded HealthResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
			assert.Equal(t, tt.want, decoded.Status)
			assert.Equal(t, "test", decoded.Version)
		})
	}
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/mysqlwire/mysqlwire/pool"
)

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	g.Write(m)
	return m.GetGauge().GetValue()
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func TestUpdatePoolStats(t *testing.T) {
	c := New()

	c.UpdatePoolStats(pool.Stats{
		PoolName: "primary",
		Active:   3,
		Idle:     5,
		Total:    8,
		Waiting:  1,
		Created:  10,
		Closed:   2,
		Removed:  1,
	})

	if v := getGaugeValue(c.connectionsActive.WithLabelValues("primary")); v != 3 {
		t.Errorf("active = %v, want 3", v)
	}
	if v := getGaugeValue(c.connectionsIdle.WithLabelValues("primary")); v != 5 {
		t.Errorf("idle = %v, want 5", v)
	}
	if v := getGaugeValue(c.connectionsTotal.WithLabelValues("primary")); v != 8 {
		t.Errorf("total = %v, want 8", v)
	}
	if v := getGaugeValue(c.connectionsWaiting.WithLabelValues("primary")); v != 1 {
		t.Errorf("waiting = %v, want 1", v)
	}
}

func TestQueryDurationIncrementsErrorsOnlyOnFailure(t *testing.T) {
	c := New()

	c.QueryDuration("primary", "query", 10*time.Millisecond, nil)
	if v := getCounterValue(c.queryErrors.WithLabelValues("primary", "query")); v != 0 {
		t.Errorf("expected no errors recorded, got %v", v)
	}

	c.QueryDuration("primary", "query", 10*time.Millisecond, errBoom)
	if v := getCounterValue(c.queryErrors.WithLabelValues("primary", "query")); v != 1 {
		t.Errorf("expected 1 error recorded, got %v", v)
	}
}

func TestAuthPluginNegotiation(t *testing.T) {
	c := New()
	c.AuthPluginNegotiation("caching_sha2_password", true)
	c.AuthPluginNegotiation("caching_sha2_password", false)

	if v := getCounterValue(c.authPluginNegotiations.WithLabelValues("caching_sha2_password", "ok")); v != 1 {
		t.Errorf("ok count = %v, want 1", v)
	}
	if v := getCounterValue(c.authPluginNegotiations.WithLabelValues("caching_sha2_password", "error")); v != 1 {
		t.Errorf("error count = %v, want 1", v)
	}
}

type testErr string

func (e testErr) Error() string { return string(e) }

var errBoom = testErr("boom")

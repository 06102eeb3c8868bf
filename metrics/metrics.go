package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mysqlwire/mysqlwire/pool"
)

// Collector holds all Prometheus metrics for the driver and pool.
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive  *prometheus.GaugeVec
	connectionsIdle    *prometheus.GaugeVec
	connectionsTotal   *prometheus.GaugeVec
	connectionsWaiting *prometheus.GaugeVec

	connectionsCreated *prometheus.GaugeVec
	connectionsClosed  *prometheus.GaugeVec
	connectionsRemoved *prometheus.GaugeVec

	acquireDuration *prometheus.HistogramVec
	acquireTimeouts *prometheus.CounterVec

	queryDuration *prometheus.HistogramVec
	queryErrors   *prometheus.CounterVec

	authPluginNegotiations *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics using a custom
// registry. Safe to call multiple times — each call returns an
// independent registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlwire_pool_connections_active",
				Help: "Number of connections currently on loan",
			},
			[]string{"pool"},
		),
		connectionsIdle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlwire_pool_connections_idle",
				Help: "Number of idle connections available to borrow",
			},
			[]string{"pool"},
		),
		connectionsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlwire_pool_connections_total",
				Help: "Total number of live connections",
			},
			[]string{"pool"},
		),
		connectionsWaiting: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlwire_pool_waiters",
				Help: "Number of goroutines currently blocked in Acquire",
			},
			[]string{"pool"},
		),
		connectionsCreated: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlwire_pool_connections_created_total",
				Help: "Total connections dialed since pool creation",
			},
			[]string{"pool"},
		),
		connectionsClosed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlwire_pool_connections_closed_total",
				Help: "Total connections cleanly closed since pool creation",
			},
			[]string{"pool"},
		),
		connectionsRemoved: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlwire_pool_connections_removed_total",
				Help: "Total connections evicted since pool creation (idle timeout, max lifetime, failed validation)",
			},
			[]string{"pool"},
		),
		acquireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mysqlwire_pool_acquire_duration_seconds",
				Help:    "Time spent waiting in Acquire",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"pool"},
		),
		acquireTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlwire_pool_acquire_timeouts_total",
				Help: "Total Acquire calls that timed out",
			},
			[]string{"pool"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mysqlwire_query_duration_seconds",
				Help:    "Duration of executed statements",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"pool", "operation"},
		),
		queryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlwire_query_errors_total",
				Help: "Total statement executions that returned an error",
			},
			[]string{"pool", "operation"},
		),
		authPluginNegotiations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlwire_auth_plugin_negotiations_total",
				Help: "Handshake auth plugin negotiations by plugin name and outcome",
			},
			[]string{"plugin", "outcome"},
		),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.connectionsIdle,
		c.connectionsTotal,
		c.connectionsWaiting,
		c.connectionsCreated,
		c.connectionsClosed,
		c.connectionsRemoved,
		c.acquireDuration,
		c.acquireTimeouts,
		c.queryDuration,
		c.queryErrors,
		c.authPluginNegotiations,
	)

	return c
}

// ObserveAcquire records how long an Acquire call took.
func (c *Collector) ObserveAcquire(poolName string, d time.Duration) {
	c.acquireDuration.WithLabelValues(poolName).Observe(d.Seconds())
}

// AcquireTimeout increments the acquire-timeout counter.
func (c *Collector) AcquireTimeout(poolName string) {
	c.acquireTimeouts.WithLabelValues(poolName).Inc()
}

// QueryDuration observes the duration of a single executed statement.
func (c *Collector) QueryDuration(poolName, operation string, d time.Duration, err error) {
	c.queryDuration.WithLabelValues(poolName, operation).Observe(d.Seconds())
	if err != nil {
		c.queryErrors.WithLabelValues(poolName, operation).Inc()
	}
}

// AuthPluginNegotiation records a handshake auth-plugin negotiation outcome.
func (c *Collector) AuthPluginNegotiation(plugin string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	c.authPluginNegotiations.WithLabelValues(plugin, outcome).Inc()
}

// UpdatePoolStats refreshes the pool gauges and counters from a Stats
// snapshot (§3 Pool statistics).
func (c *Collector) UpdatePoolStats(s pool.Stats) {
	c.connectionsActive.WithLabelValues(s.PoolName).Set(float64(s.Active))
	c.connectionsIdle.WithLabelValues(s.PoolName).Set(float64(s.Idle))
	c.connectionsTotal.WithLabelValues(s.PoolName).Set(float64(s.Total))
	c.connectionsWaiting.WithLabelValues(s.PoolName).Set(float64(s.Waiting))
	c.connectionsCreated.WithLabelValues(s.PoolName).Set(float64(s.Created))
	c.connectionsClosed.WithLabelValues(s.PoolName).Set(float64(s.Closed))
	c.connectionsRemoved.WithLabelValues(s.PoolName).Set(float64(s.Removed))
}

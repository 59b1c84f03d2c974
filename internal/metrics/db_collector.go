package metrics

import "github.com/prometheus/client_golang/prometheus"

// DBPoolStatFunc reports the postgres document store's pgxpool connection
// counts. It keeps this package free of a pgx import.
type DBPoolStatFunc func() (total, idle, acquired int32)

// Connection states reported on liftline_docstore_pool_conns.
const (
	poolStateTotal    = "total"
	poolStateIdle     = "idle"
	poolStateAcquired = "acquired"
)

// storePoolCollector samples the document store pool on every scrape, so
// the gauges never go stale between store operations.
type storePoolCollector struct {
	stats DBPoolStatFunc
	conns *prometheus.Desc
}

// NewDBPoolCollector returns a collector exposing the postgres document
// store's pool as one gauge family labelled by connection state.
func NewDBPoolCollector(stats DBPoolStatFunc) prometheus.Collector {
	return &storePoolCollector{
		stats: stats,
		conns: prometheus.NewDesc(
			"liftline_docstore_pool_conns",
			"Connections in the postgres document store pool, by state.",
			[]string{"state"},
			prometheus.Labels{"driver": "postgres"},
		),
	}
}

func (c *storePoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.conns
}

func (c *storePoolCollector) Collect(ch chan<- prometheus.Metric) {
	total, idle, acquired := c.stats()
	for state, v := range map[string]int32{
		poolStateTotal:    total,
		poolStateIdle:     idle,
		poolStateAcquired: acquired,
	} {
		ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(v), state)
	}
}

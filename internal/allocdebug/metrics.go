package allocdebug

import "github.com/prometheus/client_golang/prometheus"

// PrometheusExporter mirrors a Counters snapshot into four Prometheus
// counters and a quarantine-depth gauge. It is never constructed
// automatically: callers that want metrics register it explicitly against
// their own registry, keeping memkit free of global registration side
// effects.
type PrometheusExporter struct {
	allocs     prometheus.Counter
	frees      prometheus.Counter
	commits    prometheus.Counter
	decommits  prometheus.Counter
	quarantine prometheus.Gauge

	lastAllocs, lastFrees, lastCommits, lastDecommits uint64
}

// NewPrometheusExporter builds the exporter's metric objects under the
// given namespace, without registering them.
func NewPrometheusExporter(namespace string) *PrometheusExporter {
	return &PrometheusExporter{
		allocs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "allocs_total", Help: "Total allocations observed by the debug layer.",
		}),
		frees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frees_total", Help: "Total frees observed by the debug layer.",
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "commits_total", Help: "Total VM commit calls observed by the debug layer.",
		}),
		decommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "decommits_total", Help: "Total VM decommit calls observed by the debug layer.",
		}),
		quarantine: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "quarantine_depth", Help: "Current quarantine FIFO depth.",
		}),
	}
}

// Collectors returns every metric object so the caller can register them
// against a prometheus.Registerer of its choosing.
func (e *PrometheusExporter) Collectors() []prometheus.Collector {
	return []prometheus.Collector{e.allocs, e.frees, e.commits, e.decommits, e.quarantine}
}

// Sync mirrors c's current totals and q's current depth into the exported
// metrics. Intended to be called periodically, not on the hot path. Counter
// totals are monotonic, so Sync only ever adds the delta since the previous
// call.
func (e *PrometheusExporter) Sync(c *Counters, q *Quarantine) {
	if v := c.Allocs(); v > e.lastAllocs {
		e.allocs.Add(float64(v - e.lastAllocs))
		e.lastAllocs = v
	}
	if v := c.Frees(); v > e.lastFrees {
		e.frees.Add(float64(v - e.lastFrees))
		e.lastFrees = v
	}
	if v := c.Commits(); v > e.lastCommits {
		e.commits.Add(float64(v - e.lastCommits))
		e.lastCommits = v
	}
	if v := c.Decommits(); v > e.lastDecommits {
		e.decommits.Add(float64(v - e.lastDecommits))
		e.lastDecommits = v
	}
	if q != nil {
		e.quarantine.Set(float64(q.Len()))
	}
}

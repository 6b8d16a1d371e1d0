// SPDX-License-Identifier: AGPL-3.0-only

package cachehint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type analyzerMetrics struct {
	linesScanned  *prometheus.CounterVec
	markerLines   *prometheus.CounterVec
	pageAccesses  *prometheus.GaugeVec
	cacheHits     *prometheus.GaugeVec
	hitPercentage *prometheus.GaugeVec
	failedPasses  prometheus.Counter
}

func newAnalyzerMetrics(reg prometheus.Registerer) *analyzerMetrics {
	return &analyzerMetrics{
		linesScanned: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cachehint_log_lines_scanned_total",
			Help: "Number of log lines scanned.",
		}, []string{"log"}),
		markerLines: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cachehint_marker_lines_total",
			Help: "Number of log lines matching a counter marker.",
		}, []string{"log", "marker"}),
		pageAccesses: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "cachehint_page_accesses",
			Help: "Total page accesses reported by scan threads in the log.",
		}, []string{"log"}),
		cacheHits: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "cachehint_cache_hits",
			Help: "Cache hit count from the last hit line in the log.",
		}, []string{"log"}),
		hitPercentage: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "cachehint_cache_hit_percentage",
			Help: "Cache hits as a percentage of page accesses.",
		}, []string{"log"}),
		failedPasses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cachehint_failed_passes_total",
			Help: "Number of log passes that failed.",
		}),
	}
}

// passObserver feeds line metrics for a single log.
type passObserver struct {
	lines  prometheus.Counter
	access prometheus.Counter
	hit    prometheus.Counter
}

func (m *analyzerMetrics) observerFor(label string) *passObserver {
	return &passObserver{
		lines:  m.linesScanned.WithLabelValues(label),
		access: m.markerLines.WithLabelValues(label, "access"),
		hit:    m.markerLines.WithLabelValues(label, "hit"),
	}
}

func (o *passObserver) observeLine() { o.lines.Inc() }

func (o *passObserver) observeMarker(marker string) {
	switch marker {
	case AccessMarker:
		o.access.Inc()
	case HitMarker:
		o.hit.Inc()
	}
}

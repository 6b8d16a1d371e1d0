// SPDX-License-Identifier: AGPL-3.0-only

package cachehint

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

// Report is the outcome of one pass over one log.
type Report struct {
	Label       string  `json:"label" yaml:"label"`
	TotalAccess int64   `json:"total_access" yaml:"total_access"`
	CacheHits   int64   `json:"cache_hits" yaml:"cache_hits"`
	Percentage  float64 `json:"percentage" yaml:"percentage"`
}

// Analyzer runs the counter over a list of logs, one after the other.
type Analyzer struct {
	counter *counter
	logger  log.Logger
	metrics *analyzerMetrics
}

func NewAnalyzer(fs afero.Fs, logger log.Logger, reg prometheus.Registerer) *Analyzer {
	return &Analyzer{
		counter: newCounter(fs),
		logger:  logger,
		metrics: newAnalyzerMetrics(reg),
	}
}

// Run processes paths in order. It stops at the first failure and returns no reports in that case.
func (a *Analyzer) Run(ctx context.Context, paths []string) ([]Report, error) {
	reports := make([]Report, 0, len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report, err := a.analyze(path)
		if err != nil {
			a.metrics.failedPasses.Inc()
			level.Error(a.logger).Log("msg", "failed to analyze log", "path", path, "err", err)
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, nil
}

func (a *Analyzer) analyze(path string) (Report, error) {
	label := Label(path)
	logger := log.With(a.logger, "log", label)
	level.Debug(logger).Log("msg", "analyzing log", "path", path)

	res, err := a.counter.countFile(path, a.metrics.observerFor(label))
	if err != nil {
		return Report{}, err
	}

	pct, err := res.HitPercentage()
	if err != nil {
		return Report{}, errors.Wrapf(err, "log %s", path)
	}

	a.metrics.pageAccesses.WithLabelValues(label).Set(float64(res.TotalAccess))
	a.metrics.cacheHits.WithLabelValues(label).Set(float64(res.CacheHits))
	a.metrics.hitPercentage.WithLabelValues(label).Set(pct)

	level.Info(logger).Log("msg", "analyzed log", "total_access", res.TotalAccess, "cache_hits", res.CacheHits, "percentage", pct)

	return Report{
		Label:       label,
		TotalAccess: res.TotalAccess,
		CacheHits:   res.CacheHits,
		Percentage:  pct,
	}, nil
}

// Label names a log by its file name without extension, qps1.log becomes qps1.
func Label(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SPDX-License-Identifier: AGPL-3.0-only

package cachehint

import (
	"bytes"
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/cachehint/pkg/util/test"
)

func writeLogs(t *testing.T, files map[string]string) afero.Fs {
	memFS := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(memFS, name, []byte(content), 0o644))
	}
	return memFS
}

func TestAnalyzer_Run(t *testing.T) {
	test.VerifyNoLeak(t)

	memFS := writeLogs(t, map[string]string{
		"qps1.log": "scan线程访问page数:100\nscan线程访问page数:50\n缓存命中数:30\n缓存命中数:45\n",
		"qps2.log": "warming up\nscan线程访问page数:200\n缓存命中数:100\n",
		"qps3.log": "scan线程访问page数:10\n缓存命中数:25\n",
	})

	reg := prometheus.NewPedanticRegistry()
	a := NewAnalyzer(memFS, log.NewNopLogger(), reg)

	reports, err := a.Run(context.Background(), []string{"qps1.log", "qps2.log", "qps3.log"})
	require.NoError(t, err)
	require.Len(t, reports, 3)

	assert.Equal(t, "qps1", reports[0].Label)
	assert.Equal(t, int64(150), reports[0].TotalAccess)
	assert.Equal(t, int64(45), reports[0].CacheHits)
	assert.InDelta(t, 30.0, reports[0].Percentage, 1e-9)

	assert.Equal(t, Report{Label: "qps2", TotalAccess: 200, CacheHits: 100, Percentage: 50}, reports[1])
	assert.Equal(t, Report{Label: "qps3", TotalAccess: 10, CacheHits: 25, Percentage: 250}, reports[2])

	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
		# HELP cachehint_log_lines_scanned_total Number of log lines scanned.
		# TYPE cachehint_log_lines_scanned_total counter
		cachehint_log_lines_scanned_total{log="qps1"} 4
		cachehint_log_lines_scanned_total{log="qps2"} 3
		cachehint_log_lines_scanned_total{log="qps3"} 2

		# HELP cachehint_marker_lines_total Number of log lines matching a counter marker.
		# TYPE cachehint_marker_lines_total counter
		cachehint_marker_lines_total{log="qps1",marker="access"} 2
		cachehint_marker_lines_total{log="qps1",marker="hit"} 2
		cachehint_marker_lines_total{log="qps2",marker="access"} 1
		cachehint_marker_lines_total{log="qps2",marker="hit"} 1
		cachehint_marker_lines_total{log="qps3",marker="access"} 1
		cachehint_marker_lines_total{log="qps3",marker="hit"} 1

		# HELP cachehint_page_accesses Total page accesses reported by scan threads in the log.
		# TYPE cachehint_page_accesses gauge
		cachehint_page_accesses{log="qps1"} 150
		cachehint_page_accesses{log="qps2"} 200
		cachehint_page_accesses{log="qps3"} 10

		# HELP cachehint_cache_hits Cache hit count from the last hit line in the log.
		# TYPE cachehint_cache_hits gauge
		cachehint_cache_hits{log="qps1"} 45
		cachehint_cache_hits{log="qps2"} 100
		cachehint_cache_hits{log="qps3"} 25

		# HELP cachehint_failed_passes_total Number of log passes that failed.
		# TYPE cachehint_failed_passes_total counter
		cachehint_failed_passes_total 0
	`),
		"cachehint_log_lines_scanned_total",
		"cachehint_marker_lines_total",
		"cachehint_page_accesses",
		"cachehint_cache_hits",
		"cachehint_failed_passes_total",
	))
}

func TestAnalyzer_Run_FailsWithoutPartialReports(t *testing.T) {
	tests := map[string]struct {
		files       map[string]string
		expectedErr func(t *testing.T, err error)
	}{
		"missing file": {
			files: map[string]string{
				"qps1.log": "scan线程访问page数:10\n缓存命中数:5\n",
				"qps3.log": "scan线程访问page数:10\n缓存命中数:5\n",
			},
			expectedErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, fs.ErrNotExist)
				assert.Contains(t, err.Error(), "qps2.log")
			},
		},
		"malformed line": {
			files: map[string]string{
				"qps1.log": "scan线程访问page数:10\n缓存命中数:5\n",
				"qps2.log": "scan线程访问page数:ten\n",
				"qps3.log": "scan线程访问page数:10\n缓存命中数:5\n",
			},
			expectedErr: func(t *testing.T, err error) {
				var lineErr *LineError
				require.ErrorAs(t, err, &lineErr)
				assert.Equal(t, 1, lineErr.Line)
			},
		},
		"no access lines": {
			files: map[string]string{
				"qps1.log": "scan线程访问page数:10\n缓存命中数:5\n",
				"qps2.log": "缓存命中数:5\n",
				"qps3.log": "scan线程访问page数:10\n缓存命中数:5\n",
			},
			expectedErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoAccesses)
				assert.Contains(t, err.Error(), "qps2.log")
			},
		},
		"no matching lines": {
			files: map[string]string{
				"qps1.log": "scan线程访问page数:10\n缓存命中数:5\n",
				"qps2.log": "nothing to see here\n",
				"qps3.log": "scan线程访问page数:10\n缓存命中数:5\n",
			},
			expectedErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoAccesses)
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			reg := prometheus.NewPedanticRegistry()
			logs := &bytes.Buffer{}
			a := NewAnalyzer(writeLogs(t, tc.files), log.NewLogfmtLogger(logs), reg)

			reports, err := a.Run(context.Background(), []string{"qps1.log", "qps2.log", "qps3.log"})
			require.Error(t, err)
			assert.Nil(t, reports)
			tc.expectedErr(t, err)

			assert.Contains(t, logs.String(), "failed to analyze log")
			assert.Contains(t, logs.String(), "path=qps2.log")

			// Only the first log completed and the third is never opened.
			series, err := testutil.GatherAndCount(reg, "cachehint_page_accesses")
			require.NoError(t, err)
			assert.Equal(t, 1, series)
			assert.Equal(t, float64(1), testutil.ToFloat64(a.metrics.failedPasses))
			assert.Equal(t, float64(0), testutil.ToFloat64(a.metrics.linesScanned.WithLabelValues("qps3")))
		})
	}
}

func TestAnalyzer_Run_StopsOnCanceledContext(t *testing.T) {
	memFS := writeLogs(t, map[string]string{
		"qps1.log": "scan线程访问page数:10\n缓存命中数:5\n",
	})
	a := NewAnalyzer(memFS, log.NewNopLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports, err := a.Run(ctx, []string{"qps1.log"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, reports)
}

func TestAnalyzer_Run_CountersResetBetweenLogs(t *testing.T) {
	memFS := writeLogs(t, map[string]string{
		"a.log": "scan线程访问page数:10\n缓存命中数:7\n",
		"b.log": "scan线程访问page数:20\n",
	})
	a := NewAnalyzer(memFS, log.NewNopLogger(), nil)

	reports, err := a.Run(context.Background(), []string{"a.log", "b.log"})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, Report{Label: "b", TotalAccess: 20, CacheHits: 0, Percentage: 0}, reports[1])
}

func TestLabel(t *testing.T) {
	for path, expected := range map[string]string{
		"qps1.log":           "qps1",
		"logs/qps2.log":      "qps2",
		"/var/log/qps3":      "qps3",
		"run.2024-01-01.log": "run.2024-01-01",
	} {
		assert.Equal(t, expected, Label(path), path)
	}
}

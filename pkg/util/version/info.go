// SPDX-License-Identifier: AGPL-3.0-only
// Provenance-includes-location: https://github.com/prometheus/common/blob/main/version/info.go
// Provenance-includes-license: Apache-2.0
// Provenance-includes-copyright: The Prometheus Authors.

package version

import (
	"fmt"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// Build information. Populated at build-time via -ldflags.
var (
	Version   = "unknown"
	Revision  = "unknown"
	Branch    = "unknown"
	GoVersion = runtime.Version()
)

// NewCollector returns a collector exporting a constant build_info metric for program.
func NewCollector(program string) prometheus.Collector {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: program,
			Name:      "build_info",
			Help:      fmt.Sprintf("A metric with a constant '1' value labeled by version, revision, branch, and goversion from which %s was built.", program),
			ConstLabels: prometheus.Labels{
				"version":   Version,
				"revision":  Revision,
				"branch":    Branch,
				"goversion": GoVersion,
			},
		},
		func() float64 { return 1 },
	)
}

// Print returns a human readable description of the build.
func Print(program string) string {
	return fmt.Sprintf("%s, version %s (branch: %s, revision: %s)\n  go version:       %s\n  platform:         %s/%s",
		program, Version, Branch, Revision, GoVersion, runtime.GOOS, runtime.GOARCH)
}

// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/flagext"
	dslog "github.com/grafana/dskit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/grafana/cachehint/pkg/cachehint"
	"github.com/grafana/cachehint/pkg/util/version"
)

const programName = "cachehint"

type config struct {
	files           flagext.StringSliceCSV
	dir             string
	outputFormat    string
	metricsTextfile string
	logLevel        dslog.Level
	logFormat       string
	printVersion    bool
}

func (c *config) registerFlags(f *flag.FlagSet) {
	c.files = flagext.StringSliceCSV{"qps1.log", "qps2.log", "qps3.log"}
	_ = c.logLevel.Set("info")

	formats := make([]string, 0, len(cachehint.Formats))
	for _, format := range cachehint.Formats {
		formats = append(formats, string(format))
	}

	f.Var(&c.files, "files", "Comma separated list of logs to analyze, in order.")
	f.StringVar(&c.dir, "dir", ".", "Directory relative file names are resolved against.")
	f.StringVar(&c.outputFormat, "output.format", string(cachehint.FormatText), "Report format. Supported values: "+strings.Join(formats, ", ")+".")
	f.StringVar(&c.metricsTextfile, "metrics.textfile", "", "If set, analysis metrics are written to this file in the Prometheus text format once the run completes.")
	f.Var(&c.logLevel, "log.level", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error]")
	f.StringVar(&c.logFormat, "log.format", dslog.LogfmtFormat, "Output log messages in the given format. Valid formats: [logfmt, json]")
	f.BoolVar(&c.printVersion, "version", false, "Print version and exit.")
}

func (c *config) validate() error {
	if len(c.files) == 0 {
		return fmt.Errorf("at least one log file is required")
	}
	for _, file := range c.files {
		if strings.TrimSpace(file) == "" {
			return fmt.Errorf("empty log file name in -files")
		}
	}
	if _, err := cachehint.ParseFormat(c.outputFormat); err != nil {
		return err
	}
	if c.logFormat != dslog.LogfmtFormat && c.logFormat != dslog.JSONFormat {
		return fmt.Errorf("unsupported log format %q", c.logFormat)
	}
	return nil
}

// paths resolves the configured files against dir.
func (c *config) paths() []string {
	paths := make([]string, 0, len(c.files))
	for _, file := range c.files {
		if filepath.IsAbs(file) {
			paths = append(paths, file)
			continue
		}
		paths = append(paths, filepath.Join(c.dir, file))
	}
	return paths
}

func main() {
	// Clean up all flags registered via init() methods of 3rd-party libraries.
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	cfg := config{}
	cfg.registerFlags(flag.CommandLine)

	// Parse CLI arguments.
	if err := flagext.ParseFlagsWithoutArguments(flag.CommandLine); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	if cfg.printVersion {
		writeVersion(os.Stdout)
		return
	}

	if err := cfg.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, afero.NewOsFs(), os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func writeVersion(w io.Writer) {
	fmt.Fprintln(w, version.Print(programName))
}

// newLogger builds the stderr logger configured by -log.level and -log.format.
func newLogger(cfg config) log.Logger {
	logger := dslog.NewGoKitWithLevel(cfg.logLevel, cfg.logFormat)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

// run analyzes every configured log and writes the reports to out. Nothing is written to out
// unless every log was analyzed successfully.
func run(ctx context.Context, cfg config, fs afero.Fs, out io.Writer, logger log.Logger) error {
	format, err := cachehint.ParseFormat(cfg.outputFormat)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(version.NewCollector(programName))

	analyzer := cachehint.NewAnalyzer(fs, logger, reg)
	reports, runErr := analyzer.Run(ctx, cfg.paths())

	// Metrics are written even when the run fails, they show how far it got.
	if cfg.metricsTextfile != "" {
		if err := prometheus.WriteToTextfile(cfg.metricsTextfile, reg); err != nil {
			level.Warn(logger).Log("msg", "failed to write metrics textfile", "path", cfg.metricsTextfile, "err", err)
		}
	}

	if runErr != nil {
		return errors.Wrap(runErr, "analysis failed")
	}

	return cachehint.Write(format, out, reports)
}

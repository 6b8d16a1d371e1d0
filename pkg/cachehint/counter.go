// SPDX-License-Identifier: AGPL-3.0-only

package cachehint

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Markers emitted by the buffer pool's scan threads. The colon is part of the marker.
const (
	AccessMarker = "scan线程访问page数:"
	HitMarker    = "缓存命中数:"
)

// maxLineSize bounds a single log line. Debug logs occasionally carry large dumps.
const maxLineSize = 1 << 20

var (
	// ErrNoAccesses is returned when a log has no page accesses to divide by.
	ErrNoAccesses = errors.New("no page accesses recorded, hit percentage is undefined")
	// ErrNegativeValue is returned for a marker line carrying a negative count.
	ErrNegativeValue = errors.New("negative counter value")
	// ErrCounterOverflow is returned when the access total no longer fits in an int64.
	ErrCounterOverflow = errors.New("page access total overflows int64")
)

// Result holds the counters collected by a single pass over a log.
type Result struct {
	TotalAccess int64
	// CacheHits is taken from the last hit line, it is not summed.
	CacheHits int64
}

// HitPercentage returns CacheHits / TotalAccess * 100. It is not clamped.
func (r Result) HitPercentage() (float64, error) {
	if r.TotalAccess == 0 {
		return 0, ErrNoAccesses
	}
	return float64(r.CacheHits) / float64(r.TotalAccess) * 100, nil
}

// LineError reports a marker line whose value could not be used.
type LineError struct {
	Line   int
	Marker string
	Value  string
	Err    error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: invalid value %q after marker %q: %v", e.Line, e.Value, e.Marker, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// lineObserver is notified for every scanned line. The analyzer uses it for metrics.
type lineObserver interface {
	observeLine()
	observeMarker(marker string)
}

// count runs a single pass over r.
func count(r io.Reader, obs lineObserver) (Result, error) {
	var res Result

	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for s.Scan() {
		lineNo++
		line := s.Text()
		obs.observeLine()

		switch {
		case strings.Contains(line, AccessMarker):
			v, err := parseValue(line, lineNo, AccessMarker)
			if err != nil {
				return Result{}, err
			}
			if v > math.MaxInt64-res.TotalAccess {
				return Result{}, &LineError{Line: lineNo, Marker: AccessMarker, Value: strconv.FormatInt(v, 10), Err: ErrCounterOverflow}
			}
			obs.observeMarker(AccessMarker)
			res.TotalAccess += v

		case strings.Contains(line, HitMarker):
			v, err := parseValue(line, lineNo, HitMarker)
			if err != nil {
				return Result{}, err
			}
			obs.observeMarker(HitMarker)
			res.CacheHits = v
		}
	}
	if err := s.Err(); err != nil {
		return Result{}, errors.Wrapf(err, "reading line %d", lineNo+1)
	}

	return res, nil
}

// parseValue parses the integer following the first colon of line.
func parseValue(line string, lineNo int, marker string) (int64, error) {
	// Markers end with a colon, so the cut always succeeds on a matched line.
	_, rest, _ := strings.Cut(line, ":")
	rest = strings.TrimSpace(rest)

	v, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, &LineError{Line: lineNo, Marker: marker, Value: rest, Err: err}
	}
	if v < 0 {
		return 0, &LineError{Line: lineNo, Marker: marker, Value: rest, Err: ErrNegativeValue}
	}
	return v, nil
}

// counter counts log files read from a filesystem.
type counter struct {
	fs afero.Fs
}

func newCounter(fs afero.Fs) *counter {
	return &counter{fs: fs}
}

// countFile runs a single pass over the file at path. The file is closed before returning.
func (c *counter) countFile(path string, obs lineObserver) (_ Result, returnErr error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return Result{}, errors.Wrapf(err, "open log %s", path)
	}
	defer func() {
		if err := f.Close(); err != nil && returnErr == nil {
			returnErr = errors.Wrapf(err, "close log %s", path)
		}
	}()

	res, err := count(f, obs)
	if err != nil {
		return Result{}, errors.Wrapf(err, "log %s", path)
	}
	return res, nil
}

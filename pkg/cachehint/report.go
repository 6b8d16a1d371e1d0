// SPDX-License-Identifier: AGPL-3.0-only

package cachehint

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Format selects how reports are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists every supported Format.
var Formats = []Format{FormatText, FormatJSON, FormatYAML}

// ParseFormat returns the Format named s.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

// Write renders reports to w in the given format.
func Write(format Format, w io.Writer, reports []Report) error {
	switch format {
	case FormatText:
		return WriteText(w, reports)
	case FormatJSON:
		return WriteJSON(w, reports)
	case FormatYAML:
		return WriteYAML(w, reports)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteText prints four lines per report:
//
//	qps1:
//	总访问数: 150
//	缓存命中数: 45
//	百分比: 30.0%
func WriteText(w io.Writer, reports []Report) error {
	for _, r := range reports {
		_, err := fmt.Fprintf(w, "%s:\n总访问数: %d\n缓存命中数: %d\n百分比: %s%%\n",
			r.Label, r.TotalAccess, r.CacheHits, formatPercentage(r.Percentage))
		if err != nil {
			return errors.Wrap(err, "write report")
		}
	}
	return nil
}

// WriteJSON prints reports as an indented JSON array.
func WriteJSON(w io.Writer, reports []Report) error {
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(reports, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode reports")
	}
	out = append(out, '\n')
	if _, err := w.Write(out); err != nil {
		return errors.Wrap(err, "write reports")
	}
	return nil
}

// WriteYAML prints reports as a YAML sequence.
func WriteYAML(w io.Writer, reports []Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(reports); err != nil {
		return errors.Wrap(err, "encode reports")
	}
	return errors.Wrap(enc.Close(), "encode reports")
}

// formatPercentage prints the shortest round-tripping representation. Magnitudes below 1e-4
// or from 1e16 up use exponent notation (1e-05), others keep a fractional part (30.0).
func formatPercentage(f float64) string {
	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

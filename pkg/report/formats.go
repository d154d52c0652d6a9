// Package report renders run outcomes and aggregated detection totals.
package report

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatPlot = "plot"
)

// ErrUnsupportedFormat indicates the requested output format is not supported.
var ErrUnsupportedFormat = errors.New("unsupported format")

// NormalizeFormat canonicalizes a user-provided output format string.
func NormalizeFormat(format string) string {
	return strings.ToLower(strings.TrimSpace(format))
}

// RunFormats lists the formats a run report can be written in.
func RunFormats() []string {
	return []string{FormatText, FormatJSON, FormatYAML}
}

// TotalsFormats lists the formats aggregated totals can be written in.
func TotalsFormats() []string {
	return []string{FormatText, FormatJSON, FormatYAML, FormatPlot}
}

// ValidateFormat checks whether a format is in the provided support list.
func ValidateFormat(format string, supported []string) (string, error) {
	normalized := NormalizeFormat(format)
	if slices.Contains(supported, normalized) {
		return normalized, nil
	}

	return "", fmt.Errorf("%w: %s (supported: %s)", ErrUnsupportedFormat, format, strings.Join(supported, ", "))
}

package templates

import (
	"fmt"
	"html/template"
	"time"

	"github.com/ethereum-optimism/infra/op-remote/types"
)

// GetTemplateFunc returns the centralized template functions used by the HTML report
func GetTemplateFunc() template.FuncMap {
	return template.FuncMap{
		"formatDuration": FormatDuration,
		"getStatusClass": func(status types.TestStatus) string {
			return getStatusString(status)
		},
		"getStatusText": func(status types.TestStatus) string {
			switch status {
			case types.TestStatusSuccess:
				return "PASS"
			case types.TestStatusFailure:
				return "FAIL"
			case types.TestStatusSkipped:
				return "SKIP"
			default:
				return "UNKNOWN"
			}
		},
		"percentage": func(c types.Counts, part int) string {
			return fmt.Sprintf("%.1f%%", c.Percentage(part))
		},
		"add": func(a, b int) int {
			return a + b
		},
	}
}

// FormatDuration formats a duration for display
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

// getStatusString returns a consistent lowercase status string
func getStatusString(status types.TestStatus) string {
	switch status {
	case types.TestStatusSuccess:
		return "pass"
	case types.TestStatusFailure:
		return "fail"
	case types.TestStatusSkipped:
		return "skip"
	default:
		return "unknown"
	}
}

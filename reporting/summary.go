package reporting

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-remote/templates"
	"github.com/ethereum-optimism/infra/op-remote/types"
)

// Summary is the aggregate report of a run
type Summary struct {
	XMLName           xml.Name `xml:"summary" json:"-" yaml:"-"`
	Total             int      `xml:"total" json:"total" yaml:"total"`
	Passed            int      `xml:"passed" json:"passed" yaml:"passed"`
	Failed            int      `xml:"failed" json:"failed" yaml:"failed"`
	Skipped           int      `xml:"skipped" json:"skipped" yaml:"skipped"`
	SuccessPercentage string   `xml:"successPercentage" json:"successPercentage" yaml:"successPercentage"`
	FailedPercentage  string   `xml:"failedPercentage" json:"failedPercentage" yaml:"failedPercentage"`
	SkippedPercentage string   `xml:"skippedPercentage" json:"skippedPercentage" yaml:"skippedPercentage"`
	Duration          string   `xml:"duration" json:"duration" yaml:"duration"`
	DurationMillis    int64    `xml:"durationMillis" json:"durationMillis" yaml:"durationMillis"`
}

// NewSummary computes the summary of a result set
func NewSummary(rs types.ResultSet) Summary {
	c := rs.Counts()
	return Summary{
		Total:             c.Total,
		Passed:            c.Passed,
		Failed:            c.Failed,
		Skipped:           c.Skipped,
		SuccessPercentage: fmt.Sprintf("%.1f", c.Percentage(c.Passed)),
		FailedPercentage:  fmt.Sprintf("%.1f", c.Percentage(c.Failed)),
		SkippedPercentage: fmt.Sprintf("%.1f", c.Percentage(c.Skipped)),
		Duration:          templates.FormatDuration(rs.Duration()),
		DurationMillis:    rs.Duration().Milliseconds(),
	}
}

// Encode renders the summary in the format implied by the file name
// extension: .json, .yaml or .yml, and XML for anything else
func (s Summary) Encode(fileName string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".json":
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case ".yaml", ".yml":
		return yaml.Marshal(s)
	default:
		data, err := xml.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, err
		}
		return append([]byte(xml.Header), append(data, '\n')...), nil
	}
}

// RenderSummary writes the summary report to <report dir>/<summary file name>
func (p *Pipeline) RenderSummary(rs types.ResultSet) error {
	data, err := NewSummary(rs).Encode(p.cfg.SummaryFileName)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	path := filepath.Join(p.ReportDir(), p.cfg.SummaryFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary %s: %w", path, err)
	}
	return nil
}

package reporting

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/op-remote/templates"
	"github.com/ethereum-optimism/infra/op-remote/types"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

const reportTemplate = "report.html.tmpl"

// GetHTMLTemplate returns the named embedded HTML template with the shared
// template functions attached
func GetHTMLTemplate(name string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(templates.GetTemplateFunc()).ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return tmpl, nil
}

type htmlReportData struct {
	Title    string
	Status   types.TestStatus
	Counts   types.Counts
	Duration time.Duration
	Outcomes []types.TestOutcome
}

// RenderHTML writes the HTML report to <report dir>/html/index.html
func (p *Pipeline) RenderHTML(rs types.ResultSet) error {
	tmpl, err := GetHTMLTemplate(reportTemplate)
	if err != nil {
		return err
	}

	data := htmlReportData{
		Title:    fmt.Sprintf("%s test results", p.cfg.SuiteName),
		Status:   rs.Status(),
		Counts:   rs.Counts(),
		Duration: rs.Duration(),
		Outcomes: rs.Outcomes(),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}

	htmlDir := filepath.Join(p.ReportDir(), HTMLDir)
	if err := os.MkdirAll(htmlDir, 0755); err != nil {
		return fmt.Errorf("failed to create HTML directory %s: %w", htmlDir, err)
	}
	if err := os.WriteFile(filepath.Join(htmlDir, HTMLFileName), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write HTML report: %w", err)
	}
	return nil
}

package reporting

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-remote/types"
)

const (
	DefaultDirectory       = "op-remote-reports"
	DefaultSummaryFileName = "op-remote-summary.xml"
	DefaultSuiteName       = "op-remote"

	HTMLDir         = "html"
	HTMLFileName    = "index.html"
	JUnitReportsDir = "junitreports"
	ConsoleFileName = "summary.log"
)

// ArtifactFetcher downloads the report files a server kept for the last run
type ArtifactFetcher interface {
	FetchArtifactList(ctx context.Context) ([]string, error)
	FetchSuiteArtifact(ctx context.Context) (io.ReadCloser, error)
	FetchArtifact(ctx context.Context, name string) (io.ReadCloser, error)
}

// Config holds the configuration of the report pipeline
type Config struct {
	OutputDir       string
	Directory       string
	HTMLEnabled     bool
	SummaryFileName string
	SaveReportFiles bool
	SuiteName       string

	// ConsoleWriter receives the console rendering; nil disables it
	ConsoleWriter io.Writer
	Color         bool
	Log           log.Logger
}

// Pipeline turns a final ResultSet into reports on disk
type Pipeline struct {
	cfg Config
	log log.Logger
}

// NewPipeline creates a report pipeline
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if cfg.Directory == "" {
		cfg.Directory = DefaultDirectory
	}
	if filepath.IsAbs(cfg.Directory) {
		return nil, fmt.Errorf("report directory %q must be relative to the output directory", cfg.Directory)
	}
	if cfg.SummaryFileName == "" {
		cfg.SummaryFileName = DefaultSummaryFileName
	}
	if cfg.SummaryFileName != filepath.Base(cfg.SummaryFileName) {
		return nil, fmt.Errorf("summary file name %q must not contain a path", cfg.SummaryFileName)
	}
	if cfg.SuiteName == "" {
		cfg.SuiteName = DefaultSuiteName
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Pipeline{cfg: cfg, log: cfg.Log}, nil
}

// ReportDir is the directory all reports are written to
func (p *Pipeline) ReportDir() string {
	return filepath.Join(p.cfg.OutputDir, p.cfg.Directory)
}

// Process writes every enabled report for the run. Failing to create the
// report directories or to write a local report is fatal; problems with
// single remote artifacts are returned as warnings.
func (p *Pipeline) Process(ctx context.Context, rs types.ResultSet, fetcher ArtifactFetcher) ([]string, error) {
	reportDir := p.ReportDir()
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", reportDir, err)
	}
	collect := p.cfg.SaveReportFiles && fetcher != nil
	if collect {
		junitDir := filepath.Join(reportDir, JUnitReportsDir)
		if err := os.MkdirAll(junitDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create JUnit reports directory %s: %w", junitDir, err)
		}
	}

	if p.cfg.ConsoleWriter != nil {
		if _, err := io.WriteString(p.cfg.ConsoleWriter, p.RenderConsole(rs)); err != nil {
			p.log.Warn("Failed to print console report", "err", err)
		}
	}
	if err := p.writeConsoleFile(rs); err != nil {
		return nil, err
	}

	if p.cfg.HTMLEnabled {
		if err := p.RenderHTML(rs); err != nil {
			return nil, err
		}
	}

	if err := p.RenderSummary(rs); err != nil {
		return nil, err
	}

	var warnings []string
	if collect {
		warnings = p.CollectArtifacts(ctx, fetcher)
	}

	p.log.Info("Reports written", "dir", reportDir, "warnings", len(warnings))
	return warnings, nil
}

func (p *Pipeline) writeConsoleFile(rs types.ResultSet) error {
	plain := *p
	plain.cfg.Color = false

	path := filepath.Join(p.ReportDir(), ConsoleFileName)
	if err := os.WriteFile(path, []byte(plain.RenderConsole(rs)), 0644); err != nil {
		return fmt.Errorf("failed to write console report: %w", err)
	}
	return nil
}

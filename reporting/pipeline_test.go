package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-remote/types"
)

type fakeFetcher struct {
	names   []string
	listErr error
	suite   string
	files   map[string]string
}

func (f *fakeFetcher) FetchArtifactList(ctx context.Context) ([]string, error) {
	return f.names, f.listErr
}

func (f *fakeFetcher) FetchSuiteArtifact(ctx context.Context) (io.ReadCloser, error) {
	if f.suite == "" {
		return nil, errors.New("no suite")
	}
	return io.NopCloser(strings.NewReader(f.suite)), nil
}

func (f *fakeFetcher) FetchArtifact(ctx context.Context, name string) (io.ReadCloser, error) {
	content, ok := f.files[name]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func sampleResults() types.ResultSet {
	return types.NewResultSet(
		types.NewTestOutcome("TestA", types.TestStatusSuccess, "", 100*time.Millisecond),
		types.NewTestOutcome("TestB", types.TestStatusFailure, "expected 1, got 2", 200*time.Millisecond),
		types.NewTestOutcome("TestC", types.TestStatusSkipped, "", 0),
		types.NewTestOutcome("TestD", types.TestStatusSuccess, "", 300*time.Millisecond),
	)
}

func newTestPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	if cfg.OutputDir == "" {
		cfg.OutputDir = t.TempDir()
	}
	p, err := NewPipeline(cfg)
	require.NoError(t, err)
	return p
}

func TestNewPipelineValidation(t *testing.T) {
	_, err := NewPipeline(Config{})
	assert.Error(t, err)

	_, err = NewPipeline(Config{OutputDir: t.TempDir(), SummaryFileName: "nested/summary.xml"})
	assert.Error(t, err)

	_, err = NewPipeline(Config{OutputDir: t.TempDir(), Directory: "/abs"})
	assert.Error(t, err)

	p, err := NewPipeline(Config{OutputDir: "out"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", DefaultDirectory), p.ReportDir())
}

func TestRenderConsoleSymbols(t *testing.T) {
	p := newTestPipeline(t, Config{})

	assert.Equal(t, "+-x+", SymbolLine(sampleResults(), false))

	out := p.RenderConsole(sampleResults())
	lines := strings.Split(out, "\n")
	assert.Equal(t, "+-x+", lines[0])
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "TestB: expected 1, got 2")
	assert.Contains(t, out, "50.0%")
}

func TestRenderConsoleFailureTree(t *testing.T) {
	p := newTestPipeline(t, Config{})
	rs := types.NewResultSet(
		types.NewTestOutcome("example.com/smoke.TestLogin/admin", types.TestStatusFailure, "wrong password", 0),
		types.NewTestOutcome("example.com/smoke.TestLogin", types.TestStatusFailure, "", 0),
		types.NewTestOutcome("example.com/smoke.TestCheckout", types.TestStatusFailure, "timeout", 0),
		types.NewTestOutcome("example.com/api.TestPing", types.TestStatusSuccess, "", 0),
	)

	out := p.RenderConsole(rs)
	expected := "Failed tests:\n" +
		"example.com/smoke\n" +
		"├── - TestLogin\n" +
		"│   └── - admin: wrong password\n" +
		"└── - TestCheckout: timeout\n"
	assert.True(t, strings.HasSuffix(out, expected), out)
}

func TestRenderConsoleIdempotent(t *testing.T) {
	for _, colored := range []bool{false, true} {
		p := newTestPipeline(t, Config{Color: colored})
		rs := sampleResults()
		assert.Equal(t, p.RenderConsole(rs), p.RenderConsole(rs))
	}
}

func TestRenderConsoleEmpty(t *testing.T) {
	p := newTestPipeline(t, Config{})
	out := p.RenderConsole(types.NewResultSet())
	assert.True(t, strings.HasPrefix(out, "\n"), "empty symbol line")
	assert.Contains(t, out, "PASS")
}

func TestRenderSummaryFormats(t *testing.T) {
	tests := []struct {
		fileName string
		decode   func([]byte, *Summary) error
	}{
		{fileName: DefaultSummaryFileName, decode: func(b []byte, s *Summary) error { return xml.Unmarshal(b, s) }},
		{fileName: "summary.json", decode: func(b []byte, s *Summary) error { return json.Unmarshal(b, s) }},
		{fileName: "summary.yaml", decode: func(b []byte, s *Summary) error { return yaml.Unmarshal(b, s) }},
	}

	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			p := newTestPipeline(t, Config{SummaryFileName: tt.fileName})
			require.NoError(t, os.MkdirAll(p.ReportDir(), 0755))
			require.NoError(t, p.RenderSummary(sampleResults()))

			data, err := os.ReadFile(filepath.Join(p.ReportDir(), tt.fileName))
			require.NoError(t, err)

			var s Summary
			require.NoError(t, tt.decode(data, &s))
			assert.Equal(t, 4, s.Total)
			assert.Equal(t, 2, s.Passed)
			assert.Equal(t, 1, s.Failed)
			assert.Equal(t, 1, s.Skipped)
			assert.Equal(t, "50.0", s.SuccessPercentage)
			assert.Equal(t, "25.0", s.FailedPercentage)
			assert.Equal(t, int64(600), s.DurationMillis)
		})
	}
}

func TestProcessWritesReports(t *testing.T) {
	var console bytes.Buffer
	p := newTestPipeline(t, Config{
		HTMLEnabled:     true,
		SaveReportFiles: true,
		ConsoleWriter:   &console,
	})

	fetcher := &fakeFetcher{
		names: []string{"TestA.xml"},
		suite: "<testsuite/>",
		files: map[string]string{"TestA.xml": "<testsuite name=\"TestA\"/>"},
	}

	warnings, err := p.Process(context.Background(), sampleResults(), fetcher)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	dir := p.ReportDir()
	assert.FileExists(t, filepath.Join(dir, DefaultSummaryFileName))
	assert.FileExists(t, filepath.Join(dir, ConsoleFileName))
	assert.FileExists(t, filepath.Join(dir, JUnitReportsDir, "TEST-op-remote.xml"))
	assert.FileExists(t, filepath.Join(dir, JUnitReportsDir, "TestA.xml"))
	assert.True(t, strings.HasPrefix(console.String(), "+-x+"))

	html, err := os.ReadFile(filepath.Join(dir, HTMLDir, HTMLFileName))
	require.NoError(t, err)
	assert.Contains(t, string(html), "TestB")
	assert.Contains(t, string(html), "expected 1, got 2")
	assert.Contains(t, string(html), "Passed: 2 (50.0%)")
}

func TestProcessSkipsDisabledReports(t *testing.T) {
	p := newTestPipeline(t, Config{})

	warnings, err := p.Process(context.Background(), sampleResults(), &fakeFetcher{})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	dir := p.ReportDir()
	assert.FileExists(t, filepath.Join(dir, DefaultSummaryFileName))
	assert.NoDirExists(t, filepath.Join(dir, HTMLDir))
	assert.NoDirExists(t, filepath.Join(dir, JUnitReportsDir))
}

func TestProcessFailsWhenReportDirCannotBeCreated(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	p := newTestPipeline(t, Config{OutputDir: blocker})
	_, err := p.Process(context.Background(), sampleResults(), nil)
	assert.Error(t, err)
}

func TestProcessFailsWhenJUnitDirCannotBeCreated(t *testing.T) {
	p := newTestPipeline(t, Config{SaveReportFiles: true})
	require.NoError(t, os.MkdirAll(p.ReportDir(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(p.ReportDir(), JUnitReportsDir), []byte("x"), 0644))

	fetcher := &fakeFetcher{names: []string{"a.xml"}, suite: "<testsuite/>", files: map[string]string{"a.xml": "<a/>"}}
	warnings, err := p.Process(context.Background(), sampleResults(), fetcher)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JUnit reports directory")
	assert.Empty(t, warnings)
	assert.NoFileExists(t, filepath.Join(p.ReportDir(), DefaultSummaryFileName))
}

func TestCollectArtifactsPartialFailure(t *testing.T) {
	p := newTestPipeline(t, Config{SaveReportFiles: true})
	require.NoError(t, os.MkdirAll(filepath.Join(p.ReportDir(), JUnitReportsDir), 0755))

	fetcher := &fakeFetcher{
		names: []string{"a.xml", "b.xml"},
		suite: "<testsuite/>",
		files: map[string]string{"a.xml": "<a/>"},
	}

	warnings := p.CollectArtifacts(context.Background(), fetcher)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "b.xml")

	junitDir := filepath.Join(p.ReportDir(), JUnitReportsDir)
	assert.FileExists(t, filepath.Join(junitDir, "a.xml"))
	assert.NoFileExists(t, filepath.Join(junitDir, "b.xml"))
}

func TestCollectArtifactsListFailure(t *testing.T) {
	p := newTestPipeline(t, Config{SaveReportFiles: true})
	require.NoError(t, os.MkdirAll(filepath.Join(p.ReportDir(), JUnitReportsDir), 0755))

	fetcher := &fakeFetcher{listErr: errors.New("connection refused"), suite: "<testsuite/>"}

	warnings := p.CollectArtifacts(context.Background(), fetcher)
	require.Len(t, warnings, 1)
	assert.FileExists(t, filepath.Join(p.ReportDir(), JUnitReportsDir, SuiteFileName(DefaultSuiteName)))
}

func TestSanitizeArtifactName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "a.xml", want: "a.xml", ok: true},
		{in: "../../etc/passwd", want: "passwd", ok: true},
		{in: "dir\\b.xml", want: "b.xml", ok: true},
		{in: "..", ok: false},
		{in: "", ok: false},
		{in: "/", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := SanitizeArtifactName(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

package reporting

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum-optimism/infra/op-remote/metrics"
)

// SuiteFileName returns the file name the suite summary is stored under
func SuiteFileName(suite string) string {
	return fmt.Sprintf("TEST-%s.xml", suite)
}

// SanitizeArtifactName reduces a remote file name to a safe local base name.
// It returns false when nothing usable is left.
func SanitizeArtifactName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == ".." || base == "/" || strings.TrimSpace(base) == "" {
		return "", false
	}
	return base, true
}

// CollectArtifacts downloads the suite summary and every listed report file
// into <report dir>/junitreports, which must already exist. Every failure
// becomes a warning and the remaining files are still fetched.
func (p *Pipeline) CollectArtifacts(ctx context.Context, fetcher ArtifactFetcher) []string {
	var warnings []string
	warn := func(msg string, err error) {
		p.log.Warn(msg, "err", err)
		warnings = append(warnings, fmt.Sprintf("%s: %v", msg, err))
	}
	defer func() {
		metrics.RecordArtifactWarnings(len(warnings))
	}()

	junitDir := filepath.Join(p.ReportDir(), JUnitReportsDir)

	names, err := fetcher.FetchArtifactList(ctx)
	if err != nil {
		warn("Failed to list remote report files", err)
		names = nil
	}

	suiteName := SuiteFileName(p.cfg.SuiteName)
	if err := p.storeArtifact(junitDir, suiteName, func() (io.ReadCloser, error) {
		return fetcher.FetchSuiteArtifact(ctx)
	}); err != nil {
		warn(fmt.Sprintf("Failed to save suite report %s", suiteName), err)
	}

	for _, name := range names {
		local, ok := SanitizeArtifactName(name)
		if !ok {
			warn(fmt.Sprintf("Skipping report file %q", name), fmt.Errorf("invalid file name"))
			continue
		}
		if local == suiteName {
			continue
		}
		remote := name
		if err := p.storeArtifact(junitDir, local, func() (io.ReadCloser, error) {
			return fetcher.FetchArtifact(ctx, remote)
		}); err != nil {
			warn(fmt.Sprintf("Failed to save report file %s", name), err)
		}
	}

	return warnings
}

func (p *Pipeline) storeArtifact(dir, name string, open func() (io.ReadCloser, error)) error {
	rc, err := open()
	if err != nil {
		return err
	}
	defer rc.Close()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	p.log.Debug("Saved report file", "path", path)
	return nil
}

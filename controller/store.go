package controller

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-remote/junit"
	"github.com/ethereum-optimism/infra/op-remote/types"
)

const suiteFileName = "suite.xml"

// ErrArtifactNotFound is returned for report files the store does not hold
var ErrArtifactNotFound = errors.New("report file not found")

// ArtifactStore keeps the JUnit reports of the last finished run on disk
type ArtifactStore struct {
	dir   string
	suite string
	log   log.Logger

	mu       sync.RWMutex
	names    []string
	files    map[string]string
	hasSuite bool
}

// NewArtifactStore creates a store writing into dir
func NewArtifactStore(dir string, suite string, logger log.Logger) (*ArtifactStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if logger == nil {
		logger = log.New()
	}
	return &ArtifactStore{
		dir:   dir,
		suite: suite,
		log:   logger,
		files: make(map[string]string),
	}, nil
}

// Dir returns the directory the store writes to
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Save replaces the stored reports with the ones of rs: one suite summary and
// one document per test.
func (s *ArtifactStore) Save(rs types.ResultSet, timestamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clear()

	suite, err := junit.RenderSuite(s.suite, rs, timestamp)
	if err != nil {
		return fmt.Errorf("failed to render suite report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, suiteFileName), suite, 0644); err != nil {
		return fmt.Errorf("failed to write suite report: %w", err)
	}
	s.hasSuite = true

	var errs []error
	for _, o := range rs.Outcomes() {
		name := s.uniqueName(junit.FileName(o.Name))
		data, err := junit.RenderTest(o, timestamp)
		if err != nil {
			errs = append(errs, fmt.Errorf("render %s: %w", o.Name, err))
			continue
		}
		path := filepath.Join(s.dir, "tests", name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create test report directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", name, err))
			continue
		}
		s.files[name] = path
		s.names = append(s.names, name)
	}

	s.log.Debug("Stored test reports", "dir", s.dir, "files", len(s.names))
	return errors.Join(errs...)
}

func (s *ArtifactStore) uniqueName(name string) string {
	if _, taken := s.files[name]; !taken {
		return name
	}
	base := strings.TrimSuffix(name, ".xml")
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d.xml", base, i)
		if _, taken := s.files[candidate]; !taken {
			return candidate
		}
	}
}

func (s *ArtifactStore) clear() {
	for _, path := range s.files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn("Failed to remove old report", "path", path, "err", err)
		}
	}
	s.files = make(map[string]string)
	s.names = nil
	s.hasSuite = false
}

// Names lists the per-test report files in sorted order
func (s *ArtifactStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := append([]string{}, s.names...)
	sort.Strings(names)
	return names
}

// Suite returns the suite summary report
func (s *ArtifactStore) Suite() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasSuite {
		return nil, ErrArtifactNotFound
	}
	return os.ReadFile(filepath.Join(s.dir, suiteFileName))
}

// File returns a per-test report. Only names returned by Names are served.
func (s *ArtifactStore) File(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
	}
	return os.ReadFile(path)
}

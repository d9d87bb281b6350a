package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-remote/testlist"
	"github.com/ethereum-optimism/infra/op-remote/types"
)

const (
	DefaultGoBinary = "go"

	TestCommand        = "test"
	JSONFlag           = "-json"
	TimeoutFlag        = "-timeout"
	CountFlag          = "-count"
	RunFlag            = "-run"
	DisableCacheCount  = "1"
	AllPackagesPattern = "./..."

	maxEventLine = 4 * 1024 * 1024
)

// CmdBuilder creates the command for one go invocation
type CmdBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd

// GoTestConfig holds the configuration of a GoTestEngine
type GoTestConfig struct {
	Name       string
	WorkDir    string
	GoBinary   string
	Timeout    time.Duration
	Log        log.Logger
	CmdBuilder CmdBuilder
}

// GoTestEngine runs tests with go test -json in a Go module directory
type GoTestEngine struct {
	name       string
	workDir    string
	goBinary   string
	timeout    time.Duration
	log        log.Logger
	cmdBuilder CmdBuilder
}

var _ Engine = (*GoTestEngine)(nil)

// invocation is a single go test call
type invocation struct {
	pkg      string
	patterns []string
	run      string
	// expected lists top-level tests that must produce an outcome
	expected []string
}

// NewGoTestEngine creates a go test engine
func NewGoTestEngine(cfg GoTestConfig) (*GoTestEngine, error) {
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work directory is required")
	}
	if info, err := os.Stat(cfg.WorkDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("work directory %s is not a directory", cfg.WorkDir)
	}
	if cfg.Name == "" {
		cfg.Name = "go"
	}
	if cfg.GoBinary == "" {
		cfg.GoBinary = DefaultGoBinary
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = exec.CommandContext
	}

	return &GoTestEngine{
		name:       cfg.Name,
		workDir:    cfg.WorkDir,
		goBinary:   cfg.GoBinary,
		timeout:    cfg.Timeout,
		log:        cfg.Log,
		cmdBuilder: cfg.CmdBuilder,
	}, nil
}

func (e *GoTestEngine) Name() string { return e.name }

// Run executes the plan. Test failures are outcomes, not errors; an error
// means go itself could not run.
func (e *GoTestEngine) Run(ctx context.Context, plan Plan, emit func(types.TestOutcome)) error {
	invocations, err := e.plan(plan)
	if err != nil {
		return err
	}

	for _, inv := range invocations {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.runInvocation(ctx, plan, inv, emit); err != nil {
			return err
		}
	}
	return nil
}

func (e *GoTestEngine) plan(plan Plan) ([]invocation, error) {
	include := IncludePattern(plan.Includes)

	switch plan.Selector.Kind() {
	case types.SelectAllKind:
		return []invocation{{patterns: []string{AllPackagesPattern}, run: include}}, nil

	case types.SelectPackagesKind:
		patterns := make([]string, 0, len(plan.Selector.Names()))
		for _, pkg := range plan.Selector.Names() {
			rel, err := testlist.ResolvePackage(pkg, e.workDir)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve package %s: %w", pkg, err)
			}
			patterns = append(patterns, rel)
		}
		return []invocation{{patterns: patterns, run: include}}, nil

	case types.SelectClassesKind:
		byPkg := make(map[string][]string)
		for _, class := range plan.Selector.Names() {
			pkg, test := types.SplitTestName(class)
			byPkg[pkg] = append(byPkg[pkg], test)
		}
		pkgs := make([]string, 0, len(byPkg))
		for pkg := range byPkg {
			pkgs = append(pkgs, pkg)
		}
		sort.Strings(pkgs)

		invocations := make([]invocation, 0, len(pkgs))
		for _, pkg := range pkgs {
			tests := byPkg[pkg]
			inv := invocation{pkg: pkg, run: ClassPattern(tests), patterns: []string{AllPackagesPattern}}
			if pkg != "" {
				rel, err := testlist.ResolvePackage(pkg, e.workDir)
				if err != nil {
					return nil, fmt.Errorf("failed to resolve package of %s: %w", pkg, err)
				}
				inv.patterns = []string{rel}
				inv.expected = tests
			}
			invocations = append(invocations, inv)
		}
		return invocations, nil

	default:
		return nil, fmt.Errorf("unknown selector %s", plan.Selector)
	}
}

func (e *GoTestEngine) buildArgs(inv invocation) []string {
	args := []string{TestCommand, JSONFlag, CountFlag, DisableCacheCount}
	if e.timeout > 0 {
		args = append(args, TimeoutFlag, e.timeout.String())
	}
	if inv.run != "" {
		args = append(args, RunFlag, inv.run)
	}
	return append(args, inv.patterns...)
}

func (e *GoTestEngine) runInvocation(ctx context.Context, plan Plan, inv invocation, emit func(types.TestOutcome)) error {
	missing := e.missingTests(inv)

	args := e.buildArgs(inv)
	cmd := e.cmdBuilder(ctx, e.goBinary, args...)
	cmd.Dir = e.workDir
	cmd.Env = append(os.Environ(), propertyEnv(plan.Properties)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open go test output: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.log.Info("Running go test", "run_id", plan.RunID, "dir", e.workDir, "args", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.goBinary, err)
	}

	seen := make(map[string]bool)
	parser := newEventParser(func(o types.TestOutcome) {
		seen[o.Name] = true
		emit(o)
	})
	scanErr := scanEvents(stdout, parser)
	if scanErr != nil {
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	for _, test := range missing {
		name := types.QualifiedTestName(inv.pkg, test)
		if !seen[name] {
			emit(types.NewTestOutcome(name, types.TestStatusFailure, fmt.Sprintf("test %s not found in package %s", test, inv.pkg), 0))
		}
	}

	if scanErr != nil {
		return fmt.Errorf("failed to read go test output: %w", scanErr)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		// exit code 1 means tests failed, which the outcomes already carry
		if errors.As(waitErr, &exitErr) && exitErr.ExitCode() == 1 && parser.Emitted() > 0 {
			return nil
		}
		return fmt.Errorf("go test failed: %w: %s", waitErr, strings.TrimSpace(stripansi.Strip(stderr.String())))
	}
	return nil
}

// missingTests returns the requested tests that do not exist in the package
func (e *GoTestEngine) missingTests(inv invocation) []string {
	if len(inv.expected) == 0 {
		return nil
	}
	found, err := testlist.FindTestFunctions(inv.pkg, e.workDir)
	if err != nil {
		e.log.Warn("Failed to list test functions", "package", inv.pkg, "err", err)
		return nil
	}
	var missing []string
	for _, test := range inv.expected {
		if !slices.Contains(found, types.RootTestName(test)) {
			missing = append(missing, test)
		}
	}
	return missing
}

func scanEvents(r io.Reader, parser *eventParser) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for scanner.Scan() {
		parser.Feed(scanner.Bytes())
	}
	return scanner.Err()
}

// propertyEnv turns run properties into sorted KEY=value environment entries
func propertyEnv(props map[string]string) []string {
	env := make([]string, 0, len(props))
	for k, v := range props {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
